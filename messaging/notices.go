package messaging

import (
	"go.uber.org/zap"

	"sitemanager/protocol"
)

// Refresher accepts refresh requests.
type Refresher interface {
	RequestRefresh(reason string)
}

// NoticeHandler handles inbound protocol messages on the notice topic.
type NoticeHandler struct {
	protocol.NoOpHandler

	refresher Refresher
	log       *zap.Logger
}

// NewNoticeHandler creates a handler that turns invalidation notices into
// refresh requests.
func NewNoticeHandler(r Refresher, log *zap.Logger) *NoticeHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &NoticeHandler{refresher: r, log: log}
}

func (h *NoticeHandler) HandleSnapshotInvalidated(env *protocol.Envelope, p *protocol.SnapshotInvalidated) {
	h.log.Info("snapshot invalidated", zap.String("id", env.ID), zap.String("project", p.Project), zap.String("reason", p.Reason))
	reason := "server notice"
	if p.Reason != "" {
		reason += ": " + p.Reason
	}
	h.refresher.RequestRefresh(reason)
}

// NoticeFilter accepts messages addressed to this device (or every device)
// and to the active project (or every project).
func NoticeFilter(deviceID string, activeProject func() string) protocol.FilterFunc {
	return func(hdr *protocol.RawHeader) bool {
		if hdr.Dst.Node != "" && hdr.Dst.Node != deviceID {
			return false
		}
		return hdr.Dst.Project == "" || hdr.Dst.Project == activeProject()
	}
}
