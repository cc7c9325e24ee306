package engine

import (
	"time"

	"go.uber.org/zap"
)

// Status is a point-in-time summary of the device's sync state.
type Status struct {
	DeviceID    string    `json:"device_id"`
	Project     string    `json:"project"`
	Pending     int       `json:"pending"`
	Online      bool      `json:"online"`
	Session     bool      `json:"session"`
	Draining    bool      `json:"draining"`
	Downloading bool      `json:"downloading"`
	LastRefresh time.Time `json:"last_refresh"`
}

// Status reads the current sync state. Store errors leave the affected
// fields zero.
func (e *Engine) Status() Status {
	s := Status{
		DeviceID:    e.cfg.DeviceID,
		Online:      e.monitor.Online(),
		Session:     e.backend.HasSession(),
		Draining:    e.queue.Draining(),
		Downloading: e.downloading.Load(),
	}
	var err error
	if s.Project, err = e.db.ActiveProject(); err != nil {
		e.log.Warn("status: active project", zap.Error(err))
	}
	if s.Pending, err = e.queue.PendingCount(); err != nil {
		e.log.Warn("status: pending count", zap.Error(err))
	}
	if s.LastRefresh, err = e.db.LastRefresh(); err != nil {
		e.log.Warn("status: last refresh", zap.Error(err))
	}
	return s
}
