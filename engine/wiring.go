package engine

import "go.uber.org/zap"

// wireEventHandlers sets up the reconciliation triggers:
// MutationEnqueued / MutationRetried → drain (when online)
// ConnectivityChanged to online → drain
// RefreshRequested → download
// Drains that deliver anything and project switches request a download
// directly.
func (e *Engine) wireEventHandlers() {
	e.Events.SubscribeTypes(func(evt Event) {
		if !e.monitor.Online() {
			e.log.Debug("offline, drain deferred", zap.Stringer("trigger", evt.Type))
			return
		}
		e.RequestDrain()
	}, EventMutationEnqueued, EventMutationRetried)

	e.Events.SubscribeTypes(func(evt Event) {
		c := evt.Payload.(ConnectivityEvent)
		if c.Online {
			e.RequestDrain()
		}
	}, EventConnectivityChanged)

	e.Events.SubscribeTypes(func(evt Event) {
		r := evt.Payload.(RefreshRequestedEvent)
		e.log.Info("refresh requested", zap.String("reason", r.Reason))
		e.RequestDownload()
	}, EventRefreshRequested)
}

// RequestRefresh asks for a download on behalf of an outside source such
// as a server notice.
func (e *Engine) RequestRefresh(reason string) {
	e.Events.Emit(Event{Type: EventRefreshRequested, Payload: RefreshRequestedEvent{Reason: reason}})
}
