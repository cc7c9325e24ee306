package messaging

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"sitemanager/engine"
	"sitemanager/protocol"
)

// Publisher sends envelopes to the bus.
type Publisher interface {
	PublishEnvelope(topic string, env *protocol.Envelope) error
}

// StatusSource reports the device's current sync state.
type StatusSource interface {
	Status() engine.Status
}

// Heartbeater sends device.register on startup and device.heartbeat periodically.
type Heartbeater struct {
	pub       Publisher
	status    StatusSource
	version   string
	topic     string
	interval  time.Duration
	startTime time.Time
	log       *zap.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewHeartbeater creates a heartbeater publishing on topic every interval.
func NewHeartbeater(pub Publisher, status StatusSource, version, topic string, interval time.Duration, log *zap.Logger) *Heartbeater {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Heartbeater{
		pub:      pub,
		status:   status,
		version:  version,
		topic:    topic,
		interval: interval,
		log:      log,
		stopCh:   make(chan struct{}),
	}
}

// Start sends an initial registration and begins the heartbeat loop.
func (h *Heartbeater) Start() {
	h.startTime = time.Now()
	h.sendRegister()
	h.wg.Add(1)
	go h.loop()
}

// Stop halts the heartbeat loop.
func (h *Heartbeater) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
	h.wg.Wait()
}

func (h *Heartbeater) source(s engine.Status) protocol.Address {
	return protocol.Address{Role: protocol.RoleDevice, Node: s.DeviceID, Project: s.Project}
}

func (h *Heartbeater) sendRegister() {
	s := h.status.Status()
	hostname, _ := os.Hostname()
	env, err := protocol.NewEnvelope(protocol.TypeDeviceRegister, h.source(s),
		protocol.Address{Role: protocol.RoleBackend},
		&protocol.DeviceRegister{
			DeviceID: s.DeviceID,
			Hostname: hostname,
			Version:  h.version,
			Project:  s.Project,
		})
	if err != nil {
		h.log.Error("build register", zap.Error(err))
		return
	}
	if err := h.pub.PublishEnvelope(h.topic, env); err != nil {
		h.log.Warn("send register", zap.Error(err))
		return
	}
	h.log.Info("sent device.register", zap.String("device", s.DeviceID))
}

func (h *Heartbeater) sendHeartbeat() {
	s := h.status.Status()
	env, err := protocol.NewEnvelope(protocol.TypeDeviceHeartbeat, h.source(s),
		protocol.Address{Role: protocol.RoleBackend},
		&protocol.DeviceHeartbeat{
			DeviceID:    s.DeviceID,
			Uptime:      int64(time.Since(h.startTime).Seconds()),
			Project:     s.Project,
			Pending:     s.Pending,
			Online:      s.Online,
			LastRefresh: s.LastRefresh,
		})
	if err != nil {
		h.log.Error("build heartbeat", zap.Error(err))
		return
	}
	if err := h.pub.PublishEnvelope(h.topic, env); err != nil {
		h.log.Debug("send heartbeat", zap.Error(err))
	}
}

func (h *Heartbeater) loop() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.sendHeartbeat()
		}
	}
}
