// Package connectivity tracks whether the backend is reachable.
package connectivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Prober checks backend reachability.
type Prober interface {
	Ping(ctx context.Context) error
}

// EventEmitter is the interface the monitor uses to report transitions.
type EventEmitter interface {
	EmitConnectivityChanged(online bool, err error)
}

// Monitor probes the backend periodically and emits a transition whenever
// reachability changes. The first probe always emits.
type Monitor struct {
	prober   Prober
	emitter  EventEmitter
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger

	mu      sync.RWMutex
	online  bool
	known   bool
	lastErr error

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewMonitor creates a monitor. Zero durations fall back to 15s between
// probes and a 5s probe timeout.
func NewMonitor(p Prober, emitter EventEmitter, interval, timeout time.Duration, log *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		prober:   p,
		emitter:  emitter,
		interval: interval,
		timeout:  timeout,
		log:      log,
		stopChan: make(chan struct{}),
	}
}

// Start begins probing in the background.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.loop()
}

// Stop ends probing and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
	m.wg.Wait()
}

func (m *Monitor) loop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Probe()
	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.Probe()
		}
	}
}

// Probe checks reachability once and records the outcome.
func (m *Monitor) Probe() bool {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	err := m.prober.Ping(ctx)
	m.Report(err == nil, err)
	return err == nil
}

// Report records an externally observed reachability state, such as a
// request that failed with a connectivity error.
func (m *Monitor) Report(online bool, err error) {
	m.mu.Lock()
	changed := !m.known || m.online != online
	m.online = online
	m.known = true
	m.lastErr = err
	m.mu.Unlock()

	if !changed {
		return
	}
	if online {
		m.log.Info("backend reachable")
	} else {
		m.log.Warn("backend unreachable", zap.Error(err))
	}
	if m.emitter != nil {
		m.emitter.EmitConnectivityChanged(online, err)
	}
}

// Online reports the last known reachability.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// LastError returns the error from the last failed probe, if the backend is
// currently unreachable.
func (m *Monitor) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.online {
		return nil
	}
	return m.lastErr
}
