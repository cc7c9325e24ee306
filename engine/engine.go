package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"sitemanager/config"
	"sitemanager/connectivity"
	"sitemanager/queue"
	"sitemanager/remote"
	"sitemanager/site"
	"sitemanager/snapshot"
	"sitemanager/store"
)

// Backend is everything the engine needs from the remote side.
type Backend interface {
	snapshot.Fetcher
	queue.Submitter
	connectivity.Prober
	site.Gateway
	SetSession(token, userID string)
	ClearSession()
	HasSession() bool
}

// Engine owns the sync subsystems and decides when downloads and drains run.
type Engine struct {
	cfg        *config.Config
	configPath string
	db         *store.DB
	backend    Backend
	log        *zap.Logger

	queue      *queue.Queue
	downloader *snapshot.Downloader
	monitor    *connectivity.Monitor
	site       *site.Service
	scheduler  *Scheduler

	// syncMu serializes snapshot replacement with drain passes.
	syncMu          sync.Mutex
	downloading     atomic.Bool
	downloadPending atomic.Bool

	Events   *EventBus
	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// Config holds the parameters needed to create an Engine.
type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	DB         *store.DB
	Backend    Backend
	Logger     *zap.Logger
}

// New creates an Engine and its subsystems. Call Start to wire triggers and
// begin probing.
func New(c Config) *Engine {
	log := c.Logger
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		cfg:        c.AppConfig,
		configPath: c.ConfigPath,
		db:         c.DB,
		backend:    c.Backend,
		log:        log,
		Events:     NewEventBus(log.Named("events")),
		stopChan:   make(chan struct{}),
	}

	e.queue = queue.New(e.db, e.backend, &queueEmitter{bus: e.Events}, queue.Options{
		RequireSignature: e.cfg.Sync.RequireSignature,
		Guard:            &e.syncMu,
		Logger:           log.Named("queue"),
	})
	e.downloader = snapshot.NewDownloader(e.db, e.backend, &snapshotEmitter{bus: e.Events}, log.Named("snapshot"))
	e.monitor = connectivity.NewMonitor(e.backend, &connectivityEmitter{bus: e.Events},
		e.cfg.Sync.ProbeInterval, e.cfg.Sync.ProbeTimeout, log.Named("connectivity"))
	e.site = site.NewService(e.db, e.backend, e.queue, &siteEmitter{bus: e.Events}, log.Named("site"))
	return e
}

// Start wires the event chain, restores the configured project, and starts
// the connectivity monitor and the refresh schedule.
func (e *Engine) Start() error {
	e.wireEventHandlers()

	if active, err := e.db.ActiveProject(); err != nil {
		return err
	} else if active == "" && e.cfg.ActiveProject != "" {
		if _, err := e.db.SwitchProject(e.cfg.ActiveProject); err != nil {
			return err
		}
	}

	if e.cfg.Sync.RefreshSchedule != "" {
		e.scheduler = NewScheduler(e.log.Named("scheduler"))
		if err := e.scheduler.Add(e.cfg.Sync.RefreshSchedule, "scheduled refresh", e.RequestDownload); err != nil {
			return err
		}
		e.scheduler.Start()
	}
	e.monitor.Start()

	if e.backend.HasSession() {
		e.spawn(e.reconcile)
	}
	project, _ := e.db.ActiveProject()
	e.log.Info("engine started",
		zap.String("device", e.cfg.DeviceID),
		zap.String("project", project),
		zap.Bool("session", e.backend.HasSession()))
	return nil
}

// Stop shuts down background work and waits for running downloads and
// drains to finish.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.monitor.Stop()
	if e.scheduler != nil {
		e.scheduler.Stop()
	}
	e.wg.Wait()
	e.log.Info("engine stopped")
}

// spawn runs fn in a tracked goroutine unless the engine is stopping.
func (e *Engine) spawn(fn func()) {
	select {
	case <-e.stopChan:
		return
	default:
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

// reconcile downloads a fresh baseline and then drains the queue.
func (e *Engine) reconcile() {
	ctx := context.Background()
	e.Download(ctx)
	e.Drain(ctx)
}

// Login installs a session handed over by the authentication provider and
// reconciles in the background.
func (e *Engine) Login(token, userID string) {
	e.backend.SetSession(token, userID)
	e.log.Info("session started", zap.String("user", userID))
	e.Events.Emit(Event{Type: EventSessionStarted, Payload: SessionEvent{UserID: userID}})
	e.spawn(e.reconcile)
}

// Logout forgets the session. Queued mutations are kept for the next login.
func (e *Engine) Logout() {
	e.backend.ClearSession()
	e.log.Info("session ended")
	e.Events.Emit(Event{Type: EventSessionEnded, Payload: SessionEvent{}})
}

// Drain delivers queued mutations now. It probes once when the backend is
// believed unreachable and skips the pass if it still is.
func (e *Engine) Drain(ctx context.Context) queue.DrainResult {
	if !e.monitor.Online() && !e.monitor.Probe() {
		e.log.Debug("drain skipped, backend unreachable")
		return queue.DrainResult{Skipped: true, Offline: true}
	}
	res := e.queue.Drain(ctx)
	if res.Err != nil {
		e.noteFailure("drain", res.Err)
	}
	if res.Delivered > 0 {
		e.RequestDownload()
	}
	return res
}

// RequestDrain starts a drain in the background.
func (e *Engine) RequestDrain() {
	e.spawn(func() { e.Drain(context.Background()) })
}

// Download refreshes the mirror now. Concurrent calls run one after another,
// and never while a drain pass is running.
func (e *Engine) Download(ctx context.Context) (*snapshot.Result, error) {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()
	res, err := e.downloader.Refresh(ctx)
	if err != nil {
		e.noteFailure("download", err)
	}
	return res, err
}

// RequestDownload schedules a background refresh. Requests arriving while
// one runs are folded into a single follow-up refresh.
func (e *Engine) RequestDownload() {
	select {
	case <-e.stopChan:
		return
	default:
	}
	e.downloadPending.Store(true)
	if !e.downloading.CompareAndSwap(false, true) {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			for e.downloadPending.Swap(false) {
				e.Download(context.Background())
			}
			e.downloading.Store(false)
			if !e.downloadPending.Load() || !e.downloading.CompareAndSwap(false, true) {
				return
			}
		}
	}()
}

// noteFailure feeds remote failures back into the connectivity state and
// raises an auth prompt when the session was rejected.
func (e *Engine) noteFailure(op string, err error) {
	switch remote.KindOf(err) {
	case remote.KindConnectivity:
		e.monitor.Report(false, err)
	case remote.KindAuth:
		e.log.Warn("backend rejected the session", zap.String("op", op), zap.Error(err))
		e.Events.Emit(Event{Type: EventAuthRequired, Payload: AuthRequiredEvent{Op: op, Error: err.Error()}})
	}
}

// SwitchProject selects another project. The mirror is cleared right away
// and refilled by a background download; queued mutations keep their own
// project.
func (e *Engine) SwitchProject(projectID string) error {
	from, err := e.db.ActiveProject()
	if err != nil {
		return err
	}
	changed, err := e.db.SwitchProject(projectID)
	if err != nil || !changed {
		return err
	}

	e.cfg.Lock()
	e.cfg.ActiveProject = projectID
	e.cfg.Unlock()
	if e.configPath != "" {
		if err := e.cfg.Save(e.configPath); err != nil {
			e.log.Error("save config after project switch", zap.Error(err))
		}
	}

	e.log.Info("project switched", zap.String("from", from), zap.String("to", projectID))
	e.Events.Emit(Event{Type: EventProjectSwitched, Payload: ProjectSwitchedEvent{From: from, To: projectID}})
	e.RequestDownload()
	return nil
}

// DB returns the database handle.
func (e *Engine) DB() *store.DB { return e.db }

// AppConfig returns the app config.
func (e *Engine) AppConfig() *config.Config { return e.cfg }

func (e *Engine) Queue() *queue.Queue { return e.queue }

func (e *Engine) Site() *site.Service { return e.site }

func (e *Engine) Monitor() *connectivity.Monitor { return e.monitor }

func (e *Engine) Backend() Backend { return e.backend }

// Logger returns a named child of the engine's logger.
func (e *Engine) Logger(name string) *zap.Logger { return e.log.Named(name) }
