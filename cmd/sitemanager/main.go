package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"sitemanager/blob"
	"sitemanager/config"
	"sitemanager/engine"
	"sitemanager/logger"
	"sitemanager/messaging"
	"sitemanager/protocol"
	"sitemanager/remote"
	"sitemanager/store"
	"sitemanager/www"
)

const version = "dev"

func main() {
	configPath := flag.String("config", "sitemanager.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	flag.Parse()

	log := logger.Must(logger.New(*debug))
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}
	if *port > 0 {
		cfg.Web.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("config", zap.Error(err))
	}

	db, err := store.Open(cfg.DatabasePath, log.Named("store"))
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	// Evidence uploads
	var gw *remote.Gateway
	var evidence blob.Store
	switch cfg.Blob.Backend {
	case "gcs":
		gcs, err := blob.NewGCSStore(context.Background(), cfg.Blob.CredentialsJSON, cfg.Blob.Bucket, cfg.Blob.PublicURL)
		if err != nil {
			log.Fatal("gcs store", zap.Error(err))
		}
		defer gcs.Close()
		evidence = gcs
	default:
		evidence = blob.NewHTTPStore(cfg.Remote.URL, cfg.Remote.APIKey, cfg.Blob.Bucket, func() string { return gw.Token() })
	}

	gw = remote.New(remote.Options{
		BaseURL:        cfg.Remote.URL,
		APIKey:         cfg.Remote.APIKey,
		Timeout:        cfg.Remote.Timeout,
		LedgerLimit:    cfg.Remote.LedgerLimit,
		AttendanceDays: cfg.Remote.AttendanceDays,
		Blob:           evidence,
		Logger:         log.Named("remote"),
	})

	eng := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: *configPath,
		DB:         db,
		Backend:    gw,
		Logger:     log.Named("engine"),
	})
	if err := eng.Start(); err != nil {
		log.Fatal("start engine", zap.Error(err))
	}
	defer eng.Stop()

	if cfg.Messaging.Enabled {
		stop := startMessaging(cfg, eng, log.Named("messaging"))
		defer stop()
	}

	router, stopWeb := www.NewRouter(eng)
	defer stopWeb()

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	server := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.Info("sitemanager listening", zap.String("addr", addr), zap.String("device", cfg.DeviceID))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")

	// Stop SSE streams first so long-lived connections close
	stopWeb()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn("http server shutdown", zap.Error(err))
	}
}

// startMessaging connects to the device bus and starts the heartbeat, the
// halt reporter and the notice subscriber. A failed connect is logged and
// leaves the device running without the bus.
func startMessaging(cfg *config.Config, eng *engine.Engine, log *zap.Logger) func() {
	client := messaging.NewClient(&cfg.Messaging, cfg.ClientID(), log)
	if err := client.Connect(); err != nil {
		log.Warn("messaging connect", zap.Error(err))
		return client.Close
	}

	hb := messaging.NewHeartbeater(client, eng, version, cfg.Messaging.StatusTopic, cfg.Messaging.HeartbeatInterval, log)
	hb.Start()

	halts := messaging.NewHaltReporter(client, eng.Events, cfg.DeviceID, cfg.Messaging.StatusTopic, log)
	halts.Start()

	db := eng.DB()
	ingestor := protocol.NewIngestor(
		messaging.NewNoticeHandler(eng, log),
		messaging.NoticeFilter(cfg.DeviceID, func() string {
			p, _ := db.ActiveProject()
			return p
		}),
		log,
	)
	if err := client.Subscribe(cfg.Messaging.NoticeTopic, ingestor.HandleRaw); err != nil {
		log.Warn("notice subscribe", zap.Error(err))
	} else {
		log.Info("listening for notices", zap.String("topic", cfg.Messaging.NoticeTopic))
	}

	return func() {
		halts.Stop()
		hb.Stop()
		client.Close()
	}
}
