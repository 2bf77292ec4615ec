package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wellsgz/fwledger/internal/config"
	"github.com/wellsgz/fwledger/internal/firewall"
	"github.com/wellsgz/fwledger/internal/ledger"
	"github.com/wellsgz/fwledger/internal/stats"
	"github.com/wellsgz/fwledger/internal/storage"
)

// Version is reported by get_status.
const Version = "0.1.0"

// Metadata keys written by the integrity check.
const (
	metaLastVerified = "last_verified_at"
	metaLastResult   = "last_verify_result"
)

// Daemon orchestrates all daemon components.
type Daemon struct {
	config    *config.Config
	fw        *firewall.Firewall
	persister *Persister
	server    *Server
	db        *storage.DB
}

// New creates a new daemon instance.
func New(cfg *config.Config) *Daemon {
	return &Daemon{
		config: cfg,
	}
}

// Run starts the daemon and blocks until shutdown.
func (d *Daemon) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dataDir := d.config.ResolveDataDir()
	socketPath := d.config.ResolveSocket()

	slog.Info("starting fwledger daemon",
		"data_dir", dataDir,
		"socket", socketPath,
		"block_threshold", d.config.BlockThreshold,
		"alert_threshold", d.config.AlertThreshold)

	db, err := storage.Open(dataDir)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	d.db = db
	defer db.Close()

	metrics := stats.NewMetrics()
	reg := prometheus.NewRegistry()
	metrics.Register(reg)

	fw, err := firewall.New(d.config, firewall.WithMetrics(metrics))
	if err != nil {
		return err
	}
	d.fw = fw

	n, err := fw.Load(db)
	if err != nil {
		return fmt.Errorf("restoring ledger: %w", err)
	}
	slog.Info("ledger loaded", "blocks", n)
	d.verify()

	persister := NewPersister(fw, db, d.config.PersistInterval)
	d.persister = persister
	done := make(chan struct{})
	go func() {
		persister.Run(ctx)
		close(done)
	}()

	if d.config.VerifyInterval > 0 {
		go d.runIntegrityCheck(ctx)
	}

	var httpServer *http.Server
	if d.config.MetricsListen != "" {
		httpServer = &http.Server{
			Addr:    d.config.MetricsListen,
			Handler: newHTTPHandler(reg, fw),
		}
		go func() {
			slog.Info("metrics server started", "addr", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	server := NewServer(socketPath, fw, db, persister, d.config)
	d.server = server

	go func() {
		if err := server.Serve(ctx); err != nil {
			slog.Error("IPC server error", "error", err)
		}
	}()

	slog.Info("daemon started successfully")

	<-ctx.Done()
	slog.Info("shutting down daemon...")

	server.Close()
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown", "error", err)
		}
	}

	// Wait for the final flush before the database closes
	<-done
	return nil
}

// runIntegrityCheck re-verifies the whole chain on every tick.
func (d *Daemon) runIntegrityCheck(ctx context.Context) {
	ticker := time.NewTicker(d.config.VerifyInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.verify()
		}
	}
}

func (d *Daemon) verify() ledger.VerifyReport {
	report := d.fw.Verify()

	result := "ok"
	if err := report.Err(); err != nil {
		var ie *ledger.IntegrityError
		if errors.As(err, &ie) {
			slog.Error("chain integrity check failed",
				"indices", ie.Indices,
				"broken_links", report.BrokenLinks,
				"hash_mismatches", report.HashMismatches)
		}
		result = err.Error()
	} else {
		slog.Debug("chain verified", "blocks", report.Total, "last_hash", report.LastHash)
	}

	if err := d.db.SetMetadata(metaLastVerified, time.Now().Format(time.RFC3339)); err != nil {
		slog.Warn("failed to record verification time", "error", err)
	}
	if err := d.db.SetMetadata(metaLastResult, result); err != nil {
		slog.Warn("failed to record verification result", "error", err)
	}
	return report
}
