// Package daemon implements the fwledgerd daemon logic.
package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/wellsgz/fwledger/internal/firewall"
)

// Persister periodically writes new ledger blocks to the store.
type Persister struct {
	fw              *firewall.Firewall
	store           firewall.Store
	persistInterval time.Duration
}

// NewPersister creates a new block persister.
func NewPersister(fw *firewall.Firewall, store firewall.Store, persistInterval time.Duration) *Persister {
	return &Persister{
		fw:              fw,
		store:           store,
		persistInterval: persistInterval,
	}
}

// Run starts the persist loop.
func (p *Persister) Run(ctx context.Context) {
	ticker := time.NewTicker(p.persistInterval)
	defer ticker.Stop()

	slog.Info("persister started", "interval", p.persistInterval)

	for {
		select {
		case <-ctx.Done():
			// Final persist before shutdown
			p.persist()
			slog.Info("persister stopped")
			return
		case <-ticker.C:
			p.persist()
		}
	}
}

// Flush immediately writes pending blocks.
func (p *Persister) Flush() (int, error) {
	n, err := p.fw.Save(p.store)
	if err != nil {
		return 0, err
	}
	slog.Debug("persister flushed on demand", "blocks", n)
	return n, nil
}

func (p *Persister) persist() {
	n, err := p.fw.Save(p.store)
	if err != nil {
		slog.Error("failed to persist blocks", "error", err)
		return
	}
	if n > 0 {
		slog.Debug("persisted blocks", "blocks", n, "persisted_index", p.fw.Persisted())
	}
}
