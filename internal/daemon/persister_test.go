package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellsgz/fwledger/internal/config"
	"github.com/wellsgz/fwledger/internal/firewall"
	"github.com/wellsgz/fwledger/internal/storage"
	"github.com/wellsgz/fwledger/internal/types"
)

func TestPersisterFinalFlushOnShutdown(t *testing.T) {
	db, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	fw, err := firewall.New(config.Defaults())
	require.NoError(t, err)

	p := NewPersister(fw, db, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	pkt, err := types.NewPacket("10.0.0.2", "10.0.0.1", 40000, 8080, "udp", "", time.Now())
	require.NoError(t, err)
	_, _, err = fw.Process(pkt)
	require.NoError(t, err)

	cancel()
	<-done

	idx, err := db.LastIndex()
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 1, fw.Persisted())
}

func TestPersisterFlush(t *testing.T) {
	db, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	fw, err := firewall.New(config.Defaults())
	require.NoError(t, err)
	p := NewPersister(fw, db, time.Hour)

	n, err := p.Flush()
	require.NoError(t, err)
	assert.Zero(t, n)

	pkt, err := types.NewPacket("10.0.0.2", "10.0.0.1", 40000, 8080, "udp", "", time.Now())
	require.NoError(t, err)
	_, _, err = fw.Process(pkt)
	require.NoError(t, err)

	n, err = p.Flush()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
