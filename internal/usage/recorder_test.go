// AngelaMos | 2026
// recorder_test.go

package usage_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/config"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/store"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/usage"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecorderWritesLogAndMonthly(t *testing.T) {
	st := store.NewMemoryStore()
	rec := usage.NewRecorder(st, config.UsageConfig{Workers: 2, BufferSize: 16}, discard())

	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	ctx, cancel := context.WithCancel(context.Background())

	rec.Record(ctx, usage.Event{UserID: "alice", ToolName: "n8n_list_workflows", Success: true, At: at})
	rec.Record(ctx, usage.Event{UserID: "alice", ToolName: "tools/list", Success: true, At: at})
	rec.Record(ctx, usage.Event{
		UserID: "alice", ToolName: "n8n_health_check", ErrorMessage: "instance unreachable", At: at,
	})
	cancel()

	require.NoError(t, rec.Close(context.Background()))

	monthly, err := st.GetMonthlyUsage(context.Background(), "alice", "2026-03")
	require.NoError(t, err)
	assert.Equal(t, 3, monthly.RequestCount)
	assert.Equal(t, 2, monthly.SuccessCount)
	assert.Equal(t, 1, monthly.ErrorCount)

	logs, err := st.ListRecentUsage(context.Background(), "alice", 10)
	require.NoError(t, err)
	require.Len(t, logs, 3)

	var failed int
	for _, l := range logs {
		if l.Status == usage.StatusError {
			failed++
			require.NotNil(t, l.ErrorMessage)
			assert.Equal(t, "instance unreachable", *l.ErrorMessage)
		}
	}
	assert.Equal(t, 1, failed)
}

type blockingStore struct {
	store.Usage
	release chan struct{}
	mu      sync.Mutex
	writes  int
}

func (b *blockingStore) InsertUsageLog(ctx context.Context, l *store.UsageLog) error {
	<-b.release
	b.mu.Lock()
	b.writes++
	b.mu.Unlock()
	return nil
}

func (b *blockingStore) IncrementMonthlyUsage(context.Context, string, string, bool) error {
	return nil
}

func TestRecordNeverBlocks(t *testing.T) {
	bs := &blockingStore{release: make(chan struct{})}
	rec := usage.NewRecorder(bs, config.UsageConfig{Workers: 1, BufferSize: 1}, discard())

	done := make(chan struct{})
	go func() {
		for range 10 {
			rec.Record(context.Background(), usage.Event{UserID: "alice", ToolName: "tools/list", Success: true})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full buffer")
	}

	close(bs.release)
	require.NoError(t, rec.Close(context.Background()))

	bs.mu.Lock()
	defer bs.mu.Unlock()
	assert.LessOrEqual(t, bs.writes, 2)
	assert.GreaterOrEqual(t, bs.writes, 1)
}

func TestCloseTwice(t *testing.T) {
	rec := usage.NewRecorder(store.NewMemoryStore(), config.UsageConfig{}, discard())
	require.NoError(t, rec.Close(context.Background()))

	err := rec.Close(context.Background())
	assert.True(t, errors.Is(err, usage.ErrRecorderClosed))

	rec.Record(context.Background(), usage.Event{UserID: "alice"})
}
