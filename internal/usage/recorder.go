// AngelaMos | 2026
// recorder.go

package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/config"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/store"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"

	writeTimeout      = 5 * time.Second
	defaultWorkers    = 2
	defaultBufferSize = 256
)

var ErrRecorderClosed = errors.New("usage recorder closed")

// Event is one gateway request outcome.
type Event struct {
	UserID       string
	APIKeyID     *string
	ConnectionID *string
	ToolName     string
	Success      bool
	ErrorMessage string
	Duration     time.Duration
	At           time.Time
}

type job struct {
	ctx   context.Context
	event Event
}

// Recorder writes usage off the request path. Record never blocks; events
// arriving while the buffer is full are dropped and logged.
type Recorder struct {
	store  store.Usage
	logger *slog.Logger
	jobs   chan job
	group  *errgroup.Group

	mu     sync.RWMutex
	closed bool
}

func NewRecorder(st store.Usage, cfg config.UsageConfig, logger *slog.Logger) *Recorder {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}

	r := &Recorder{
		store:  st,
		logger: logger,
		jobs:   make(chan job, size),
		group:  &errgroup.Group{},
	}

	for range workers {
		r.group.Go(r.work)
	}

	return r
}

// Record enqueues e. The request context is detached from cancellation so
// a disconnecting caller does not abort the write, while trace values
// survive.
func (r *Recorder) Record(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.logger.Warn("usage event after shutdown", "user_id", e.UserID, "tool", e.ToolName)
		return
	}

	select {
	case r.jobs <- job{ctx: context.WithoutCancel(ctx), event: e}:
	default:
		r.logger.Warn("usage buffer full, dropping event", "user_id", e.UserID, "tool", e.ToolName)
	}
}

// Pending reports events queued but not yet written.
func (r *Recorder) Pending() int {
	return len(r.jobs)
}

func (r *Recorder) work() error {
	for j := range r.jobs {
		if err := r.write(j.ctx, j.event); err != nil {
			r.logger.Error("record usage",
				"error", err,
				"user_id", j.event.UserID,
				"tool", j.event.ToolName,
			)
		}
	}
	return nil
}

func (r *Recorder) write(parent context.Context, e Event) error {
	ctx, cancel := context.WithTimeout(parent, writeTimeout)
	defer cancel()

	status := StatusSuccess
	var errMsg *string
	if !e.Success {
		status = StatusError
		if e.ErrorMessage != "" {
			msg := e.ErrorMessage
			errMsg = &msg
		}
	}

	entry := &store.UsageLog{
		ID:           uuid.New().String(),
		UserID:       e.UserID,
		APIKeyID:     e.APIKeyID,
		ConnectionID: e.ConnectionID,
		ToolName:     e.ToolName,
		Status:       status,
		ErrorMessage: errMsg,
		DurationMS:   e.Duration.Milliseconds(),
		CreatedAt:    e.At.UTC(),
	}
	if err := r.store.InsertUsageLog(ctx, entry); err != nil {
		return fmt.Errorf("insert usage log: %w", err)
	}

	if err := r.store.IncrementMonthlyUsage(ctx, e.UserID, store.YearMonth(e.At), e.Success); err != nil {
		return fmt.Errorf("increment monthly usage: %w", err)
	}
	return nil
}

// Close stops intake and waits for queued events to be written, or for ctx
// to end.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRecorderClosed
	}
	r.closed = true
	close(r.jobs)
	r.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- r.group.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("drain usage recorder: %w", ctx.Err())
	}
}
