package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/medscribe/component"
	"github.com/kbukum/medscribe/logger"
)

// Reaper periodically evicts transcriptions whose connection went quiet
// without a stop or disconnect.
type Reaper struct {
	coord    *Coordinator
	interval time.Duration
	timeout  time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastRun time.Time
}

var (
	_ component.Component   = (*Reaper)(nil)
	_ component.Describable = (*Reaper)(nil)
)

// NewReaper creates a reaper using the coordinator's configuration.
func NewReaper(coord *Coordinator, log *logger.Logger) *Reaper {
	if log == nil {
		log = logger.NewNop()
	}
	return &Reaper{
		coord:    coord,
		interval: coord.cfg.ReaperInterval,
		timeout:  coord.cfg.IdleTimeout,
		log:      log.WithComponent("reaper"),
	}
}

func (r *Reaper) Name() string { return "transcription-reaper" }

// Start launches the sweep loop.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return fmt.Errorf("reaper already started")
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(loopCtx, r.done)
	return nil
}

// Stop ends the sweep loop and waits for an in-flight sweep.
func (r *Reaper) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reaper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep evicts every stale transcription and returns how many were
// evicted. Each eviction flushes first; a failed flush does not stop the
// sweep.
func (r *Reaper) Sweep(ctx context.Context) int {
	now := r.coord.now()
	stale := r.coord.registry.ListStale(now, r.timeout)

	evicted := 0
	for _, connID := range stale {
		if r.coord.EvictIfIdle(ctx, connID, r.timeout) {
			evicted++
		}
	}

	r.mu.Lock()
	r.lastRun = now
	r.mu.Unlock()

	if evicted > 0 {
		r.log.Info("Idle transcriptions evicted", map[string]interface{}{
			"evicted": evicted,
			"active":  r.coord.ActiveCount(),
		})
	}
	return evicted
}

// Health reports unhealthy when the loop has not run for several intervals.
func (r *Reaper) Health(_ context.Context) component.Health {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := component.Health{Name: r.Name(), Status: component.StatusHealthy}
	if r.cancel == nil {
		h.Status, h.Message = component.StatusUnhealthy, "not running"
		return h
	}
	if !r.lastRun.IsZero() && r.coord.now().Sub(r.lastRun) > 3*r.interval {
		h.Status, h.Message = component.StatusDegraded, "sweep overdue"
	}
	return h
}

func (r *Reaper) Describe() component.Description {
	return component.Description{
		Name:    "Reaper",
		Type:    "worker",
		Details: fmt.Sprintf("every %s, idle timeout %s", r.interval, r.timeout),
	}
}
