package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driving"
	"github.com/custodia-labs/lorastudio/internal/logger"
)

// Ensure RunPoller implements the interface.
var _ driving.RunPoller = (*RunPoller)(nil)

// RunPoller drives queued runs on a fixed interval.
// Cycles never overlap; a stop request is honored between runs.
type RunPoller struct {
	config       domain.WorkerConfig
	orchestrator driving.RunOrchestrator
	history      driven.PollHistoryStore

	mu      sync.Mutex
	running bool
	// pendingStop records a Stop that arrived while no loop was running.
	pendingStop bool
	stopCh      chan struct{}
	done        chan struct{}

	// cycle serializes RunOnce calls.
	cycle sync.Mutex
}

// NewRunPoller creates a poller. history may be nil.
func NewRunPoller(
	config domain.WorkerConfig,
	orchestrator driving.RunOrchestrator,
	history driven.PollHistoryStore,
) *RunPoller {
	return &RunPoller{
		config:       config,
		orchestrator: orchestrator,
		history:      history,
	}
}

// Start runs poll cycles until ctx is cancelled or Stop is called.
// This method blocks. If Stop was called while no loop was running,
// Start consumes that request and returns nil without polling.
func (p *RunPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	if p.pendingStop {
		p.pendingStop = false
		p.mu.Unlock()
		logger.Debug("run poller stopped before start")
		return nil
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	stopCh, done := p.stopCh, p.done
	p.mu.Unlock()

	defer close(done)
	logger.Info("run poller started", "interval", p.config.PollInterval, "max_runs", p.config.MaxRunsPerCycle)

	p.RunOnce(ctx)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.markStopped()
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// Stop signals the loop and waits for an in-flight cycle, up to the
// configured stop timeout. Without a running loop the request is kept
// for the next Start.
func (p *RunPoller) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.pendingStop = true
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	done := p.done
	p.mu.Unlock()

	if p.config.StopTimeout <= 0 {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(p.config.StopTimeout):
		return fmt.Errorf("run poller did not stop within %s", p.config.StopTimeout)
	}
}

// RunOnce drives up to MaxRunsPerCycle queued runs and records the cycle.
// A run that ends FAILED does not fail the cycle.
func (p *RunPoller) RunOnce(ctx context.Context) domain.PollCycle {
	p.cycle.Lock()
	defer p.cycle.Unlock()

	cycle := domain.PollCycle{
		Poller:    domain.DefaultPoller,
		StartedAt: time.Now(),
	}

	var cycleErr error
	for i := 0; i < p.config.MaxRunsPerCycle; i++ {
		if ctx.Err() != nil || p.stopping() {
			break
		}
		run, err := p.processOne(ctx)
		if err != nil {
			cycleErr = err
			break
		}
		if run == nil {
			break
		}
		cycle.RunIDs = append(cycle.RunIDs, run.ID)
		if run.State == domain.RunFailed {
			cycle.RunsFailed++
		}
	}

	cycle.EndedAt = time.Now()
	cycle.Success = cycleErr == nil
	if cycleErr != nil {
		cycle.Error = cycleErr.Error()
		logger.Error("run poller cycle failed", "error", cycleErr, "runs", cycle.RunIDs)
	} else if cycle.Processed() > 0 {
		logger.Info("run poller cycle", "runs", cycle.RunIDs, "failed", cycle.RunsFailed, "duration", cycle.Duration())
	}

	p.record(ctx, &cycle)
	return cycle
}

// History returns recent cycles, most recent first.
func (p *RunPoller) History(ctx context.Context, limit int) ([]domain.PollCycle, error) {
	if p.history == nil {
		return nil, nil
	}
	return p.history.RecentCycles(ctx, domain.DefaultPoller, limit)
}

// processOne keeps a panic inside the orchestrator from ending the loop.
func (p *RunPoller) processOne(ctx context.Context) (run *domain.TrainingRun, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing run: %v", r)
		}
	}()
	return p.orchestrator.ProcessNextQueuedRun(ctx)
}

func (p *RunPoller) record(ctx context.Context, cycle *domain.PollCycle) {
	if p.history == nil {
		return
	}
	if err := p.history.RecordCycle(ctx, cycle); err != nil {
		logger.Warn("failed to record poll cycle", "error", err)
	}
	if p.config.HistoryKeep > 0 {
		if err := p.history.PruneCycles(ctx, p.config.HistoryKeep); err != nil {
			logger.Warn("failed to prune poller history", "error", err)
		}
	}
}

func (p *RunPoller) stopping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopCh == nil {
		return false
	}
	select {
	case <-p.stopCh:
		return true
	default:
		return false
	}
}

func (p *RunPoller) markStopped() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
}
