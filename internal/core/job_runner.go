package core

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrRunnerActive = errors.New("a job runner is already active")

const (
	defaultTickInterval = 10 * time.Second
	defaultTickProgress = 10
)

// JobRunner drives the active job forward on a fixed tick. At most one tick
// loop runs at a time, bound to the job id it was started for; every tick
// re-checks that binding against the model, so a loop whose job was
// cancelled or replaced terminates instead of driving the wrong job.
type JobRunner struct {
	model     *StatusModel
	device    DeviceController
	publisher Publisher
	history   JobHistory
	log       *slog.Logger

	interval time.Duration
	step     int

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewJobRunner(model *StatusModel, device DeviceController, publisher Publisher, history JobHistory, interval time.Duration, step int, log *slog.Logger) *JobRunner {
	if interval <= 0 {
		interval = defaultTickInterval
	}
	if step <= 0 {
		step = defaultTickProgress
	}

	return &JobRunner{
		model:     model,
		device:    device,
		publisher: publisher,
		history:   history,
		log:       log,
		interval:  interval,
		step:      step,
	}
}

// Start launches the tick loop for jobID. A second Start while a loop is
// still alive is rejected; a loop that already terminated on its own is
// cleaned up and replaced.
func (r *JobRunner) Start(jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		select {
		case <-r.done:
			r.cancel()
		default:
			return ErrRunnerActive
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.run(ctx, jobID, r.done)

	return nil
}

// Stop cancels the tick loop and waits for it to exit. It is idempotent and
// safe to call when nothing is running.
func (r *JobRunner) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.done = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

// Running reports whether a tick loop is currently alive.
func (r *JobRunner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

func (r *JobRunner) run(ctx context.Context, jobID string, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.tick(jobID) {
				return
			}
		}
	}
}

// tick advances the job once and reports whether the loop should continue.
func (r *JobRunner) tick(jobID string) bool {
	temp, level, err := r.device.ReadTelemetry()
	if err != nil {
		job, had := r.model.RecordError(err.Error())
		if had {
			r.publisher.PublishJobStatus(job.ID, JobFailed, job.Progress, err.Error())
			recordJobEvent(r.history, r.log, job.ID, JobFailed, job.Progress, err.Error())
		}
		r.publisher.PublishStatus(r.model.Snapshot())
		r.log.Error("device fault during print", "job_id", jobID, "error", err)
		return false
	}
	r.model.SetTelemetry(temp, level)

	tick, err := r.model.AdvanceProgress(jobID, r.step)
	if err != nil {
		// the job was cancelled or replaced out from under this loop
		r.log.Debug("job gone, stopping tick loop", "job_id", jobID)
		return false
	}

	if tick.Skipped {
		return true
	}

	if tick.Completed {
		if err := r.device.Complete(); err != nil {
			r.log.Warn("device complete failed", "job_id", jobID, "error", err)
		}
		r.publisher.PublishJobStatus(jobID, JobCompleted, 100, "")
		r.publisher.PublishStatus(r.model.Snapshot())
		recordJobEvent(r.history, r.log, jobID, JobCompleted, 100, "")
		r.log.Info("print job completed", "job_id", jobID)
		return false
	}

	r.publisher.PublishJobStatus(jobID, JobPrinting, tick.Progress, "")
	return true
}

func recordJobEvent(h JobHistory, log *slog.Logger, jobID string, status JobEventStatus, progress int, errMsg string) {
	if h == nil {
		return
	}
	if err := h.RecordJobEvent(jobID, status, progress, errMsg); err != nil {
		log.Warn("failed to record job event", "job_id", jobID, "status", string(status), "error", err)
	}
}
