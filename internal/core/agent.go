package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultStatusInterval = 30 * time.Second

	// downloadTimeout bounds the fetch of a print file before a job is
	// declared failed.
	downloadTimeout = 5 * time.Minute
)

// AgentOptions carries the tunables for a printer agent.
type AgentOptions struct {
	PrinterID      string
	TickInterval   time.Duration
	TickProgress   int
	StatusInterval time.Duration
}

// Agent coordinates the printer: it owns the status model, applies routed
// commands one at a time, drives the device and file fetcher, and keeps
// status telemetry flowing on a fixed interval.
type Agent struct {
	model     *StatusModel
	runner    *JobRunner
	device    DeviceController
	fetcher   FileFetcher
	publisher Publisher
	history   JobHistory
	log       *slog.Logger

	printerID      string
	statusInterval time.Duration

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewAgent(opts AgentOptions, device DeviceController, fetcher FileFetcher, publisher Publisher, history JobHistory, log *slog.Logger) *Agent {
	statusInterval := opts.StatusInterval
	if statusInterval <= 0 {
		statusInterval = defaultStatusInterval
	}

	model := NewStatusModel(opts.PrinterID)
	runner := NewJobRunner(model, device, publisher, history, opts.TickInterval, opts.TickProgress, log)

	return &Agent{
		model:          model,
		runner:         runner,
		device:         device,
		fetcher:        fetcher,
		publisher:      publisher,
		history:        history,
		log:            log,
		printerID:      opts.PrinterID,
		statusInterval: statusInterval,
	}
}

func (a *Agent) PrinterID() string {
	return a.printerID
}

// Status returns a snapshot of the device status for local consumers.
func (a *Agent) Status() DeviceStatus {
	return a.model.Snapshot()
}

// Printing reports whether a job tick loop is currently alive.
func (a *Agent) Printing() bool {
	return a.runner.Running()
}

// Start subscribes the agent to its command topics, marks the device online
// and launches the periodic status publisher.
func (a *Agent) Start(transport Transport) error {
	for _, suffix := range []string{TopicJobs, TopicCommands, TopicConfig} {
		topic := fmt.Sprintf("%s/%s/%s", TopicNamespace, a.printerID, suffix)
		if err := transport.Subscribe(topic, a.HandleMessage); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}

	a.model.SetOnline()
	a.publisher.PublishStatus(a.model.Snapshot())

	a.stopCh = make(chan struct{})
	a.wg.Add(1)
	go a.statusLoop()

	a.log.Info("agent online", "printer_id", a.printerID)
	return nil
}

// Shutdown stops the status loop and any running job, marks the device
// offline and publishes a final status event. Delivery of that last event is
// best-effort; the publisher drains its queue when it is stopped.
func (a *Agent) Shutdown() {
	if a.stopCh != nil {
		close(a.stopCh)
	}
	a.wg.Wait()

	a.runner.Stop()

	job, had := a.model.SetOffline()
	if had {
		a.log.Warn("shutting down with an active job", "job_id", job.ID, "progress", job.Progress)
	}

	a.publisher.PublishStatus(a.model.Snapshot())
	a.log.Info("agent offline", "printer_id", a.printerID)
}

// HandleMessage is the subscription callback for all inbound topics.
// Messages that cannot be routed are logged and dropped without touching
// printer state; rejected commands have already published their telemetry by
// the time Apply returns.
func (a *Agent) HandleMessage(topic string, payload []byte) {
	suffix, err := SuffixFromTopic(topic)
	if err != nil {
		a.log.Warn("dropping message", "topic", topic, "error", err)
		return
	}

	cmd, err := Route(suffix, payload)
	if err != nil {
		a.log.Warn("dropping message", "topic", topic, "error", err)
		return
	}

	if err := a.Apply(cmd); err != nil {
		a.log.Warn("command rejected", "kind", string(cmd.Kind), "error", err)
	}
}

// Apply executes one command against the printer. Commands are serialized;
// the MQTT subscription and the local API both funnel through here.
func (a *Agent) Apply(cmd Command) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch cmd.Kind {
	case CmdStartJob:
		return a.applyStart(cmd)
	case CmdPauseJob:
		return a.applyPause()
	case CmdResumeJob:
		return a.applyResume()
	case CmdCancelJob:
		return a.applyCancel()
	case CmdQueryStatus:
		return a.applyQueryStatus()
	case CmdHome:
		return a.applyHome()
	case CmdSetTemperature:
		return a.applySetTemperature(cmd.Temperature)
	case CmdUpdateConfig:
		return a.applyConfig(cmd)
	default:
		return fmt.Errorf("%w: unhandled command kind %q", ErrMalformedMessage, cmd.Kind)
	}
}

func (a *Agent) applyStart(cmd Command) error {
	job, err := a.model.StartJob(cmd.JobID, cmd.FileURL, cmd.Material)
	if err != nil {
		a.publisher.PublishJobStatus(cmd.JobID, JobFailed, 0, err.Error())
		recordJobEvent(a.history, a.log, cmd.JobID, JobFailed, 0, err.Error())
		a.log.Warn("start rejected", "job_id", cmd.JobID, "error", err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), downloadTimeout)
	defer cancel()

	filePath, err := a.fetcher.Fetch(ctx, job.FileURL)
	if err != nil {
		return a.failStart(job, fmt.Sprintf("Failed to download file: %v", err))
	}

	if err := a.device.Begin(ctx, filePath, job.Material); err != nil {
		return a.failStart(job, fmt.Sprintf("Failed to start print: %v", err))
	}

	if err := a.runner.Start(job.ID); err != nil {
		_ = a.device.Cancel()
		return a.failStart(job, err.Error())
	}

	a.publisher.PublishJobStatus(job.ID, JobPrinting, 0, "")
	a.publisher.PublishStatus(a.model.Snapshot())
	recordJobEvent(a.history, a.log, job.ID, JobPrinting, 0, "")
	a.log.Info("print job started", "job_id", job.ID, "file_url", job.FileURL, "material", job.Material)
	return nil
}

// failStart unwinds a job that was claimed but never got printing.
func (a *Agent) failStart(job Job, reason string) error {
	if _, err := a.model.CancelJob(); err != nil {
		a.log.Warn("failed to release job slot", "job_id", job.ID, "error", err)
	}

	a.publisher.PublishJobStatus(job.ID, JobFailed, 0, reason)
	a.publisher.PublishStatus(a.model.Snapshot())
	recordJobEvent(a.history, a.log, job.ID, JobFailed, 0, reason)
	a.log.Error("print job failed to start", "job_id", job.ID, "reason", reason)
	return errors.New(reason)
}

func (a *Agent) applyPause() error {
	job, err := a.model.PauseJob()
	if err != nil {
		a.publisher.PublishJobStatus("", JobFailed, 0, err.Error())
		return err
	}

	if err := a.device.Pause(); err != nil {
		return a.deviceFault("pause", err)
	}

	a.publisher.PublishStatus(a.model.Snapshot())
	a.log.Info("print job paused", "job_id", job.ID, "progress", job.Progress)
	return nil
}

func (a *Agent) applyResume() error {
	job, err := a.model.ResumeJob()
	if err != nil {
		a.publisher.PublishJobStatus("", JobFailed, 0, err.Error())
		return err
	}

	if err := a.device.Resume(); err != nil {
		return a.deviceFault("resume", err)
	}

	a.publisher.PublishStatus(a.model.Snapshot())
	a.log.Info("print job resumed", "job_id", job.ID, "progress", job.Progress)
	return nil
}

func (a *Agent) applyCancel() error {
	job, err := a.model.CancelJob()
	if err != nil {
		a.publisher.PublishJobStatus("", JobFailed, 0, err.Error())
		return err
	}

	a.runner.Stop()

	if err := a.device.Cancel(); err != nil {
		a.model.RecordError(err.Error())
		a.log.Error("device cancel failed", "job_id", job.ID, "error", err)
	}

	a.publisher.PublishJobStatus(job.ID, JobCancelled, job.Progress, "")
	a.publisher.PublishStatus(a.model.Snapshot())
	recordJobEvent(a.history, a.log, job.ID, JobCancelled, job.Progress, "")
	a.log.Info("print job cancelled", "job_id", job.ID, "progress", job.Progress)
	return nil
}

func (a *Agent) applyQueryStatus() error {
	// an explicit status request acknowledges a recorded error
	if a.model.Snapshot().State == StateError {
		a.model.SetOnline()
	}

	a.refreshAndPublishStatus()
	return nil
}

func (a *Agent) applyHome() error {
	if err := a.device.Home(); err != nil {
		return a.deviceFault("home", err)
	}

	a.publisher.PublishStatus(a.model.Snapshot())
	a.log.Info("homed print head")
	return nil
}

func (a *Agent) applySetTemperature(celsius float64) error {
	if err := a.device.SetTemperature(celsius); err != nil {
		return a.deviceFault("set_temperature", err)
	}

	a.publisher.PublishStatus(a.model.Snapshot())
	a.log.Info("target temperature set", "celsius", celsius)
	return nil
}

func (a *Agent) applyConfig(cmd Command) error {
	if cmd.Material == "" {
		return nil
	}

	a.model.SetMaterial(cmd.Material)
	a.publisher.PublishStatus(a.model.Snapshot())
	a.log.Info("material updated", "material", cmd.Material)
	return nil
}

// deviceFault records a hardware error: the device goes into the error
// state, any active job is failed, and its tick loop is stopped.
func (a *Agent) deviceFault(op string, err error) error {
	job, had := a.model.RecordError(err.Error())
	if had {
		a.publisher.PublishJobStatus(job.ID, JobFailed, job.Progress, err.Error())
		recordJobEvent(a.history, a.log, job.ID, JobFailed, job.Progress, err.Error())
	}

	a.runner.Stop()
	a.publisher.PublishStatus(a.model.Snapshot())
	a.log.Error("device command failed", "op", op, "error", err)
	return fmt.Errorf("device %s failed: %w", op, err)
}

func (a *Agent) statusLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.refreshAndPublishStatus()
		}
	}
}

// refreshAndPublishStatus pulls fresh telemetry from the device and emits a
// status event. A device fault with no job live is recorded here; faults
// during a print are left to the tick loop, which fails the job properly.
func (a *Agent) refreshAndPublishStatus() {
	temp, level, err := a.device.ReadTelemetry()
	if err != nil {
		st := a.model.Snapshot()
		if st.Job == nil && st.State != StateError {
			a.model.RecordError(err.Error())
			a.log.Error("device fault", "error", err)
		}
	} else {
		a.model.SetTelemetry(temp, level)
	}

	a.publisher.PublishStatus(a.model.Snapshot())
}
