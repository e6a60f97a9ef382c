package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

type publishedJobEvent struct {
	JobID    string
	Status   JobEventStatus
	Progress int
	Err      string
}

type fakePublisher struct {
	mu        sync.Mutex
	statuses  []DeviceStatus
	jobEvents []publishedJobEvent
}

func (p *fakePublisher) PublishStatus(st DeviceStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, st)
}

func (p *fakePublisher) PublishJobStatus(jobID string, status JobEventStatus, progress int, errMsg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobEvents = append(p.jobEvents, publishedJobEvent{jobID, status, progress, errMsg})
}

func (p *fakePublisher) JobEvents() []publishedJobEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedJobEvent, len(p.jobEvents))
	copy(out, p.jobEvents)
	return out
}

func (p *fakePublisher) Statuses() []DeviceStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]DeviceStatus, len(p.statuses))
	copy(out, p.statuses)
	return out
}

func (p *fakePublisher) lastJobEvent() (publishedJobEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.jobEvents) == 0 {
		return publishedJobEvent{}, false
	}
	return p.jobEvents[len(p.jobEvents)-1], true
}

func (p *fakePublisher) hasJobEvent(status JobEventStatus) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ev := range p.jobEvents {
		if ev.Status == status {
			return true
		}
	}
	return false
}

type fakeDevice struct {
	mu         sync.Mutex
	temp       float64
	level      float64
	readErr    error
	beginErr   error
	commandErr error

	begun     []string
	pauses    int
	resumes   int
	cancels   int
	completes int
	homes     int
	setTemps  []float64
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{temp: 24.0, level: 100.0}
}

func (d *fakeDevice) Begin(_ context.Context, filePath, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.beginErr != nil {
		return d.beginErr
	}
	d.begun = append(d.begun, filePath)
	return nil
}

func (d *fakeDevice) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.commandErr != nil {
		return d.commandErr
	}
	d.pauses++
	return nil
}

func (d *fakeDevice) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.commandErr != nil {
		return d.commandErr
	}
	d.resumes++
	return nil
}

func (d *fakeDevice) Cancel() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.commandErr != nil {
		return d.commandErr
	}
	d.cancels++
	return nil
}

func (d *fakeDevice) Complete() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.commandErr != nil {
		return d.commandErr
	}
	d.completes++
	return nil
}

func (d *fakeDevice) Home() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.commandErr != nil {
		return d.commandErr
	}
	d.homes++
	return nil
}

func (d *fakeDevice) SetTemperature(celsius float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.commandErr != nil {
		return d.commandErr
	}
	d.setTemps = append(d.setTemps, celsius)
	return nil
}

func (d *fakeDevice) ReadTelemetry() (float64, float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readErr != nil {
		return 0, 0, d.readErr
	}
	return d.temp, d.level, nil
}

func (d *fakeDevice) failReads(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readErr = err
}

func (d *fakeDevice) failBegin(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.beginErr = err
}

func (d *fakeDevice) failCommands(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commandErr = err
}

type historyEvent struct {
	JobID    string
	Status   JobEventStatus
	Progress int
	Err      string
}

type fakeHistory struct {
	mu     sync.Mutex
	events []historyEvent
}

func (h *fakeHistory) RecordJobEvent(jobID string, status JobEventStatus, progress int, errMsg string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, historyEvent{jobID, status, progress, errMsg})
	return nil
}

func (h *fakeHistory) Events() []historyEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]historyEvent, len(h.events))
	copy(out, h.events)
	return out
}

type fakeFetcher struct {
	mu    sync.Mutex
	path  string
	err   error
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, fileURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fileURL)
	if f.err != nil {
		return "", f.err
	}
	if f.path == "" {
		return "/tmp/prints/test.gcode", nil
	}
	return f.path, nil
}

type fakeTransport struct {
	mu       sync.Mutex
	handlers map[string]MessageHandler
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]MessageHandler)}
}

func (tr *fakeTransport) Subscribe(topic string, handler MessageHandler) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.handlers[topic] = handler
	return nil
}

func (tr *fakeTransport) deliver(t *testing.T, topic string, payload []byte) {
	t.Helper()
	tr.mu.Lock()
	handler, ok := tr.handlers[topic]
	tr.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription for topic %s", topic)
	}
	handler(topic, payload)
}
