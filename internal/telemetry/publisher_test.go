package telemetry

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/printerd/internal/core"
)

type capturingTransport struct {
	mu       sync.Mutex
	messages []message
	err      error
}

type message struct {
	topic   string
	payload []byte
}

func (tr *capturingTransport) Publish(topic string, payload []byte) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.err != nil {
		err := tr.err
		tr.err = nil
		return err
	}
	tr.messages = append(tr.messages, message{topic, payload})
	return nil
}

func (tr *capturingTransport) count() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.messages)
}

func (tr *capturingTransport) all() []message {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]message, len(tr.messages))
	copy(out, tr.messages)
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestPublisherStatusEvent(t *testing.T) {
	tr := &capturingTransport{}
	pub := NewPublisher(tr, "printer-001", 16, discardLogger())
	pub.Start()

	lastSeen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pub.PublishStatus(core.DeviceStatus{
		PrinterID:       "printer-001",
		State:           core.StatePrinting,
		TemperatureC:    205.5,
		MaterialLevel:   81.25,
		CurrentMaterial: "PETG",
		LastSeen:        lastSeen,
	})
	pub.Stop()

	msgs := tr.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "3dprinter/printer-001/status", msgs[0].topic)

	var ev StatusEvent
	require.NoError(t, json.Unmarshal(msgs[0].payload, &ev))
	assert.Equal(t, "printer-001", ev.PrinterID)
	assert.Equal(t, "printing", ev.Status)
	assert.Equal(t, 205.5, ev.Temperature)
	assert.Equal(t, 81.25, ev.MaterialLevel)
	assert.Equal(t, "PETG", ev.CurrentMaterial)
	assert.Empty(t, ev.ErrorMessage)
	assert.Equal(t, "2025-06-01T12:00:00Z", ev.LastSeen)
	assert.NotEmpty(t, ev.Timestamp)
}

func TestPublisherJobStatusEvent(t *testing.T) {
	tr := &capturingTransport{}
	pub := NewPublisher(tr, "printer-001", 16, discardLogger())
	pub.Start()

	pub.PublishJobStatus("job-9", core.JobFailed, 40, "AlreadyPrinting")
	pub.Stop()

	msgs := tr.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "3dprinter/printer-001/job_status", msgs[0].topic)

	var ev JobStatusEvent
	require.NoError(t, json.Unmarshal(msgs[0].payload, &ev))
	assert.Equal(t, "job-9", ev.JobID)
	assert.Equal(t, "printer-001", ev.PrinterID)
	assert.Equal(t, "failed", ev.Status)
	assert.Equal(t, 40, ev.Progress)
	assert.Equal(t, "AlreadyPrinting", ev.Error)
}

func TestPublisherPreservesOrder(t *testing.T) {
	tr := &capturingTransport{}
	pub := NewPublisher(tr, "printer-001", 64, discardLogger())
	pub.Start()

	for i := 0; i <= 50; i += 10 {
		pub.PublishJobStatus("job-1", core.JobPrinting, i, "")
	}
	pub.Stop()

	msgs := tr.all()
	require.Len(t, msgs, 6)
	for i, msg := range msgs {
		var ev JobStatusEvent
		require.NoError(t, json.Unmarshal(msg.payload, &ev))
		assert.Equal(t, i*10, ev.Progress)
	}
}

func TestPublisherDropsWhenQueueFull(t *testing.T) {
	tr := &capturingTransport{}
	pub := NewPublisher(tr, "printer-001", 2, discardLogger())
	// worker not started yet, the queue backs up

	pub.PublishJobStatus("job-1", core.JobPrinting, 10, "")
	pub.PublishJobStatus("job-1", core.JobPrinting, 20, "")
	pub.PublishJobStatus("job-1", core.JobPrinting, 30, "")

	pub.Start()
	pub.Stop()

	assert.Equal(t, 2, tr.count(), "third event is dropped, callers never block")
}

func TestPublisherSurvivesTransportFailure(t *testing.T) {
	tr := &capturingTransport{err: errors.New("connection reset")}
	pub := NewPublisher(tr, "printer-001", 16, discardLogger())
	pub.Start()

	pub.PublishJobStatus("job-1", core.JobPrinting, 10, "")
	pub.PublishJobStatus("job-1", core.JobPrinting, 20, "")
	pub.Stop()

	msgs := tr.all()
	require.Len(t, msgs, 1, "first publish failed, second still delivered")

	var ev JobStatusEvent
	require.NoError(t, json.Unmarshal(msgs[0].payload, &ev))
	assert.Equal(t, 20, ev.Progress)
}

func TestPublisherStopDrainsQueue(t *testing.T) {
	tr := &capturingTransport{}
	pub := NewPublisher(tr, "printer-001", 16, discardLogger())

	// enqueue before the worker runs, then stop immediately
	pub.PublishStatus(core.DeviceStatus{PrinterID: "printer-001", State: core.StateOffline})
	pub.Start()
	pub.Stop()

	require.Equal(t, 1, tr.count(), "queued events flush on stop")

	var ev StatusEvent
	require.NoError(t, json.Unmarshal(tr.all()[0].payload, &ev))
	assert.Equal(t, "offline", ev.Status)
}

func TestPublisherDropsAfterStop(t *testing.T) {
	tr := &capturingTransport{}
	pub := NewPublisher(tr, "printer-001", 16, discardLogger())
	pub.Start()
	pub.Stop()

	pub.PublishJobStatus("job-1", core.JobPrinting, 10, "")
	assert.Equal(t, 0, tr.count())
}
