// Package telemetry publishes status and job_status events to the cloud
// topics. Publishing is decoupled from the callers through a bounded queue:
// a full queue drops the event with a warning and a transport failure is
// logged, never surfaced.
package telemetry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/orrn/printerd/internal/core"
)

const defaultQueueSize = 64

// Transport is the outbound side of the MQTT connection.
type Transport interface {
	Publish(topic string, payload []byte) error
}

// StatusEvent is the wire shape of a status topic message.
type StatusEvent struct {
	PrinterID       string  `json:"printer_id"`
	Status          string  `json:"status"`
	Temperature     float64 `json:"temperature"`
	MaterialLevel   float64 `json:"material_level"`
	CurrentMaterial string  `json:"current_material"`
	ErrorMessage    string  `json:"error_message"`
	LastSeen        string  `json:"last_seen"`
	Timestamp       string  `json:"timestamp"`
}

// JobStatusEvent is the wire shape of a job_status topic message.
type JobStatusEvent struct {
	JobID     string `json:"job_id"`
	PrinterID string `json:"printer_id"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

type task struct {
	topic   string
	payload []byte
}

// Publisher satisfies core.Publisher. One worker goroutine delivers queued
// events in order; Stop drains whatever is still queued so the final
// offline status of a shutdown makes it out.
type Publisher struct {
	transport Transport
	log       *slog.Logger
	printerID string

	queue  chan task
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewPublisher(transport Transport, printerID string, queueSize int, log *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	return &Publisher{
		transport: transport,
		log:       log,
		printerID: printerID,
		queue:     make(chan task, queueSize),
		stopCh:    make(chan struct{}),
	}
}

func (p *Publisher) Start() {
	p.wg.Add(1)
	go p.worker()
}

// Stop halts the worker after draining queued events.
func (p *Publisher) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Publisher) PublishStatus(st core.DeviceStatus) {
	ev := StatusEvent{
		PrinterID:       st.PrinterID,
		Status:          string(st.State),
		Temperature:     st.TemperatureC,
		MaterialLevel:   st.MaterialLevel,
		CurrentMaterial: st.CurrentMaterial,
		ErrorMessage:    st.ErrorMessage,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}
	if !st.LastSeen.IsZero() {
		ev.LastSeen = st.LastSeen.UTC().Format(time.RFC3339)
	}

	p.enqueue(core.TopicStatus, ev)
}

func (p *Publisher) PublishJobStatus(jobID string, status core.JobEventStatus, progress int, errMsg string) {
	ev := JobStatusEvent{
		JobID:     jobID,
		PrinterID: p.printerID,
		Status:    string(status),
		Progress:  progress,
		Error:     errMsg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	p.enqueue(core.TopicJobStatus, ev)
}

func (p *Publisher) enqueue(suffix string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		p.log.Error("failed to encode telemetry event", "topic_suffix", suffix, "error", err)
		return
	}

	t := task{
		topic:   fmt.Sprintf("%s/%s/%s", core.TopicNamespace, p.printerID, suffix),
		payload: payload,
	}

	select {
	case <-p.stopCh:
		p.log.Warn("publisher stopped, dropping telemetry event", "topic", t.topic)
		return
	default:
	}

	select {
	case p.queue <- t:
	default:
		p.log.Warn("telemetry queue full, dropping event", "topic", t.topic)
	}
}

func (p *Publisher) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			p.drain()
			return
		case t := <-p.queue:
			p.send(t)
		}
	}
}

func (p *Publisher) drain() {
	for {
		select {
		case t := <-p.queue:
			p.send(t)
		default:
			return
		}
	}
}

func (p *Publisher) send(t task) {
	if err := p.transport.Publish(t.topic, t.payload); err != nil {
		p.log.Error("failed to publish telemetry", "topic", t.topic, "error", err)
	}
}
