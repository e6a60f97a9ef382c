package core

import (
	"context"
	"time"
)

// TopicNamespace is the root segment of every MQTT topic the agent touches:
// 3dprinter/{printer_id}/{suffix}.
const TopicNamespace = "3dprinter"

// Subscribed topic suffixes.
const (
	TopicJobs     = "jobs"
	TopicCommands = "commands"
	TopicConfig   = "config"
)

// Published topic suffixes.
const (
	TopicStatus    = "status"
	TopicJobStatus = "job_status"
)

// DeviceState is the printer lifecycle state.
type DeviceState string

const (
	StateOffline  DeviceState = "offline"
	StateOnline   DeviceState = "online"
	StatePrinting DeviceState = "printing"
	StatePaused   DeviceState = "paused"
	StateError    DeviceState = "error"
)

// JobEventStatus is the status field of a job_status telemetry event.
type JobEventStatus string

const (
	JobPrinting  JobEventStatus = "printing"
	JobCompleted JobEventStatus = "completed"
	JobCancelled JobEventStatus = "cancelled"
	JobFailed    JobEventStatus = "failed"
)

// Job is the single active print job. At most one exists at a time.
type Job struct {
	ID        string
	FileURL   string
	Material  string
	Progress  int
	Paused    bool
	StartedAt time.Time
}

// DeviceStatus is the printer's reported condition. Snapshot copies are
// handed to telemetry and the HTTP API; the live value is only mutated
// through StatusModel.
type DeviceStatus struct {
	PrinterID       string
	State           DeviceState
	TemperatureC    float64
	MaterialLevel   float64
	CurrentMaterial string
	ErrorMessage    string
	LastSeen        time.Time
	Job             *Job
}

// Publisher delivers telemetry events. Implementations must never block the
// caller or surface transport failures to it.
type Publisher interface {
	PublishStatus(st DeviceStatus)
	PublishJobStatus(jobID string, status JobEventStatus, progress int, errMsg string)
}

// DeviceController drives the physical (or simulated) printer. Begin
// through Complete follow the print lifecycle; Cancel also doubles as the
// abort used when a started job has to be unwound.
type DeviceController interface {
	Begin(ctx context.Context, filePath, material string) error
	Pause() error
	Resume() error
	Cancel() error
	Complete() error
	Home() error
	SetTemperature(celsius float64) error

	// ReadTelemetry returns current nozzle temperature and material level.
	// An error is treated as a device fault.
	ReadTelemetry() (temperatureC, materialLevel float64, err error)
}

// FileFetcher retrieves a print file and returns its local path.
type FileFetcher interface {
	Fetch(ctx context.Context, fileURL string) (string, error)
}

// JobHistory records job lifecycle events for the local history store.
type JobHistory interface {
	RecordJobEvent(jobID string, status JobEventStatus, progress int, errMsg string) error
}

// MessageHandler receives raw messages from a subscription.
type MessageHandler func(topic string, payload []byte)

// Transport is the inbound side of the MQTT connection as the agent sees it.
type Transport interface {
	Subscribe(topic string, handler MessageHandler) error
}
