package core

import (
	"errors"
	"sync"
	"time"
)

// Rejection reasons for job commands. The error text is surfaced verbatim
// in the error field of job_status telemetry.
var (
	ErrAlreadyPrinting = errors.New("AlreadyPrinting")
	ErrNoActiveJob     = errors.New("NoActiveJob")
	ErrAlreadyPaused   = errors.New("AlreadyPaused")
	ErrNotPaused       = errors.New("NotPaused")
)

// DefaultMaterial is loaded until a job or a config update says otherwise.
const DefaultMaterial = "PLA"

// Tick is the outcome of one progress advance.
type Tick struct {
	Progress  int
	Completed bool
	Skipped   bool
}

// StatusModel owns the device status and the active job. Its mutex is the
// single exclusion domain for printer state; every read and mutation goes
// through a method here.
type StatusModel struct {
	mu     sync.RWMutex
	status DeviceStatus
	job    *Job
}

func NewStatusModel(printerID string) *StatusModel {
	return &StatusModel{
		status: DeviceStatus{
			PrinterID:       printerID,
			State:           StateOffline,
			CurrentMaterial: DefaultMaterial,
		},
	}
}

// StartJob claims the single job slot. A start while any job is live is
// rejected with ErrAlreadyPrinting regardless of pause state. Starting out
// of the error state is allowed and clears the recorded error. An empty
// material falls back to the currently loaded one.
func (m *StatusModel) StartJob(jobID, fileURL, material string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.job != nil {
		return Job{}, ErrAlreadyPrinting
	}

	if material == "" {
		material = m.status.CurrentMaterial
	}

	m.job = &Job{
		ID:        jobID,
		FileURL:   fileURL,
		Material:  material,
		StartedAt: time.Now().UTC(),
	}
	m.status.State = StatePrinting
	m.status.CurrentMaterial = material
	m.status.ErrorMessage = ""
	m.touch()

	return *m.job, nil
}

func (m *StatusModel) PauseJob() (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.job == nil {
		return Job{}, ErrNoActiveJob
	}

	if m.job.Paused {
		return Job{}, ErrAlreadyPaused
	}

	m.job.Paused = true
	m.status.State = StatePaused
	m.touch()

	return *m.job, nil
}

func (m *StatusModel) ResumeJob() (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.job == nil {
		return Job{}, ErrNoActiveJob
	}

	if !m.job.Paused {
		return Job{}, ErrNotPaused
	}

	m.job.Paused = false
	m.status.State = StatePrinting
	m.touch()

	return *m.job, nil
}

// CancelJob clears the active job and returns its final snapshot, captured
// before the slot is emptied so callers can report the id and progress the
// job died with.
func (m *StatusModel) CancelJob() (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.job == nil {
		return Job{}, ErrNoActiveJob
	}

	job := *m.job
	m.job = nil
	m.status.State = StateOnline
	m.touch()

	return job, nil
}

// AdvanceProgress moves the job forward by delta. The caller names the job
// it believes it is driving; if the live job differs or none exists the
// tick is rejected with ErrNoActiveJob, which is how a stale runner learns
// its job is gone. Paused jobs skip the advance. Progress is clamped to
// [0,100]; reaching 100 completes the job, empties the slot and puts the
// device back online.
func (m *StatusModel) AdvanceProgress(jobID string, delta int) (Tick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.job == nil || m.job.ID != jobID {
		return Tick{}, ErrNoActiveJob
	}

	if m.job.Paused {
		return Tick{Progress: m.job.Progress, Skipped: true}, nil
	}

	p := m.job.Progress + delta
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	m.job.Progress = p
	m.touch()

	if p == 100 {
		m.job = nil
		m.status.State = StateOnline
		return Tick{Progress: 100, Completed: true}, nil
	}

	return Tick{Progress: p}, nil
}

// RecordError moves the device into the error state, clearing any active
// job. The cleared job and whether one existed are returned so the caller
// can report its failure.
func (m *StatusModel) RecordError(msg string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var job Job
	had := false
	if m.job != nil {
		job = *m.job
		m.job = nil
		had = true
	}

	m.status.State = StateError
	m.status.ErrorMessage = msg
	m.touch()

	return job, had
}

// SetOnline marks the device reachable and clears any recorded error. It is
// a no-op while a job is live; connect and error acknowledgment both happen
// with the job slot empty.
func (m *StatusModel) SetOnline() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.job != nil {
		return
	}

	m.status.State = StateOnline
	m.status.ErrorMessage = ""
	m.touch()
}

// SetOffline marks the device gone, abandoning any job still in the slot.
func (m *StatusModel) SetOffline() (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var job Job
	had := false
	if m.job != nil {
		job = *m.job
		m.job = nil
		had = true
	}

	m.status.State = StateOffline
	m.touch()

	return job, had
}

func (m *StatusModel) SetMaterial(material string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.status.CurrentMaterial = material
	m.touch()
}

func (m *StatusModel) SetTelemetry(temperatureC, materialLevel float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.status.TemperatureC = temperatureC
	m.status.MaterialLevel = materialLevel
	m.touch()
}

// Snapshot returns a copy of the current status, including a copy of the
// active job if one exists.
func (m *StatusModel) Snapshot() DeviceStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := m.status
	if m.job != nil {
		job := *m.job
		st.Job = &job
	}
	return st
}

func (m *StatusModel) touch() {
	m.status.LastSeen = time.Now().UTC()
}
