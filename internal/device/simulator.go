// Package device contains printer device backends. The simulator stands in
// for real printer firmware so the agent can run end to end on a bench with
// no hardware attached.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

const (
	// ambientTemperature is where the hotend settles with the heater off.
	ambientTemperature = 22.0
	// approachRate is the fraction of the remaining temperature gap closed
	// per telemetry read.
	approachRate = 0.25
	// maxSafeTemperature is the firmware thermal cutoff.
	maxSafeTemperature = 300.0
	// printTargetTemperature is the hotend target while a job runs.
	printTargetTemperature = 200.0
	// drainPerRead is the material consumed per telemetry read while
	// actively printing.
	drainPerRead = 0.2
)

// ErrSpoolEmpty is returned by Begin when no material remains.
var ErrSpoolEmpty = errors.New("material spool empty")

// Simulator is an in-memory printer. Temperature converges toward the
// current target on every telemetry read and material drains while a print
// is active, so long-running jobs produce plausible numbers without any
// real I/O.
type Simulator struct {
	mu       sync.Mutex
	printing bool
	paused   bool
	temp     float64
	target   float64
	level    float64
	fault    error
}

// NewSimulator returns a simulator at ambient temperature with a full spool.
func NewSimulator() *Simulator {
	return &Simulator{
		temp:  ambientTemperature,
		level: 100,
	}
}

// Begin starts heating for a new print. A job already in progress is simply
// replaced; the agent enforces the single-job rule before calling here.
func (s *Simulator) Begin(ctx context.Context, filePath, material string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fault != nil {
		return s.fault
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.level <= 0 {
		return ErrSpoolEmpty
	}
	s.printing = true
	s.paused = false
	s.target = printTargetTemperature
	return nil
}

// Pause holds the print. The hotend stays at target so resume is immediate.
func (s *Simulator) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fault != nil {
		return s.fault
	}
	s.paused = true
	return nil
}

// Resume releases a paused print.
func (s *Simulator) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fault != nil {
		return s.fault
	}
	s.paused = false
	return nil
}

// Cancel aborts the print and starts cooling down.
func (s *Simulator) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fault != nil {
		return s.fault
	}
	s.stopLocked()
	return nil
}

// Complete marks the print finished and starts cooling down.
func (s *Simulator) Complete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fault != nil {
		return s.fault
	}
	s.stopLocked()
	return nil
}

// Home re-homes the axes. The simulator has no geometry, so this only
// checks for an injected fault.
func (s *Simulator) Home() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault
}

// SetTemperature overrides the hotend target. Targets beyond the thermal
// cutoff are rejected the same way firmware would reject them.
func (s *Simulator) SetTemperature(celsius float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fault != nil {
		return s.fault
	}
	if celsius < 0 || celsius > maxSafeTemperature {
		return fmt.Errorf("target %.1fC outside safe range 0-%.0fC", celsius, maxSafeTemperature)
	}
	s.target = celsius
	return nil
}

// ReadTelemetry advances the thermal model one step and returns the current
// hotend temperature and remaining material percentage.
func (s *Simulator) ReadTelemetry() (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fault != nil {
		return 0, 0, s.fault
	}
	goal := s.target
	if goal <= 0 {
		goal = ambientTemperature
	}
	s.temp += (goal - s.temp) * approachRate
	if s.printing && !s.paused {
		s.level -= drainPerRead
		if s.level < 0 {
			s.level = 0
		}
	}
	return s.temp, s.level, nil
}

// Fail injects a sticky fault. Every subsequent call returns err until
// Clear. Tests use this to drive the device-failure paths.
func (s *Simulator) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = err
}

// Clear removes an injected fault.
func (s *Simulator) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = nil
}

func (s *Simulator) stopLocked() {
	s.printing = false
	s.paused = false
	s.target = 0
}
