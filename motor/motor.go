// Package motor controls the stage that carries the moving mirror.
package motor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/opticslab/mi_interface/internal/discover"
	"github.com/opticslab/mi_interface/telemetry"
)

// Driver is the capability interface for a Thorlabs-style motion
// controller. The production build satisfies it with the vendor APT
// driver; sim.Motor satisfies it for testing.
type Driver interface {
	EnableChannel(enabled bool) error
	Home(force, sync bool) error
	Stop() error
	GetPosition() (float64, error)
	MoveTo(position float64) error
	SetupVelocity(maxVelocity float64, scale bool) error
	GetVelocity() (float64, error)
	WaitForStop() error
}

const (
	// DefaultPathGlob matches the USB serial node exposed by the stage
	// controller.
	DefaultPathGlob = "/dev/ttyUSB?"
	// MaxPosition is the stage travel in millimeters.
	MaxPosition = 50.0
	// MaxSpeed is the stage velocity limit in millimeters/second.
	MaxSpeed = 100.0
	// DefaultInterval is the worker cadence shared with the detector.
	DefaultInterval = time.Second / 120

	// speedEpsilon is the allowed discrepancy between the configured and
	// read-back velocity limit, in millimeters/second.
	speedEpsilon  = 0.1
	speedAttempts = 3
)

// ErrNoSamples is returned by Position before the worker has produced
// any position telemetry. Seeing it means the caller raced construction.
var ErrNoSamples = errors.New("motor: no position samples yet")

type commandKind int

const (
	cmdEnable commandKind = iota
	cmdHome
	cmdStop
	cmdSetSpeed
	cmdMove
)

// command is one queued unit of work for the worker. Commands execute
// in exactly the order they were enqueued.
type command struct {
	kind  commandKind
	value float64
}

// Config selects the device and injects the driver factory.
type Config struct {
	// PathGlob overrides DefaultPathGlob.
	PathGlob string
	// Open opens the driver for the discovered device node.
	Open func(path string) (Driver, error)
	// Interval overrides DefaultInterval.
	Interval time.Duration
}

// Motor owns the stage's device link. All device access is funneled
// through a single background worker; only Wait talks to the link from
// the caller's goroutine, which the vendor driver serializes internally.
type Motor struct {
	drv      Driver
	interval time.Duration
	onSample telemetry.SampleCallback
	data     *telemetry.Log

	mu           sync.Mutex
	queue        []command
	currentSpeed float64
}

// Connect discovers the stage, opens its driver, and starts the
// background worker. Homing is enqueued rather than performed inline, so
// Connect returns before the stage reaches its reference position.
func Connect(ctx context.Context, cfg Config, onSample telemetry.SampleCallback) (*Motor, error) {
	glob := cfg.PathGlob
	if glob == "" {
		glob = DefaultPathGlob
	}
	path, err := discover.First(glob)
	if err != nil {
		return nil, fmt.Errorf("motor: %w", err)
	}
	drv, err := cfg.Open(path)
	if err != nil {
		return nil, fmt.Errorf("motor: opening %q: %w", path, err)
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	m := &Motor{
		drv:      drv,
		interval: interval,
		onSample: onSample,
		data:     &telemetry.Log{},
	}
	m.enqueue(
		command{kind: cmdEnable},
		command{kind: cmdSetSpeed, value: MaxSpeed},
		command{kind: cmdHome},
	)
	go m.run(ctx)
	return m, nil
}

// Data returns the recorded position series.
func (m *Motor) Data() *telemetry.Log {
	return m.data
}

func (m *Motor) enqueue(cmds ...command) {
	m.mu.Lock()
	m.queue = append(m.queue, cmds...)
	m.mu.Unlock()
}

// SetPosition moves the mirror to position millimeters at full speed.
func (m *Motor) SetPosition(position float64) {
	m.SetPositionSpeed(position, MaxSpeed)
}

// SetPositionSpeed moves the mirror to position millimeters at speed
// millimeters/second. A speed change is only enqueued when it differs
// from the last configured speed.
func (m *Motor) SetPositionSpeed(position, speed float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if speed != m.currentSpeed {
		m.queue = append(m.queue, command{kind: cmdSetSpeed, value: speed})
	}
	m.queue = append(m.queue, command{kind: cmdMove, value: position})
}

// Home drives the stage to its reference position.
func (m *Motor) Home() {
	m.enqueue(command{kind: cmdEnable}, command{kind: cmdHome})
}

// Stop aborts any in-flight motion. The velocity limit is restored
// afterwards so the next move is not stuck at an interrupted speed.
// Commands already dequeued by the worker still reach the device first.
func (m *Motor) Stop() {
	m.enqueue(command{kind: cmdStop}, command{kind: cmdSetSpeed, value: MaxSpeed})
}

// Wait blocks until the stage reports that motion has finished. A single
// transient driver error is tolerated by pausing and retrying once.
func (m *Motor) Wait() error {
	time.Sleep(2 * m.interval)
	if err := m.drv.WaitForStop(); err != nil {
		time.Sleep(2 * m.interval)
		if err := m.drv.WaitForStop(); err != nil {
			return fmt.Errorf("motor: waiting for stop: %w", err)
		}
	}
	return nil
}

// Position returns the most recently polled mirror position. If no
// sample exists yet it waits two polling intervals and retries once
// before giving up with ErrNoSamples.
func (m *Motor) Position() (float64, error) {
	if s, ok := m.data.Last(); ok {
		return s.Value, nil
	}
	time.Sleep(2 * m.interval)
	if s, ok := m.data.Last(); ok {
		return s.Value, nil
	}
	return 0, ErrNoSamples
}

// run alternates between polling position and executing one queued
// command, so that under a continuous command stream the position
// telemetry never starves, and vice versa. Steady-state errors are
// logged and dropped; the worker only exits with its context.
func (m *Motor) run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	pollNext := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if pollNext {
			m.pollPosition()
		} else if cmd, ok := m.dequeue(); ok {
			if err := m.execute(cmd); err != nil {
				log.Printf("motor: %v", err)
			}
		}
		pollNext = !pollNext
	}
}

func (m *Motor) pollPosition() {
	position, err := m.drv.GetPosition()
	if err != nil {
		log.Printf("motor: reading position: %v", err)
		return
	}
	m.data.Append(telemetry.Now(), position)
	if m.onSample != nil {
		m.onSample(position)
	}
}

func (m *Motor) dequeue() (command, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return command{}, false
	}
	cmd := m.queue[0]
	m.queue = m.queue[1:]
	return cmd, true
}

func (m *Motor) execute(cmd command) error {
	switch cmd.kind {
	case cmdEnable:
		return m.drv.EnableChannel(true)
	case cmdHome:
		return m.drv.Home(true, false)
	case cmdStop:
		return m.drv.Stop()
	case cmdMove:
		return m.drv.MoveTo(cmd.value)
	case cmdSetSpeed:
		m.setSpeed(cmd.value)
		return nil
	}
	return fmt.Errorf("unknown command %d", cmd.kind)
}

// setSpeed writes the velocity limit and reads it back to verify it
// stuck, retrying a bounded number of times. After the last attempt the
// configuration is accepted best-effort.
func (m *Motor) setSpeed(speed float64) {
	m.mu.Lock()
	m.currentSpeed = speed
	m.mu.Unlock()
	var err error
	for attempt := 0; attempt < speedAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(m.interval)
		}
		if err = m.drv.SetupVelocity(speed, true); err != nil {
			continue
		}
		var actual float64
		if actual, err = m.drv.GetVelocity(); err != nil {
			continue
		}
		if math.Abs(actual-speed) > speedEpsilon {
			err = fmt.Errorf("configured %g mm/s but device reports %g mm/s", speed, actual)
			continue
		}
		return
	}
	log.Printf("motor: speed left unverified: %v", err)
}
