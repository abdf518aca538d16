// Package detector controls the light-intensity detector.
package detector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/opticslab/mi_interface/internal/discover"
	"github.com/opticslab/mi_interface/telemetry"
)

// Driver is the capability interface for the detector's line-oriented
// query/response protocol. scpi.Device is the production implementation;
// sim.Detector satisfies it for testing.
type Driver interface {
	Identity() (string, error)
	Ask(command string) (string, error)
	Write(command string) error
}

const (
	// DefaultPathGlob matches the CDC-ACM node exposed by the detector.
	DefaultPathGlob = "/dev/ttyACM?"
	// Baud and Timeout are the detector firmware's fixed link parameters.
	Baud    = 115200
	Timeout = 50 * time.Millisecond
	// DefaultInterval is the polling cadence shared with the motor.
	DefaultInterval = time.Second / 120
	// MaxIntensity is the ADC full scale (16 bits). Intensity readings
	// are normalized against it to the range [0, 1].
	MaxIntensity = 1<<16 - 1
)

// ErrConnectionFailed is returned when the device opens but does not
// answer the identity query.
var ErrConnectionFailed = errors.New("connection failed")

// Config selects the device and injects the driver factory.
type Config struct {
	// PathGlob overrides DefaultPathGlob.
	PathGlob string
	// Open opens the driver for the discovered device node.
	Open func(path string) (Driver, error)
	// Interval overrides DefaultInterval.
	Interval time.Duration
}

// Detector owns the detector's device link. Accessors and the polling
// worker share one mutex so a command and a query never interleave
// mid-transaction.
type Detector struct {
	interval time.Duration
	onSample telemetry.SampleCallback
	data     *telemetry.Log

	mu  sync.Mutex
	drv Driver
}

// Connect discovers the detector, opens its driver, verifies the device
// answers an identity query, and starts the polling worker. A failed
// identity check is fatal and no worker is started.
func Connect(ctx context.Context, cfg Config, onSample telemetry.SampleCallback) (*Detector, error) {
	glob := cfg.PathGlob
	if glob == "" {
		glob = DefaultPathGlob
	}
	path, err := discover.First(glob)
	if err != nil {
		return nil, fmt.Errorf("detector: %w", err)
	}
	drv, err := cfg.Open(path)
	if err != nil {
		return nil, fmt.Errorf("detector: opening %q: %w", path, err)
	}
	id, err := drv.Identity()
	if err != nil {
		return nil, fmt.Errorf("detector: %w: identity: %v", ErrConnectionFailed, err)
	}
	if id == "" {
		return nil, fmt.Errorf("detector: %w: empty identity", ErrConnectionFailed)
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	d := &Detector{
		interval: interval,
		onSample: onSample,
		data:     &telemetry.Log{},
		drv:      drv,
	}
	go d.run(ctx)
	return d, nil
}

// Data returns the recorded intensity series.
func (d *Detector) Data() *telemetry.Log {
	return d.data
}

// Gain reads the amplification setting.
func (d *Detector) Gain() (int, error) {
	d.mu.Lock()
	resp, err := d.drv.Ask("det:gain?")
	d.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("detector: reading gain: %w", err)
	}
	gain, err := strconv.Atoi(resp)
	if err != nil {
		return 0, fmt.Errorf("detector: bad gain response %q: %v", resp, err)
	}
	return gain, nil
}

// SetGain writes the amplification setting.
func (d *Detector) SetGain(gain int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.drv.Write(fmt.Sprintf("det:gain %d", gain)); err != nil {
		return fmt.Errorf("detector: setting gain: %w", err)
	}
	return nil
}

// Intensity reads one measurement, normalized to [0, 1] of full scale.
func (d *Detector) Intensity() (float64, error) {
	d.mu.Lock()
	resp, err := d.drv.Ask("det:meas?")
	d.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("detector: reading intensity: %w", err)
	}
	raw, err := strconv.Atoi(resp)
	if err != nil {
		return 0, fmt.Errorf("detector: bad intensity response %q: %v", resp, err)
	}
	return float64(raw) / MaxIntensity, nil
}

// run polls intensity at a fixed cadence, recording each reading and
// notifying the callback. Failed reads are logged and skipped; the
// worker only exits with its context.
func (d *Detector) run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		intensity, err := d.Intensity()
		if err != nil {
			log.Printf("%v", err)
			continue
		}
		d.data.Append(telemetry.Now(), intensity)
		if d.onSample != nil {
			d.onSample(intensity)
		}
	}
}
