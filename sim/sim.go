// Package sim provides simulated drivers so the rig can be exercised
// without hardware.
package sim

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// laserWavelength is the HeNe line in millimeters of mirror travel.
	laserWavelength = 633e-6
	// fullScale is the simulated detector's 16-bit ADC range.
	fullScale = 1<<16 - 1
	// settlePoll is how often WaitForStop re-checks the stage.
	settlePoll = 5 * time.Millisecond
)

// Rig couples a simulated stage and detector. The stage integrates its
// velocity limit toward the commanded target; the detector synthesizes
// an interference fringe from the simulated mirror position.
type Rig struct {
	mu       sync.Mutex
	position float64 // mm
	target   float64
	speed    float64 // mm/s
	moving   bool
	enabled  bool
	gain     int
	last     time.Time
}

func NewRig() *Rig {
	return &Rig{speed: 100, last: time.Now()}
}

// step advances the simulated stage. Callers hold r.mu.
func (r *Rig) step() {
	now := time.Now()
	dt := now.Sub(r.last).Seconds()
	r.last = now
	if !r.moving {
		return
	}
	delta := r.target - r.position
	maxStep := r.speed * dt
	if math.Abs(delta) <= maxStep {
		r.position = r.target
		r.moving = false
		return
	}
	if delta > 0 {
		r.position += maxStep
	} else {
		r.position -= maxStep
	}
}

// intensity returns the raw detector reading for the current mirror
// position: a two-beam interference fringe plus photodiode noise.
func (r *Rig) intensity() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.step()
	v := (1 + math.Cos(4*math.Pi*r.position/laserWavelength)) / 2
	v += (rand.Float64() - 0.5) / 256
	raw := int(v * fullScale)
	if raw < 0 {
		raw = 0
	} else if raw > fullScale {
		raw = fullScale
	}
	return raw
}

// Motor returns the stage driver.
func (r *Rig) Motor() *Motor {
	return &Motor{rig: r}
}

// Detector returns the detector driver.
func (r *Rig) Detector() *Detector {
	return &Detector{rig: r}
}

// Motor simulates a KBD101-style stage controller.
type Motor struct {
	rig *Rig
}

func (m *Motor) EnableChannel(enabled bool) error {
	m.rig.mu.Lock()
	m.rig.enabled = enabled
	m.rig.mu.Unlock()
	return nil
}

func (m *Motor) Home(force, sync bool) error {
	m.rig.mu.Lock()
	m.rig.step()
	m.rig.target = 0
	m.rig.moving = true
	m.rig.mu.Unlock()
	return nil
}

func (m *Motor) Stop() error {
	m.rig.mu.Lock()
	m.rig.step()
	m.rig.moving = false
	m.rig.mu.Unlock()
	return nil
}

func (m *Motor) GetPosition() (float64, error) {
	m.rig.mu.Lock()
	defer m.rig.mu.Unlock()
	m.rig.step()
	return m.rig.position, nil
}

func (m *Motor) MoveTo(position float64) error {
	m.rig.mu.Lock()
	m.rig.step()
	m.rig.target = position
	m.rig.moving = true
	m.rig.mu.Unlock()
	return nil
}

func (m *Motor) SetupVelocity(maxVelocity float64, scale bool) error {
	m.rig.mu.Lock()
	m.rig.speed = maxVelocity
	m.rig.mu.Unlock()
	return nil
}

func (m *Motor) GetVelocity() (float64, error) {
	m.rig.mu.Lock()
	defer m.rig.mu.Unlock()
	return m.rig.speed, nil
}

func (m *Motor) WaitForStop() error {
	for {
		m.rig.mu.Lock()
		m.rig.step()
		moving := m.rig.moving
		m.rig.mu.Unlock()
		if !moving {
			return nil
		}
		time.Sleep(settlePoll)
	}
}

// Detector simulates the photodiode firmware's command set.
type Detector struct {
	rig *Rig
}

func (d *Detector) Identity() (string, error) {
	return "SIM_DEVICE,PD100,SN0001,1.0", nil
}

func (d *Detector) Ask(command string) (string, error) {
	switch command {
	case "det:gain?":
		d.rig.mu.Lock()
		defer d.rig.mu.Unlock()
		return strconv.Itoa(d.rig.gain), nil
	case "det:meas?":
		return strconv.Itoa(d.rig.intensity()), nil
	}
	return "", fmt.Errorf("unknown command %q", command)
}

func (d *Detector) Write(command string) error {
	fields := strings.Fields(command)
	if len(fields) == 2 && fields[0] == "det:gain" {
		gain, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("bad gain %q: %v", fields[1], err)
		}
		d.rig.mu.Lock()
		d.rig.gain = gain
		d.rig.mu.Unlock()
		return nil
	}
	return fmt.Errorf("unknown command %q", command)
}
