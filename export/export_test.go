package export

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/opticslab/mi_interface/telemetry"
)

func TestWriteTSV(t *testing.T) {
	motor := []telemetry.Sample{
		{Time: 100.5, Value: 1.25},
		{Time: 101, Value: 2.5},
	}
	detector := []telemetry.Sample{
		{Time: 100.25, Value: 0.5},
	}

	var b strings.Builder
	if err := WriteTSV(&b, motor, detector); err != nil {
		t.Fatal(err)
	}

	want := strings.Join([]string{
		"motor_time\tmotor_position\tdetector_time\tdetector_intensity",
		"100.5\t1.25\t100.25\t0.5",
		"101\t2.5\tnull\tnull",
		"",
	}, "\n")
	if diff := cmp.Diff(want, b.String()); diff != "" {
		t.Errorf("TSV output (-want +got):\n%s", diff)
	}
}

func TestWriteTSVEmpty(t *testing.T) {
	var b strings.Builder
	if err := WriteTSV(&b, nil, nil); err != nil {
		t.Fatal(err)
	}
	want := "motor_time\tmotor_position\tdetector_time\tdetector_intensity\n"
	if got := b.String(); got != want {
		t.Errorf("TSV output = %q, want header only", got)
	}
}

func TestWriteTSVDetectorLonger(t *testing.T) {
	detector := []telemetry.Sample{
		{Time: 1, Value: 0.1},
		{Time: 2, Value: 0.2},
	}
	var b strings.Builder
	if err := WriteTSV(&b, nil, detector); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(b.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if lines[1] != "null\tnull\t1\t0.1" {
		t.Errorf("row = %q", lines[1])
	}
}
