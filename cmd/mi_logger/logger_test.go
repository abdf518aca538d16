package main

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStatusFields(t *testing.T) {
	// The wire format is the server's status JSON; every field must
	// land in the point, named as the dashboard expects.
	var status Status
	payload := `{"motor_position": 12.5, "detector_intensity": 0.75}`
	if err := json.Unmarshal([]byte(payload), &status); err != nil {
		t.Fatal(err)
	}
	want := map[string]interface{}{
		"motor_position":     12.5,
		"detector_intensity": 0.75,
	}
	if diff := cmp.Diff(want, statusFields(status)); diff != "" {
		t.Errorf("point fields (-want +got):\n%s", diff)
	}
}
