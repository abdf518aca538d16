// Package export writes recorded samples in the tab-separated layout
// understood by the downstream analysis scripts.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/opticslab/mi_interface/telemetry"
)

var header = []string{"motor_time", "motor_position", "detector_time", "detector_intensity"}

// missing marks cells past the end of the shorter series.
const missing = "null"

// WriteTSV writes both sample series side by side. The two series poll
// independently and are usually different lengths, so rows are zipped
// to the longer one and short columns are padded.
func WriteTSV(w io.Writer, motor, detector []telemetry.Sample) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(header); err != nil {
		return err
	}
	n := len(motor)
	if len(detector) > n {
		n = len(detector)
	}
	for i := 0; i < n; i++ {
		row := []string{missing, missing, missing, missing}
		if i < len(motor) {
			row[0] = formatFloat(motor[i].Time)
			row[1] = formatFloat(motor[i].Value)
		}
		if i < len(detector) {
			row[2] = formatFloat(detector[i].Time)
			row[3] = formatFloat(detector[i].Value)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
