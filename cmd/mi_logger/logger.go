// Binary mi_logger subscribes to the mi_server status websocket and
// records every update in InfluxDB for later analysis.
package main

import (
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
)

// Status mirrors the JSON that mi_server pushes on every new sample.
type Status struct {
	MotorPosition     float64 `json:"motor_position"`
	DetectorIntensity float64 `json:"detector_intensity"`
}

func statusFields(status Status) map[string]interface{} {
	return map[string]interface{}{
		"motor_position":     status.MotorPosition,
		"detector_intensity": status.DetectorIntensity,
	}
}

func main() {
	server := os.Getenv("INFLUX_SERVER")
	if server == "" {
		server = "http://localhost:9999"
	}
	client := influxdb2.NewClient(server, os.Getenv("INFLUX_TOKEN"))
	defer client.Close()

	// Points queue asynchronously; failures surface on the errors
	// channel rather than per write.
	writeApi := client.WriteApi("opticslab", "interferometer.raw")
	defer writeApi.Close()
	go func() {
		for err := range writeApi.Errors() {
			log.Printf("write error: %v", err)
		}
	}()

	// Redial whenever the server goes away.
	for {
		if err := logData(writeApi); err != nil {
			log.Print(err)
		}
		time.Sleep(1 * time.Second)
	}
}

func logData(writeApi api.WriteApi) error {
	url := os.Getenv("MI_ADDRESS")
	if url == "" {
		url = "ws://localhost:8502/api/ws"
	}
	defer writeApi.Flush()
	var dialer websocket.Dialer
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	for {
		var status Status
		if err := conn.ReadJSON(&status); err != nil {
			return err
		}
		writeApi.WritePoint(influxdb2.NewPoint("interferometer.status",
			nil, statusFields(status), time.Now()))
	}
}
