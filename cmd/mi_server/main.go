// Binary mi_server exposes the interferometer rig over HTTP: live
// status over a websocket, control commands, and TSV export of the
// recorded samples.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/opticslab/mi_interface/detector"
	"github.com/opticslab/mi_interface/motor"
	"github.com/opticslab/mi_interface/scpi"
	"github.com/opticslab/mi_interface/sim"
)

var (
	listenAddr   = flag.String("listen", "127.0.0.1:8502", "address to listen on")
	motorGlob    = flag.String("motor_glob", motor.DefaultPathGlob, "motor serial device pattern")
	detectorGlob = flag.String("detector_glob", detector.DefaultPathGlob, "detector serial device pattern")
	fakeDevices  = flag.Bool("fake_devices", false, "use simulated devices instead of real hardware")
)

// openMotor is the production motor factory.
// TODO: wrap the Thorlabs APT driver once its Go bindings land.
func openMotor(path string) (motor.Driver, error) {
	return nil, fmt.Errorf("no motor driver built in for %q; run with -fake_devices to simulate", path)
}

func main() {
	flag.Parse()
	ctx := context.Background()

	s := NewServer()

	motorCfg := motor.Config{PathGlob: *motorGlob, Open: openMotor}
	detectorCfg := detector.Config{
		PathGlob: *detectorGlob,
		Open: func(path string) (detector.Driver, error) {
			return scpi.Open(path, detector.Baud, detector.Timeout)
		},
	}
	if *fakeDevices {
		rig := sim.NewRig()
		// The pattern matches /dev/null, so discovery still runs.
		motorCfg.PathGlob = "/dev/nul?"
		motorCfg.Open = func(string) (motor.Driver, error) { return rig.Motor(), nil }
		detectorCfg.PathGlob = "/dev/nul?"
		detectorCfg.Open = func(string) (detector.Driver, error) { return rig.Detector(), nil }
	}

	m, err := motor.Connect(ctx, motorCfg, s.motorSample)
	if err != nil {
		log.Fatal(err)
	}
	d, err := detector.Connect(ctx, detectorCfg, s.detectorSample)
	if err != nil {
		log.Fatal(err)
	}
	s.SetDevices(m, d)

	r := mux.NewRouter()
	r.HandleFunc("/api/status", s.StatusHandler)
	r.HandleFunc("/api/ws", s.StatusSocketHandler)
	r.HandleFunc("/api/data.tsv", s.ExportHandler)
	srv := &http.Server{
		Handler:      r,
		Addr:         *listenAddr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-ctx.Done()
		return srv.Close()
	})
	log.Fatal(g.Wait())
}
