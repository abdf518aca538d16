package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/opticslab/mi_interface/detector"
	"github.com/opticslab/mi_interface/export"
	"github.com/opticslab/mi_interface/motor"
)

// Status is the snapshot pushed to websocket clients on every new
// sample from either device.
type Status struct {
	MotorPosition     float64 `json:"motor_position"`
	DetectorIntensity float64 `json:"detector_intensity"`
}

type Server struct {
	mu sync.Mutex
	m  *motor.Motor
	d  *detector.Detector

	statusMu   sync.RWMutex
	statusCond *sync.Cond
	status     Status
}

func NewServer() *Server {
	s := &Server{}
	s.statusCond = sync.NewCond(s.statusMu.RLocker())
	return s
}

// SetDevices attaches the controllers once both have connected.
func (s *Server) SetDevices(m *motor.Motor, d *detector.Detector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = m
	s.d = d
}

func (s *Server) motorSample(value float64) {
	s.statusMu.Lock()
	s.status.MotorPosition = value
	s.statusCond.Broadcast()
	s.statusMu.Unlock()
}

func (s *Server) detectorSample(value float64) {
	s.statusMu.Lock()
	s.status.DetectorIntensity = value
	s.statusCond.Broadcast()
	s.statusMu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(status)
	if err != nil {
		log.Print(err)
		return
	}
	w.Write(data)
}

func (s *Server) ExportHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/tab-separated-values")
	if err := export.WriteTSV(w, s.m.Data().Snapshot(), s.d.Data().Snapshot()); err != nil {
		log.Printf("writing export: %v", err)
	}
}

// Command is one control message from a websocket client.
type Command struct {
	Command  string  `json:"command"`
	Position float64 `json:"position"`
	Speed    float64 `json:"speed"`
	Gain     int     `json:"gain"`
}

func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	// Read and process incoming messages
	go func() {
		for {
			var msg Command
			if err := conn.ReadJSON(&msg); err != nil {
				cancel()
				conn.Close()
				break
			}
			s.mu.Lock()
			switch msg.Command {
			case "set_position":
				position := msg.Position
				if position < 0 {
					position = 0
				} else if position > motor.MaxPosition {
					position = motor.MaxPosition
				}
				if msg.Speed > 0 {
					s.m.SetPositionSpeed(position, msg.Speed)
				} else {
					s.m.SetPosition(position)
				}
			case "home":
				s.m.Home()
			case "stop":
				s.m.Stop()
			case "set_gain":
				if err := s.d.SetGain(msg.Gain); err != nil {
					log.Print(err)
				}
			case "clear":
				s.m.Data().Clear()
				s.d.Data().Clear()
			}
			s.mu.Unlock()
		}
	}()

	send := func(status Status) {
		data, err := json.Marshal(status)
		if err != nil {
			log.Print(err)
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Print(err)
			return
		}
	}

	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	send(status)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.statusMu.RLock()
		s.statusCond.Wait()
		status := s.status
		s.statusMu.RUnlock()
		send(status)
	}
}
