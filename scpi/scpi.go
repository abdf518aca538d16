// Package scpi implements the line-oriented query/response protocol
// spoken by the detector firmware over a serial link.
package scpi

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// Device is a line-oriented serial device. Commands are terminated with
// a newline; responses are single lines read back within the link's
// fixed timeout. One command/response transaction is in flight at a
// time.
type Device struct {
	mu   sync.Mutex
	conn io.ReadWriteCloser
	r    *bufio.Reader
}

// Open connects to the device node at path.
func Open(path string, baud int, timeout time.Duration) (*Device, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        path,
		Baud:        baud,
		ReadTimeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", path, err)
	}
	return New(port), nil
}

// New wraps an existing connection. Tests use it with an in-memory pipe.
func New(conn io.ReadWriteCloser) *Device {
	return &Device{conn: conn, r: bufio.NewReader(conn)}
}

func (d *Device) Close() error {
	return d.conn.Close()
}

// Write sends a command that expects no response.
func (d *Device) Write(command string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(command)
}

func (d *Device) write(command string) error {
	if _, err := d.conn.Write([]byte(command + "\n")); err != nil {
		return fmt.Errorf("writing %q: %w", command, err)
	}
	return nil
}

// Ask sends a query and returns the response line with its terminator
// stripped.
func (d *Device) Ask(command string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.write(command); err != nil {
		return "", err
	}
	line, err := d.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading response to %q: %w", command, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Identity queries the device identification string.
func (d *Device) Identity() (string, error) {
	return d.Ask("*IDN?")
}
