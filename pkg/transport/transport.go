// Package transport carries the Command Boundary's G-code lines over a
// physical link. A Session wraps any Port (a serial connection, or a
// test double over a bytes.Buffer) in a newline-delimited read/dispatch/
// write loop: each incoming line is parsed with gcode.Parse, handed to a
// gcode.Dispatcher, and answered with the dispatcher's Result lines
// followed by "ok", mirroring the line-at-a-time acknowledgement style
// spec.md 6's status-line prefixes assume a host-side terminal expects.
package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/tarm/serial"

	"github.com/itohio/deltacal/pkg/gcode"
)

// Port is the minimal capability a Session needs from the physical
// link: io.Reader + io.Writer, with Close left out so callers that
// don't own the underlying port (a pipe end in tests) aren't forced to
// implement it.
type Port interface {
	io.Reader
	io.Writer
}

// Config names a physical serial port to dial.
type Config struct {
	Name        string
	BaudRate    int
	ReadTimeout float32 // seconds; 0 disables the read deadline
}

// Open dials a physical serial port via tarm/serial.
func Open(cfg Config) (io.ReadWriteCloser, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Name,
		Baud:        cfg.BaudRate,
		ReadTimeout: time.Duration(cfg.ReadTimeout * float32(time.Second)),
	})
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", cfg.Name, err)
	}
	return port, nil
}

// Dispatcher is the subset of gcode.Dispatcher a Session drives; kept
// narrow so Session can be exercised against a fake in tests without
// constructing a full calibration stack.
type Dispatcher interface {
	Handle(cmd gcode.Command) (gcode.Result, error)
}

// Session runs the read-dispatch-write loop over one Port.
type Session struct {
	port       Port
	dispatcher Dispatcher
	log        zerolog.Logger
}

// New builds a Session over an already-open port.
func New(port Port, dispatcher Dispatcher, log zerolog.Logger) *Session {
	return &Session{port: port, dispatcher: dispatcher, log: log}
}

// Run scans newline-delimited lines off the port until ctx is
// cancelled or the port returns an error (typically io.EOF on
// disconnect). Cancellation is checked between reads rather than
// threaded through bufio.Scanner itself, which has none.
func (s *Session) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.port)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		if line == "" {
			continue
		}

		cmd := gcode.Parse(line)
		res, err := s.dispatcher.Handle(cmd)
		if err != nil {
			s.log.Warn().Str("code", cmd.Code).Err(err).Msg("gcode command failed")
			if writeErr := s.writeLine(fmt.Sprintf("error: %v", err)); writeErr != nil {
				return writeErr
			}
			continue
		}

		for _, l := range res.Lines {
			if writeErr := s.writeLine(l); writeErr != nil {
				return writeErr
			}
		}
		if writeErr := s.writeLine("ok"); writeErr != nil {
			return writeErr
		}
	}
	return scanner.Err()
}

func (s *Session) writeLine(line string) error {
	_, err := s.port.Write([]byte(line + "\n"))
	return err
}
