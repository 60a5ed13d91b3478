package transport_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/deltacal/pkg/gcode"
	"github.com/itohio/deltacal/pkg/transport"
)

// fakePort is an in-memory Port: reads come from a preloaded buffer,
// writes accumulate for assertions.
type fakePort struct {
	in  *bytes.Buffer
	out bytes.Buffer
}

func (p *fakePort) Read(b []byte) (int, error)  { return p.in.Read(b) }
func (p *fakePort) Write(b []byte) (int, error) { return p.out.Write(b) }

type fakeDispatcher struct {
	handled []gcode.Command
	fail    bool
}

func (d *fakeDispatcher) Handle(cmd gcode.Command) (gcode.Result, error) {
	d.handled = append(d.handled, cmd)
	if d.fail {
		return gcode.Result{}, errors.New("boom")
	}
	var res gcode.Result
	res.Lines = append(res.Lines, "[OK] "+cmd.Code)
	return res, nil
}

func TestSession_Run_DispatchesEachLineAndAcknowledges(t *testing.T) {
	port := &fakePort{in: bytes.NewBufferString("G28\nM119\n")}
	disp := &fakeDispatcher{}
	s := transport.New(port, disp, zerolog.Nop())

	err := s.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, disp.handled, 2)
	assert.Equal(t, "G28", disp.handled[0].Code)
	assert.Equal(t, "M119", disp.handled[1].Code)
	assert.Contains(t, port.out.String(), "[OK] G28\nok\n")
	assert.Contains(t, port.out.String(), "[OK] M119\nok\n")
}

func TestSession_Run_WritesErrorLineAndContinues(t *testing.T) {
	port := &fakePort{in: bytes.NewBufferString("G999\nG28\n")}
	disp := &fakeDispatcher{}
	s := transport.New(port, disp, zerolog.Nop())
	disp.fail = true

	err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, disp.handled, 2)
	assert.Contains(t, port.out.String(), "error: boom")
}

func TestSession_Run_IgnoresBlankLines(t *testing.T) {
	port := &fakePort{in: bytes.NewBufferString("\n\nG28\n")}
	disp := &fakeDispatcher{}
	s := transport.New(port, disp, zerolog.Nop())

	require.NoError(t, s.Run(context.Background()))
	require.Len(t, disp.handled, 1)
	assert.Equal(t, "G28", disp.handled[0].Code)
}
