// Package gcode implements the Command Boundary of spec.md 6: parsing
// and dispatching the G-code table onto the Probe Controller and
// calibration strategies, gating execution through an alarm-aware
// state machine, and rendering the documented status lines.
package gcode

import (
	"fmt"
	"strconv"
	"strings"
)

// Command is a single parsed G-code line: a code ("G29", "M670", ...)
// and its letter-addressed word arguments.
type Command struct {
	Code string
	Args map[byte]float32
}

// Parse splits a line such as "G31 A1 P20 Q0.02" into a Command. Letters
// not in spec.md 6's table for the given code are still parsed into Args
// (the dispatcher ignores what it doesn't need); malformed numeric words
// are silently dropped rather than rejecting the whole line, matching
// the tolerant-parser convention of embedded G-code interpreters.
func Parse(line string) Command {
	fields := strings.Fields(strings.ToUpper(strings.TrimSpace(line)))
	if len(fields) == 0 {
		return Command{}
	}

	cmd := Command{Code: fields[0], Args: make(map[byte]float32, len(fields)-1)}
	for _, word := range fields[1:] {
		if len(word) < 1 {
			continue
		}
		letter := word[0]
		if letter < 'A' || letter > 'Z' {
			continue
		}
		if len(word) == 1 {
			cmd.Args[letter] = 1 // bare flag letter, e.g. "R" on G32
			continue
		}
		v, err := strconv.ParseFloat(word[1:], 32)
		if err != nil {
			continue
		}
		cmd.Args[letter] = float32(v)
	}
	return cmd
}

// Has reports whether letter was present on the command line.
func (c Command) Has(letter byte) bool {
	_, ok := c.Args[letter]
	return ok
}

// Arg returns letter's value and whether it was present.
func (c Command) Arg(letter byte) (float32, bool) {
	v, ok := c.Args[letter]
	return v, ok
}

// ArgOr returns letter's value, or def if it was not present.
func (c Command) ArgOr(letter byte, def float32) float32 {
	if v, ok := c.Args[letter]; ok {
		return v
	}
	return def
}

// ArgIntOr is ArgOr truncated to int, for sample counts and segment
// counts.
func (c Command) ArgIntOr(letter byte, def int) int {
	if v, ok := c.Args[letter]; ok {
		return int(v)
	}
	return def
}

// Result is the outcome of dispatching a Command: zero or more status
// lines (spec.md 6, the "[ES]"/"[DR]"/... prefixes) and whether the
// command raised the machine alarm.
type Result struct {
	Lines []string
	Alarm bool
}

// String joins Lines with newlines, matching the line-based,
// newline-terminated status stream of spec.md 6.
func (r Result) String() string {
	return strings.Join(r.Lines, "\n")
}

func (r *Result) emit(format string, args ...interface{}) {
	r.Lines = append(r.Lines, fmt.Sprintf(format, args...))
}
