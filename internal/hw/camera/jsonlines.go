package camera

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"github.com/cjeanneret/BeamGo/internal/debug"
	"github.com/cjeanneret/BeamGo/internal/logic/geometry"
)

// JSONLines reads one JSON frame per line from a file, a pipe or stdin.
// Blank lines are skipped.
type JSONLines struct {
	r       io.Reader
	scanner *bufio.Scanner
	line    int
}

// NewJSONLines wraps r. If r is an io.Closer, Close closes it.
func NewJSONLines(r io.Reader) *JSONLines {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), 1<<20)
	return &JSONLines{r: r, scanner: s}
}

// Next returns the next frame. Context cancellation is only observed between
// lines.
func (j *JSONLines) Next(ctx context.Context) (geometry.PointSet, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !j.scanner.Scan() {
			if err := j.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		j.line++
		line := bytes.TrimSpace(j.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		points, err := DecodeFrame(line)
		if err != nil {
			debug.Verbose("JSONLines: line %d rejected: %v", j.line, err)
			return nil, err
		}
		return points, nil
	}
}

// Close closes the underlying reader when it supports it.
func (j *JSONLines) Close() error {
	if c, ok := j.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
