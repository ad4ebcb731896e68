// Package report exports the receiver-to-spot distance trace of a run.
package report

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/cjeanneret/BeamGo/internal/logic/tracking"
)

// FileTimeLayout is used in default result file names.
const FileTimeLayout = "Jan 02 15:04:05"

// WriteTrace writes the trace as two lines of space separated numbers:
// elapsed seconds, then distances in pixels.
func WriteTrace(w io.Writer, tr tracking.Trace) error {
	bw := bufio.NewWriter(w)
	writeLine(bw, tr.Elapsed)
	bw.WriteByte('\n')
	writeLine(bw, tr.Distance)
	return bw.Flush()
}

func writeLine(w *bufio.Writer, xs []float64) {
	for i, x := range xs {
		if i > 0 {
			w.WriteByte(' ')
		}
		w.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	}
}

// ReadTrace parses the format written by WriteTrace.
func ReadTrace(r io.Reader) (tracking.Trace, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return tracking.Trace{}, err
	}
	lines := strings.SplitN(string(data), "\n", 2)
	if len(lines) != 2 {
		return tracking.Trace{}, fmt.Errorf("trace: want 2 lines, got %d", len(lines))
	}

	elapsed, err := parseLine(lines[0])
	if err != nil {
		return tracking.Trace{}, fmt.Errorf("trace elapsed: %w", err)
	}
	dist, err := parseLine(strings.TrimRight(lines[1], "\n"))
	if err != nil {
		return tracking.Trace{}, fmt.Errorf("trace distance: %w", err)
	}
	if len(elapsed) != len(dist) {
		return tracking.Trace{}, fmt.Errorf("trace: %d times but %d distances", len(elapsed), len(dist))
	}
	return tracking.Trace{Elapsed: elapsed, Distance: dist}, nil
}

func parseLine(s string) ([]float64, error) {
	fields := strings.Fields(s)
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}

// SaveTrace writes the trace to dir/name, creating dir if needed. An empty
// name uses "<prefix> <timestamp>". Returns the written path.
func SaveTrace(dir, name, prefix string, tr tracking.Trace, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}
	if name == "" {
		name = prefix + " " + now.Format(FileTimeLayout)
	}
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := WriteTrace(f, tr); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

// Summary holds aggregate statistics of a trace.
type Summary struct {
	Samples  int     `json:"samples"`
	Duration float64 `json:"duration_s"`
	Mean     float64 `json:"mean_px"`
	StdDev   float64 `json:"stddev_px"`
	Min      float64 `json:"min_px"`
	Max      float64 `json:"max_px"`
	Final    float64 `json:"final_px"`
	// Settled is the first elapsed time after which every distance stays at
	// or below the settle threshold. NaN when the trace never settles.
	Settled float64 `json:"settled_s"`
}

// Summarize computes statistics over tr. settlePx is the distance threshold
// for Settled.
func Summarize(tr tracking.Trace, settlePx float64) Summary {
	n := tr.Len()
	s := Summary{Samples: n, Settled: math.NaN()}
	if n == 0 {
		s.Mean, s.StdDev, s.Min, s.Max, s.Final = math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN()
		return s
	}

	s.Duration = tr.Elapsed[n-1] - tr.Elapsed[0]
	s.Mean = stat.Mean(tr.Distance, nil)
	if n > 1 {
		s.StdDev = stat.StdDev(tr.Distance, nil)
	}
	s.Min = floats.Min(tr.Distance)
	s.Max = floats.Max(tr.Distance)
	s.Final = tr.Distance[n-1]

	for i := n - 1; i >= 0; i-- {
		if tr.Distance[i] > settlePx {
			if i < n-1 {
				s.Settled = tr.Elapsed[i+1]
			}
			return s
		}
	}
	s.Settled = tr.Elapsed[0]
	return s
}

// String renders the summary for the console.
func (s Summary) String() string {
	return fmt.Sprintf("samples=%d duration=%.2fs mean=%.2fpx std=%.2fpx min=%.2fpx max=%.2fpx final=%.2fpx settled=%.2fs",
		s.Samples, s.Duration, s.Mean, s.StdDev, s.Min, s.Max, s.Final, s.Settled)
}
