// Package camera delivers detected blob centers frame by frame. Thresholding
// and contour extraction happen upstream; a frame here is just the list of
// blob centers in detection order.
package camera

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/cjeanneret/BeamGo/internal/logic/geometry"
)

// MaxPoints is the largest blob count a valid frame may carry.
const MaxPoints = 5

// ErrMalformedFrame is returned for a frame that cannot be decoded or carries
// more blobs than the rig can produce.
var ErrMalformedFrame = errors.New("camera: malformed frame")

// FrameSource is the high-level interface used by the control loop.
// Next blocks until a frame is available. It returns io.EOF at end of
// stream and ErrMalformedFrame (wrapped) for a bad frame.
type FrameSource interface {
	Next(ctx context.Context) (geometry.PointSet, error)
	Close() error
}

// Frame is the wire form of one frame: {"points":[[x,y],...]}.
type Frame struct {
	Points geometry.PointSet `json:"points"`
}

// wireFrame keeps points loose so that short or long coordinate lists and a
// missing key are caught instead of being zero-filled.
type wireFrame struct {
	Points *[][]float64 `json:"points"`
}

// DecodeFrame parses and validates one JSON frame. The points key is
// required and every point must be exactly two finite numbers.
func DecodeFrame(data []byte) (geometry.PointSet, error) {
	var f wireFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Points == nil {
		return nil, fmt.Errorf("%w: missing points", ErrMalformedFrame)
	}
	raw := *f.Points
	if len(raw) > MaxPoints {
		return nil, fmt.Errorf("%w: %d points", ErrMalformedFrame, len(raw))
	}
	points := make(geometry.PointSet, 0, len(raw))
	for i, p := range raw {
		if len(p) != 2 {
			return nil, fmt.Errorf("%w: point %d has %d coordinates", ErrMalformedFrame, i, len(p))
		}
		if !finite(p[0]) || !finite(p[1]) {
			return nil, fmt.Errorf("%w: point %d is not finite", ErrMalformedFrame, i)
		}
		points = append(points, geometry.Pt(p[0], p[1]))
	}
	return points, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// EncodeFrame is the inverse of DecodeFrame.
func EncodeFrame(points geometry.PointSet) ([]byte, error) {
	if points == nil {
		points = geometry.PointSet{}
	}
	return json.Marshal(Frame{Points: points})
}
