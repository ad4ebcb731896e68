package camera

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/BeamGo/internal/logic/geometry"
)

func TestDecodeFrame(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    geometry.PointSet
		wantErr bool
	}{
		{"five_points", `{"points":[[0,0],[1,0],[1,1],[0,1],[0.5,0.25]]}`,
			geometry.PointSet{geometry.Pt(0, 0), geometry.Pt(1, 0), geometry.Pt(1, 1), geometry.Pt(0, 1), geometry.Pt(0.5, 0.25)}, false},
		{"empty", `{"points":[]}`, geometry.PointSet{}, false},
		{"too_many", `{"points":[[0,0],[1,0],[1,1],[0,1],[2,2],[3,3]]}`, nil, true},
		{"garbage", `not json`, nil, true},
		{"wrong_shape", `{"points":[{"x":1}]}`, nil, true},
		{"one_coordinate", `{"points":[[1]]}`, nil, true},
		{"three_coordinates", `{"points":[[1,2,3]]}`, nil, true},
		{"no_coordinates", `{"points":[[]]}`, nil, true},
		{"null_point", `{"points":[null]}`, nil, true},
		{"short_among_valid", `{"points":[[0,0],[1,0],[1],[0,1]]}`, nil, true},
		{"null", `null`, nil, true},
		{"empty_object", `{}`, nil, true},
		{"misspelled_key", `{"pts":[[1,2]]}`, nil, true},
		{"null_points", `{"points":null}`, nil, true},
		{"out_of_range", `{"points":[[1e999,0]]}`, nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeFrame([]byte(tc.in))
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedFrame))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEncodeFrame_RoundTrip(t *testing.T) {
	in := geometry.PointSet{geometry.Pt(12.5, 3), geometry.Pt(-1, 400)}
	data, err := EncodeFrame(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"points":[[12.5,3],[-1,400]]}`, string(data))

	out, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	data, err = EncodeFrame(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"points":[]}`, string(data))
}

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error { c.closed = true; return nil }

func TestJSONLines_ReadsUntilEOF(t *testing.T) {
	input := strings.Join([]string{
		`{"points":[[0,0],[1,0],[1,1],[0,1],[5,5]]}`,
		``,
		`{"points":[[0,0],[1,0],[1,1],[0,1]]}`,
	}, "\n")
	rc := &closeRecorder{Reader: strings.NewReader(input)}
	src := NewJSONLines(rc)
	ctx := context.Background()

	f1, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Len(t, f1, 5)

	f2, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Len(t, f2, 4)

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, src.Close())
	assert.True(t, rc.closed)
}

func TestJSONLines_MalformedLine(t *testing.T) {
	src := NewJSONLines(strings.NewReader("{\"points\":[[0,0]]}\n{oops\n"))
	ctx := context.Background()

	_, err := src.Next(ctx)
	require.NoError(t, err)

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestJSONLines_CancelledContext(t *testing.T) {
	src := NewJSONLines(strings.NewReader(`{"points":[]}`))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
