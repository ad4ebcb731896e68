package steering

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/BeamGo/internal/hw/stepper"
	"github.com/cjeanneret/BeamGo/internal/hw/transport"
	"github.com/cjeanneret/BeamGo/internal/logic/geometry"
	"github.com/cjeanneret/BeamGo/internal/logic/motion"
	"github.com/cjeanneret/BeamGo/internal/logic/pid"
	"github.com/cjeanneret/BeamGo/internal/logic/tracking"
	"github.com/cjeanneret/BeamGo/internal/timeutil"
)

// End-to-end over the real controller, motors and a recording serial port.
func TestRun_RigEndToEnd(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	port := transport.NewMockPort()
	tx := transport.New(port)

	mcfg := stepper.Config{StepsPerRev: 200, Microstepping: 16, LowerLimitDeg: -10, UpperLimitDeg: 10}
	hcfg, vcfg := mcfg, mcfg
	hcfg.Address, vcfg.Address = 0x01, 0x02
	axes := motion.NewController(
		stepper.NewMotor("horizontal", tx, nil, hcfg),
		stepper.NewMotor("vertical", tx, nil, vcfg),
		tx, clock, motion.DefaultTiming(),
	)

	pcfg := pid.Config{
		Kp: -0.01, Ki: -0.1,
		SampleTime: 33 * time.Millisecond,
		OutputMin:  -20, OutputMax: 20,
		DerivativeOnMeasurement: true,
	}
	tr := tracking.NewTracker(tracking.NewResolver(0.01), clock)
	loop := NewLoop(Config{WarmupFrames: 2, FrameBudget: 4}, tr, axes,
		pid.New(pcfg, clock), pid.New(pcfg, clock), clock)

	// Spot 300px right of the receiver center, level with it.
	src := &sliceSource{}
	for i := 0; i < 4; i++ {
		src.frames = append(src.frames, full(geometry.Pt(450, 130)))
	}

	res, err := loop.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Commands)

	var deltas []int
	for _, f := range port.Frames() {
		addr, d, err := stepper.DecodeMove(f)
		require.NoError(t, err)
		assert.Equal(t, byte(0x01), addr, "vertical error is zero, only horizontal moves")
		deltas = append(deltas, d)
	}
	// P term 3° → 26 steps; the second command is within the sample time and
	// repeats the same target; shutdown brings the axis back.
	assert.Equal(t, []int{26, -26}, deltas)
	assert.Equal(t, 1, port.CloseCount())
	assert.Equal(t, 0, axes.Horizontal().Steps())
	assert.Greater(t, res.FPS, 0.0)
}
