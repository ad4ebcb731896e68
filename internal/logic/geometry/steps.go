package geometry

// DegreesPerStep returns the angle covered by one microstep.
// Example: 200 steps/rev at 16x microstepping gives 360/3200 = 0.1125°.
func DegreesPerStep(stepsPerRev, microstepping int) float64 {
	return 360.0 / float64(stepsPerRev*microstepping)
}

// AngleFromSteps converts an accumulated step count back to degrees.
// The explicit conversion keeps the product from being fused into a later
// subtraction, so results match across architectures.
func AngleFromSteps(steps int, degreesPerStep float64) float64 {
	return float64(float64(steps) * degreesPerStep)
}

// StepDelta returns the signed number of whole steps needed to move from the
// position encoded by currentSteps to targetDeg.
// Fractions of a step are truncated toward zero, not rounded: a sub-step
// remainder is absorbed until later targets add up to a full step.
func StepDelta(currentSteps int, degreesPerStep, targetDeg float64) int {
	delta := targetDeg - AngleFromSteps(currentSteps, degreesPerStep)
	return int(delta / degreesPerStep)
}
