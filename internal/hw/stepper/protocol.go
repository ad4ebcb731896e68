package stepper

import (
	"errors"
	"fmt"
)

// Wire constants for the closed-loop stepper controllers on the shared bus.
const (
	cmdMove      byte = 0xFD
	cmdSetOrigin byte = 0x0A
	subSetOrigin byte = 0x6D
	dirPositive  byte = 0x14
	dirNegative  byte = 0x04
	moveSpeed    byte = 0xFF
	moveAccel    byte = 0x00
	checksum     byte = 0x6B

	// MaxStepMagnitude is the largest step count a move frame can carry (3 bytes).
	MaxStepMagnitude = 0xFFFFFF

	// MoveFrameLen and SetOriginFrameLen are the encoded frame sizes.
	MoveFrameLen      = 9
	SetOriginFrameLen = 4
)

// ErrStepOverflow is returned when a move needs more steps than a frame encodes.
var ErrStepOverflow = errors.New("stepper: step magnitude exceeds 24 bits")

// EncodeMove builds the 9-byte relative move frame for a signed step delta:
// address, 0xFD, direction, speed, acceleration, 3-byte big-endian magnitude,
// fixed 0x6B check byte.
func EncodeMove(addr byte, delta int) ([]byte, error) {
	dir := dirPositive
	mag := delta
	if delta < 0 {
		dir = dirNegative
		mag = -delta
	}
	if mag > MaxStepMagnitude {
		return nil, fmt.Errorf("%w: %d", ErrStepOverflow, mag)
	}
	return []byte{
		addr, cmdMove, dir, moveSpeed, moveAccel,
		byte(mag >> 16), byte(mag >> 8), byte(mag),
		checksum,
	}, nil
}

// EncodeSetOrigin builds the 4-byte frame that makes the controller treat its
// current position as zero.
func EncodeSetOrigin(addr byte) []byte {
	return []byte{addr, cmdSetOrigin, subSetOrigin, checksum}
}

// DecodeMove parses a move frame back into address and signed delta.
func DecodeMove(frame []byte) (addr byte, delta int, err error) {
	if len(frame) != MoveFrameLen || frame[1] != cmdMove || frame[8] != checksum {
		return 0, 0, fmt.Errorf("not a move frame: % X", frame)
	}
	mag := int(frame[5])<<16 | int(frame[6])<<8 | int(frame[7])
	switch frame[2] {
	case dirPositive:
		return frame[0], mag, nil
	case dirNegative:
		return frame[0], -mag, nil
	default:
		return 0, 0, fmt.Errorf("unknown direction byte 0x%02X", frame[2])
	}
}
