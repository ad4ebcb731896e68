package stepper

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeMove(t *testing.T) {
	cases := []struct {
		name  string
		addr  byte
		delta int
		want  []byte
	}{
		{"positive_small", 0x01, 8, []byte{0x01, 0xFD, 0x14, 0xFF, 0x00, 0x00, 0x00, 0x08, 0x6B}},
		{"negative_small", 0x02, -8, []byte{0x02, 0xFD, 0x04, 0xFF, 0x00, 0x00, 0x00, 0x08, 0x6B}},
		{"big_endian", 0x01, 0x012345, []byte{0x01, 0xFD, 0x14, 0xFF, 0x00, 0x01, 0x23, 0x45, 0x6B}},
		{"max", 0x02, -MaxStepMagnitude, []byte{0x02, 0xFD, 0x04, 0xFF, 0x00, 0xFF, 0xFF, 0xFF, 0x6B}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EncodeMove(tc.addr, tc.delta)
			if err != nil {
				t.Fatalf("EncodeMove: %v", err)
			}
			if !bytes.Equal(got, tc.want) {
				t.Errorf("EncodeMove(%#x, %d) = % X, want % X", tc.addr, tc.delta, got, tc.want)
			}

			addr, delta, err := DecodeMove(got)
			if err != nil {
				t.Fatalf("DecodeMove: %v", err)
			}
			if addr != tc.addr || delta != tc.delta {
				t.Errorf("DecodeMove = (%#x, %d), want (%#x, %d)", addr, delta, tc.addr, tc.delta)
			}
		})
	}
}

func TestEncodeMove_Overflow(t *testing.T) {
	for _, d := range []int{MaxStepMagnitude + 1, -(MaxStepMagnitude + 1)} {
		if _, err := EncodeMove(0x01, d); !errors.Is(err, ErrStepOverflow) {
			t.Errorf("EncodeMove(%d) err = %v, want ErrStepOverflow", d, err)
		}
	}
}

func TestEncodeSetOrigin(t *testing.T) {
	want := []byte{0x02, 0x0A, 0x6D, 0x6B}
	if got := EncodeSetOrigin(0x02); !bytes.Equal(got, want) {
		t.Errorf("EncodeSetOrigin = % X, want % X", got, want)
	}
}

func TestDecodeMove_Rejects(t *testing.T) {
	bad := [][]byte{
		{0x01, 0x0A, 0x6D, 0x6B},
		{0x01, 0xFD, 0x99, 0xFF, 0x00, 0x00, 0x00, 0x01, 0x6B},
		{0x01, 0xFD, 0x14, 0xFF, 0x00, 0x00, 0x00, 0x01, 0x00},
	}
	for _, f := range bad {
		if _, _, err := DecodeMove(f); err == nil {
			t.Errorf("DecodeMove(% X) accepted", f)
		}
	}
}
