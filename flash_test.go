// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gosiboot

import (
	"testing"
)

func TestImageCRCCheckValue(t *testing.T) {
	// the standard CRC-16/XMODEM check value
	if got := ImageCRC([]byte("123456789")); got != 0x31C3 {
		t.Errorf("ImageCRC = 0x%04x, want 0x31c3", got)
	}
}

func TestImageCRCOfErasedFlash(t *testing.T) {
	erased := make([]byte, 64)
	for i := range erased {
		erased[i] = 0xFF
	}

	// an erased region must not accidentally match its own trailer,
	// 0xFFFF being what unprogrammed trailer bytes read as
	if got := ImageCRC(erased); got == 0xFFFF {
		t.Error("crc of erased flash collides with an unprogrammed trailer")
	}
}
