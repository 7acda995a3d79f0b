// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gosiboot

import (
	"errors"
	"testing"
)

func TestSimFlashStartsErased(t *testing.T) {
	flash := NewSimFlash()

	for _, addr := range []uint16{0x0000, FlashAppStart, 0x8000, FlashAppEnd - 1, 0xFFFF} {
		if got := flash.ReadByte(addr); got != 0xFF {
			t.Errorf("flash[0x%04x] = 0x%02x, want 0xFF", addr, got)
		}
	}
}

func TestSimFlashWriteOnceSemantics(t *testing.T) {
	flash := NewSimFlash()

	flash.WriteByte(FlashAppStart, 0xF0)
	if got := flash.ReadByte(FlashAppStart); got != 0xF0 {
		t.Fatalf("first write gave 0x%02x, want 0xF0", got)
	}

	// a second program without an erase can only clear bits
	flash.WriteByte(FlashAppStart, 0x0F)
	if got := flash.ReadByte(FlashAppStart); got != 0x00 {
		t.Errorf("reprogram gave 0x%02x, want 0x00", got)
	}

	flash.EraseApplication()
	flash.WriteByte(FlashAppStart, 0x0F)
	if got := flash.ReadByte(FlashAppStart); got != 0x0F {
		t.Errorf("write after erase gave 0x%02x, want 0x0F", got)
	}
}

func TestSimFlashProtectedRegions(t *testing.T) {
	flash := NewSimFlash()

	tests := []struct {
		name string
		addr uint16
	}{
		{"bootloader region", 0x0000},
		{"below application start", FlashAppStart - 1},
		{"above scratch region", FlashScratchEnd},
		{"top of flash", 0xFFFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flash.WriteByte(tt.addr, 0x00)

			if got := flash.ReadByte(tt.addr); got != 0xFF {
				t.Errorf("protected flash[0x%04x] changed to 0x%02x", tt.addr, got)
			}
		})
	}
}

func TestSimFlashScratchIsProgrammable(t *testing.T) {
	flash := NewSimFlash()

	flash.WriteByte(FlashScratchStart, 0x42)

	if got := flash.ReadByte(FlashScratchStart); got != 0x42 {
		t.Errorf("scratch write gave 0x%02x, want 0x42", got)
	}
}

func TestAppValid(t *testing.T) {
	flash := NewSimFlash()

	if flash.AppValid() {
		t.Error("blank flash reported a valid application")
	}

	image, err := SealApplication([]byte{0x02, 0x0B, 0x00, 0x12, 0x34})
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	if err := flash.LoadApplication(image); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if !flash.AppValid() {
		t.Error("sealed image reported invalid")
	}

	// clearing bits in the image body breaks the trailer check
	flash.WriteByte(FlashAppStart+1, 0x00)

	if flash.AppValid() {
		t.Error("corrupted image still reported valid")
	}
}

func TestLoadApplicationRequiresFullRegion(t *testing.T) {
	err := NewSimFlash().LoadApplication([]byte{0x02, 0x0B, 0x00})

	var linkErr *LinkError
	if !errors.As(err, &linkErr) || linkErr.LinkErrorCode != ErrorBounds {
		t.Errorf("got %v, want a bounds error", err)
	}
}

func TestSealApplicationRejectsOversizeImage(t *testing.T) {
	_, err := SealApplication(make([]byte, FlashAppEnd-FlashAppStart-1))

	var linkErr *LinkError
	if !errors.As(err, &linkErr) || linkErr.LinkErrorCode != ErrorBounds {
		t.Errorf("got %v, want a bounds error", err)
	}
}

func TestSealApplicationTrailer(t *testing.T) {
	data := []byte{0x02, 0x0B, 0x00, 0xDE, 0xAD}

	image, err := SealApplication(data)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	const regionSize = FlashAppEnd - FlashAppStart

	if len(image) != regionSize {
		t.Fatalf("sealed image is %d bytes, want %d", len(image), regionSize)
	}

	if image[len(data)] != 0xFF {
		t.Error("padding is not erased flash")
	}

	stored := le_to_h_u16(image[regionSize-2:])
	if stored != ImageCRC(image[:regionSize-2]) {
		t.Errorf("trailer 0x%04x does not match image crc", stored)
	}
}
