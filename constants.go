// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// wire protocol and board constants for the Si1000-style UART bootloader;
// the command set is inspired by the STK500 protocol by way of Arduino

package gosiboot

// serial wire protocol byte values, shared between the device-side
// protocol engine and the host-side uploader
const (
	protoOK     = 0x10
	protoFailed = 0x11 // reserved, never emitted
	protoInSync = 0x12

	protoEOC = 0x20 // terminator, last byte of every command frame

	protoGetSync     = 0x21
	protoGetDevice   = 0x22
	protoChipErase   = 0x23
	protoLoadAddress = 0x24
	protoProgFlash   = 0x25
	protoReadFlash   = 0x26
	protoProgMulti   = 0x27
	protoReadMulti   = 0x28
	protoParamErase  = 0x29

	protoReboot = 0x30

	//PROTO_DEBUG = 0x31
)

// transfer limits shared by host and device
const (
	// ProgMultiMax is the capacity of the staging buffer used by the
	// multi-byte program command. A frame declaring a larger count is
	// discarded without touching flash.
	ProgMultiMax = 32

	// ReadMultiMax is the largest count a host may request in one
	// multi-byte read.
	ReadMultiMax = 255
)

// BLVersion is the bootloader version byte stashed in a hardware
// register for the application to find after the boot jump.
const BLVersion = 3

// board identity codes
const (
	BoardIDHMTRP   = 0x4E
	BoardIDRF50    = 0x4D
	BoardIDRFD900  = 0x42
	BoardIDRFD900A = 0x43
)

// frequency calibration codes
const (
	Freq433  = 0x43
	Freq470  = 0x47
	Freq868  = 0x86
	Freq915  = 0x91
	FreqNone = 0xF0 // patched into the hex file after building
)

// flash geometry; the first and last regions are reserved for the
// bootloader itself and are never programmable over the wire
const (
	flashSize = 0x10000

	// FlashAppStart is the fixed application entry address and the
	// first byte of the programmable application region.
	FlashAppStart = 0x0400

	// FlashAppEnd is the first byte past the application region. The
	// two bytes below it hold the image validity trailer.
	FlashAppEnd = 0xF400

	// FlashScratchStart/End bound the parameter/scratch region.
	FlashScratchStart = 0xF400
	FlashScratchEnd   = 0xF800
)

// reset-cause register bits
const (
	// ResetFlashError is set by hardware when the reset was caused by
	// a flash read/write/erase fault. The boot gate refuses to start
	// the application while it is set.
	ResetFlashError = 1 << 6

	// ResetSoftware triggers a software reset when written.
	ResetSoftware = 1 << 4
)

// BoardInfo carries the two immutable identity bytes the hardware shim
// supplies to the protocol engine.
type BoardInfo struct {
	ID        byte
	Frequency byte
}
