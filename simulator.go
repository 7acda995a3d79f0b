// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gosiboot

import (
	"io"

	"github.com/boljen/go-bitmap"
)

// SimFlash is an in-memory flash driver with NOR-style semantics:
// erase sets a region to 0xFF, and a byte can only be programmed once
// per erase cycle (a second write can clear bits but never set them).
// Writes outside the application and scratch regions are dropped, the
// way the real driver protects the bootloader's own pages.
type SimFlash struct {
	mem     []byte
	written bitmap.Bitmap
}

func NewSimFlash() *SimFlash {
	f := &SimFlash{
		mem:     make([]byte, flashSize),
		written: bitmap.New(flashSize),
	}

	for i := range f.mem {
		f.mem[i] = 0xFF
	}

	return f
}

func (f *SimFlash) EraseApplication() {
	f.eraseRegion(FlashAppStart, FlashAppEnd)
	logger.Debug("sim flash: application region erased")
}

func (f *SimFlash) EraseScratch() {
	f.eraseRegion(FlashScratchStart, FlashScratchEnd)
	logger.Debug("sim flash: scratch region erased")
}

func (f *SimFlash) eraseRegion(start int, end int) {
	for addr := start; addr < end; addr++ {
		f.mem[addr] = 0xFF
		f.written.Set(addr, false)
	}
}

func (f *SimFlash) ReadByte(addr uint16) byte {
	return f.mem[addr]
}

func (f *SimFlash) WriteByte(addr uint16, value byte) {
	if !programmable(addr) {
		logger.Debugf("sim flash: dropped write to protected address 0x%04x", addr)
		return
	}

	if f.written.Get(int(addr)) {
		// programming without an erase can only clear bits
		logger.Warnf("sim flash: reprogramming 0x%04x without erase", addr)
		f.mem[addr] &= value
		return
	}

	f.mem[addr] = value
	f.written.Set(int(addr), true)
}

// AppValid checks the image validity trailer: a programmed first byte
// and a matching CRC in the last two bytes of the application region.
func (f *SimFlash) AppValid() bool {
	if f.mem[FlashAppStart] == 0xFF {
		return false
	}

	stored := le_to_h_u16(f.mem[FlashAppEnd-2 : FlashAppEnd])

	return stored == ImageCRC(f.mem[FlashAppStart:FlashAppEnd-2])
}

// LoadApplication installs a sealed application image as if it had
// been factory programmed, bypassing the wire protocol.
func (f *SimFlash) LoadApplication(image []byte) error {
	const regionSize = FlashAppEnd - FlashAppStart

	if len(image) != regionSize {
		return NewLinkError("application image must cover the whole region; seal it first", ErrorBounds)
	}

	f.eraseRegion(FlashAppStart, FlashAppEnd)

	for i, value := range image {
		addr := FlashAppStart + i
		f.mem[addr] = value
		f.written.Set(addr, true)
	}

	return nil
}

func programmable(addr uint16) bool {
	if addr >= FlashAppStart && addr < FlashAppEnd {
		return true
	}

	return addr >= FlashScratchStart && addr < FlashScratchEnd
}

// SimBoard is a fake hardware shim. ResetCauseReg and ForceStrap can
// be set up front to steer the boot gate; the remaining fields record
// what the bootloader did to the hardware.
type SimBoard struct {
	ResetCauseReg byte
	ForceStrap    bool

	led            bool
	freqReg        byte
	versionReg     byte
	booted         bool
	resetRequested bool
}

func NewSimBoard() *SimBoard {
	return &SimBoard{}
}

func (b *SimBoard) Init() {}

func (b *SimBoard) SetLED(on bool) {
	b.led = on
}

func (b *SimBoard) ForceBootloader() bool {
	return b.ForceStrap
}

func (b *SimBoard) ResetCause() byte {
	return b.ResetCauseReg
}

func (b *SimBoard) RequestReset() {
	logger.Debug("sim board: software reset requested")

	b.resetRequested = true
	b.ResetCauseReg |= ResetSoftware
}

func (b *SimBoard) StashBoardInfo(frequency byte, version byte) {
	b.freqReg = frequency
	b.versionReg = version
}

func (b *SimBoard) BootApplication() {
	logger.Debug("sim board: control handed to application")

	b.booted = true
}

// Booted reports whether the boot gate handed control to the
// application.
func (b *SimBoard) Booted() bool {
	return b.booted
}

// ResetRequested reports whether a reboot command set the
// software-reset bit.
func (b *SimBoard) ResetRequested() bool {
	return b.resetRequested
}

// StashedInfo returns the two registers populated before the boot
// jump.
func (b *SimBoard) StashedInfo() (frequency byte, version byte) {
	return b.freqReg, b.versionReg
}

// SimDevice bundles a fake board and flash into a complete simulated
// bootloader. The force-bootloader strap starts out active so the
// device stays in command mode and is reachable over the link.
type SimDevice struct {
	Board *SimBoard
	Flash *SimFlash
	Info  BoardInfo
}

func NewSimDevice(info BoardInfo) *SimDevice {
	board := NewSimBoard()
	board.ForceStrap = true

	return &SimDevice{
		Board: board,
		Flash: NewSimFlash(),
		Info:  info,
	}
}

// Serve runs one power-up of the simulated device against the given
// byte link and returns when the link is gone.
func (d *SimDevice) Serve(link io.ReadWriter) error {
	return NewBootloader(d.Board, d.Flash, link, d.Info).Boot()
}
