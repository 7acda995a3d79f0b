// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gosiboot

import (
	"io"
)

// Bootloader ties the boot gate and the protocol engine together. It
// is constructed once per reset and runs exactly once.
type Bootloader struct {
	board Board
	flash FlashDriver
	link  io.ReadWriter
	info  BoardInfo
}

func NewBootloader(board Board, flash FlashDriver, link io.ReadWriter, info BoardInfo) *Bootloader {
	return &Bootloader{
		board: board,
		flash: flash,
		link:  link,
		info:  info,
	}
}

// Boot performs the one-shot boot decision. If the stored application
// is bootable it stashes the board info registers and transfers
// control to it; on real hardware that call never returns. Otherwise
// the device stays in command mode and Boot runs the protocol engine
// until the byte link goes away.
func (b *Bootloader) Boot() error {
	b.board.Init()

	// LED on to show the bootloader is running
	b.board.SetLED(true)

	if b.applicationBootable() {
		logger.Debugf("booting application at 0x%04x", FlashAppStart)

		b.board.StashBoardInfo(b.info.Frequency, BLVersion)
		b.board.BootApplication()

		// only fake boards come back here
		return nil
	}

	logger.Debug("staying in command mode")

	return newEngine(b.link, b.flash, b.board, b.info).run()
}

// applicationBootable checks, in order: the reset was not caused by a
// flash fault, the stored image is valid, and the force-bootloader
// strap is not active. All three must hold.
func (b *Bootloader) applicationBootable() bool {
	if b.board.ResetCause()&ResetFlashError != 0 {
		logger.Debug("flash fault reset, refusing to boot application")
		return false
	}

	if !b.flash.AppValid() {
		logger.Debug("application image invalid")
		return false
	}

	if b.board.ForceBootloader() {
		logger.Debug("force-bootloader strap active")
		return false
	}

	return true
}
