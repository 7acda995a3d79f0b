// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gosiboot

// Board abstracts the hardware the bootloader touches directly: the
// one-time peripheral bring-up, the status LED, the force-bootloader
// strap, the reset-cause register and the jump into the application.
// The core never manipulates registers itself, so the whole bootloader
// can run against SimBoard on a development machine.
type Board interface {
	// Init performs the minimal one-time hardware bring-up (clock,
	// timer, UART, crossbar, brown-out detector). Interrupts stay
	// disabled for the lifetime of the bootloader; they all vector to
	// the application.
	Init()

	// SetLED drives the bootloader status LED. It is on while the
	// protocol engine waits for an opcode.
	SetLED(on bool)

	// ForceBootloader reports whether the boot-to-bootloader
	// strap/button is in its active state.
	ForceBootloader() bool

	// ResetCause returns the hardware reset-cause register. See the
	// Reset* bits in constants.go.
	ResetCause() byte

	// RequestReset sets the software-reset bit in the reset-cause
	// register. On real hardware the device resets shortly after and
	// control does not meaningfully continue.
	RequestReset()

	// StashBoardInfo writes the frequency calibration byte and the
	// bootloader version into the two fixed registers the application
	// reads after the boot jump.
	StashBoardInfo(frequency byte, version byte)

	// BootApplication transfers control to the fixed application
	// entry address. On real hardware this never returns; fake
	// implementations record the handoff and return so callers can
	// observe it.
	BootApplication()
}
