// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gosiboot

import (
	"bufio"
	"errors"
	"io"
)

// commandClass tags each opcode with its terminator regime before
// dispatch. Simple commands carry no argument bytes and have their
// terminator validated up front; extended commands consume their own
// arguments and validate the terminator themselves.
type commandClass int

const (
	classSimple commandClass = iota
	classExtended
	classUnknown
)

func classify(opcode byte) commandClass {
	switch opcode {
	case protoGetSync, protoGetDevice, protoChipErase, protoParamErase, protoReadFlash:
		return classSimple
	case protoLoadAddress, protoProgFlash, protoProgMulti, protoReadMulti, protoReboot:
		return classExtended
	default:
		return classUnknown
	}
}

// engine is the command dispatcher: one iteration of its loop consumes
// one command frame from the byte link and drives zero or more flash
// driver calls. It owns the 16-bit address cursor and the staging
// buffer; neither survives a reset.
type engine struct {
	link  io.ReadWriter
	rd    *bufio.Reader
	flash FlashDriver
	board Board
	info  BoardInfo

	// current flash offset, advanced by every successful read or
	// program; wraps modulo 2^16 without fault
	address uint16

	// staging buffer for the multi-byte program command, so a frame
	// that dies on a bad terminator never leaves a partial write
	buf [ProgMultiMax]byte
}

func newEngine(link io.ReadWriter, flash FlashDriver, board Board, info BoardInfo) *engine {
	return &engine{
		link:  link,
		rd:    bufio.NewReader(link),
		flash: flash,
		board: board,
		info:  info,
	}
}

// run executes the command loop. On hardware it never exits; here it
// returns when the byte link goes away, nil for a plain hang-up. Any
// framing error drops the partial command silently and the loop goes
// back to waiting for an opcode: the host detects the missing
// acknowledgement by timeout and resyncs.
func (e *engine) run() error {
	e.address = 0

	for {
		// LED on while waiting for a command byte
		e.board.SetLED(true)

		opcode, err := e.readByte()
		if err != nil {
			return linkDown(err)
		}

		e.board.SetLED(false)

		class := classify(opcode)

		if class == classSimple {
			terminator, err := e.readByte()
			if err != nil {
				return linkDown(err)
			}

			if terminator != protoEOC {
				continue
			}
		}

		acked, err := e.dispatch(opcode, class)

		if err != nil {
			return linkDown(err)
		}

		if !acked {
			continue
		}

		if err := e.write(protoInSync, protoOK); err != nil {
			return linkDown(err)
		}
	}
}

// dispatch runs one opcode handler. It returns false when the frame
// must be dropped without an acknowledgement, and a non-nil error only
// when the link itself failed.
func (e *engine) dispatch(opcode byte, class commandClass) (bool, error) {
	switch opcode {

	case protoGetSync:
		return true, nil

	case protoGetDevice:
		if err := e.write(e.info.ID, e.info.Frequency); err != nil {
			return false, err
		}
		return true, nil

	case protoChipErase:
		e.flash.EraseApplication()
		return true, nil

	case protoParamErase:
		e.flash.EraseScratch()
		return true, nil

	case protoLoadAddress:
		lo, err := e.readByte()
		if err != nil {
			return false, err
		}
		hi, err := e.readByte()
		if err != nil {
			return false, err
		}
		terminator, err := e.readByte()
		if err != nil {
			return false, err
		}
		if terminator != protoEOC {
			return false, nil
		}

		e.address = uint16(lo) | uint16(hi)<<8
		return true, nil

	case protoProgFlash:
		value, err := e.readByte()
		if err != nil {
			return false, err
		}
		terminator, err := e.readByte()
		if err != nil {
			return false, err
		}
		if terminator != protoEOC {
			return false, nil
		}

		e.flash.WriteByte(e.address, value)
		e.address++
		return true, nil

	case protoReadFlash:
		value := e.flash.ReadByte(e.address)
		e.address++

		if err := e.write(value); err != nil {
			return false, err
		}
		return true, nil

	case protoProgMulti:
		count, err := e.readByte()
		if err != nil {
			return false, err
		}

		// an oversized count aborts before any data byte is read;
		// the host recovers by resyncing
		if int(count) > ProgMultiMax {
			return false, nil
		}

		for i := 0; i < int(count); i++ {
			e.buf[i], err = e.readByte()
			if err != nil {
				return false, err
			}
		}

		terminator, err := e.readByte()
		if err != nil {
			return false, err
		}
		if terminator != protoEOC {
			return false, nil
		}

		// all bytes are staged before the first one is committed
		for i := 0; i < int(count); i++ {
			e.flash.WriteByte(e.address, e.buf[i])
			e.address++
		}
		return true, nil

	case protoReadMulti:
		count, err := e.readByte()
		if err != nil {
			return false, err
		}
		terminator, err := e.readByte()
		if err != nil {
			return false, err
		}
		if terminator != protoEOC {
			return false, nil
		}

		// streamed straight from flash, no staging
		for i := 0; i < int(count); i++ {
			value := e.flash.ReadByte(e.address)
			e.address++

			if err := e.write(value); err != nil {
				return false, err
			}
		}
		return true, nil

	case protoReboot:
		// the reset takes effect before anyone could rely on an
		// acknowledgement, so none is sent
		e.board.RequestReset()
		return false, nil

	default:
		return false, nil
	}
}

func (e *engine) readByte() (byte, error) {
	return e.rd.ReadByte()
}

func (e *engine) write(values ...byte) error {
	_, err := e.link.Write(values)
	return err
}

// linkDown maps a closed byte link onto a clean loop exit; anything
// else is a real transport failure.
func linkDown(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}

	return err
}
