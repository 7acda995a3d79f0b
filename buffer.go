// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gosiboot

import (
	"bytes"
)

// Buffer assembles command frames on the host side before they are
// handed to the byte link in one write.
type Buffer struct {
	bytes.Buffer
}

func NewBuffer(initSize int) *Buffer {
	b := &Buffer{}

	b.Grow(initSize)

	return b
}

func (buf *Buffer) WriteUint16LE(value uint16) {
	buf.WriteByte(byte(value))
	buf.WriteByte(byte(value >> 8))
}

// WriteFrame appends the opcode and arguments followed by the
// terminator byte.
func (buf *Buffer) WriteFrame(opcode byte, args ...byte) {
	buf.WriteByte(opcode)
	buf.Write(args)
	buf.WriteByte(protoEOC)
}
