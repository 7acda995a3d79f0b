// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gosiboot

func le_to_h_u16(buffer []byte) uint16 {
	return uint16(uint16(buffer[0]) | (uint16(buffer[1]) << 8))
}

func uint16ToLittleEndian(buffer []byte, value uint16) {
	buffer[1] = byte(value >> 8)
	buffer[0] = byte(value >> 0)
}
