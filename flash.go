// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gosiboot

import (
	"fmt"

	"github.com/sigurn/crc16"
)

// FlashDriver abstracts the non-volatile program memory. Addresses are
// raw 16-bit flash offsets; the driver is responsible for protecting
// the regions the protocol must never touch. Erase and program calls
// block until the flash controller has finished.
type FlashDriver interface {
	// EraseApplication erases the whole application region.
	EraseApplication()

	// EraseScratch erases the parameter/scratch region.
	EraseScratch()

	// ReadByte returns the flash byte at addr.
	ReadByte(addr uint16) byte

	// WriteByte programs one byte at addr.
	WriteByte(addr uint16, value byte)

	// AppValid reports whether the stored application image passes
	// the validity check. The boot gate refuses the jump when it
	// fails.
	AppValid() bool
}

var imageCRCTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// ImageCRC computes the CRC-16/XMODEM an application image must carry
// in its trailer: the checksum of the application region minus the two
// trailer bytes themselves.
func ImageCRC(data []byte) uint16 {
	return crc16.Checksum(data, imageCRCTable)
}

// SealApplication pads data to the full application region size and
// writes the validity trailer into the last two bytes, little-endian.
// The result is what a freshly erased and fully programmed application
// region looks like.
func SealApplication(data []byte) ([]byte, error) {
	const regionSize = FlashAppEnd - FlashAppStart

	if len(data) > regionSize-2 {
		return nil, NewLinkError(fmt.Sprintf("application image of %d bytes exceeds region of %d",
			len(data), regionSize-2), ErrorBounds)
	}

	image := make([]byte, regionSize)
	for i := range image {
		image[i] = 0xFF
	}
	copy(image, data)

	uint16ToLittleEndian(image[regionSize-2:], ImageCRC(image[:regionSize-2]))

	return image, nil
}
