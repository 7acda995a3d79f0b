// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gosiboot

import (
	"fmt"
	"io"
	"sort"

	"github.com/marcinbor85/gohex"
)

// Segment is one contiguous run of firmware bytes at a flash address.
type Segment struct {
	Address uint16
	Data    []byte
}

// Firmware is a parsed application image, as a list of segments sorted
// by address. All segments lie inside the application region.
type Firmware struct {
	Segments []Segment
}

// NewFirmware wraps a single raw blob at the given address, for images
// that are not distributed as Intel HEX.
func NewFirmware(addr uint16, data []byte) (*Firmware, error) {
	fw := &Firmware{Segments: []Segment{{Address: addr, Data: data}}}

	if err := fw.check(); err != nil {
		return nil, err
	}

	return fw, nil
}

// LoadIntelHex parses an Intel HEX stream into a Firmware.
func LoadIntelHex(r io.Reader) (*Firmware, error) {
	mem := gohex.NewMemory()

	if err := mem.ParseIntelHex(r); err != nil {
		return nil, err
	}

	fw := &Firmware{}

	for _, seg := range mem.GetDataSegments() {
		if seg.Address > 0xFFFF {
			return nil, NewLinkError(fmt.Sprintf("segment address 0x%x beyond 16-bit flash space",
				seg.Address), ErrorBounds)
		}

		fw.Segments = append(fw.Segments, Segment{
			Address: uint16(seg.Address),
			Data:    seg.Data,
		})
	}

	sort.Slice(fw.Segments, func(i, j int) bool {
		return fw.Segments[i].Address < fw.Segments[j].Address
	})

	if err := fw.check(); err != nil {
		return nil, err
	}

	logger.Debugf("loaded %d bytes of firmware in %d segments", fw.Size(), len(fw.Segments))

	return fw, nil
}

// Size returns the total number of firmware bytes across all segments.
func (fw *Firmware) Size() int {
	total := 0
	for _, seg := range fw.Segments {
		total += len(seg.Data)
	}

	return total
}

// check rejects firmware that is empty or reaches outside the
// programmable application region. The last two bytes of the region
// are reserved for the validity trailer.
func (fw *Firmware) check() error {
	if fw.Size() == 0 {
		return NewLinkError("firmware image contains no data", ErrorBounds)
	}

	for _, seg := range fw.Segments {
		end := int(seg.Address) + len(seg.Data)

		if seg.Address < FlashAppStart || end > FlashAppEnd-2 {
			return NewLinkError(fmt.Sprintf("segment 0x%04x..0x%04x outside application region 0x%04x..0x%04x",
				seg.Address, end, FlashAppStart, FlashAppEnd-2), ErrorBounds)
		}
	}

	return nil
}
