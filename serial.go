// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gosiboot

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is what the bootloader runs the UART at.
const DefaultBaudRate = 115200

// serialLink wraps the port so reads that hit the receive timeout with
// no data surface as an error instead of a silent zero-byte read, which
// io.ReadFull would otherwise spin on forever.
type serialLink struct {
	serial.Port
}

func (l *serialLink) Read(p []byte) (int, error) {
	n, err := l.Port.Read(p)

	if err == nil && n == 0 {
		return 0, NewLinkError("timeout waiting for device", ErrorLostSync)
	}

	return n, err
}

// OpenSerialLink opens the named serial port as a bootloader byte link:
// 8 data bits, no parity, one stop bit, with a two second receive
// timeout.
func OpenSerialLink(portName string, baudRate int) (io.ReadWriteCloser, error) {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}

	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", portName, err)
	}

	if err = port.SetReadTimeout(2 * time.Second); err != nil {
		port.Close()
		return nil, err
	}

	logger.Debugf("opened %s at %d baud", portName, baudRate)

	return &serialLink{Port: port}, nil
}
