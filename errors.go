package gosiboot

import (
	"fmt"
)

type LinkErrorCode int

const (
	ErrorOK            LinkErrorCode = 0
	ErrorLostSync                    = -1
	ErrorBadResponse                 = -2
	ErrorBounds                      = -3
	ErrorVerify                      = -4
	ErrorBoardMismatch               = -5
)

// LinkError is returned by the host-side uploader when the device
// answers with something other than the expected acknowledgement, or
// not at all. The device itself never reports errors on the wire: a
// bad frame is dropped silently and the missing acknowledgement is the
// only signal the host gets.
type LinkError struct {
	errorString   string
	LinkErrorCode LinkErrorCode
}

func (e *LinkError) Error() string {
	return e.errorString
}

func NewLinkError(msg string, code LinkErrorCode) error {
	return &LinkError{msg, code}
}

// checkAck converts the two response bytes following a command into a
// library error, logging unexpected values as debug output.
func checkAck(insync byte, ok byte) error {
	if insync != protoInSync {
		logger.Debugf("expected insync byte 0x%02x, got 0x%02x", protoInSync, insync)
		return NewLinkError(fmt.Sprintf("lost sync with device (got 0x%02x)", insync), ErrorLostSync)
	}

	if ok != protoOK {
		logger.Debugf("expected status byte 0x%02x, got 0x%02x", protoOK, ok)
		return NewLinkError(fmt.Sprintf("unexpected device status 0x%02x", ok), ErrorBadResponse)
	}

	return nil
}
