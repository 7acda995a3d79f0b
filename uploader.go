// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gosiboot

import (
	"bufio"
	"fmt"
	"io"
)

// UploaderConfig carries the host-side knobs: how often to retry the
// initial sync, the chunk size for multi-byte programming, the board
// identity to insist on (0 accepts any board) and whether Upload
// writes the image validity trailer after programming.
type UploaderConfig struct {
	syncRetries   int
	chunkSize     int
	expectedBoard byte
	seal          bool
}

func NewUploaderConfig(syncRetries int, chunkSize int, expectedBoard byte, seal bool) *UploaderConfig {
	if syncRetries < 1 {
		syncRetries = 1
	}

	if chunkSize < 1 || chunkSize > ProgMultiMax {
		chunkSize = ProgMultiMax
	}

	return &UploaderConfig{
		syncRetries:   syncRetries,
		chunkSize:     chunkSize,
		expectedBoard: expectedBoard,
		seal:          seal,
	}
}

func DefaultUploaderConfig() *UploaderConfig {
	return NewUploaderConfig(3, ProgMultiMax, 0, true)
}

// Uploader drives the bootloader wire protocol from the host side of
// the byte link. It is strictly request-then-respond: every method
// blocks until the device has answered or the link failed.
type Uploader struct {
	link   io.ReadWriter
	rd     *bufio.Reader
	config *UploaderConfig
}

func NewUploader(link io.ReadWriter, config *UploaderConfig) *Uploader {
	if config == nil {
		config = DefaultUploaderConfig()
	}

	return &Uploader{
		link:   link,
		rd:     bufio.NewReader(link),
		config: config,
	}
}

// Sync probes the device with GET_SYNC until it answers with a clean
// acknowledgement. This is also the recovery path after a command was
// dropped: the device emits nothing for a bad frame, so the host just
// keeps probing.
func (u *Uploader) Sync() error {
	var err error

	for attempt := 0; attempt < u.config.syncRetries; attempt++ {
		err = u.command(protoGetSync)

		if err == nil {
			return nil
		}

		logger.Debugf("sync attempt %d failed: %v", attempt+1, err)
	}

	return NewLinkError(fmt.Sprintf("no sync after %d attempts: %v", u.config.syncRetries, err), ErrorLostSync)
}

// Identify asks the device for its board identity and frequency code.
func (u *Uploader) Identify() (BoardInfo, error) {
	if err := u.sendFrame(protoGetDevice); err != nil {
		return BoardInfo{}, err
	}

	var raw [2]byte
	if _, err := io.ReadFull(u.rd, raw[:]); err != nil {
		return BoardInfo{}, err
	}

	if err := u.getAck(); err != nil {
		return BoardInfo{}, err
	}

	info := BoardInfo{ID: raw[0], Frequency: raw[1]}

	if u.config.expectedBoard != 0 && info.ID != u.config.expectedBoard {
		return info, NewLinkError(fmt.Sprintf("board id 0x%02x does not match expected 0x%02x",
			info.ID, u.config.expectedBoard), ErrorBoardMismatch)
	}

	return info, nil
}

// EraseApplication erases the whole application region.
func (u *Uploader) EraseApplication() error {
	return u.command(protoChipErase)
}

// EraseParams erases the parameter/scratch region.
func (u *Uploader) EraseParams() error {
	return u.command(protoParamErase)
}

// LoadAddress sets the device's address cursor.
func (u *Uploader) LoadAddress(addr uint16) error {
	return u.command(protoLoadAddress, byte(addr), byte(addr>>8))
}

// ProgramByte programs a single byte at the cursor and advances it.
func (u *Uploader) ProgramByte(value byte) error {
	return u.command(protoProgFlash, value)
}

// ReadFlashByte reads a single byte at the cursor and advances it.
func (u *Uploader) ReadFlashByte() (byte, error) {
	if err := u.sendFrame(protoReadFlash); err != nil {
		return 0, err
	}

	value, err := u.rd.ReadByte()
	if err != nil {
		return 0, err
	}

	return value, u.getAck()
}

// ProgramMulti programs up to ProgMultiMax bytes at the cursor in one
// frame and advances the cursor past them.
func (u *Uploader) ProgramMulti(data []byte) error {
	if len(data) == 0 || len(data) > ProgMultiMax {
		return NewLinkError(fmt.Sprintf("multi-byte program of %d bytes outside 1..%d",
			len(data), ProgMultiMax), ErrorBounds)
	}

	args := make([]byte, 0, len(data)+1)
	args = append(args, byte(len(data)))
	args = append(args, data...)

	return u.command(protoProgMulti, args...)
}

// ReadMulti reads count bytes starting at the cursor.
func (u *Uploader) ReadMulti(count int) ([]byte, error) {
	if count < 1 || count > ReadMultiMax {
		return nil, NewLinkError(fmt.Sprintf("multi-byte read of %d bytes outside 1..%d",
			count, ReadMultiMax), ErrorBounds)
	}

	if err := u.sendFrame(protoReadMulti, byte(count)); err != nil {
		return nil, err
	}

	data := make([]byte, count)
	if _, err := io.ReadFull(u.rd, data); err != nil {
		return nil, err
	}

	return data, u.getAck()
}

// Reboot requests a software reset. The device resets without an
// acknowledgement, so none is read.
func (u *Uploader) Reboot() error {
	return u.sendFrame(protoReboot)
}

// Upload runs the full programming sequence: sync, identify, erase
// the application region, program every firmware segment in chunks,
// read everything back for verification, and finally write the image
// validity trailer if sealing is enabled.
func (u *Uploader) Upload(fw *Firmware) error {
	if fw == nil || len(fw.Segments) == 0 {
		return NewLinkError("no firmware data to upload", ErrorBounds)
	}

	if err := u.Sync(); err != nil {
		return err
	}

	info, err := u.Identify()
	if err != nil {
		return err
	}

	logger.Infof("uploading %d bytes to board 0x%02x (frequency code 0x%02x)",
		fw.Size(), info.ID, info.Frequency)

	if err := u.EraseApplication(); err != nil {
		return err
	}

	written := 0
	for _, seg := range fw.Segments {
		if err := u.LoadAddress(seg.Address); err != nil {
			return err
		}

		data := seg.Data
		for len(data) > 0 {
			n := u.config.chunkSize
			if n > len(data) {
				n = len(data)
			}

			if err := u.ProgramMulti(data[:n]); err != nil {
				return err
			}

			data = data[n:]
			written += n
		}

		logger.Debugf("programmed segment of %d bytes at 0x%04x", len(seg.Data), seg.Address)
	}

	logger.Infof("programmed %d bytes, verifying", written)

	if err := u.Verify(fw); err != nil {
		return err
	}

	if u.config.seal {
		if err := u.sealImage(fw); err != nil {
			return err
		}
	}

	logger.Info("upload complete")

	return nil
}

// Verify reads every firmware segment back and compares it against
// the local copy.
func (u *Uploader) Verify(fw *Firmware) error {
	for _, seg := range fw.Segments {
		if err := u.LoadAddress(seg.Address); err != nil {
			return err
		}

		offset := 0
		for offset < len(seg.Data) {
			n := len(seg.Data) - offset
			if n > ReadMultiMax {
				n = ReadMultiMax
			}

			readback, err := u.ReadMulti(n)
			if err != nil {
				return err
			}

			for i, value := range readback {
				if value != seg.Data[offset+i] {
					addr := seg.Address + uint16(offset+i)
					return NewLinkError(fmt.Sprintf("verify failed at 0x%04x: wrote 0x%02x, read 0x%02x",
						addr, seg.Data[offset+i], value), ErrorVerify)
				}
			}

			offset += n
		}
	}

	return nil
}

// sealImage computes the validity trailer the boot gate will check on
// the next reset and programs it into the last two bytes of the
// application region. The region is freshly erased outside the
// programmed segments, so the host can reconstruct it exactly.
func (u *Uploader) sealImage(fw *Firmware) error {
	const regionSize = FlashAppEnd - FlashAppStart

	image := make([]byte, regionSize)
	for i := range image {
		image[i] = 0xFF
	}

	for _, seg := range fw.Segments {
		copy(image[seg.Address-FlashAppStart:], seg.Data)
	}

	crc := ImageCRC(image[:regionSize-2])

	logger.Debugf("sealing image with crc 0x%04x", crc)

	if err := u.LoadAddress(FlashAppEnd - 2); err != nil {
		return err
	}

	if err := u.ProgramByte(byte(crc)); err != nil {
		return err
	}

	return u.ProgramByte(byte(crc >> 8))
}

func (u *Uploader) command(opcode byte, args ...byte) error {
	if err := u.sendFrame(opcode, args...); err != nil {
		return err
	}

	return u.getAck()
}

func (u *Uploader) sendFrame(opcode byte, args ...byte) error {
	frame := NewBuffer(len(args) + 2)
	frame.WriteFrame(opcode, args...)

	_, err := u.link.Write(frame.Bytes())

	return err
}

func (u *Uploader) getAck() error {
	var raw [2]byte

	if _, err := io.ReadFull(u.rd, raw[:]); err != nil {
		return err
	}

	return checkAck(raw[0], raw[1])
}
