// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gosiboot

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"
)

// pipeLink is one end of an in-memory duplex byte link.
type pipeLink struct {
	io.Reader
	io.Writer
}

// startSimDevice wires a simulated device to the returned host link.
// Closing the link makes the device's command loop return through the
// done channel.
func startSimDevice(t *testing.T, device *SimDevice) (io.ReadWriteCloser, chan error) {
	t.Helper()

	hostRead, deviceWrite := io.Pipe()
	deviceRead, hostWrite := io.Pipe()

	done := make(chan error, 1)

	go func() {
		done <- device.Serve(pipeLink{deviceRead, deviceWrite})
	}()

	host := struct {
		pipeLink
		io.Closer
	}{pipeLink{hostRead, hostWrite}, hostWrite}

	return host, done
}

func waitForDevice(t *testing.T, done chan error) {
	t.Helper()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("device loop failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("device loop did not exit")
	}
}

func TestUploaderIdentify(t *testing.T) {
	device := NewSimDevice(testInfo)
	link, done := startSimDevice(t, device)

	uploader := NewUploader(link, nil)

	if err := uploader.Sync(); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	info, err := uploader.Identify()
	if err != nil {
		t.Fatalf("identify failed: %v", err)
	}

	if info != testInfo {
		t.Errorf("got board %+v, want %+v", info, testInfo)
	}

	link.Close()
	waitForDevice(t, done)
}

func TestUploaderIdentifyBoardMismatch(t *testing.T) {
	device := NewSimDevice(testInfo)
	link, done := startSimDevice(t, device)

	config := NewUploaderConfig(3, ProgMultiMax, BoardIDHMTRP, true)
	uploader := NewUploader(link, config)

	if err := uploader.Sync(); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	_, err := uploader.Identify()

	var linkErr *LinkError
	if !errors.As(err, &linkErr) || linkErr.LinkErrorCode != ErrorBoardMismatch {
		t.Errorf("got %v, want a board mismatch error", err)
	}

	link.Close()
	waitForDevice(t, done)
}

func TestUploaderRecoversAfterDroppedFrame(t *testing.T) {
	device := NewSimDevice(testInfo)
	link, done := startSimDevice(t, device)

	// an oversized multi-byte program count makes the device drop the
	// frame without reading further; the next command must go through
	if _, err := link.Write([]byte{protoProgMulti, ProgMultiMax + 8}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	uploader := NewUploader(link, nil)

	if err := uploader.Sync(); err != nil {
		t.Fatalf("sync after dropped frame failed: %v", err)
	}

	link.Close()
	waitForDevice(t, done)
}

func TestUploadRoundTrip(t *testing.T) {
	device := NewSimDevice(testInfo)
	link, done := startSimDevice(t, device)

	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i * 7)
	}
	data[0] = 0x02 // ljmp, so the first byte is not erased flash

	fw, err := NewFirmware(FlashAppStart, data)
	if err != nil {
		t.Fatalf("firmware setup failed: %v", err)
	}

	uploader := NewUploader(link, nil)

	if err = uploader.Upload(fw); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	if err = uploader.Reboot(); err != nil {
		t.Fatalf("reboot failed: %v", err)
	}

	link.Close()
	waitForDevice(t, done)

	for i, value := range data {
		addr := FlashAppStart + uint16(i)
		if got := device.Flash.ReadByte(addr); got != value {
			t.Fatalf("flash[0x%04x] = 0x%02x, want 0x%02x", addr, got, value)
		}
	}

	if !device.Flash.AppValid() {
		t.Error("uploaded image did not seal as valid")
	}

	if !device.Board.ResetRequested() {
		t.Error("device was not rebooted")
	}
}

func TestUploadDetectsVerifyMismatch(t *testing.T) {
	device := NewSimDevice(testInfo)
	link, done := startSimDevice(t, device)

	// two segments program the same byte; flash can only clear bits on
	// the second write, so reading the second segment back mismatches
	fw := &Firmware{Segments: []Segment{
		{Address: FlashAppStart, Data: []byte{0x00}},
		{Address: FlashAppStart, Data: []byte{0x0F}},
	}}

	uploader := NewUploader(link, nil)
	err := uploader.Upload(fw)

	var linkErr *LinkError
	if !errors.As(err, &linkErr) || linkErr.LinkErrorCode != ErrorVerify {
		t.Errorf("got %v, want a verify error", err)
	}

	link.Close()
	waitForDevice(t, done)
}

func TestUploadRejectsEmptyFirmware(t *testing.T) {
	uploader := NewUploader(&bytes.Buffer{}, nil)

	err := uploader.Upload(&Firmware{})

	var linkErr *LinkError
	if !errors.As(err, &linkErr) || linkErr.LinkErrorCode != ErrorBounds {
		t.Errorf("got %v, want a bounds error", err)
	}
}

func TestSyncRetriesOnBadAck(t *testing.T) {
	// a scripted responder that garbles the first acknowledgement
	link := newScriptLink([]byte{
		protoInSync, protoFailed, // first attempt
		protoInSync, protoOK, // second attempt
	})

	uploader := NewUploader(link, NewUploaderConfig(3, ProgMultiMax, 0, true))

	if err := uploader.Sync(); err != nil {
		t.Errorf("sync did not recover: %v", err)
	}
}

func TestSyncGivesUpAfterRetries(t *testing.T) {
	link := newScriptLink([]byte{
		protoFailed, protoFailed,
		protoFailed, protoFailed,
		protoFailed, protoFailed,
	})

	uploader := NewUploader(link, NewUploaderConfig(3, ProgMultiMax, 0, true))

	err := uploader.Sync()

	var linkErr *LinkError
	if !errors.As(err, &linkErr) || linkErr.LinkErrorCode != ErrorLostSync {
		t.Errorf("got %v, want a lost sync error", err)
	}
}
