// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/bbnote/gosiboot"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var (
	exitProgram chan bool

	logger *logrus.Logger
)

func setUpSignalHandler() {
	signals := make(chan os.Signal, 1)
	exitProgram = make(chan bool, 1)

	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-signals
		exitProgram <- true
	}()
}

func initLogger() {
	formatter := &prefixed.TextFormatter{
		DisableColors:   false,
		TimestampFormat: "15:04:05",
		FullTimestamp:   true,
		ForceFormatting: true,
	}

	logger = logrus.New()

	logger.SetFormatter(formatter)
	logger.SetOutput(os.Stdout)
}

func serveConnection(device *gosiboot.SimDevice, conn net.Conn) {
	logger.Infof("host connected from %s", conn.RemoteAddr())

	if err := device.Serve(conn); err != nil {
		logger.Error("link error: ", err)
	}

	conn.Close()

	if device.Board.ResetRequested() {
		logger.Info("host requested a reset, powering device back up")

		device.Board.ResetCauseReg = gosiboot.ResetSoftware
	}

	logger.Infof("host %s disconnected", conn.RemoteAddr())
}

func main() {
	initLogger()
	gosiboot.SetLogger(logger)

	logger.Info("Welcome to the gosiboot simulated device...")

	flagLogLevel := flag.Int("LogLevel", int(logrus.DebugLevel), "Logging verbosity [0 - 7]")
	flagListen := flag.String("Listen", "localhost:5760", "TCP address to listen on")
	flagBoard := flag.Int("Board", int(gosiboot.BoardIDRFD900), "Board id to report")
	flagFreq := flag.Int("Frequency", int(gosiboot.Freq915), "Frequency code to report")

	flag.Parse()

	logger.SetLevel(logrus.Level(*flagLogLevel))

	info := gosiboot.BoardInfo{
		ID:        byte(*flagBoard),
		Frequency: byte(*flagFreq),
	}

	device := gosiboot.NewSimDevice(info)

	listener, err := net.Listen("tcp", *flagListen)
	if err != nil {
		logger.Fatal(err)
	}

	setUpSignalHandler()

	go func() {
		<-exitProgram
		listener.Close()
	}()

	logger.Infof("simulated board 0x%02x listening on %s", info.ID, *flagListen)
	logger.Infof("point siflash at it with --tcp %s", *flagListen)

	for {
		conn, err := listener.Accept()

		if err != nil {
			logger.Info("listener closed, shutting down")
			os.Exit(0)
		}

		serveConnection(device, conn)
	}
}
