// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"net"
	"os"

	"github.com/bbnote/gosiboot"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var (
	flagPort    string
	flagTCP     string
	flagBaud    int
	flagVerbose bool

	flagBoard   string
	flagNoSeal  bool
	flagChunk   int
	flagRetries int

	flagAddress uint16
	flagCount   int

	logger *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "siflash",
	Short: "Firmware programmer for Si1000 radio bootloaders",
	Long: `siflash talks to the first-stage UART bootloader of Si1000-based
radio boards and programs application firmware over the serial link.

Examples:
  siflash info --port /dev/ttyUSB0
  siflash upload --port /dev/ttyUSB0 firmware.hex
  siflash upload --tcp localhost:5760 --board 0x42 firmware.hex
  siflash read --port /dev/ttyUSB0 --address 0x0400 --count 64
  siflash reboot --port /dev/ttyUSB0`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagVerbose {
			logger.SetLevel(logrus.DebugLevel)
		}
		gosiboot.SetLogger(logger)
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Identify the connected board",
	RunE: func(cmd *cobra.Command, args []string) error {
		link, err := openLink()
		if err != nil {
			return err
		}
		defer link.Close()

		uploader := gosiboot.NewUploader(link, uploaderConfig())

		if err = uploader.Sync(); err != nil {
			return err
		}

		info, err := uploader.Identify()
		if err != nil {
			return err
		}

		fmt.Printf("board id:       0x%02x\n", info.ID)
		fmt.Printf("frequency code: 0x%02x\n", info.Frequency)

		return nil
	},
}

var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Erase the application region",
	RunE: func(cmd *cobra.Command, args []string) error {
		link, err := openLink()
		if err != nil {
			return err
		}
		defer link.Close()

		uploader := gosiboot.NewUploader(link, uploaderConfig())

		if err = uploader.Sync(); err != nil {
			return err
		}

		if err = uploader.EraseApplication(); err != nil {
			return err
		}

		logger.Info("application region erased")

		return nil
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <firmware.hex>",
	Short: "Program an Intel HEX firmware image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer file.Close()

		fw, err := gosiboot.LoadIntelHex(file)
		if err != nil {
			return fmt.Errorf("could not parse %s: %w", args[0], err)
		}

		link, err := openLink()
		if err != nil {
			return err
		}
		defer link.Close()

		uploader := gosiboot.NewUploader(link, uploaderConfig())

		if err = uploader.Upload(fw); err != nil {
			return err
		}

		return uploader.Reboot()
	},
}

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read flash contents",
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagCount < 1 {
			return fmt.Errorf("nothing to read")
		}

		link, err := openLink()
		if err != nil {
			return err
		}
		defer link.Close()

		uploader := gosiboot.NewUploader(link, uploaderConfig())

		if err = uploader.Sync(); err != nil {
			return err
		}

		if err = uploader.LoadAddress(flagAddress); err != nil {
			return err
		}

		remaining := flagCount
		addr := flagAddress

		for remaining > 0 {
			n := remaining
			if n > gosiboot.ReadMultiMax {
				n = gosiboot.ReadMultiMax
			}

			data, err := uploader.ReadMulti(n)
			if err != nil {
				return err
			}

			dumpHex(addr, data)

			addr += uint16(n)
			remaining -= n
		}

		return nil
	},
}

var rebootCmd = &cobra.Command{
	Use:   "reboot",
	Short: "Reset the board into the application",
	RunE: func(cmd *cobra.Command, args []string) error {
		link, err := openLink()
		if err != nil {
			return err
		}
		defer link.Close()

		uploader := gosiboot.NewUploader(link, uploaderConfig())

		if err = uploader.Sync(); err != nil {
			return err
		}

		if err = uploader.Reboot(); err != nil {
			return err
		}

		logger.Info("reset requested")

		return nil
	},
}

func openLink() (io.ReadWriteCloser, error) {
	if flagTCP != "" {
		return net.Dial("tcp", flagTCP)
	}

	if flagPort != "" {
		return gosiboot.OpenSerialLink(flagPort, flagBaud)
	}

	return nil, fmt.Errorf("no link given, use --port or --tcp")
}

func uploaderConfig() *gosiboot.UploaderConfig {
	var board byte

	if flagBoard != "" {
		var parsed uint8
		if _, err := fmt.Sscanf(flagBoard, "0x%x", &parsed); err != nil {
			if _, err = fmt.Sscanf(flagBoard, "%d", &parsed); err != nil {
				logger.Fatalf("invalid board id '%s'", flagBoard)
			}
		}
		board = parsed
	}

	return gosiboot.NewUploaderConfig(flagRetries, flagChunk, board, !flagNoSeal)
}

func dumpHex(addr uint16, data []byte) {
	for offset := 0; offset < len(data); offset += 16 {
		end := offset + 16
		if end > len(data) {
			end = len(data)
		}

		fmt.Printf("0x%04x:", addr+uint16(offset))
		for _, value := range data[offset:end] {
			fmt.Printf(" %02x", value)
		}
		fmt.Println()
	}
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
	logger.SetLevel(logrus.InfoLevel)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagPort, "port", "p", "", "serial port of the board")
	rootCmd.PersistentFlags().StringVar(&flagTCP, "tcp", "", "TCP address of a simulated board")
	rootCmd.PersistentFlags().IntVarP(&flagBaud, "baud", "b", gosiboot.DefaultBaudRate, "serial baud rate")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().IntVar(&flagRetries, "retries", 3, "sync attempts before giving up")

	uploadCmd.Flags().StringVar(&flagBoard, "board", "", "refuse to program boards with a different id")
	uploadCmd.Flags().BoolVar(&flagNoSeal, "no-seal", false, "skip writing the image validity trailer")
	uploadCmd.Flags().IntVar(&flagChunk, "chunk", gosiboot.ProgMultiMax, "bytes per program command")

	readCmd.Flags().Uint16Var(&flagAddress, "address", gosiboot.FlashAppStart, "flash address to read from")
	readCmd.Flags().IntVar(&flagCount, "count", 256, "number of bytes to read")

	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(eraseCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(rebootCmd)
}

func main() {
	initLogger()

	if err := rootCmd.Execute(); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}
