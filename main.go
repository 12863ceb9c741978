// Package main provides loopcap, a command line harness for system audio
// loopback capture.
package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-loopback/internal/app"
	"github.com/Raikerian/go-loopback/internal/capture"
	"github.com/Raikerian/go-loopback/internal/config"
	"github.com/Raikerian/go-loopback/internal/infrastructure"
	"github.com/Raikerian/go-loopback/internal/recorder"
	pkginfra "github.com/Raikerian/go-loopback/pkg/infrastructure"
	"github.com/Raikerian/go-loopback/pkg/loopback"
)

var (
	cfgFile  string
	deviceID string
	duration time.Duration
	outPath  string
)

var rootCmd = &cobra.Command{
	Use:           "loopcap",
	Short:         "Capture what the system is playing",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List render endpoints that can be captured",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cleanup, err := newCapturer()
		if err != nil {
			return err
		}
		defer cleanup()

		devices := c.Devices()
		if len(devices) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No render devices found.")
			return nil
		}
		def, _ := c.DefaultDevice()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DEFAULT\tNAME\tID")
		for _, d := range devices {
			mark := ""
			if d.ID == def.ID {
				mark = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", mark, d.DisplayName, d.ID)
		}
		return w.Flush()
	},
}

var defaultCmd = &cobra.Command{
	Use:   "default",
	Short: "Print the default render endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cleanup, err := newCapturer()
		if err != nil {
			return err
		}
		defer cleanup()

		d, ok := c.DefaultDevice()
		if !ok {
			return errors.New("no default render device")
		}
		fmt.Fprintln(cmd.OutOrStdout(), d)
		return nil
	},
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record system audio to a WAV file",
	Run: func(cmd *cobra.Command, args []string) {
		application := app.New(
			config.Module,
			infrastructure.LoggerModule,
			capture.Module,
			recorder.Module,

			fx.Supply(cfgFile),
			fx.Provide(newJob),
			fx.WithLogger(pkginfra.NewFxLoggerAdapter),
		)
		if err := application.Err(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}

		// Run returns on a signal or when the recording ends, and exits
		// non-zero if the recording failed.
		application.Run()
	},
}

func newJob(cfg *config.Config) recorder.Job {
	job := recorder.Job{
		DeviceID:    cfg.Capture.DeviceID,
		Path:        outPath,
		MaxDuration: duration,
	}
	if deviceID != "" {
		job.DeviceID = deviceID
	}
	return job
}

func newCapturer() (*loopback.Capturer, func(), error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := infrastructure.BuildLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	c := loopback.New(logger, cfg.CaptureOptions())
	cleanup := func() {
		if err := c.Close(); err != nil {
			logger.Warn("Failed to close capturer", zap.Error(err))
		}
		_ = logger.Sync()
	}
	return c, cleanup, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file; defaults apply when it does not exist")

	recordCmd.Flags().StringVar(&deviceID, "device", "", "render endpoint id (default: OS default device)")
	recordCmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 uses recorder.max_duration)")
	recordCmd.Flags().StringVar(&outPath, "out", "", "output WAV path (default: timestamped file in recorder.output_dir)")

	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(defaultCmd)
	rootCmd.AddCommand(recordCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
