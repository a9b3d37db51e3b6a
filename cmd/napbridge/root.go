// cmd/napbridge/root.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

var metricsListen string

// rootCmd runs the receiver front end for one config file.
var rootCmd = &cobra.Command{
	Use:   "napbridge <config.yaml>",
	Short: "GNSS receiver front end: NAP interrupt bridge, tick timer and nav message supervisor.",
	Long: `napbridge services tracking channel interrupts from a NAP register block ` +
		`(over Modbus, or simulated in-process), decodes GPS LNAV ephemerides and ` +
		`publishes receiver health to an optional Modbus status block.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.Flags().StringVar(&metricsListen, "metrics-listen", "",
		"override metrics.listen (host:port); empty keeps the config value")
}

// Execute runs the root command until SIGINT/SIGTERM and exits non-zero on
// failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	stop()

	// runs exit handlers (archive flush) before leaving
	if err != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}
