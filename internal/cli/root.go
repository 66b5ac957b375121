package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"breathing-analytics/internal/analytics"
)

var (
	paramsFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "breathctl",
	Short: "Breathing analysis of recorded pose-landmark sessions",
	Long: `breathctl analyzes recordings of body landmarks and reports the breathing
rate, periods of shallow or stopped breathing, and coaching insights.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	},
}

// Execute запускает дерево команд
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&paramsFile, "params", "", "YAML file overriding analysis parameters")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
}

func loadParams() (analytics.Params, error) {
	if paramsFile == "" {
		return analytics.DefaultParams(), nil
	}
	params, err := analytics.LoadParams(paramsFile)
	if err != nil {
		return params, fmt.Errorf("failed to load params: %w", err)
	}
	return params, nil
}
