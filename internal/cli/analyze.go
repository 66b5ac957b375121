package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"breathing-analytics/internal/analytics"
	"breathing-analytics/internal/insights"
	"breathing-analytics/internal/models"
	"breathing-analytics/internal/recording"
)

var (
	analyzeFile       string
	analyzeSampleRate float64
	analyzeJSON       bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a single recording",
	Long: `Analyze one recording document and print the breathing rate, fatigue
windows and insights. The sample rate is taken from the document unless
--sample-rate is given.`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVarP(&analyzeFile, "file", "f", "", "Recording JSON file")
	analyzeCmd.Flags().Float64Var(&analyzeSampleRate, "sample-rate", 0, "Frames per second of the recording (overrides the document)")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the full result as JSON")
	_ = analyzeCmd.MarkFlagRequired("file")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	params, err := loadParams()
	if err != nil {
		return err
	}

	rec, err := recording.Load(analyzeFile)
	if err != nil {
		return err
	}
	if analyzeSampleRate > 0 {
		rec.SampleRateHz = analyzeSampleRate
	}
	if rec.SampleRateHz <= 0 {
		return fmt.Errorf("sample rate is unknown: set sample_rate_hz in %s or pass --sample-rate", analyzeFile)
	}

	result := analytics.NewPipeline(params, slog.Default()).AnalyzeRecording(rec)

	out := cmd.OutOrStdout()
	if analyzeJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	printReport(out, result)
	return nil
}

// printReport выводит результат в читаемом виде
func printReport(w io.Writer, result models.AnalysisResult) {
	fmt.Fprintf(w, "Session: %s\n", result.SessionID)
	fmt.Fprintf(w, "Frames: %d over %s at %.1f fps\n",
		result.FrameCount, insights.FormatClock(result.DurationMs), result.SampleRateHz)

	rate := result.Rate
	if rate.HasRate() {
		fmt.Fprintf(w, "Breathing rate: %.1f bpm (%.3f Hz), confidence %.2f\n", rate.RateBPM, rate.FrequencyHz, rate.Confidence)
	} else {
		fmt.Fprintf(w, "Breathing rate: not enough data (%s)\n", rate.Method)
	}
	fmt.Fprintf(w, "Depth score: %.2f\n", rate.DepthScore)

	fmt.Fprintf(w, "Fatigue windows: %d\n", len(result.FatigueWindows))
	for _, fw := range result.FatigueWindows {
		fmt.Fprintf(w, "  - %s to %s, severity %.2f\n",
			insights.FormatClock(fw.StartMs), insights.FormatClock(fw.EndMs), fw.Severity)
	}

	fmt.Fprintf(w, "Insights: %d\n", len(result.Insights))
	for _, in := range result.Insights {
		fmt.Fprintf(w, "  [%s] %s\n", in.Severity, in.Title)
		fmt.Fprintf(w, "      %s\n", in.Description)
		fmt.Fprintf(w, "      %s\n", in.Recommendation)
	}

	for _, d := range result.Diagnostics {
		fmt.Fprintf(w, "Warning: %s (%s)\n", d.Detail, d.Kind)
	}
}
