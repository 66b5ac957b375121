package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"

	"breathing-analytics/internal/analytics"
	"breathing-analytics/internal/models"
	"breathing-analytics/internal/recording"
)

var (
	batchDir        string
	batchWorkers    int
	batchSampleRate float64
	batchNoProgress bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Analyze every recording in a directory",
	Long: `Analyze every *.json recording in a directory in parallel and write the
result next to each recording as <name>.analysis.json.`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVarP(&batchDir, "dir", "d", ".", "Directory with recording files")
	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "w", 4, "Number of parallel workers")
	batchCmd.Flags().Float64Var(&batchSampleRate, "sample-rate", 0, "Frames per second for recordings that do not declare it")
	batchCmd.Flags().BoolVar(&batchNoProgress, "no-progress", false, "Disable the progress bar")
}

// batchSummary итог пакетной обработки
type batchSummary struct {
	Analyzed int
	Failed   int
	Written  []string
}

func runBatch(cmd *cobra.Command, args []string) error {
	params, err := loadParams()
	if err != nil {
		return err
	}

	paths, err := recording.Files(batchDir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no recordings found in %s", batchDir)
	}

	var progress io.Writer = cmd.ErrOrStderr()
	if batchNoProgress {
		progress = io.Discard
	}

	summary := analyzeFiles(paths, params, batchWorkers, batchSampleRate, progress)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Analyzed %d of %d recordings\n", summary.Analyzed, len(paths))
	for _, p := range summary.Written {
		fmt.Fprintf(out, "  - %s\n", p)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d recordings failed", summary.Failed)
	}
	return nil
}

// analyzeFiles загружает записи, анализирует их пулом и пишет результаты рядом с файлами
func analyzeFiles(paths []string, params analytics.Params, workers int, fallbackRate float64, progress io.Writer) batchSummary {
	var summary batchSummary

	template := `{{ string . "prefix" }} {{counters . }} {{bar . }} {{percent . }} {{etime . "%s elapsed"}}`
	bar := pb.ProgressBarTemplate(template).New(len(paths)).SetWriter(progress).Start()
	bar.Set("prefix", "Analyze")
	defer bar.Finish()

	pool := analytics.NewPool(analytics.NewPipeline(params, slog.Default()), len(paths))
	pool.Start(max(workers, 1))
	defer pool.Stop()

	outputs := make(map[string]string, len(paths))
	pending := 0
	for _, path := range paths {
		rec, err := recording.Load(path)
		if err == nil && rec.SampleRateHz <= 0 {
			rec.SampleRateHz = fallbackRate
			if fallbackRate <= 0 {
				err = fmt.Errorf("%s: sample rate is unknown", path)
			}
		}
		if err != nil {
			slog.Warn("skipping recording", "path", path, "error", err)
			summary.Failed++
			bar.Increment()
			continue
		}
		if _, dup := outputs[rec.SessionID]; dup {
			slog.Warn("duplicate session id, skipping", "path", path, "session_id", rec.SessionID)
			summary.Failed++
			bar.Increment()
			continue
		}

		if !pool.Submit(rec) {
			slog.Warn("analysis queue rejected recording", "path", path)
			summary.Failed++
			bar.Increment()
			continue
		}
		outputs[rec.SessionID] = recording.ResultPath(path)
		pending++
	}

	for ; pending > 0; pending-- {
		outcome := <-pool.Results()
		if err := writeOutcome(outputs[outcome.Result.SessionID], outcome.Result); err != nil {
			slog.Warn("failed to write result", "session_id", outcome.Result.SessionID, "error", err)
			summary.Failed++
		} else {
			summary.Analyzed++
			summary.Written = append(summary.Written, outputs[outcome.Result.SessionID])
		}
		bar.Increment()
	}

	return summary
}

func writeOutcome(path string, result models.AnalysisResult) error {
	if path == "" {
		return fmt.Errorf("no output path for session %s", result.SessionID)
	}
	return recording.WriteResult(path, result)
}
