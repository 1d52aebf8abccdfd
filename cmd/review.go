package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/codereview/internal/models"
	"github.com/joescharf/codereview/internal/telemetry"
)

var (
	reviewPath         string
	reviewOutput       string
	reviewModel        string
	reviewProvider     string
	reviewJSON         bool
	reviewShowFindings bool
)

var reviewCmd = &cobra.Command{
	Use:   "review [path-or-url]",
	Short: "Review a local directory or git repository",
	Long: `Review a local directory or git repository.

Remote repositories are cloned into a temporary workspace that is removed
when the review finishes. The exit status is non-zero when the review
halts, e.g. when the source cannot be fetched or contains no files.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		locator := reviewPath
		if len(args) == 1 {
			locator = args[0]
		}
		if locator == "" {
			return errors.New("a path or repository URL is required (use --path or pass it as an argument)")
		}
		applyReviewFlags(cmd)
		return reviewRun(cmd.Context(), locator)
	},
}

func init() {
	reviewCmd.Flags().StringVarP(&reviewPath, "path", "p", "", "Local directory or git repository URL")
	reviewCmd.Flags().StringVarP(&reviewOutput, "output", "o", "", "Report output directory (default ./code_reviews)")
	reviewCmd.Flags().StringVarP(&reviewModel, "model", "m", "", "LLM model override")
	reviewCmd.Flags().StringVar(&reviewProvider, "provider", "", "LLM provider: anthropic, openai, ollama or none")
	reviewCmd.Flags().BoolVar(&reviewJSON, "json", false, "Also write findings as JSON next to the report")
	reviewCmd.Flags().BoolVar(&reviewShowFindings, "findings", false, "Print every finding after the summary")
	rootCmd.AddCommand(reviewCmd)
}

// applyReviewFlags lets explicitly set flags override file and env values.
func applyReviewFlags(cmd *cobra.Command) {
	overrides := []struct {
		flag string
		key  string
		val  any
	}{
		{"output", "output_dir", reviewOutput},
		{"model", "llm.model", reviewModel},
		{"provider", "llm.provider", reviewProvider},
		{"json", "report.json", reviewJSON},
	}
	for _, o := range overrides {
		if cmd.Flags().Changed(o.flag) {
			viper.Set(o.key, o.val)
		}
	}
}

func reviewRun(ctx context.Context, locator string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would review %s and write the report to %s", locator, cfg.OutputDir)
		return nil
	}

	shutdown, err := telemetry.Init(ctx, cfg.TelemetrySettings(buildVersion))
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	producer, closer, err := newProducer(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	exec, _, err := newExecutor(cfg, producer)
	if err != nil {
		return err
	}

	ui.Info("Reviewing %s", locator)
	rec, runErr := exec.Run(ctx, locator)
	if err := ui.Summary(rec); err != nil {
		return err
	}
	if reviewShowFindings && !rec.Failed() {
		for _, c := range models.Categories {
			fmt.Fprintln(ui.Out)
			if err := ui.Findings(rec, c); err != nil {
				return err
			}
		}
	}
	if runErr != nil {
		return fmt.Errorf("review halted: %w", runErr)
	}
	return nil
}
