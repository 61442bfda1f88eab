package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/govbatch/govbatch/internal/config"
	"github.com/govbatch/govbatch/internal/core"
	"github.com/govbatch/govbatch/internal/core/engine"
	"github.com/govbatch/govbatch/internal/core/store"
	"github.com/govbatch/govbatch/internal/gov"
	"github.com/govbatch/govbatch/internal/observability"
	"github.com/govbatch/govbatch/internal/output"
)

// Per-invocation batch flags, shared by the batch subcommands.
var (
	batchConcurrency int
	batchTimeout     time.Duration
	batchRetries     int
	batchNoAudit     bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run batches of governance API operations",
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.PersistentFlags().IntVarP(&batchConcurrency, "concurrency", "c", 0, "worker count (default from config)")
	batchCmd.PersistentFlags().DurationVar(&batchTimeout, "task-timeout", 0, "per-task timeout (default from config)")
	batchCmd.PersistentFlags().IntVar(&batchRetries, "max-retries", 0, "retry budget per task (default from config)")
	batchCmd.PersistentFlags().BoolVar(&batchNoAudit, "no-audit", false, "skip persisting the run to the audit store")
}

// loadConfig decodes the merged viper state.
func loadConfig() (*config.Config, error) {
	return config.FromViper(viper.GetViper())
}

// batchRuntime bundles everything one batch invocation needs.
type batchRuntime struct {
	cfg     *config.Config
	tracker *engine.Tracker
	runner  *engine.Runner
}

// newBatchRuntime wires the governance client, tracker, throttle, and
// runner from config. Flag overrides have already been merged by viper.
func newBatchRuntime() (*batchRuntime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateAPI(); err != nil {
		return nil, err
	}

	client, err := gov.NewClient(cfg.API.BaseURL, cfg.API.Token)
	if err != nil {
		return nil, err
	}
	client.HTTPClient.Timeout = cfg.APITimeout()

	tracker, err := engine.NewTracker(cfg.Categories(), cfg.Rate.SafetyThreshold)
	if err != nil {
		return nil, err
	}

	throttle := &engine.Throttle{
		Tracker:     tracker,
		Executor:    client,
		MaxRetries:  cfg.Batch.MaxRetries,
		BaseBackoff: cfg.Batch.BaseBackoff,
		MaxBackoff:  cfg.Batch.MaxBackoff,
		Logger:      observability.CLILogger,
	}

	return &batchRuntime{
		cfg:     cfg,
		tracker: tracker,
		runner:  &engine.Runner{Throttle: throttle, Logger: observability.CLILogger},
	}, nil
}

// job assembles the batch job from config defaults and flag overrides.
func (rt *batchRuntime) job(tasks []core.Task) core.BatchJob {
	job := core.BatchJob{
		Tasks:          tasks,
		Concurrency:    rt.cfg.Batch.Concurrency,
		PerTaskTimeout: rt.cfg.Batch.PerTaskTimeout,
		MaxRetries:     rt.cfg.Batch.MaxRetries,
	}
	if batchConcurrency > 0 {
		job.Concurrency = batchConcurrency
	}
	if batchTimeout > 0 {
		job.PerTaskTimeout = batchTimeout
	}
	if batchRetries > 0 {
		job.MaxRetries = batchRetries
	}
	return job
}

// run executes the tasks and persists the audit trail.
func (rt *batchRuntime) run(ctx context.Context, kind string, tasks []core.Task) (*core.BatchResult, error) {
	result, err := rt.runner.Run(ctx, rt.job(tasks))
	if err != nil {
		return nil, err
	}

	if !batchNoAudit {
		if err := rt.persist(ctx, kind, result); err != nil {
			// The batch already ran; a failed audit write should not
			// discard its results.
			observability.CLILogger.Warn("batch executed but audit save failed", zap.Error(err))
		}
	}

	return result, nil
}

// persist saves the run and a rate window snapshot when a store is
// configured.
func (rt *batchRuntime) persist(ctx context.Context, kind string, result *core.BatchResult) error {
	if strings.TrimSpace(rt.cfg.Store.Path) == "" && strings.TrimSpace(rt.cfg.Store.URL) == "" {
		return nil
	}

	db, err := store.Open(ctx, rt.cfg.Store)
	if err != nil {
		return err
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	runID := uuid.New().String()
	if err := db.SaveBatch(ctx, runID, kind, result); err != nil {
		return err
	}
	if err := db.SaveRateObservations(ctx, rt.tracker.Snapshot(), time.Now().UTC()); err != nil {
		return err
	}

	observability.CLILogger.Debug("batch run persisted",
		zap.String("run_id", runID),
		zap.String("kind", kind))
	return nil
}

// render prints the batch result in the configured format.
func (rt *batchRuntime) render(result *core.BatchResult) error {
	format, err := output.ParseFormat(rt.cfg.Output)
	if err != nil {
		return err
	}
	rendered, err := output.NewFormatter(format).FormatBatch(result)
	if err != nil {
		return err
	}
	fmt.Println(rendered)

	if verbose && format == output.FormatTable {
		fmt.Println(output.FormatRateSnapshot(rt.tracker.Snapshot()))
	}
	return nil
}

// openStore opens and migrates the configured audit store.
func openStore(ctx context.Context) (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// readValues reads one value per line from a file, or stdin when path
// is "-". Blank lines and #-comments are skipped.
func readValues(path string) ([]string, error) {
	var reader io.Reader
	if path == "-" {
		reader = os.Stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close() // nolint:errcheck
		reader = file
	}

	values := make([]string, 0)
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		values = append(values, raw)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no values found in %s", path)
	}
	return values, nil
}

// resolveValues merges positional values with an optional --file input.
func resolveValues(positional []string, file string) ([]string, error) {
	file = strings.TrimSpace(file)
	if file != "" {
		if len(positional) > 0 {
			return nil, fmt.Errorf("cannot combine positional values with --file")
		}
		return readValues(file)
	}

	values := make([]string, 0, len(positional))
	for _, raw := range positional {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		values = append(values, value)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("at least one value is required")
	}
	return values, nil
}
