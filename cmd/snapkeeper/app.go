package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/younsl/snapkeeper/internal/config"
	"github.com/younsl/snapkeeper/internal/logging"
	"github.com/younsl/snapkeeper/internal/models"
	"github.com/younsl/snapkeeper/pkg/aws"
	"github.com/younsl/snapkeeper/pkg/formatter"
	"github.com/younsl/snapkeeper/pkg/lifecycle"
	"github.com/younsl/snapkeeper/pkg/utils"
	"go.uber.org/zap"
)

// env holds what differs between a real run and a test run
type env struct {
	stdout      io.Writer
	stderr      io.Writer
	showSpinner bool
	metadata    func(timeout time.Duration) *aws.MetadataResolver
	clients     func(cfg *config.Config) aws.ClientFactory
	clock       func() time.Time
	sleep       lifecycle.SleepFunc
}

// app is the state shared by every subcommand of one run
type app struct {
	env        *env
	v          *viper.Viper
	configPath string

	cfg          *config.Config
	log          *zap.Logger
	instance     models.Instance
	orchestrator *lifecycle.Orchestrator
	volumes      []models.Volume
	started      time.Time
}

// setupLogging loads the configuration and opens the log stream
func (a *app) setupLogging() error {
	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	log, err := logging.New(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return err
	}
	a.log = log
	return nil
}

// setup resolves the local instance and its attached volumes.
// Failing to resolve the instance is fatal for the run.
func (a *app) setup(ctx context.Context, cmd *cobra.Command, args []string) error {
	if err := a.setupLogging(); err != nil {
		return err
	}

	a.started = a.now()
	a.log.Info("started",
		zap.String("command", cmd.Name()),
		zap.Strings("args", args),
		zap.Strings("flags", changedFlags(cmd.Flags())))

	instance, err := a.env.metadata(a.cfg.MetadataTimeout).Resolve(ctx)
	if err != nil {
		a.log.Error("unable to resolve current instance from metadata service", zap.Error(err))
		return err
	}
	a.instance = instance

	opts := []lifecycle.Option{lifecycle.WithWaitInterval(a.cfg.WaitInterval)}
	if a.env.clock != nil {
		opts = append(opts, lifecycle.WithClock(a.env.clock))
	}
	if a.env.sleep != nil {
		opts = append(opts, lifecycle.WithSleep(a.env.sleep))
	}
	a.orchestrator = lifecycle.New(a.log, a.env.clients(a.cfg), opts...)

	a.volumes = a.orchestrator.Volumes(ctx, instance)
	return nil
}

// finish prints the run summary and closes the log stream
func (a *app) finish(outcomes []models.Outcome) {
	duration := a.now().Sub(a.started)

	formatter.PrintOutcomesTable(a.env.stdout, outcomes, a.started, duration)
	formatter.PrintOutcomesSummary(a.env.stdout, outcomes)

	a.log.Info("finished", zap.Duration("took", duration))
	_ = a.log.Sync()
}

// run executes fn behind a spinner on stderr
func (a *app) run(message string, fn func() []models.Outcome) []models.Outcome {
	if !a.env.showSpinner {
		return fn()
	}

	s := spinner.New(spinner.CharSets[9], 200*time.Millisecond, spinner.WithWriter(a.env.stderr))
	s.Suffix = fmt.Sprintf(" %s ...", message)
	s.Start()

	start := time.Now()
	outcomes := fn()

	s.FinalMSG = fmt.Sprintf("✓ [%d volumes processed] %s - Completed in %.2f seconds\n",
		len(outcomes), message, time.Since(start).Seconds())
	s.Stop()

	return outcomes
}

// region returns the value of the named flag, or the instance region when unset.
// Unknown regions are only warned about.
func (a *app) region(flags *pflag.FlagSet, name string) string {
	region, _ := flags.GetString(name)
	if region == "" {
		region = a.instance.Region
	}
	a.warnRegion(region)
	return region
}

func (a *app) warnRegion(region string) {
	if !utils.IsValidRegion(region) {
		a.log.Warn("region is not in the known region list", zap.String("region", region))
		fmt.Fprintf(a.env.stderr, "Warning: unknown region '%s'\n", region)
	}
}

// retentionPolicy returns the policy from --keep when given, else from configuration
func (a *app) retentionPolicy(flags *pflag.FlagSet) (models.RetentionPolicy, error) {
	if !flags.Changed("keep") {
		return a.cfg.RetentionPolicy(), nil
	}
	keep, err := flags.GetInt("keep")
	if err != nil {
		return models.RetentionPolicy{}, err
	}
	return models.NewRetentionPolicy(keep)
}

// regionLabel renders a region code with its descriptive name when known
func regionLabel(region string) string {
	name := utils.GetRegionDescriptiveName(region)
	if name == region {
		return region
	}
	return fmt.Sprintf("%s (%s)", region, name)
}

func (a *app) now() time.Time {
	if a.env.clock != nil {
		return a.env.clock()
	}
	return time.Now()
}

// changedFlags lists the flags set on the command line as name=value
func changedFlags(flags *pflag.FlagSet) []string {
	var set []string
	flags.Visit(func(f *pflag.Flag) {
		set = append(set, f.Name+"="+f.Value.String())
	})
	return set
}
