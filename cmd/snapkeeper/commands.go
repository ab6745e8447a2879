package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/younsl/snapkeeper/internal/config"
	"github.com/younsl/snapkeeper/internal/models"
	"github.com/younsl/snapkeeper/internal/version"
	"github.com/younsl/snapkeeper/pkg/formatter"
	"github.com/younsl/snapkeeper/pkg/lifecycle"
	"go.uber.org/zap"
)

func newRootCmd(e *env) *cobra.Command {
	a := &app{env: e, v: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:   "snapkeeper",
		Short: "Snapshot lifecycle tool for the EBS volumes of the current instance",
		Long: `snapkeeper creates, purges and copies EBS snapshots of the volumes
attached to the EC2 instance it runs on. Every step is logged to an
append-only log file and a summary table is printed when a run completes.`,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}

			if err := a.setupLogging(); err != nil {
				return err
			}
			a.log.Error("unsupported arguments provided, exit", zap.Strings("args", args))
			fmt.Fprintf(e.stderr, "Unsupported arguments provided: %v\n", args)
			return nil
		},
	}
	rootCmd.SetOut(e.stdout)
	rootCmd.SetErr(e.stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Config file (default searches /etc/snapkeeper, $HOME/.snapkeeper and .)")
	flags.String("log-file", "", "Log file to append to, - for stderr (default snapkeeper.log)")
	flags.String("log-level", "", "Log level: debug, info, warn or error (default info)")
	_ = a.v.BindPFlag(config.KeyLogFile, flags.Lookup("log-file"))
	_ = a.v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))

	rootCmd.AddCommand(
		newCreateCmd(a),
		newDeleteCmd(a),
		newCopyCmd(a),
		newListCmd(a),
		newVersionCmd(e),
	)

	return rootCmd
}

func newCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create snapshots of attached volumes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.setup(ctx, cmd, args); err != nil {
				return err
			}

			outcomes := a.run(fmt.Sprintf("Creating snapshots in %s", regionLabel(a.instance.Region)), func() []models.Outcome {
				return a.orchestrator.CreateAll(ctx, a.instance.Region, a.volumes)
			})
			a.finish(outcomes)
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Purge old snapshots of attached volumes, keeping the most recent ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.setup(ctx, cmd, args); err != nil {
				return err
			}

			policy, err := a.retentionPolicy(cmd.Flags())
			if err != nil {
				a.log.Error("invalid retention", zap.Error(err))
				return err
			}
			region := a.region(cmd.Flags(), "region")

			outcomes := a.run(fmt.Sprintf("Purging snapshots in %s", regionLabel(region)), func() []models.Outcome {
				return a.orchestrator.PurgeAll(ctx, region, a.volumes, policy, dryRun)
			})
			a.finish(outcomes)
			return nil
		},
	}

	cmd.Flags().IntP("keep", "k", 0, "How many snapshots to keep (default from config)")
	cmd.Flags().StringP("region", "r", "", "Region containing snapshots to purge (default current instance region)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show which snapshots would be purged without deleting them")

	return cmd
}

func newCopyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Copy the latest snapshot of attached volumes from one region to another",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.setup(ctx, cmd, args); err != nil {
				return err
			}

			src := a.region(cmd.Flags(), "src")
			dst, _ := cmd.Flags().GetString("dst")
			if dst == "" {
				dst = a.cfg.BackupRegion
			}
			a.warnRegion(dst)

			outcomes := a.run(fmt.Sprintf("Copying snapshots from %s to %s", regionLabel(src), regionLabel(dst)), func() []models.Outcome {
				return a.orchestrator.CopyAll(ctx, src, dst, a.volumes)
			})
			a.finish(outcomes)
			return nil
		},
	}

	cmd.Flags().StringP("src", "s", "", "Region from which to copy snapshots (default current instance region)")
	cmd.Flags().StringP("dst", "d", "", "Region to which to copy snapshots (default backup_region from config)")

	return cmd
}

func newListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List completed snapshots of attached volumes and what the retention would purge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.setup(ctx, cmd, args); err != nil {
				return err
			}

			policy, err := a.retentionPolicy(cmd.Flags())
			if err != nil {
				a.log.Error("invalid retention", zap.Error(err))
				return err
			}
			region := a.region(cmd.Flags(), "region")

			plans := a.orchestrator.PlanAll(ctx, region, a.volumes, policy)
			formatter.PrintSnapshotsTable(a.env.stdout, snapshotRows(plans), a.now())

			a.log.Info("finished", zap.Int("volumes", len(plans)))
			_ = a.log.Sync()
			return nil
		},
	}

	cmd.Flags().IntP("keep", "k", 0, "Retention to evaluate (default from config)")
	cmd.Flags().StringP("region", "r", "", "Region containing snapshots to list (default current instance region)")

	return cmd
}

func newVersionCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(e.stdout, version.Get())
		},
	}
}

// snapshotRows flattens retention plans into table rows, newest snapshot first per volume
func snapshotRows(plans []lifecycle.Plan) []formatter.SnapshotRow {
	var rows []formatter.SnapshotRow
	for _, plan := range plans {
		if plan.Err != nil || len(plan.Snapshots) == 0 {
			rows = append(rows, formatter.SnapshotRow{VolumeID: plan.VolumeID, Err: plan.Err})
			continue
		}

		for i := len(plan.Snapshots) - 1; i >= 0; i-- {
			rows = append(rows, formatter.SnapshotRow{
				VolumeID: plan.VolumeID,
				Snapshot: plan.Snapshots[i],
				Expired:  i < len(plan.Expired),
			})
		}
	}
	return rows
}
