package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/permit-scout/internal/leads"
	"github.com/spigell/permit-scout/internal/scheduler"
)

var scansCmd = &cobra.Command{
	Use:   "scans",
	Short: "Trigger scans and inspect the scan ledger",
}

var scansListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show scan history, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := context.Background()
		a := setup(ctx, cmd)
		defer a.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		records, err := a.svc.ListScanHistory(ctx, limit)
		if err != nil {
			return err
		}
		return printScans(cmd, records)
	},
}

var scansTriggerCmd = &cobra.Command{
	Use:   "trigger [SOURCE...]",
	Short: "Scan the given sources, or every source when none is given",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a := setup(ctx, cmd)
		defer a.Close()

		if len(args) == 0 {
			records, err := a.svc.TriggerAll(ctx)
			if perr := printScans(cmd, records); perr != nil {
				return perr
			}
			return err
		}

		records, err := triggerSources(ctx, a.svc.TriggerScan, args)
		if perr := printScans(cmd, records); perr != nil {
			return perr
		}
		return err
	},
}

// triggerSources scans sources in order and stops at the first failure. The
// records of sources scanned before it are returned with the error.
func triggerSources(ctx context.Context, trigger func(context.Context, string) (*leads.ScanRecord, error), sources []string) ([]*leads.ScanRecord, error) {
	records := make([]*leads.ScanRecord, 0, len(sources))
	for _, source := range sources {
		rec, err := trigger(ctx, source)
		if err != nil {
			return records, fmt.Errorf("%s: %w", source, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

var scansStartCmd = &cobra.Command{
	Use:   "start SOURCE",
	Short: "Open a ledger record for a scan run by an external job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a := setup(ctx, cmd)
		defer a.Close()

		rec, err := a.svc.RecordScanStart(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, rec.ID)
		return nil
	},
}

var scansFinishCmd = &cobra.Command{
	Use:   "finish RECORD_ID",
	Short: "Close a ledger record opened with start",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a := setup(ctx, cmd)
		defer a.Close()

		flags := cmd.Flags()
		status, _ := flags.GetString("status")
		found, _ := flags.GetInt("found")
		created, _ := flags.GetInt("new")

		rec, err := a.svc.RecordScanFinish(ctx, args[0], status, found, created)
		if err != nil {
			return err
		}
		return printScans(cmd, []*leads.ScanRecord{rec})
	},
}

var scansScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Scan every source on a cron schedule until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a := setup(ctx, cmd)
		defer a.Close()

		runNow, _ := cmd.Flags().GetBool("now")
		s := scheduler.New(a.svc, a.logger, a.config.Schedule)
		if err := s.Start(ctx, runNow); err != nil {
			return err
		}

		<-ctx.Done()
		a.logger.Info("exiting", zap.String("reason", "interrupted"))
		s.Stop()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scansCmd)
	scansCmd.AddCommand(scansListCmd, scansTriggerCmd, scansStartCmd, scansFinishCmd, scansScheduleCmd)

	scansListCmd.Flags().IntP("limit", "l", 20, "number of records to show, 0 for all")

	scansFinishCmd.Flags().String("status", string(leads.ScanSuccess), "final status: success, partial or error")
	scansFinishCmd.Flags().Int("found", 0, "projects found by the scan")
	scansFinishCmd.Flags().Int("new", 0, "projects that were not known before")

	scansScheduleCmd.Flags().String("schedule", "", "cron spec, e.g. \"@every 6h\" or \"0 */4 * * *\"")
	scansScheduleCmd.Flags().Bool("now", false, "run one scan cycle right away")
	viper.BindPFlag("schedule", scansScheduleCmd.Flags().Lookup("schedule"))

	for _, c := range []*cobra.Command{scansListCmd, scansTriggerCmd, scansFinishCmd} {
		addOutputFlag(c)
	}
}

func printScans(cmd *cobra.Command, records []*leads.ScanRecord) error {
	return render(os.Stdout, outputFormat(cmd), records, func(w io.Writer) {
		fmt.Fprintln(w, "ID\tSOURCE\tSTATUS\tFOUND\tNEW\tSTARTED\tENDED\tERROR")
		for _, rec := range records {
			ended := "-"
			if rec.EndedAt != nil {
				ended = rec.EndedAt.Local().Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
				rec.ID,
				rec.Source,
				rec.Status,
				rec.Found,
				rec.New,
				rec.StartedAt.Local().Format("2006-01-02 15:04:05"),
				ended,
				rec.Error,
			)
		}
	})
}
