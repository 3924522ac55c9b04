package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var savedCmd = &cobra.Command{
	Use:   "saved",
	Short: "Manage saved projects",
}

var savedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved projects, most recently saved first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := context.Background()
		a := setup(ctx, cmd)
		defer a.Close()

		items, err := a.svc.ListSaved(ctx, a.user)
		if err != nil {
			return err
		}

		return render(os.Stdout, outputFormat(cmd), items, func(w io.Writer) {
			fmt.Fprintln(w, "ENTRY\tPROJECT\tSCORE\tSAVED\tTITLE")
			for _, item := range items {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					item.ID,
					item.ProjectID,
					item.Score,
					item.SavedAt.Local().Format("2006-01-02 15:04"),
					item.Project.Title,
				)
			}
		})
	},
}

var savedAddCmd = &cobra.Command{
	Use:   "add PROJECT_ID...",
	Short: "Save projects; saving an already saved project is a no-op",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a := setup(ctx, cmd)
		defer a.Close()

		for _, id := range args {
			entry, err := a.svc.SaveProject(ctx, a.user, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, entry.ID)
		}
		return nil
	},
}

var savedRemoveCmd = &cobra.Command{
	Use:     "rm ENTRY_ID...",
	Aliases: []string{"remove"},
	Short:   "Remove saved entries",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a := setup(ctx, cmd)
		defer a.Close()

		for _, id := range args {
			if err := a.svc.UnsaveProject(ctx, a.user, id); err != nil {
				return err
			}
			a.logger.Info("saved entry removed", zap.String("entry_id", id))
		}
		return nil
	},
}

var savedBriefCmd = &cobra.Command{
	Use:   "brief ENTRY_ID",
	Short: "Ask the AI assistant for a short brief on a saved project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a := setup(ctx, cmd)
		defer a.Close()

		brief, err := a.svc.BriefSaved(ctx, a.user, args[0])
		if err != nil {
			return err
		}

		return render(os.Stdout, outputFormat(cmd), brief, func(w io.Writer) {
			fmt.Fprintf(w, "summary\t%s\n", brief.Summary)
			fmt.Fprintf(w, "fit\t%t\n", brief.Fit)
			if len(brief.Risks) > 0 {
				fmt.Fprintf(w, "risks\t%s\n", strings.Join(brief.Risks, "; "))
			}
			if brief.NextStep != "" {
				fmt.Fprintf(w, "next step\t%s\n", brief.NextStep)
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(savedCmd)
	savedCmd.AddCommand(savedListCmd, savedAddCmd, savedRemoveCmd, savedBriefCmd)
	addOutputFlag(savedListCmd)
	addOutputFlag(savedBriefCmd)
}
