package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show pipeline totals for your criteria",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := context.Background()
		a := setup(ctx, cmd)
		defer a.Close()

		stats, err := a.svc.GetStatsSummary(ctx, a.user)
		if err != nil {
			return err
		}

		return render(os.Stdout, outputFormat(cmd), stats, func(w io.Writer) {
			lastScan := "never"
			if stats.LastScanAt != nil {
				lastScan = stats.LastScanAt.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "projects\t%d\n", stats.TotalProjects)
			fmt.Fprintf(w, "pipeline value\t%.0f\n", stats.TotalPipelineValue)
			fmt.Fprintf(w, "average match\t%d\n", stats.AvgMatchScore)
			fmt.Fprintf(w, "high matches\t%d\n", stats.HighMatchCount)
			fmt.Fprintf(w, "last scan\t%s\n", lastScan)
		})
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	addOutputFlag(statsCmd)
}
