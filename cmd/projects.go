package cmd

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/permit-scout/internal/filtering"
	"github.com/spigell/permit-scout/internal/leads"
	"github.com/spigell/permit-scout/internal/query"
	"github.com/spigell/permit-scout/internal/scoring"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List and import projects",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects scored against your criteria",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return listProjects(cmd)
	},
}

var projectsImportCmd = &cobra.Command{
	Use:   "import FILE...",
	Short: "Import projects from JSON or YAML files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return importProjects(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(projectsCmd)
	projectsCmd.AddCommand(projectsListCmd, projectsImportCmd)

	flags := projectsListCmd.Flags()
	flags.StringP("search", "s", "", "case-insensitive text to look for in title, location, agency and description")
	flags.StringP("category", "c", "", "only show one category")
	flags.String("source", "", "only show one source")
	flags.IntP("min-match", "m", 0, "hide projects scoring below this (0..100)")
	flags.String("sort", query.SortScore, "sort by score, value or posted")
	flags.IntP("limit", "l", 50, "maximum number of projects to show")
	flags.BoolP("all", "a", false, "show every matching project, ignoring --limit")
	flags.Bool("explain", false, "show the filter steps and which criteria each project missed")
	addOutputFlag(projectsListCmd)
}

func filtersFromFlags(cmd *cobra.Command) query.Filters {
	flags := cmd.Flags()
	search, _ := flags.GetString("search")
	category, _ := flags.GetString("category")
	source, _ := flags.GetString("source")
	minMatch, _ := flags.GetInt("min-match")
	sortBy, _ := flags.GetString("sort")
	limit, _ := flags.GetInt("limit")

	return query.Filters{
		Search:   search,
		Category: category,
		Source:   source,
		MinMatch: minMatch,
		SortBy:   sortBy,
		Limit:    limit,
	}
}

func listProjects(cmd *cobra.Command) error {
	ctx := context.Background()
	a := setup(ctx, cmd)
	defer a.Close()

	f := filtersFromFlags(cmd)
	res, err := fetchProjects(ctx, a, cmd, f)
	if err != nil {
		return err
	}

	explain, _ := cmd.Flags().GetBool("explain")
	if !explain {
		return render(os.Stdout, outputFormat(cmd), res, func(w io.Writer) {
			projectsTable(w, res.Items)
			fmt.Fprintf(w, "\nshowing %d of %d\n", len(res.Items), res.Total)
		})
	}

	criteria, err := a.svc.GetCriteria(ctx, a.user)
	if err != nil {
		return err
	}

	statuses := filtering.Describe(query.Steps(f))
	missed := make(map[string][]string, len(res.Items))
	for _, item := range res.Items {
		missed[item.ID] = scoring.Explain(item.Project, criteria).Missed()
	}

	report := struct {
		Filters []filtering.Status  `json:"filters"`
		Missed  map[string][]string `json:"missed"`
		*query.Result
	}{statuses, missed, res}

	return render(os.Stdout, outputFormat(cmd), report, func(w io.Writer) {
		fmt.Fprintln(w, "FILTER\tENABLED\tDETAILS")
		for _, st := range statuses {
			details := st.Reason
			for _, k := range slices.Sorted(maps.Keys(st.Details)) {
				details = strings.TrimSpace(fmt.Sprintf("%s %s=%s", details, k, st.Details[k]))
			}
			fmt.Fprintf(w, "%s\t%t\t%s\n", st.Name, st.Enabled, details)
		}
		fmt.Fprintln(w)

		fmt.Fprintln(w, "ID\tSCORE\tMISSED")
		for _, item := range res.Items {
			fmt.Fprintf(w, "%s\t%d\t%s\n", item.ID, item.Score, strings.Join(missed[item.ID], ","))
		}
		fmt.Fprintf(w, "\nshowing %d of %d\n", len(res.Items), res.Total)
	})
}

func fetchProjects(ctx context.Context, a *application, cmd *cobra.Command, f query.Filters) (*query.Result, error) {
	if all, _ := cmd.Flags().GetBool("all"); !all {
		return a.svc.ListProjects(ctx, a.user, f)
	}

	items, err := a.svc.ListAllProjects(ctx, a.user, f)
	if err != nil {
		return nil, err
	}
	return &query.Result{Items: items, Total: len(items)}, nil
}

func projectsTable(w io.Writer, items []*leads.ScoredProject) {
	fmt.Fprintln(w, "ID\tSCORE\tCATEGORY\tSTATUS\tSOURCE\tVALUE\tPOSTED\tTITLE")
	for _, item := range items {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			item.ID,
			item.Score,
			item.Category,
			item.Status,
			item.Source,
			leads.FormatValue(item.Value),
			item.PostedAt.Format("2006-01-02"),
			item.Title,
		)
	}
}

func importProjects(cmd *cobra.Command, files []string) error {
	ctx := context.Background()
	a := setup(ctx, cmd)
	defer a.Close()

	for _, file := range files {
		report, err := a.svc.ImportProjects(ctx, file)
		if err != nil {
			return fmt.Errorf("importing %s: %w", file, err)
		}
		if len(report.Rejected) > 0 {
			a.logger.Warn("some projects were rejected",
				zap.String("file", file),
				zap.Int("rejected", len(report.Rejected)),
			)
		}
	}

	return nil
}
