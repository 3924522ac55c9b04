package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/permit-scout/internal/leads"
	"github.com/spigell/permit-scout/internal/query"
	"github.com/spigell/permit-scout/internal/service"
)

const (
	PromptSaveProjects   = "Save projects in manual mode"
	PromptReportBySource = "Report by source"
	PromptProjectsToFile = "Dump projects to file"
	PromptHideSource     = "Hide a source"
	PromptExit           = "Exit"
	PromptBack           = "back"
	defaultRunMinMatch   = 75
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "Proceed?",
	Items: []string{PromptSaveProjects, PromptReportBySource, PromptHideSource, PromptProjectsToFile, PromptExit},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scan every source, then review the best matches",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("skip-scan", false, "review stored projects without scanning first")
	runCmd.Flags().IntP("min-match", "m", defaultRunMinMatch, "hide projects scoring below this (0..100)")
	runCmd.Flags().BoolP("auto-save", "y", false, "save every match without asking")
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx := context.Background()

	a := setup(ctx, cmd)
	defer a.Close()
	logger := a.logger

	logger.Info("starting the permit-scout", zap.String("version", version))

	if skip, _ := cmd.Flags().GetBool("skip-scan"); !skip {
		records, err := a.svc.TriggerAll(ctx)
		for _, rec := range records {
			logger.Info("scan finished",
				zap.String("source", string(rec.Source)),
				zap.String("status", string(rec.Status)),
				zap.Int("found", rec.Found),
				zap.Int("new", rec.New),
			)
		}
		if err != nil {
			logger.Warn("some scans could not run", zap.Error(err))
		}
	}

	minMatch, _ := cmd.Flags().GetInt("min-match")
	items, err := a.svc.ListAllProjects(ctx, a.user, filtersForRun(minMatch))
	if err != nil {
		logger.Fatal("listing projects", zap.Error(err))
	}

	projects := &leads.ScoredProjects{Items: items}
	if projects.Len() == 0 {
		logger.Info("exiting", zap.String("reason", "no projects match the criteria"))
		return
	}

	if autoSave, _ := cmd.Flags().GetBool("auto-save"); autoSave {
		if err := save(ctx, a.svc, logger, a.user, projects); err != nil {
			logger.Fatal("saving projects", zap.Error(err))
		}
		return
	}

	for {
		logger.Info("current list of projects", zap.Int("count", projects.Len()))

		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := handleAction(ctx, action, a, projects); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func filtersForRun(minMatch int) query.Filters {
	return query.Filters{MinMatch: minMatch, SortBy: query.SortScore}
}

func handleAction(ctx context.Context, action string, a *application, projects *leads.ScoredProjects) error {
	logger := a.logger

	switch action {
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	case PromptSaveProjects:
		return manualSave(ctx, a, projects)
	case PromptHideSource:
		return hideSource(logger, projects)
	case PromptReportBySource:
		pretty, _ := json.MarshalIndent(projects.ReportBySource(), "", "  ")
		logger.Info(string(pretty), zap.Int("projects count", projects.Len()))
		return nil
	case PromptProjectsToFile:
		filename, err := projects.DumpToTmpFile()
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		logger.Info("dumping result to file", zap.String("filename", filename))
		return nil
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func manualSave(ctx context.Context, a *application, projects *leads.ScoredProjects) error {
	for {
		if projects.Len() == 0 {
			return nil
		}

		items := make([]string, 0, projects.Len()+1)
		for _, p := range projects.Items {
			label := fmt.Sprintf("%s %d%% %s / %s / %s",
				p.ID, p.Score, p.Title, p.Location, leads.FormatValue(p.Value),
			)
			items = append(items, label)
		}

		projectPrompt := promptui.Select{
			Label: "Choose a project to save and press ENTER",
			Items: append(items, PromptBack),
		}

		_, selected, err := projectPrompt.Run()
		if err != nil {
			return err
		}
		if selected == PromptBack {
			return nil
		}

		projectID := strings.Split(selected, " ")[0]
		p := projects.FindByID(projectID)
		if p == nil {
			return fmt.Errorf("there is no such project id %s", projectID)
		}

		if err := save(ctx, a.svc, a.logger, a.user, &leads.ScoredProjects{Items: []*leads.ScoredProject{p}}); err != nil {
			return err
		}

		projects.Exclude(leads.ProjectIDField, []string{projectID})
	}
}

func hideSource(logger *zap.Logger, projects *leads.ScoredProjects) error {
	items := make([]string, 0, len(leads.Sources)+1)
	for _, src := range leads.Sources {
		items = append(items, string(src))
	}

	sourcePrompt := promptui.Select{
		Label: "Choose a source to hide",
		Items: append(items, PromptBack),
	}

	_, selected, err := sourcePrompt.Run()
	if err != nil {
		return err
	}
	if selected == PromptBack {
		return nil
	}

	dropped := projects.Exclude(leads.ProjectSourceField, []string{selected})
	logger.Info("source hidden", zap.String("source", selected), zap.Int("dropped", len(dropped)))
	return nil
}

func save(ctx context.Context, svc *service.Service, logger *zap.Logger, user string, projects *leads.ScoredProjects) error {
	for _, p := range projects.Items {
		entry, err := svc.SaveProject(ctx, user, p.ID)
		if err != nil {
			return err
		}

		logger.Info("project saved",
			zap.String("project_id", p.ID),
			zap.String("entry_id", entry.ID),
			zap.Int("score", p.Score),
		)
	}

	logger.Info("successfully saved projects", zap.Int("count", projects.Len()))
	return nil
}
