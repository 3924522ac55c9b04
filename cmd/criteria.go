package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/permit-scout/internal/leads"
)

const (
	PromptMinValue   = "Minimum value"
	PromptCategories = "Categories"
	PromptStatuses   = "Statuses"
	PromptSources    = "Sources"
	PromptSave       = "Save"
	PromptCancel     = "Cancel"
	PromptDone       = "done"
)

var criteriaCmd = &cobra.Command{
	Use:   "criteria",
	Short: "Show or change your match criteria",
}

var criteriaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the saved criteria",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := context.Background()
		a := setup(ctx, cmd)
		defer a.Close()

		c, err := a.svc.GetCriteria(ctx, a.user)
		if err != nil {
			return err
		}
		return printCriteria(cmd, c)
	},
}

var criteriaSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Replace the criteria; dimensions left out are not restricted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := context.Background()
		a := setup(ctx, cmd)
		defer a.Close()

		var (
			c   leads.Criteria
			err error
		)
		if fromConfig, _ := cmd.Flags().GetBool("from-config"); fromConfig {
			if !viper.IsSet("criteria") {
				return fmt.Errorf("no criteria block in the config file")
			}
			err = viper.UnmarshalKey("criteria", &c)
		} else {
			c, err = criteriaFromFlags(cmd)
		}
		if err != nil {
			return err
		}

		saved, err := a.svc.SetCriteria(ctx, a.user, c)
		if err != nil {
			return err
		}
		return printCriteria(cmd, saved)
	},
}

var criteriaEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit the criteria interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := context.Background()
		a := setup(ctx, cmd)
		defer a.Close()

		current, err := a.svc.GetCriteria(ctx, a.user)
		if err != nil {
			return err
		}

		edited, ok, err := editCriteria(*current)
		if err != nil {
			return err
		}
		if !ok {
			a.logger.Info("exiting", zap.String("reason", "edit cancelled"))
			return nil
		}

		saved, err := a.svc.SetCriteria(ctx, a.user, edited)
		if err != nil {
			return err
		}
		return printCriteria(cmd, saved)
	},
}

func init() {
	rootCmd.AddCommand(criteriaCmd)
	criteriaCmd.AddCommand(criteriaShowCmd, criteriaSetCmd, criteriaEditCmd)

	flags := criteriaSetCmd.Flags()
	flags.Float64("min-value", 0, "minimum project value; unset means any value")
	flags.StringSlice("category", nil, "accepted categories, repeatable or comma separated")
	flags.StringSlice("status", nil, "accepted statuses")
	flags.StringSlice("source", nil, "accepted sources")
	flags.Bool("from-config", false, "take the criteria from the 'criteria' block of the config file")

	for _, c := range []*cobra.Command{criteriaShowCmd, criteriaSetCmd, criteriaEditCmd} {
		addOutputFlag(c)
	}
}

func criteriaFromFlags(cmd *cobra.Command) (leads.Criteria, error) {
	flags := cmd.Flags()
	var c leads.Criteria

	if flags.Changed("min-value") {
		v, err := flags.GetFloat64("min-value")
		if err != nil {
			return c, err
		}
		c.MinValue = &v
	}

	categories, _ := flags.GetStringSlice("category")
	for _, s := range categories {
		c.Categories = append(c.Categories, leads.Category(strings.TrimSpace(s)))
	}
	statuses, _ := flags.GetStringSlice("status")
	for _, s := range statuses {
		c.Statuses = append(c.Statuses, leads.Status(strings.TrimSpace(s)))
	}
	sources, _ := flags.GetStringSlice("source")
	for _, s := range sources {
		c.Sources = append(c.Sources, leads.Source(strings.TrimSpace(s)))
	}

	return c, nil
}

func printCriteria(cmd *cobra.Command, c *leads.Criteria) error {
	return render(os.Stdout, outputFormat(cmd), c, func(w io.Writer) {
		fmt.Fprintf(w, "min value\t%s\n", leads.FormatValue(c.MinValue))
		fmt.Fprintf(w, "categories\t%s\n", joinOrAny(c.Categories))
		fmt.Fprintf(w, "statuses\t%s\n", joinOrAny(c.Statuses))
		fmt.Fprintf(w, "sources\t%s\n", joinOrAny(c.Sources))
		fmt.Fprintf(w, "version\t%d\n", c.Version)
	})
}

func joinOrAny[T ~string](values []T) string {
	if len(values) == 0 {
		return "any"
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

// editCriteria runs the interactive editor. ok is false when the user cancelled.
func editCriteria(c leads.Criteria) (edited leads.Criteria, ok bool, err error) {
	for {
		menu := promptui.Select{
			Label: "Choose what to change",
			Items: []string{
				fmt.Sprintf("%s (%s)", PromptMinValue, leads.FormatValue(c.MinValue)),
				fmt.Sprintf("%s (%s)", PromptCategories, joinOrAny(c.Categories)),
				fmt.Sprintf("%s (%s)", PromptStatuses, joinOrAny(c.Statuses)),
				fmt.Sprintf("%s (%s)", PromptSources, joinOrAny(c.Sources)),
				PromptSave,
				PromptCancel,
			},
		}

		_, selected, err := menu.Run()
		if err != nil {
			return c, false, err
		}

		switch {
		case selected == PromptSave:
			return c, true, nil
		case selected == PromptCancel:
			return c, false, nil
		case strings.HasPrefix(selected, PromptMinValue):
			if c.MinValue, err = promptMinValue(c.MinValue); err != nil {
				return c, false, err
			}
		case strings.HasPrefix(selected, PromptCategories):
			if c.Categories, err = toggleSet(PromptCategories, leads.Categories, c.Categories); err != nil {
				return c, false, err
			}
		case strings.HasPrefix(selected, PromptStatuses):
			if c.Statuses, err = toggleSet(PromptStatuses, leads.Statuses, c.Statuses); err != nil {
				return c, false, err
			}
		case strings.HasPrefix(selected, PromptSources):
			if c.Sources, err = toggleSet(PromptSources, leads.Sources, c.Sources); err != nil {
				return c, false, err
			}
		}
	}
}

// promptMinValue reads a floor; an empty answer removes it.
func promptMinValue(current *float64) (*float64, error) {
	def := ""
	if current != nil {
		def = strconv.FormatFloat(*current, 'f', -1, 64)
	}

	p := promptui.Prompt{
		Label:   "Minimum value (empty for any)",
		Default: def,
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return nil
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return fmt.Errorf("not a number")
			}
			if v < 0 {
				return fmt.Errorf("must be >= 0")
			}
			return nil
		},
	}

	answer, err := p.Run()
	if err != nil {
		return nil, err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, nil
	}

	v, err := strconv.ParseFloat(answer, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// toggleSet lets the user flip members of a closed set until done is chosen.
func toggleSet[T ~string](label string, all, selected []T) ([]T, error) {
	selected = slices.Clone(selected)
	for {
		items := make([]string, 0, len(all)+1)
		for _, v := range all {
			mark := "[ ]"
			if slices.Contains(selected, v) {
				mark = "[x]"
			}
			items = append(items, fmt.Sprintf("%s %s", mark, v))
		}
		items = append(items, PromptDone)

		p := promptui.Select{
			Label: label + " (none selected means any)",
			Items: items,
			Size:  len(items),
		}

		idx, choice, err := p.Run()
		if err != nil {
			return nil, err
		}
		if choice == PromptDone {
			// Keep the display order of the closed set.
			ordered := make([]T, 0, len(selected))
			for _, v := range all {
				if slices.Contains(selected, v) {
					ordered = append(ordered, v)
				}
			}
			return ordered, nil
		}

		v := all[idx]
		if i := slices.Index(selected, v); i >= 0 {
			selected = slices.Delete(selected, i, i+1)
		} else {
			selected = append(selected, v)
		}
	}
}
