package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/acolita/train-wizard/internal/dataset"
	"github.com/acolita/train-wizard/internal/results"
	"github.com/acolita/train-wizard/internal/session"
)

func newValidateCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [dataset...]",
		Short: "Check the configuration and, optionally, dataset files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := o.load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if path == "" {
				path = "(defaults)"
			}
			fmt.Fprintf(out, "config %s: ok (mode %s, cache %s)\n", path, cfg.Training.Mode, cfg.Results.CacheDir)

			var failed int
			for _, arg := range args {
				schema, err := dataset.Validate(arg)
				if err != nil {
					failed++
					fmt.Fprintf(out, "%s: %v\n", arg, err)
					var ve *dataset.ValidationError
					if errors.As(err, &ve) {
						fmt.Fprintf(out, "  %s\n", ve.Hint())
					}
					continue
				}
				fmt.Fprintf(out, "%s: %s, %d columns, %d rows\n", arg, schema.Format, len(schema.Columns), schema.Rows)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d datasets invalid", failed, len(args))
			}
			return nil
		},
	}
}

func newResultsCmd(o *options) *cobra.Command {
	var (
		task string
		id   int
	)
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Print the newest cached evaluation split into sections",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := o.load()
			if err != nil {
				return err
			}

			t := session.TaskUnset
			if task != "" {
				if t, err = session.ParseTaskType(task); err != nil {
					return err
				}
			}

			cache := results.NewCache(cfg.Results.CacheDir)
			var entry *results.Entry
			if cmd.Flags().Changed("id") {
				entry, err = cache.Load(id)
			} else {
				entry, err = cache.Latest()
			}
			if errors.Is(err, results.ErrNotFound) {
				return fmt.Errorf("no cached results in %s", cache.Dir())
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "result %d (%s)\n", entry.ID, entry.Path)
			anchors := results.AnchorsFor(t)
			split := results.SplitSections(entry.Text, anchors.Patterns)
			for _, i := range split.Indexes() {
				title := anchors.Title(i)
				if title == "" {
					title = "Full output"
				}
				fmt.Fprintf(out, "\n== %s ==\n%s\n", title, split[i])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&task, "task", "", "Task type for section titles: "+taskNames())
	cmd.Flags().IntVar(&id, "id", 0, "Show this result id instead of the newest")
	return cmd
}

func taskNames() string {
	var names []string
	for _, t := range session.TaskTypes() {
		names = append(names, t.String())
	}
	return strings.Join(names, ", ")
}
