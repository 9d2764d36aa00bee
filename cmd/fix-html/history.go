package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-errors/errors"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/tatrishvili/sae302/internal/journal"
)

const defaultHistoryLimit = 20

// ErrJournalDisabled 未配置修复记录
var ErrJournalDisabled = errors.Errorf("no journal configured, pass --journal")

func (a *app) historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [file]",
		Short: "Show recorded runs",
		Long: `Show runs recorded with --journal.

Without a file, the latest run of every recorded file is listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runHistory(cmd.Context(), args, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultHistoryLimit, "maximum number of runs to show")

	return cmd
}

func (a *app) runHistory(ctx context.Context, args []string, limit int) error {
	rt, err := a.load()
	if err != nil {
		return err
	}
	defer rt.logger.Sync()

	if rt.cfg.Journal == "" {
		return errors.Wrap(ErrJournalDisabled, 0)
	}

	repo, err := journal.Open(rt.cfg.Journal)
	if err != nil {
		return err
	}
	defer repo.Close()

	var entries []journal.Entry
	if len(args) == 1 {
		entries, err = repo.ListByPath(ctx, args[0], limit)
		if err != nil {
			return err
		}
	} else {
		paths, err := repo.Paths(ctx)
		if err != nil {
			return err
		}
		for _, path := range paths {
			latest, err := repo.Latest(ctx, path)
			if err != nil {
				return err
			}
			entries = append(entries, *latest)
		}
	}

	fmt.Fprintln(a.stdout, renderHistory(entries))
	return nil
}

func renderHistory(entries []journal.Entry) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Format.Footer = text.FormatDefault

	tbl.AppendHeader(table.Row{"When", "Path", "Rules", "Replacements", "Changed", "ID"})
	for _, e := range entries {
		rules := strings.Join(e.Rules, ",")
		if rules == "" {
			rules = "-"
		}
		tbl.AppendRow(table.Row{
			humanize.Time(time.UnixMilli(e.FixedAt)),
			e.Path,
			rules,
			e.Replacements,
			strconv.FormatBool(e.Changed),
			e.ID,
		})
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d runs", len(entries))})

	return tbl.Render()
}
