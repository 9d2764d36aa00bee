package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tatrishvili/sae302/internal/report"
	"github.com/tatrishvili/sae302/pkg/htmlfix"
	"github.com/tatrishvili/sae302/pkg/watch"
)

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [files...]",
		Short: "Re-apply the rules whenever the files change",
		Args:  cobra.ArbitraryArgs,
		RunE:  a.runWatch,
	}
}

func (a *app) runWatch(cmd *cobra.Command, args []string) error {
	rt, err := a.load()
	if err != nil {
		return err
	}
	defer rt.logger.Sync()

	files := args
	if len(files) == 0 {
		files = rt.cfg.Files
	}

	printer, err := report.NewPrinter(a.stdout, rt.cfg.Format, rt.cfg.Message, false)
	if err != nil {
		return err
	}

	fixer := a.watchFixer(rt)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := watch.NewWatcher(fixer, rt.logger)
	err = w.Start(ctx, watch.Config{
		Paths:      files,
		Debounce:   time.Duration(rt.cfg.Watch.DebounceMs) * time.Millisecond,
		MaxRetries: rt.cfg.Watch.MaxRetries,
	})
	if err != nil {
		return err
	}
	defer w.Stop()

	return a.consume(ctx, rt, w.Events(), printer)
}

// watchFixer 监听模式的 Fixer：跳过未变化的写入，且不启用 strict
// 修复后的写入会再触发一轮检查，此时已没有可命中的片段
func (a *app) watchFixer(rt *session) *htmlfix.Fixer {
	return htmlfix.NewFixer(a.fs,
		htmlfix.WithRules(rt.rules),
		htmlfix.WithLogger(rt.logger),
		htmlfix.WithBackup(rt.cfg.Backup),
		htmlfix.WithSkipUnchanged(true),
	)
}

// consume 输出监听事件，直到 ctx 结束
func (a *app) consume(ctx context.Context, rt *session, events <-chan watch.Event, printer *report.Printer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			switch ev.Status {
			case watch.StatusFixed:
				r := &htmlfix.Report{
					Path:         ev.Path,
					Rules:        ev.Rules,
					Replacements: ev.Replacements,
					Changed:      true,
					Written:      true,
				}
				a.record(ctx, rt, r)
				if err := printer.Print([]*htmlfix.Report{r}); err != nil {
					return err
				}
			case watch.StatusFailed:
				fmt.Fprintf(a.stderr, "Error: %s\n", ev.Error)
			}
		}
	}
}
