package main

import (
	"context"
	"io"

	"github.com/go-errors/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tatrishvili/sae302/internal/config"
	"github.com/tatrishvili/sae302/internal/journal"
	"github.com/tatrishvili/sae302/internal/logging"
	"github.com/tatrishvili/sae302/internal/report"
	"github.com/tatrishvili/sae302/internal/rules"
	"github.com/tatrishvili/sae302/pkg/htmlfix"
)

type app struct {
	fs      afero.Fs
	v       *viper.Viper
	stdout  io.Writer
	stderr  io.Writer
	cfgFile string
}

// session 每次命令执行时加载的配置、日志和规则
type session struct {
	cfg    *config.Config
	logger *zap.Logger
	rules  []htmlfix.Rule
}

func newRootCmd(fs afero.Fs, stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		fs:     fs,
		v:      config.New(fs),
		stdout: stdout,
		stderr: stderr,
	}

	rootCmd := &cobra.Command{
		Use:   "fix-html [files...]",
		Short: "Repair the broken popup block in feed.html",
		Long: `fix-html rewrites a known broken block of markup in place.

The match is an exact substring match; a file that does not contain the
block is left byte-for-byte unchanged and the run still reports success.

Examples:
  fix-html                         # fix ./feed.html
  fix-html --dry-run site/*.html   # show what would change
  fix-html watch feed.html         # re-apply after every save`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          a.runFix,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	pflags := rootCmd.PersistentFlags()
	pflags.StringVar(&a.cfgFile, "config", "", "config file (default is ./.fix-html.yaml)")
	pflags.String("rules", "", "YAML file with additional rules")
	pflags.String("journal", "", "record runs in this history database")
	pflags.String("format", report.FormatText, "output format (text, json)")
	pflags.String("message", report.DefaultMessage, "status line template ({{path}}, {{replacements}}, {{status}})")
	pflags.Bool("backup", false, "keep a .bak copy of every rewritten file")
	pflags.String("log-level", "warn", "log level (debug, info, warn, error)")
	pflags.String("log-file", "", "also write JSON logs to this rotated file")

	flags := rootCmd.Flags()
	flags.Bool("dry-run", false, "print the diff without writing")
	flags.Bool("strict", false, "fail when no rule matched")
	flags.Int("concurrency", config.DefaultConcurrency, "files processed in parallel")

	a.bind(pflags.Lookup("rules"), "rules")
	a.bind(pflags.Lookup("journal"), "journal")
	a.bind(pflags.Lookup("format"), "format")
	a.bind(pflags.Lookup("message"), "message")
	a.bind(pflags.Lookup("backup"), "backup")
	a.bind(pflags.Lookup("log-level"), "log.level")
	a.bind(pflags.Lookup("log-file"), "log.file")
	a.bind(flags.Lookup("dry-run"), "dry_run")
	a.bind(flags.Lookup("strict"), "strict")
	a.bind(flags.Lookup("concurrency"), "concurrency")

	rootCmd.AddCommand(a.watchCmd())
	rootCmd.AddCommand(a.rulesCmd())
	rootCmd.AddCommand(a.historyCmd())

	return rootCmd
}

func (a *app) bind(flag *pflag.Flag, key string) {
	_ = a.v.BindPFlag(key, flag)
}

func (a *app) load() (*session, error) {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log, a.stderr)
	if err != nil {
		return nil, err
	}

	ruleSet, err := rules.Resolve(a.fs, cfg.Rules)
	if err != nil {
		return nil, err
	}

	return &session{cfg: cfg, logger: logger, rules: ruleSet}, nil
}

func (a *app) runFix(cmd *cobra.Command, args []string) error {
	rt, err := a.load()
	if err != nil {
		return err
	}
	defer rt.logger.Sync()

	files := args
	if len(files) == 0 {
		files = rt.cfg.Files
	}

	printer, err := report.NewPrinter(a.stdout, rt.cfg.Format, rt.cfg.Message, rt.cfg.DryRun)
	if err != nil {
		return err
	}

	fixer := htmlfix.NewFixer(a.fs,
		htmlfix.WithRules(rt.rules),
		htmlfix.WithLogger(rt.logger),
		htmlfix.WithDryRun(rt.cfg.DryRun),
		htmlfix.WithBackup(rt.cfg.Backup),
		htmlfix.WithStrict(rt.cfg.Strict),
		htmlfix.WithConcurrency(rt.cfg.Concurrency),
	)

	reports, fixErr := fixer.FixAll(cmd.Context(), files)
	if !rt.cfg.DryRun {
		a.record(cmd.Context(), rt, reports...)
	}

	if err := printer.Print(reports); err != nil {
		return err
	}

	if fixErr != nil {
		var stackErr *errors.Error
		if errors.As(fixErr, &stackErr) {
			rt.logger.Debug("错误堆栈", zap.String("stack", stackErr.ErrorStack()))
		}
	}
	return fixErr
}

// record 写入修复记录，未配置 journal 时跳过，记录失败只告警
func (a *app) record(ctx context.Context, rt *session, reports ...*htmlfix.Report) {
	if rt.cfg.Journal == "" {
		return
	}

	repo, err := journal.Open(rt.cfg.Journal)
	if err != nil {
		rt.logger.Warn("打开修复记录失败", zap.Error(err))
		return
	}
	defer repo.Close()

	for _, r := range reports {
		if r == nil {
			continue
		}
		if err := repo.Create(ctx, journal.EntryFromReport(r)); err != nil {
			rt.logger.Warn("写入修复记录失败", zap.String("path", r.Path), zap.Error(err))
		}
	}
}
