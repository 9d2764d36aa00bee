package htmlfix

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/go-errors/errors"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// DefaultFile 未指定文件时处理的页面
const DefaultFile = "feed.html"

const defaultConcurrency = 4

// RuleResult 单条规则的命中情况
type RuleResult struct {
	Name         string `json:"name"`
	Replacements int    `json:"replacements"`
}

// Report 一次修复的结果
type Report struct {
	Path         string       `json:"path"`
	Rules        []RuleResult `json:"rules"`
	Replacements int          `json:"replacements"`
	Changed      bool         `json:"changed"`
	Written      bool         `json:"written"`
	BackupPath   string       `json:"backupPath,omitempty"`
	Before       string       `json:"-"`
	After        string       `json:"-"`
}

// Matched 是否有任意规则命中
func (r *Report) Matched() bool {
	return r.Replacements > 0
}

// Fixer 读取文件、应用规则并写回
type Fixer struct {
	fs            afero.Fs
	rules         []Rule
	logger        *zap.Logger
	dryRun        bool
	keepBackup    bool
	skipUnchanged bool
	strict        bool
	concurrency   int
}

// Option Fixer 配置项
type Option func(*Fixer)

// WithRules 替换默认规则集
func WithRules(rules []Rule) Option {
	return func(f *Fixer) {
		f.rules = rules
	}
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fixer) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithDryRun 只计算结果，不写文件
func WithDryRun(dryRun bool) Option {
	return func(f *Fixer) {
		f.dryRun = dryRun
	}
}

// WithBackup 写入后保留 .bak 备份
func WithBackup(keep bool) Option {
	return func(f *Fixer) {
		f.keepBackup = keep
	}
}

// WithSkipUnchanged 内容未变化时不重写文件
func WithSkipUnchanged(skip bool) Option {
	return func(f *Fixer) {
		f.skipUnchanged = skip
	}
}

// WithStrict 没有规则命中时返回 ErrNoMatch
func WithStrict(strict bool) Option {
	return func(f *Fixer) {
		f.strict = strict
	}
}

// WithConcurrency FixAll 的最大并发数
func WithConcurrency(n int) Option {
	return func(f *Fixer) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// NewFixer 创建 Fixer，默认使用内置规则
func NewFixer(fs afero.Fs, opts ...Option) *Fixer {
	f := &Fixer{
		fs:          fs,
		rules:       DefaultRules(),
		logger:      zap.NewNop(),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Rules 当前生效的规则
func (f *Fixer) Rules() []Rule {
	return f.rules
}

// Fix 修复单个文件
// 默认即使没有命中也会原样写回，与原脚本行为一致
func (f *Fixer) Fix(ctx context.Context, path string) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		return nil, errors.Wrap(ErrEmptyPath, 0)
	}

	info, err := f.fs.Stat(path)
	if err != nil {
		return nil, errors.WrapPrefix(err, "stat "+path, 0)
	}
	if info.IsDir() {
		return nil, errors.WrapPrefix(ErrIsDirectory, path, 0)
	}

	data, err := afero.ReadFile(f.fs, path)
	if err != nil {
		return nil, errors.WrapPrefix(err, "read "+path, 0)
	}
	if !utf8.Valid(data) {
		return nil, errors.WrapPrefix(ErrInvalidUTF8, path, 0)
	}

	content := string(data)
	report := &Report{Path: path, Before: content}
	for _, rule := range f.rules {
		var n int
		content, n = Apply(content, rule)
		report.Rules = append(report.Rules, RuleResult{Name: rule.Name, Replacements: n})
		report.Replacements += n
		if n == 0 {
			f.logger.Debug("规则未命中", zap.String("path", path), zap.String("rule", rule.Name))
		}
	}
	report.After = content
	report.Changed = report.After != report.Before

	if f.strict && !report.Matched() {
		return report, errors.WrapPrefix(ErrNoMatch, path, 0)
	}

	if f.dryRun {
		f.logger.Info("试运行，跳过写入", zap.String("path", path), zap.Int("replacements", report.Replacements))
		return report, nil
	}
	if f.skipUnchanged && !report.Changed {
		f.logger.Debug("内容未变化，跳过写入", zap.String("path", path))
		return report, nil
	}

	backupPath, err := writeInPlace(f.fs, path, data, []byte(content), info.Mode().Perm(), f.keepBackup)
	report.BackupPath = backupPath
	if err != nil {
		return report, err
	}
	report.Written = true

	f.logger.Info("文件已写回",
		zap.String("path", path),
		zap.Int("replacements", report.Replacements),
		zap.Bool("changed", report.Changed),
	)
	return report, nil
}

// FixAll 并发修复多个文件，结果顺序与 paths 一致
// 单个文件失败不影响其他文件，失败的位置为 nil，所有错误合并返回
func (f *Fixer) FixAll(ctx context.Context, paths []string) ([]*Report, error) {
	reports := make([]*Report, len(paths))

	p := pool.New().WithMaxGoroutines(f.concurrency).WithContext(ctx)
	for i, path := range paths {
		p.Go(func(ctx context.Context) error {
			report, err := f.Fix(ctx, path)
			if err != nil {
				return err
			}
			reports[i] = report
			return nil
		})
	}
	err := p.Wait()
	return reports, err
}
