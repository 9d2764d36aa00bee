package report

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/go-errors/errors"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/valyala/fasttemplate"

	"github.com/tatrishvili/sae302/pkg/htmlfix"
)

const (
	FormatText = "text"
	FormatJSON = "json"

	// DefaultMessage 每个文件处理完成后输出的提示，没有命中时同样输出
	DefaultMessage = "✓ Fixed!"

	tagStart = "{{"
	tagEnd   = "}}"
)

// NormalizeFormat 未知格式统一按 text 处理
func NormalizeFormat(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == FormatJSON {
		return value
	}
	return FormatText
}

// Printer 输出修复结果
type Printer struct {
	w       io.Writer
	format  string
	message *fasttemplate.Template
	diff    bool
}

// NewPrinter 创建输出器，message 支持 {{path}} {{replacements}} {{status}} 占位符
func NewPrinter(w io.Writer, format, message string, diff bool) (*Printer, error) {
	if message == "" {
		message = DefaultMessage
	}
	tpl, err := fasttemplate.NewTemplate(message, tagStart, tagEnd)
	if err != nil {
		return nil, errors.WrapPrefix(err, "parse message template", 0)
	}
	return &Printer{
		w:       w,
		format:  NormalizeFormat(format),
		message: tpl,
		diff:    diff,
	}, nil
}

// Print 输出所有结果，nil 项（处理失败的文件）跳过
func (p *Printer) Print(reports []*htmlfix.Report) error {
	if p.format == FormatJSON {
		return p.printJSON(reports)
	}

	for _, r := range reports {
		if r == nil {
			continue
		}
		if p.diff {
			if err := p.printDiff(r); err != nil {
				return err
			}
		}
		line := p.message.ExecuteString(map[string]interface{}{
			"path":         r.Path,
			"replacements": strconv.Itoa(r.Replacements),
			"status":       Status(r),
		})
		if _, err := io.WriteString(p.w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// Status 结果的简短描述
func Status(r *htmlfix.Report) string {
	switch {
	case r.Changed && r.Written:
		return "fixed"
	case r.Changed:
		return "would fix"
	default:
		return "unchanged"
	}
}

func (p *Printer) printJSON(reports []*htmlfix.Report) error {
	out := make([]*htmlfix.Report, 0, len(reports))
	for _, r := range reports {
		if r != nil {
			out = append(out, r)
		}
	}
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(out)
}

func (p *Printer) printDiff(r *htmlfix.Report) error {
	lines := htmlfix.DiffLines(r.Before, r.After)
	if len(lines) == 0 {
		return nil
	}

	header := color.New(color.Bold)
	removed := color.New(color.FgRed)
	added := color.New(color.FgGreen)

	if _, err := header.Fprintf(p.w, "--- %s\n+++ %s\n", r.Path, r.Path); err != nil {
		return err
	}
	for _, line := range lines {
		var err error
		switch line.Op {
		case diffmatchpatch.DiffDelete:
			_, err = removed.Fprintln(p.w, line.String())
		case diffmatchpatch.DiffInsert:
			_, err = added.Fprintln(p.w, line.String())
		default:
			_, err = io.WriteString(p.w, line.String()+"\n")
		}
		if err != nil {
			return err
		}
	}
	return nil
}
