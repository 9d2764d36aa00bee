package htmlfix

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// 相同内容超过该行数时只保留首尾上下文
const diffContextLines = 3

// DiffLine 差异中的一行
type DiffLine struct {
	Op   diffmatchpatch.Operation
	Text string
}

// Prefix 行前缀：删除 "-"，新增 "+"，上下文 " "
func (l DiffLine) Prefix() string {
	switch l.Op {
	case diffmatchpatch.DiffDelete:
		return "-"
	case diffmatchpatch.DiffInsert:
		return "+"
	default:
		return " "
	}
}

func (l DiffLine) String() string {
	return l.Prefix() + l.Text
}

// DiffLines 按行比较 before 与 after，长段相同内容折叠为 "@@" 行
func DiffLines(before, after string) []DiffLine {
	if before == after {
		return nil
	}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lineArray)

	var lines []DiffLine
	for i, d := range diffs {
		chunk := splitLines(d.Text)
		if d.Type != diffmatchpatch.DiffEqual {
			for _, text := range chunk {
				lines = append(lines, DiffLine{Op: d.Type, Text: text})
			}
			continue
		}

		head, tail := diffContextLines, diffContextLines
		if i == 0 {
			head = 0
		}
		if i == len(diffs)-1 {
			tail = 0
		}
		if len(chunk) <= head+tail {
			for _, text := range chunk {
				lines = append(lines, DiffLine{Op: d.Type, Text: text})
			}
			continue
		}

		for _, text := range chunk[:head] {
			lines = append(lines, DiffLine{Op: d.Type, Text: text})
		}
		lines = append(lines, DiffLine{
			Op:   diffmatchpatch.DiffEqual,
			Text: fmt.Sprintf("@@ %d unchanged lines @@", len(chunk)-head-tail),
		})
		for _, text := range chunk[len(chunk)-tail:] {
			lines = append(lines, DiffLine{Op: d.Type, Text: text})
		}
	}
	return lines
}

// Diff 返回 DiffLines 的文本形式
func Diff(before, after string) string {
	var sb strings.Builder
	for _, line := range DiffLines(before, after) {
		sb.WriteString(line.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

func splitLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}
