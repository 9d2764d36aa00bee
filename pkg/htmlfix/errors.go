package htmlfix

import "github.com/go-errors/errors"

var (
	// ErrEmptyPath 路径为空
	ErrEmptyPath = errors.Errorf("path is empty")
	// ErrIsDirectory 路径指向目录
	ErrIsDirectory = errors.Errorf("path points to a directory")
	// ErrInvalidUTF8 文件不是合法的 UTF-8
	ErrInvalidUTF8 = errors.Errorf("file is not valid UTF-8")
	// ErrNoMatch 严格模式下没有任何规则命中
	ErrNoMatch = errors.Errorf("no rule matched")
)
