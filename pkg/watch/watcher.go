package watch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-errors/errors"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/tatrishvili/sae302/pkg/htmlfix"
)

const (
	DefaultDebounce   = 200 * time.Millisecond
	DefaultMaxRetries = 3
	eventBufferSize   = 100
)

// ErrNoPaths 没有需要监听的文件
var ErrNoPaths = errors.Errorf("no files to watch")

// Fixer 监听器依赖的修复接口
type Fixer interface {
	Fix(ctx context.Context, path string) (*htmlfix.Report, error)
}

// Config 监听配置
type Config struct {
	Paths      []string
	Debounce   time.Duration
	MaxRetries int
}

// Watcher 文件变化后自动重新修复
// fixer 需要开启 WithSkipUnchanged，否则自身的写入会不断触发新的事件
type Watcher struct {
	mu       sync.Mutex
	enabled  bool
	fixer    Fixer
	logger   *zap.Logger
	fsw      *fsnotify.Watcher
	cancel   context.CancelFunc
	done     chan struct{}
	eventCh  chan Event
	paths    map[string]struct{}
	debounce time.Duration
	retries  int
}

// NewWatcher 创建监听器
func NewWatcher(fixer Fixer, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		fixer:   fixer,
		logger:  logger,
		eventCh: make(chan Event, eventBufferSize),
	}
}

// Start 开始监听，已启动时先停止再按新配置启动
func (w *Watcher) Start(ctx context.Context, cfg Config) error {
	if len(cfg.Paths) == 0 {
		return errors.Wrap(ErrNoPaths, 0)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.enabled {
		w.stopInternal()
	}

	paths := make(map[string]struct{}, len(cfg.Paths))
	dirs := make(map[string]struct{})
	for _, p := range cfg.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return errors.WrapPrefix(err, "resolve "+p, 0)
		}
		paths[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WrapPrefix(err, "create watcher", 0)
	}
	// 监听所在目录，编辑器保存时常用改名替换文件
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return errors.WrapPrefix(err, "watch "+dir, 0)
		}
	}

	w.paths = paths
	w.debounce = cfg.Debounce
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	w.retries = cfg.MaxRetries
	if w.retries < 0 {
		w.retries = 0
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.fsw = fsw
	w.cancel = cancel
	w.done = make(chan struct{})
	w.enabled = true

	go w.readLoop(loopCtx, fsw, w.done)

	w.logger.Info("文件监听已启动", zap.Int("files", len(paths)))
	return nil
}

// Stop 停止监听
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopInternal()
	return nil
}

// stopInternal 内部停止方法（不加锁）
func (w *Watcher) stopInternal() {
	if !w.enabled {
		return
	}

	w.cancel()
	_ = w.fsw.Close()
	<-w.done

	w.fsw = nil
	w.cancel = nil
	w.enabled = false
	w.logger.Info("文件监听已停止")
}

// Events 获取事件通道
func (w *Watcher) Events() <-chan Event {
	return w.eventCh
}

func (w *Watcher) tracks(name string) (string, bool) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return "", false
	}
	_, ok := w.paths[abs]
	return abs, ok
}

func (w *Watcher) readLoop(ctx context.Context, fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	// 启动时先处理一遍当前内容
	for path := range w.paths {
		w.fixWithRetry(ctx, path)
	}

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			path, tracked := w.tracks(ev.Name)
			if !tracked {
				continue
			}
			pending[path] = struct{}{}
			timer.Reset(w.debounce)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("文件监听出错", zap.Error(err))
		case <-timer.C:
			for path := range pending {
				w.fixWithRetry(ctx, path)
			}
			clear(pending)
		}
	}
}

func (w *Watcher) fixWithRetry(ctx context.Context, path string) {
	b := &backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    2 * time.Second,
		Factor: 2,
	}

	for attempt := 0; ; attempt++ {
		report, err := w.fixer.Fix(ctx, path)
		if err == nil {
			w.emit(eventFromReport(path, report))
			return
		}
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, htmlfix.ErrNoMatch) || attempt >= w.retries {
			w.logger.Warn("自动修复失败", zap.String("path", path), zap.Error(err))
			w.emit(Event{
				Path:      path,
				Timestamp: time.Now().UnixMilli(),
				Status:    StatusFailed,
				Error:     err.Error(),
			})
			return
		}

		delay := b.Duration()
		w.logger.Debug("自动修复重试", zap.String("path", path), zap.Int("attempt", attempt+1), zap.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func eventFromReport(path string, report *htmlfix.Report) Event {
	event := Event{
		Path:         path,
		Timestamp:    time.Now().UnixMilli(),
		Status:       StatusUnchanged,
		Replacements: report.Replacements,
	}
	for _, rule := range report.Rules {
		if rule.Replacements > 0 {
			event.Rules = append(event.Rules, rule)
		}
	}
	if report.Changed {
		event.Status = StatusFixed
	}
	return event
}

func (w *Watcher) emit(event Event) {
	select {
	case w.eventCh <- event:
		if event.Status == StatusFixed {
			w.logger.Info("检测到变化并已修复", zap.String("path", event.Path), zap.Int("replacements", event.Replacements))
		}
	default:
		w.logger.Warn("事件队列已满，丢弃事件", zap.String("path", event.Path))
	}
}
