package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-errors/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatrishvili/sae302/pkg/htmlfix"
)

const waitTimeout = 5 * time.Second

func brokenPage() string {
	return "<html>\n" + htmlfix.FeedLayoutRule().Old + "\n</html>\n"
}

func fixedPage() string {
	return "<html>\n" + htmlfix.FeedLayoutRule().New + "\n</html>\n"
}

func waitFor(t *testing.T, events <-chan Event, status string) Event {
	t.Helper()

	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-events:
			if ev.Status == status {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event within %s", status, waitTimeout)
			return Event{}
		}
	}
}

func newFixer() *htmlfix.Fixer {
	return htmlfix.NewFixer(afero.NewOsFs(), htmlfix.WithSkipUnchanged(true))
}

func TestWatcherFixesOnStartAndOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.html")
	require.NoError(t, os.WriteFile(path, []byte(brokenPage()), 0o644))

	w := NewWatcher(newFixer(), nil)
	require.NoError(t, w.Start(context.Background(), Config{Paths: []string{path}, Debounce: 20 * time.Millisecond}))
	defer w.Stop()

	ev := waitFor(t, w.Events(), StatusFixed)
	assert.Equal(t, 1, ev.Replacements)
	assert.Equal(t, []htmlfix.RuleResult{{Name: htmlfix.FeedLayoutRuleName, Replacements: 1}}, ev.Rules)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fixedPage(), string(data))

	require.NoError(t, os.WriteFile(path, []byte(brokenPage()), 0o644))

	waitFor(t, w.Events(), StatusFixed)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fixedPage(), string(data))
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feed.html")
	other := filepath.Join(dir, "profile.html")
	require.NoError(t, os.WriteFile(path, []byte(fixedPage()), 0o644))

	w := NewWatcher(newFixer(), nil)
	require.NoError(t, w.Start(context.Background(), Config{Paths: []string{path}, Debounce: 20 * time.Millisecond}))
	defer w.Stop()

	waitFor(t, w.Events(), StatusUnchanged)

	require.NoError(t, os.WriteFile(other, []byte(brokenPage()), 0o644))
	time.Sleep(200 * time.Millisecond)

	data, err := os.ReadFile(other)
	require.NoError(t, err)
	assert.Equal(t, brokenPage(), string(data))
}

func TestWatcherStartWithoutPaths(t *testing.T) {
	err := NewWatcher(newFixer(), nil).Start(context.Background(), Config{})

	assert.True(t, errors.Is(err, ErrNoPaths))
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.html")
	require.NoError(t, os.WriteFile(path, []byte(fixedPage()), 0o644))

	w := NewWatcher(newFixer(), nil)
	require.NoError(t, w.Stop())
	require.NoError(t, w.Start(context.Background(), Config{Paths: []string{path}}))
	require.NoError(t, w.Start(context.Background(), Config{Paths: []string{path}}))
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}

// flakyFixer 前 failures 次调用返回错误
type flakyFixer struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyFixer) Fix(_ context.Context, path string) (*htmlfix.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.calls <= f.failures {
		return nil, os.ErrPermission
	}
	return &htmlfix.Report{Path: path, Replacements: 1, Changed: true}, nil
}

func TestWatcherRetriesFailedFix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.html")
	require.NoError(t, os.WriteFile(path, []byte(brokenPage()), 0o644))

	fixer := &flakyFixer{failures: 2}
	w := NewWatcher(fixer, nil)
	require.NoError(t, w.Start(context.Background(), Config{Paths: []string{path}, MaxRetries: 3}))
	defer w.Stop()

	waitFor(t, w.Events(), StatusFixed)

	fixer.mu.Lock()
	defer fixer.mu.Unlock()
	assert.Equal(t, 3, fixer.calls)
}

func TestWatcherGivesUpAfterRetries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.html")
	require.NoError(t, os.WriteFile(path, []byte(brokenPage()), 0o644))

	w := NewWatcher(&flakyFixer{failures: 10}, nil)
	require.NoError(t, w.Start(context.Background(), Config{Paths: []string{path}, MaxRetries: 1}))
	defer w.Stop()

	ev := waitFor(t, w.Events(), StatusFailed)
	assert.Contains(t, ev.Error, "permission")
}
