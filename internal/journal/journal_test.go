package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/go-errors/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatrishvili/sae302/pkg/htmlfix"
)

func openRepo(t *testing.T) *Repo {
	t.Helper()

	repo, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestCreateAndList(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	for i := 1; i <= 3; i++ {
		require.NoError(t, repo.Create(ctx, &Entry{Path: "feed.html", Replacements: i}))
	}
	require.NoError(t, repo.Create(ctx, &Entry{Path: "profile.html"}))

	entries, err := repo.ListByPath(ctx, "feed.html", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, 3, entries[0].Replacements)
	assert.Equal(t, 1, entries[2].Replacements)
	assert.NotEmpty(t, entries[0].ID)
	assert.NotZero(t, entries[0].FixedAt)

	limited, err := repo.ListByPath(ctx, "feed.html", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	paths, err := repo.Paths(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"feed.html", "profile.html"}, paths)
}

func TestLatest(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	_, err := repo.Latest(ctx, "feed.html")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, repo.Create(ctx, &Entry{Path: "feed.html", ID: "first"}))
	require.NoError(t, repo.Create(ctx, &Entry{Path: "feed.html", ID: "second"}))

	latest, err := repo.Latest(ctx, "feed.html")
	require.NoError(t, err)
	assert.Equal(t, "second", latest.ID)
}

func TestDeleteByPath(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	require.NoError(t, repo.Create(ctx, &Entry{Path: "feed.html"}))
	require.NoError(t, repo.DeleteByPath(ctx, "feed.html"))
	require.NoError(t, repo.DeleteByPath(ctx, "feed.html"))

	entries, err := repo.ListByPath(ctx, "feed.html", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEntryFromReport(t *testing.T) {
	entry := EntryFromReport(&htmlfix.Report{
		Path: "feed.html",
		Rules: []htmlfix.RuleResult{
			{Name: htmlfix.FeedLayoutRuleName, Replacements: 1},
			{Name: "unused"},
		},
		Replacements: 1,
		Changed:      true,
		Written:      true,
	})

	assert.Equal(t, []string{htmlfix.FeedLayoutRuleName}, entry.Rules)
	assert.True(t, entry.Changed)
	assert.Empty(t, entry.ID)
}
