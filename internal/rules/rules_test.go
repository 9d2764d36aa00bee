package rules

import (
	"bytes"
	"testing"

	"github.com/go-errors/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatrishvili/sae302/pkg/htmlfix"
)

func writeRules(t *testing.T, content string) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/rules.yaml", []byte(content), 0o644))
	return fs
}

func TestResolveWithoutFileUsesBuiltin(t *testing.T) {
	rules, err := Resolve(afero.NewMemMapFs(), "")
	require.NoError(t, err)

	assert.Equal(t, htmlfix.DefaultRules(), rules)
}

func TestResolveAppendsToBuiltin(t *testing.T) {
	fs := writeRules(t, `
rules:
  - name: nav-label
    old: "<span>Home</span>"
    new: "<span>Feed</span>"
`)

	rules, err := Resolve(fs, "/rules.yaml")
	require.NoError(t, err)

	require.Len(t, rules, 2)
	assert.Equal(t, htmlfix.FeedLayoutRuleName, rules[0].Name)
	assert.Equal(t, htmlfix.Rule{Name: "nav-label", Old: "<span>Home</span>", New: "<span>Feed</span>"}, rules[1])
}

func TestResolveReplacesBuiltin(t *testing.T) {
	fs := writeRules(t, `
replace: true
rules:
  - name: br
    old: "<br>"
    new: "<br/>"
`)

	rules, err := Resolve(fs, "/rules.yaml")
	require.NoError(t, err)

	assert.Equal(t, []htmlfix.Rule{{Name: "br", Old: "<br>", New: "<br/>"}}, rules)
}

func TestResolveRejectsInvalidRules(t *testing.T) {
	fs := writeRules(t, `
replace: true
rules:
  - name: ""
    old: "<br>"
    new: "<br/>"
  - name: same
    old: "x"
    new: "x"
`)

	_, err := Resolve(fs, "/rules.yaml")
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrInvalidRules))
	assert.Contains(t, err.Error(), "name is a required field")
	assert.Contains(t, err.Error(), "rules[1].old")
}

func TestResolveRejectsDuplicateNames(t *testing.T) {
	fs := writeRules(t, `
rules:
  - name: feed-layout
    old: "a"
    new: "b"
`)

	_, err := Resolve(fs, "/rules.yaml")

	assert.True(t, errors.Is(err, ErrInvalidRules))
}

func TestResolveMissingFile(t *testing.T) {
	_, err := Resolve(afero.NewMemMapFs(), "/missing.yaml")

	assert.Error(t, err)
}

func TestDumpCanBeLoadedBack(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Dump(&buf, htmlfix.DefaultRules()))

	fs := writeRules(t, buf.String())
	rules, err := Resolve(fs, "/rules.yaml")
	require.NoError(t, err)

	assert.Equal(t, htmlfix.DefaultRules(), rules)
}
