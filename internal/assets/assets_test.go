package assets

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPatchStripsGoogleFontsWhenNoLocalFontsAvailable(t *testing.T) {
	cache, err := NewFontCache(4)
	require.NoError(t, err)

	html := `<html><head><link rel="stylesheet" href="https://fonts.googleapis.com/css?family=Inter"></head><body></body></html>`
	got, err := Patch(html, filepath.Join(t.TempDir(), "missing"), cache)
	require.NoError(t, err)
	require.NotContains(t, got, "fonts.googleapis.com")
	require.Empty(t, Verify(got))
}

func TestPatchInlinesLocalFontsAfterHeadTag(t *testing.T) {
	dir := t.TempDir()
	fontBytes := []byte("fake-woff2-bytes")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inter.woff2"), fontBytes, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "all-fonts.css"), []byte(`
@font-face { font-family: "Inter"; src: url("inter.woff2") format("woff2"); }
`), 0o644))

	cache, err := NewFontCache(4)
	require.NoError(t, err)

	html := `<html><head><link rel="preconnect" href="https://fonts.googleapis.com"><link href="https://fonts.googleapis.com/css2?family=Inter" rel="stylesheet"></head><body></body></html>`
	got, err := Patch(html, dir, cache)
	require.NoError(t, err)

	require.NotContains(t, got, "fonts.googleapis.com")
	require.Contains(t, got, "data:font/woff2;base64,"+base64.StdEncoding.EncodeToString(fontBytes))
	require.Empty(t, Verify(got))

	headEnd := indexAfterHead(got)
	styleIdx := indexOf(got, "<style>")
	bodyIdx := indexOf(got, "<body>")
	require.GreaterOrEqual(t, styleIdx, headEnd)
	require.Less(t, styleIdx, bodyIdx)
}

func TestFontCacheReturnsSameValueOnSecondLookup(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "all-fonts.css"), []byte("body{}"), 0o644))

	cache, err := NewFontCache(2)
	require.NoError(t, err)

	first, err := cache.CSS(dir)
	require.NoError(t, err)
	second, err := cache.CSS(dir)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestVerifyDedupesMatches(t *testing.T) {
	html := `<link href="https://fonts.googleapis.com/a"><link href="https://fonts.googleapis.com/b">`
	got := Verify(html)
	require.Len(t, got, 1)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func indexAfterHead(s string) int {
	idx := indexOf(s, "<head>")
	if idx < 0 {
		return -1
	}
	return idx + len("<head>")
}
