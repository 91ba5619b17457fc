// Package assets implements the asset-rewrite contract of spec.md §6.5:
// strip external font/CDN references from rendered HTML and inline a
// local, base64-embedded font stylesheet in their place, grounded on
// original_source/crates/worker-visualizations-py/src/font_patcher.py.
package assets

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// externalRefPatterns match the CDN/font references that must not survive
// into a rendered artifact (§6.5): Google Fonts links/imports plus the
// other CDN families the original patcher's test suite exercises.
var externalRefPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<link[^>]*fonts\.googleapis\.com[^>]*>`),
	regexp.MustCompile(`(?i)<link[^>]*fonts\.gstatic\.com[^>]*>`),
	regexp.MustCompile(`(?i)<link[^>]*rel=["']?preconnect["']?[^>]*fonts\.[^>]*>`),
	regexp.MustCompile(`(?i)@import\s+url\(["']?https?://fonts\.googleapis\.com[^)]+["']?\);?`),
	regexp.MustCompile(`(?i)<link[^>]*fontawesome[^>]*>`),
	regexp.MustCompile(`(?i)<link[^>]*maxcdn\.bootstrapcdn\.com[^>]*>`),
	regexp.MustCompile(`(?i)<link[^>]*cdnjs\.cloudflare\.com[^>]*>`),
}

var headTagPattern = regexp.MustCompile(`(?i)<head[^>]*>`)

// externalRefSniffPattern is used by Verify to detect any surviving
// reference to one of the blocked CDN hosts, independent of the exact
// tag shape that introduced it.
var externalRefSniffPattern = regexp.MustCompile(`(?i)(fonts\.googleapis\.com|fonts\.gstatic\.com|fontawesome|maxcdn\.bootstrapcdn\.com|cdnjs\.cloudflare\.com)`)

// FontCache loads and caches the local, base64-embedded font stylesheet
// so repeated renders don't re-read and re-encode font files from disk.
// A single worker process only ever serves one fonts directory, but the
// cache is keyed by directory so tests can exercise more than one
// without cross-contamination.
type FontCache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, string]
}

// NewFontCache builds a font cache holding up to size distinct fonts
// directories worth of combined CSS (in practice always 1 in production).
func NewFontCache(size int) (*FontCache, error) {
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("assets: new font cache: %w", err)
	}
	return &FontCache{cache: c}, nil
}

// CSS returns the combined, base64-embedded local font stylesheet for
// fontsDir, loading and caching it on first use. An empty string with a
// nil error means no local fonts were found; callers must treat that as
// "strip, don't inline" per §6.5.
func (c *FontCache) CSS(fontsDir string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if css, ok := c.cache.Get(fontsDir); ok {
		return css, nil
	}

	css, err := loadFontCSS(fontsDir)
	if err != nil {
		return "", err
	}
	c.cache.Add(fontsDir, css)
	return css, nil
}

func loadFontCSS(fontsDir string) (string, error) {
	info, err := os.Stat(fontsDir)
	if err != nil || !info.IsDir() {
		return "", nil
	}

	css, err := combinedCSSText(fontsDir)
	if err != nil {
		return "", err
	}
	if css == "" {
		return "", nil
	}

	return embedFontFiles(fontsDir, css)
}

// combinedCSSText prefers a pre-combined all-fonts.css; otherwise it
// concatenates every *.css file in the directory in sorted order.
func combinedCSSText(fontsDir string) (string, error) {
	if data, err := os.ReadFile(filepath.Join(fontsDir, "all-fonts.css")); err == nil {
		return string(data), nil
	}

	matches, err := filepath.Glob(filepath.Join(fontsDir, "*.css"))
	if err != nil {
		return "", fmt.Errorf("assets: glob font css: %w", err)
	}
	if len(matches) == 0 {
		return "", nil
	}
	sort.Strings(matches)

	var parts []string
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			return "", fmt.Errorf("assets: read %s: %w", m, err)
		}
		parts = append(parts, string(data))
	}
	return strings.Join(parts, "\n\n"), nil
}

// embedFontFiles replaces every *.woff2/*.woff filename reference in css
// with a base64 data: URL for the corresponding file in fontsDir.
func embedFontFiles(fontsDir, css string) (string, error) {
	var fontFiles []string
	for _, pattern := range []string{"*.woff2", "*.woff"} {
		matches, err := filepath.Glob(filepath.Join(fontsDir, pattern))
		if err != nil {
			return "", fmt.Errorf("assets: glob %s: %w", pattern, err)
		}
		fontFiles = append(fontFiles, matches...)
	}

	for _, path := range fontFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		name := filepath.Base(path)
		mime := "font/woff"
		if strings.HasSuffix(name, ".woff2") {
			mime = "font/woff2"
		}
		dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))

		css = strings.ReplaceAll(css, name, dataURL)
		css = strings.ReplaceAll(css, "./"+name, dataURL)
		css = strings.ReplaceAll(css, "/"+name, dataURL)
	}
	return css, nil
}

// Patch strips external font/CDN references from html and, if local
// fonts are available via cache, inlines them as a <style> block
// immediately inside <head>. With no local fonts available it only
// strips, to avoid the renderer attempting offline network fetches
// against a blocked host.
func Patch(html, fontsDir string, cache *FontCache) (string, error) {
	localCSS, err := cache.CSS(fontsDir)
	if err != nil {
		return "", err
	}

	for _, p := range externalRefPatterns {
		html = p.ReplaceAllString(html, "")
	}

	if localCSS == "" {
		return html, nil
	}

	styleTag := "<style>\n/* embedded local fonts */\n" + localCSS + "\n</style>"

	if loc := headTagPattern.FindStringIndex(html); loc != nil {
		return html[:loc[1]] + "\n" + styleTag + html[loc[1]:], nil
	}
	return styleTag + html, nil
}

// Rewriter adapts Patch to the orchestrator's single-argument
// AssetRewriter interface, binding the fonts directory and cache once.
type Rewriter struct {
	FontsDir string
	Cache    *FontCache
}

func (r *Rewriter) Patch(html string) (string, error) {
	return Patch(html, r.FontsDir, r.Cache)
}

// Verify reports any remaining references to a blocked external font/CDN
// host. A correct Patch output always yields an empty slice.
func Verify(html string) []string {
	matches := externalRefSniffPattern.FindAllString(html, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}
