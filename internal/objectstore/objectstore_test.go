package objectstore

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var keyPattern = regexp.MustCompile(`^visualizations/\d+/visualization-\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z\.html$`)

func TestKeyMatchesRequiredPattern(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	key := Key(42, ts)
	require.Equal(t, "visualizations/42/visualization-2026-01-02T03:04:05Z.html", key)
	require.Regexp(t, keyPattern, key)
}

func TestMetadataAsMap(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := Metadata{Owner: "u1", TransformID: 42, VisualizationID: 100, Timestamp: ts}
	got := m.asMap()
	require.Equal(t, "u1", got["owner"])
	require.Equal(t, "42", got["transform-id"])
	require.Equal(t, "100", got["visualization-id"])
	require.Equal(t, "2026-01-02T03:04:05Z", got["timestamp"])
}
