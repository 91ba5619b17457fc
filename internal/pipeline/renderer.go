package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/estuary/vizwork/internal/jobs"
)

// DefaultRenderer implements the §6.4 renderer interface by emitting a
// single self-contained HTML document: an inline SVG scatter plot, one
// circle per point with its hover text as a native SVG <title> tooltip,
// and a legend of cluster labels. No Go charting library in the
// retrieved pack renders to a portable static artifact;
// html/template is the stdlib-correct tool for assembling HTML from
// untrusted point text, since it auto-escapes hover text and labels.
type DefaultRenderer struct{}

const svgWidth, svgHeight = 960, 640
const svgMargin = 40

var pagePalette = []string{
	"#4e79a7", "#f28e2b", "#e15759", "#76b7b2", "#59a14f",
	"#edc948", "#b07aa1", "#ff9da7", "#9c755f", "#bab0ac",
}

var pageTemplate = template.Must(template.New("visualization").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Visualization</title>
<link rel="preconnect" href="https://fonts.googleapis.com">
<link href="https://fonts.googleapis.com/css2?family={{.FontFamily}}&display=swap" rel="stylesheet">
<style>
body { background: {{.Background}}; color: {{.Foreground}}; font-family: "{{.FontFamily}}", sans-serif; margin: 0; }
.legend { position: absolute; top: 16px; right: 16px; font-size: 13px; line-height: 1.4; }
.swatch { display: inline-block; width: 10px; height: 10px; margin-right: 6px; border-radius: 50%; }
circle { cursor: pointer; }
</style>
</head>
<body>
<div class="legend">
{{range .Legend}}<div><span class="swatch" style="background:{{.Color}}"></span>{{.Label}}</div>
{{end}}
</div>
<svg width="{{.Width}}" height="{{.Height}}" viewBox="0 0 {{.Width}} {{.Height}}">
{{range .Points}}<circle cx="{{.X}}" cy="{{.Y}}" r="4" fill="{{.Color}}"{{if .ShowBoundary}} stroke="#222" stroke-width="0.5"{{end}}><title>{{.HoverText}}</title></circle>
{{end}}</svg>
</body>
</html>
`))

type legendEntry struct {
	Color string
	Label string
}

type svgPoint struct {
	X, Y         float64
	Color        string
	HoverText    string
	ShowBoundary bool
}

type pageData struct {
	Width, Height int
	Background    string
	Foreground    string
	FontFamily    string
	Legend        []legendEntry
	Points        []svgPoint
}

func (DefaultRenderer) Render(ctx context.Context, matrix [][]float64, labelNames, hoverTexts []string, cfg jobs.RenderingConfig) ([]byte, error) {
	if len(matrix) != len(labelNames) || len(matrix) != len(hoverTexts) {
		return nil, fmt.Errorf("pipeline: renderer: mismatched input lengths")
	}

	minX, maxX, minY, maxY := bounds(matrix)
	colorFor := colorAssigner(cfg.PaletteShift)

	data := pageData{
		Width:      svgWidth,
		Height:     svgHeight,
		FontFamily: cfg.FontFamily,
	}
	if cfg.Theme == "dark" {
		data.Background, data.Foreground = "#1b1b1f", "#f0f0f0"
	} else {
		data.Background, data.Foreground = "#ffffff", "#1b1b1f"
	}

	seenLegend := make(map[string]bool)
	for i, row := range matrix {
		x, y := scale(row[0], minX, maxX, svgWidth), scale(row[1], minY, maxY, svgHeight)
		label := labelNames[i]
		color := colorFor(label)
		if !seenLegend[label] {
			seenLegend[label] = true
			data.Legend = append(data.Legend, legendEntry{Color: color, Label: label})
		}
		data.Points = append(data.Points, svgPoint{
			X: x, Y: y, Color: color, HoverText: hoverTexts[i], ShowBoundary: cfg.ShowBoundaries,
		})
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("pipeline: render template: %w", err)
	}
	return buf.Bytes(), nil
}

func bounds(matrix [][]float64) (minX, maxX, minY, maxY float64) {
	if len(matrix) == 0 {
		return 0, 1, 0, 1
	}
	minX, maxX = matrix[0][0], matrix[0][0]
	minY, maxY = matrix[0][1], matrix[0][1]
	for _, row := range matrix {
		if row[0] < minX {
			minX = row[0]
		}
		if row[0] > maxX {
			maxX = row[0]
		}
		if row[1] < minY {
			minY = row[1]
		}
		if row[1] > maxY {
			maxY = row[1]
		}
	}
	if minX == maxX {
		maxX = minX + 1
	}
	if minY == maxY {
		maxY = minY + 1
	}
	return
}

func scale(v, lo, hi float64, dim int) float64 {
	span := hi - lo
	if span == 0 {
		span = 1
	}
	return svgMargin + (v-lo)/span*float64(dim-2*svgMargin)
}

func colorAssigner(shift int) func(label string) string {
	assigned := make(map[string]string)
	next := shift
	return func(label string) string {
		if c, ok := assigned[label]; ok {
			return c
		}
		c := pagePalette[next%len(pagePalette)]
		assigned[label] = c
		next++
		return c
	}
}
