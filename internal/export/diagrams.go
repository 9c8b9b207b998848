package export

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"math"
	"regexp"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// renderedDiagramPattern matches diagram blocks that already carry inline SVG.
// Group 1: opening div tag, group 2: SVG markup, group 3: closing tag.
var renderedDiagramPattern = regexp.MustCompile(
	`(?s)(<div class="diagram(?: schema)?" data-diagram-kind="(?:mermaid|schema)" data-diagram-state="rendered" data-source-b64="[A-Za-z0-9+/=]*">)(.*?)(</div>)`)

// Theme backgrounds painted behind rasterized diagrams. SVG output assumes a
// page background; PNG needs it baked in.
var (
	lightBackground = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	darkBackground  = color.RGBA{R: 0x0f, G: 0x17, B: 0x2a, A: 0xff}
)

// rasterizeDiagrams replaces inline diagram SVG with embedded PNG images so
// print output does not depend on the browser's SVG font handling. A diagram
// that cannot be rasterized keeps its SVG; Chrome still prints it, just with
// less predictable sizing.
func rasterizeDiagrams(htmlIn string, dark bool, logger *slog.Logger) string {
	background := lightBackground
	if dark {
		background = darkBackground
	}

	return renderedDiagramPattern.ReplaceAllStringFunc(htmlIn, func(match string) string {
		groups := renderedDiagramPattern.FindStringSubmatch(match)
		if groups == nil {
			return match
		}
		open, svg, closing := groups[1], groups[2], groups[3]

		pngData, err := svgToPNG([]byte(svg), background)
		if err != nil {
			logger.Warn("diagram rasterization failed, keeping svg", slog.Any("err", err))
			return match
		}

		dataURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)
		return fmt.Sprintf(`%s<img class="diagram-image" src="%s" alt="diagram">%s`, open, dataURI, closing)
	})
}

// svgToPNG rasterizes SVG markup onto a canvas pre-filled with the given
// background color and encodes it as PNG.
func svgToPNG(svg []byte, background color.Color) ([]byte, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svg))
	if err != nil {
		return nil, fmt.Errorf("parse svg: %w", err)
	}

	viewbox := icon.ViewBox
	width := int(math.Ceil(viewbox.W))
	height := int(math.Ceil(viewbox.H))
	if width <= 0 || height <= 0 {
		width, height = 800, 600
	}

	icon.SetTarget(0, 0, float64(width), float64(height))

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(width, height, canvas, canvas.Bounds())
	raster := rasterx.NewDasher(width, height, scanner)
	icon.Draw(raster, 1.0)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
