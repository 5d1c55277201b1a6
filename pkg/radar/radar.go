package radar

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"strings"

	"github.com/igolaizola/musaix/pkg/music"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Rings are the values of the grid polygons.
var Rings = []float64{20, 40, 60, 80, 100}

type Point struct {
	X float64
	Y float64
}

// Axis of the chart with its end point at the maximum score.
type Axis struct {
	Subject string
	Value   float64
	End     Point
}

// angle returns the screen angle of the i-th of n axes, starting at the
// top and going clockwise.
func angle(i, n int) float64 {
	return -math.Pi/2 + float64(i)*2*math.Pi/float64(n)
}

func point(cx, cy, r, value float64, i, n int) Point {
	d := r * value / music.MaxScore
	a := angle(i, n)
	return Point{
		X: cx + d*math.Cos(a),
		Y: cy + d*math.Sin(a),
	}
}

// Points returns the vertices of the mood polygon in screen coordinates.
func Points(m music.Mood, cx, cy, r float64) []Point {
	scores := m.Clamp().Scores()
	pts := make([]Point, len(scores))
	for i, s := range scores {
		pts[i] = point(cx, cy, r, s.Value, i, len(scores))
	}
	return pts
}

// Axes returns the chart axes.
func Axes(m music.Mood, cx, cy, r float64) []Axis {
	scores := m.Clamp().Scores()
	axes := make([]Axis, len(scores))
	for i, s := range scores {
		axes[i] = Axis{
			Subject: s.Subject,
			Value:   s.Value,
			End:     point(cx, cy, r, music.MaxScore, i, len(scores)),
		}
	}
	return axes
}

// Polygon returns the mood polygon as an SVG points attribute.
func Polygon(m music.Mood, cx, cy, r float64) string {
	return svgPoints(Points(m, cx, cy, r))
}

// Grid returns the grid rings as SVG points attributes.
func Grid(cx, cy, r float64) []string {
	rings := make([]string, len(Rings))
	for i, v := range Rings {
		rings[i] = Polygon(music.Mood{
			Energy:           v,
			Valence:          v,
			Danceability:     v,
			Acousticness:     v,
			Instrumentalness: v,
		}, cx, cy, r)
	}
	return rings
}

func svgPoints(pts []Point) string {
	parts := make([]string, len(pts))
	for i, p := range pts {
		parts[i] = fmt.Sprintf("%.1f,%.1f", p.X, p.Y)
	}
	return strings.Join(parts, " ")
}

var (
	gridColor = color.RGBA{R: 120, G: 120, B: 140, A: 255}
	fillColor = color.RGBA{R: 208, G: 9, B: 226, A: 110}
	lineColor = color.RGBA{R: 6, G: 147, B: 227, A: 255}
)

// toXYs converts screen points centered at the origin to plot coordinates.
func toXYs(pts []Point) plotter.XYs {
	xys := make(plotter.XYs, len(pts))
	for i, p := range pts {
		xys[i].X = p.X
		xys[i].Y = -p.Y
	}
	return xys
}

// Plot renders the mood radar chart. Format is any format supported by
// gonum plot, such as png, jpg or svg.
func Plot(m music.Mood, title, format string) ([]byte, error) {
	p := plot.New()
	p.Title.Text = title
	p.HideAxes()
	p.X.Min, p.X.Max = -130, 130
	p.Y.Min, p.Y.Max = -130, 130

	for _, v := range Rings {
		ring := Points(music.Mood{
			Energy:           v,
			Valence:          v,
			Danceability:     v,
			Acousticness:     v,
			Instrumentalness: v,
		}, 0, 0, 100)
		poly, err := plotter.NewPolygon(toXYs(ring))
		if err != nil {
			return nil, fmt.Errorf("radar: couldn't create grid: %w", err)
		}
		poly.Color = nil
		poly.LineStyle.Color = gridColor
		poly.LineStyle.Width = vg.Points(0.5)
		p.Add(poly)
	}

	axes := Axes(m, 0, 0, 100)
	labels := plotter.XYLabels{
		XYs:    make(plotter.XYs, len(axes)),
		Labels: make([]string, len(axes)),
	}
	for i, a := range axes {
		spoke, err := plotter.NewLine(toXYs([]Point{{}, a.End}))
		if err != nil {
			return nil, fmt.Errorf("radar: couldn't create axis: %w", err)
		}
		spoke.LineStyle.Color = gridColor
		spoke.LineStyle.Width = vg.Points(0.5)
		p.Add(spoke)

		end := toXYs([]Point{a.End})[0]
		labels.XYs[i].X = end.X * 1.12
		labels.XYs[i].Y = end.Y * 1.12
		labels.Labels[i] = fmt.Sprintf("%s %.0f", a.Subject, a.Value)
	}

	poly, err := plotter.NewPolygon(toXYs(Points(m, 0, 0, 100)))
	if err != nil {
		return nil, fmt.Errorf("radar: couldn't create polygon: %w", err)
	}
	poly.Color = fillColor
	poly.LineStyle.Color = lineColor
	poly.LineStyle.Width = vg.Points(2)
	p.Add(poly)

	l, err := plotter.NewLabels(labels)
	if err != nil {
		return nil, fmt.Errorf("radar: couldn't create labels: %w", err)
	}
	for i := range l.TextStyle {
		l.TextStyle[i].XAlign = -0.5
		l.TextStyle[i].YAlign = -0.5
	}
	p.Add(l)

	c, err := p.WriterTo(4*vg.Inch, 4*vg.Inch, format)
	if err != nil {
		return nil, fmt.Errorf("radar: couldn't create plot: %w", err)
	}
	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("radar: couldn't write plot: %w", err)
	}
	return buf.Bytes(), nil
}
