package admin

import (
	"fmt"
	"image/color"
	"math"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/robosim/internal/httputil"
	"github.com/banshee-data/robosim/internal/kinematics"
	"github.com/banshee-data/robosim/internal/worldmap"
)

// headingLength is the length in metres of the robot heading marker.
const headingLength = 0.5

var (
	obstacleColor = color.RGBA{R: 60, G: 60, B: 60, A: 255}
	robotColor    = color.RGBA{R: 220, G: 40, B: 40, A: 255}
	actorColor    = color.RGBA{R: 30, G: 110, B: 200, A: 255}
)

func (s *Server) handleMapPNG(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	p, err := s.mapPlot()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to plot map: %v", err))
		return
	}
	wt, err := p.WriterTo(6*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render map: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := wt.WriteTo(w); err != nil {
		s.logf("failed to write map.png: %v", err)
	}
}

// mapPlot draws the occupied cells at their centres, the actors and the
// robot with its heading.
func (s *Server) mapPlot() (*plot.Plot, error) {
	m := s.robot.Map()
	width, height := m.Extent()
	res := m.Resolution()

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%dx%d cells @ %g m (%s walk)", m.Width(), m.Height(), res, m.Walker())
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"
	p.X.Min, p.X.Max = 0, width
	p.Y.Min, p.Y.Max = 0, height
	p.Add(plotter.NewGrid())

	if cells := m.OccupiedCells(); len(cells) > 0 {
		pts := make(plotter.XYs, len(cells))
		for i, c := range cells {
			pts[i] = cellCentre(c, res)
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Shape = draw.BoxGlyph{}
		sc.GlyphStyle.Color = obstacleColor
		sc.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(sc)
		p.Legend.Add("obstacle", sc)
	}

	if actors := s.actors.All(); len(actors) > 0 {
		labels := plotter.XYLabels{XYs: make(plotter.XYs, len(actors)), Labels: make([]string, len(actors))}
		for i, a := range actors {
			labels.XYs[i] = plotter.XY{X: a.Position.X, Y: a.Position.Y}
			labels.Labels[i] = fmt.Sprintf("%s (%s)", a.ID, a.Kind)
		}
		sc, err := plotter.NewScatter(labels.XYs)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Shape = draw.TriangleGlyph{}
		sc.GlyphStyle.Color = actorColor
		sc.GlyphStyle.Radius = vg.Points(3)
		lb, err := plotter.NewLabels(labels)
		if err != nil {
			return nil, err
		}
		p.Add(sc, lb)
		p.Legend.Add("actor", sc)
	}

	pose := s.robot.Pose()
	robotPts, headingPts := robotMarker(pose)
	body, err := plotter.NewScatter(robotPts)
	if err != nil {
		return nil, err
	}
	body.GlyphStyle.Shape = draw.CircleGlyph{}
	body.GlyphStyle.Color = robotColor
	body.GlyphStyle.Radius = vg.Points(4)
	heading, err := plotter.NewLine(headingPts)
	if err != nil {
		return nil, err
	}
	heading.Color = robotColor
	heading.Width = vg.Points(2)
	p.Add(body, heading)
	p.Legend.Add(fmt.Sprintf("robot (%.2f, %.2f)", pose.X, pose.Y), body)

	return p, nil
}

func cellCentre(c worldmap.GridPoint, res float64) plotter.XY {
	return plotter.XY{X: (float64(c.X) + 0.5) * res, Y: (float64(c.Y) + 0.5) * res}
}

func robotMarker(pose kinematics.Pose) (body, heading plotter.XYs) {
	body = plotter.XYs{{X: pose.X, Y: pose.Y}}
	heading = plotter.XYs{
		{X: pose.X, Y: pose.Y},
		{X: pose.X + headingLength*math.Cos(pose.Theta), Y: pose.Y + headingLength*math.Sin(pose.Theta)},
	}
	return body, heading
}
