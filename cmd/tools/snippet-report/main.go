// Command snippet-report summarizes a recorded snippet dataset: an HTML
// chart of per-frame point counts, a PNG of the vehicle trajectories and
// an optional world-frame point cloud export for a single frame.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/scene.report/internal/geom"
	"github.com/banshee-data/scene.report/internal/sim"
	"github.com/banshee-data/scene.report/internal/snippet/store"
)

var (
	dbPath   = flag.String("db", "", "Snippet dataset to report on (required)")
	outDir   = flag.String("out-dir", ".", "Directory for report artifacts")
	ascFrame = flag.Int("asc-frame", -1, "Frame to export as a world-frame .asc point cloud (-1 skips)")
)

func main() {
	flag.Parse()
	if *dbPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open dataset: %v", err)
	}
	defer st.Close()

	meta := st.Meta()
	d := meta.Dims
	log.Printf("run %s: map=%q seed=%d %d frames x %d vehicles x %d pedestrians",
		meta.RunID, meta.Map, meta.Seed, d.Frames, d.Vehicles, d.Pedestrians)

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	if err := writePointCountChart(st, *outDir); err != nil {
		log.Fatalf("failed to write point-count chart: %v", err)
	}
	if err := writeTrajectoryPlot(st, *outDir); err != nil {
		log.Fatalf("failed to write trajectory plot: %v", err)
	}
	if *ascFrame >= 0 {
		if err := writeWorldCloud(st, *outDir, *ascFrame); err != nil {
			log.Fatalf("failed to export frame %d: %v", *ascFrame, err)
		}
	}
}

// writePointCountChart renders per-frame point counts, one series per
// vehicle, as a standalone HTML chart.
func writePointCountChart(st *store.Store, dir string) error {
	counts, err := st.CloudCounts()
	if err != nil {
		return err
	}
	d := st.Meta().Dims

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Points per cloud", Subtitle: fmt.Sprintf("run=%s", st.Meta().RunID)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Points"}),
	)

	frames := make([]int, d.Frames)
	for f := range frames {
		frames[f] = f
	}
	line.SetXAxis(frames)
	for v := 0; v < d.Vehicles; v++ {
		data := make([]opts.LineData, d.Frames)
		for f := 0; f < d.Frames; f++ {
			data[f] = opts.LineData{Value: counts[f][v]}
		}
		line.AddSeries(fmt.Sprintf("vehicle %d", v), data)
	}

	path := filepath.Join(dir, "point_counts.html")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := line.Render(f); err != nil {
		return err
	}
	log.Printf("wrote %s", path)
	return nil
}

// writeTrajectoryPlot draws the x/y path of every vehicle's lidar over
// the run.
func writeTrajectoryPlot(st *store.Store, dir string) error {
	d := st.Meta().Dims

	p := plot.New()
	p.Title.Text = "Lidar trajectories"
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	for v := 0; v < d.Vehicles; v++ {
		pts := make(plotter.XYs, 0, d.Frames)
		for f := 0; f < d.Frames; f++ {
			pose, err := st.ReadLidarPose(f, v)
			if err != nil {
				return err
			}
			pts = append(pts, plotter.XY{X: pose[0], Y: pose[1]})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(v)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("vehicle %d", v), line)
	}

	path := filepath.Join(dir, "trajectories.png")
	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return err
	}
	log.Printf("wrote %s", path)
	return nil
}

// writeWorldCloud merges every vehicle's cloud for one frame into world
// coordinates and writes it as "x y z intensity" lines.
func writeWorldCloud(st *store.Store, dir string, frame int) error {
	d := st.Meta().Dims

	path := filepath.Join(dir, fmt.Sprintf("frame_%04d.asc", frame))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	total := 0
	for v := 0; v < d.Vehicles; v++ {
		cloud, n, err := st.ReadCloud(frame, v)
		if err != nil {
			return err
		}
		pose, err := st.ReadLidarPose(frame, v)
		if err != nil {
			return err
		}
		t := sim.Transform{
			Location: sim.Location{X: pose[0], Y: pose[1], Z: pose[2]},
			Rotation: sim.Rotation{Pitch: pose[3], Yaw: pose[4], Roll: pose[5]},
		}
		world, err := geom.TransformCloud(t, cloud[:n*4], false)
		if err != nil {
			return err
		}
		for i := 0; i < len(world); i += 4 {
			if _, err := fmt.Fprintf(f, "%.4f %.4f %.4f %.4f\n",
				world[i], world[i+1], world[i+2], world[i+3]); err != nil {
				return err
			}
		}
		total += n
	}
	log.Printf("wrote %s (%d points)", path, total)
	return nil
}
