// speed-report renders an HTML chart of a stored run's speed samples.
//
// Usage:
//
//	speed-report -db speedframe.db -run <run-id> [-out report.html] [-units mph]
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/speedframe/speedframe/internal/storage/sqlite"
	"github.com/speedframe/speedframe/internal/units"
)

var (
	dbPath    = flag.String("db", "speedframe.db", "Path to the runs database")
	runID     = flag.String("run", "", "Run id to chart")
	out       = flag.String("out", "speed-report.html", "Output HTML file")
	unitsFlag = flag.String("units", units.KMH, "Speed units for the chart ("+units.GetValidUnitsString()+")")
)

func main() {
	flag.Parse()
	if *runID == "" {
		log.Fatal("-run is required")
	}
	if !units.IsValid(*unitsFlag) {
		log.Fatalf("invalid -units %q, valid values: %s", *unitsFlag, units.GetValidUnitsString())
	}

	store, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	run, err := store.Run(*runID)
	if err != nil {
		log.Fatalf("failed to load run: %v", err)
	}
	samples, err := store.Samples(*runID)
	if err != nil {
		log.Fatalf("failed to load samples: %v", err)
	}
	if len(samples) == 0 {
		log.Fatalf("run %s has no speed samples", *runID)
	}

	xs := make([]string, 0, len(samples))
	ys := make([]opts.LineData, 0, len(samples))
	for _, s := range samples {
		xs = append(xs, fmt.Sprintf("%d", s.FrameIndex))
		ys = append(ys, opts.LineData{Value: units.ConvertSpeed(s.Kmh, *unitsFlag)})
	}
	peak := units.ConvertSpeed(run.PeakKmh, *unitsFlag)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Speed Report",
			Theme:     "dark",
			Width:     "1200px",
			Height:    "600px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Speed over frames",
			Subtitle: fmt.Sprintf("run=%s peak=%.2f %s @ frame %d", run.RunID, peak, *unitsFlag, run.PeakFrame),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame"}),
		charts.WithYAxisOpts(opts.YAxis{Name: *unitsFlag}),
	)
	line.SetXAxis(xs).AddSeries("speed", ys)

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("failed to create output file: %v", err)
	}
	defer f.Close()

	if err := line.Render(f); err != nil {
		log.Fatalf("failed to render chart: %v", err)
	}
	log.Printf("wrote %s (%d samples)", *out, len(samples))
}
