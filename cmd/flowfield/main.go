// Command flowfield generates a flow field once and exports it.
//
// Usage examples:
//
// # Open 32x32 grid, goal in the middle, glyphs to stdout
// ./flowfield -size 32 -goal 16,16
//
// # Scenario file to texture and arrow plot
// ./flowfield -scenario level.yaml -texture field.png -plot arrows.png -cell 24
//
// # JSON schema for scenario files
// ./flowfield -schema scenario.schema.json
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"flow-field/internal/config"
	"flow-field/internal/flowfield"
	"flow-field/internal/grid"
	"flow-field/internal/logging"
	"flow-field/internal/render"
	"flow-field/internal/scenario"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "flowfield: %v\n", err)
		}
		os.Exit(1)
	}
}

type options struct {
	scenario string
	size     int
	goal     string
	trace    string
	ascii    bool
	texture  string
	plot     string
	cell     int
	schema   string
	logLevel string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("flowfield", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.scenario, "scenario", "", "Scenario file (YAML or JSON)")
	fs.IntVar(&opts.size, "size", 0, "Grid size when no scenario is given (0 = DEFAULT_FIELD_SIZE)")
	fs.StringVar(&opts.goal, "goal", "", "Goal cell as x,y, overrides the scenario")
	fs.StringVar(&opts.trace, "trace", "", "Draw the path from cell x,y on the plot")
	fs.BoolVar(&opts.ascii, "ascii", false, "Write glyphs to stdout (default when no other output is chosen)")
	fs.StringVar(&opts.texture, "texture", "", "Write the packed RGBA texture as PNG ('-' for stdout)")
	fs.StringVar(&opts.plot, "plot", "", "Write an arrow plot as PNG ('-' for stdout)")
	fs.IntVar(&opts.cell, "cell", 16, "Plot pixels per cell")
	fs.StringVar(&opts.schema, "schema", "", "Write the scenario JSON schema ('-' for stdout)")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if opts.cell <= 0 {
		return opts, fmt.Errorf("-cell must be positive, got %d", opts.cell)
	}
	return opts, nil
}

func run(args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	logger := log.StandardLogger()
	if _, err := logging.Configure(logger, config.LoggingConfig{Level: opts.logLevel, Format: "text"}); err != nil {
		return err
	}
	logger.SetOutput(stderr)

	if opts.schema != "" {
		if err := writeOutput(opts.schema, stdout, scenario.WriteSchema); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
		// Schema only
		if opts.scenario == "" && opts.size == 0 && opts.goal == "" {
			return nil
		}
	}

	limits := config.Load().Field
	sc, err := loadScenario(opts, limits)
	if err != nil {
		return err
	}
	if err := sc.Validate(scenario.Limits{MaxSize: limits.MaxSize, AllowImage: true}); err != nil {
		return err
	}
	m, err := sc.Build()
	if err != nil {
		return err
	}

	field, err := flowfield.New(m.Size())
	if err != nil {
		return err
	}
	started := time.Now()
	if err := field.Generate(m); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"size":    m.Size(),
		"reached": field.Reached(),
		"elapsed": time.Since(started),
	}).Info("Flow field generated")

	if opts.ascii || (opts.texture == "" && opts.plot == "") {
		if err := render.ASCIIWithMap(stdout, field, m); err != nil {
			return err
		}
	}

	if opts.texture != "" {
		err := writeOutput(opts.texture, stdout, func(w io.Writer) error {
			return render.WriteTexturePNG(w, field, m)
		})
		if err != nil {
			return fmt.Errorf("texture: %w", err)
		}
	}

	if opts.plot != "" {
		plotOpts := render.PlotOptions{CellSize: opts.cell}
		if opts.trace != "" {
			p, err := parsePoint(opts.trace)
			if err != nil {
				return fmt.Errorf("-trace: %w", err)
			}
			plotOpts.Path, _ = field.Trace(p.X, p.Y, 0)
		}
		err := writeOutput(opts.plot, stdout, func(w io.Writer) error {
			return render.WritePlotPNG(w, field, m, plotOpts)
		})
		if err != nil {
			return fmt.Errorf("plot: %w", err)
		}
	}
	return nil
}

func loadScenario(opts options, limits config.FieldConfig) (*scenario.Scenario, error) {
	var sc *scenario.Scenario
	if opts.scenario != "" {
		loaded, err := scenario.Load(opts.scenario)
		if err != nil {
			return nil, err
		}
		sc = loaded
	} else {
		sc = &scenario.Scenario{Size: limits.DefaultSize}
	}
	if opts.size > 0 {
		sc.Size = opts.size
	}
	if opts.goal != "" {
		p, err := parsePoint(opts.goal)
		if err != nil {
			return nil, fmt.Errorf("-goal: %w", err)
		}
		sc.Goal = &p
	}
	return sc, nil
}

// parsePoint reads "x,y".
func parsePoint(s string) (grid.Point, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return grid.Point{}, fmt.Errorf("expected x,y, got %q", s)
	}
	x, errX := strconv.Atoi(strings.TrimSpace(xs))
	y, errY := strconv.Atoi(strings.TrimSpace(ys))
	if errX != nil || errY != nil {
		return grid.Point{}, fmt.Errorf("expected integers x,y, got %q", s)
	}
	return grid.Point{X: x, Y: y}, nil
}

// writeOutput calls fn with stdout for "-" and a new file otherwise.
func writeOutput(path string, stdout io.Writer, fn func(w io.Writer) error) error {
	if path == "-" {
		return fn(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
