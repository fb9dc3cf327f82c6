// Command viewer shows a flow field in the terminal and lets you edit it.
//
// Keys: arrows or hjkl move, space toggles an obstacle, g sets the goal,
// s sets the start, t traces from the cursor, r reloads, q or Esc quits.
//
// # Edit a scenario; saving the file reloads it
// ./viewer -scenario level.yaml
//
// # Blank 40x40 grid
// ./viewer -size 40
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"
	log "github.com/sirupsen/logrus"

	"flow-field/internal/config"
	"flow-field/internal/grid"
	"flow-field/internal/logging"
	"flow-field/internal/scenario"
	"flow-field/internal/viewer"
)

func main() {
	var (
		scenarioPath string
		size         int
	)
	flag.StringVar(&scenarioPath, "scenario", "", "Scenario file to open and watch")
	flag.IntVar(&size, "size", 0, "Grid size when no scenario is given (0 = DEFAULT_FIELD_SIZE)")
	flag.Parse()

	appConfig := config.Load()

	// The terminal is ours; logs only go to LOG_FILE
	closer, err := logging.Setup(appConfig.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "viewer: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()
	if appConfig.Logging.File == "" {
		log.SetOutput(io.Discard)
	}

	if err := run(scenarioPath, size, appConfig.Field); err != nil {
		fmt.Fprintf(os.Stderr, "viewer: %v\n", err)
		closer.Close()
		os.Exit(1)
	}
}

func run(scenarioPath string, size int, limits config.FieldConfig) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()

	var v *viewer.Viewer
	if scenarioPath != "" {
		v, err = viewer.Open(screen, scenarioPath, scenario.Limits{MaxSize: limits.MaxSize, AllowImage: true})
	} else {
		if size <= 0 {
			size = limits.DefaultSize
		}
		var m *grid.Map
		if m, err = grid.NewMap(size); err == nil {
			v, err = viewer.New(screen, m)
		}
	}
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()
	if err := v.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
