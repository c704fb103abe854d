// Package main provides a headless one-shot list runner. It loads content,
// plays a single list to completion, and prints every engine event to stdout.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cueworks/stagehand/internal/config"
	"github.com/cueworks/stagehand/internal/director"
	"github.com/cueworks/stagehand/internal/observability"
	"github.com/cueworks/stagehand/internal/script"
	"github.com/cueworks/stagehand/internal/vars"
)

func main() {
	file := flag.String("file", "", "single list YAML file to run instead of a content directory")
	listsDir := flag.String("lists", "content/lists", "path to list YAML files directory")
	stagesDir := flag.String("stages", "", "path to stage YAML files directory; empty = skip")
	listID := flag.String("list", "", "ID of the list to run; optional when exactly one list is loaded")
	varsFile := flag.String("vars", "", "variable defaults YAML file applied before the run")
	seed := flag.Int64("seed", 0, "deterministic seed for check.random; 0 draws a crypto seed")
	tick := flag.Duration("tick", 100*time.Millisecond, "engine tick length")
	timeout := flag.Duration("timeout", time.Minute, "wall-clock limit for the run")
	fast := flag.Bool("fast", false, "step without waiting between ticks")
	quiet := flag.Bool("quiet", false, "suppress the event stream")
	verbose := flag.Bool("verbose", false, "log engine internals at info level")
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "info"
	}
	logger, err := observability.NewLogger(config.LoggingConfig{Level: level, Format: "console"})
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	lib, err := loadLibrary(*file, *listsDir, *stagesDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	target := *listID
	if target == "" {
		if lib.ListCount() != 1 {
			ids := make([]string, 0, lib.ListCount())
			for _, l := range lib.AllLists() {
				ids = append(ids, l.ID)
			}
			fmt.Fprintf(os.Stderr, "-list is required; loaded lists: %s\n", strings.Join(ids, ", "))
			os.Exit(2)
		}
		target = lib.AllLists()[0].ID
	}

	board := vars.NewBoard()
	if *varsFile != "" {
		defaults, err := vars.LoadFile(*varsFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(2)
		}
		board.Apply(defaults)
	}

	d := director.New(lib, director.Options{
		TickInterval: *tick,
		Seed:         *seed,
		Vars:         board,
	}, logger)

	events := make(chan director.Event, 256)
	done := make(chan struct{})
	d.Subscribe(events)
	go func() {
		defer close(done)
		for ev := range events {
			if !*quiet {
				fmt.Println(ev.String())
			}
		}
	}()

	start := time.Now()
	id, err := d.Start(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: starting %q: %v\n", target, err)
		os.Exit(2)
	}

	view := run(d, id, *tick, *timeout, *fast)

	// No step is in flight here, so the channel is safe to close once the
	// director forgets it.
	d.Unsubscribe(events)
	close(events)
	<-done

	fmt.Printf("%s: %s after %d ticks [%s]\n",
		target, view.Status, d.Tick(), time.Since(start).Round(time.Millisecond))
	if view.Status != director.StatusFinished {
		os.Exit(1)
	}
}

// run steps the engine until the run reaches a terminal status or the
// wall-clock timeout expires. Timed-out runs are stopped before returning.
func run(d *director.Director, id uuid.UUID, tick, timeout time.Duration, fast bool) director.RunView {
	deadline := time.Now().Add(timeout)
	for {
		if !fast {
			time.Sleep(tick)
		}
		d.Step(tick)
		view, ok := d.GetRun(id)
		if !ok {
			return director.RunView{ID: id, Status: director.StatusStopped}
		}
		if view.Status.Terminal() {
			return view
		}
		if time.Now().After(deadline) {
			fmt.Fprintf(os.Stderr, "timeout after %s, stopping run\n", timeout)
			if err := d.StopRun(id); err == nil {
				view, _ = d.GetRun(id)
			}
			return view
		}
	}
}

// loadLibrary builds the content library from either a single list file or
// the content directories.
func loadLibrary(file, listsDir, stagesDir string) (*script.Library, error) {
	if file != "" {
		l, err := script.LoadListFromFile(file)
		if err != nil {
			return nil, err
		}
		return script.NewLibrary(nil, []*script.List{l})
	}
	return script.LoadLibrary(listsDir, stagesDir)
}
