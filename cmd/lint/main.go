// Package main provides a content linter for action list and stage assets.
// It loads the library the way the daemon does and reports every wiring
// problem the engine would downgrade at run time.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cueworks/stagehand/internal/director"
	"github.com/cueworks/stagehand/internal/script"
)

func main() {
	listsDir := flag.String("lists", "content/lists", "path to list YAML files directory")
	stagesDir := flag.String("stages", "content/stages", "path to stage YAML files directory; empty = skip stages")
	flag.Parse()

	start := time.Now()
	lib, err := script.LoadLibrary(*listsDir, *stagesDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	issues := lib.Inspect(director.DefaultRegistry())
	for _, issue := range issues {
		fmt.Fprintln(os.Stdout, issue.String())
	}

	elapsed := time.Since(start).Round(time.Millisecond)
	if len(issues) > 0 {
		fmt.Fprintf(os.Stdout, "%d issues in %d lists (%d stages) [%s]\n",
			len(issues), lib.ListCount(), lib.StageCount(), elapsed)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "clean: %d lists (%d stages) [%s]\n",
		lib.ListCount(), lib.StageCount(), elapsed)
}
