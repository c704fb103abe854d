// Package main provides a CLI tool that recomputes canvas positions for
// action list assets in place.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cueworks/stagehand/internal/script"
)

func main() {
	listsDir := flag.String("lists", "content/lists", "path to list YAML files directory; empty = skip")
	stagesDir := flag.String("stages", "content/stages", "path to stage YAML files directory; empty = skip")
	flag.Parse()

	if *listsDir == "" && *stagesDir == "" {
		fmt.Fprintln(os.Stderr, "usage: arrange [-lists <dir>] [-stages <dir>]")
		os.Exit(1)
	}

	start := time.Now()
	arranged := 0

	if *listsDir != "" {
		n, err := arrangeLists(*listsDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		arranged += n
	}
	if *stagesDir != "" {
		n, err := arrangeStages(*stagesDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		arranged += n
	}

	fmt.Printf("arranged %d lists in %s\n", arranged, time.Since(start).Round(time.Millisecond))
}

// arrangeLists rewrites every standalone list file in dir with recomputed
// positions. Returns the number of lists arranged.
func arrangeLists(dir string) (int, error) {
	paths, err := yamlFiles(dir)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, path := range paths {
		l, err := script.LoadListFromFile(path)
		if err != nil {
			return count, err
		}
		l.AutoArrange()
		if err := script.SaveListToFile(l, path); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// arrangeStages rewrites every stage file in dir, arranging each embedded
// list. Returns the number of lists arranged across all stages.
func arrangeStages(dir string) (int, error) {
	paths, err := yamlFiles(dir)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, path := range paths {
		s, err := script.LoadStageFromFile(path)
		if err != nil {
			return count, err
		}
		for _, l := range s.Lists {
			l.AutoArrange()
			count++
		}
		if err := script.SaveStageToFile(s, path); err != nil {
			return count, err
		}
	}
	return count, nil
}

func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	return paths, nil
}
