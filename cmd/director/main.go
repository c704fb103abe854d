// Package main provides the stagehand daemon. It loads the content library,
// drives the director engine from a ticker, and serves the operator console
// and the WebSocket event feed.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/cueworks/stagehand/internal/config"
	"github.com/cueworks/stagehand/internal/console"
	"github.com/cueworks/stagehand/internal/director"
	"github.com/cueworks/stagehand/internal/feed"
	"github.com/cueworks/stagehand/internal/observability"
	"github.com/cueworks/stagehand/internal/savegame"
	"github.com/cueworks/stagehand/internal/script"
	"github.com/cueworks/stagehand/internal/scripting"
	"github.com/cueworks/stagehand/internal/server"
	"github.com/cueworks/stagehand/internal/storage/postgres"
	"github.com/cueworks/stagehand/internal/vars"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	savesDir := flag.String("saves", "saves", "directory for console save slots; empty = saves disabled")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting stagehand director",
		zap.String("console_addr", cfg.Console.Addr()),
		zap.Bool("feed_enabled", cfg.Feed.Enabled),
		zap.Bool("archive_enabled", cfg.Database.Enabled),
	)

	// Load the content library.
	libStart := time.Now()
	stagesDir := cfg.Library.StagesPath()
	if info, statErr := os.Stat(stagesDir); statErr != nil || !info.IsDir() {
		stagesDir = ""
	}
	lib, err := script.LoadLibrary(cfg.Library.ListsPath(), stagesDir)
	if err != nil {
		logger.Fatal("loading library", zap.Error(err))
	}
	logger.Info("library loaded",
		zap.Int("lists", lib.ListCount()),
		zap.Int("stages", lib.StageCount()),
		zap.Duration("elapsed", time.Since(libStart)),
	)

	// Surface wiring the engine will downgrade at run time.
	issues := lib.Inspect(director.DefaultRegistry())
	for _, issue := range issues {
		logger.Warn("content issue", zap.String("issue", issue.String()))
	}
	if len(issues) > 0 {
		logger.Warn("library has issues", zap.Int("count", len(issues)))
	}

	// Seed the variable board from the defaults file, when present.
	board := vars.NewBoard()
	if varsPath := cfg.Library.VarsPath(); varsPath != "" {
		if _, statErr := os.Stat(varsPath); statErr == nil {
			defaults, err := vars.LoadFile(varsPath)
			if err != nil {
				logger.Fatal("loading variable defaults", zap.Error(err))
			}
			board.Apply(defaults)
			logger.Info("variable defaults loaded",
				zap.Int("count", len(defaults)),
				zap.String("file", varsPath),
			)
		}
	}

	// Initialise Lua scripting. Files at the root of lua_dir become global
	// hooks; each subdirectory holds hooks for the list named by the
	// directory.
	var luaMgr *scripting.Manager
	if luaPath := cfg.Library.LuaPath(); luaPath != "" {
		info, statErr := os.Stat(luaPath)
		if statErr != nil || !info.IsDir() {
			logger.Warn("lua_dir not found, scripting disabled", zap.String("dir", luaPath))
		} else {
			luaStart := time.Now()
			luaMgr = scripting.NewManager(logger)
			if err := luaMgr.LoadGlobal(luaPath, cfg.Director.LuaInstructionLimit); err != nil {
				logger.Fatal("loading global hooks", zap.Error(err))
			}
			entries, err := os.ReadDir(luaPath)
			if err != nil {
				logger.Fatal("reading lua directory", zap.Error(err))
			}
			for _, entry := range entries {
				if !entry.IsDir() {
					continue
				}
				listID := entry.Name()
				if err := luaMgr.LoadList(listID, filepath.Join(luaPath, listID), cfg.Director.LuaInstructionLimit); err != nil {
					logger.Fatal("loading list hooks",
						zap.String("list", listID), zap.Error(err))
				}
			}
			logger.Info("scripting initialized",
				zap.String("dir", luaPath),
				zap.Duration("elapsed", time.Since(luaStart)),
			)
			defer luaMgr.Close()
		}
	}

	// Connect the run archive.
	var pool *postgres.Pool
	var store director.RunStore
	if cfg.Database.Enabled {
		dbStart := time.Now()
		pool, err = postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		store = postgres.NewRunRepository(pool.DB())
		logger.Info("run archive connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
	}

	d := director.New(lib, director.Options{
		TickInterval:   cfg.Director.TickInterval,
		ChainBudget:    cfg.Director.ChainBudget,
		MaxBranches:    cfg.Director.MaxBranches,
		MaxRuns:        cfg.Director.MaxRuns,
		MaxNesting:     cfg.Director.MaxNesting,
		RetainFinished: cfg.Director.RetainFinished,
		ExprTimeout:    cfg.Director.ExprTimeout,
		Seed:           cfg.Director.Seed,
		Vars:           board,
		Lua:            luaMgr,
		Store:          store,
		StoreTimeout:   cfg.Database.WriteTimeout,
	}, logger)

	// Stage on_start lists launch first, then the configured autostarts. The
	// runs take their first step once the engine service begins ticking.
	for _, s := range lib.AllStages() {
		if s.OnStart == "" {
			continue
		}
		id, err := d.Start(s.OnStart)
		if err != nil {
			logger.Fatal("starting stage on_start list",
				zap.String("stage", s.ID),
				zap.String("list", s.OnStart),
				zap.Error(err),
			)
		}
		logger.Info("stage on_start launched",
			zap.String("stage", s.ID),
			zap.String("list", s.OnStart),
			zap.String("run", id.String()),
		)
	}
	for _, listID := range cfg.Director.Autostart {
		id, err := d.Start(listID)
		if err != nil {
			logger.Fatal("autostarting list", zap.String("list", listID), zap.Error(err))
		}
		logger.Info("autostart launched",
			zap.String("list", listID),
			zap.String("run", id.String()),
		)
	}

	// Wire lifecycle
	lifecycle := server.NewLifecycle(logger)

	engineCtx, engineCancel := context.WithCancel(ctx)
	defer engineCancel()
	lifecycle.Add("engine", &server.FuncService{
		StartFn: func() error {
			if err := d.Loop(engineCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
		StopFn: engineCancel,
	})

	if cfg.Console.Enabled {
		var slots *savegame.Slots
		if *savesDir != "" {
			slots = savegame.NewSlots(*savesDir, logger)
		}
		session := console.NewSession(d, slots, cfg.Console.PasswordHash, logger)
		acceptor := console.NewAcceptor(cfg.Console, session, logger)
		lifecycle.Add("console", &server.FuncService{
			StartFn: acceptor.ListenAndServe,
			StopFn:  acceptor.Stop,
		})
	}

	if cfg.Feed.Enabled {
		f := feed.New(cfg.Feed, d, logger)
		lifecycle.Add("feed", &server.FuncService{
			StartFn: f.Start,
			StopFn:  f.Stop,
		})
	}

	if pool != nil {
		lifecycle.Add("postgres", &server.FuncService{
			StartFn: func() error {
				for {
					time.Sleep(30 * time.Second)
					if err := pool.Health(ctx, 5*time.Second); err != nil {
						logger.Warn("database health check failed", zap.Error(err))
					}
				}
			},
			StopFn: func() {
				pool.Close()
			},
		})
	}

	logger.Info("director initialized",
		zap.Duration("startup", time.Since(start)),
		zap.Int("lists", lib.ListCount()),
		zap.Duration("tick_interval", cfg.Director.TickInterval),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
