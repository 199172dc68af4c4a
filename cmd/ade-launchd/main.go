package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/0xADE/ade-launchd/internal/catalog"
	"github.com/0xADE/ade-launchd/internal/completion"
	"github.com/0xADE/ade-launchd/internal/config"
	"github.com/0xADE/ade-launchd/internal/indexer"
	"github.com/0xADE/ade-launchd/internal/indexer/bundle"
	"github.com/0xADE/ade-launchd/internal/intent"
	"github.com/0xADE/ade-launchd/internal/pathindex"
	"github.com/0xADE/ade-launchd/server"
)

func main() {
	// Initialize configuration
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize config: %v\n", err)
		os.Exit(1)
	}

	// Start config watcher
	if err := config.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start config watcher: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Recent paths are optional; the daemon runs without them
	paths, err := pathindex.NewPathIndex()
	if err != nil {
		log.Printf("[WARN] Path index unavailable: %v", err)
	} else {
		defer paths.Close()
		if n, err := paths.Prune(cfg.RecentPathsLimit()); err != nil {
			log.Printf("[WARN] Failed to prune path index: %v", err)
		} else if n > 0 {
			log.Printf("[DEBUG] Pruned %d recent paths", n)
		}
	}

	// Create indexer and catalog
	scanOpts := bundle.DefaultOptions()
	scanOpts.Suffix = cfg.BundleSuffix()
	scanOpts.Home = cfg.Home()
	idx := indexer.NewIndexer(scanOpts)

	cat := catalog.New(catalog.Options{
		Roots:           cfg.SearchRoots(),
		CachePath:       cfg.CachePath(),
		RebuildInterval: cfg.RebuildInterval(),
		Limit:           cfg.ResultLimit(),
		PreserveUsage:   cfg.PreserveUsage(),
	}, idx)

	if err := cat.Load(ctx); err != nil {
		log.Printf("[ERROR] Failed to load catalog: %v", err)
	}
	go cat.Run(ctx)

	var watcher *catalog.RootWatcher
	if cfg.WatchRoots() {
		watcher, err = catalog.NewRootWatcher(cat, catalog.WatchOptions{
			Suffix: cfg.BundleSuffix(),
			Home:   cfg.Home(),
		})
		if err != nil {
			log.Printf("[WARN] Search roots will not be watched: %v", err)
		} else {
			defer watcher.Close()
			watcher.Watch(cat.Roots())
			go watcher.Run(ctx)
		}
	}

	classifier := intent.New(cfg.CommandPrefixes())

	// cache_path and watch_roots are read once at startup
	cfg.OnChange(func() {
		classifier.SetPrefixes(cfg.CommandPrefixes())
		cat.SetPreserveUsage(cfg.PreserveUsage())
		if cat.SetRebuildInterval(cfg.RebuildInterval()) {
			log.Printf("[DEBUG] Catalog rebuild interval is now %v", cat.RebuildInterval())
		}

		rootsChanged := cat.SetRoots(cfg.SearchRoots())
		suffixChanged := idx.SetSuffix(cfg.BundleSuffix())
		if !rootsChanged && !suffixChanged {
			return
		}
		log.Printf("[DEBUG] Search roots or bundle suffix changed, rebuilding catalog")
		if watcher != nil {
			watcher.SetSuffix(cfg.BundleSuffix())
			watcher.Watch(cat.Roots())
		}
		go cat.RebuildIfIdle(ctx)
	})

	base, err := os.Getwd()
	if err != nil {
		base = cfg.Home()
	}

	// Create server
	srv, err := server.NewServer(cfg.UnixSocket(), server.Services{
		Catalog:     cat,
		Classifier:  classifier,
		Paths:       paths,
		Policy:      completion.DefaultPolicy(cfg.Home()),
		Home:        cfg.Home(),
		Base:        base,
		ResultLimit: cfg.ResultLimit,
		RecentLimit: cfg.RecentPathsLimit,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create server: %v\n", err)
		os.Exit(1)
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start(ctx)
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	fmt.Println("ade-launchd started")

	select {
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal: %v\n", sig)
		cancel()
		idx.Stop()
		if err := srv.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error stopping server: %v\n", err)
		}
	case err := <-serverErr:
		if err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("ade-launchd stopped")
}
