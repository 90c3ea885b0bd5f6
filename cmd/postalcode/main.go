// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

//go:build linux

// Package main implements the postalcode service and its one-shot lookups.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/wneessen/postalcode/internal/config"
	"github.com/wneessen/postalcode/internal/i18n"
	"github.com/wneessen/postalcode/internal/logger"
	"github.com/wneessen/postalcode/internal/service"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGABRT, os.Interrupt)
	defer cancel()

	// Initialize Logger
	log := logger.NewLogger(slog.LevelError, os.Stderr)

	// Read config
	confRead := false
	confPath := flag.String("config", "", "path to the config file")
	gps := flag.Bool("gps", false, "look up the postal code of the current device position and exit")
	search := flag.String("search", "", "look up the postal code of a place and exit")
	countryCode := flag.String("country", "", "ISO 3166-1 country code of the place given with -search")
	flag.Parse()

	// Read default config
	conf, err := config.New()
	if err != nil {
		log.Error("failed to load config", logger.Err(err))
		os.Exit(1)
	}

	// If config file was specified, read it
	if *confPath != "" {
		file := filepath.Base(*confPath)
		path := filepath.Dir(*confPath)
		conf, err = config.NewFromFile(path, file)
		if err != nil {
			log.Error("failed to load config from file", logger.Err(err))
			os.Exit(1)
		}
		confRead = true
	}

	// Check if we have a config file in the default location
	if path, file := findConfigFile(); !confRead && (path != "" && file != "") {
		conf, err = config.NewFromFile(path, file)
		if err != nil {
			log.Error("failed to load config from file", logger.Err(err))
			os.Exit(1)
		}
	}

	log = logger.New(conf.LogLevel)
	t, err := i18n.New(conf.Locale)
	if err != nil {
		log.Error("failed to initialize localizer", logger.Err(err))
		os.Exit(1)
	}

	gin.SetMode(gin.ReleaseMode)
	serv, err := service.New(conf, log, t)
	if err != nil {
		log.Error("failed to initialize postalcode service", logger.Err(err))
		os.Exit(1)
	}

	// One-shot lookups print the results panel and exit
	switch {
	case *gps:
		if err = serv.LookupGPS(ctx, os.Stdout); err != nil {
			log.Error("postal code lookup failed", logger.Err(err))
			os.Exit(1)
		}
		return
	case *search != "":
		if err = serv.Lookup(ctx, *search, *countryCode, os.Stdout); err != nil {
			log.Error("postal code lookup failed", logger.Err(err))
			os.Exit(1)
		}
		return
	}

	// Start the service loop
	log.Info(t.Get("starting postalcode service"), slog.String("version", version),
		slog.String("commit", commit), slog.String("date", date))
	if err = serv.Run(ctx); err != nil {
		log.Error(t.Get("failed to start postalcode service"), logger.Err(err))
	}
	log.Info(t.Get("shutting down postalcode service"))
}

func findConfigFile() (string, string) {
	homedir, err := os.UserHomeDir()
	if err != nil {
		return "", ""
	}
	exts := []string{"toml", "yaml", "yml", "json"}
	for _, ext := range exts {
		path := filepath.Join(homedir, ".config", "postalcode", "config."+ext)
		if _, err = os.Stat(path); err == nil {
			return filepath.Dir(path), filepath.Base(path)
		}
	}
	return "", ""
}
