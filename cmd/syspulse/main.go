package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"syspulse/internal/agent"
	"syspulse/internal/config"
	"syspulse/internal/report"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	once := flag.Bool("once", false, "collect a single sample and exit")
	reportFmt := flag.String("report", "", "render a report and exit: json, csv, or text")
	hours := flag.Int("hours", 24, "report window in hours (0 = all stored samples)")
	output := flag.String("output", "", "write the report to this file instead of stdout")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("syspulse " + config.Version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := agent.BuildLogger(cfg)
	a, err := agent.New(cfg, logger)
	if err != nil {
		logger.Error("agent initialization failed", "error", err)
		os.Exit(1)
	}

	// Default mode: run the full agent loop until a signal or fatal error.
	// Run owns the shutdown, including the storage handle.
	if !*once && *reportFmt == "" {
		if err := a.Run(context.Background()); err != nil {
			logger.Error("agent runtime failed", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx := context.Background()

	if *once {
		sample, err := a.RunOnce(ctx)
		if err != nil {
			logger.Error("collection failed", "error", err)
			a.Close()
			os.Exit(1)
		}
		logger.Info("sample stored",
			"id", sample.ID,
			"timestamp", sample.Timestamp.Format(time.RFC3339))
	}

	if *reportFmt != "" {
		format, err := report.ParseFormat(*reportFmt)
		if err != nil {
			logger.Error("invalid -report flag", "error", err)
			a.Close()
			os.Exit(1)
		}
		if *hours < 0 {
			logger.Error("-hours must be >= 0", "hours", *hours)
			a.Close()
			os.Exit(1)
		}
		out, err := a.Report(ctx, *hours, format)
		if err != nil {
			logger.Error("report failed", "error", err)
			a.Close()
			os.Exit(1)
		}
		if *output != "" {
			if err := os.WriteFile(*output, out, 0o644); err != nil {
				logger.Error("write report file failed", "path", *output, "error", err)
				a.Close()
				os.Exit(1)
			}
			logger.Info("report written", "path", *output, "format", string(format))
		} else {
			os.Stdout.Write(out)
			if len(out) > 0 && out[len(out)-1] != '\n' {
				fmt.Println()
			}
		}
	}

	a.Close()
}
