// Command xpledger replays a history of dated work events and writes the
// daily, total and ledger XP reports.
//
//	xpledger -events events.json -out docs/generated
//	cat events.json | xpledger -events - -tz Europe/Berlin
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"trackxp/adapters/jsonfile"
	"trackxp/config"
	"trackxp/engine"
	"trackxp/gamify"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "xpledger: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stderr io.Writer) error {
	fs := flag.NewFlagSet("xpledger", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath = fs.String("config", "", "JSON or YAML config file (defaults plus TRACKXP_* environment when empty)")
		eventsPath = fs.String("events", "-", "JSON array of dated events, - for stdin")
		outDir     = fs.String("out", "", "output directory (overrides ledger.output_dir)")
		timezone   = fs.String("tz", "", "timezone days are cut in (overrides ledger.timezone)")
		verbose    = fs.Bool("v", false, "log every replayed day")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *outDir != "" {
		cfg.Ledger.OutputDir = *outDir
	}
	if *timezone != "" {
		cfg.Ledger.Timezone = *timezone
	}
	loc, err := cfg.Ledger.Location()
	if err != nil {
		return fmt.Errorf("timezone %q: %w", cfg.Ledger.Timezone, err)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	events, err := readEvents(*eventsPath, stdin)
	if err != nil {
		return err
	}

	svc, err := gamify.New(
		gamify.WithConfig(cfg.XP.Core()),
		gamify.WithLocation(loc),
		gamify.WithLogger(log),
	)
	if err != nil {
		return err
	}
	defer svc.Close()

	report, err := svc.Replay(ctx, events)
	if err != nil {
		return err
	}

	w, err := jsonfile.New(cfg.Ledger.OutputDir)
	if err != nil {
		return err
	}
	if err := w.WriteReport(report); err != nil {
		return err
	}
	log.Info("reports written",
		"dir", w.Dir(),
		"total_xp", report.Totals.TotalXP,
		"level", report.Totals.Level,
		"into_level_xp", report.Totals.IntoLevelXP,
		"level_need", report.Totals.LevelNeed)
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFromFile(path)
}

func readEvents(path string, stdin io.Reader) ([]engine.DatedEvent, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var events []engine.DatedEvent
	if err := json.NewDecoder(r).Decode(&events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return events, nil
}
