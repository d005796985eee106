package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cheggaaa/pb/v3"
	"github.com/claude/repcounter/internal/analyze"
	"github.com/claude/repcounter/internal/pose"
	"github.com/claude/repcounter/internal/repcount"
)

// Version is set at build time via -ldflags.
var Version = "dev"

const barTemplate = `{{ string . "prefix" }} {{counters . }} {{bar . }} {{percent . }} {{etime . "%s elapsed"}} {{rtime . "%s remain"}}`

func main() {
	serverURL := flag.String("server", "", "repcounter server URL (e.g. https://repcounter.tail1234.ts.net)")
	dir := flag.String("path", "", "directory of landmark files (.jsonl, .csv)")
	exercise := flag.String("exercise", "pushup", "exercise for files whose name does not name one")
	layout := flag.String("layout", "mediapipe", "landmark layout for indexed frames (mediapipe, coco)")
	side := flag.String("side", "left", "body side to measure (left, right, auto)")
	apiKey := flag.String("api-key", os.Getenv("REPCOUNTER_AUTH_API_KEY"), "server API key")
	stateDir := flag.String("state-dir", "", "journal directory (default ~/.repcounter-analyze)")
	dryRun := flag.Bool("dry-run", false, "count reps but don't send to server")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("repcounter-analyze", Version)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if *dir == "" {
		fmt.Fprintf(os.Stderr, "Usage: repcounter-analyze -server <URL> -path <dir> [-exercise pushup|squat] [-dry-run]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *serverURL == "" && !*dryRun {
		fmt.Fprintf(os.Stderr, "Error: -server is required (or use -dry-run)\n")
		os.Exit(1)
	}

	e, err := repcount.ParseExercise(*exercise)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	l, err := pose.LayoutByName(*layout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	counter := repcount.DefaultOptions()
	if counter.Side, err = repcount.ParseSideMode(*side); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Open the journal of analyzed files
	if *stateDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Error("failed to get home directory", "error", err)
			os.Exit(1)
		}
		*stateDir = filepath.Join(homeDir, ".repcounter-analyze")
	}
	journal, err := analyze.OpenJournal(*stateDir)
	if err != nil {
		log.Error("failed to open journal", "error", err)
		os.Exit(1)
	}
	defer journal.Close()

	var client *analyze.Client
	if !*dryRun {
		client = analyze.NewClient(*serverURL, *apiKey)
		if err := client.Ping(); err != nil {
			log.Error("server check failed", "error", err)
			os.Exit(1)
		}
	}

	a := analyze.New(client, journal, *dir, analyze.Options{
		Exercise: e,
		Layout:   l,
		Counter:  counter,
		DryRun:   *dryRun,
	}, log)

	files, err := a.Files()
	if err != nil {
		log.Error("listing files failed", "error", err)
		os.Exit(1)
	}

	bar := pb.ProgressBarTemplate(barTemplate).Start(len(files))
	bar.Set("prefix", "analyzing")
	a.OnFile = func(string) { bar.Increment() }

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, err := a.Run(ctx)
	bar.Finish()
	printStats(stats, *dryRun)
	if err != nil {
		log.Error("analyze failed", "error", err)
		os.Exit(1)
	}
}

func printStats(stats *analyze.Stats, dryRun bool) {
	fmt.Println()
	fmt.Println("=== Analyze Summary ===")
	fmt.Printf("  Files total:      %d\n", stats.FilesTotal)
	fmt.Printf("  Files analyzed:   %d\n", stats.FilesAnalyzed)
	fmt.Printf("  Files skipped:    %d (already analyzed)\n", stats.FilesSkipped)
	fmt.Printf("  Files errored:    %d\n", stats.FilesErrored)
	fmt.Println()
	fmt.Printf("  Frames:           %d\n", stats.FramesTotal)
	fmt.Printf("  Reps counted:     %d\n", stats.RepsTotal)
	if dryRun {
		fmt.Println("  Sessions sent:    0 (dry run)")
	} else {
		fmt.Printf("  Sessions sent:    %d\n", stats.SessionsSent)
	}
	fmt.Println()
}
