// ════════════════════════════════════════════════════════════════════════════════════════════════
// Multiple Change Detector - Main Entry Point
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Multiple Change Detector
// Component: Command Line Entry Point
//
// Description:
//   Parses the signal count, loads PACE_ tunables from the environment, and hands one run to the
//   supervisor. The event protocol goes to stdout; everything else goes to stderr.
//
// Exit status:
//   0  run completed
//   1  usage error, bad configuration, or output failure
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"pacedetect/config"
	"pacedetect/debug"
	"pacedetect/supervisor"
)

// ErrUsage marks a command line that cannot start a run.
var ErrUsage = errors.New("usage")

func usage(w io.Writer, prog string) {
	fmt.Fprintf(w, "Usage: %s N\n"+
		"    where:\n"+
		"        N: number of signals to monitor\n", prog)
}

// parseArgs returns the signal count from argv.
func parseArgs(args []string) (int, error) {
	if len(args) != 2 {
		return 0, fmt.Errorf("%w: want 1 argument, got %d", ErrUsage, len(args)-1)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("%w: N: %v", ErrUsage, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: N must be at least 1, got %d", ErrUsage, n)
	}
	return n, nil
}

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	prog := "pacedetect"
	if len(args) > 0 {
		prog = args[0]
	}

	n, err := parseArgs(args)
	if err != nil {
		usage(stdout, prog)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	lc := cfg.Logger()
	lc.Output = stderr
	log, err := debug.Init(lc)
	if err != nil {
		fmt.Fprintln(stderr, "logger:", err)
		return 1
	}
	defer debug.Sync()

	undo, err := maxprocs.Set(maxprocs.Logger(log.Sugar().Infof))
	if err != nil {
		debug.DropError("MAXPROCS", err)
	}
	defer undo()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup, err := supervisor.New(n, cfg, stdout, log)
	if err != nil {
		debug.DropError("SETUP", err)
		return 1
	}

	sum, err := sup.Run(ctx)
	if err != nil {
		debug.DropError("RUN", err)
		return 1
	}

	debug.DropMessage("RUN", sum.String())
	if sum.Audit != nil {
		log.Info("audit",
			zap.Int64("matched", sum.Audit.Matched),
			zap.Int64("missed", sum.Audit.Missed),
			zap.Int64("pending", sum.Audit.Pending),
			zap.Int64("spurious", sum.Audit.Spurious),
			zap.Bool("clean", sum.Audit.Clean()),
		)
	}
	if cfg.Run.Report {
		b, err := sum.Encode()
		if err != nil {
			debug.DropError("REPORT", err)
			return 1
		}
		if _, err := stderr.Write(b); err != nil {
			debug.DropError("REPORT", err)
			return 1
		}
	}
	return 0
}
