package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/lazyjs/pkg/model"
	"github.com/me/lazyjs/pkg/script"
)

func newRunCmd() *cobra.Command {
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "run <file.js> [file.js ...]",
		Short: "Compile scripts through the dispatcher and report stage timings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScripts(cmd.Context(), cmd.OutOrStdout(), args, grace)
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 200*time.Millisecond, "Idle time granted before synchronous finish")
	return cmd
}

func runScripts(ctx context.Context, out io.Writer, paths []string, grace time.Duration) error {
	eng, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close()

	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go eng.platform.Run(pumpCtx)

	fns, err := enqueueScripts(eng, paths)
	if err != nil {
		return err
	}

	// Let idle time and background workers make what progress they
	// can, then demand the stragglers synchronously on the foreground.
	time.Sleep(grace)
	done := make(chan int, 1)
	eng.platform.PostForeground(func() {
		failed := 0
		for _, fn := range fns {
			if !fn.IsCompiled() && !eng.dispatcher.FinishNow(fn) {
				failed++
			}
		}
		done <- failed
	})
	failed := <-done
	cancel()

	if eng.traces != nil {
		recordOutcomes(ctx, eng, fns)
	}
	printSummary(out, eng, fns, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d functions failed to compile", failed, len(fns))
	}
	return nil
}

// enqueueScripts loads each file and submits it for deferred
// compilation. Files covered by the stub table are served from it and
// skipped.
func enqueueScripts(eng *engine, paths []string) ([]*script.Function, error) {
	var fns []*script.Function
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read script %s: %w", path, err)
		}
		name := strings.TrimSuffix(filepath.Base(path), ".js")
		if _, ok := eng.stubs.Lookup(name); ok {
			logger.Info("served from stub table", "fn", name)
			continue
		}
		fn := script.NewScriptFunction(name, string(data))
		if !eng.dispatcher.Enqueue(fn) {
			return nil, fmt.Errorf("enqueue %s: dispatcher refused", name)
		}
		fns = append(fns, fn)
	}
	return fns, nil
}

func recordOutcomes(ctx context.Context, eng *engine, fns []*script.Function) {
	for _, fn := range fns {
		status := model.JobStatusDone
		if !fn.IsCompiled() {
			status = model.JobStatusFailed
		}
		if err := eng.traces.RecordOutcome(ctx, fn.Name(), status, nil); err != nil {
			logger.Warn("outcome not recorded", "fn", fn.Name(), "error", err)
		}
	}
}

func printSummary(out io.Writer, eng *engine, fns []*script.Function, failed int) {
	var total int
	for _, fn := range fns {
		total += fn.Script().Len()
	}
	st := eng.dispatcher.Stats()
	fmt.Fprintf(out, "compiled %d of %d functions (%s of source)\n",
		len(fns)-failed, len(fns), humanize.Bytes(uint64(total)))
	for _, stage := range model.Stages {
		avg, ok := st.StageAverages[stage]
		if !ok {
			continue
		}
		fmt.Fprintf(out, "  %-9s %v\n", stage, time.Duration(avg*float64(time.Second)).Round(time.Microsecond))
	}
}
