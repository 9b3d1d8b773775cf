package cli

import (
	"context"
	"fmt"

	"github.com/dop251/goja"

	"github.com/me/lazyjs/internal/dispatch"
	"github.com/me/lazyjs/internal/platform"
	"github.com/me/lazyjs/internal/tracestore"
	"github.com/me/lazyjs/pkg/model"
	"github.com/me/lazyjs/pkg/stub"
)

// engine bundles the pieces a command needs: the threaded platform,
// the dispatcher on top of it, the stub table, and the optional trace
// store.
type engine struct {
	platform   *platform.Threaded
	dispatcher *dispatch.Dispatcher
	stubs      *stub.Table
	traces     *tracestore.Store
}

func newEngine(ctx context.Context) (*engine, error) {
	p := platform.NewThreaded(cfg.Workers, cfg.IdleSlice.Std(), logger)
	d := dispatch.New(p, nil, cfg, logger)

	stubs := stub.NewTable()
	if err := stubs.Setup(defaultStubSpecs()); err != nil {
		p.Shutdown()
		return nil, fmt.Errorf("stub setup: %w", err)
	}

	eng := &engine{platform: p, dispatcher: d, stubs: stubs}
	if cfg.TraceDB != "" {
		ts, err := tracestore.Open(cfg.TraceDB, logger)
		if err != nil {
			p.Shutdown()
			return nil, err
		}
		if err := ts.Migrate(ctx); err != nil {
			ts.Close()
			p.Shutdown()
			return nil, fmt.Errorf("trace store migrate: %w", err)
		}
		eng.traces = ts
		d.OnSample = func(stage model.Stage, seconds float64, size int) {
			if err := ts.RecordSample(context.Background(), stage, "", seconds, size); err != nil {
				logger.Warn("trace sample not recorded", "error", err)
			}
		}
	}
	return eng, nil
}

func (e *engine) close() {
	e.platform.Shutdown()
	if e.traces != nil {
		e.traces.Close()
	}
}

// defaultStubSpecs is the host's pre-generated stub set, built once at
// engine initialization. Scripts whose name matches a stub are served
// from the table and never reach the dispatcher.
func defaultStubSpecs() []stub.Spec {
	return []stub.Spec{
		{Name: "noop", Kind: stub.KindCode, Source: "(function () {})"},
		{Name: "identity", Kind: stub.KindCode, Source: "(function (x) { return x })"},
		{Name: "hostVersion", Kind: stub.KindAPI, Native: func(call goja.FunctionCall) goja.Value {
			return goja.Undefined()
		}},
	}
}
