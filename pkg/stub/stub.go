// Package stub holds the table of pre-generated code stubs registered
// once during engine initialization. The dispatcher never coordinates
// with this table; the host's lazy-compile path consults it before
// handing a function to the dispatcher.
package stub

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/me/lazyjs/pkg/script"
)

// Kind tags how a stub entry was produced.
type Kind string

const (
	// KindNative is a stub backed by a Go function.
	KindNative Kind = "native"
	// KindAPI is a native stub exposed through the embedding API.
	KindAPI Kind = "api"
	// KindCode is a stub pre-compiled from script source at setup.
	KindCode Kind = "code"
)

// NativeFunc is the calling convention for native stubs.
type NativeFunc func(call goja.FunctionCall) goja.Value

// Spec describes one stub to build during Setup.
type Spec struct {
	Name   string
	Kind   Kind
	Source string     // KindCode: script source compiled at setup
	Native NativeFunc // KindNative / KindAPI
}

// Entry is one built stub.
type Entry struct {
	Name     string
	Kind     Kind
	Index    int
	Artifact *script.Artifact
	Native   NativeFunc
}

// Table is the engine's stub table. Build it with Setup exactly once;
// afterwards it is frozen and safe for concurrent lookup.
type Table struct {
	initialized bool
	entries     []*Entry
	byName      map[string]*Entry
}

// NewTable returns an empty, uninitialized table.
func NewTable() *Table {
	return &Table{byName: make(map[string]*Entry)}
}

// Setup builds all stubs in spec order. It panics when called twice;
// the table is part of engine initialization, not runtime state.
func (t *Table) Setup(specs []Spec) error {
	if t.initialized {
		panic("stub: Setup called twice")
	}
	for i, sp := range specs {
		if _, dup := t.byName[sp.Name]; dup {
			return fmt.Errorf("duplicate stub %q", sp.Name)
		}
		e := &Entry{Name: sp.Name, Kind: sp.Kind, Index: i}
		switch sp.Kind {
		case KindNative, KindAPI:
			if sp.Native == nil {
				return fmt.Errorf("stub %q: missing native function", sp.Name)
			}
			e.Native = sp.Native
		case KindCode:
			prg, err := goja.Compile(sp.Name, sp.Source, true)
			if err != nil {
				return fmt.Errorf("compile stub %q: %w", sp.Name, err)
			}
			e.Artifact = &script.Artifact{Program: prg, NodeCount: len(sp.Source)}
		default:
			return fmt.Errorf("stub %q: unknown kind %q", sp.Name, sp.Kind)
		}
		t.entries = append(t.entries, e)
		t.byName[sp.Name] = e
	}
	t.initialized = true
	return nil
}

// TearDown unfreezes the table. Test use only.
func (t *Table) TearDown() {
	t.initialized = false
	t.entries = nil
	t.byName = make(map[string]*Entry)
}

// Initialized reports whether Setup has completed.
func (t *Table) Initialized() bool {
	return t.initialized
}

// Lookup returns the entry for name.
func (t *Table) Lookup(name string) (*Entry, bool) {
	e, ok := t.byName[name]
	return e, ok
}

// Artifact returns the pre-compiled artifact for name, if the entry
// carries one (KindCode stubs only).
func (t *Table) Artifact(name string) (*script.Artifact, bool) {
	e, ok := t.byName[name]
	if !ok || e.Artifact == nil {
		return nil, false
	}
	return e.Artifact, true
}

// Count returns the number of built stubs.
func (t *Table) Count() int {
	return len(t.entries)
}

// Names returns all stub names in build order.
func (t *Table) Names() []string {
	names := make([]string, len(t.entries))
	for i, e := range t.entries {
		names[i] = e.Name
	}
	return names
}
