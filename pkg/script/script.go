// Package script holds the minimal function object model the
// dispatcher schedules against: a source range, an identity-comparable
// function handle, and the compiled artifact installed on it.
package script

import (
	"fmt"

	"github.com/dop251/goja"
)

// Source is a span of script text. Begin and End are byte offsets of
// the function inside Text; a whole-script source uses 0..len(Text).
type Source struct {
	Name  string
	Text  string
	Begin int
	End   int
}

// NewSource returns a Source covering all of text.
func NewSource(name, text string) Source {
	return Source{Name: name, Text: text, Begin: 0, End: len(text)}
}

// Body returns the function's slice of the script text.
func (s Source) Body() string {
	if s.Begin < 0 || s.End > len(s.Text) || s.Begin > s.End {
		return ""
	}
	return s.Text[s.Begin:s.End]
}

// Len returns the length of the function body in bytes.
func (s Source) Len() int {
	return len(s.Body())
}

// Artifact is the output of a successful compile: an executable goja
// program plus the size bookkeeping the tracer feeds on.
type Artifact struct {
	Program   *goja.Program
	NodeCount int
}

// Function is the FunctionKey: the shared, identity-comparable handle
// for one script function. The dispatcher holds it as a non-owning
// map key; only the foreground context may mutate it.
type Function struct {
	src      Source
	artifact *Artifact
}

// NewFunction creates a function handle over the [begin, end) range of
// scriptText.
func NewFunction(name, scriptText string, begin, end int) *Function {
	return &Function{src: Source{Name: name, Text: scriptText, Begin: begin, End: end}}
}

// NewScriptFunction creates a function handle covering a whole script.
func NewScriptFunction(name, scriptText string) *Function {
	return NewFunction(name, scriptText, 0, len(scriptText))
}

// Name returns the function's name.
func (f *Function) Name() string {
	return f.src.Name
}

// Script returns the source span backing the function.
func (f *Function) Script() Source {
	return f.src
}

// IsCompiled reports whether an artifact has been installed.
func (f *Function) IsCompiled() bool {
	return f.artifact != nil
}

// Install establishes the compilation result. It must be called on the
// foreground context, exactly once per function.
func (f *Function) Install(a *Artifact) {
	if f.artifact != nil {
		panic(fmt.Sprintf("script: double install on %q", f.src.Name))
	}
	f.artifact = a
}

// Artifact returns the installed artifact, or nil.
func (f *Function) Artifact() *Artifact {
	return f.artifact
}
