// Package jsfront wraps the JavaScript engine's parse, analyze, and
// compile stages behind the step contract the dispatcher needs: each
// stage consumes only its own inputs, so the parse and compile stages
// can run off the foreground thread.
package jsfront

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"

	"github.com/me/lazyjs/pkg/script"
)

// ErrStackLimit marks an analysis rejection for exceeding the nesting
// depth budget derived from the configured stack size.
var ErrStackLimit = errors.New("nesting depth exceeds stack budget")

// DefaultMaxDepth is the analyzer depth cap when no stack budget is
// configured.
const DefaultMaxDepth = 4096

// MaxDepthForStack derives the analyzer nesting cap from a stack
// budget in KB. A zero budget leaves the default cap (it only disables
// background offloading).
func MaxDepthForStack(stackKB int) int {
	if stackKB <= 0 {
		return DefaultMaxDepth
	}
	return stackKB * 2
}

// ParseResult owns the outputs of the parse stage: the AST plus a
// self-contained copy of the source span. Nothing in it refers back to
// the host heap.
type ParseResult struct {
	Source  script.Source
	Program *ast.Program
	Strict  bool
}

// Analysis is the output of the scope-analysis stage.
type Analysis struct {
	NodeCount int
	MaxDepth  int
	Functions int
}

// CompileInput is the frozen input of the compile stage.
type CompileInput struct {
	Name      string
	Program   *ast.Program
	Strict    bool
	NodeCount int
}

// Frontend runs the pipeline stages. MaxDepth bounds AST nesting depth
// during analysis.
type Frontend struct {
	MaxDepth int
}

// New returns a frontend with the given analyzer depth cap.
func New(maxDepth int) *Frontend {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Frontend{MaxDepth: maxDepth}
}

// Parse parses the function body into an AST. Runs on any thread.
func (f *Frontend) Parse(src script.Source) (*ParseResult, error) {
	body := src.Body()
	prg, err := goja.Parse(src.Name, body)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", src.Name, err)
	}
	return &ParseResult{Source: src, Program: prg, Strict: hasStrictDirective(body)}, nil
}

// Analyze walks the AST collecting scope metrics and enforcing the
// nesting cap. Foreground stage.
func (f *Frontend) Analyze(pr *ParseResult) (*Analysis, error) {
	c := &counter{}
	ast.Walk(c, pr.Program)
	if c.peak > f.MaxDepth {
		return nil, fmt.Errorf("analyze %q: depth %d: %w", pr.Source.Name, c.peak, ErrStackLimit)
	}
	return &Analysis{NodeCount: c.nodes, MaxDepth: c.peak, Functions: c.funcs}, nil
}

// Freeze materializes the compile input from the parse and analysis
// outputs, dropping everything the compile step must not touch.
// Foreground stage.
func (f *Frontend) Freeze(pr *ParseResult, an *Analysis) (*CompileInput, error) {
	if pr == nil || an == nil {
		return nil, errors.New("freeze: missing parse or analysis output")
	}
	return &CompileInput{
		Name:      pr.Source.Name,
		Program:   pr.Program,
		Strict:    pr.Strict,
		NodeCount: an.NodeCount,
	}, nil
}

// Compile produces the executable artifact. Pure over its input; runs
// on any thread.
func (f *Frontend) Compile(in *CompileInput) (*script.Artifact, error) {
	prg, err := goja.CompileAST(in.Program, in.Strict)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", in.Name, err)
	}
	return &script.Artifact{Program: prg, NodeCount: in.NodeCount}, nil
}

// CompileFull runs the whole pipeline on the calling thread. Used for
// synchronous finishes of functions that were never enqueued.
func (f *Frontend) CompileFull(src script.Source) (*script.Artifact, error) {
	pr, err := f.Parse(src)
	if err != nil {
		return nil, err
	}
	an, err := f.Analyze(pr)
	if err != nil {
		return nil, err
	}
	in, err := f.Freeze(pr, an)
	if err != nil {
		return nil, err
	}
	return f.Compile(in)
}

// counter tallies nodes, peak nesting, and function literals.
type counter struct {
	depth int
	peak  int
	nodes int
	funcs int
}

func (c *counter) Enter(n ast.Node) ast.Visitor {
	c.nodes++
	c.depth++
	if c.depth > c.peak {
		c.peak = c.depth
	}
	if _, ok := n.(*ast.FunctionLiteral); ok {
		c.funcs++
	}
	return c
}

func (c *counter) Exit(n ast.Node) {
	c.depth--
}

func hasStrictDirective(body string) bool {
	s := strings.TrimLeft(body, " \t\r\n;")
	return strings.HasPrefix(s, `"use strict"`) || strings.HasPrefix(s, `'use strict'`)
}
