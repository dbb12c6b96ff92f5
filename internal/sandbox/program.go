package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"io"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/roach88/simloom/internal/ir"
)

// header precedes every logic text. Logic never imports anything itself.
const header = `package main

import (
	"math"
	"sim"
)

var _ = math.Abs

`

const (
	tickOpen  = "func Tick(w *sim.Ctx, entities []sim.Entity) error {\n"
	tickClose = "\n\treturn nil\n}\n"
	runner    = "\nfunc runTick() error {\n\tw, entities := sim.Args()\n\treturn Tick(w, entities)\n}\n"
	runExpr   = "main.runTick()"
)

var (
	fullFile   = regexp.MustCompile(`(?m)^func\s+Tick\s*\(`)
	pkgClause  = regexp.MustCompile(`(?m)^[ \t]*package[ \t]`)
	importDecl = regexp.MustCompile(`(?m)^[ \t]*import[ \t]*[("]`)
	position   = regexp.MustCompile(`(\d+):(\d+): (.*)`)
)

// Program is compiled logic bound to its own interpreter.
// Runs are serialized; a Program is reusable across ticks.
type Program struct {
	logic  string
	hash   string
	offset int
	lines  int

	mu     sync.Mutex
	interp *interp.Interpreter
	stderr *positions
	cur    atomic.Pointer[call]
}

type call struct {
	ctx      *Ctx
	entities []Entity
}

// Compile wraps logic, checks it and loads it into a fresh interpreter.
// Failures are returned as a *Fault with Cause CauseCompile.
func Compile(logic string) (*Program, error) {
	p := &Program{
		logic:  logic,
		hash:   ir.LogicHash(logic),
		lines:  strings.Count(logic, "\n") + 1,
		stderr: &positions{},
	}

	if loc := pkgClause.FindStringIndex(logic); loc != nil {
		return nil, p.compileFault(lineAt(logic, loc[0]), 0, "logic must not declare a package")
	}
	if loc := importDecl.FindStringIndex(logic); loc != nil {
		return nil, p.compileFault(lineAt(logic, loc[0]), 0, `logic must not import packages; "math" and "sim" are provided`)
	}

	var src string
	src, p.offset = Wrap(logic)

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "logic.go", src, parser.AllErrors)
	if err != nil {
		var list scanner.ErrorList
		if errors.As(err, &list) && len(list) > 0 {
			return nil, p.compileFault(p.logicLine(list[0].Pos.Line), list[0].Pos.Column, list[0].Msg)
		}
		return nil, p.compileFault(0, 0, err.Error())
	}
	if f := p.checkConcurrency(fset, file); f != nil {
		return nil, f
	}

	i := interp.New(interp.Options{Stdout: io.Discard, Stderr: p.stderr})
	if err := i.Use(interp.Exports{
		"math/math": stdlib.Symbols["math/math"],
		"sim/sim": {
			"Ctx":    reflect.ValueOf((*Ctx)(nil)),
			"Entity": reflect.ValueOf((*Entity)(nil)),
			"Args":   reflect.ValueOf(p.args),
		},
	}); err != nil {
		return nil, fmt.Errorf("load sandbox symbols: %w", err)
	}
	if _, err := i.Eval(src); err != nil {
		line, col, msg := p.locate(err.Error())
		return nil, p.compileFault(line, col, msg)
	}
	p.interp = i
	return p, nil
}

// checkConcurrency refuses goroutines and channels. A goroutine started by
// logic outlives Run and panics outside the interpreter's recover.
func (p *Program) checkConcurrency(fset *token.FileSet, file *ast.File) *Fault {
	var fault *Fault
	ast.Inspect(file, func(n ast.Node) bool {
		if fault != nil {
			return false
		}
		var what string
		switch n.(type) {
		case *ast.GoStmt:
			what = "go statements"
		case *ast.SelectStmt:
			what = "select statements"
		case *ast.ChanType:
			what = "channels"
		default:
			return true
		}
		pos := fset.Position(n.Pos())
		fault = p.compileFault(p.logicLine(pos.Line), pos.Column, "logic must not use "+what)
		return false
	})
	return fault
}

// Wrap returns the complete Go file the interpreter loads for logic, and
// the number of lines preceding the first logic line.
func Wrap(logic string) (src string, offset int) {
	var b strings.Builder
	b.WriteString(header)
	if fullFile.MatchString(logic) {
		offset = strings.Count(header, "\n")
		b.WriteString(logic)
		b.WriteString("\n")
	} else {
		offset = strings.Count(header+tickOpen, "\n")
		b.WriteString(tickOpen)
		b.WriteString(logic)
		b.WriteString(tickClose)
	}
	b.WriteString(runner)
	return b.String(), offset
}

// Logic returns the source text the program was compiled from.
func (p *Program) Logic() string {
	return p.logic
}

// Hash returns the logic hash the program was compiled from.
func (p *Program) Hash() string {
	return p.hash
}

// args is exported to logic as sim.Args.
func (p *Program) args() (*Ctx, []Entity) {
	c := p.cur.Load()
	if c == nil {
		panic(errRevoked)
	}
	return c.ctx, c.entities
}

// Run calls Tick once with c and entities. c is revoked when Run returns,
// including when ctx expires while logic is still running.
func (p *Program) Run(ctx context.Context, c *Ctx, entities []Entity) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stderr.reset()
	p.cur.Store(&call{ctx: c, entities: entities})
	v, err := p.interp.EvalWithContext(ctx, runExpr)
	c.Revoke()
	p.cur.Store(nil)

	if err != nil {
		return p.runFault(err)
	}
	if v.IsValid() && v.CanInterface() {
		if e, ok := v.Interface().(error); ok && e != nil {
			return &Fault{Cause: CauseReturned, Message: e.Error(), Err: e}
		}
	}
	return nil
}

func (p *Program) runFault(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Fault{Cause: CauseTimeout, Message: "tick did not finish before its deadline", Err: err}
	}

	var pe interp.Panic
	if !errors.As(err, &pe) {
		line, col, msg := p.locate(err.Error())
		return &Fault{Cause: CausePanic, Message: msg, Line: line, Column: col, Err: err}
	}

	line, col := p.panicSite()
	f := &Fault{Line: line, Column: col}
	switch v := pe.Value.(type) {
	case primitiveFault:
		f.Cause, f.Message, f.Err = CausePrimitive, v.err.Error(), v.err
	case *BudgetExceededError:
		f.Cause, f.Message, f.Err = CauseBudget, v.Error(), v
	case error:
		if errors.Is(v, errRevoked) {
			f.Cause = CauseTimeout
		} else {
			f.Cause = CausePanic
		}
		f.Message, f.Err = v.Error(), v
	default:
		f.Cause, f.Message = CausePanic, fmt.Sprint(v)
	}
	return f
}

// panicSite returns the innermost logic position the interpreter reported
// for the last panic.
func (p *Program) panicSite() (line, col int) {
	for _, m := range position.FindAllStringSubmatch(p.stderr.String(), -1) {
		if !strings.HasPrefix(m[3], "panic") {
			continue
		}
		l, _ := strconv.Atoi(m[1])
		if ll := p.logicLine(l); ll > 0 {
			c, _ := strconv.Atoi(m[2])
			return ll, c
		}
	}
	return 0, 0
}

// locate maps the first in-logic position found in msg.
func (p *Program) locate(msg string) (line, col int, text string) {
	for _, m := range position.FindAllStringSubmatch(msg, -1) {
		l, _ := strconv.Atoi(m[1])
		if ll := p.logicLine(l); ll > 0 {
			c, _ := strconv.Atoi(m[2])
			return ll, c, m[3]
		}
	}
	return 0, 0, msg
}

// logicLine converts a wrapped-source line to a 1-based logic line, or 0.
func (p *Program) logicLine(line int) int {
	l := line - p.offset
	if l < 1 || l > p.lines {
		return 0
	}
	return l
}

func (p *Program) compileFault(line, col int, msg string) *Fault {
	return &Fault{Cause: CauseCompile, Message: msg, Line: line, Column: col}
}

func lineAt(s string, offset int) int {
	return strings.Count(s[:offset], "\n") + 1
}

// positions collects the interpreter's stderr, where it reports the source
// position of every frame a panic unwinds through.
type positions struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (p *positions) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Write(b)
}

func (p *positions) reset() {
	p.mu.Lock()
	p.buf.Reset()
	p.mu.Unlock()
}

func (p *positions) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.String()
}
