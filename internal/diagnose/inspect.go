package diagnose

import (
	"cmp"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/simloom/internal/ir"
	"github.com/roach88/simloom/internal/sandbox"
)

// predeclared holds the builtin functions and conversions logic may call.
var predeclared = map[string]bool{
	"append": true, "cap": true, "clear": true, "close": true, "complex": true,
	"copy": true, "delete": true, "imag": true, "len": true, "make": true,
	"max": true, "min": true, "new": true, "panic": true, "print": true,
	"println": true, "real": true, "recover": true,
	"bool": true, "byte": true, "float32": true, "float64": true, "int": true,
	"int8": true, "int16": true, "int32": true, "int64": true, "rune": true,
	"string": true, "uint": true, "uint8": true, "uint16": true, "uint32": true,
	"uint64": true, "any": true,
}

// componentArg maps primitives to the index of their component argument.
// Query is handled separately: every argument names a component.
var componentArg = map[string]int{
	"Has": 1, "Num": 1, "Str": 1, "Bool": 1, "Ref": 1,
	"Set": 1, "Attach": 1, "Detach": 1,
}

type analysis struct {
	fset   *token.FileSet
	offset int
	lines  int
	sys    ir.SystemDef
	known  map[string]bool

	ctxNames map[string]bool
	defined  map[string]bool
	guarded  map[string]bool
	out      []Warning
}

// inspect statically checks a system's logic.
func inspect(sys ir.SystemDef, known map[string]bool) []Warning {
	src, offset := sandbox.Wrap(sys.Logic)
	a := &analysis{
		fset:     token.NewFileSet(),
		offset:   offset,
		lines:    strings.Count(sys.Logic, "\n") + 1,
		sys:      sys,
		known:    known,
		ctxNames: make(map[string]bool),
		defined:  make(map[string]bool),
		guarded:  make(map[string]bool),
	}

	file, err := parser.ParseFile(a.fset, "logic.go", src, parser.AllErrors)
	if err != nil {
		w := Warning{Code: CodeUnparsable, Message: "logic does not parse"}
		var list scanner.ErrorList
		if errors.As(err, &list) && len(list) > 0 {
			w.Line = a.logicLine(list[0].Pos.Line)
			w.Message = "logic does not parse: " + list[0].Msg
		}
		return []Warning{w}
	}

	a.declarations(file)
	ast.Inspect(file, func(n ast.Node) bool {
		if call, ok := n.(*ast.CallExpr); ok {
			a.call(call)
		}
		return true
	})
	return a.sorted()
}

// declarations collects every name the logic defines, the names bound to
// *sim.Ctx and the components guarded by a Has call.
func (a *analysis) declarations(file *ast.File) {
	ast.Inspect(file, func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.FuncDecl:
			a.defined[x.Name.Name] = true
		case *ast.TypeSpec:
			a.defined[x.Name.Name] = true
		case *ast.ValueSpec:
			for _, id := range x.Names {
				a.defined[id.Name] = true
			}
		case *ast.AssignStmt:
			if x.Tok == token.DEFINE {
				for _, lhs := range x.Lhs {
					if id, ok := lhs.(*ast.Ident); ok {
						a.defined[id.Name] = true
					}
				}
			}
		case *ast.RangeStmt:
			if x.Tok == token.DEFINE {
				for _, e := range []ast.Expr{x.Key, x.Value} {
					if id, ok := e.(*ast.Ident); ok {
						a.defined[id.Name] = true
					}
				}
			}
		case *ast.Field:
			for _, id := range x.Names {
				a.defined[id.Name] = true
				if isCtxType(x.Type) {
					a.ctxNames[id.Name] = true
				}
			}
		case *ast.CallExpr:
			if _, method, ok := a.ctxCall(x); ok && method == "Has" && len(x.Args) > 1 {
				if comp, ok := stringLit(x.Args[1]); ok {
					a.guarded[comp] = true
				}
			}
		}
		return true
	})
}

func (a *analysis) call(call *ast.CallExpr) {
	line := a.logicLine(a.fset.Position(call.Pos()).Line)
	if line == 0 {
		return
	}

	if recv, method, ok := a.ctxCall(call); ok {
		if !slices.Contains(sandbox.Primitives, method) {
			a.warn(CodeUndefinedHelper, line, "call to undefined helper %s.%s", recv, method)
			return
		}
		for _, comp := range a.components(method, call.Args) {
			if !a.known[comp] {
				a.warn(CodeUndeclaredComponent, line, "reference to undeclared component %q", comp)
				continue
			}
			if (method == "Set" || method == "Detach") && !a.sys.Requires(comp) && !a.guarded[comp] {
				a.warn(CodeUnguardedWrite, line, "write to %q without a Has guard; it is not a required component", comp)
			}
		}
		return
	}

	if id, ok := call.Fun.(*ast.Ident); ok {
		if !predeclared[id.Name] && !a.defined[id.Name] {
			a.warn(CodeUndefinedHelper, line, "call to undefined helper %s", id.Name)
		}
	}
}

// ctxCall reports whether call is a method call on a *sim.Ctx variable.
func (a *analysis) ctxCall(call *ast.CallExpr) (recv, method string, ok bool) {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return "", "", false
	}
	id, ok := sel.X.(*ast.Ident)
	if !ok || !a.ctxNames[id.Name] {
		return "", "", false
	}
	return id.Name, sel.Sel.Name, true
}

// components returns the literal component names a primitive call names.
func (a *analysis) components(method string, args []ast.Expr) []string {
	var exprs []ast.Expr
	if method == "Query" {
		exprs = args
	} else if i, ok := componentArg[method]; ok && i < len(args) {
		exprs = args[i : i+1]
	}
	var out []string
	for _, e := range exprs {
		if s, ok := stringLit(e); ok {
			out = append(out, s)
		}
	}
	return out
}

func (a *analysis) warn(code string, line int, format string, args ...any) {
	w := Warning{Code: code, Line: line, Message: fmt.Sprintf(format, args...)}
	if !slices.Contains(a.out, w) {
		a.out = append(a.out, w)
	}
}

func (a *analysis) sorted() []Warning {
	out := slices.Clone(a.out)
	if out == nil {
		out = []Warning{}
	}
	slices.SortStableFunc(out, func(x, y Warning) int {
		if c := cmp.Compare(x.Line, y.Line); c != 0 {
			return c
		}
		return cmp.Compare(x.Code, y.Code)
	})
	return out
}

func (a *analysis) logicLine(line int) int {
	l := line - a.offset
	if l < 1 || l > a.lines {
		return 0
	}
	return l
}

func isCtxType(e ast.Expr) bool {
	star, ok := e.(*ast.StarExpr)
	if !ok {
		return false
	}
	sel, ok := star.X.(*ast.SelectorExpr)
	if !ok {
		return false
	}
	pkg, ok := sel.X.(*ast.Ident)
	return ok && pkg.Name == "sim" && sel.Sel.Name == "Ctx"
}

func stringLit(e ast.Expr) (string, bool) {
	lit, ok := e.(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return "", false
	}
	s, err := strconv.Unquote(lit.Value)
	return s, err == nil
}
