// Package eval implements the AST tree-walking evaluator of §4.3: the
// single control-flow engine shared by both the native parser's output
// and the legacy directive processor's re-parsed multi-line bodies
// (§9, "overlapping legacy and native surfaces").
package eval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/opal-lang/xmd/internal/ast"
	"github.com/opal-lang/xmd/internal/codec/jsoncodec"
	"github.com/opal-lang/xmd/internal/codec/yamlcodec"
	"github.com/opal-lang/xmd/internal/invariant"
	"github.com/opal-lang/xmd/internal/runner"
	"github.com/opal-lang/xmd/internal/security"
	"github.com/opal-lang/xmd/internal/value"
)

// DefaultMaxWhile is the reference while-loop iteration cap of §4.3,
// overridable per Evaluator (and, at the top level, by XMD_MAX_WHILE).
const DefaultMaxWhile = 1000

// DefaultMaxRange is the for-in range-expansion cap of §4.3.
const DefaultMaxRange = 1000

// Importer reads the raw content addressed by an `import` statement and
// processes it as XMD content against the evaluator's own store (§4.3:
// "process it as XMD content using the *current* store"). It is
// supplied by the top-level orchestrator, which alone knows how to
// dispatch between the native and legacy surfaces — wiring it this way
// keeps eval free of a dependency on the dispatcher.
type Importer func(ctx context.Context, path string) (string, error)

// Evaluator walks an ast.Program against a Store, appending rendered
// text to an OutputBuffer.
type Evaluator struct {
	Store  *value.Store
	Output *OutputBuffer

	Runner   *runner.Runner
	Security *security.Engine
	Logger   *slog.Logger
	Importer Importer

	maxWhile int
	maxRange int

	functions map[string]*ast.FunctionDecl

	breaking    bool
	continuing  bool
	returning   bool
	returnValue value.Value
}

// Option configures an Evaluator at construction.
type Option func(*Evaluator)

func WithMaxWhile(n int) Option { return func(e *Evaluator) { e.maxWhile = n } }
func WithMaxRange(n int) Option { return func(e *Evaluator) { e.maxRange = n } }
func WithRunner(r *runner.Runner) Option { return func(e *Evaluator) { e.Runner = r } }
func WithSecurity(s *security.Engine) Option { return func(e *Evaluator) { e.Security = s } }
func WithLogger(l *slog.Logger) Option { return func(e *Evaluator) { e.Logger = l } }
func WithImporter(imp Importer) Option { return func(e *Evaluator) { e.Importer = imp } }
func WithMaxOutputBytes(n int) Option {
	return func(e *Evaluator) { e.Output = NewOutputBuffer(n) }
}

// New creates an Evaluator bound to store, ready to Run a Program.
func New(store *value.Store, opts ...Option) *Evaluator {
	invariant.NotNil(store, "store")
	e := &Evaluator{
		Store:     store,
		Output:    NewOutputBuffer(0),
		Logger:    slog.Default(),
		maxWhile:  DefaultMaxWhile,
		maxRange:  DefaultMaxRange,
		functions: make(map[string]*ast.FunctionDecl),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run evaluates every top-level statement in prog in order (§5:
// "statements execute in source order"). ctx carries the optional
// evaluation deadline (§5); its expiry unwinds evaluation with a fatal
// error.
func (e *Evaluator) Run(ctx context.Context, prog *ast.Program) error {
	for _, stmt := range prog.Statements {
		if err := ctx.Err(); err != nil {
			return errf("eval: deadline exceeded: %v", err)
		}
		if _, err := e.exec(ctx, stmt); err != nil {
			return err
		}
		if e.returning || e.breaking || e.continuing {
			break
		}
	}
	return nil
}

// exec evaluates a node for its side effects (statement position),
// returning whatever value it produces (expression statements return
// their value; pure control-flow nodes return Null).
func (e *Evaluator) exec(ctx context.Context, node ast.Node) (value.Value, error) {
	switch n := node.(type) {
	case *ast.FunctionDecl:
		e.functions[n.Name] = n
		return value.Null(), nil
	case *ast.Break:
		e.breaking = true
		return value.Null(), nil
	case *ast.Continue:
		e.continuing = true
		return value.Null(), nil
	case *ast.Return:
		e.returning = true
		if n.Value != nil {
			v, err := e.eval(ctx, n.Value)
			if err != nil {
				return value.Null(), err
			}
			e.returnValue = v
		} else {
			e.returnValue = value.Null()
		}
		return value.Null(), nil
	case *ast.Conditional:
		return e.execConditional(ctx, n)
	case *ast.Loop:
		return e.execLoop(ctx, n)
	case *ast.Import:
		return e.execImport(ctx, n)
	default:
		return e.eval(ctx, node)
	}
}

func (e *Evaluator) execConditional(ctx context.Context, n *ast.Conditional) (value.Value, error) {
	cond, err := e.eval(ctx, n.Cond)
	if err != nil {
		return value.Null(), err
	}
	branch := n.Then
	if !cond.Truthy() {
		branch = n.Else
	}
	for _, stmt := range branch {
		if _, err := e.exec(ctx, stmt); err != nil {
			return value.Null(), err
		}
		if e.returning || e.breaking || e.continuing {
			break
		}
	}
	return value.Null(), nil
}

func (e *Evaluator) execLoop(ctx context.Context, n *ast.Loop) (value.Value, error) {
	if n.Kind == ast.LoopWhile {
		return e.execWhile(ctx, n)
	}
	return e.execForIn(ctx, n)
}

func (e *Evaluator) execWhile(ctx context.Context, n *ast.Loop) (value.Value, error) {
	iterations := 0
	for {
		cond, err := e.eval(ctx, n.Cond)
		if err != nil {
			return value.Null(), err
		}
		if !cond.Truthy() {
			return value.Null(), nil
		}
		iterations++
		if iterations > e.maxWhile {
			return value.Null(), errf("eval: while loop exceeded %d iteration cap", e.maxWhile)
		}
		if err := ctx.Err(); err != nil {
			return value.Null(), errf("eval: deadline exceeded in while loop: %v", err)
		}
		if err := e.runBody(ctx, n.Body); err != nil {
			return value.Null(), err
		}
		if e.returning {
			return value.Null(), nil
		}
		if e.breaking {
			e.breaking = false
			return value.Null(), nil
		}
		if e.continuing {
			e.continuing = false
		}
	}
}

func (e *Evaluator) execForIn(ctx context.Context, n *ast.Loop) (value.Value, error) {
	items, err := e.iterableItems(ctx, n.Iterable)
	if err != nil {
		return value.Null(), err
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return value.Null(), errf("eval: deadline exceeded in for loop: %v", err)
		}
		snap := e.Store.Snapshot(n.VarName)
		e.Store.Set(n.VarName, item)
		bodyErr := e.runBody(ctx, n.Body)
		e.Store.Restore(snap, n.VarName)
		if bodyErr != nil {
			return value.Null(), bodyErr
		}
		if e.returning {
			break
		}
		if e.breaking {
			e.breaking = false
			break
		}
		if e.continuing {
			e.continuing = false
		}
	}
	e.Store.Remove(n.VarName)
	return value.Null(), nil
}

// iterableItems resolves a for-in iterable expression to a concrete
// item list: a Range expands to an integer sequence (§4.3), an Array
// iterates its elements, an Object iterates its values in insertion
// order (extension beyond the native grammar's explicit cases, kept
// symmetric with the legacy processor's object-iteration behavior).
func (e *Evaluator) iterableItems(ctx context.Context, iterable ast.Node) ([]value.Value, error) {
	if rng, ok := iterable.(*ast.RangeExpr); ok {
		return e.expandRange(ctx, rng)
	}
	v, err := e.eval(ctx, iterable)
	if err != nil {
		return nil, err
	}
	switch v.Kind() {
	case value.KindArray:
		items := make([]value.Value, v.ArrayLen())
		copy(items, v.ArrayItems())
		return items, nil
	case value.KindObject:
		keys := v.ObjectKeys()
		items := make([]value.Value, 0, len(keys))
		for _, k := range keys {
			val, _ := v.ObjectGet(k)
			items = append(items, val)
		}
		return items, nil
	default:
		return nil, errf("eval: for-in iterable must be an array, object, or range, got %s", v.Kind())
	}
}

func (e *Evaluator) expandRange(ctx context.Context, rng *ast.RangeExpr) ([]value.Value, error) {
	from, err := e.eval(ctx, rng.From)
	if err != nil {
		return nil, err
	}
	to, err := e.eval(ctx, rng.To)
	if err != nil {
		return nil, err
	}
	a := int(from.ToNumber())
	b := int(to.ToNumber())
	step := 1
	if b < a {
		step = -1
	}
	size := (b-a)*step + 1
	if size > e.maxRange {
		return nil, errf("eval: range of size %d exceeds %d item cap", size, e.maxRange)
	}
	items := make([]value.Value, 0, size)
	for i := a; ; i += step {
		items = append(items, value.Number(float64(i)))
		if i == b {
			break
		}
	}
	return items, nil
}

// runBody executes a statement list that shares this Evaluator's
// control-flow flags (break/continue/return propagate to the caller).
func (e *Evaluator) runBody(ctx context.Context, body []ast.Node) error {
	for _, stmt := range body {
		if _, err := e.exec(ctx, stmt); err != nil {
			return err
		}
		if e.returning || e.breaking || e.continuing {
			break
		}
	}
	return nil
}

func (e *Evaluator) execImport(ctx context.Context, n *ast.Import) (value.Value, error) {
	pathVal, err := e.eval(ctx, n.Path)
	if err != nil {
		return value.Null(), err
	}
	path := pathVal.ToString()
	if e.Importer == nil {
		return value.Null(), errf("eval: import of %q requested but no importer is configured", path)
	}
	rendered, err := e.Importer(ctx, path)
	if err != nil {
		return value.Null(), errf("eval: import %q failed: %v", path, err)
	}
	if err := e.Output.WriteString(rendered); err != nil {
		return value.Null(), err
	}
	return value.Null(), nil
}

// eval evaluates node as an expression, producing a Value.
func (e *Evaluator) eval(ctx context.Context, node ast.Node) (value.Value, error) {
	switch n := node.(type) {
	case *ast.Literal:
		return literalValue(n), nil
	case *ast.ArrayLiteral:
		items := make([]value.Value, len(n.Elements))
		for i, el := range n.Elements {
			v, err := e.eval(ctx, el)
			if err != nil {
				return value.Null(), err
			}
			items[i] = v
		}
		return value.NewArray(items...), nil
	case *ast.ObjectLiteral:
		obj := value.NewObject()
		for _, entry := range n.Entries {
			v, err := e.eval(ctx, entry.Value)
			if err != nil {
				return value.Null(), err
			}
			_ = obj.ObjectSet(entry.Key, v)
		}
		return obj, nil
	case *ast.VariableRef:
		v, _ := e.Store.Get(n.Name)
		return v, nil
	case *ast.ArrayAccess:
		return e.evalArrayAccess(ctx, n)
	case *ast.ObjectAccess:
		return e.evalObjectAccess(ctx, n)
	case *ast.BinaryOp:
		return e.evalBinaryOp(ctx, n)
	case *ast.UnaryOp:
		return e.evalUnaryOp(ctx, n)
	case *ast.Assignment:
		return e.evalAssignment(ctx, n)
	case *ast.RangeExpr:
		return value.Null(), errf("eval: range expression is only valid in a for-in iterable position")
	case *ast.FunctionCall:
		return e.evalCall(ctx, n)
	case *ast.Conditional, *ast.Loop, *ast.Import, *ast.FunctionDecl, *ast.Break, *ast.Continue, *ast.Return:
		return e.exec(ctx, node)
	default:
		return value.Null(), errf("eval: unhandled node type %T", node)
	}
}

func literalValue(n *ast.Literal) value.Value {
	switch n.Kind {
	case ast.LitString:
		return value.String(n.Str)
	case ast.LitNumber:
		return value.Number(n.Num)
	case ast.LitBool:
		return value.Bool(n.Bool)
	default:
		return value.Null()
	}
}

// evalArrayAccess coerces the index to an integer via to-number + floor
// and treats out-of-range access as Null, not fatal (§4.3).
func (e *Evaluator) evalArrayAccess(ctx context.Context, n *ast.ArrayAccess) (value.Value, error) {
	arr, err := e.eval(ctx, n.Array)
	if err != nil {
		return value.Null(), err
	}
	idxVal, err := e.eval(ctx, n.Index)
	if err != nil {
		return value.Null(), err
	}
	idx := int(math.Floor(idxVal.ToNumber()))
	v, _ := arr.ArrayGet(idx)
	return v, nil
}

// evalObjectAccess: missing key yields Null, not fatal (§4.3).
func (e *Evaluator) evalObjectAccess(ctx context.Context, n *ast.ObjectAccess) (value.Value, error) {
	obj, err := e.eval(ctx, n.Object)
	if err != nil {
		return value.Null(), err
	}
	v, _ := obj.ObjectGet(n.Key)
	return v, nil
}

func (e *Evaluator) evalUnaryOp(ctx context.Context, n *ast.UnaryOp) (value.Value, error) {
	v, err := e.eval(ctx, n.Operand)
	if err != nil {
		return value.Null(), err
	}
	switch n.Op {
	case ast.OpNot:
		return value.Bool(!v.Truthy()), nil
	case ast.OpNeg:
		return value.Number(-v.ToNumber()), nil
	default:
		return value.Null(), errf("eval: unknown unary operator")
	}
}

// evalBinaryOp implements §3's operator table: '+' string-coerces if
// either operand is a string, other arithmetic is numeric-only
// (IEEE-754 division by zero is non-fatal — Go's float64 division
// already yields ±Inf/NaN), and && / || short-circuit, returning the
// last-evaluated operand converted to bool.
func (e *Evaluator) evalBinaryOp(ctx context.Context, n *ast.BinaryOp) (value.Value, error) {
	if n.Op == ast.OpAnd || n.Op == ast.OpOr {
		left, err := e.eval(ctx, n.Left)
		if err != nil {
			return value.Null(), err
		}
		if n.Op == ast.OpAnd && !left.Truthy() {
			return value.Bool(false), nil
		}
		if n.Op == ast.OpOr && left.Truthy() {
			return value.Bool(true), nil
		}
		right, err := e.eval(ctx, n.Right)
		if err != nil {
			return value.Null(), err
		}
		return value.Bool(right.Truthy()), nil
	}

	left, err := e.eval(ctx, n.Left)
	if err != nil {
		return value.Null(), err
	}
	right, err := e.eval(ctx, n.Right)
	if err != nil {
		return value.Null(), err
	}

	switch n.Op {
	case ast.OpAdd:
		if left.IsString() || right.IsString() {
			return value.String(left.ToString() + right.ToString()), nil
		}
		return value.Number(left.ToNumber() + right.ToNumber()), nil
	case ast.OpSub:
		return value.Number(left.ToNumber() - right.ToNumber()), nil
	case ast.OpMul:
		return value.Number(left.ToNumber() * right.ToNumber()), nil
	case ast.OpDiv:
		return value.Number(left.ToNumber() / right.ToNumber()), nil
	case ast.OpEq:
		return value.Bool(left.Equal(right)), nil
	case ast.OpNeq:
		return value.Bool(!left.Equal(right)), nil
	case ast.OpLt:
		return value.Bool(left.ToNumber() < right.ToNumber()), nil
	case ast.OpLte:
		return value.Bool(left.ToNumber() <= right.ToNumber()), nil
	case ast.OpGt:
		return value.Bool(left.ToNumber() > right.ToNumber()), nil
	case ast.OpGte:
		return value.Bool(left.ToNumber() >= right.ToNumber()), nil
	default:
		return value.Null(), errf("eval: unknown binary operator")
	}
}

// evalAssignment: '+=' reads the current value (Null if absent),
// converts both sides per '+', and stores the result (§4.3).
func (e *Evaluator) evalAssignment(ctx context.Context, n *ast.Assignment) (value.Value, error) {
	rhs, err := e.eval(ctx, n.Value)
	if err != nil {
		return value.Null(), err
	}
	if n.Op == ast.AssignSet {
		e.Store.Set(n.Name, rhs)
		return rhs, nil
	}
	current, _ := e.Store.Get(n.Name)
	var result value.Value
	if current.IsString() || rhs.IsString() {
		result = value.String(current.ToString() + rhs.ToString())
	} else {
		result = value.Number(current.ToNumber() + rhs.ToNumber())
	}
	e.Store.Set(n.Name, result)
	return result, nil
}

func (e *Evaluator) evalArgs(ctx context.Context, args []ast.Node) ([]value.Value, error) {
	out := make([]value.Value, len(args))
	for i, a := range args {
		v, err := e.eval(ctx, a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// evalCall dispatches print/cmd/json.*/yaml.* and user-defined function
// calls (§4.3).
func (e *Evaluator) evalCall(ctx context.Context, n *ast.FunctionCall) (value.Value, error) {
	switch n.Name {
	case "print":
		args, err := e.evalArgs(ctx, n.Args)
		if err != nil {
			return value.Null(), err
		}
		var s string
		if len(args) > 0 {
			s = args[0].ToString()
		}
		if err := e.Output.WriteString(s); err != nil {
			return value.Null(), err
		}
		return value.Null(), nil
	case "cmd":
		return e.evalCmd(ctx, n)
	case "json.stringify":
		args, err := e.evalArgs(ctx, n.Args)
		if err != nil {
			return value.Null(), err
		}
		if len(args) == 0 {
			return value.Null(), errf("eval: json.stringify requires one argument")
		}
		return value.String(jsoncodec.Stringify(args[0], false)), nil
	case "json.parse":
		args, err := e.evalArgs(ctx, n.Args)
		if err != nil {
			return value.Null(), err
		}
		if len(args) == 0 {
			return value.Null(), errf("eval: json.parse requires one argument")
		}
		v, err := jsoncodec.Parse(args[0].ToString())
		if err != nil {
			return value.Null(), errf("eval: json.parse: %v", err)
		}
		return v, nil
	case "yaml.stringify":
		args, err := e.evalArgs(ctx, n.Args)
		if err != nil {
			return value.Null(), err
		}
		if len(args) == 0 {
			return value.Null(), errf("eval: yaml.stringify requires one argument")
		}
		return value.String(yamlcodec.Stringify(args[0])), nil
	case "yaml.parse":
		args, err := e.evalArgs(ctx, n.Args)
		if err != nil {
			return value.Null(), err
		}
		if len(args) == 0 {
			return value.Null(), errf("eval: yaml.parse requires one argument")
		}
		v, err := yamlcodec.Parse(args[0].ToString())
		if err != nil {
			return value.Null(), errf("eval: yaml.parse: %v", err)
		}
		return v, nil
	default:
		if fn, ok := e.functions[n.Name]; ok {
			return e.callFunction(ctx, fn, n.Args)
		}
		return value.Null(), errf("eval: unknown function %q", n.Name)
	}
}

// evalCmd invokes the Command Runner and sanitizes its stdout before
// appending it to the output buffer, consistent with the legacy
// processor's `exec` handling (§4.4) even though §4.3's native grammar
// text doesn't spell out sanitization for `cmd()` explicitly.
func (e *Evaluator) evalCmd(ctx context.Context, n *ast.FunctionCall) (value.Value, error) {
	args, err := e.evalArgs(ctx, n.Args)
	if err != nil {
		return value.Null(), err
	}
	if len(args) == 0 {
		return value.Null(), errf("eval: cmd() requires one argument")
	}
	cmdLine := args[0].ToString()
	if e.Runner == nil {
		return value.Null(), errf("eval: cmd(%q) requested but no command runner is configured", cmdLine)
	}
	res, err := e.Runner.Run(ctx, cmdLine, "")
	if err != nil {
		var runErr *runner.RunError
		if errors.As(err, &runErr) && runErr.Refused {
			return value.Null(), &SecurityError{Message: fmt.Sprintf("eval: cmd(%q): %v", cmdLine, err)}
		}
		return value.Null(), errf("eval: cmd(%q): %v", cmdLine, err)
	}
	sanitized := security.SanitizeCommandOutput(res.Stdout)
	if err := e.Output.WriteString(sanitized); err != nil {
		return value.Null(), err
	}
	return value.String(sanitized), nil
}

// callFunction invokes a user-defined function. Params are bound over a
// full store snapshot so the call sees the caller's variables (simple
// dynamic scoping) but leaves no trace in the caller's store once it
// returns — the same isolation discipline as a for-in loop iteration,
// just over the whole store rather than one excluded key
// (see DESIGN.md, AST Evaluator).
func (e *Evaluator) callFunction(ctx context.Context, fn *ast.FunctionDecl, argExprs []ast.Node) (value.Value, error) {
	args, err := e.evalArgs(ctx, argExprs)
	if err != nil {
		return value.Null(), err
	}
	snap := e.Store.Snapshot("")
	for i, param := range fn.Params {
		if i < len(args) {
			e.Store.Set(param, args[i])
		} else {
			e.Store.Set(param, value.Null())
		}
	}

	savedReturning, savedReturnValue := e.returning, e.returnValue
	e.returning = false
	e.returnValue = value.Null()

	bodyErr := e.runBody(ctx, fn.Body)
	result := e.returnValue

	e.returning = savedReturning
	e.returnValue = savedReturnValue
	e.Store.Restore(snap, "")

	if bodyErr != nil {
		return value.Null(), bodyErr
	}
	return result, nil
}
