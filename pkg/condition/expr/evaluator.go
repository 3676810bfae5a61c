package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-formstate/pkg/condition"
	"github.com/goliatone/go-formstate/pkg/fieldpath"
)

// Evaluator is a small, dependency-free condition evaluator.
//
// Supported syntax:
//   - truthiness: `channel`, `!channel`
//   - comparisons: `channel == ""`, `age >= 18`, `phNumbers.0.number != null`
//   - composition: `a && (b || !c)`
//
// Identifiers are field paths in any form fieldpath.Parse accepts. Compiled
// expressions are cached, so repeated evaluation only walks the values.
type Evaluator struct {
	cache sync.Map // string -> node
}

var _ condition.Evaluator = (*Evaluator)(nil)

// New returns an Evaluator with an empty cache.
func New() *Evaluator { return &Evaluator{} }

// Eval compiles (or reuses) expression and evaluates it against values. An
// empty expression is false, so an unset `disabledWhen` never disables.
func (e *Evaluator) Eval(expression string, values map[string]any) (bool, error) {
	trimmed := strings.TrimSpace(expression)
	if trimmed == "" {
		return false, nil
	}
	if cached, ok := e.cache.Load(trimmed); ok {
		return cached.(node).eval(values), nil
	}
	compiled, err := Compile(trimmed)
	if err != nil {
		return false, err
	}
	e.cache.Store(trimmed, compiled.root)
	return compiled.root.eval(values), nil
}

// Expression is a parsed condition.
type Expression struct {
	source string
	root   node
}

// Compile parses expression without evaluating it, which lets definition
// loaders reject malformed conditions up front.
func Compile(expression string) (Expression, error) {
	tokens, err := scan(expression)
	if err != nil {
		return Expression{}, err
	}
	if len(tokens) == 0 {
		return Expression{}, errors.New("condition/expr: empty expression")
	}
	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return Expression{}, err
	}
	if !p.done() {
		return Expression{}, fmt.Errorf("condition/expr: unexpected %q", p.peek().text)
	}
	return Expression{source: expression, root: root}, nil
}

// Eval evaluates a compiled expression.
func (x Expression) Eval(values map[string]any) bool {
	if x.root == nil {
		return false
	}
	return x.root.eval(values)
}

func (x Expression) String() string { return x.source }

type kind int

const (
	kIdent kind = iota
	kString
	kNumber
	kBool
	kNull
	kOp
	kNot
	kAnd
	kOr
	kOpen
	kClose
)

type token struct {
	kind kind
	text string
}

func scan(input string) ([]token, error) {
	var out []token
	for i := 0; i < len(input); {
		ch := input[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		case ch == '(':
			out = append(out, token{kOpen, "("})
			i++
		case ch == ')':
			out = append(out, token{kClose, ")"})
			i++
		case strings.HasPrefix(input[i:], "&&"):
			out = append(out, token{kAnd, "&&"})
			i += 2
		case strings.HasPrefix(input[i:], "||"):
			out = append(out, token{kOr, "||"})
			i += 2
		case strings.HasPrefix(input[i:], "=="), strings.HasPrefix(input[i:], "!="),
			strings.HasPrefix(input[i:], "<="), strings.HasPrefix(input[i:], ">="):
			out = append(out, token{kOp, input[i : i+2]})
			i += 2
		case ch == '<' || ch == '>':
			out = append(out, token{kOp, string(ch)})
			i++
		case ch == '!':
			out = append(out, token{kNot, "!"})
			i++
		case ch == '"' || ch == '\'':
			end := i + 1
			for end < len(input) && input[end] != ch {
				if input[end] == '\\' {
					end++
				}
				end++
			}
			if end >= len(input) {
				return nil, errors.New("condition/expr: unterminated string literal")
			}
			raw := input[i+1 : end]
			if ch == '\'' {
				raw = strings.ReplaceAll(raw, `"`, `\"`)
				raw = strings.ReplaceAll(raw, `\'`, `'`)
			}
			text, err := strconv.Unquote(`"` + raw + `"`)
			if err != nil {
				return nil, fmt.Errorf("condition/expr: invalid string literal: %w", err)
			}
			out = append(out, token{kString, text})
			i = end + 1
		default:
			start := i
			for i < len(input) && !strings.ContainsRune(" \t\n\r()!=<>&|\"'", rune(input[i])) {
				i++
			}
			if start == i {
				return nil, fmt.Errorf("condition/expr: unexpected %q", string(ch))
			}
			out = append(out, classify(input[start:i]))
		}
	}
	return out, nil
}

func classify(word string) token {
	switch strings.ToLower(word) {
	case "true", "false":
		return token{kBool, strings.ToLower(word)}
	case "null", "nil", "undefined":
		return token{kNull, "null"}
	}
	if _, err := strconv.ParseFloat(word, 64); err == nil {
		return token{kNumber, word}
	}
	return token{kIdent, word}
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) done() bool  { return p.pos >= len(p.tokens) }
func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) accept(k kind) (token, bool) {
	if p.done() || p.tokens[p.pos].kind != k {
		return token{}, false
	}
	t := p.tokens[p.pos]
	p.pos++
	return t, true
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.accept(kOr); !ok {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left, right}
	}
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.accept(kAnd); !ok {
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andNode{left, right}
	}
}

func (p *parser) parseUnary() (node, error) {
	if _, ok := p.accept(kNot); ok {
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{inner}, nil
	}
	if _, ok := p.accept(kOpen); ok {
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, ok := p.accept(kClose); !ok {
			return nil, errors.New("condition/expr: missing closing ')'")
		}
		return inner, nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	op, ok := p.accept(kOp)
	if !ok {
		return truthyNode{left}, nil
	}
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return compareNode{op: op.text, left: left, right: right}, nil
}

func (p *parser) parseOperand() (operand, error) {
	if p.done() {
		return operand{}, errors.New("condition/expr: unexpected end of expression")
	}
	t := p.peek()
	p.pos++
	switch t.kind {
	case kIdent:
		path, err := fieldpath.Parse(t.text)
		if err != nil {
			return operand{}, fmt.Errorf("condition/expr: %w", err)
		}
		return operand{path: path, isPath: true}, nil
	case kString:
		return operand{literal: t.text}, nil
	case kNumber:
		f, _ := strconv.ParseFloat(t.text, 64)
		return operand{literal: f}, nil
	case kBool:
		return operand{literal: t.text == "true"}, nil
	case kNull:
		return operand{literal: nil}, nil
	default:
		return operand{}, fmt.Errorf("condition/expr: expected operand, got %q", t.text)
	}
}

type node interface {
	eval(values map[string]any) bool
}

type operand struct {
	path    fieldpath.Path
	isPath  bool
	literal any
}

func (o operand) resolve(values map[string]any) any {
	if !o.isPath {
		return o.literal
	}
	v, _ := fieldpath.Get(values, o.path)
	return v
}

type orNode struct{ left, right node }

func (n orNode) eval(v map[string]any) bool { return n.left.eval(v) || n.right.eval(v) }

type andNode struct{ left, right node }

func (n andNode) eval(v map[string]any) bool { return n.left.eval(v) && n.right.eval(v) }

type notNode struct{ inner node }

func (n notNode) eval(v map[string]any) bool { return !n.inner.eval(v) }

type truthyNode struct{ operand operand }

func (n truthyNode) eval(v map[string]any) bool { return truthy(n.operand.resolve(v)) }

type compareNode struct {
	op          string
	left, right operand
}

func (n compareNode) eval(v map[string]any) bool {
	a, b := n.left.resolve(v), n.right.resolve(v)
	switch n.op {
	case "==":
		return equal(a, b)
	case "!=":
		return !equal(a, b)
	}
	c, ok := order(a, b)
	if !ok {
		return false
	}
	switch n.op {
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	default:
		return c >= 0
	}
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		// an unset field equals the empty string
		return (a == nil || a == "") && (b == nil || b == "")
	}
	if ab, ok := a.(bool); ok {
		return ab == truthy(b)
	}
	if bb, ok := b.(bool); ok {
		return bb == truthy(a)
	}
	if c, ok := order(a, b); ok {
		return c == 0
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func order(a, b any) (int, bool) {
	if at, ok := a.(time.Time); ok {
		if bt, ok := asTime(b); ok {
			return at.Compare(bt), true
		}
		return 0, false
	}
	if bt, ok := b.(time.Time); ok {
		if at, ok := asTime(a); ok {
			return at.Compare(bt), true
		}
		return 0, false
	}
	af, aok := asNumber(a)
	bf, bok := asNumber(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		for _, layout := range []string{time.RFC3339, time.DateOnly} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return strings.TrimSpace(v) != ""
	case float64:
		return v != 0
	case int:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	case time.Time:
		return !v.IsZero()
	default:
		return true
	}
}
