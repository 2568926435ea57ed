package rules

import (
	"fmt"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/sweeney/asterisk-callhook/internal/ami"
	"github.com/sweeney/asterisk-callhook/internal/textutil"
)

// Condition is a boolean expression over an event's fields, e.g.
// `len(Exten) >= 5 && Context != 'from-internal'`. Fields whose names are
// not plain identifiers are referenced in brackets: `[Cause-txt]`.
type Condition struct {
	source string
	expr   *govaluate.EvaluableExpression
}

var conditionFunctions = map[string]govaluate.ExpressionFunction{
	"len": func(args ...interface{}) (interface{}, error) {
		s, err := stringArg("len", args)
		if err != nil {
			return nil, err
		}
		return float64(len([]rune(s))), nil
	},
	"lower": func(args ...interface{}) (interface{}, error) {
		s, err := stringArg("lower", args)
		if err != nil {
			return nil, err
		}
		return strings.ToLower(s), nil
	},
	"first_word": func(args ...interface{}) (interface{}, error) {
		s, err := stringArg("first_word", args)
		if err != nil {
			return nil, err
		}
		return textutil.FirstWord(s), nil
	},
}

func stringArg(fn string, args []interface{}) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%s: expected 1 argument, got %d", fn, len(args))
	}
	s, ok := args[0].(string)
	if !ok {
		return "", fmt.Errorf("%s: expected string argument, got %T", fn, args[0])
	}
	return s, nil
}

// CompileCondition parses a condition expression.
func CompileCondition(source string) (*Condition, error) {
	expr, err := govaluate.NewEvaluableExpressionWithFunctions(source, conditionFunctions)
	if err != nil {
		return nil, fmt.Errorf("compiling condition %q: %w", source, err)
	}
	return &Condition{source: source, expr: expr}, nil
}

// Eval reports whether the condition holds for evt. A reference to a field
// the event lacks, or any other evaluation error, is a non-match.
func (c *Condition) Eval(evt ami.Event) bool {
	params := make(map[string]interface{}, len(evt.Headers()))
	for k, v := range evt.Fields() {
		params[k] = v
	}
	result, err := c.expr.Evaluate(params)
	if err != nil {
		return false
	}
	ok, _ := result.(bool)
	return ok
}

func (c *Condition) String() string {
	return c.source
}
