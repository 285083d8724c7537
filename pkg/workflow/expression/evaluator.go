package expression

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/tombee/chatflow/pkg/errors"
)

// Env is the environment conditions are evaluated against.
type Env struct {
	Input any `expr:"input"`
}

// Evaluator compiles and evaluates conditions. Compiled programs are
// cached by source text; an Evaluator is safe for concurrent use.
type Evaluator struct {
	cache map[string]*vm.Program
	mu    sync.RWMutex
}

// New creates a new expression evaluator.
func New() *Evaluator {
	return &Evaluator{
		cache: make(map[string]*vm.Program),
	}
}

// Compile checks that expression is syntactically valid and references no
// variable other than input. Successful compilations are cached.
func (e *Evaluator) Compile(expression string) error {
	if strings.TrimSpace(expression) == "" {
		return &errors.ValidationError{
			Field:   "condition",
			Message: "condition is empty",
			Hint:    "write an expression over input, for example input.kind == 'bug'",
		}
	}
	_, err := e.compile(expression)
	return err
}

// Evaluate runs expression with input bound to the given value and returns
// its truthiness. Runtime failures, such as reading a field of a string,
// are returned as errors.
func (e *Evaluator) Evaluate(expression string, input any) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return false, &errors.ValidationError{
			Field:   "condition",
			Message: "cannot evaluate an empty condition",
		}
	}

	program, err := e.compile(expression)
	if err != nil {
		return false, err
	}

	result, err := expr.Run(program, Env{Input: input})
	if err != nil {
		return false, &errors.ValidationError{
			Field:   "condition",
			Message: fmt.Sprintf("condition evaluation failed: %s", err.Error()),
			Hint:    "check that the fields referenced exist on the previous node's output",
		}
	}
	return Truthy(result), nil
}

func (e *Evaluator) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	prog, err := expr.Compile(expression,
		expr.Env(Env{}),
		expr.Function("has", containsFunc),
		expr.Function("includes", containsFunc),
		expr.Function("length", lenFunc),
	)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:   "condition",
			Message: fmt.Sprintf("failed to compile condition: %s", err.Error()),
			Hint:    "check the expression syntax; the only variable available is input",
		}
	}

	e.mu.Lock()
	e.cache[expression] = prog
	e.mu.Unlock()

	return prog, nil
}

// ClearCache clears the compiled program cache.
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	e.cache = make(map[string]*vm.Program)
	e.mu.Unlock()
}

// CacheSize returns the number of cached programs.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

// Truthy reports the boolean value of v: nil, false, zero numbers, empty
// strings and empty slices or maps are false.
func Truthy(v any) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Ptr, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// Input selects the value bound to input: structured output when present,
// text otherwise.
func Input(text string, structured any) any {
	if structured != nil {
		return structured
	}
	return text
}
