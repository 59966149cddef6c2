// Package expressions extracts values from decoded provider payloads with JMESPath.
package expressions

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/jmespath/go-jmespath"
)

// Evaluator wraps JMESPath expression evaluation with a compile cache
type Evaluator struct {
	cache map[string]*jmespath.JMESPath
	mu    sync.RWMutex
}

// NewEvaluator creates a new expression evaluator
func NewEvaluator() *Evaluator {
	return &Evaluator{
		cache: make(map[string]*jmespath.JMESPath),
	}
}

// Evaluate evaluates a JMESPath expression against data
func (e *Evaluator) Evaluate(expression string, data any) (any, error) {
	compiled, err := e.getOrCompile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}

	result, err := compiled.Search(data)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", expression, err)
	}

	return result, nil
}

// String returns the expression result when it is a non-empty string.
// Whole numbers are formatted without a fractional part so numeric
// cursors survive the round trip.
func (e *Evaluator) String(expression string, data any) (string, bool) {
	result, err := e.Evaluate(expression, data)
	if err != nil || result == nil {
		return "", false
	}

	switch v := result.(type) {
	case string:
		return v, v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}

// Slice returns the expression result when it is a list
func (e *Evaluator) Slice(expression string, data any) ([]any, bool) {
	result, err := e.Evaluate(expression, data)
	if err != nil {
		return nil, false
	}
	slice, ok := result.([]any)
	return slice, ok
}

// MustCompile compiles and caches expression, panicking if it is invalid.
// Used for the fixed expressions adapters register at construction.
func (e *Evaluator) MustCompile(expression string) {
	if _, err := e.getOrCompile(expression); err != nil {
		panic(fmt.Sprintf("invalid expression %q: %v", expression, err))
	}
}

// getOrCompile retrieves a compiled expression from cache or compiles it
func (e *Evaluator) getOrCompile(expression string) (*jmespath.JMESPath, error) {
	e.mu.RLock()
	if compiled, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return compiled, nil
	}
	e.mu.RUnlock()

	compiled, err := jmespath.Compile(expression)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = compiled
	e.mu.Unlock()

	return compiled, nil
}
