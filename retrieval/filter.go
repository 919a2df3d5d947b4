package retrieval

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/zero-day-ai/engram/note"
)

// Filter is a compiled CEL predicate over a note's annotations.
type Filter struct {
	prg cel.Program
}

// CompileFilter compiles the expression against the note schema. An empty
// expression compiles to a nil filter that matches everything.
//
// Available variables:
//
//	content     string
//	description string
//	tags        list(string)
//	keywords    list(string)
func CompileFilter(expr string) (*Filter, error) {
	if expr == "" {
		return nil, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("content", cel.StringType),
		cel.Variable("description", cel.StringType),
		cel.Variable("tags", cel.ListType(cel.StringType)),
		cel.Variable("keywords", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: build environment: %v", ErrInvalidFilter, err)
	}

	ast, iss := env.Compile(expr)
	if iss.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%w: expression must evaluate to bool, got %s", ErrInvalidFilter, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return &Filter{prg: prg}, nil
}

// Matches evaluates the filter against one note. A nil filter matches
// everything.
func (f *Filter) Matches(n *note.Note) (bool, error) {
	if f == nil {
		return true, nil
	}

	out, _, err := f.prg.Eval(map[string]any{
		"content":     n.Content,
		"description": n.Description,
		"tags":        n.Tags,
		"keywords":    n.Keywords,
	})
	if err != nil {
		return false, fmt.Errorf("%w: evaluation failed: %v", ErrInvalidFilter, err)
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: expression produced %T, want bool", ErrInvalidFilter, out.Value())
	}
	return matched, nil
}
