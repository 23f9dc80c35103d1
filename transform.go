package toolbox

import (
	"fmt"
	"strings"
)

// Transformer converts an attribute between its logical and stored form.
// Encode runs on writes, Decode when formatting stored records.
type Transformer interface {
	Encode(value any) (any, error)
	Decode(value any) (any, error)
}

// TransformFuncs adapts a pair of functions to a Transformer.
// A nil function leaves the value unchanged.
type TransformFuncs struct {
	EncodeFn func(any) (any, error)
	DecodeFn func(any) (any, error)
}

func (t TransformFuncs) Encode(v any) (any, error) {
	if t.EncodeFn == nil {
		return v, nil
	}
	return t.EncodeFn(v)
}

func (t TransformFuncs) Decode(v any) (any, error) {
	if t.DecodeFn == nil {
		return v, nil
	}
	return t.DecodeFn(v)
}

type prefixTransformer struct {
	prefix string
}

// Prefix stores string values as "<prefix><delimiter><value>". The delimiter
// defaults to "#".
func Prefix(prefix string, delimiter ...string) Transformer {
	d := "#"
	if len(delimiter) > 0 {
		d = delimiter[0]
	}
	return prefixTransformer{prefix: prefix + d}
}

func (p prefixTransformer) Encode(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, NewError(CodeInvalidTransformInput, fmt.Sprintf("Prefix transformer expects a string, got %T.", v))
	}
	return p.prefix + s, nil
}

// Decode strips the prefix. Values written without it pass through.
func (p prefixTransformer) Decode(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, NewError(CodeInvalidTransformInput, fmt.Sprintf("Prefix transformer expects a string, got %T.", v))
	}
	return strings.TrimPrefix(s, p.prefix), nil
}
