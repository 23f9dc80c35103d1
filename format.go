/*
Package toolbox – schema formatter.

Formatting turns a stored value into its logical shape in two steps:

 1. transformed: the value validated against the schema, stored names
    mapped back to logical names and transformers decoded. Hidden
    attributes are still present.
 2. formatted: the transformed value with hidden attributes removed.

The run is a small state machine (Formatter.Next) so callers can stop after
the first step, for example to inspect hidden attributes.
*/
package toolbox

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
)

// FormatOptions control a formatting run.
type FormatOptions struct {
	// Attributes restricts the output to these logical paths, e.g.
	// "name" or "address.city". Unselected attributes are neither
	// validated nor returned. An empty list selects everything.
	Attributes []string
	// NoTransform reads logical names and skips transformers. Values are
	// still validated.
	NoTransform bool
	// Path is prepended to attribute paths in errors.
	Path string
}

type formatStep uint8

const (
	stepStart formatStep = iota
	stepTransformed
	stepDone
)

// finishFunc completes the second formatting step for a subtree.
type finishFunc func() (any, error)

func finished(v any) finishFunc {
	return func() (any, error) { return v, nil }
}

type formatState struct {
	path      string
	transform bool
}

func (st formatState) at(path string) formatState {
	st.path = path
	return st
}

// Formatter runs one value through a schema.
type Formatter struct {
	schema *Schema
	value  any
	opts   FormatOptions
	step   formatStep
	finish finishFunc
}

// NewFormatter prepares a formatting run. Nothing is evaluated until Next.
func NewFormatter(schema *Schema, value any, opts FormatOptions) *Formatter {
	return &Formatter{schema: schema, value: value, opts: opts}
}

// Next advances the run by one step. The first call returns the transformed
// value, the second the formatted value with done set. With NoTransform the
// first call already returns the formatted value. An error ends the run.
func (f *Formatter) Next() (value any, done bool, err error) {
	switch f.step {
	case stepStart:
		sel, err := newSelection(f.opts.Attributes)
		if err != nil {
			f.step = stepDone
			return nil, true, err
		}
		st := formatState{path: f.opts.Path, transform: !f.opts.NoTransform}
		transformed, finish, err := formatNode(f.schema, f.value, sel, st)
		if err != nil {
			f.step = stepDone
			return nil, true, err
		}
		if f.opts.NoTransform {
			f.step = stepDone
			v, err := finish()
			return v, true, err
		}
		f.finish = finish
		f.step = stepTransformed
		return transformed, false, nil

	case stepTransformed:
		f.step = stepDone
		finish := f.finish
		f.finish = nil
		v, err := finish()
		return v, true, err
	}
	return nil, true, nil
}

// Format drives a Formatter to completion.
func Format(schema *Schema, value any, opts FormatOptions) (any, error) {
	f := NewFormatter(schema, value, opts)
	for {
		v, done, err := f.Next()
		if err != nil {
			return nil, err
		}
		if done {
			return v, nil
		}
	}
}

func formatNode(s *Schema, value any, sel *selection, st formatState) (any, finishFunc, error) {
	if value == nil {
		if !s.Optional {
			return nil, nil, missingAttribute(st.path)
		}
		return nil, finished(nil), nil
	}

	switch s.Type {
	case KindString, KindNumber, KindBoolean, KindBinary:
		v, err := formatPrimitive(s, value, st)
		if err != nil {
			return nil, nil, err
		}
		return v, finished(v), nil

	case KindAny:
		v := value
		if st.transform && s.Transform != nil {
			decoded, err := s.Transform.Decode(v)
			if err != nil {
				return nil, nil, transformFailed(st.path, err)
			}
			v = decoded
		}
		return v, finished(v), nil

	case KindList:
		return formatList(s, value, sel, st)

	case KindSet:
		return formatSet(s, value, st)

	case KindMap:
		return formatMap(s, value, sel, st)

	case KindRecord:
		return formatRecord(s, value, sel, st)

	case KindAnyOf:
		var firstErr error
		for _, variant := range s.Variants {
			t, finish, err := formatNode(variant, value, sel, st)
			if err == nil {
				return t, finish, nil
			}
			if firstErr == nil {
				firstErr = err
			}
		}
		return nil, nil, NewError(CodeInvalidAttribute,
			fmt.Sprintf("Invalid attribute detected while formatting: '%s'. Should match one of the schema variants.", st.path),
			WithPath(st.path), WithCause(firstErr))
	}
	return nil, nil, NewError(CodeInvalidSchema, fmt.Sprintf("Unknown schema type %q at path: '%s'.", s.Type, st.path), WithPath(st.path))
}

func formatPrimitive(s *Schema, value any, st formatState) (any, error) {
	if !matchesKind(s.Type, value) {
		return nil, invalidAttribute(st.path, s.Type, value)
	}
	v := value
	if st.transform && s.Transform != nil {
		decoded, err := s.Transform.Decode(v)
		if err != nil {
			return nil, transformFailed(st.path, err)
		}
		v = decoded
	}
	if len(s.Enum) > 0 && !inEnum(s.Enum, v) {
		return nil, NewError(CodeInvalidAttribute,
			fmt.Sprintf("Invalid attribute detected while formatting: '%s'. Should be one of: %v.", st.path, s.Enum),
			WithPath(st.path))
	}
	return v, nil
}

func formatList(s *Schema, value any, sel *selection, st formatState) (any, finishFunc, error) {
	elems, ok := toSlice(value)
	if !ok {
		return nil, nil, invalidAttribute(st.path, KindList, value)
	}
	// DynamoDB compacts projected list elements, so any index selector
	// selects every returned element.
	elemSel, ok := sel.elements()
	if !ok {
		return []any{}, finished([]any{}), nil
	}
	transformed := make([]any, len(elems))
	finishes := make([]finishFunc, len(elems))
	for i, e := range elems {
		t, finish, err := formatNode(s.Elements, e, elemSel, st.at(joinIndex(st.path, i)))
		if err != nil {
			return nil, nil, err
		}
		transformed[i] = t
		finishes[i] = finish
	}
	return transformed, func() (any, error) {
		out := make([]any, len(finishes))
		for i, finish := range finishes {
			v, err := finish()
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}, nil
}

func formatSet(s *Schema, value any, st formatState) (any, finishFunc, error) {
	elems, ok := toSlice(value)
	if !ok {
		return nil, nil, invalidAttribute(st.path, KindSet, value)
	}
	out := make([]any, len(elems))
	for i, e := range elems {
		v, err := formatPrimitive(s.Elements, e, st.at(joinIndex(st.path, i)))
		if err != nil {
			return nil, nil, err
		}
		out[i] = v
	}
	return out, finished(out), nil
}

type formattedChild struct {
	name   string
	hidden bool
	finish finishFunc
}

func formatMap(s *Schema, value any, sel *selection, st formatState) (any, finishFunc, error) {
	raw, ok := value.(map[string]any)
	if !ok {
		return nil, nil, invalidAttribute(st.path, KindMap, value)
	}
	transformed := make(map[string]any, len(s.Attributes))
	children := make([]formattedChild, 0, len(s.Attributes))
	for _, name := range sortedKeys(s.Attributes) {
		attr := s.Attributes[name]
		childSel, ok := sel.child(pathSegment{name: name})
		if !ok {
			continue
		}
		stored := name
		if st.transform {
			stored = attr.physicalName(name)
		}
		t, finish, err := formatNode(attr, raw[stored], childSel, st.at(joinName(st.path, name)))
		if err != nil {
			return nil, nil, err
		}
		if t != nil {
			transformed[name] = t
		}
		children = append(children, formattedChild{name: name, hidden: attr.Hidden, finish: finish})
	}
	return transformed, finishChildren(children), nil
}

func formatRecord(s *Schema, value any, sel *selection, st formatState) (any, finishFunc, error) {
	raw, ok := value.(map[string]any)
	if !ok {
		return nil, nil, invalidAttribute(st.path, KindRecord, value)
	}
	transformed := make(map[string]any, len(raw))
	children := make([]formattedChild, 0, len(raw))
	for _, storedKey := range sortedKeys(raw) {
		k, err := formatPrimitive(s.Keys, storedKey, st.at(joinName(st.path, storedKey)))
		if err != nil {
			return nil, nil, err
		}
		key, ok := k.(string)
		if !ok {
			return nil, nil, invalidAttribute(joinName(st.path, storedKey), KindString, k)
		}
		childSel, ok := sel.child(pathSegment{name: key})
		if !ok {
			continue
		}
		t, finish, err := formatNode(s.Values, raw[storedKey], childSel, st.at(joinName(st.path, key)))
		if err != nil {
			return nil, nil, err
		}
		if t != nil {
			transformed[key] = t
		}
		children = append(children, formattedChild{name: key, hidden: s.Values.Hidden, finish: finish})
	}
	return transformed, finishChildren(children), nil
}

func finishChildren(children []formattedChild) finishFunc {
	return func() (any, error) {
		out := make(map[string]any, len(children))
		for _, c := range children {
			if c.hidden {
				continue
			}
			v, err := c.finish()
			if err != nil {
				return nil, err
			}
			if v != nil {
				out[c.name] = v
			}
		}
		return out, nil
	}
}

// elements narrows a selection to list elements.
func (sel *selection) elements() (*selection, bool) {
	if sel == nil {
		return nil, true
	}
	var rest [][]pathSegment
	for _, p := range sel.paths {
		if !p[0].isIndex {
			continue
		}
		if len(p) == 1 {
			return nil, true
		}
		rest = append(rest, p[1:])
	}
	if len(rest) == 0 {
		return nil, false
	}
	return &selection{paths: rest}, true
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func missingAttribute(path string) error {
	return NewError(CodeMissingAttribute,
		fmt.Sprintf("Missing required attribute for formatting: '%s'.", path), WithPath(path))
}

func invalidAttribute(path string, kind Kind, value any) error {
	return NewError(CodeInvalidAttribute,
		fmt.Sprintf("Invalid attribute detected while formatting: '%s'. Should be a %s.", path, kind),
		WithPath(path), WithContext(map[string]any{"received": fmt.Sprintf("%T", value)}))
}

func transformFailed(path string, err error) error {
	return NewError(CodeInvalidAttribute,
		fmt.Sprintf("Unable to transform attribute: '%s'.", path), WithPath(path), WithCause(err))
}

func matchesKind(kind Kind, v any) bool {
	switch kind {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindBoolean:
		_, ok := v.(bool)
		return ok
	case KindBinary:
		_, ok := v.([]byte)
		return ok
	case KindNumber:
		return isNumber(v)
	}
	return false
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, attributevalue.Number:
		return true
	}
	return false
}

func toFloat(v any) float64 {
	if n, ok := v.(attributevalue.Number); ok {
		f, _ := n.Float64()
		return f
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return 0
}

// valuesEqual compares primitive values; numbers compare by value.
func valuesEqual(a, b any) bool {
	if isNumber(a) && isNumber(b) {
		return toFloat(a) == toFloat(b)
	}
	if ab, ok := a.([]byte); ok {
		bb, ok := b.([]byte)
		return ok && bytes.Equal(ab, bb)
	}
	if _, ok := b.([]byte); ok {
		return false
	}
	return a == b
}

func inEnum(enum []any, v any) bool {
	for _, e := range enum {
		if valuesEqual(e, v) {
			return true
		}
	}
	return false
}

// toSlice accepts any slice type; attributevalue decodes sets to typed slices.
func toSlice(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
