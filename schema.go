/*
Package toolbox – schema types.

A Schema is a tagged variant: Type selects which of the child fields are
meaningful. Schemas are plain values; once bound to an Entity they are
deep-copied and never mutated again.
*/
package toolbox

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind is the variant tag of a Schema node.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindBinary  Kind = "binary"
	KindList    Kind = "list"
	KindSet     Kind = "set"
	KindMap     Kind = "map"
	KindRecord  Kind = "record"
	KindAnyOf   Kind = "anyOf"
	KindAny     Kind = "any"
)

func (k Kind) primitive() bool {
	switch k {
	case KindString, KindNumber, KindBoolean, KindBinary:
		return true
	}
	return false
}

// Attrs holds the named children of a map schema.
type Attrs map[string]*Schema

// Schema describes one node of an item's shape.
//
// Nodes are required unless Optional is set. SavedAs renames the attribute
// in storage; the logical name is the key in the parent's Attributes.
type Schema struct {
	Type     Kind
	Optional bool
	Key      bool
	Hidden   bool
	SavedAs  string

	// Default is a value or a func() any evaluated when a put omits the attribute.
	Default any
	// Generate names an id generator used as default: "uuid", "ulid", "uid" or "uid(n)".
	Generate  string
	Enum      []any
	Transform Transformer

	Attributes Attrs     // map
	Elements   *Schema   // list, set
	Keys       *Schema   // record
	Values     *Schema   // record
	Variants   []*Schema // anyOf
}

func String() *Schema  { return &Schema{Type: KindString} }
func Number() *Schema  { return &Schema{Type: KindNumber} }
func Boolean() *Schema { return &Schema{Type: KindBoolean} }
func Binary() *Schema  { return &Schema{Type: KindBinary} }
func Any() *Schema     { return &Schema{Type: KindAny} }

func List(elements *Schema) *Schema { return &Schema{Type: KindList, Elements: elements} }
func Set(elements *Schema) *Schema  { return &Schema{Type: KindSet, Elements: elements} }
func Map(attrs Attrs) *Schema       { return &Schema{Type: KindMap, Attributes: attrs} }

func Record(keys, values *Schema) *Schema {
	return &Schema{Type: KindRecord, Keys: keys, Values: values}
}

func AnyOf(variants ...*Schema) *Schema {
	return &Schema{Type: KindAnyOf, Variants: variants}
}

func (s *Schema) with(fn func(*Schema)) *Schema {
	c := *s
	fn(&c)
	return &c
}

func (s *Schema) MarkOptional() *Schema { return s.with(func(c *Schema) { c.Optional = true }) }
func (s *Schema) MarkKey() *Schema      { return s.with(func(c *Schema) { c.Key = true }) }
func (s *Schema) MarkHidden() *Schema   { return s.with(func(c *Schema) { c.Hidden = true }) }

func (s *Schema) StoredAs(name string) *Schema {
	return s.with(func(c *Schema) { c.SavedAs = name })
}

func (s *Schema) WithDefault(v any) *Schema {
	return s.with(func(c *Schema) { c.Default = v })
}

func (s *Schema) WithGenerate(gen string) *Schema {
	return s.with(func(c *Schema) { c.Generate = gen })
}

func (s *Schema) WithEnum(values ...any) *Schema {
	return s.with(func(c *Schema) { c.Enum = values })
}

func (s *Schema) WithTransform(t Transformer) *Schema {
	return s.with(func(c *Schema) { c.Transform = t })
}

// clone returns a deep copy. Transformers and defaults are shared.
func (s *Schema) clone() *Schema {
	if s == nil {
		return nil
	}
	c := *s
	if s.Attributes != nil {
		c.Attributes = make(Attrs, len(s.Attributes))
		for name, attr := range s.Attributes {
			c.Attributes[name] = attr.clone()
		}
	}
	c.Elements = s.Elements.clone()
	c.Keys = s.Keys.clone()
	c.Values = s.Values.clone()
	if s.Variants != nil {
		c.Variants = make([]*Schema, len(s.Variants))
		for i, v := range s.Variants {
			c.Variants[i] = v.clone()
		}
	}
	if s.Enum != nil {
		c.Enum = append([]any(nil), s.Enum...)
	}
	return &c
}

// physicalName is the attribute name in storage.
func (s *Schema) physicalName(name string) string {
	if s.SavedAs != "" {
		return s.SavedAs
	}
	return name
}

// Check validates the structural invariants of the schema tree.
func (s *Schema) Check() error {
	return s.check("")
}

func (s *Schema) check(path string) error {
	if s == nil {
		return NewError(CodeInvalidSchema, fmt.Sprintf("Missing schema at path: '%s'.", path), WithPath(path))
	}
	if len(s.Enum) > 0 && !s.Type.primitive() {
		return NewError(CodeInvalidSchema, fmt.Sprintf("Enum is only supported on primitives: '%s'.", path), WithPath(path))
	}
	if s.Generate != "" {
		if _, err := generator(s.Generate); err != nil {
			return err
		}
	}
	switch s.Type {
	case KindString, KindNumber, KindBoolean, KindBinary, KindAny:
		return nil

	case KindList, KindSet:
		e := s.Elements
		if e == nil {
			return NewError(CodeInvalidElements, fmt.Sprintf("Missing elements schema: '%s'.", path), WithPath(path))
		}
		if e.Optional || e.Hidden || e.Key || e.SavedAs != "" || e.Default != nil || e.Generate != "" {
			return NewError(CodeInvalidElements,
				fmt.Sprintf("Elements of '%s' must be required, visible, unaliased and without default.", path),
				WithPath(path))
		}
		if s.Type == KindSet && e.Type != KindString && e.Type != KindNumber && e.Type != KindBinary {
			return NewError(CodeInvalidSetElements,
				fmt.Sprintf("Set elements of '%s' must be strings, numbers or binaries.", path), WithPath(path))
		}
		return e.check(path + "[n]")

	case KindMap:
		seen := map[string]string{}
		for _, name := range sortedKeys(s.Attributes) {
			attr := s.Attributes[name]
			childPath := joinName(path, name)
			if attr == nil {
				return NewError(CodeInvalidSchema, fmt.Sprintf("Missing schema at path: '%s'.", childPath), WithPath(childPath))
			}
			phys := attr.physicalName(name)
			if other, dup := seen[phys]; dup {
				return NewError(CodeDuplicateSavedAs,
					fmt.Sprintf("Attributes '%s' and '%s' are both saved as '%s'.", other, name, phys),
					WithPath(childPath))
			}
			seen[phys] = name
			if err := attr.check(childPath); err != nil {
				return err
			}
		}
		return nil

	case KindRecord:
		if s.Keys == nil || s.Keys.Type != KindString {
			return NewError(CodeInvalidRecordKeys, fmt.Sprintf("Record keys of '%s' must be strings.", path), WithPath(path))
		}
		if err := s.Keys.check(path + "{key}"); err != nil {
			return err
		}
		return s.Values.check(path + "{value}")

	case KindAnyOf:
		if len(s.Variants) == 0 {
			return NewError(CodeInvalidVariants, fmt.Sprintf("anyOf '%s' needs at least one variant.", path), WithPath(path))
		}
		for i, v := range s.Variants {
			if err := v.check(fmt.Sprintf("%s<%d>", path, i)); err != nil {
				return err
			}
		}
		return nil
	}
	return NewError(CodeInvalidSchema, fmt.Sprintf("Unknown schema type %q at path: '%s'.", s.Type, path), WithPath(path))
}

// ─── paths ───────────────────────────────────────────────────────────────────

// pathSegment is one step of an attribute path: a name or a list index.
type pathSegment struct {
	name    string
	index   int
	isIndex bool
}

func (p pathSegment) matches(o pathSegment) bool {
	if p.isIndex != o.isIndex {
		return false
	}
	if p.isIndex {
		return p.index == o.index
	}
	return p.name == o.name
}

// parsePath splits "a.b[1].c" into segments.
func parsePath(path string) ([]pathSegment, error) {
	invalid := func() error {
		return NewError(CodeInvalidPath, fmt.Sprintf("Invalid attribute path: '%s'.", path), WithPath(path))
	}
	if path == "" {
		return nil, invalid()
	}
	var segs []pathSegment
	for _, part := range strings.Split(path, ".") {
		name := part
		rest := ""
		if i := strings.IndexByte(part, '['); i >= 0 {
			name, rest = part[:i], part[i:]
		}
		if name == "" && (len(segs) == 0 || rest == "") {
			return nil, invalid()
		}
		if name != "" {
			segs = append(segs, pathSegment{name: name})
		}
		for rest != "" {
			end := strings.IndexByte(rest, ']')
			if rest[0] != '[' || end < 0 {
				return nil, invalid()
			}
			n, err := strconv.Atoi(rest[1:end])
			if err != nil || n < 0 {
				return nil, invalid()
			}
			segs = append(segs, pathSegment{index: n, isIndex: true})
			rest = rest[end+1:]
		}
	}
	return segs, nil
}

func joinPath(segs []pathSegment) string {
	var b strings.Builder
	for i, seg := range segs {
		if seg.isIndex {
			fmt.Fprintf(&b, "[%d]", seg.index)
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.name)
	}
	return b.String()
}

func joinName(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func joinIndex(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}

// physicalPath translates a logical path into storage names.
func (s *Schema) physicalPath(segs []pathSegment) ([]pathSegment, error) {
	out := make([]pathSegment, 0, len(segs))
	cur := s
	for i, seg := range segs {
		if cur == nil {
			out = append(out, seg)
			continue
		}
		switch cur.Type {
		case KindMap:
			attr, ok := cur.Attributes[seg.name]
			if seg.isIndex || !ok {
				return nil, unmatchedPath(segs)
			}
			out = append(out, pathSegment{name: attr.physicalName(seg.name)})
			cur = attr
		case KindRecord:
			if seg.isIndex {
				return nil, unmatchedPath(segs)
			}
			out = append(out, seg)
			cur = cur.Values
		case KindList:
			if !seg.isIndex {
				return nil, unmatchedPath(segs)
			}
			out = append(out, seg)
			cur = cur.Elements
		case KindAny:
			out = append(out, seg)
			cur = nil
		case KindAnyOf:
			for _, v := range cur.Variants {
				if rest, err := v.physicalPath(segs[i:]); err == nil {
					return append(out, rest...), nil
				}
			}
			return nil, unmatchedPath(segs)
		default:
			return nil, unmatchedPath(segs)
		}
	}
	return out, nil
}

func unmatchedPath(segs []pathSegment) error {
	path := joinPath(segs)
	return NewError(CodeInvalidPath,
		fmt.Sprintf("Unable to match expression attribute path with schema: '%s'.", path), WithPath(path))
}

// ─── selection ───────────────────────────────────────────────────────────────

// selection is the set of projected paths remaining below a node.
// A nil *selection selects everything.
type selection struct {
	paths [][]pathSegment
}

func newSelection(attributes []string) (*selection, error) {
	if len(attributes) == 0 {
		return nil, nil
	}
	sel := &selection{}
	for _, a := range attributes {
		segs, err := parsePath(a)
		if err != nil {
			return nil, err
		}
		sel.paths = append(sel.paths, segs)
	}
	return sel, nil
}

// child narrows the selection to one child. ok is false when nothing
// below the child is selected.
func (sel *selection) child(seg pathSegment) (*selection, bool) {
	if sel == nil {
		return nil, true
	}
	var rest [][]pathSegment
	for _, p := range sel.paths {
		if !p[0].matches(seg) {
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

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
