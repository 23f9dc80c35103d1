/*
Package toolbox – expression assembly.

An expression collects the attribute name ("#_N") and value (":_N")
placeholders for one request together with the projection, filter,
condition, key condition and update clauses that use them.
*/
package toolbox

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Condition is a pre-built condition or filter expression.
//
// Names maps "#placeholder" to a logical attribute path ("address.city");
// when the condition applies to an entity the path is translated to stored
// names. Values maps ":placeholder" to a plain Go value.
type Condition struct {
	Expression string            `json:"expression"`
	Names      map[string]string `json:"names,omitempty"`
	Values     map[string]any    `json:"values,omitempty"`
}

type updates struct {
	set    []string
	remove []string
}

type expression struct {
	names     map[string]string
	namesMap  map[string]string
	values    map[string]any
	valuesMap map[string]string
	nindex    int
	vindex    int

	conditions []string
	filters    []string
	keys       []string
	project    []string
	projected  map[string]bool
	updates    updates
}

func newExpression() *expression {
	return &expression{
		names:     map[string]string{},
		namesMap:  map[string]string{},
		values:    map[string]any{},
		valuesMap: map[string]string{},
		projected: map[string]bool{},
	}
}

func (e *expression) addName(name string) string {
	if key, ok := e.namesMap[name]; ok {
		return key
	}
	key := fmt.Sprintf("#_%d", e.nindex)
	e.nindex++
	e.names[key] = name
	e.namesMap[name] = key
	return key
}

// addValue registers a value. Strings and booleans are shared between
// identical occurrences.
func (e *expression) addValue(value any) string {
	var dedup string
	switch v := value.(type) {
	case string:
		dedup = "S:" + v
	case bool:
		dedup = fmt.Sprintf("BOOL:%t", v)
	}
	if dedup != "" {
		if key, ok := e.valuesMap[dedup]; ok {
			return key
		}
	}
	key := fmt.Sprintf(":_%d", e.vindex)
	e.vindex++
	e.values[key] = value
	if dedup != "" {
		e.valuesMap[dedup] = key
	}
	return key
}

// target renders a stored attribute path with name placeholders.
func (e *expression) target(segs []pathSegment) string {
	var b strings.Builder
	for i, seg := range segs {
		if seg.isIndex {
			fmt.Fprintf(&b, "[%d]", seg.index)
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(e.addName(seg.name))
	}
	return b.String()
}

func (e *expression) addProjection(segs []pathSegment) {
	t := e.target(segs)
	if e.projected[t] {
		return
	}
	e.projected[t] = true
	e.project = append(e.project, t)
}

var placeholderRe = regexp.MustCompile(`[#:][A-Za-z0-9_]+`)

// condition rewrites c into the placeholders of e. Name paths are
// translated through schema when it is not nil.
func (e *expression) condition(c *Condition, schema *Schema) (string, error) {
	if c == nil || strings.TrimSpace(c.Expression) == "" {
		return "", NewError(CodeInvalidCondition, "Empty condition expression.")
	}
	var err error
	out := placeholderRe.ReplaceAllStringFunc(c.Expression, func(tok string) string {
		if err != nil {
			return tok
		}
		if tok[0] == ':' {
			v, ok := c.Values[tok]
			if !ok {
				err = NewError(CodeInvalidCondition, fmt.Sprintf("Missing value for placeholder %s.", tok),
					WithContext(map[string]any{"expression": c.Expression}))
				return tok
			}
			return e.addValue(v)
		}
		name, ok := c.Names[tok]
		if !ok {
			err = NewError(CodeInvalidCondition, fmt.Sprintf("Missing name for placeholder %s.", tok),
				WithContext(map[string]any{"expression": c.Expression}))
			return tok
		}
		if schema == nil {
			return e.addName(name)
		}
		segs, perr := parsePath(name)
		if perr == nil {
			segs, perr = schema.physicalPath(segs)
		}
		if perr != nil {
			err = perr
			return tok
		}
		return e.target(segs)
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

func and(terms []string) string {
	return join(terms, " AND ")
}

func or(terms []string) string {
	return join(terms, " OR ")
}

func join(terms []string, sep string) string {
	if len(terms) == 1 {
		return terms[0]
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = "(" + t + ")"
	}
	return strings.Join(parts, sep)
}

// ─── update clauses ──────────────────────────────────────────────────────────

func (e *expression) set(name string, value any) {
	e.updates.set = append(e.updates.set, fmt.Sprintf("%s = %s", e.addName(name), e.addValue(value)))
}

func (e *expression) setIfNotExists(name string, value any) {
	n := e.addName(name)
	e.updates.set = append(e.updates.set, fmt.Sprintf("%s = if_not_exists(%s, %s)", n, n, e.addValue(value)))
}

func (e *expression) remove(name string) {
	e.updates.remove = append(e.updates.remove, e.addName(name))
}

// ─── output ──────────────────────────────────────────────────────────────────

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

func (e *expression) attributeNames() map[string]string {
	if len(e.names) == 0 {
		return nil
	}
	return e.names
}

func (e *expression) attributeValues() (map[string]types.AttributeValue, error) {
	if len(e.values) == 0 {
		return nil, nil
	}
	return attributevalue.MarshalMap(e.values)
}

func (e *expression) projection() *string {
	return optional(strings.Join(e.project, ", "))
}

func (e *expression) filterExpression() *string {
	if len(e.filters) == 0 {
		return nil
	}
	return aws.String(and(e.filters))
}

func (e *expression) conditionExpression() *string {
	if len(e.conditions) == 0 {
		return nil
	}
	return aws.String(and(e.conditions))
}

func (e *expression) keyConditionExpression() *string {
	return optional(strings.Join(e.keys, " AND "))
}

func (e *expression) updateExpression() *string {
	var parts []string
	if len(e.updates.set) > 0 {
		parts = append(parts, "SET "+strings.Join(e.updates.set, ", "))
	}
	if len(e.updates.remove) > 0 {
		parts = append(parts, "REMOVE "+strings.Join(e.updates.remove, ", "))
	}
	return optional(strings.Join(parts, " "))
}
