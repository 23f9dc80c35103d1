package toolbox

import (
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// AllPages lifts the page bound of a scan or query.
const AllPages = math.MaxInt32

// TaggedItem is a formatted item with the name of the entity it matched.
type TaggedItem struct {
	Entity string `json:"entity"`
	Item   Item   `json:"item"`
}

// readPlan is the projection and filter shared by scans and queries over
// several entities.
type readPlan struct {
	table            *Table
	entities         []*Entity
	attributes       []string
	filter           *Condition
	filters          map[string]*Condition
	entityAttrFilter bool
}

// apply writes the projection and filter of p into x.
func (p readPlan) apply(x *expression) error {
	if err := p.project(x); err != nil {
		return err
	}
	return p.where(x)
}

func (p readPlan) project(x *expression) error {
	if p.attributes == nil {
		return nil
	}
	if len(p.entities) == 0 {
		for _, a := range p.attributes {
			segs, err := parsePath(a)
			if err != nil {
				return err
			}
			x.addProjection(segs)
		}
		return nil
	}
	for _, a := range p.attributes {
		segs, err := parsePath(a)
		if err != nil {
			return err
		}
		var known bool
		var lastErr error
		for _, e := range p.entities {
			phys, err := e.schema.physicalPath(segs)
			if err != nil {
				lastErr = err
				continue
			}
			known = true
			x.addProjection(phys)
		}
		if !known {
			return lastErr
		}
	}
	// The resolver needs the discriminator even when it is not selected.
	for _, e := range p.entities {
		if e.entityAttr != "" {
			x.addProjection([]pathSegment{{name: p.table.entityAttr}})
			break
		}
	}
	return nil
}

// where builds OR_e(discriminator = e [AND filters[e]]) [AND filter].
func (p readPlan) where(x *expression) error {
	byName := make(map[string]*Entity, len(p.entities))
	for _, e := range p.entities {
		byName[e.name] = e
	}
	for _, name := range sortedKeys(p.filters) {
		if _, ok := byName[name]; !ok {
			return NewError(CodeInvalidOptions, fmt.Sprintf("Filter supplied for unknown entity %q.", name),
				WithContext(map[string]any{"entity": name}))
		}
	}

	var terms []string
	vacuous := false
	for _, e := range p.entities {
		var parts []string
		if p.entityAttrFilter && e.entityAttr != "" {
			parts = append(parts, fmt.Sprintf("%s = %s", x.addName(p.table.entityAttr), x.addValue(e.name)))
		}
		if c := p.filters[e.name]; c != nil {
			expr, err := x.condition(c, e.schema)
			if err != nil {
				return err
			}
			parts = append(parts, expr)
		}
		if len(parts) == 0 {
			vacuous = true
			continue
		}
		terms = append(terms, and(parts))
	}
	if !vacuous && len(terms) > 0 {
		x.filters = append(x.filters, or(terms))
	}

	if p.filter != nil {
		var schema *Schema
		if len(p.entities) == 1 {
			schema = p.entities[0].schema
		}
		expr, err := x.condition(p.filter, schema)
		if err != nil {
			return err
		}
		x.filters = append(x.filters, expr)
	}
	return nil
}

// readResult accumulates the pages of a scan or query.
type readResult struct {
	items            []Item
	tagged           []TaggedItem
	count            int32
	scannedCount     int32
	lastEvaluatedKey map[string]types.AttributeValue
	capacity         []types.ConsumedCapacity
}

// addPage formats the raw items of one page. Without entities the raw items
// are returned as they are stored.
func (r *readResult) addPage(resolver *Resolver, tag bool, raw []map[string]types.AttributeValue) error {
	items, err := unmarshalItems(raw)
	if err != nil {
		return err
	}
	if resolver == nil {
		r.items = append(r.items, items...)
		return nil
	}
	resolved, err := resolver.ResolveAll(items)
	if err != nil {
		return err
	}
	for _, res := range resolved {
		r.items = append(r.items, res.Item)
		if tag {
			r.tagged = append(r.tagged, TaggedItem{Entity: res.Entity.name, Item: res.Item})
		}
	}
	return nil
}

// newReadResolver returns nil when no entities are given.
func newReadResolver(entities []*Entity, scope string, attrs []string, show bool, noMatch NoEntityMatchBehavior) *Resolver {
	if len(entities) == 0 {
		return nil
	}
	return NewResolver(entities, ResolveOptions{
		Attributes:            attrs,
		ShowEntityAttr:        show,
		NoEntityMatchBehavior: noMatch,
		Scope:                 scope,
	})
}

func pages(maxPages int) int {
	if maxPages == 0 {
		return 1
	}
	return maxPages
}
