/*
Package toolbox – multi-entity resolution.

Several entities can share a table, so a record returned by a scan or query
has to be matched to the entity that wrote it. The discriminator attribute
decides when present; otherwise every candidate is tried in declaration
order and the first one that formats the record wins.
*/
package toolbox

import "fmt"

// ResolveOptions control a Resolver.
type ResolveOptions struct {
	// Attributes is forwarded to the entity formatters.
	Attributes []string
	// ShowEntityAttr adds the discriminator (under its logical name) to
	// every formatted item.
	ShowEntityAttr bool
	// NoEntityMatchBehavior is THROW (default) or DISCARD.
	NoEntityMatchBehavior NoEntityMatchBehavior
	// Scope prefixes the no-match error code, e.g. "scanCommand".
	Scope string
}

// Resolution is a formatted record and the entity it matched.
type Resolution struct {
	Entity *Entity
	Item   Item
}

// attempt is the outcome of formatting a record as one candidate.
type attempt struct {
	entity *Entity
	item   Item
	err    error
}

func (a attempt) ok() bool { return a.err == nil }

// Resolver formats records against an ordered list of candidate entities.
type Resolver struct {
	entities []*Entity
	byName   map[string]*Entity
	attrs    []string // stored discriminator names, deduplicated
	opts     ResolveOptions
}

func NewResolver(entities []*Entity, opts ResolveOptions) *Resolver {
	r := &Resolver{entities: entities, byName: make(map[string]*Entity, len(entities)), opts: opts}
	if r.opts.NoEntityMatchBehavior == "" {
		r.opts.NoEntityMatchBehavior = NoEntityMatchThrow
	}
	if r.opts.Scope == "" {
		r.opts.Scope = "resolver"
	}
	seen := map[string]bool{}
	for _, e := range entities {
		if _, dup := r.byName[e.name]; !dup {
			r.byName[e.name] = e
		}
		if e.entityAttr != "" && !seen[e.table.entityAttr] {
			seen[e.table.entityAttr] = true
			r.attrs = append(r.attrs, e.table.entityAttr)
		}
	}
	return r
}

func (r *Resolver) try(e *Entity, raw Item) attempt {
	item, err := NewEntityFormatter(e).Format(raw, FormatOptions{Attributes: r.opts.Attributes})
	return attempt{entity: e, item: item, err: err}
}

// candidates returns the discriminated entity when the record names one of
// the candidates, otherwise every candidate in declaration order.
func (r *Resolver) candidates(raw Item) []*Entity {
	for _, attr := range r.attrs {
		if name, ok := raw[attr].(string); ok {
			if e, ok := r.byName[name]; ok {
				return []*Entity{e}
			}
		}
	}
	return r.entities
}

// Resolve formats raw. ok is false when the record matched no entity and
// the behavior is DISCARD.
func (r *Resolver) Resolve(raw Item) (res Resolution, ok bool, err error) {
	var last attempt
	for _, e := range r.candidates(raw) {
		last = r.try(e, raw)
		if last.ok() {
			item := last.item
			if r.opts.ShowEntityAttr {
				item[orDefault(e.entityAttr, defaultEntityAttrName)] = e.name
			}
			return Resolution{Entity: e, Item: item}, true, nil
		}
	}

	if r.opts.NoEntityMatchBehavior == NoEntityMatchDiscard {
		return Resolution{}, false, nil
	}
	if len(r.entities) == 1 && last.err != nil {
		return Resolution{}, false, last.err
	}
	return Resolution{}, false, NewError(NoEntityMatchedCode(r.opts.Scope),
		fmt.Sprintf("Unable to match item to any entity: %v.", r.recordKey(raw)),
		WithContext(map[string]any{"key": r.recordKey(raw)}), WithCause(last.err))
}

// ResolveAll resolves records in order, dropping discarded ones.
func (r *Resolver) ResolveAll(raws []Item) ([]Resolution, error) {
	out := make([]Resolution, 0, len(raws))
	for _, raw := range raws {
		res, ok, err := r.Resolve(raw)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, res)
		}
	}
	return out, nil
}

// recordKey extracts the table key values of a record for error context.
func (r *Resolver) recordKey(raw Item) Item {
	key := Item{}
	if len(r.entities) == 0 {
		return key
	}
	for _, name := range r.entities[0].table.primaryKeyNames() {
		if v, ok := raw[name]; ok {
			key[name] = v
		}
	}
	return key
}
