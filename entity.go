/*
Package toolbox – entities.

An Entity binds a map schema to a Table. On top of the caller's attributes
every entity carries a discriminator attribute naming the entity and, unless
disabled, created/modified timestamps.
*/
package toolbox

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-openapi/strfmt"
)

const (
	defaultEntityAttrName = "entity"
	defaultCreatedName    = "created"
	defaultCreatedSavedAs = "_ct"
	defaultModifiedName   = "modified"
	defaultModifiedSaved  = "_md"
)

// EntityAttribute configures the discriminator. It is stored under the
// table's EntityAttributeSavedAs name and hidden unless Visible is set.
type EntityAttribute struct {
	Name     string
	Disabled bool
	Visible  bool
}

// TimestampAttribute configures one timestamp attribute.
type TimestampAttribute struct {
	Name     string
	SavedAs  string
	Disabled bool
	Hidden   bool
}

// Timestamps configures the created/modified attributes. Both are ISO-8601
// strings written on put and update.
type Timestamps struct {
	Disabled bool
	Created  TimestampAttribute
	Modified TimestampAttribute
}

// EntityParams configures an Entity.
type EntityParams struct {
	Name            string
	Table           *Table
	Schema          *Schema
	EntityAttribute EntityAttribute
	Timestamps      Timestamps
	// Now is the clock used for timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Entity is immutable after NewEntity and safe for concurrent use.
type Entity struct {
	name   string
	table  *Table
	schema *Schema

	entityAttr string // logical name, "" when disabled
	created    string
	modified   string
	now        func() time.Time
}

// NewEntity validates params and binds a copy of the schema to the table.
func NewEntity(p EntityParams) (*Entity, error) {
	if p.Name == "" {
		return nil, NewError(CodeInvalidEntitySchema, "Missing entity name.")
	}
	if p.Table == nil {
		return nil, NewError(CodeInvalidEntitySchema, fmt.Sprintf("Entity %q needs a table.", p.Name))
	}
	if p.Schema == nil || p.Schema.Type != KindMap {
		return nil, NewError(CodeInvalidEntitySchema, fmt.Sprintf("Entity %q needs a map schema.", p.Name))
	}

	e := &Entity{name: p.Name, table: p.Table, schema: p.Schema.clone(), now: p.Now}
	if e.now == nil {
		e.now = time.Now
	}
	if e.schema.Attributes == nil {
		e.schema.Attributes = Attrs{}
	}

	if !p.EntityAttribute.Disabled {
		e.entityAttr = orDefault(p.EntityAttribute.Name, defaultEntityAttrName)
		attr := String().MarkOptional().StoredAs(p.Table.entityAttr)
		attr.Hidden = !p.EntityAttribute.Visible
		if err := e.addReserved(e.entityAttr, attr); err != nil {
			return nil, err
		}
	}
	if !p.Timestamps.Disabled {
		ts := []struct {
			cfg     TimestampAttribute
			name    string
			savedAs string
			target  *string
		}{
			{p.Timestamps.Created, defaultCreatedName, defaultCreatedSavedAs, &e.created},
			{p.Timestamps.Modified, defaultModifiedName, defaultModifiedSaved, &e.modified},
		}
		for _, t := range ts {
			if t.cfg.Disabled {
				continue
			}
			name := orDefault(t.cfg.Name, t.name)
			attr := String().MarkOptional().StoredAs(orDefault(t.cfg.SavedAs, t.savedAs))
			attr.Hidden = t.cfg.Hidden
			if err := e.addReserved(name, attr); err != nil {
				return nil, err
			}
			*t.target = name
		}
	}

	if err := e.schema.Check(); err != nil {
		return nil, err
	}
	if err := e.checkKeys(); err != nil {
		return nil, err
	}
	return e, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (e *Entity) addReserved(name string, attr *Schema) error {
	if _, ok := e.schema.Attributes[name]; ok {
		return NewError(CodeReservedName,
			fmt.Sprintf("Attribute name %q is reserved in entity %q.", name, e.name), WithPath(name))
	}
	for other, a := range e.schema.Attributes {
		if a.physicalName(other) == attr.SavedAs {
			return NewError(CodeReservedSavedAs,
				fmt.Sprintf("Attribute %q of entity %q is saved as reserved name %q.", other, e.name, attr.SavedAs),
				WithPath(other))
		}
	}
	e.schema.Attributes[name] = attr
	return nil
}

// checkKeys verifies that the key attributes produce exactly the table's
// primary key.
func (e *Entity) checkKeys() error {
	invalid := func(msg string) error {
		return NewError(CodeInvalidEntitySchema, fmt.Sprintf("Entity %q: %s", e.name, msg))
	}
	tableKeys := map[string]Key{e.table.partitionKey.Name: e.table.partitionKey}
	if e.table.sortKey != nil {
		tableKeys[e.table.sortKey.Name] = *e.table.sortKey
	}
	found := map[string]bool{}
	for _, name := range sortedKeys(e.schema.Attributes) {
		attr := e.schema.Attributes[name]
		phys := attr.physicalName(name)
		k, isTableKey := tableKeys[phys]
		switch {
		case attr.Key && !isTableKey:
			return invalid(fmt.Sprintf("key attribute %q is saved as %q which is not a table key.", name, phys))
		case !attr.Key && isTableKey:
			return invalid(fmt.Sprintf("attribute %q is saved as table key %q but is not marked as key.", name, phys))
		case !attr.Key:
			continue
		}
		if attr.Optional {
			return invalid(fmt.Sprintf("key attribute %q must be required.", name))
		}
		if attr.Type != k.Type.kind() {
			return invalid(fmt.Sprintf("key attribute %q should be a %s.", name, k.Type.kind()))
		}
		found[phys] = true
	}
	for _, name := range e.table.primaryKeyNames() {
		if !found[name] {
			return invalid(fmt.Sprintf("no key attribute is saved as %q.", name))
		}
	}
	return nil
}

func (e *Entity) Name() string    { return e.name }
func (e *Entity) Table() *Table   { return e.table }
func (e *Entity) Schema() *Schema { return e.schema.clone() }

// EntityAttributeName is the logical name of the discriminator, or "" when
// it is disabled.
func (e *Entity) EntityAttributeName() string { return e.entityAttr }

// timestamp renders the current time as an ISO-8601 string.
func (e *Entity) timestamp() string {
	return strfmt.DateTime(e.now().UTC()).String()
}

// parseItem builds the stored form of a complete item, including the
// discriminator and timestamps.
func (e *Entity) parseItem(item Item) (Item, error) {
	in := make(Item, len(item)+3)
	for k, v := range item {
		in[k] = v
	}
	if e.entityAttr != "" {
		in[e.entityAttr] = e.name
	}
	now := e.timestamp()
	if e.created != "" && in[e.created] == nil {
		in[e.created] = now
	}
	if e.modified != "" {
		in[e.modified] = now
	}
	out, err := parseNode(e.schema, in, parseState{mode: parsePut})
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

// parseUpdate builds the stored form of a partial item. Timestamps and the
// discriminator are handled by the update expression.
func (e *Entity) parseUpdate(item Item) (Item, error) {
	in := make(Item, len(item))
	for k, v := range item {
		if k == e.entityAttr || k == e.created || k == e.modified {
			continue
		}
		in[k] = v
	}
	out, err := parseNode(e.schema, in, parseState{mode: parseUpdate})
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

// key builds the stored primary key from logical key attributes.
func (e *Entity) key(key Item) (map[string]types.AttributeValue, error) {
	out, err := parseNode(e.schema, key, parseState{mode: parseKey})
	if err != nil {
		return nil, err
	}
	return attributevalue.MarshalMap(out)
}

// physicalPaths translates logical projection paths.
func (e *Entity) physicalPaths(attributes []string) ([][]pathSegment, error) {
	out := make([][]pathSegment, 0, len(attributes))
	for _, a := range attributes {
		segs, err := parsePath(a)
		if err != nil {
			return nil, err
		}
		phys, err := e.schema.physicalPath(segs)
		if err != nil {
			return nil, err
		}
		out = append(out, phys)
	}
	return out, nil
}
