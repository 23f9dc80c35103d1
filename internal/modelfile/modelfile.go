// Package modelfile loads a table and its entities from a YAML model file.
//
//	table:
//	  name: app
//	  partitionKey: {name: pk}
//	  sortKey: {name: sk}
//	  indexes:
//	    gsi1: {type: global, partitionKey: {name: gsi1pk}, sortKey: {name: gsi1sk}}
//	entities:
//	  - name: User
//	    attributes:
//	      id: {type: string, key: true, savedAs: pk, prefix: USER}
//	      sk: {type: string, key: true, default: meta}
//	      email: {type: string}
//	      tags: {type: set, elements: {type: string}, optional: true}
package modelfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"gopkg.in/yaml.v3"

	toolbox "github.com/cloudxsgmbh/dynamodb-toolbox-go"
)

// File is the YAML document.
type File struct {
	Table    TableDef    `yaml:"table"`
	Entities []EntityDef `yaml:"entities"`
}

type TableDef struct {
	Name                   string              `yaml:"name"`
	PartitionKey           toolbox.Key         `yaml:"partitionKey"`
	SortKey                *toolbox.Key        `yaml:"sortKey,omitempty"`
	EntityAttributeSavedAs string              `yaml:"entityAttributeSavedAs,omitempty"`
	Indexes                map[string]IndexDef `yaml:"indexes,omitempty"`
}

type IndexDef struct {
	Type             toolbox.IndexType `yaml:"type"`
	PartitionKey     *toolbox.Key      `yaml:"partitionKey,omitempty"`
	SortKey          *toolbox.Key      `yaml:"sortKey,omitempty"`
	Projection       string            `yaml:"projection,omitempty"`
	NonKeyAttributes []string          `yaml:"nonKeyAttributes,omitempty"`
}

type EntityDef struct {
	Name            string                   `yaml:"name"`
	EntityAttribute EntityAttributeDef       `yaml:"entityAttribute,omitempty"`
	Timestamps      TimestampsDef            `yaml:"timestamps,omitempty"`
	Attributes      map[string]*AttributeDef `yaml:"attributes"`
}

type EntityAttributeDef struct {
	Name     string `yaml:"name,omitempty"`
	Disabled bool   `yaml:"disabled,omitempty"`
	Visible  bool   `yaml:"visible,omitempty"`
}

type TimestampsDef struct {
	Disabled bool         `yaml:"disabled,omitempty"`
	Created  TimestampDef `yaml:"created,omitempty"`
	Modified TimestampDef `yaml:"modified,omitempty"`
}

type TimestampDef struct {
	Name     string `yaml:"name,omitempty"`
	SavedAs  string `yaml:"savedAs,omitempty"`
	Disabled bool   `yaml:"disabled,omitempty"`
	Hidden   bool   `yaml:"hidden,omitempty"`
}

// AttributeDef is one schema node. Prefix and Encrypt select a transformer.
type AttributeDef struct {
	Type     toolbox.Kind `yaml:"type"`
	Key      bool         `yaml:"key,omitempty"`
	Optional bool         `yaml:"optional,omitempty"`
	Hidden   bool         `yaml:"hidden,omitempty"`
	SavedAs  string       `yaml:"savedAs,omitempty"`
	Default  any          `yaml:"default,omitempty"`
	Generate string       `yaml:"generate,omitempty"`
	Enum     []any        `yaml:"enum,omitempty"`
	Prefix   string       `yaml:"prefix,omitempty"`
	Encrypt  bool         `yaml:"encrypt,omitempty"`

	Attributes map[string]*AttributeDef `yaml:"attributes,omitempty"`
	Elements   *AttributeDef            `yaml:"elements,omitempty"`
	Keys       *AttributeDef            `yaml:"keys,omitempty"`
	Values     *AttributeDef            `yaml:"values,omitempty"`
	Variants   []*AttributeDef          `yaml:"variants,omitempty"`
}

// Options are the runtime parts a model file cannot carry.
type Options struct {
	DocumentClient toolbox.DocumentClient
	Logger         *slog.Logger
	Monitor        toolbox.MonitorFunc
	// CryptPassword keys the attributes marked encrypt.
	CryptPassword string
}

// Model is a built table with its entities in file order.
type Model struct {
	Table    *toolbox.Table
	Entities []*toolbox.Entity
	byName   map[string]*toolbox.Entity
}

// Load reads and builds the model file at path.
func Load(path string, opts Options) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("modelfile: %w", err)
	}
	m, err := Parse(data, opts)
	if err != nil {
		return nil, fmt.Errorf("modelfile %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a YAML model and builds it. Unknown keys are rejected.
func Parse(data []byte, opts Options) (*Model, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty model file")
		}
		return nil, err
	}
	return f.Build(opts)
}

// Build creates the table and entities described by f.
func (f *File) Build(opts Options) (*Model, error) {
	indexes := make(map[string]toolbox.Index, len(f.Table.Indexes))
	for name, idx := range f.Table.Indexes {
		indexes[name] = toolbox.Index{
			Type:             idx.Type,
			PartitionKey:     idx.PartitionKey,
			SortKey:          idx.SortKey,
			Projection:       types.ProjectionType(idx.Projection),
			NonKeyAttributes: idx.NonKeyAttributes,
		}
	}
	table, err := toolbox.NewTable(toolbox.TableParams{
		Name:                   f.Table.Name,
		PartitionKey:           f.Table.PartitionKey,
		SortKey:                f.Table.SortKey,
		Indexes:                indexes,
		EntityAttributeSavedAs: f.Table.EntityAttributeSavedAs,
		DocumentClient:         opts.DocumentClient,
		Logger:                 opts.Logger,
		Monitor:                opts.Monitor,
	})
	if err != nil {
		return nil, err
	}

	m := &Model{Table: table, byName: make(map[string]*toolbox.Entity, len(f.Entities))}
	for _, def := range f.Entities {
		if _, dup := m.byName[def.Name]; dup {
			return nil, fmt.Errorf("entity %q declared twice", def.Name)
		}
		attrs := make(toolbox.Attrs, len(def.Attributes))
		for name, a := range def.Attributes {
			s, err := a.schema(opts, def.Name+"."+name)
			if err != nil {
				return nil, err
			}
			attrs[name] = s
		}
		e, err := toolbox.NewEntity(toolbox.EntityParams{
			Name:   def.Name,
			Table:  table,
			Schema: toolbox.Map(attrs),
			EntityAttribute: toolbox.EntityAttribute{
				Name:     def.EntityAttribute.Name,
				Disabled: def.EntityAttribute.Disabled,
				Visible:  def.EntityAttribute.Visible,
			},
			Timestamps: toolbox.Timestamps{
				Disabled: def.Timestamps.Disabled,
				Created:  def.Timestamps.Created.attribute(),
				Modified: def.Timestamps.Modified.attribute(),
			},
		})
		if err != nil {
			return nil, err
		}
		m.Entities = append(m.Entities, e)
		m.byName[def.Name] = e
	}
	return m, nil
}

func (t TimestampDef) attribute() toolbox.TimestampAttribute {
	return toolbox.TimestampAttribute{Name: t.Name, SavedAs: t.SavedAs, Disabled: t.Disabled, Hidden: t.Hidden}
}

func (a *AttributeDef) schema(opts Options, path string) (*toolbox.Schema, error) {
	if a == nil {
		return nil, fmt.Errorf("attribute %s: missing definition", path)
	}
	s := &toolbox.Schema{
		Type:     a.Type,
		Optional: a.Optional,
		Key:      a.Key,
		Hidden:   a.Hidden,
		SavedAs:  a.SavedAs,
		Default:  a.Default,
		Generate: a.Generate,
		Enum:     a.Enum,
	}
	switch {
	case a.Prefix != "" && a.Encrypt:
		return nil, fmt.Errorf("attribute %s: prefix and encrypt are exclusive", path)
	case a.Prefix != "":
		s.Transform = toolbox.Prefix(a.Prefix)
	case a.Encrypt:
		if opts.CryptPassword == "" {
			return nil, fmt.Errorf("attribute %s: encrypt needs a crypt password", path)
		}
		s.Transform = toolbox.NewCrypt(opts.CryptPassword)
	}

	var err error
	child := func(d *AttributeDef, name string) *toolbox.Schema {
		if err != nil || d == nil {
			return nil
		}
		var c *toolbox.Schema
		c, err = d.schema(opts, path+"."+name)
		return c
	}
	if len(a.Attributes) > 0 || a.Type == toolbox.KindMap {
		s.Attributes = make(toolbox.Attrs, len(a.Attributes))
		for name, d := range a.Attributes {
			s.Attributes[name] = child(d, name)
		}
	}
	s.Elements = child(a.Elements, "elements")
	s.Keys = child(a.Keys, "keys")
	s.Values = child(a.Values, "values")
	for i, v := range a.Variants {
		s.Variants = append(s.Variants, child(v, fmt.Sprintf("variants[%d]", i)))
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Entity returns the entity declared under name.
func (m *Model) Entity(name string) (*toolbox.Entity, bool) {
	e, ok := m.byName[name]
	return e, ok
}

// Select returns the named entities, or every entity when names is empty.
func (m *Model) Select(names ...string) ([]*toolbox.Entity, error) {
	if len(names) == 0 {
		return m.Entities, nil
	}
	out := make([]*toolbox.Entity, 0, len(names))
	for _, n := range names {
		e, ok := m.byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown entity %q", n)
		}
		out = append(out, e)
	}
	return out, nil
}
