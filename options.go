/*
Package toolbox – command options.

Options are plain structs. Callers holding options as a loosely typed map
(decoded JSON, CLI flags) go through DecodeOptions, which rejects keys the
command does not declare before anything else happens.
*/
package toolbox

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Capacity selects the consumed capacity returned by DynamoDB.
type Capacity string

const (
	CapacityNone    Capacity = "NONE"
	CapacityTotal   Capacity = "TOTAL"
	CapacityIndexes Capacity = "INDEXES"
)

func (c Capacity) param() (types.ReturnConsumedCapacity, error) {
	switch c {
	case "":
		return "", nil
	case CapacityNone, CapacityTotal, CapacityIndexes:
		return types.ReturnConsumedCapacity(c), nil
	}
	return "", invalidOption(CodeInvalidCapacity, "capacity", c)
}

// Metrics selects the item collection metrics returned by writes.
type Metrics string

const (
	MetricsNone Metrics = "NONE"
	MetricsSize Metrics = "SIZE"
)

func (m Metrics) param() (types.ReturnItemCollectionMetrics, error) {
	switch m {
	case "":
		return "", nil
	case MetricsNone, MetricsSize:
		return types.ReturnItemCollectionMetrics(m), nil
	}
	return "", invalidOption(CodeInvalidMetrics, "metrics", m)
}

// Select is the DynamoDB Select parameter of scans and queries.
type Select string

const (
	SelectAllAttributes          Select = "ALL_ATTRIBUTES"
	SelectAllProjectedAttributes Select = "ALL_PROJECTED_ATTRIBUTES"
	SelectCount                  Select = "COUNT"
	SelectSpecificAttributes     Select = "SPECIFIC_ATTRIBUTES"
)

// NoEntityMatchBehavior decides what happens to records no entity can format.
type NoEntityMatchBehavior string

const (
	NoEntityMatchThrow   NoEntityMatchBehavior = "THROW"
	NoEntityMatchDiscard NoEntityMatchBehavior = "DISCARD"
)

func (b NoEntityMatchBehavior) check() error {
	switch b {
	case "", NoEntityMatchThrow, NoEntityMatchDiscard:
		return nil
	}
	return invalidOption(CodeInvalidNoMatch, "noEntityMatchBehavior", b)
}

// ReturnValues selects the attributes returned by writes.
type ReturnValues string

const (
	ReturnNone       ReturnValues = "NONE"
	ReturnAllOld     ReturnValues = "ALL_OLD"
	ReturnAllNew     ReturnValues = "ALL_NEW"
	ReturnUpdatedOld ReturnValues = "UPDATED_OLD"
	ReturnUpdatedNew ReturnValues = "UPDATED_NEW"
)

// param validates r against the values allowed by one operation.
func (r ReturnValues) param(allowed ...ReturnValues) (types.ReturnValue, error) {
	if r == "" {
		return "", nil
	}
	for _, a := range allowed {
		if r == a {
			return types.ReturnValue(r), nil
		}
	}
	return "", invalidOption(CodeInvalidReturnValues, "returnValues", r)
}

func invalidOption(code ErrorCode, name string, value any) error {
	return NewError(code, fmt.Sprintf("Invalid %s option: '%v'.", name, value),
		WithContext(map[string]any{"option": name, "value": value}))
}

// ─── shared read checks ──────────────────────────────────────────────────────

// readOptions are the option values shared by scans and queries.
type readOptions struct {
	index      string
	consistent bool
	selectAttr Select
	attributes []string
	limit      int32
	maxPages   int
	noMatch    NoEntityMatchBehavior
}

// check validates the option combination against the table.
func (o readOptions) check(t *Table) (*Index, error) {
	var idx *Index
	if o.index != "" {
		found, ok := t.Index(o.index)
		if !ok {
			return nil, unknownIndex(o.index)
		}
		idx = &found
	}
	if o.consistent && idx != nil && idx.Type == IndexGlobal {
		return nil, NewError(CodeInvalidConsistent,
			fmt.Sprintf("Consistent reads are not available on global secondary index %q.", o.index),
			WithContext(map[string]any{"index": o.index}))
	}
	switch o.selectAttr {
	case "", SelectAllAttributes, SelectCount, SelectSpecificAttributes:
	case SelectAllProjectedAttributes:
		if idx == nil {
			return nil, NewError(CodeInvalidSelect, "Select 'ALL_PROJECTED_ATTRIBUTES' is only available on secondary indexes.")
		}
	default:
		return nil, invalidOption(CodeInvalidSelect, "select", o.selectAttr)
	}
	if err := checkAttributes(o.attributes); err != nil {
		return nil, err
	}
	if o.attributes != nil && o.selectAttr != "" && o.selectAttr != SelectSpecificAttributes {
		return nil, NewError(CodeInvalidSelect,
			fmt.Sprintf("Select '%s' cannot be combined with attributes.", o.selectAttr))
	}
	if o.limit < 0 {
		return nil, invalidOption(CodeInvalidLimit, "limit", o.limit)
	}
	if o.maxPages < 0 {
		return nil, invalidOption(CodeInvalidMaxPages, "maxPages", o.maxPages)
	}
	if err := o.noMatch.check(); err != nil {
		return nil, err
	}
	return idx, nil
}

// checkAttributes rejects a projection that names no attribute.
func checkAttributes(attributes []string) error {
	if attributes != nil && len(attributes) == 0 {
		return NewError(CodeInvalidSelect, "Attributes must name at least one attribute.",
			WithContext(map[string]any{"option": "attributes"}))
	}
	return nil
}

func (o readOptions) selectParam() types.Select {
	if o.attributes != nil {
		return types.SelectSpecificAttributes
	}
	return types.Select(o.selectAttr)
}

// ─── decoding ────────────────────────────────────────────────────────────────

var optionKeysCache sync.Map // reflect.Type → map[string]bool

// optionKeys lists the JSON names of the exported fields of t.
func optionKeys(t reflect.Type) map[string]bool {
	if keys, ok := optionKeysCache.Load(t); ok {
		return keys.(map[string]bool)
	}
	keys := map[string]bool{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		keys[name] = true
	}
	optionKeysCache.Store(t, keys)
	return keys
}

// DecodeOptions converts a loosely typed options map into the options
// struct T. Keys T does not declare fail with options.unknownOption.
func DecodeOptions[T any](raw map[string]any) (T, error) {
	var opts T
	keys := optionKeys(reflect.TypeOf(opts))
	for _, k := range sortedKeys(raw) {
		if !keys[k] {
			return opts, NewError(CodeUnknownOption, fmt.Sprintf("Unknown option: %s.", k),
				WithContext(map[string]any{"option": k}))
		}
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return opts, NewError(CodeInvalidOptions, "Unable to encode options.", WithCause(err))
	}
	if err := json.Unmarshal(b, &opts); err != nil {
		return opts, NewError(CodeInvalidOptions, fmt.Sprintf("Invalid options: %v.", err), WithCause(err))
	}
	return opts, nil
}
