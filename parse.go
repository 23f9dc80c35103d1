package toolbox

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/cloudxsgmbh/dynamodb-toolbox-go/internal/uid"
)

// Remove, used as an attribute value in an update, deletes the attribute.
var Remove any = removeMarker{}

type removeMarker struct{}

type parseMode uint8

const (
	// parsePut parses a complete item: defaults applied, required enforced.
	parsePut parseMode = iota
	// parseUpdate parses a partial item: only keys are required.
	parseUpdate
	// parseKey keeps key attributes only.
	parseKey
)

type parseState struct {
	path string
	mode parseMode
}

func (st parseState) at(path string, mode parseMode) parseState {
	return parseState{path: path, mode: mode}
}

// parseNode turns a logical value into its stored form: defaults, checks,
// transformer encoding and SavedAs renaming.
func parseNode(s *Schema, value any, st parseState) (any, error) {
	switch s.Type {
	case KindString, KindNumber, KindBoolean, KindBinary:
		return parsePrimitive(s, value, st)

	case KindAny:
		if s.Transform != nil {
			return encode(s, value, st)
		}
		return value, nil

	case KindList:
		elems, ok := toSlice(value)
		if !ok {
			return nil, invalidInput(st.path, KindList, value)
		}
		out := make([]any, len(elems))
		for i, e := range elems {
			path := joinIndex(st.path, i)
			if e == nil {
				return nil, requiredAttribute(path)
			}
			v, err := parseNode(s.Elements, e, st.at(path, parsePut))
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case KindSet:
		return parseSet(s, value, st)

	case KindMap:
		return parseMap(s, value, st)

	case KindRecord:
		raw, ok := value.(map[string]any)
		if !ok {
			return nil, invalidInput(st.path, KindRecord, value)
		}
		out := make(map[string]any, len(raw))
		for _, key := range sortedKeys(raw) {
			path := joinName(st.path, key)
			k, err := parsePrimitive(s.Keys, key, st.at(path, parsePut))
			if err != nil {
				return nil, err
			}
			if raw[key] == nil {
				return nil, requiredAttribute(path)
			}
			v, err := parseNode(s.Values, raw[key], st.at(path, parsePut))
			if err != nil {
				return nil, err
			}
			out[k.(string)] = v
		}
		return out, nil

	case KindAnyOf:
		var firstErr error
		for _, variant := range s.Variants {
			v, err := parseNode(variant, value, st)
			if err == nil {
				return v, nil
			}
			if firstErr == nil {
				firstErr = err
			}
		}
		return nil, NewError(CodeParserInvalid,
			fmt.Sprintf("Attribute '%s' does not match any of the schema variants.", st.path),
			WithPath(st.path), WithCause(firstErr))
	}
	return nil, NewError(CodeInvalidSchema, fmt.Sprintf("Unknown schema type %q at path: '%s'.", s.Type, st.path), WithPath(st.path))
}

func parsePrimitive(s *Schema, value any, st parseState) (any, error) {
	if !matchesKind(s.Type, value) {
		return nil, invalidInput(st.path, s.Type, value)
	}
	if len(s.Enum) > 0 && !inEnum(s.Enum, value) {
		return nil, NewError(CodeParserInvalid,
			fmt.Sprintf("Attribute '%s' should be one of: %v.", st.path, s.Enum), WithPath(st.path))
	}
	if s.Transform != nil {
		return encode(s, value, st)
	}
	return value, nil
}

func encode(s *Schema, value any, st parseState) (any, error) {
	v, err := s.Transform.Encode(value)
	if err != nil {
		return nil, NewError(CodeParserInvalid,
			fmt.Sprintf("Unable to transform attribute: '%s'.", st.path), WithPath(st.path), WithCause(err))
	}
	return v, nil
}

func parseMap(s *Schema, value any, st parseState) (any, error) {
	raw, ok := value.(map[string]any)
	if !ok {
		return nil, invalidInput(st.path, KindMap, value)
	}
	out := make(map[string]any, len(s.Attributes))
	for _, name := range sortedKeys(s.Attributes) {
		attr := s.Attributes[name]
		path := joinName(st.path, name)
		if st.mode == parseKey && !attr.Key {
			continue
		}
		v := raw[name]
		if v == nil && (st.mode == parsePut || (attr.Key && attr.Generate == "")) {
			def, err := defaultValue(attr)
			if err != nil {
				return nil, err
			}
			v = def
		}
		if v == nil {
			if attr.Key || (st.mode == parsePut && !attr.Optional) {
				return nil, requiredAttribute(path)
			}
			continue
		}
		if _, remove := v.(removeMarker); remove {
			if st.mode != parseUpdate || attr.Key || !attr.Optional {
				return nil, NewError(CodeParserInvalid,
					fmt.Sprintf("Attribute '%s' is required and cannot be removed.", path), WithPath(path))
			}
			out[attr.physicalName(name)] = Remove
			continue
		}
		parsed, err := parseNode(attr, v, st.at(path, parsePut))
		if err != nil {
			return nil, err
		}
		out[attr.physicalName(name)] = parsed
	}
	return out, nil
}

// ─── sets ────────────────────────────────────────────────────────────────────

// Stored sets marshal to SS / NS / BS instead of lists.
type (
	stringSet []string
	numberSet []any
	binarySet [][]byte
)

func (s stringSet) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	if len(s) == 0 {
		return &types.AttributeValueMemberNULL{Value: true}, nil
	}
	return &types.AttributeValueMemberSS{Value: []string(s)}, nil
}

func (s numberSet) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	if len(s) == 0 {
		return &types.AttributeValueMemberNULL{Value: true}, nil
	}
	ns := make([]string, len(s))
	for i, n := range s {
		av, err := attributevalue.Marshal(n)
		if err != nil {
			return nil, err
		}
		num, ok := av.(*types.AttributeValueMemberN)
		if !ok {
			return nil, fmt.Errorf("number set element %v is not a number", n)
		}
		ns[i] = num.Value
	}
	return &types.AttributeValueMemberNS{Value: ns}, nil
}

func (s binarySet) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	if len(s) == 0 {
		return &types.AttributeValueMemberNULL{Value: true}, nil
	}
	return &types.AttributeValueMemberBS{Value: [][]byte(s)}, nil
}

func parseSet(s *Schema, value any, st parseState) (any, error) {
	elems, ok := toSlice(value)
	if !ok {
		return nil, invalidInput(st.path, KindSet, value)
	}
	parsed := make([]any, len(elems))
	for i, e := range elems {
		v, err := parsePrimitive(s.Elements, e, st.at(joinIndex(st.path, i), parsePut))
		if err != nil {
			return nil, err
		}
		parsed[i] = v
	}
	switch s.Elements.Type {
	case KindString:
		out := make(stringSet, len(parsed))
		for i, v := range parsed {
			str, ok := v.(string)
			if !ok {
				return nil, invalidInput(joinIndex(st.path, i), KindString, v)
			}
			out[i] = str
		}
		return out, nil
	case KindBinary:
		out := make(binarySet, len(parsed))
		for i, v := range parsed {
			b, ok := v.([]byte)
			if !ok {
				return nil, invalidInput(joinIndex(st.path, i), KindBinary, v)
			}
			out[i] = b
		}
		return out, nil
	}
	return numberSet(parsed), nil
}

// ─── defaults ────────────────────────────────────────────────────────────────

func defaultValue(s *Schema) (any, error) {
	if s.Default != nil {
		if fn, ok := s.Default.(func() any); ok {
			return fn(), nil
		}
		return s.Default, nil
	}
	if s.Generate != "" {
		gen, err := generator(s.Generate)
		if err != nil {
			return nil, err
		}
		return gen(), nil
	}
	return nil, nil
}

// generator resolves a Generate name.
func generator(name string) (func() any, error) {
	switch {
	case name == "uuid":
		return func() any { return uuid.NewString() }, nil
	case name == "ulid":
		return func() any { return uid.New().String() }, nil
	case name == "uid":
		return func() any { return uid.UID(10) }, nil
	case strings.HasPrefix(name, "uid(") && strings.HasSuffix(name, ")"):
		n, err := strconv.Atoi(name[4 : len(name)-1])
		if err == nil && n > 0 {
			return func() any { return uid.UID(n) }, nil
		}
	}
	return nil, NewError(CodeInvalidSchema, fmt.Sprintf("Unknown generator %q.", name))
}

func requiredAttribute(path string) error {
	return NewError(CodeParserMissing, fmt.Sprintf("Attribute '%s' is required.", path), WithPath(path))
}

func invalidInput(path string, kind Kind, value any) error {
	return NewError(CodeParserInvalid,
		fmt.Sprintf("Attribute '%s' should be a %s.", path, kind),
		WithPath(path), WithContext(map[string]any{"received": fmt.Sprintf("%T", value)}))
}
