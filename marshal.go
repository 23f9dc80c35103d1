package toolbox

import (
	"encoding/base64"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// unmarshalItem converts a DynamoDB attribute map into a raw record.
func unmarshalItem(av map[string]types.AttributeValue) (Item, error) {
	if av == nil {
		return nil, nil
	}
	var item Item
	err := attributevalue.UnmarshalMapWithOptions(av, &item, func(o *attributevalue.DecoderOptions) {
		o.UseNumber = true
	})
	if err != nil {
		return nil, NewError(CodeInvalidItem, "Unable to decode stored item.", WithCause(err))
	}
	for k, v := range item {
		item[k] = plainNumbers(v)
	}
	return item, nil
}

// maxExactInt is the largest integer a float64 holds exactly.
const maxExactInt = 1 << 53

// plainNumbers replaces decoded numbers with float64. Integers beyond
// float64 precision become int64, and integers beyond int64 stay
// attributevalue.Number so no digit is lost.
func plainNumbers(v any) any {
	switch x := v.(type) {
	case attributevalue.Number:
		return plainNumber(x)
	case []attributevalue.Number:
		floats := make([]float64, len(x))
		mixed := make([]any, len(x))
		exact := true
		for i, n := range x {
			mixed[i] = plainNumber(n)
			f, ok := mixed[i].(float64)
			exact = exact && ok
			floats[i] = f
		}
		if exact {
			return floats
		}
		return mixed
	case map[string]any:
		for k, e := range x {
			x[k] = plainNumbers(e)
		}
	case []any:
		for i, e := range x {
			x[i] = plainNumbers(e)
		}
	}
	return v
}

func plainNumber(n attributevalue.Number) any {
	if i, err := n.Int64(); err == nil {
		if i > maxExactInt || i < -maxExactInt {
			return i
		}
		return float64(i)
	}
	if !strings.ContainsAny(string(n), ".eE") {
		return n
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n
}

func unmarshalItems(list []map[string]types.AttributeValue) ([]Item, error) {
	items := make([]Item, 0, len(list))
	for _, av := range list {
		item, err := unmarshalItem(av)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func marshalItem(item Item) (map[string]types.AttributeValue, error) {
	if item == nil {
		return nil, nil
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, NewError(CodeInvalidItem, "Unable to encode item.", WithCause(err))
	}
	return av, nil
}

func tableNameOr(t *Table, override string) string {
	if override != "" {
		return override
	}
	return t.name
}

// keyFingerprint identifies a record by its key attributes so responses can
// be matched to requests regardless of order.
func keyFingerprint(av map[string]types.AttributeValue, names []string) string {
	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte('=')
		switch v := av[name].(type) {
		case *types.AttributeValueMemberS:
			b.WriteString("S:" + v.Value)
		case *types.AttributeValueMemberN:
			b.WriteString("N:" + v.Value)
		case *types.AttributeValueMemberB:
			b.WriteString("B:" + base64.StdEncoding.EncodeToString(v.Value))
		}
		b.WriteByte(';')
	}
	return b.String()
}
