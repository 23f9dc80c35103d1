package toolbox

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// RangeOp is a sort key comparison.
type RangeOp string

const (
	RangeEq         RangeOp = "eq"
	RangeLt         RangeOp = "lt"
	RangeLte        RangeOp = "lte"
	RangeGt         RangeOp = "gt"
	RangeGte        RangeOp = "gte"
	RangeBetween    RangeOp = "between"
	RangeBeginsWith RangeOp = "beginsWith"
)

var rangeOperators = map[RangeOp]string{
	RangeEq:  "=",
	RangeLt:  "<",
	RangeLte: "<=",
	RangeGt:  ">",
	RangeGte: ">=",
}

// RangeCondition narrows a query on the sort key. Upper is the upper bound
// of "between".
type RangeCondition struct {
	Op    RangeOp `json:"op"`
	Value any     `json:"value"`
	Upper any     `json:"upper,omitempty"`
}

// Query names the partition to read, on the table or a secondary index.
// Values are stored values: no entity transform applies to them.
type Query struct {
	Index     string          `json:"index,omitempty"`
	Partition any             `json:"partition"`
	Range     *RangeCondition `json:"range,omitempty"`
}

// QueryOptions configure a QueryCommand.
type QueryOptions struct {
	Capacity   Capacity `json:"capacity,omitempty"`
	Consistent bool     `json:"consistent,omitempty"`
	Select     Select   `json:"select,omitempty"`
	Attributes []string `json:"attributes,omitempty"`

	Filter                *Condition            `json:"filter,omitempty"`
	Filters               map[string]*Condition `json:"filters,omitempty"`
	EntityAttrFilter      *bool                 `json:"entityAttrFilter,omitempty"`
	NoEntityMatchBehavior NoEntityMatchBehavior `json:"noEntityMatchBehavior,omitempty"`
	ShowEntityAttr        bool                  `json:"showEntityAttr,omitempty"`
	TagEntities           bool                  `json:"tagEntities,omitempty"`

	Limit   int32 `json:"limit,omitempty"`
	Reverse bool  `json:"reverse,omitempty"`
	// KeepGoing keeps requesting pages while a filtered query has fewer
	// than Limit items. PageSize then sets the per-request limit.
	KeepGoing         bool           `json:"keepGoing,omitempty"`
	PageSize          int32          `json:"pageSize,omitempty"`
	MaxPages          int            `json:"maxPages,omitempty"`
	ExclusiveStartKey map[string]any `json:"exclusiveStartKey,omitempty"`

	TableName      string         `json:"tableName,omitempty"`
	DocumentClient DocumentClient `json:"-"`
}

// QueryCommand reads one partition, formatting records through Entities.
type QueryCommand struct {
	Table    *Table
	Entities []*Entity
	Query    Query
	Options  QueryOptions
}

type QueryResponse struct {
	Items            []Item
	Tagged           []TaggedItem
	Count            int32
	ScannedCount     int32
	LastEvaluatedKey map[string]types.AttributeValue
	ConsumedCapacity []types.ConsumedCapacity
}

func (o QueryOptions) read(index string) readOptions {
	return readOptions{
		index:      index,
		consistent: o.Consistent,
		selectAttr: o.Select,
		attributes: o.Attributes,
		limit:      o.Limit,
		maxPages:   o.MaxPages,
		noMatch:    o.NoEntityMatchBehavior,
	}
}

// keepGoing reports whether the query pages until Limit filtered items.
func (c QueryCommand) keepGoing(filtered bool) bool {
	return c.Options.KeepGoing && c.Options.Limit > 0 && filtered
}

func (c QueryCommand) maxPages(filtered bool) int {
	if c.Options.MaxPages > 0 {
		return c.Options.MaxPages
	}
	if c.keepGoing(filtered) {
		return AllPages
	}
	return 1
}

func invalidPartition(msg string, value any) error {
	return NewError(CodeInvalidPartition, msg, WithContext(map[string]any{"partition": value}))
}

func invalidRange(msg string, r *RangeCondition) error {
	return NewError(CodeInvalidRange, msg, WithContext(map[string]any{"range": r}))
}

// keyCondition writes the key condition of q into x.
func (t *Table) keyCondition(x *expression, q Query) error {
	pk, sk, err := t.KeysOf(q.Index)
	if err != nil {
		return err
	}
	if q.Partition == nil {
		return invalidPartition("Missing query partition.", nil)
	}
	if !matchesKind(pk.Type.kind(), q.Partition) {
		return invalidPartition(fmt.Sprintf("Query partition should be a %s.", pk.Type.kind()), q.Partition)
	}
	x.keys = append(x.keys, fmt.Sprintf("%s = %s", x.addName(pk.Name), x.addValue(q.Partition)))

	r := q.Range
	if r == nil {
		return nil
	}
	if sk == nil {
		return invalidRange("Range condition on a key without sort key.", r)
	}
	kind := sk.Type.kind()
	if r.Value == nil || !matchesKind(kind, r.Value) {
		return invalidRange(fmt.Sprintf("Range value should be a %s.", kind), r)
	}
	name := x.addName(sk.Name)
	switch r.Op {
	case RangeBetween:
		if r.Upper == nil || !matchesKind(kind, r.Upper) {
			return invalidRange(fmt.Sprintf("Range upper bound should be a %s.", kind), r)
		}
		x.keys = append(x.keys, fmt.Sprintf("%s BETWEEN %s AND %s", name, x.addValue(r.Value), x.addValue(r.Upper)))
	case RangeBeginsWith:
		if kind == KindNumber {
			return invalidRange("beginsWith is not available on number sort keys.", r)
		}
		x.keys = append(x.keys, fmt.Sprintf("begins_with(%s, %s)", name, x.addValue(r.Value)))
	default:
		op, ok := rangeOperators[r.Op]
		if !ok {
			return invalidRange(fmt.Sprintf("Unknown range operator: %q.", r.Op), r)
		}
		x.keys = append(x.keys, fmt.Sprintf("%s %s %s", name, op, x.addValue(r.Value)))
	}
	return nil
}

// Params builds the first page request.
func (c QueryCommand) Params() (*ddb.QueryInput, error) {
	if c.Table == nil {
		return nil, incomplete("QueryCommand", "Missing table")
	}
	if err := checkEntities("QueryCommand", c.Table, c.Entities); err != nil {
		return nil, err
	}
	o := c.Options
	if _, err := o.read(c.Query.Index).check(c.Table); err != nil {
		return nil, err
	}
	if o.PageSize < 0 {
		return nil, invalidOption(CodeInvalidLimit, "pageSize", o.PageSize)
	}
	capacity, err := o.Capacity.param()
	if err != nil {
		return nil, err
	}

	x := newExpression()
	if err := c.Table.keyCondition(x, c.Query); err != nil {
		return nil, err
	}
	plan := readPlan{
		table:            c.Table,
		entities:         c.Entities,
		attributes:       o.Attributes,
		filter:           o.Filter,
		filters:          o.Filters,
		entityAttrFilter: boolOr(o.EntityAttrFilter, true),
	}
	if err := plan.apply(x); err != nil {
		return nil, err
	}
	values, err := x.attributeValues()
	if err != nil {
		return nil, err
	}
	startKey, err := marshalItem(o.ExclusiveStartKey)
	if err != nil {
		return nil, err
	}

	in := &ddb.QueryInput{
		TableName:                 aws.String(tableNameOr(c.Table, o.TableName)),
		IndexName:                 optional(c.Query.Index),
		KeyConditionExpression:    x.keyConditionExpression(),
		ProjectionExpression:      x.projection(),
		FilterExpression:          x.filterExpression(),
		ExpressionAttributeNames:  x.attributeNames(),
		ExpressionAttributeValues: values,
		ExclusiveStartKey:         startKey,
		ReturnConsumedCapacity:    capacity,
		Select:                    o.read(c.Query.Index).selectParam(),
	}
	if o.Consistent {
		in.ConsistentRead = aws.Bool(true)
	}
	if o.Reverse {
		in.ScanIndexForward = aws.Bool(false)
	}
	if o.Limit > 0 {
		in.Limit = aws.Int32(o.Limit)
	}
	if c.keepGoing(in.FilterExpression != nil) && o.PageSize > 0 {
		in.Limit = aws.Int32(o.PageSize)
	}
	return in, nil
}

// Send runs the query. Pages are requested one after another; with
// KeepGoing on a filtered query they continue until Limit items were
// collected, the partition is exhausted or MaxPages is reached.
func (c QueryCommand) Send(ctx context.Context) (*QueryResponse, error) {
	in, err := c.Params()
	if err != nil {
		return nil, err
	}
	client, err := resolveClient(c.Options.DocumentClient, c.Table)
	if err != nil {
		return nil, err
	}
	o := c.Options
	filtered := in.FilterExpression != nil
	resolver := newReadResolver(c.Entities, "queryCommand", o.Attributes, o.ShowEntityAttr, o.NoEntityMatchBehavior)

	var res readResult
	for page := 0; page < c.maxPages(filtered); page++ {
		out, err := send(ctx, c.Table, "query", aws.ToString(in.TableName), in, client.Query)
		if err != nil {
			return nil, err
		}
		if err := res.addPage(resolver, o.TagEntities, out.Items); err != nil {
			return nil, err
		}
		res.count += out.Count
		res.scannedCount += out.ScannedCount
		if out.ConsumedCapacity != nil {
			res.capacity = append(res.capacity, *out.ConsumedCapacity)
		}
		res.lastEvaluatedKey = out.LastEvaluatedKey
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		if c.keepGoing(filtered) && len(res.items) >= int(o.Limit) {
			break
		}
		next := *in
		next.ExclusiveStartKey = out.LastEvaluatedKey
		in = &next
	}
	return &QueryResponse{
		Items:            res.items,
		Tagged:           res.tagged,
		Count:            res.count,
		ScannedCount:     res.scannedCount,
		LastEvaluatedKey: res.lastEvaluatedKey,
		ConsumedCapacity: res.capacity,
	}, nil
}
