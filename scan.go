package toolbox

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ScanOptions configure a ScanCommand.
type ScanOptions struct {
	Capacity   Capacity `json:"capacity,omitempty"`
	Consistent bool     `json:"consistent,omitempty"`
	Select     Select   `json:"select,omitempty"`
	Attributes []string `json:"attributes,omitempty"`

	Filter  *Condition            `json:"filter,omitempty"`
	Filters map[string]*Condition `json:"filters,omitempty"`
	// EntityAttrFilter restricts the scan to the listed entities through the
	// discriminator. Defaults to true.
	EntityAttrFilter      *bool                 `json:"entityAttrFilter,omitempty"`
	NoEntityMatchBehavior NoEntityMatchBehavior `json:"noEntityMatchBehavior,omitempty"`
	ShowEntityAttr        bool                  `json:"showEntityAttr,omitempty"`
	TagEntities           bool                  `json:"tagEntities,omitempty"`

	Limit int32 `json:"limit,omitempty"`
	// MaxPages bounds the number of requests. Defaults to 1.
	MaxPages          int            `json:"maxPages,omitempty"`
	ExclusiveStartKey map[string]any `json:"exclusiveStartKey,omitempty"`
	Segment           *int32         `json:"segment,omitempty"`
	TotalSegments     int32          `json:"totalSegments,omitempty"`

	IndexName      string         `json:"index,omitempty"`
	TableName      string         `json:"tableName,omitempty"`
	DocumentClient DocumentClient `json:"-"`
}

// ScanCommand scans a table or index, formatting records through Entities.
type ScanCommand struct {
	Table    *Table
	Entities []*Entity
	Options  ScanOptions
}

type ScanResponse struct {
	Items []Item
	// Tagged is filled when TagEntities is set.
	Tagged           []TaggedItem
	Count            int32
	ScannedCount     int32
	LastEvaluatedKey map[string]types.AttributeValue
	ConsumedCapacity []types.ConsumedCapacity
}

func (o ScanOptions) read() readOptions {
	return readOptions{
		index:      o.IndexName,
		consistent: o.Consistent,
		selectAttr: o.Select,
		attributes: o.Attributes,
		limit:      o.Limit,
		maxPages:   o.MaxPages,
		noMatch:    o.NoEntityMatchBehavior,
	}
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// checkEntities verifies that every entity lives in t.
func checkEntities(command string, t *Table, entities []*Entity) error {
	for _, e := range entities {
		if e == nil {
			return incomplete(command, "Nil entity")
		}
		if e.table != t {
			return NewError(CodeInvalidAction,
				fmt.Sprintf("%s: entity %q belongs to table %q.", command, e.name, e.table.name))
		}
	}
	return nil
}

// Params builds the first page request.
func (c ScanCommand) Params() (*ddb.ScanInput, error) {
	if c.Table == nil {
		return nil, incomplete("ScanCommand", "Missing table")
	}
	if err := checkEntities("ScanCommand", c.Table, c.Entities); err != nil {
		return nil, err
	}
	o := c.Options
	if _, err := o.read().check(c.Table); err != nil {
		return nil, err
	}
	capacity, err := o.Capacity.param()
	if err != nil {
		return nil, err
	}
	if o.Segment != nil || o.TotalSegments != 0 {
		if o.Segment == nil || o.TotalSegments < 1 || *o.Segment < 0 || *o.Segment >= o.TotalSegments {
			return nil, NewError(CodeInvalidSegment,
				fmt.Sprintf("Invalid segment option: segment %v of %d.", aws.ToInt32(o.Segment), o.TotalSegments),
				WithContext(map[string]any{"option": "segment"}))
		}
	}

	x := newExpression()
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

	in := &ddb.ScanInput{
		TableName:                 aws.String(tableNameOr(c.Table, o.TableName)),
		IndexName:                 optional(o.IndexName),
		ProjectionExpression:      x.projection(),
		FilterExpression:          x.filterExpression(),
		ExpressionAttributeNames:  x.attributeNames(),
		ExpressionAttributeValues: values,
		ExclusiveStartKey:         startKey,
		ReturnConsumedCapacity:    capacity,
		Select:                    o.read().selectParam(),
		Segment:                   o.Segment,
	}
	if o.Consistent {
		in.ConsistentRead = aws.Bool(true)
	}
	if o.Limit > 0 {
		in.Limit = aws.Int32(o.Limit)
	}
	if o.TotalSegments > 0 {
		in.TotalSegments = aws.Int32(o.TotalSegments)
	}
	return in, nil
}

// Send runs the scan for up to MaxPages pages.
func (c ScanCommand) Send(ctx context.Context) (*ScanResponse, error) {
	in, err := c.Params()
	if err != nil {
		return nil, err
	}
	client, err := resolveClient(c.Options.DocumentClient, c.Table)
	if err != nil {
		return nil, err
	}
	o := c.Options
	resolver := newReadResolver(c.Entities, "scanCommand", o.Attributes, o.ShowEntityAttr, o.NoEntityMatchBehavior)

	var res readResult
	for page := 0; page < pages(o.MaxPages); page++ {
		out, err := send(ctx, c.Table, "scan", aws.ToString(in.TableName), in, client.Scan)
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
		next := *in
		next.ExclusiveStartKey = out.LastEvaluatedKey
		in = &next
	}
	return &ScanResponse{
		Items:            res.items,
		Tagged:           res.tagged,
		Count:            res.count,
		ScannedCount:     res.scannedCount,
		LastEvaluatedKey: res.lastEvaluatedKey,
		ConsumedCapacity: res.capacity,
	}, nil
}
