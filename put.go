package toolbox

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// PutItemOptions configure a PutItemCommand.
type PutItemOptions struct {
	Capacity Capacity `json:"capacity,omitempty"`
	Metrics  Metrics  `json:"metrics,omitempty"`
	// ReturnValues is NONE or ALL_OLD.
	ReturnValues   ReturnValues   `json:"returnValues,omitempty"`
	Condition      *Condition     `json:"condition,omitempty"`
	TableName      string         `json:"tableName,omitempty"`
	DocumentClient DocumentClient `json:"-"`
}

// PutItemCommand writes a complete item.
type PutItemCommand struct {
	Entity  *Entity
	Item    Item
	Options PutItemOptions
}

type PutItemResponse struct {
	// Item is the written item in logical form, defaults and timestamps included.
	Item Item
	// Attributes is the replaced item when ReturnValues is ALL_OLD.
	Attributes            Item
	ConsumedCapacity      *types.ConsumedCapacity
	ItemCollectionMetrics *types.ItemCollectionMetrics
}

// addCondition rewrites cond into e. Names are resolved through s.
func addCondition(e *expression, cond *Condition, s *Schema) error {
	if cond == nil {
		return nil
	}
	expr, err := e.condition(cond, s)
	if err != nil {
		return err
	}
	e.conditions = append(e.conditions, expr)
	return nil
}

func (c PutItemCommand) build() (Item, *ddb.PutItemInput, error) {
	if c.Entity == nil {
		return nil, nil, incomplete("PutItemCommand", "Missing entity")
	}
	if c.Item == nil {
		return nil, nil, incomplete("PutItemCommand", "Missing item")
	}
	stored, err := c.Entity.parseItem(c.Item)
	if err != nil {
		return nil, nil, err
	}
	av, err := marshalItem(stored)
	if err != nil {
		return nil, nil, err
	}
	capacity, err := c.Options.Capacity.param()
	if err != nil {
		return nil, nil, err
	}
	metrics, err := c.Options.Metrics.param()
	if err != nil {
		return nil, nil, err
	}
	returnValues, err := c.Options.ReturnValues.param(ReturnNone, ReturnAllOld)
	if err != nil {
		return nil, nil, err
	}
	e := newExpression()
	if err := addCondition(e, c.Options.Condition, c.Entity.schema); err != nil {
		return nil, nil, err
	}
	values, err := e.attributeValues()
	if err != nil {
		return nil, nil, err
	}
	return stored, &ddb.PutItemInput{
		TableName:                   aws.String(tableNameOr(c.Entity.table, c.Options.TableName)),
		Item:                        av,
		ConditionExpression:         e.conditionExpression(),
		ExpressionAttributeNames:    e.attributeNames(),
		ExpressionAttributeValues:   values,
		ReturnConsumedCapacity:      capacity,
		ReturnItemCollectionMetrics: metrics,
		ReturnValues:                returnValues,
	}, nil
}

// Params builds the request without sending it.
func (c PutItemCommand) Params() (*ddb.PutItemInput, error) {
	_, in, err := c.build()
	return in, err
}

// Send writes the item.
func (c PutItemCommand) Send(ctx context.Context) (*PutItemResponse, error) {
	stored, in, err := c.build()
	if err != nil {
		return nil, err
	}
	client, err := resolveClient(c.Options.DocumentClient, c.Entity.table)
	if err != nil {
		return nil, err
	}
	out, err := send(ctx, c.Entity.table, "putItem", aws.ToString(in.TableName), in, client.PutItem)
	if err != nil {
		return nil, err
	}
	item, err := c.Entity.Format(stored, FormatOptions{})
	if err != nil {
		return nil, err
	}
	resp := &PutItemResponse{
		Item:                  item,
		ConsumedCapacity:      out.ConsumedCapacity,
		ItemCollectionMetrics: out.ItemCollectionMetrics,
	}
	if resp.Attributes, err = c.Entity.formatReturned(out.Attributes, false); err != nil {
		return nil, err
	}
	return resp, nil
}

// formatReturned formats attributes returned by a write. Partial returns
// (UPDATED_OLD / UPDATED_NEW) only validate the attributes present.
func (e *Entity) formatReturned(av map[string]types.AttributeValue, partial bool) (Item, error) {
	if len(av) == 0 {
		return nil, nil
	}
	raw, err := unmarshalItem(av)
	if err != nil {
		return nil, err
	}
	opts := FormatOptions{}
	if partial {
		opts.Attributes = e.logicalNames(raw)
	}
	return e.Format(raw, opts)
}

// logicalNames lists the top-level logical attributes present in raw.
func (e *Entity) logicalNames(raw Item) []string {
	names := []string{}
	for _, name := range sortedKeys(e.schema.Attributes) {
		if _, ok := raw[e.schema.Attributes[name].physicalName(name)]; ok {
			names = append(names, name)
		}
	}
	return names
}
