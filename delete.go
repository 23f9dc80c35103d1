package toolbox

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DeleteItemOptions configure a DeleteItemCommand.
type DeleteItemOptions struct {
	Capacity Capacity `json:"capacity,omitempty"`
	Metrics  Metrics  `json:"metrics,omitempty"`
	// ReturnValues is NONE or ALL_OLD.
	ReturnValues   ReturnValues   `json:"returnValues,omitempty"`
	Condition      *Condition     `json:"condition,omitempty"`
	TableName      string         `json:"tableName,omitempty"`
	DocumentClient DocumentClient `json:"-"`
}

// DeleteItemCommand deletes one item by key.
type DeleteItemCommand struct {
	Entity  *Entity
	Key     Item
	Options DeleteItemOptions
}

type DeleteItemResponse struct {
	Attributes            Item
	ConsumedCapacity      *types.ConsumedCapacity
	ItemCollectionMetrics *types.ItemCollectionMetrics
}

// Params builds the request without sending it.
func (c DeleteItemCommand) Params() (*ddb.DeleteItemInput, error) {
	if c.Entity == nil {
		return nil, incomplete("DeleteItemCommand", "Missing entity")
	}
	if c.Key == nil {
		return nil, incomplete("DeleteItemCommand", "Missing key")
	}
	key, err := c.Entity.key(c.Key)
	if err != nil {
		return nil, err
	}
	capacity, err := c.Options.Capacity.param()
	if err != nil {
		return nil, err
	}
	metrics, err := c.Options.Metrics.param()
	if err != nil {
		return nil, err
	}
	returnValues, err := c.Options.ReturnValues.param(ReturnNone, ReturnAllOld)
	if err != nil {
		return nil, err
	}
	e := newExpression()
	if err := addCondition(e, c.Options.Condition, c.Entity.schema); err != nil {
		return nil, err
	}
	values, err := e.attributeValues()
	if err != nil {
		return nil, err
	}
	return &ddb.DeleteItemInput{
		TableName:                   aws.String(tableNameOr(c.Entity.table, c.Options.TableName)),
		Key:                         key,
		ConditionExpression:         e.conditionExpression(),
		ExpressionAttributeNames:    e.attributeNames(),
		ExpressionAttributeValues:   values,
		ReturnConsumedCapacity:      capacity,
		ReturnItemCollectionMetrics: metrics,
		ReturnValues:                returnValues,
	}, nil
}

// Send deletes the item.
func (c DeleteItemCommand) Send(ctx context.Context) (*DeleteItemResponse, error) {
	in, err := c.Params()
	if err != nil {
		return nil, err
	}
	client, err := resolveClient(c.Options.DocumentClient, c.Entity.table)
	if err != nil {
		return nil, err
	}
	out, err := send(ctx, c.Entity.table, "deleteItem", aws.ToString(in.TableName), in, client.DeleteItem)
	if err != nil {
		return nil, err
	}
	attrs, err := c.Entity.formatReturned(out.Attributes, false)
	if err != nil {
		return nil, err
	}
	return &DeleteItemResponse{
		Attributes:            attrs,
		ConsumedCapacity:      out.ConsumedCapacity,
		ItemCollectionMetrics: out.ItemCollectionMetrics,
	}, nil
}
