package toolbox

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// UpdateItemOptions configure an UpdateItemCommand.
type UpdateItemOptions struct {
	Capacity       Capacity       `json:"capacity,omitempty"`
	Metrics        Metrics        `json:"metrics,omitempty"`
	ReturnValues   ReturnValues   `json:"returnValues,omitempty"`
	Condition      *Condition     `json:"condition,omitempty"`
	TableName      string         `json:"tableName,omitempty"`
	DocumentClient DocumentClient `json:"-"`
}

// UpdateItemCommand sets the attributes present in Item on the item
// identified by its key attributes. Attributes set to Remove are deleted.
// Nested maps and lists are replaced as a whole.
type UpdateItemCommand struct {
	Entity  *Entity
	Item    Item
	Options UpdateItemOptions
}

type UpdateItemResponse struct {
	Attributes            Item
	ConsumedCapacity      *types.ConsumedCapacity
	ItemCollectionMetrics *types.ItemCollectionMetrics
}

// updateParts holds the pieces shared by UpdateItem and transactional updates.
type updateParts struct {
	key    map[string]types.AttributeValue
	update *string
	cond   *string
	names  map[string]string
	values map[string]types.AttributeValue
}

func (e *Entity) buildUpdate(item Item, cond *Condition) (*updateParts, error) {
	stored, err := e.parseUpdate(item)
	if err != nil {
		return nil, err
	}
	key := Item{}
	for _, name := range e.table.primaryKeyNames() {
		key[name] = stored[name]
		delete(stored, name)
	}
	keyAV, err := marshalItem(key)
	if err != nil {
		return nil, err
	}

	x := newExpression()
	for _, name := range sortedKeys(stored) {
		if _, ok := stored[name].(removeMarker); ok {
			x.remove(name)
			continue
		}
		x.set(name, stored[name])
	}
	if e.entityAttr != "" {
		x.setIfNotExists(e.table.entityAttr, e.name)
	}
	now := e.timestamp()
	if e.created != "" {
		x.setIfNotExists(e.schema.Attributes[e.created].SavedAs, now)
	}
	if e.modified != "" {
		x.set(e.schema.Attributes[e.modified].SavedAs, now)
	}
	if err := addCondition(x, cond, e.schema); err != nil {
		return nil, err
	}
	values, err := x.attributeValues()
	if err != nil {
		return nil, err
	}
	return &updateParts{
		key:    keyAV,
		update: x.updateExpression(),
		cond:   x.conditionExpression(),
		names:  x.attributeNames(),
		values: values,
	}, nil
}

// Params builds the request without sending it.
func (c UpdateItemCommand) Params() (*ddb.UpdateItemInput, error) {
	if c.Entity == nil {
		return nil, incomplete("UpdateItemCommand", "Missing entity")
	}
	if c.Item == nil {
		return nil, incomplete("UpdateItemCommand", "Missing item")
	}
	capacity, err := c.Options.Capacity.param()
	if err != nil {
		return nil, err
	}
	metrics, err := c.Options.Metrics.param()
	if err != nil {
		return nil, err
	}
	returnValues, err := c.Options.ReturnValues.param(ReturnNone, ReturnAllOld, ReturnAllNew, ReturnUpdatedOld, ReturnUpdatedNew)
	if err != nil {
		return nil, err
	}
	p, err := c.Entity.buildUpdate(c.Item, c.Options.Condition)
	if err != nil {
		return nil, err
	}
	return &ddb.UpdateItemInput{
		TableName:                   aws.String(tableNameOr(c.Entity.table, c.Options.TableName)),
		Key:                         p.key,
		UpdateExpression:            p.update,
		ConditionExpression:         p.cond,
		ExpressionAttributeNames:    p.names,
		ExpressionAttributeValues:   p.values,
		ReturnConsumedCapacity:      capacity,
		ReturnItemCollectionMetrics: metrics,
		ReturnValues:                returnValues,
	}, nil
}

// Send applies the update.
func (c UpdateItemCommand) Send(ctx context.Context) (*UpdateItemResponse, error) {
	in, err := c.Params()
	if err != nil {
		return nil, err
	}
	client, err := resolveClient(c.Options.DocumentClient, c.Entity.table)
	if err != nil {
		return nil, err
	}
	out, err := send(ctx, c.Entity.table, "updateItem", aws.ToString(in.TableName), in, client.UpdateItem)
	if err != nil {
		return nil, err
	}
	partial := c.Options.ReturnValues == ReturnUpdatedOld || c.Options.ReturnValues == ReturnUpdatedNew
	attrs, err := c.Entity.formatReturned(out.Attributes, partial)
	if err != nil {
		return nil, err
	}
	return &UpdateItemResponse{
		Attributes:            attrs,
		ConsumedCapacity:      out.ConsumedCapacity,
		ItemCollectionMetrics: out.ItemCollectionMetrics,
	}, nil
}
