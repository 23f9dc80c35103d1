package toolbox

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// GetItemOptions configure a GetItemCommand.
type GetItemOptions struct {
	Capacity       Capacity       `json:"capacity,omitempty"`
	Consistent     bool           `json:"consistent,omitempty"`
	Attributes     []string       `json:"attributes,omitempty"`
	TableName      string         `json:"tableName,omitempty"`
	DocumentClient DocumentClient `json:"-"`
}

// GetItemCommand reads one item by key.
type GetItemCommand struct {
	Entity  *Entity
	Key     Item
	Options GetItemOptions
}

type GetItemResponse struct {
	// Item is nil when no item exists for the key.
	Item             Item
	ConsumedCapacity *types.ConsumedCapacity
}

func incomplete(command, what string) error {
	return NewError(CodeIncompleteAction, fmt.Sprintf("%s incomplete: %s", command, what))
}

// Params builds the request without sending it.
func (c GetItemCommand) Params() (*ddb.GetItemInput, error) {
	if c.Entity == nil {
		return nil, incomplete("GetItemCommand", "Missing entity")
	}
	if c.Key == nil {
		return nil, incomplete("GetItemCommand", "Missing key")
	}
	key, err := c.Entity.key(c.Key)
	if err != nil {
		return nil, err
	}
	capacity, err := c.Options.Capacity.param()
	if err != nil {
		return nil, err
	}
	in := &ddb.GetItemInput{
		TableName:              aws.String(tableNameOr(c.Entity.table, c.Options.TableName)),
		Key:                    key,
		ReturnConsumedCapacity: capacity,
	}
	if c.Options.Consistent {
		in.ConsistentRead = aws.Bool(true)
	}
	if err := checkAttributes(c.Options.Attributes); err != nil {
		return nil, err
	}
	if c.Options.Attributes != nil {
		paths, err := c.Entity.physicalPaths(c.Options.Attributes)
		if err != nil {
			return nil, err
		}
		e := newExpression()
		for _, p := range paths {
			e.addProjection(p)
		}
		in.ProjectionExpression = e.projection()
		in.ExpressionAttributeNames = e.attributeNames()
	}
	return in, nil
}

// Send reads the item and formats it.
func (c GetItemCommand) Send(ctx context.Context) (*GetItemResponse, error) {
	in, err := c.Params()
	if err != nil {
		return nil, err
	}
	client, err := resolveClient(c.Options.DocumentClient, c.Entity.table)
	if err != nil {
		return nil, err
	}
	out, err := send(ctx, c.Entity.table, "getItem", aws.ToString(in.TableName), in, client.GetItem)
	if err != nil {
		return nil, err
	}
	resp := &GetItemResponse{ConsumedCapacity: out.ConsumedCapacity}
	if out.Item == nil {
		return resp, nil
	}
	raw, err := unmarshalItem(out.Item)
	if err != nil {
		return nil, err
	}
	resp.Item, err = c.Entity.Format(raw, FormatOptions{Attributes: c.Options.Attributes})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
