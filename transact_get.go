package toolbox

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type GetTransactionOptions struct {
	Attributes []string `json:"attributes,omitempty"`
	TableName  string   `json:"tableName,omitempty"`
}

// GetTransaction reads one item inside a TransactGetItems call.
type GetTransaction struct {
	Entity  *Entity
	Key     Item
	Options GetTransactionOptions
}

type TransactGetOptions struct {
	Capacity       Capacity       `json:"capacity,omitempty"`
	DocumentClient DocumentClient `json:"-"`
}

type TransactGetResponse struct {
	// Responses[i] is the item read by transaction i, or nil when it does
	// not exist.
	Responses        []Item
	ConsumedCapacity []types.ConsumedCapacity
}

func (t GetTransaction) params() (types.TransactGetItem, error) {
	if t.Entity == nil {
		return types.TransactGetItem{}, incomplete("GetTransaction", "Missing entity")
	}
	if t.Key == nil {
		return types.TransactGetItem{}, incomplete("GetTransaction", "Missing key")
	}
	key, err := t.Entity.key(t.Key)
	if err != nil {
		return types.TransactGetItem{}, err
	}
	get := &types.Get{
		TableName: aws.String(tableNameOr(t.Entity.table, t.Options.TableName)),
		Key:       key,
	}
	if err := checkAttributes(t.Options.Attributes); err != nil {
		return types.TransactGetItem{}, err
	}
	if t.Options.Attributes != nil {
		paths, err := t.Entity.physicalPaths(t.Options.Attributes)
		if err != nil {
			return types.TransactGetItem{}, err
		}
		x := newExpression()
		for _, p := range paths {
			x.addProjection(p)
		}
		get.ProjectionExpression = x.projection()
		get.ExpressionAttributeNames = x.attributeNames()
	}
	return types.TransactGetItem{Get: get}, nil
}

// TransactGetParams builds the request without sending it.
func TransactGetParams(opts *TransactGetOptions, txs ...GetTransaction) (*ddb.TransactGetItemsInput, error) {
	if opts == nil {
		opts = &TransactGetOptions{}
	}
	if len(txs) == 0 {
		return nil, incomplete("transactGet", "No GetTransaction supplied")
	}
	capacity, err := opts.Capacity.param()
	if err != nil {
		return nil, err
	}
	in := &ddb.TransactGetItemsInput{
		TransactItems:          make([]types.TransactGetItem, 0, len(txs)),
		ReturnConsumedCapacity: capacity,
	}
	for _, tx := range txs {
		item, err := tx.params()
		if err != nil {
			return nil, err
		}
		in.TransactItems = append(in.TransactItems, item)
	}
	return in, nil
}

// ExecuteTransactGet reads every transaction's item atomically. The response
// holds exactly one slot per transaction, in order.
func ExecuteTransactGet(ctx context.Context, opts *TransactGetOptions, txs ...GetTransaction) (*TransactGetResponse, error) {
	if opts == nil {
		opts = &TransactGetOptions{}
	}
	in, err := TransactGetParams(opts, txs...)
	if err != nil {
		return nil, err
	}
	table := txs[0].Entity.table
	client, err := resolveClient(opts.DocumentClient, table)
	if err != nil {
		return nil, err
	}
	out, err := send(ctx, table, "transactGet", "", in, client.TransactGetItems)
	if err != nil {
		return nil, err
	}
	if len(out.Responses) > len(txs) {
		return nil, NewError(CodeRequestFailed,
			fmt.Sprintf("transactGet returned %d responses for %d transactions.", len(out.Responses), len(txs)))
	}
	resp := &TransactGetResponse{
		Responses:        make([]Item, len(txs)),
		ConsumedCapacity: out.ConsumedCapacity,
	}
	for i, r := range out.Responses {
		if r.Item == nil {
			continue
		}
		raw, err := unmarshalItem(r.Item)
		if err != nil {
			return nil, err
		}
		if resp.Responses[i], err = txs[i].Entity.Format(raw, FormatOptions{Attributes: txs[i].Options.Attributes}); err != nil {
			return nil, err
		}
	}
	return resp, nil
}
