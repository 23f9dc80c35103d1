package toolbox

import (
	"context"
	"fmt"

	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// BatchWriteRequest is a BatchPutRequest or a BatchDeleteRequest.
type BatchWriteRequest interface {
	entity() *Entity
	writeRequest() (types.WriteRequest, error)
}

// BatchPutRequest writes a complete item. Conditions are not available in
// batch writes.
type BatchPutRequest struct {
	Entity *Entity
	Item   Item
}

func (r BatchPutRequest) entity() *Entity { return r.Entity }

func (r BatchPutRequest) writeRequest() (types.WriteRequest, error) {
	stored, err := r.Entity.parseItem(r.Item)
	if err != nil {
		return types.WriteRequest{}, err
	}
	av, err := marshalItem(stored)
	if err != nil {
		return types.WriteRequest{}, err
	}
	return types.WriteRequest{PutRequest: &types.PutRequest{Item: av}}, nil
}

type BatchDeleteRequest struct {
	Entity *Entity
	Key    Item
}

func (r BatchDeleteRequest) entity() *Entity { return r.Entity }

func (r BatchDeleteRequest) writeRequest() (types.WriteRequest, error) {
	key, err := r.Entity.key(r.Key)
	if err != nil {
		return types.WriteRequest{}, err
	}
	return types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: key}}, nil
}

type BatchWriteOptions struct {
	TableName string `json:"tableName,omitempty"`
}

// BatchWriteCommand groups the writes of one table.
type BatchWriteCommand struct {
	Table    *Table
	Requests []BatchWriteRequest
	Options  BatchWriteOptions
}

type ExecuteBatchWriteOptions struct {
	Capacity Capacity `json:"capacity,omitempty"`
	Metrics  Metrics  `json:"metrics,omitempty"`
	// MaxAttempts bounds the requests sent while items stay unprocessed.
	// Defaults to 1.
	MaxAttempts    int            `json:"maxAttempts,omitempty"`
	DocumentClient DocumentClient `json:"-"`
}

type BatchWriteResponse struct {
	// UnprocessedItems holds the writes still pending after MaxAttempts.
	UnprocessedItems      map[string][]types.WriteRequest
	ConsumedCapacity      []types.ConsumedCapacity
	ItemCollectionMetrics map[string][]types.ItemCollectionMetrics
}

func (c BatchWriteCommand) writeRequests() (string, []types.WriteRequest, error) {
	if c.Table == nil {
		return "", nil, incomplete("BatchWriteCommand", "Missing table")
	}
	if len(c.Requests) == 0 {
		return "", nil, incomplete("BatchWriteCommand", "No BatchWriteRequest supplied")
	}
	out := make([]types.WriteRequest, 0, len(c.Requests))
	for j, r := range c.Requests {
		if r == nil || r.entity() == nil {
			return "", nil, incomplete("BatchWriteCommand", fmt.Sprintf("Missing entity in request %d", j))
		}
		if e := r.entity(); e.table != c.Table {
			return "", nil, NewError(CodeInvalidAction,
				fmt.Sprintf("BatchWriteCommand: entity %q belongs to table %q.", e.name, e.table.name))
		}
		wr, err := r.writeRequest()
		if err != nil {
			return "", nil, err
		}
		out = append(out, wr)
	}
	return tableNameOr(c.Table, c.Options.TableName), out, nil
}

func buildBatchWrite(opts ExecuteBatchWriteOptions, commands []BatchWriteCommand) (*ddb.BatchWriteItemInput, error) {
	if len(commands) == 0 {
		return nil, incomplete("batchWrite", "No BatchWriteCommand supplied")
	}
	capacity, err := opts.Capacity.param()
	if err != nil {
		return nil, err
	}
	metrics, err := opts.Metrics.param()
	if err != nil {
		return nil, err
	}
	if opts.MaxAttempts < 0 {
		return nil, invalidOption(CodeInvalidOptions, "maxAttempts", opts.MaxAttempts)
	}
	in := &ddb.BatchWriteItemInput{
		RequestItems:                map[string][]types.WriteRequest{},
		ReturnConsumedCapacity:      capacity,
		ReturnItemCollectionMetrics: metrics,
	}
	for _, c := range commands {
		name, reqs, err := c.writeRequests()
		if err != nil {
			return nil, err
		}
		if _, dup := in.RequestItems[name]; dup {
			return nil, NewError(CodeInvalidAction,
				fmt.Sprintf("batchWrite: table %q appears in several commands.", name))
		}
		in.RequestItems[name] = reqs
	}
	return in, nil
}

// BatchWriteParams builds the request without sending it.
func BatchWriteParams(opts *ExecuteBatchWriteOptions, commands ...BatchWriteCommand) (*ddb.BatchWriteItemInput, error) {
	if opts == nil {
		opts = &ExecuteBatchWriteOptions{}
	}
	return buildBatchWrite(*opts, commands)
}

// ExecuteBatchWrite sends every command in one BatchWriteItem call,
// retrying unprocessed items with exponential backoff up to MaxAttempts.
func ExecuteBatchWrite(ctx context.Context, opts *ExecuteBatchWriteOptions, commands ...BatchWriteCommand) (*BatchWriteResponse, error) {
	if opts == nil {
		opts = &ExecuteBatchWriteOptions{}
	}
	in, err := buildBatchWrite(*opts, commands)
	if err != nil {
		return nil, err
	}
	table := commands[0].Table
	client, err := resolveClient(opts.DocumentClient, table)
	if err != nil {
		return nil, err
	}
	attempts := opts.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	resp := &BatchWriteResponse{}
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := backoff(ctx, attempt-1); err != nil {
				return nil, err
			}
		}
		out, err := send(ctx, table, "batchWrite", "", in, client.BatchWriteItem)
		if err != nil {
			return nil, err
		}
		resp.ConsumedCapacity = append(resp.ConsumedCapacity, out.ConsumedCapacity...)
		if len(out.ItemCollectionMetrics) > 0 {
			if resp.ItemCollectionMetrics == nil {
				resp.ItemCollectionMetrics = map[string][]types.ItemCollectionMetrics{}
			}
			for name, m := range out.ItemCollectionMetrics {
				resp.ItemCollectionMetrics[name] = append(resp.ItemCollectionMetrics[name], m...)
			}
		}
		resp.UnprocessedItems = out.UnprocessedItems
		if len(out.UnprocessedItems) == 0 {
			resp.UnprocessedItems = nil
			break
		}
		in = &ddb.BatchWriteItemInput{
			RequestItems:                out.UnprocessedItems,
			ReturnConsumedCapacity:      in.ReturnConsumedCapacity,
			ReturnItemCollectionMetrics: in.ReturnItemCollectionMetrics,
		}
	}
	return resp, nil
}
