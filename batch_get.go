package toolbox

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// retryDelay is the first backoff delay of batch retries. It doubles on
// every attempt.
var retryDelay = 50 * time.Millisecond

func backoff(ctx context.Context, attempt int) error {
	t := time.NewTimer(retryDelay << attempt)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// BatchGetRequest reads one item of Entity.
type BatchGetRequest struct {
	Entity *Entity
	Key    Item
}

type BatchGetOptions struct {
	Consistent bool     `json:"consistent,omitempty"`
	Attributes []string `json:"attributes,omitempty"`
	TableName  string   `json:"tableName,omitempty"`
}

// BatchGetCommand groups the reads of one table.
type BatchGetCommand struct {
	Table    *Table
	Requests []BatchGetRequest
	Options  BatchGetOptions
}

type ExecuteBatchGetOptions struct {
	Capacity Capacity `json:"capacity,omitempty"`
	// MaxAttempts bounds the requests sent while keys stay unprocessed.
	// Defaults to 1.
	MaxAttempts    int            `json:"maxAttempts,omitempty"`
	DocumentClient DocumentClient `json:"-"`
}

type BatchGetResponse struct {
	// Responses[i][j] is the item of command i, request j, or nil when it
	// does not exist or stayed unprocessed.
	Responses        [][]Item
	UnprocessedKeys  map[string]types.KeysAndAttributes
	ConsumedCapacity []types.ConsumedCapacity
}

// batchGetSlot locates a request inside the batch.
type batchGetSlot struct {
	command, request int
	entity           *Entity
	attributes       []string
}

type batchGetPlan struct {
	in    *ddb.BatchGetItemInput
	slots map[string]map[string]batchGetSlot // table name → key fingerprint → slot
	keys  map[string][]string                // table name → key names
}

func (c BatchGetCommand) keysAndAttributes(index int) (string, types.KeysAndAttributes, map[string]batchGetSlot, error) {
	if c.Table == nil {
		return "", types.KeysAndAttributes{}, nil, incomplete("BatchGetCommand", "Missing table")
	}
	if len(c.Requests) == 0 {
		return "", types.KeysAndAttributes{}, nil, incomplete("BatchGetCommand", "No BatchGetRequest supplied")
	}
	var entities []*Entity
	seen := map[*Entity]bool{}
	slots := map[string]batchGetSlot{}
	ka := types.KeysAndAttributes{}
	for j, r := range c.Requests {
		if r.Entity == nil {
			return "", ka, nil, incomplete("BatchGetCommand", fmt.Sprintf("Missing entity in request %d", j))
		}
		if r.Entity.table != c.Table {
			return "", ka, nil, NewError(CodeInvalidAction,
				fmt.Sprintf("BatchGetCommand: entity %q belongs to table %q.", r.Entity.name, r.Entity.table.name))
		}
		key, err := r.Entity.key(r.Key)
		if err != nil {
			return "", ka, nil, err
		}
		fp := keyFingerprint(key, c.Table.primaryKeyNames())
		if _, dup := slots[fp]; dup {
			return "", ka, nil, NewError(CodeInvalidAction, "BatchGetCommand: duplicate key.",
				WithContext(map[string]any{"key": r.Key}))
		}
		slots[fp] = batchGetSlot{command: index, request: j, entity: r.Entity, attributes: c.Options.Attributes}
		ka.Keys = append(ka.Keys, key)
		if !seen[r.Entity] {
			seen[r.Entity] = true
			entities = append(entities, r.Entity)
		}
	}
	if c.Options.Consistent {
		ka.ConsistentRead = aws.Bool(true)
	}
	if err := checkAttributes(c.Options.Attributes); err != nil {
		return "", ka, nil, err
	}
	if c.Options.Attributes != nil {
		x := newExpression()
		if err := (readPlan{table: c.Table, entities: entities, attributes: c.Options.Attributes}).project(x); err != nil {
			return "", ka, nil, err
		}
		// Keys are projected to match responses to requests.
		for _, name := range c.Table.primaryKeyNames() {
			x.addProjection([]pathSegment{{name: name}})
		}
		ka.ProjectionExpression = x.projection()
		ka.ExpressionAttributeNames = x.attributeNames()
	}
	return tableNameOr(c.Table, c.Options.TableName), ka, slots, nil
}

func buildBatchGet(opts ExecuteBatchGetOptions, commands []BatchGetCommand) (*batchGetPlan, error) {
	if len(commands) == 0 {
		return nil, incomplete("batchGet", "No BatchGetCommand supplied")
	}
	capacity, err := opts.Capacity.param()
	if err != nil {
		return nil, err
	}
	if opts.MaxAttempts < 0 {
		return nil, invalidOption(CodeInvalidOptions, "maxAttempts", opts.MaxAttempts)
	}
	p := &batchGetPlan{
		in: &ddb.BatchGetItemInput{
			RequestItems:           map[string]types.KeysAndAttributes{},
			ReturnConsumedCapacity: capacity,
		},
		slots: map[string]map[string]batchGetSlot{},
		keys:  map[string][]string{},
	}
	for i, c := range commands {
		name, ka, slots, err := c.keysAndAttributes(i)
		if err != nil {
			return nil, err
		}
		if _, dup := p.in.RequestItems[name]; dup {
			return nil, NewError(CodeInvalidAction,
				fmt.Sprintf("batchGet: table %q appears in several commands.", name))
		}
		p.in.RequestItems[name] = ka
		p.slots[name] = slots
		p.keys[name] = c.Table.primaryKeyNames()
	}
	return p, nil
}

// BatchGetParams builds the request without sending it.
func BatchGetParams(opts *ExecuteBatchGetOptions, commands ...BatchGetCommand) (*ddb.BatchGetItemInput, error) {
	if opts == nil {
		opts = &ExecuteBatchGetOptions{}
	}
	p, err := buildBatchGet(*opts, commands)
	if err != nil {
		return nil, err
	}
	return p.in, nil
}

// ExecuteBatchGet reads the items of every command in one BatchGetItem call,
// retrying unprocessed keys with exponential backoff up to MaxAttempts.
func ExecuteBatchGet(ctx context.Context, opts *ExecuteBatchGetOptions, commands ...BatchGetCommand) (*BatchGetResponse, error) {
	if opts == nil {
		opts = &ExecuteBatchGetOptions{}
	}
	p, err := buildBatchGet(*opts, commands)
	if err != nil {
		return nil, err
	}
	table := commands[0].Table
	client, err := resolveClient(opts.DocumentClient, table)
	if err != nil {
		return nil, err
	}

	resp := &BatchGetResponse{Responses: make([][]Item, len(commands))}
	for i, c := range commands {
		resp.Responses[i] = make([]Item, len(c.Requests))
	}
	attempts := opts.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	in := p.in
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := backoff(ctx, attempt-1); err != nil {
				return nil, err
			}
		}
		out, err := send(ctx, table, "batchGet", "", in, client.BatchGetItem)
		if err != nil {
			return nil, err
		}
		resp.ConsumedCapacity = append(resp.ConsumedCapacity, out.ConsumedCapacity...)
		for name, avs := range out.Responses {
			for _, av := range avs {
				slot, ok := p.slots[name][keyFingerprint(av, p.keys[name])]
				if !ok {
					continue
				}
				raw, err := unmarshalItem(av)
				if err != nil {
					return nil, err
				}
				item, err := slot.entity.Format(raw, FormatOptions{Attributes: slot.attributes})
				if err != nil {
					return nil, err
				}
				resp.Responses[slot.command][slot.request] = item
			}
		}
		resp.UnprocessedKeys = out.UnprocessedKeys
		if len(out.UnprocessedKeys) == 0 {
			break
		}
		in = &ddb.BatchGetItemInput{
			RequestItems:           out.UnprocessedKeys,
			ReturnConsumedCapacity: p.in.ReturnConsumedCapacity,
		}
	}
	if len(resp.UnprocessedKeys) == 0 {
		resp.UnprocessedKeys = nil
	}
	return resp, nil
}
