package toolbox

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// WriteTransaction is one write of a TransactWriteItems call: a
// PutTransaction, UpdateTransaction, DeleteTransaction or ConditionCheck.
type WriteTransaction interface {
	entity() *Entity
	transactItem() (types.TransactWriteItem, error)
}

type WriteTransactionOptions struct {
	Condition *Condition `json:"condition,omitempty"`
	TableName string     `json:"tableName,omitempty"`
}

// conditionParts renders a lone condition expression.
func conditionParts(cond *Condition, s *Schema) (*string, map[string]string, map[string]types.AttributeValue, error) {
	x := newExpression()
	if err := addCondition(x, cond, s); err != nil {
		return nil, nil, nil, err
	}
	values, err := x.attributeValues()
	if err != nil {
		return nil, nil, nil, err
	}
	return x.conditionExpression(), x.attributeNames(), values, nil
}

type PutTransaction struct {
	Entity  *Entity
	Item    Item
	Options WriteTransactionOptions
}

func (t PutTransaction) entity() *Entity { return t.Entity }

func (t PutTransaction) transactItem() (types.TransactWriteItem, error) {
	if t.Item == nil {
		return types.TransactWriteItem{}, incomplete("PutTransaction", "Missing item")
	}
	stored, err := t.Entity.parseItem(t.Item)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	av, err := marshalItem(stored)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	cond, names, values, err := conditionParts(t.Options.Condition, t.Entity.schema)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{Put: &types.Put{
		TableName:                 aws.String(tableNameOr(t.Entity.table, t.Options.TableName)),
		Item:                      av,
		ConditionExpression:       cond,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}}, nil
}

type UpdateTransaction struct {
	Entity  *Entity
	Item    Item
	Options WriteTransactionOptions
}

func (t UpdateTransaction) entity() *Entity { return t.Entity }

func (t UpdateTransaction) transactItem() (types.TransactWriteItem, error) {
	if t.Item == nil {
		return types.TransactWriteItem{}, incomplete("UpdateTransaction", "Missing item")
	}
	p, err := t.Entity.buildUpdate(t.Item, t.Options.Condition)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{Update: &types.Update{
		TableName:                 aws.String(tableNameOr(t.Entity.table, t.Options.TableName)),
		Key:                       p.key,
		UpdateExpression:          p.update,
		ConditionExpression:       p.cond,
		ExpressionAttributeNames:  p.names,
		ExpressionAttributeValues: p.values,
	}}, nil
}

type DeleteTransaction struct {
	Entity  *Entity
	Key     Item
	Options WriteTransactionOptions
}

func (t DeleteTransaction) entity() *Entity { return t.Entity }

func (t DeleteTransaction) transactItem() (types.TransactWriteItem, error) {
	if t.Key == nil {
		return types.TransactWriteItem{}, incomplete("DeleteTransaction", "Missing key")
	}
	key, err := t.Entity.key(t.Key)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	cond, names, values, err := conditionParts(t.Options.Condition, t.Entity.schema)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{Delete: &types.Delete{
		TableName:                 aws.String(tableNameOr(t.Entity.table, t.Options.TableName)),
		Key:                       key,
		ConditionExpression:       cond,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}}, nil
}

// ConditionCheck fails the transaction unless Condition holds on the item.
type ConditionCheck struct {
	Entity    *Entity
	Key       Item
	Condition *Condition
	TableName string
}

func (t ConditionCheck) entity() *Entity { return t.Entity }

func (t ConditionCheck) transactItem() (types.TransactWriteItem, error) {
	if t.Key == nil {
		return types.TransactWriteItem{}, incomplete("ConditionCheck", "Missing key")
	}
	if t.Condition == nil {
		return types.TransactWriteItem{}, incomplete("ConditionCheck", "Missing condition")
	}
	key, err := t.Entity.key(t.Key)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	cond, names, values, err := conditionParts(t.Condition, t.Entity.schema)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{ConditionCheck: &types.ConditionCheck{
		TableName:                 aws.String(tableNameOr(t.Entity.table, t.TableName)),
		Key:                       key,
		ConditionExpression:       cond,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}}, nil
}

type TransactWriteOptions struct {
	Capacity Capacity `json:"capacity,omitempty"`
	Metrics  Metrics  `json:"metrics,omitempty"`
	// ClientRequestToken makes the call idempotent. A random UUID is used
	// when empty.
	ClientRequestToken string         `json:"clientRequestToken,omitempty"`
	DocumentClient     DocumentClient `json:"-"`
}

type TransactWriteResponse struct {
	ConsumedCapacity      []types.ConsumedCapacity
	ItemCollectionMetrics map[string][]types.ItemCollectionMetrics
}

// TransactWriteParams builds the request without sending it.
func TransactWriteParams(opts *TransactWriteOptions, txs ...WriteTransaction) (*ddb.TransactWriteItemsInput, error) {
	if opts == nil {
		opts = &TransactWriteOptions{}
	}
	if len(txs) == 0 {
		return nil, incomplete("transactWrite", "No WriteTransaction supplied")
	}
	capacity, err := opts.Capacity.param()
	if err != nil {
		return nil, err
	}
	metrics, err := opts.Metrics.param()
	if err != nil {
		return nil, err
	}
	token := opts.ClientRequestToken
	if token == "" {
		token = uuid.NewString()
	}
	in := &ddb.TransactWriteItemsInput{
		TransactItems:               make([]types.TransactWriteItem, 0, len(txs)),
		ClientRequestToken:          aws.String(token),
		ReturnConsumedCapacity:      capacity,
		ReturnItemCollectionMetrics: metrics,
	}
	for i, tx := range txs {
		if tx == nil || tx.entity() == nil {
			return nil, incomplete("transactWrite", fmt.Sprintf("Missing entity in transaction %d", i))
		}
		item, err := tx.transactItem()
		if err != nil {
			return nil, err
		}
		in.TransactItems = append(in.TransactItems, item)
	}
	return in, nil
}

// ExecuteTransactWrite applies every transaction atomically. A failed
// condition cancels the whole call with actions.transactionCanceled.
func ExecuteTransactWrite(ctx context.Context, opts *TransactWriteOptions, txs ...WriteTransaction) (*TransactWriteResponse, error) {
	if opts == nil {
		opts = &TransactWriteOptions{}
	}
	in, err := TransactWriteParams(opts, txs...)
	if err != nil {
		return nil, err
	}
	table := txs[0].entity().table
	client, err := resolveClient(opts.DocumentClient, table)
	if err != nil {
		return nil, err
	}
	out, err := send(ctx, table, "transactWrite", "", in, client.TransactWriteItems)
	if err != nil {
		return nil, err
	}
	return &TransactWriteResponse{
		ConsumedCapacity:      out.ConsumedCapacity,
		ItemCollectionMetrics: out.ItemCollectionMetrics,
	}, nil
}
