package toolbox

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

// fakeClient records every input and answers with canned outputs. Paged
// operations return their outputs in order, repeating the last one.
type fakeClient struct {
	err error

	getIn  []*ddb.GetItemInput
	getOut *ddb.GetItemOutput

	putIn  []*ddb.PutItemInput
	putOut *ddb.PutItemOutput

	updateIn  []*ddb.UpdateItemInput
	updateOut *ddb.UpdateItemOutput

	deleteIn  []*ddb.DeleteItemInput
	deleteOut *ddb.DeleteItemOutput

	scanIn  []*ddb.ScanInput
	scanOut []*ddb.ScanOutput

	queryIn  []*ddb.QueryInput
	queryOut []*ddb.QueryOutput

	batchGetIn  []*ddb.BatchGetItemInput
	batchGetOut []*ddb.BatchGetItemOutput

	batchWriteIn  []*ddb.BatchWriteItemInput
	batchWriteOut []*ddb.BatchWriteItemOutput

	transactGetIn  []*ddb.TransactGetItemsInput
	transactGetOut *ddb.TransactGetItemsOutput

	transactWriteIn []*ddb.TransactWriteItemsInput
}

func nth[T any](outs []*T, i int) *T {
	if len(outs) == 0 {
		return new(T)
	}
	if i >= len(outs) {
		return outs[len(outs)-1]
	}
	return outs[i]
}

func orEmpty[T any](out *T) *T {
	if out == nil {
		return new(T)
	}
	return out
}

func (f *fakeClient) GetItem(_ context.Context, in *ddb.GetItemInput, _ ...func(*ddb.Options)) (*ddb.GetItemOutput, error) {
	f.getIn = append(f.getIn, in)
	if f.err != nil {
		return nil, f.err
	}
	return orEmpty(f.getOut), nil
}

func (f *fakeClient) PutItem(_ context.Context, in *ddb.PutItemInput, _ ...func(*ddb.Options)) (*ddb.PutItemOutput, error) {
	f.putIn = append(f.putIn, in)
	if f.err != nil {
		return nil, f.err
	}
	return orEmpty(f.putOut), nil
}

func (f *fakeClient) UpdateItem(_ context.Context, in *ddb.UpdateItemInput, _ ...func(*ddb.Options)) (*ddb.UpdateItemOutput, error) {
	f.updateIn = append(f.updateIn, in)
	if f.err != nil {
		return nil, f.err
	}
	return orEmpty(f.updateOut), nil
}

func (f *fakeClient) DeleteItem(_ context.Context, in *ddb.DeleteItemInput, _ ...func(*ddb.Options)) (*ddb.DeleteItemOutput, error) {
	f.deleteIn = append(f.deleteIn, in)
	if f.err != nil {
		return nil, f.err
	}
	return orEmpty(f.deleteOut), nil
}

func (f *fakeClient) Scan(_ context.Context, in *ddb.ScanInput, _ ...func(*ddb.Options)) (*ddb.ScanOutput, error) {
	f.scanIn = append(f.scanIn, in)
	if f.err != nil {
		return nil, f.err
	}
	return nth(f.scanOut, len(f.scanIn)-1), nil
}

func (f *fakeClient) Query(_ context.Context, in *ddb.QueryInput, _ ...func(*ddb.Options)) (*ddb.QueryOutput, error) {
	f.queryIn = append(f.queryIn, in)
	if f.err != nil {
		return nil, f.err
	}
	return nth(f.queryOut, len(f.queryIn)-1), nil
}

func (f *fakeClient) BatchGetItem(_ context.Context, in *ddb.BatchGetItemInput, _ ...func(*ddb.Options)) (*ddb.BatchGetItemOutput, error) {
	f.batchGetIn = append(f.batchGetIn, in)
	if f.err != nil {
		return nil, f.err
	}
	return nth(f.batchGetOut, len(f.batchGetIn)-1), nil
}

func (f *fakeClient) BatchWriteItem(_ context.Context, in *ddb.BatchWriteItemInput, _ ...func(*ddb.Options)) (*ddb.BatchWriteItemOutput, error) {
	f.batchWriteIn = append(f.batchWriteIn, in)
	if f.err != nil {
		return nil, f.err
	}
	return nth(f.batchWriteOut, len(f.batchWriteIn)-1), nil
}

func (f *fakeClient) TransactGetItems(_ context.Context, in *ddb.TransactGetItemsInput, _ ...func(*ddb.Options)) (*ddb.TransactGetItemsOutput, error) {
	f.transactGetIn = append(f.transactGetIn, in)
	if f.err != nil {
		return nil, f.err
	}
	return orEmpty(f.transactGetOut), nil
}

func (f *fakeClient) TransactWriteItems(_ context.Context, in *ddb.TransactWriteItemsInput, _ ...func(*ddb.Options)) (*ddb.TransactWriteItemsOutput, error) {
	f.transactWriteIn = append(f.transactWriteIn, in)
	if f.err != nil {
		return nil, f.err
	}
	return &ddb.TransactWriteItemsOutput{}, nil
}

// ─── fixtures ────────────────────────────────────────────────────────────────

var fixedNow = time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC)

const fixedStamp = "2021-09-01T00:00:00.000Z"

func fixedClock() time.Time { return fixedNow }

type fixture struct {
	client  *fakeClient
	table   *Table
	entityA *Entity
	entityB *Entity
}

// newFixture builds a pk/sk table shared by EntityA (name) and EntityB (age).
func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := &fakeClient{}
	indexes := map[string]Index{
		"gsi1": {Type: IndexGlobal, PartitionKey: &Key{Name: "gsi1pk", Type: KeyString}, SortKey: &Key{Name: "gsi1sk", Type: KeyString}},
		"lsi1": {Type: IndexLocal, SortKey: &Key{Name: "lsi1sk", Type: KeyNumber}},
	}
	table, err := NewTable(TableParams{
		Name:           "test-table",
		PartitionKey:   Key{Name: "pk", Type: KeyString},
		SortKey:        &Key{Name: "sk", Type: KeyString},
		Indexes:        indexes,
		DocumentClient: client,
	})
	require.NoError(t, err)

	entityA, err := NewEntity(EntityParams{
		Name:  "EntityA",
		Table: table,
		Schema: Map(Attrs{
			"pkA":             String().MarkKey().StoredAs("pk"),
			"skA":             String().MarkKey().StoredAs("sk"),
			"commonAttribute": String(),
			"name":            String(),
		}),
		Now: fixedClock,
	})
	require.NoError(t, err)

	entityB, err := NewEntity(EntityParams{
		Name:  "EntityB",
		Table: table,
		Schema: Map(Attrs{
			"pkB":             String().MarkKey().StoredAs("pk"),
			"skB":             String().MarkKey().StoredAs("sk"),
			"commonAttribute": String(),
			"age":             Number(),
		}),
		Now: fixedClock,
	})
	require.NoError(t, err)

	return &fixture{client: client, table: table, entityA: entityA, entityB: entityB}
}

func savedItemA(withEntity bool) Item {
	item := Item{"_ct": fixedStamp, "_md": fixedStamp, "pk": "a", "sk": "a", "name": "foo", "commonAttribute": "bar"}
	if withEntity {
		item["_et"] = "EntityA"
	}
	return item
}

func formattedItemA() Item {
	return Item{"created": fixedStamp, "modified": fixedStamp, "pkA": "a", "skA": "a", "name": "foo", "commonAttribute": "bar"}
}

func savedItemB(withEntity bool) Item {
	item := Item{"_ct": fixedStamp, "_md": fixedStamp, "pk": "b", "sk": "b", "age": float64(42), "commonAttribute": "bar"}
	if withEntity {
		item["_et"] = "EntityB"
	}
	return item
}

func formattedItemB() Item {
	return Item{"created": fixedStamp, "modified": fixedStamp, "pkB": "b", "skB": "b", "age": float64(42), "commonAttribute": "bar"}
}

func invalidItem() Item {
	return Item{"pk": "c", "sk": "c"}
}

// av marshals plain items the way DynamoDB returns them.
func av(t *testing.T, items ...Item) []map[string]types.AttributeValue {
	t.Helper()
	out := make([]map[string]types.AttributeValue, len(items))
	for i, item := range items {
		m, err := attributevalue.MarshalMap(item)
		require.NoError(t, err)
		out[i] = m
	}
	return out
}

// plain unmarshals an attribute map for assertions.
func plain(t *testing.T, m map[string]types.AttributeValue) Item {
	t.Helper()
	var item Item
	require.NoError(t, attributevalue.UnmarshalMap(m, &item))
	return item
}

func requireCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, CodeOf(err), "error: %v", err)
}

func bg() context.Context { return context.Background() }

func boolPtr(b bool) *bool { return &b }
