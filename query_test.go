package toolbox

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

func TestQuery_KeyCondition(t *testing.T) {
	f := newFixture(t)
	in, err := QueryCommand{
		Table:    f.table,
		Entities: []*Entity{f.entityA},
		Query:    Query{Partition: "a", Range: &RangeCondition{Op: RangeBeginsWith, Value: "x"}},
	}.Params()
	require.NoError(t, err)
	require.Equal(t, "test-table", aws.ToString(in.TableName))
	require.Equal(t, "#_0 = :_0 AND begins_with(#_1, :_1)", aws.ToString(in.KeyConditionExpression))
	require.Equal(t, "#_2 = :_2", aws.ToString(in.FilterExpression))
	require.Equal(t, map[string]string{"#_0": "pk", "#_1": "sk", "#_2": "_et"}, in.ExpressionAttributeNames)
	require.Equal(t, Item{":_0": "a", ":_1": "x", ":_2": "EntityA"}, plain(t, in.ExpressionAttributeValues))
	require.Nil(t, in.ScanIndexForward)
	require.Nil(t, in.Limit)
}

func TestQuery_RangeOperators(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		op   RangeOp
		want string
	}{
		{RangeEq, "#_0 = :_0 AND #_1 = :_1"},
		{RangeLt, "#_0 = :_0 AND #_1 < :_1"},
		{RangeLte, "#_0 = :_0 AND #_1 <= :_1"},
		{RangeGt, "#_0 = :_0 AND #_1 > :_1"},
		{RangeGte, "#_0 = :_0 AND #_1 >= :_1"},
	}
	for _, tc := range cases {
		t.Run(string(tc.op), func(t *testing.T) {
			in, err := QueryCommand{
				Table: f.table,
				Query: Query{Partition: "a", Range: &RangeCondition{Op: tc.op, Value: "m"}},
			}.Params()
			require.NoError(t, err)
			require.Equal(t, tc.want, aws.ToString(in.KeyConditionExpression))
		})
	}
}

func TestQuery_BetweenOnLocalIndex(t *testing.T) {
	f := newFixture(t)
	in, err := QueryCommand{
		Table: f.table,
		Query: Query{Index: "lsi1", Partition: "a", Range: &RangeCondition{Op: RangeBetween, Value: 1, Upper: 5}},
	}.Params()
	require.NoError(t, err)
	require.Equal(t, "lsi1", aws.ToString(in.IndexName))
	require.Equal(t, "#_0 = :_0 AND #_1 BETWEEN :_1 AND :_2", aws.ToString(in.KeyConditionExpression))
	require.Equal(t, map[string]string{"#_0": "pk", "#_1": "lsi1sk"}, in.ExpressionAttributeNames)
	require.Equal(t, &types.AttributeValueMemberN{Value: "1"}, in.ExpressionAttributeValues[":_1"])
	require.Equal(t, &types.AttributeValueMemberN{Value: "5"}, in.ExpressionAttributeValues[":_2"])
}

func TestQuery_GlobalIndexKeys(t *testing.T) {
	f := newFixture(t)
	in, err := QueryCommand{
		Table: f.table,
		Query: Query{Index: "gsi1", Partition: "g", Range: &RangeCondition{Op: RangeGt, Value: "2021"}},
	}.Params()
	require.NoError(t, err)
	require.Equal(t, map[string]string{"#_0": "gsi1pk", "#_1": "gsi1sk"}, in.ExpressionAttributeNames)
}

func TestQuery_InvalidKeyCondition(t *testing.T) {
	f := newFixture(t)
	noSort, err := NewTable(TableParams{Name: "flat", PartitionKey: Key{Name: "id"}})
	require.NoError(t, err)

	cases := []struct {
		name  string
		table *Table
		query Query
		code  ErrorCode
	}{
		{"missing partition", f.table, Query{}, CodeInvalidPartition},
		{"partition type", f.table, Query{Partition: 12}, CodeInvalidPartition},
		{"range type", f.table, Query{Partition: "a", Range: &RangeCondition{Op: RangeEq, Value: 3}}, CodeInvalidRange},
		{"missing range value", f.table, Query{Partition: "a", Range: &RangeCondition{Op: RangeEq}}, CodeInvalidRange},
		{"number begins with", f.table, Query{Index: "lsi1", Partition: "a", Range: &RangeCondition{Op: RangeBeginsWith, Value: 1}}, CodeInvalidRange},
		{"between without upper", f.table, Query{Partition: "a", Range: &RangeCondition{Op: RangeBetween, Value: "a"}}, CodeInvalidRange},
		{"unknown operator", f.table, Query{Partition: "a", Range: &RangeCondition{Op: "near", Value: "a"}}, CodeInvalidRange},
		{"no sort key", noSort, Query{Partition: "a", Range: &RangeCondition{Op: RangeEq, Value: "a"}}, CodeInvalidRange},
		{"unknown index", f.table, Query{Index: "nope", Partition: "a"}, CodeInvalidIndex},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := QueryCommand{Table: tc.table, Query: tc.query}.Params()
			requireCode(t, err, tc.code)
		})
	}
}

func TestQuery_ConsistentOnGlobalIndex(t *testing.T) {
	f := newFixture(t)
	_, err := QueryCommand{
		Table:   f.table,
		Query:   Query{Index: "gsi1", Partition: "g"},
		Options: QueryOptions{Consistent: true},
	}.Params()
	requireCode(t, err, CodeInvalidConsistent)
	require.True(t, errors.Is(err, ErrInvalidOption))
}

func TestQuery_ReverseAndLimit(t *testing.T) {
	f := newFixture(t)
	in, err := QueryCommand{
		Table:   f.table,
		Query:   Query{Partition: "a"},
		Options: QueryOptions{Reverse: true, Limit: 5, PageSize: 50, Consistent: true, Capacity: CapacityTotal},
	}.Params()
	require.NoError(t, err)
	require.False(t, aws.ToBool(in.ScanIndexForward))
	require.NotNil(t, in.ScanIndexForward)
	require.Equal(t, int32(5), aws.ToInt32(in.Limit))
	require.True(t, aws.ToBool(in.ConsistentRead))
	require.Equal(t, types.ReturnConsumedCapacityTotal, in.ReturnConsumedCapacity)
}

func TestQuery_KeepGoing(t *testing.T) {
	f := newFixture(t)
	cursor := map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: "a"}, "sk": &types.AttributeValueMemberS{Value: "a"}}
	f.client.queryOut = []*ddb.QueryOutput{
		{Items: av(t, savedItemA(true)), Count: 1, ScannedCount: 4, LastEvaluatedKey: cursor},
		{Items: av(t, savedItemA(true)), Count: 1, ScannedCount: 4, LastEvaluatedKey: cursor},
		{Items: av(t, savedItemA(true)), Count: 1, ScannedCount: 4},
	}

	resp, err := QueryCommand{
		Table:    f.table,
		Entities: []*Entity{f.entityA},
		Query:    Query{Partition: "a"},
		Options:  QueryOptions{Limit: 2, KeepGoing: true, PageSize: 10},
	}.Send(bg())
	require.NoError(t, err)
	require.Len(t, f.client.queryIn, 2)
	require.Equal(t, int32(10), aws.ToInt32(f.client.queryIn[0].Limit))
	require.Equal(t, cursor, f.client.queryIn[1].ExclusiveStartKey)
	require.Len(t, resp.Items, 2)
	require.Equal(t, int32(8), resp.ScannedCount)
	require.Equal(t, cursor, resp.LastEvaluatedKey)
}

func TestQuery_KeepGoingStopsAtLastPage(t *testing.T) {
	f := newFixture(t)
	cursor := map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: "a"}, "sk": &types.AttributeValueMemberS{Value: "a"}}
	f.client.queryOut = []*ddb.QueryOutput{
		{LastEvaluatedKey: cursor},
		{Items: av(t, savedItemA(true))},
	}

	resp, err := QueryCommand{
		Table:    f.table,
		Entities: []*Entity{f.entityA},
		Query:    Query{Partition: "a"},
		Options:  QueryOptions{Limit: 5, KeepGoing: true},
	}.Send(bg())
	require.NoError(t, err)
	require.Len(t, f.client.queryIn, 2)
	require.Equal(t, int32(5), aws.ToInt32(f.client.queryIn[0].Limit))
	require.Equal(t, []Item{formattedItemA()}, resp.Items)
	require.Nil(t, resp.LastEvaluatedKey)
}

func TestQuery_KeepGoingNeedsFilter(t *testing.T) {
	f := newFixture(t)
	cursor := map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: "a"}, "sk": &types.AttributeValueMemberS{Value: "a"}}
	f.client.queryOut = []*ddb.QueryOutput{{Items: av(t, savedItemA(true)), LastEvaluatedKey: cursor}}

	// Without entities there is no filter: DynamoDB already honours Limit.
	_, err := QueryCommand{
		Table:   f.table,
		Query:   Query{Partition: "a"},
		Options: QueryOptions{Limit: 5, KeepGoing: true, PageSize: 10},
	}.Send(bg())
	require.NoError(t, err)
	require.Len(t, f.client.queryIn, 1)
	require.Equal(t, int32(5), aws.ToInt32(f.client.queryIn[0].Limit))
}

func TestQuery_ResolvesEntities(t *testing.T) {
	f := newFixture(t)
	f.client.queryOut = []*ddb.QueryOutput{{Items: av(t, savedItemA(true), invalidItem(), savedItemB(true))}}

	_, err := QueryCommand{
		Table:    f.table,
		Entities: []*Entity{f.entityA, f.entityB},
		Query:    Query{Partition: "a"},
	}.Send(bg())
	requireCode(t, err, "queryCommand.noEntityMatched")

	resp, err := QueryCommand{
		Table:    f.table,
		Entities: []*Entity{f.entityA, f.entityB},
		Query:    Query{Partition: "a"},
		Options:  QueryOptions{NoEntityMatchBehavior: NoEntityMatchDiscard, TagEntities: true},
	}.Send(bg())
	require.NoError(t, err)
	require.Equal(t, []Item{formattedItemA(), formattedItemB()}, resp.Items)
	require.Equal(t, "EntityB", resp.Tagged[1].Entity)
}

func TestQuery_Incomplete(t *testing.T) {
	_, err := QueryCommand{Query: Query{Partition: "a"}}.Params()
	requireCode(t, err, CodeIncompleteAction)
	require.True(t, errors.Is(err, ErrIncompleteAction))

	f := newFixture(t)
	_, err = QueryCommand{Table: f.table, Query: Query{Partition: "a"}, Options: QueryOptions{PageSize: -1}}.Params()
	requireCode(t, err, CodeInvalidLimit)
}
