package toolbox

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

func TestScan_UsesDiscriminatorWithoutFilter(t *testing.T) {
	f := newFixture(t)
	f.client.scanOut = []*ddb.ScanOutput{{Items: av(t, savedItemA(true), savedItemB(true))}}

	resp, err := ScanCommand{
		Table:    f.table,
		Entities: []*Entity{f.entityA, f.entityB},
		Options:  ScanOptions{EntityAttrFilter: boolPtr(false)},
	}.Send(bg())
	require.NoError(t, err)
	require.Equal(t, []Item{formattedItemA(), formattedItemB()}, resp.Items)
	require.Nil(t, f.client.scanIn[0].FilterExpression)
}

func TestScan_ShowEntityAttr(t *testing.T) {
	f := newFixture(t)
	f.client.scanOut = []*ddb.ScanOutput{{Items: av(t, savedItemA(true), savedItemB(true))}}

	resp, err := ScanCommand{
		Table:    f.table,
		Entities: []*Entity{f.entityA, f.entityB},
		Options:  ScanOptions{EntityAttrFilter: boolPtr(false), ShowEntityAttr: true},
	}.Send(bg())
	require.NoError(t, err)

	wantA := formattedItemA()
	wantA["entity"] = "EntityA"
	wantB := formattedItemB()
	wantB["entity"] = "EntityB"
	require.Equal(t, []Item{wantA, wantB}, resp.Items)
}

func TestScan_ThrowsOnUnmatchedRecord(t *testing.T) {
	f := newFixture(t)
	f.client.scanOut = []*ddb.ScanOutput{{Items: av(t, savedItemA(false), savedItemB(false), invalidItem())}}

	_, err := ScanCommand{
		Table:    f.table,
		Entities: []*Entity{f.entityA, f.entityB},
		Options:  ScanOptions{EntityAttrFilter: boolPtr(false)},
	}.Send(bg())
	requireCode(t, err, "scanCommand.noEntityMatched")
	require.True(t, errors.Is(err, ErrNoEntityMatched))
}

func TestScan_DiscardsUnmatchedRecord(t *testing.T) {
	f := newFixture(t)
	f.client.scanOut = []*ddb.ScanOutput{{Items: av(t, savedItemA(false), savedItemB(false), invalidItem())}}

	resp, err := ScanCommand{
		Table:    f.table,
		Entities: []*Entity{f.entityA, f.entityB},
		Options:  ScanOptions{EntityAttrFilter: boolPtr(false), NoEntityMatchBehavior: NoEntityMatchDiscard},
	}.Send(bg())
	require.NoError(t, err)
	require.Equal(t, []Item{formattedItemA(), formattedItemB()}, resp.Items)
}

func TestScan_TagEntities(t *testing.T) {
	f := newFixture(t)
	f.client.scanOut = []*ddb.ScanOutput{{Items: av(t, savedItemB(true), savedItemA(true))}}

	resp, err := ScanCommand{
		Table:    f.table,
		Entities: []*Entity{f.entityA, f.entityB},
		Options:  ScanOptions{TagEntities: true},
	}.Send(bg())
	require.NoError(t, err)
	require.Equal(t, []TaggedItem{
		{Entity: "EntityB", Item: formattedItemB()},
		{Entity: "EntityA", Item: formattedItemA()},
	}, resp.Tagged)
}

func TestScan_EntityFilter(t *testing.T) {
	f := newFixture(t)
	in, err := ScanCommand{
		Table:    f.table,
		Entities: []*Entity{f.entityA, f.entityB},
		Options: ScanOptions{
			Filters: map[string]*Condition{
				"EntityB": {Expression: "#a > :min", Names: map[string]string{"#a": "age"}, Values: map[string]any{":min": 18}},
			},
			Filter: &Condition{Expression: "attribute_exists(#c)", Names: map[string]string{"#c": "commonAttribute"}},
		},
	}.Params()
	require.NoError(t, err)
	require.Equal(t, "((#_0 = :_0) OR ((#_0 = :_1) AND (#_1 > :_2))) AND (attribute_exists(#_2))", aws.ToString(in.FilterExpression))
	require.Equal(t, map[string]string{"#_0": "_et", "#_1": "age", "#_2": "commonAttribute"}, in.ExpressionAttributeNames)
	require.Equal(t, &types.AttributeValueMemberS{Value: "EntityA"}, in.ExpressionAttributeValues[":_0"])
	require.Equal(t, &types.AttributeValueMemberS{Value: "EntityB"}, in.ExpressionAttributeValues[":_1"])
	require.Equal(t, &types.AttributeValueMemberN{Value: "18"}, in.ExpressionAttributeValues[":_2"])
}

func TestScan_ProjectionUnion(t *testing.T) {
	f := newFixture(t)
	in, err := ScanCommand{
		Table:    f.table,
		Entities: []*Entity{f.entityA, f.entityB},
		Options:  ScanOptions{Attributes: []string{"name", "age"}, EntityAttrFilter: boolPtr(false)},
	}.Params()
	require.NoError(t, err)
	require.Equal(t, "#_0, #_1, #_2", aws.ToString(in.ProjectionExpression))
	require.Equal(t, map[string]string{"#_0": "name", "#_1": "age", "#_2": "_et"}, in.ExpressionAttributeNames)
	require.Equal(t, types.SelectSpecificAttributes, in.Select)

	_, err = ScanCommand{
		Table:    f.table,
		Entities: []*Entity{f.entityA, f.entityB},
		Options:  ScanOptions{Attributes: []string{"unknown"}},
	}.Params()
	requireCode(t, err, CodeInvalidPath)
}

func TestScan_OptionChecks(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		opts ScanOptions
		code ErrorCode
	}{
		{"consistent on global index", ScanOptions{IndexName: "gsi1", Consistent: true}, CodeInvalidConsistent},
		{"unknown index", ScanOptions{IndexName: "nope"}, CodeInvalidIndex},
		{"projected without index", ScanOptions{Select: SelectAllProjectedAttributes}, CodeInvalidSelect},
		{"select with attributes", ScanOptions{Select: SelectCount, Attributes: []string{"name"}}, CodeInvalidSelect},
		{"empty attributes", ScanOptions{Attributes: []string{}}, CodeInvalidSelect},
		{"bad select", ScanOptions{Select: "SOME"}, CodeInvalidSelect},
		{"bad capacity", ScanOptions{Capacity: "ALL"}, CodeInvalidCapacity},
		{"negative limit", ScanOptions{Limit: -1}, CodeInvalidLimit},
		{"negative max pages", ScanOptions{MaxPages: -2}, CodeInvalidMaxPages},
		{"bad no match behavior", ScanOptions{NoEntityMatchBehavior: "IGNORE"}, CodeInvalidNoMatch},
		{"segment without total", ScanOptions{Segment: aws.Int32(1)}, CodeInvalidSegment},
		{"segment out of range", ScanOptions{Segment: aws.Int32(3), TotalSegments: 3}, CodeInvalidSegment},
		{"filter for unknown entity", ScanOptions{Filters: map[string]*Condition{"Other": {Expression: "x"}}}, CodeInvalidOptions},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ScanCommand{Table: f.table, Entities: []*Entity{f.entityA}, Options: tc.opts}.Params()
			requireCode(t, err, tc.code)
			require.True(t, errors.Is(err, ErrInvalidOption))
		})
	}

	in, err := ScanCommand{Table: f.table, Options: ScanOptions{IndexName: "lsi1", Consistent: true}}.Params()
	require.NoError(t, err)
	require.True(t, aws.ToBool(in.ConsistentRead))
	require.Equal(t, "lsi1", aws.ToString(in.IndexName))
}

func TestScan_Segments(t *testing.T) {
	f := newFixture(t)
	in, err := ScanCommand{Table: f.table, Options: ScanOptions{Segment: aws.Int32(0), TotalSegments: 4}}.Params()
	require.NoError(t, err)
	require.Equal(t, int32(0), aws.ToInt32(in.Segment))
	require.Equal(t, int32(4), aws.ToInt32(in.TotalSegments))
}

func TestScan_Pages(t *testing.T) {
	f := newFixture(t)
	cursor := map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: "a"}, "sk": &types.AttributeValueMemberS{Value: "a"}}
	f.client.scanOut = []*ddb.ScanOutput{
		{Items: av(t, savedItemA(true)), Count: 1, ScannedCount: 2, LastEvaluatedKey: cursor},
		{Items: av(t, savedItemB(true)), Count: 1, ScannedCount: 1},
	}

	resp, err := ScanCommand{
		Table:    f.table,
		Entities: []*Entity{f.entityA, f.entityB},
		Options:  ScanOptions{MaxPages: 3, Limit: 1},
	}.Send(bg())
	require.NoError(t, err)
	require.Len(t, f.client.scanIn, 2)
	require.Nil(t, f.client.scanIn[0].ExclusiveStartKey)
	require.Equal(t, cursor, f.client.scanIn[1].ExclusiveStartKey)
	require.Equal(t, int32(1), aws.ToInt32(f.client.scanIn[1].Limit))
	require.Equal(t, []Item{formattedItemA(), formattedItemB()}, resp.Items)
	require.Equal(t, int32(2), resp.Count)
	require.Equal(t, int32(3), resp.ScannedCount)
	require.Nil(t, resp.LastEvaluatedKey)
}

func TestScan_DefaultsToOnePage(t *testing.T) {
	f := newFixture(t)
	cursor := map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: "a"}, "sk": &types.AttributeValueMemberS{Value: "a"}}
	f.client.scanOut = []*ddb.ScanOutput{{Items: av(t, savedItemA(true)), LastEvaluatedKey: cursor}}

	resp, err := ScanCommand{Table: f.table, Entities: []*Entity{f.entityA}}.Send(bg())
	require.NoError(t, err)
	require.Len(t, f.client.scanIn, 1)
	require.Equal(t, cursor, resp.LastEvaluatedKey)
}

func TestScan_RawItemsWithoutEntities(t *testing.T) {
	f := newFixture(t)
	f.client.scanOut = []*ddb.ScanOutput{{Items: av(t, invalidItem())}}

	resp, err := ScanCommand{Table: f.table}.Send(bg())
	require.NoError(t, err)
	require.Equal(t, []Item{invalidItem()}, resp.Items)
}

func TestScan_MissingClient(t *testing.T) {
	table, err := NewTable(TableParams{Name: "t", PartitionKey: Key{Name: "pk"}})
	require.NoError(t, err)
	_, err = ScanCommand{Table: table}.Send(bg())
	requireCode(t, err, CodeMissingClient)

	client := &fakeClient{}
	_, err = ScanCommand{Table: table, Options: ScanOptions{DocumentClient: client}}.Send(bg())
	require.NoError(t, err)
	require.Len(t, client.scanIn, 1)
	require.Equal(t, "t", aws.ToString(client.scanIn[0].TableName))
}

func TestScan_RequestError(t *testing.T) {
	f := newFixture(t)
	f.client.err = errors.New("boom")
	_, err := ScanCommand{Table: f.table}.Send(bg())
	requireCode(t, err, CodeRequestFailed)
	require.True(t, errors.Is(err, ErrRequestFailed))
}

func TestScan_EntityOfOtherTable(t *testing.T) {
	f := newFixture(t)
	other, err := NewTable(TableParams{Name: "other", PartitionKey: Key{Name: "pk"}, SortKey: &Key{Name: "sk"}})
	require.NoError(t, err)
	_, err = ScanCommand{Table: other, Entities: []*Entity{f.entityA}}.Params()
	requireCode(t, err, CodeInvalidAction)
}
