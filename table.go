/*
Package toolbox – table.

A Table names the physical coordinates shared by every entity stored in it:
primary key, secondary indexes and the discriminator attribute. It also holds
the default transport client.
*/
package toolbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is a decoded DynamoDB item, raw or formatted.
type Item = map[string]any

// DocumentClient is the data-plane subset of *dynamodb.Client used by the
// commands. Test doubles implement it too.
type DocumentClient interface {
	GetItem(ctx context.Context, params *ddb.GetItemInput, optFns ...func(*ddb.Options)) (*ddb.GetItemOutput, error)
	PutItem(ctx context.Context, params *ddb.PutItemInput, optFns ...func(*ddb.Options)) (*ddb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *ddb.DeleteItemInput, optFns ...func(*ddb.Options)) (*ddb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *ddb.UpdateItemInput, optFns ...func(*ddb.Options)) (*ddb.UpdateItemOutput, error)
	Query(ctx context.Context, params *ddb.QueryInput, optFns ...func(*ddb.Options)) (*ddb.QueryOutput, error)
	Scan(ctx context.Context, params *ddb.ScanInput, optFns ...func(*ddb.Options)) (*ddb.ScanOutput, error)

	BatchGetItem(ctx context.Context, params *ddb.BatchGetItemInput, optFns ...func(*ddb.Options)) (*ddb.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, params *ddb.BatchWriteItemInput, optFns ...func(*ddb.Options)) (*ddb.BatchWriteItemOutput, error)

	TransactGetItems(ctx context.Context, params *ddb.TransactGetItemsInput, optFns ...func(*ddb.Options)) (*ddb.TransactGetItemsOutput, error)
	TransactWriteItems(ctx context.Context, params *ddb.TransactWriteItemsInput, optFns ...func(*ddb.Options)) (*ddb.TransactWriteItemsOutput, error)
}

// Admin is the control-plane subset used by Table.Create.
type Admin interface {
	CreateTable(ctx context.Context, params *ddb.CreateTableInput, optFns ...func(*ddb.Options)) (*ddb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *ddb.DescribeTableInput, optFns ...func(*ddb.Options)) (*ddb.DescribeTableOutput, error)
}

// KeyType is the scalar type of a key attribute.
type KeyType string

const (
	KeyString KeyType = "string"
	KeyNumber KeyType = "number"
	KeyBinary KeyType = "binary"
)

func (k KeyType) scalar() (types.ScalarAttributeType, bool) {
	switch k {
	case KeyString:
		return types.ScalarAttributeTypeS, true
	case KeyNumber:
		return types.ScalarAttributeTypeN, true
	case KeyBinary:
		return types.ScalarAttributeTypeB, true
	}
	return "", false
}

func (k KeyType) kind() Kind {
	switch k {
	case KeyNumber:
		return KindNumber
	case KeyBinary:
		return KindBinary
	}
	return KindString
}

// Key is a physical key attribute.
type Key struct {
	Name string  `yaml:"name"`
	Type KeyType `yaml:"type"`
}

// IndexType distinguishes global from local secondary indexes.
type IndexType string

const (
	IndexGlobal IndexType = "global"
	IndexLocal  IndexType = "local"
)

// Index is a secondary index. Local indexes share the table partition key
// and must declare a sort key.
type Index struct {
	Type         IndexType
	PartitionKey *Key
	SortKey      *Key
	// Projection defaults to ALL. NonKeyAttributes is used with INCLUDE.
	Projection       types.ProjectionType
	NonKeyAttributes []string
}

// OperationStat describes one request sent to DynamoDB.
type OperationStat struct {
	Op               string
	Table            string
	Duration         time.Duration
	ConsumedCapacity []types.ConsumedCapacity
	Err              error
}

// MonitorFunc is called after every request, successful or not.
type MonitorFunc func(ctx context.Context, stat OperationStat)

// TableParams configures a Table.
type TableParams struct {
	Name         string
	PartitionKey Key
	SortKey      *Key
	Indexes      map[string]Index
	// EntityAttributeSavedAs is the stored name of the entity discriminator.
	// Defaults to "_et".
	EntityAttributeSavedAs string
	DocumentClient         DocumentClient
	Logger                 *slog.Logger
	Monitor                MonitorFunc
}

// Table is immutable after NewTable.
type Table struct {
	name         string
	partitionKey Key
	sortKey      *Key
	indexes      map[string]Index
	entityAttr   string
	client       DocumentClient
	log          *slog.Logger
	monitor      MonitorFunc
}

// DefaultEntityAttributeSavedAs is the stored name of the discriminator.
const DefaultEntityAttributeSavedAs = "_et"

// NewTable validates params and creates a Table.
func NewTable(params TableParams) (*Table, error) {
	if params.Name == "" {
		return nil, NewError(CodeInvalidTableKey, `Missing table "Name".`)
	}
	if err := checkKey("partition key", &params.PartitionKey); err != nil {
		return nil, err
	}
	if params.SortKey != nil {
		if err := checkKey("sort key", params.SortKey); err != nil {
			return nil, err
		}
		if params.SortKey.Name == params.PartitionKey.Name {
			return nil, NewError(CodeInvalidTableKey, "Partition and sort key must differ.")
		}
	}

	t := &Table{
		name:         params.Name,
		partitionKey: params.PartitionKey,
		indexes:      make(map[string]Index, len(params.Indexes)),
		entityAttr:   params.EntityAttributeSavedAs,
		client:       params.DocumentClient,
		log:          defaultLogger(params.Logger),
		monitor:      params.Monitor,
	}
	if params.SortKey != nil {
		sk := *params.SortKey
		t.sortKey = &sk
	}
	if t.entityAttr == "" {
		t.entityAttr = DefaultEntityAttributeSavedAs
	}

	for name, idx := range params.Indexes {
		if idx.PartitionKey != nil {
			k := *idx.PartitionKey
			idx.PartitionKey = &k
		}
		if idx.SortKey != nil {
			k := *idx.SortKey
			idx.SortKey = &k
		}
		if err := t.checkIndex(name, idx); err != nil {
			return nil, err
		}
		t.indexes[name] = idx
	}
	return t, nil
}

func checkKey(what string, k *Key) error {
	if k.Name == "" {
		return NewError(CodeInvalidTableKey, fmt.Sprintf("Missing %s name.", what))
	}
	if k.Type == "" {
		k.Type = KeyString
	}
	if _, ok := k.Type.scalar(); !ok {
		return NewError(CodeInvalidTableKey, fmt.Sprintf("Invalid %s type %q.", what, k.Type))
	}
	return nil
}

func (t *Table) checkIndex(name string, idx Index) error {
	invalid := func(msg string) error {
		return NewError(CodeInvalidTableIndex, fmt.Sprintf("Index %q: %s", name, msg),
			WithContext(map[string]any{"index": name}))
	}
	switch idx.Type {
	case IndexGlobal:
		if idx.PartitionKey == nil {
			return invalid("global indexes need a partition key.")
		}
		if err := checkKey("index partition key", idx.PartitionKey); err != nil {
			return err
		}
	case IndexLocal:
		if t.sortKey == nil {
			return invalid("local indexes need a table with a sort key.")
		}
		if idx.PartitionKey != nil && idx.PartitionKey.Name != t.partitionKey.Name {
			return invalid("local indexes share the table partition key.")
		}
		if idx.SortKey == nil {
			return invalid("local indexes need a sort key.")
		}
	default:
		return invalid(fmt.Sprintf("unknown type %q.", idx.Type))
	}
	if idx.SortKey != nil {
		if err := checkKey("index sort key", idx.SortKey); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) Name() string                   { return t.name }
func (t *Table) PartitionKey() Key              { return t.partitionKey }
func (t *Table) EntityAttributeSavedAs() string { return t.entityAttr }
func (t *Table) DocumentClient() DocumentClient { return t.client }

// SortKey returns the table sort key, if any.
func (t *Table) SortKey() (Key, bool) {
	if t.sortKey == nil {
		return Key{}, false
	}
	return *t.sortKey, true
}

// Index returns a secondary index by name.
func (t *Table) Index(name string) (Index, bool) {
	idx, ok := t.indexes[name]
	return idx, ok
}

// primaryKeyNames lists the table key attribute names.
func (t *Table) primaryKeyNames() []string {
	if t.sortKey == nil {
		return []string{t.partitionKey.Name}
	}
	return []string{t.partitionKey.Name, t.sortKey.Name}
}

// KeysOf returns the key coordinates of the table (index "") or of a
// secondary index.
func (t *Table) KeysOf(index string) (Key, *Key, error) {
	if index == "" {
		return t.partitionKey, t.sortKey, nil
	}
	idx, ok := t.indexes[index]
	if !ok {
		return Key{}, nil, unknownIndex(index)
	}
	pk := t.partitionKey
	if idx.PartitionKey != nil {
		pk = *idx.PartitionKey
	}
	return pk, idx.SortKey, nil
}

func unknownIndex(index string) error {
	return NewError(CodeInvalidIndex, fmt.Sprintf("Unknown index: %q.", index),
		WithContext(map[string]any{"index": index}))
}

// ─── DDL ──────────────────────────────────────────────────────────────────────

// Definition builds the CreateTable input for the table. A nil or zero
// provisioned throughput selects on-demand billing.
func (t *Table) Definition(provisioned *types.ProvisionedThroughput) *ddb.CreateTableInput {
	in := &ddb.CreateTableInput{TableName: aws.String(t.name)}
	if provisioned != nil &&
		(aws.ToInt64(provisioned.ReadCapacityUnits) > 0 || aws.ToInt64(provisioned.WriteCapacityUnits) > 0) {
		in.BillingMode = types.BillingModeProvisioned
		in.ProvisionedThroughput = provisioned
	} else {
		in.BillingMode = types.BillingModePayPerRequest
		provisioned = nil
	}

	defined := map[string]bool{}
	define := func(k Key) {
		if defined[k.Name] {
			return
		}
		defined[k.Name] = true
		at, _ := k.Type.scalar()
		in.AttributeDefinitions = append(in.AttributeDefinitions,
			types.AttributeDefinition{AttributeName: aws.String(k.Name), AttributeType: at})
	}
	keySchema := func(pk Key, sk *Key) []types.KeySchemaElement {
		define(pk)
		ks := []types.KeySchemaElement{{AttributeName: aws.String(pk.Name), KeyType: types.KeyTypeHash}}
		if sk != nil {
			define(*sk)
			ks = append(ks, types.KeySchemaElement{AttributeName: aws.String(sk.Name), KeyType: types.KeyTypeRange})
		}
		return ks
	}

	in.KeySchema = keySchema(t.partitionKey, t.sortKey)

	names := sortedKeys(t.indexes)
	for _, name := range names {
		idx := t.indexes[name]
		pk, sk, _ := t.KeysOf(name)
		proj := &types.Projection{ProjectionType: idx.Projection}
		if proj.ProjectionType == "" {
			proj.ProjectionType = types.ProjectionTypeAll
		}
		if proj.ProjectionType == types.ProjectionTypeInclude {
			proj.NonKeyAttributes = idx.NonKeyAttributes
		}
		if idx.Type == IndexLocal {
			in.LocalSecondaryIndexes = append(in.LocalSecondaryIndexes, types.LocalSecondaryIndex{
				IndexName:  aws.String(name),
				KeySchema:  keySchema(pk, sk),
				Projection: proj,
			})
			continue
		}
		in.GlobalSecondaryIndexes = append(in.GlobalSecondaryIndexes, types.GlobalSecondaryIndex{
			IndexName:             aws.String(name),
			KeySchema:             keySchema(pk, sk),
			Projection:            proj,
			ProvisionedThroughput: provisioned,
		})
	}
	sort.Slice(in.AttributeDefinitions, func(i, j int) bool {
		return aws.ToString(in.AttributeDefinitions[i].AttributeName) < aws.ToString(in.AttributeDefinitions[j].AttributeName)
	})
	return in
}

// Create sends the table definition unless the table already exists.
func (t *Table) Create(ctx context.Context, admin Admin, provisioned *types.ProvisionedThroughput) error {
	_, err := admin.DescribeTable(ctx, &ddb.DescribeTableInput{TableName: aws.String(t.name)})
	if err == nil {
		logInfo(ctx, t.log, "table exists", slog.String("table", t.name))
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return wrapRequestError("describeTable", err)
	}
	in := t.Definition(provisioned)
	logTrace(ctx, t.log, "createTable", t.name, in)
	if _, err := admin.CreateTable(ctx, in); err != nil {
		return wrapRequestError("createTable", err)
	}
	logInfo(ctx, t.log, "table created", slog.String("table", t.name))
	return nil
}
