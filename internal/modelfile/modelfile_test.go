package modelfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/require"

	toolbox "github.com/cloudxsgmbh/dynamodb-toolbox-go"
)

const sample = `
table:
  name: app
  partitionKey: {name: pk}
  sortKey: {name: sk}
  indexes:
    byEmail:
      type: global
      partitionKey: {name: gsi1pk}
      projection: KEYS_ONLY
entities:
  - name: User
    attributes:
      id: {type: string, key: true, savedAs: pk, prefix: USER}
      sk: {type: string, key: true, default: meta}
      email: {type: string, savedAs: gsi1pk}
      age: {type: number, optional: true}
      card: {type: string, optional: true, encrypt: true}
      address:
        type: map
        optional: true
        attributes:
          city: {type: string}
  - name: Order
    entityAttribute: {name: kind, visible: true}
    timestamps: {disabled: true}
    attributes:
      pk: {type: string, key: true}
      sk: {type: string, key: true, generate: ulid}
      status: {type: string, enum: [open, closed]}
      lines: {type: list, elements: {type: map, attributes: {sku: {type: string}, qty: {type: number}}}}
`

func TestParse(t *testing.T) {
	m, err := Parse([]byte(sample), Options{CryptPassword: "secret"})
	require.NoError(t, err)
	require.Equal(t, "app", m.Table.Name())
	require.Equal(t, toolbox.Key{Name: "pk", Type: toolbox.KeyString}, m.Table.PartitionKey())

	idx, ok := m.Table.Index("byEmail")
	require.True(t, ok)
	require.Equal(t, toolbox.IndexGlobal, idx.Type)

	require.Len(t, m.Entities, 2)
	require.Equal(t, "User", m.Entities[0].Name())
	order, ok := m.Entity("Order")
	require.True(t, ok)
	require.Equal(t, "kind", order.EntityAttributeName())

	def := m.Table.Definition(nil)
	require.Len(t, def.GlobalSecondaryIndexes, 1)
	require.EqualValues(t, "KEYS_ONLY", def.GlobalSecondaryIndexes[0].Projection.ProjectionType)
}

func TestParse_EntitiesWork(t *testing.T) {
	m, err := Parse([]byte(sample), Options{CryptPassword: "secret"})
	require.NoError(t, err)
	user, _ := m.Entity("User")

	in, err := toolbox.PutItemCommand{
		Entity: user,
		Item:   toolbox.Item{"id": "42", "email": "a@b.c", "card": "4111"},
	}.Params()
	require.NoError(t, err)
	require.Equal(t, "app", aws.ToString(in.TableName))
	require.NotNil(t, in.Item["pk"])
	require.NotNil(t, in.Item["gsi1pk"])
	require.NotNil(t, in.Item["_ct"])

	key, err := toolbox.GetItemCommand{Entity: user, Key: toolbox.Item{"id": "42"}}.Params()
	require.NoError(t, err)
	require.Len(t, key.Key, 2)
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		opts Options
	}{
		{"empty", "", Options{}},
		{"unknown field", "table: {name: t, partitionKey: {name: pk}, color: red}", Options{}},
		{"invalid table", "table: {partitionKey: {name: pk}}", Options{}},
		{"encrypt without password", `
table: {name: t, partitionKey: {name: pk}}
entities:
  - name: E
    attributes:
      pk: {type: string, key: true}
      secret: {type: string, encrypt: true}
`, Options{}},
		{"duplicate entity", `
table: {name: t, partitionKey: {name: pk}}
entities:
  - name: E
    attributes: {pk: {type: string, key: true}}
  - name: E
    attributes: {pk: {type: string, key: true}}
`, Options{}},
		{"bad entity schema", `
table: {name: t, partitionKey: {name: pk}}
entities:
  - name: E
    attributes: {id: {type: string}}
`, Options{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml), tc.opts)
			require.Error(t, err)
		})
	}
}

func TestSelect(t *testing.T) {
	m, err := Parse([]byte(sample), Options{CryptPassword: "secret"})
	require.NoError(t, err)

	all, err := m.Select()
	require.NoError(t, err)
	require.Len(t, all, 2)

	one, err := m.Select("Order")
	require.NoError(t, err)
	require.Equal(t, "Order", one[0].Name())

	_, err = m.Select("Nope")
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	m, err := Load(path, Options{CryptPassword: "secret"})
	require.NoError(t, err)
	require.Equal(t, "app", m.Table.Name())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), Options{})
	require.Error(t, err)
}
