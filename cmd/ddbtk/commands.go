package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/spf13/cobra"

	toolbox "github.com/cloudxsgmbh/dynamodb-toolbox-go"
)

// readOutput is the JSON document printed by scan and query.
type readOutput struct {
	Items            []toolbox.Item       `json:"items"`
	Tagged           []toolbox.TaggedItem `json:"tagged,omitempty"`
	Count            int32                `json:"count"`
	ScannedCount     int32                `json:"scannedCount"`
	LastEvaluatedKey toolbox.Item         `json:"lastEvaluatedKey,omitempty"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// decodeOptions turns the --options JSON object into the options struct T.
func decodeOptions[T any](raw string) (T, error) {
	var zero T
	if raw == "" {
		return zero, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return zero, fmt.Errorf("--options: %w", err)
	}
	return toolbox.DecodeOptions[T](m)
}

func plainKey(av map[string]types.AttributeValue) (toolbox.Item, error) {
	if len(av) == 0 {
		return nil, nil
	}
	var item toolbox.Item
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, err
	}
	return item, nil
}

// keyValue converts a command line value to the type of key k.
func keyValue(k toolbox.Key, raw string) (any, error) {
	switch k.Type {
	case toolbox.KeyNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("key %s expects a number, got %q", k.Name, raw)
		}
		return n, nil
	case toolbox.KeyBinary:
		b, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("key %s expects base64, got %q", k.Name, raw)
		}
		return b, nil
	}
	return raw, nil
}

func (a *app) getCmd() *cobra.Command {
	var key, options string
	cmd := &cobra.Command{
		Use:   "get <entity>",
		Short: "Read one item by key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, ok := a.model.Entity(args[0])
			if !ok {
				return fmt.Errorf("unknown entity %q", args[0])
			}
			var k toolbox.Item
			if err := json.Unmarshal([]byte(key), &k); err != nil {
				return fmt.Errorf("--key: %w", err)
			}
			opts, err := decodeOptions[toolbox.GetItemOptions](options)
			if err != nil {
				return err
			}
			resp, err := toolbox.GetItemCommand{Entity: e, Key: k, Options: opts}.Send(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(a.out, resp.Item)
		},
	}
	cmd.Flags().StringVar(&key, "key", "{}", "key attributes as a JSON object")
	cmd.Flags().StringVar(&options, "options", "", "GetItem options as a JSON object")
	return cmd
}

func (a *app) scanCmd() *cobra.Command {
	var options string
	cmd := &cobra.Command{
		Use:   "scan [entity...]",
		Short: "Scan the table, formatting records through the named entities (all by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			entities, err := a.model.Select(args...)
			if err != nil {
				return err
			}
			opts, err := decodeOptions[toolbox.ScanOptions](options)
			if err != nil {
				return err
			}
			resp, err := toolbox.ScanCommand{Table: a.model.Table, Entities: entities, Options: opts}.Send(cmd.Context())
			if err != nil {
				return err
			}
			last, err := plainKey(resp.LastEvaluatedKey)
			if err != nil {
				return err
			}
			return writeJSON(a.out, readOutput{
				Items:            resp.Items,
				Tagged:           resp.Tagged,
				Count:            resp.Count,
				ScannedCount:     resp.ScannedCount,
				LastEvaluatedKey: last,
			})
		},
	}
	cmd.Flags().StringVar(&options, "options", "", "scan options as a JSON object")
	return cmd
}

type queryFlags struct {
	index      string
	partition  string
	rangeOp    string
	rangeValue string
	rangeUpper string
	options    string
}

// query builds the Query described by the flags against t.
func (f queryFlags) query(t *toolbox.Table) (toolbox.Query, error) {
	pk, sk, err := t.KeysOf(f.index)
	if err != nil {
		return toolbox.Query{}, err
	}
	partition, err := keyValue(pk, f.partition)
	if err != nil {
		return toolbox.Query{}, err
	}
	q := toolbox.Query{Index: f.index, Partition: partition}
	if f.rangeOp == "" {
		return q, nil
	}
	if sk == nil {
		return toolbox.Query{}, fmt.Errorf("--range-op: index %q has no sort key", f.index)
	}
	r := &toolbox.RangeCondition{Op: toolbox.RangeOp(f.rangeOp)}
	if r.Value, err = keyValue(*sk, f.rangeValue); err != nil {
		return toolbox.Query{}, err
	}
	if f.rangeUpper != "" {
		if r.Upper, err = keyValue(*sk, f.rangeUpper); err != nil {
			return toolbox.Query{}, err
		}
	}
	q.Range = r
	return q, nil
}

func (a *app) queryCmd() *cobra.Command {
	var f queryFlags
	cmd := &cobra.Command{
		Use:   "query [entity...]",
		Short: "Query one partition, formatting records through the named entities (all by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			entities, err := a.model.Select(args...)
			if err != nil {
				return err
			}
			q, err := f.query(a.model.Table)
			if err != nil {
				return err
			}
			opts, err := decodeOptions[toolbox.QueryOptions](f.options)
			if err != nil {
				return err
			}
			resp, err := toolbox.QueryCommand{Table: a.model.Table, Entities: entities, Query: q, Options: opts}.Send(cmd.Context())
			if err != nil {
				return err
			}
			last, err := plainKey(resp.LastEvaluatedKey)
			if err != nil {
				return err
			}
			return writeJSON(a.out, readOutput{
				Items:            resp.Items,
				Tagged:           resp.Tagged,
				Count:            resp.Count,
				ScannedCount:     resp.ScannedCount,
				LastEvaluatedKey: last,
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.index, "index", "", "secondary index to query")
	fl.StringVar(&f.partition, "partition", "", "partition key value")
	fl.StringVar(&f.rangeOp, "range-op", "", "eq, lt, lte, gt, gte, between or beginsWith")
	fl.StringVar(&f.rangeValue, "range-value", "", "sort key value")
	fl.StringVar(&f.rangeUpper, "range-upper", "", "upper bound of between")
	fl.StringVar(&f.options, "options", "", "query options as a JSON object")
	_ = cmd.MarkFlagRequired("partition")
	return cmd
}

func (a *app) createTableCmd() *cobra.Command {
	var read, write int64
	cmd := &cobra.Command{
		Use:   "create-table",
		Short: "Create the model table unless it exists (on-demand billing without capacities)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var provisioned *types.ProvisionedThroughput
			if read > 0 || write > 0 {
				provisioned = &types.ProvisionedThroughput{
					ReadCapacityUnits:  aws.Int64(read),
					WriteCapacityUnits: aws.Int64(write),
				}
			}
			if err := a.model.Table.Create(cmd.Context(), a.client, provisioned); err != nil {
				return err
			}
			a.log.Info("table ready", slog.String("table", a.model.Table.Name()))
			return nil
		},
	}
	cmd.Flags().Int64Var(&read, "read-capacity", 0, "provisioned read capacity units")
	cmd.Flags().Int64Var(&write, "write-capacity", 0, "provisioned write capacity units")
	return cmd
}
