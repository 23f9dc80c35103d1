package toolbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// resolveClient picks the per-call client, falling back to the table's.
func resolveClient(override DocumentClient, t *Table) (DocumentClient, error) {
	if override != nil {
		return override, nil
	}
	if t != nil && t.client != nil {
		return t.client, nil
	}
	return nil, NewError(CodeMissingClient, "You need to set a document client on your table to send a command.")
}

// send runs one request with logging, error mapping and the monitor hook.
func send[I, O any](
	ctx context.Context,
	t *Table,
	op, tableName string,
	in *I,
	call func(context.Context, *I, ...func(*ddb.Options)) (*O, error),
) (*O, error) {
	start := time.Now()
	logTrace(ctx, t.log, op, tableName, in)
	out, err := call(ctx, in)
	if err != nil {
		err = wrapRequestError(op, err)
		logError(ctx, t.log, op, tableName, err)
	}
	if t.monitor != nil {
		t.monitor(ctx, OperationStat{
			Op:               op,
			Table:            tableName,
			Duration:         time.Since(start),
			ConsumedCapacity: consumedCapacity(out),
			Err:              err,
		})
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func consumedCapacity(out any) []types.ConsumedCapacity {
	one := func(c *types.ConsumedCapacity) []types.ConsumedCapacity {
		if c == nil {
			return nil
		}
		return []types.ConsumedCapacity{*c}
	}
	switch o := out.(type) {
	case *ddb.GetItemOutput:
		if o != nil {
			return one(o.ConsumedCapacity)
		}
	case *ddb.PutItemOutput:
		if o != nil {
			return one(o.ConsumedCapacity)
		}
	case *ddb.UpdateItemOutput:
		if o != nil {
			return one(o.ConsumedCapacity)
		}
	case *ddb.DeleteItemOutput:
		if o != nil {
			return one(o.ConsumedCapacity)
		}
	case *ddb.QueryOutput:
		if o != nil {
			return one(o.ConsumedCapacity)
		}
	case *ddb.ScanOutput:
		if o != nil {
			return one(o.ConsumedCapacity)
		}
	case *ddb.BatchGetItemOutput:
		if o != nil {
			return o.ConsumedCapacity
		}
	case *ddb.BatchWriteItemOutput:
		if o != nil {
			return o.ConsumedCapacity
		}
	case *ddb.TransactGetItemsOutput:
		if o != nil {
			return o.ConsumedCapacity
		}
	case *ddb.TransactWriteItemsOutput:
		if o != nil {
			return o.ConsumedCapacity
		}
	}
	return nil
}

// wrapRequestError classifies transport errors.
func wrapRequestError(op string, err error) error {
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	errCtx := map[string]any{"op": op}

	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return NewError(CodeConditionFailed, fmt.Sprintf("Conditional check failed for %q.", op),
			WithCause(err), WithContext(errCtx))
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		reasons := make([]string, len(tce.CancellationReasons))
		for i, r := range tce.CancellationReasons {
			reasons[i] = aws.ToString(r.Code)
		}
		errCtx["reasons"] = reasons
		return NewError(CodeTransactionCanceled, "Transaction cancelled.", WithCause(err), WithContext(errCtx))
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		errCtx["awsCode"] = apiErr.ErrorCode()
		errCtx["fault"] = apiErr.ErrorFault().String()
	}
	return NewError(CodeRequestFailed, fmt.Sprintf("%s failed: %v", op, err), WithCause(err), WithContext(errCtx))
}
