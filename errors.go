/*
Package toolbox – error types.

Every failure carries a dotted machine-readable code (for example
"formatter.missingAttribute") and belongs to one of a few categories that
callers can test with errors.Is.
*/
package toolbox

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is a dotted error identifier: "<scope>.<reason>".
type ErrorCode string

const (
	CodeMissingAttribute      ErrorCode = "formatter.missingAttribute"
	CodeInvalidAttribute      ErrorCode = "formatter.invalidAttribute"
	CodeInvalidItem           ErrorCode = "formatter.invalidItem"
	CodeParserMissing         ErrorCode = "parser.attributeRequired"
	CodeParserInvalid         ErrorCode = "parser.invalidAttributeInput"
	CodeIncompleteAction      ErrorCode = "actions.incompleteAction"
	CodeInvalidAction         ErrorCode = "actions.invalidAction"
	CodeMissingClient         ErrorCode = "actions.missingDocumentClient"
	CodeInvalidPath           ErrorCode = "actions.invalidExpressionAttributePath"
	CodeInvalidCondition      ErrorCode = "actions.invalidCondition"
	CodeConditionFailed       ErrorCode = "actions.conditionalCheckFailed"
	CodeTransactionCanceled   ErrorCode = "actions.transactionCanceled"
	CodeRequestFailed         ErrorCode = "actions.requestFailed"
	CodeUnknownOption         ErrorCode = "options.unknownOption"
	CodeInvalidCapacity       ErrorCode = "options.invalidCapacityOption"
	CodeInvalidMetrics        ErrorCode = "options.invalidMetricsOption"
	CodeInvalidConsistent     ErrorCode = "options.invalidConsistentOption"
	CodeInvalidSelect         ErrorCode = "options.invalidSelectOption"
	CodeInvalidIndex          ErrorCode = "options.invalidIndexOption"
	CodeInvalidLimit          ErrorCode = "options.invalidLimitOption"
	CodeInvalidMaxPages       ErrorCode = "options.invalidMaxPagesOption"
	CodeInvalidSegment        ErrorCode = "options.invalidSegmentOption"
	CodeInvalidReturnValues   ErrorCode = "options.invalidReturnValuesOption"
	CodeInvalidNoMatch        ErrorCode = "options.invalidNoEntityMatchBehaviorOption"
	CodeInvalidOptions        ErrorCode = "options.invalidOptions"
	CodeInvalidPartition      ErrorCode = "queryCommand.invalidPartition"
	CodeInvalidRange          ErrorCode = "queryCommand.invalidRange"
	CodeInvalidSchema         ErrorCode = "schema.invalidSchema"
	CodeDuplicateSavedAs      ErrorCode = "schema.duplicateSavedAs"
	CodeInvalidElements       ErrorCode = "schema.invalidElements"
	CodeInvalidSetElements    ErrorCode = "schema.invalidSetElements"
	CodeInvalidRecordKeys     ErrorCode = "schema.invalidRecordKeys"
	CodeInvalidVariants       ErrorCode = "schema.invalidVariants"
	CodeInvalidEntitySchema   ErrorCode = "entity.invalidSchema"
	CodeReservedName          ErrorCode = "entity.reservedAttributeName"
	CodeReservedSavedAs       ErrorCode = "entity.reservedAttributeSavedAs"
	CodeInvalidTableKey       ErrorCode = "table.invalidKey"
	CodeInvalidTableIndex     ErrorCode = "table.invalidIndex"
	CodeInvalidTransformInput ErrorCode = "transformer.invalidInput"
)

// NoEntityMatchedCode returns the scoped code used when a record matches no
// entity, e.g. "scanCommand.noEntityMatched".
func NoEntityMatchedCode(scope string) ErrorCode {
	return ErrorCode(scope + ".noEntityMatched")
}

// Category sentinels. Every *Error matches exactly one of them with errors.Is.
var (
	ErrMissingAttribute   = errors.New("missing attribute")
	ErrInvalidItem        = errors.New("invalid item")
	ErrNoEntityMatched    = errors.New("no entity matched")
	ErrIncompleteAction   = errors.New("incomplete action")
	ErrUnrecognizedOption = errors.New("unrecognized option")
	ErrInvalidOption      = errors.New("invalid option")
	ErrInvalidSchema      = errors.New("invalid schema")
	ErrConditionFailed    = errors.New("condition failed")
	ErrRequestFailed      = errors.New("request failed")
)

var categories = map[ErrorCode]error{
	CodeMissingAttribute:      ErrMissingAttribute,
	CodeParserMissing:         ErrMissingAttribute,
	CodeInvalidAttribute:      ErrInvalidItem,
	CodeInvalidItem:           ErrInvalidItem,
	CodeParserInvalid:         ErrInvalidItem,
	CodeInvalidTransformInput: ErrInvalidItem,
	CodeIncompleteAction:      ErrIncompleteAction,
	CodeUnknownOption:         ErrUnrecognizedOption,
	CodeConditionFailed:       ErrConditionFailed,
	CodeTransactionCanceled:   ErrConditionFailed,
	CodeRequestFailed:         ErrRequestFailed,
}

func category(code ErrorCode) error {
	if c, ok := categories[code]; ok {
		return c
	}
	s := string(code)
	switch {
	case strings.HasSuffix(s, ".noEntityMatched"):
		return ErrNoEntityMatched
	case strings.HasPrefix(s, "schema."), strings.HasPrefix(s, "entity."), strings.HasPrefix(s, "table."):
		return ErrInvalidSchema
	}
	return ErrInvalidOption
}

// Error is the single error type raised by the package.
type Error struct {
	Code    ErrorCode
	Message string
	// Path is the logical attribute path for formatter / parser errors.
	Path    string
	Context map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is the category sentinel of e.
func (e *Error) Is(target error) bool {
	return category(e.Code) == target
}

// NewError constructs an *Error.
func NewError(code ErrorCode, msg string, opts ...func(*Error)) *Error {
	err := &Error{Code: code, Message: msg}
	for _, o := range opts {
		o(err)
	}
	return err
}

// WithPath sets the logical attribute path.
func WithPath(path string) func(*Error) {
	return func(e *Error) { e.Path = path }
}

// WithContext attaches a context map.
func WithContext(ctx map[string]any) func(*Error) {
	return func(e *Error) { e.Context = ctx }
}

// WithCause wraps an underlying error.
func WithCause(cause error) func(*Error) {
	return func(e *Error) { e.Cause = cause }
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}
