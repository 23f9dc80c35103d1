package toolbox

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeOptions(t *testing.T) {
	opts, err := DecodeOptions[ScanOptions](map[string]any{
		"consistent":            true,
		"limit":                 10,
		"index":                 "gsi1",
		"attributes":            []any{"name"},
		"noEntityMatchBehavior": "DISCARD",
		"entityAttrFilter":      false,
		"filter":                map[string]any{"expression": "#a > :v", "names": map[string]any{"#a": "age"}, "values": map[string]any{":v": 3}},
	})
	require.NoError(t, err)
	require.True(t, opts.Consistent)
	require.Equal(t, int32(10), opts.Limit)
	require.Equal(t, "gsi1", opts.IndexName)
	require.Equal(t, []string{"name"}, opts.Attributes)
	require.Equal(t, NoEntityMatchDiscard, opts.NoEntityMatchBehavior)
	require.False(t, boolOr(opts.EntityAttrFilter, true))
	require.Equal(t, "age", opts.Filter.Names["#a"])
}

func TestDecodeOptions_UnknownOption(t *testing.T) {
	_, err := DecodeOptions[GetItemOptions](map[string]any{"consistent": true, "parallel": 4})
	requireCode(t, err, CodeUnknownOption)
	require.True(t, errors.Is(err, ErrUnrecognizedOption))

	var te *Error
	require.ErrorAs(t, err, &te)
	require.Equal(t, "parallel", te.Context["option"])

	// Untagged transport fields are not options.
	_, err = DecodeOptions[GetItemOptions](map[string]any{"DocumentClient": nil})
	requireCode(t, err, CodeUnknownOption)
}

func TestDecodeOptions_WrongType(t *testing.T) {
	_, err := DecodeOptions[QueryOptions](map[string]any{"limit": "ten"})
	requireCode(t, err, CodeInvalidOptions)
}

func TestCapacityAndMetrics(t *testing.T) {
	_, err := Capacity("ALL").param()
	requireCode(t, err, CodeInvalidCapacity)
	v, err := CapacityNone.param()
	require.NoError(t, err)
	require.EqualValues(t, "NONE", v)

	_, err = Metrics("ALL").param()
	requireCode(t, err, CodeInvalidMetrics)

	_, err = ReturnAllNew.param(ReturnNone, ReturnAllOld)
	requireCode(t, err, CodeInvalidReturnValues)
	rv, err := ReturnValues("").param(ReturnNone)
	require.NoError(t, err)
	require.Empty(t, rv)
}
