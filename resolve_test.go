package toolbox

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolver_UsesDiscriminator(t *testing.T) {
	f := newFixture(t)
	r := NewResolver([]*Entity{f.entityA, f.entityB}, ResolveOptions{})

	res, ok, err := r.Resolve(savedItemB(true))
	require.NoError(t, err)
	require.True(t, ok)
	require.Same(t, f.entityB, res.Entity)
	require.Equal(t, formattedItemB(), res.Item)
}

func TestResolver_TrialOrder(t *testing.T) {
	f := newFixture(t)
	r := NewResolver([]*Entity{f.entityA, f.entityB}, ResolveOptions{})

	res, ok, err := r.Resolve(savedItemB(false))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "EntityB", res.Entity.Name())

	// Both entities accept a record carrying every attribute: the first wins.
	both := savedItemA(false)
	both["age"] = 3
	res, _, err = r.Resolve(both)
	require.NoError(t, err)
	require.Equal(t, "EntityA", res.Entity.Name())
}

func TestResolver_DiscriminatedFailureDoesNotFallBack(t *testing.T) {
	f := newFixture(t)
	r := NewResolver([]*Entity{f.entityA, f.entityB}, ResolveOptions{Scope: "scanCommand"})

	// Tagged as EntityA but shaped like EntityB.
	raw := savedItemB(false)
	raw["_et"] = "EntityA"
	_, ok, err := r.Resolve(raw)
	require.False(t, ok)
	requireCode(t, err, "scanCommand.noEntityMatched")
}

func TestResolver_Throw(t *testing.T) {
	f := newFixture(t)
	r := NewResolver([]*Entity{f.entityA, f.entityB}, ResolveOptions{Scope: "queryCommand"})

	_, _, err := r.Resolve(invalidItem())
	requireCode(t, err, "queryCommand.noEntityMatched")
	require.True(t, errors.Is(err, ErrNoEntityMatched))

	var te *Error
	require.True(t, errors.As(err, &te))
	require.Equal(t, Item{"pk": "c", "sk": "c"}, te.Context["key"])
}

func TestResolver_SingleEntityReturnsFormatterError(t *testing.T) {
	f := newFixture(t)
	r := NewResolver([]*Entity{f.entityA}, ResolveOptions{})
	_, _, err := r.Resolve(invalidItem())
	requireCode(t, err, CodeMissingAttribute)
}

func TestResolver_Discard(t *testing.T) {
	f := newFixture(t)
	r := NewResolver([]*Entity{f.entityA, f.entityB}, ResolveOptions{NoEntityMatchBehavior: NoEntityMatchDiscard})

	out, err := r.ResolveAll([]Item{savedItemA(false), invalidItem(), savedItemB(false)})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, formattedItemA(), out[0].Item)
	require.Equal(t, formattedItemB(), out[1].Item)
}

func TestResolver_ShowEntityAttr(t *testing.T) {
	f := newFixture(t)
	r := NewResolver([]*Entity{f.entityA, f.entityB}, ResolveOptions{ShowEntityAttr: true})

	out, err := r.ResolveAll([]Item{savedItemA(true), savedItemB(false)})
	require.NoError(t, err)
	require.Equal(t, "EntityA", out[0].Item["entity"])
	require.Equal(t, "EntityB", out[1].Item["entity"])
}

func TestResolver_DoesNotMutateRecord(t *testing.T) {
	f := newFixture(t)
	r := NewResolver([]*Entity{f.entityA}, ResolveOptions{ShowEntityAttr: true})
	raw := savedItemA(true)
	_, _, err := r.Resolve(raw)
	require.NoError(t, err)
	require.Equal(t, savedItemA(true), raw)
}

func TestResolver_DiscardsRecordWithUnformattableKey(t *testing.T) {
	f := newFixture(t)
	entityC, err := NewEntity(EntityParams{
		Name:  "EntityC",
		Table: f.table,
		Schema: Map(Attrs{
			"pkC":  String().MarkKey().StoredAs("pk"),
			"skC":  String().MarkKey().StoredAs("sk"),
			"meta": Record(atoiKeys(), Number()),
		}),
		Now: fixedClock,
	})
	require.NoError(t, err)
	r := NewResolver([]*Entity{entityC, f.entityA}, ResolveOptions{NoEntityMatchBehavior: NoEntityMatchDiscard})

	withMeta := savedItemA(false)
	withMeta["meta"] = map[string]any{"1": 2.0}
	broken := invalidItem()
	broken["meta"] = map[string]any{"1": 2.0}

	out, err := r.ResolveAll([]Item{withMeta, broken})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "EntityA", out[0].Entity.Name())
	require.Equal(t, formattedItemA(), out[0].Item)
}
