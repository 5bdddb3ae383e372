package table

import (
	"errors"
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/danmuck/busdecode/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeOrdersColumnsForAnyPermutation(t *testing.T) {
	testlog.Start(t)
	names := []string{"zeta", TimeColumn, "Alpha", IDColumn, "beta", "alpha"}
	want := []string{TimeColumn, IDColumn, "Alpha", "alpha", "beta", "zeta"}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		perm := rng.Perm(len(names))
		in := New("f", "src")
		for _, p := range perm {
			require.NoError(t, in.AddColumn(&Column{Name: names[p], Kind: KindFloat, Values: []any{1.0}}))
		}
		out, err := Normalize(in)
		require.NoError(t, err)
		if got := out.ColumnNames(); !reflect.DeepEqual(got, want) {
			t.Fatalf("perm %v: got %v want %v", perm, got, want)
		}
		tc, _ := out.Column(TimeColumn)
		if tc.Kind != KindTime {
			t.Fatalf("time kind = %v", tc.Kind)
		}
	}
}

func TestNormalizeTimeIsUTCAndMalformedIsMissing(t *testing.T) {
	testlog.Start(t)
	in := New("f", "")
	require.NoError(t, in.AddColumn(NewColumn(TimeColumn, []any{1.5, "garbage", nil, "2.25", math.Inf(1)})))
	out, err := Normalize(in)
	require.NoError(t, err)

	tc, _ := out.Column(TimeColumn)
	first := tc.Values[0].(time.Time)
	assert.Equal(t, time.UTC, first.Location())
	assert.Equal(t, time.Unix(1, 500_000_000).UTC(), first)
	assert.Nil(t, tc.Values[1])
	assert.Nil(t, tc.Values[2])
	assert.Equal(t, time.Unix(2, 250_000_000).UTC(), tc.Values[3])
	assert.Nil(t, tc.Values[4])

	dropped := DropMissingTime(out)
	assert.Equal(t, 2, dropped.Len())
}

func TestNormalizeRejectsDuplicateAndMissingTime(t *testing.T) {
	testlog.Start(t)
	dup := &Table{Columns: []*Column{
		{Name: TimeColumn, Values: []any{1.0}},
		{Name: "x", Values: []any{1.0}},
		{Name: "x", Values: []any{2.0}},
	}}
	if _, err := Normalize(dup); !errors.Is(err, ErrDuplicateColumn) {
		t.Fatalf("expected ErrDuplicateColumn, got %v", err)
	}
	noTime := &Table{Columns: []*Column{{Name: "x", Values: []any{1.0}}}}
	if _, err := Normalize(noTime); !errors.Is(err, ErrMissingTime) {
		t.Fatalf("expected ErrMissingTime, got %v", err)
	}
}

func TestAddColumnGuards(t *testing.T) {
	testlog.Start(t)
	tb := New("f", "")
	require.NoError(t, tb.AddColumn(NewColumn("a", []any{1.0, 2.0})))
	assert.ErrorIs(t, tb.AddColumn(NewColumn("a", []any{1.0, 2.0})), ErrDuplicateColumn)
	assert.ErrorIs(t, tb.AddColumn(NewColumn("b", []any{1.0})), ErrLengthMismatch)
}

func TestSanitizeMixedColumns(t *testing.T) {
	testlog.Start(t)
	in := &Table{Columns: []*Column{
		NewColumn(TimeColumn, []any{1.0, 2.0, 3.0}),
		NewColumn("numeric", []any{1.0, "2.5", nil}),
		NewColumn("labels", []any{"ON", 3.0, nil}),
		NewColumn("plain", []any{4.0, 5.0, 6.0}),
	}}
	require.Equal(t, KindMixed, in.Columns[1].Kind)
	require.Equal(t, KindMixed, in.Columns[2].Kind)

	out := Sanitize(in)
	numeric, _ := out.Column("numeric")
	assert.Equal(t, KindFloat, numeric.Kind)
	assert.Equal(t, []any{1.0, 2.5, nil}, numeric.Values)

	labels, _ := out.Column("labels")
	assert.Equal(t, KindText, labels.Kind)
	assert.Equal(t, []any{"ON", "3", nil}, labels.Values)

	plain, _ := out.Column("plain")
	assert.Same(t, in.Columns[3], plain)
}

func TestBuilderPadsSparseRows(t *testing.T) {
	testlog.Start(t)
	b := NewBuilder("f", "src")
	b.Append(map[string]any{TimeColumn: 1.0, "b": 2.0})
	b.Append(map[string]any{TimeColumn: 2.0, "a": "x", "b": math.NaN()})
	tb := b.Build()

	assert.Equal(t, []string{TimeColumn, "a", "b"}, tb.ColumnNames())
	a, _ := tb.Column("a")
	assert.Equal(t, []any{nil, "x"}, a.Values)
	assert.Equal(t, KindText, a.Kind)
	bcol, _ := tb.Column("b")
	assert.Equal(t, []any{2.0, nil}, bcol.Values)
	assert.Equal(t, "src", tb.Source)
}

func TestBuilderEmptyIsCanonical(t *testing.T) {
	testlog.Start(t)
	tb := NewBuilder("f", "src").Build()
	assert.True(t, tb.IsEmpty())
	assert.Equal(t, []string{TimeColumn, IDColumn}, tb.ColumnNames())
}

func TestColumnStatistics(t *testing.T) {
	testlog.Start(t)
	c := NewColumn("x", []any{1.0, 1.0, nil, 2.0})
	assert.Equal(t, 1, c.NullCount())
	assert.InDelta(t, 0.25, c.NullFraction(), 1e-12)
	assert.Equal(t, 2, c.Unique())
	assert.Equal(t, 0.0, NewColumn("e", []any{}).NullFraction())
}
