package annotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JingePHA/eval-ui/internal/models"
)

func TestRangeSet_AddRemove(t *testing.T) {
	s := NewRangeSet("", nil)
	_, err := s.Add(5, 12, "tumor margin", "")
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())

	assert.Equal(t, 1, s.Remove("tumor margin"))
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Resolve())
}

func TestRangeSet_RemoveNoMatch(t *testing.T) {
	s := NewRangeSet("", nil)
	_, _ = s.Add(0, 4, "left", "")
	assert.Equal(t, 0, s.Remove("right"))
	assert.Equal(t, 1, s.Len())
}

func TestRangeSet_RemoveAllWithSameText(t *testing.T) {
	s := NewRangeSet("", nil)
	_, _ = s.Add(0, 3, "pT2", "a")
	_, _ = s.Add(40, 43, "pT2", "b")
	_, _ = s.Add(50, 55, "other", "")
	assert.Equal(t, 2, s.Remove("pT2"))
	require.Equal(t, 1, s.Len())
	assert.Equal(t, "other", s.Annotations()[0].Text)
}

func TestRangeSet_RemoveAt(t *testing.T) {
	s := NewRangeSet("", nil)
	_, _ = s.Add(0, 3, "pT2", "a")
	_, _ = s.Add(40, 43, "pT2", "b")
	assert.Equal(t, 1, s.RemoveAt(40, 43))
	require.Equal(t, 1, s.Len())
	assert.Equal(t, 0, s.Annotations()[0].Start)
}

func TestRangeSet_AddInvalid(t *testing.T) {
	tests := []struct {
		name       string
		start, end int
	}{
		{"start equals end", 4, 4},
		{"start after end", 9, 2},
		{"negative start", -1, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewRangeSet("some transcript", nil)
			_, err := s.Add(tt.start, tt.end, "x", "")
			assert.ErrorIs(t, err, ErrInvalidRange)
			assert.Equal(t, 0, s.Len())
		})
	}
}

func TestRangeSet_AddExtendsOverTrailingWhitespace(t *testing.T) {
	transcript := "Margins negative\nNodes 0/12"
	s := NewRangeSet(transcript, nil)

	a, err := s.Add(0, 7, "Margins", "")
	require.NoError(t, err)
	assert.Equal(t, 8, a.End, "space after end is included")

	b, err := s.Add(8, 16, "negative", "")
	require.NoError(t, err)
	assert.Equal(t, 17, b.End, "newline after end is included")

	c, err := s.Add(17, 22, "Nodes", "")
	require.NoError(t, err)
	assert.Equal(t, 23, c.End)

	d, err := s.Add(23, 27, "0/12", "")
	require.NoError(t, err)
	assert.Equal(t, 27, d.End, "end of transcript is not extended")

	e, err := s.Add(1, 2, "a", "")
	require.NoError(t, err)
	assert.Equal(t, 2, e.End, "non-whitespace is not extended")
}

func TestRangeSet_AddNotValidatedAgainstLength(t *testing.T) {
	s := NewRangeSet("short", nil)
	a, err := s.Add(100, 120, "beyond", "")
	require.NoError(t, err)
	assert.Equal(t, 120, a.End)
}

func TestRangeSet_SetComment(t *testing.T) {
	s := NewRangeSet("", []models.RangeAnnotation{{Text: "pT2", Start: 0, End: 3}})
	assert.True(t, s.SetComment(0, 3, "confirm depth"))
	assert.Equal(t, "confirm depth", s.Annotations()[0].Comment)

	assert.False(t, s.SetComment(0, 4, "nope"))
	assert.Equal(t, "confirm depth", s.Annotations()[0].Comment)
}

func TestRangeSet_Resolve(t *testing.T) {
	tests := []struct {
		name  string
		input []models.RangeAnnotation
		want  []models.RangeAnnotation
	}{
		{
			name:  "empty",
			input: nil,
			want:  []models.RangeAnnotation{},
		},
		{
			name: "nested chain keeps outermost",
			input: []models.RangeAnnotation{
				{Text: "c", Start: 4, End: 6},
				{Text: "a", Start: 0, End: 20},
				{Text: "b", Start: 2, End: 10},
				{Text: "d", Start: 5, End: 6},
			},
			want: []models.RangeAnnotation{{Text: "a", Start: 0, End: 20}},
		},
		{
			name: "identical intervals collapse to the first",
			input: []models.RangeAnnotation{
				{Text: "x", Start: 3, End: 9, Comment: "first"},
				{Text: "x", Start: 3, End: 9, Comment: "second"},
			},
			want: []models.RangeAnnotation{{Text: "x", Start: 3, End: 9, Comment: "first"}},
		},
		{
			name: "three identical intervals",
			input: []models.RangeAnnotation{
				{Start: 1, End: 2, Comment: "1"},
				{Start: 1, End: 2, Comment: "2"},
				{Start: 1, End: 2, Comment: "3"},
			},
			want: []models.RangeAnnotation{{Start: 1, End: 2, Comment: "1"}},
		},
		{
			name: "crossing intervals both survive",
			input: []models.RangeAnnotation{
				{Start: 0, End: 10},
				{Start: 5, End: 15},
			},
			want: []models.RangeAnnotation{{Start: 0, End: 10}, {Start: 5, End: 15}},
		},
		{
			name: "shared start is containment",
			input: []models.RangeAnnotation{
				{Start: 0, End: 5},
				{Start: 0, End: 10},
			},
			want: []models.RangeAnnotation{{Start: 0, End: 10}},
		},
		{
			name: "duplicates inside an outer span are all dropped",
			input: []models.RangeAnnotation{
				{Start: 2, End: 4},
				{Start: 2, End: 4},
				{Start: 0, End: 8},
			},
			want: []models.RangeAnnotation{{Start: 0, End: 8}},
		},
		{
			name: "disjoint spans keep insertion order",
			input: []models.RangeAnnotation{
				{Start: 30, End: 40},
				{Start: 0, End: 5},
			},
			want: []models.RangeAnnotation{{Start: 30, End: 40}, {Start: 0, End: 5}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewRangeSet("", tt.input)
			got := s.Resolve()
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.input), s.Len(), "Resolve must not mutate the set")
		})
	}
}

func TestRangeSet_NestedChainProperty(t *testing.T) {
	for n := 1; n <= 8; n++ {
		var chain []models.RangeAnnotation
		for i := 0; i < n; i++ {
			chain = append(chain, models.RangeAnnotation{Start: i, End: 100 - i})
		}
		got := NewRangeSet("", chain).Resolve()
		require.Len(t, got, 1, "chain of %d", n)
		assert.Equal(t, 0, got[0].Start)
		assert.Equal(t, 100, got[0].End)
	}
}

func TestRangeSet_Commit(t *testing.T) {
	s := NewRangeSet("", []models.RangeAnnotation{
		{Start: 0, End: 10},
		{Start: 2, End: 3},
	})
	got := s.Commit()
	require.Len(t, got, 1)
	assert.Equal(t, 1, s.Len())

	got[0].Comment = "mutated"
	assert.Empty(t, s.Annotations()[0].Comment, "commit result must not alias the set")
}
