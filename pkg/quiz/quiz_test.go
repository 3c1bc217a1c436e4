package quiz

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/ecorecycle/pkg/mapper"
	"github.com/menta2k/ecorecycle/pkg/types"
)

func assertStructure(t *testing.T, qs []types.QuizQuestion) {
	t.Helper()
	require.GreaterOrEqual(t, len(qs), MinQuestions)
	require.LessOrEqual(t, len(qs), MaxQuestions)

	texts := make(map[string]bool)
	for _, q := range qs {
		assert.False(t, texts[q.Text], "duplicate question %q", q.Text)
		texts[q.Text] = true
		assert.True(t, Valid(q), "invalid question %+v", q)
	}
}

func TestGenerateStructuralInvariants(t *testing.T) {
	inputs := [][]string{
		nil,
		{"papel"},
		{"unknown_blob", "unknown_blob"},
		{"papel", "papel", "metal"},
		{"Plástico", "Metal", "Papel", "Cartón", "Vidrio", "Orgánico"},
	}
	for seed := int64(0); seed < 25; seed++ {
		g := New(rand.New(rand.NewSource(seed)))
		for _, in := range inputs {
			assertStructure(t, g.Generate(in))
		}
	}
}

func TestGenerateTagsEachMaterial(t *testing.T) {
	for seed := int64(0); seed < 10; seed++ {
		g := New(rand.New(rand.NewSource(seed)))
		qs := g.Generate([]string{"papel", "metal", "vidrio"})
		assertStructure(t, qs)

		tags := map[string]bool{}
		for _, q := range qs {
			tags[q.SourceMaterial] = true
		}
		for _, m := range []string{"papel", "metal", "vidrio"} {
			assert.True(t, tags[m], "no question for %s (seed %d)", m, seed)
		}
	}
}

func TestGenerateDeduplicatesMaterials(t *testing.T) {
	g := New(rand.New(rand.NewSource(1)))
	qs := g.Generate([]string{"metal", "Metal", "lata de aluminio"})

	var fromMetal int
	for _, q := range qs {
		if q.SourceMaterial == "metal" {
			fromMetal++
		}
	}
	assert.Equal(t, 1, fromMetal)
	assertStructure(t, qs)
}

func TestGenerateCapsAtMax(t *testing.T) {
	g := New(rand.New(rand.NewSource(7)))
	qs := g.Generate([]string{"plástico", "metal", "papel", "cartón", "vidrio", "orgánico"})
	assert.Len(t, qs, MaxQuestions)
	for _, q := range qs {
		assert.NotEmpty(t, q.SourceMaterial)
	}
}

func TestGenerateSameSeedSameQuiz(t *testing.T) {
	in := []string{"papel", "plástico"}
	a := New(rand.New(rand.NewSource(42))).Generate(in)
	b := New(rand.New(rand.NewSource(42))).Generate(in)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed produced different quizzes (-a +b):\n%s", diff)
	}
}

func TestGenerateSkipsGeneralDuplicates(t *testing.T) {
	shared := types.QuizQuestion{Text: "shared", Options: []string{"a", "b"}}
	g := NewWithPools(rand.New(rand.NewSource(3)), mapper.New(),
		map[string][]types.QuizQuestion{"papel": {shared}},
		[]types.QuizQuestion{
			shared,
			{Text: "g1", Options: []string{"a", "b"}},
			{Text: "g2", Options: []string{"a", "b"}},
		})

	qs := g.Generate([]string{"papel"})
	assert.Len(t, qs, 3)
	assertStructure(t, qs)
}

func TestGenerateStopsWhenGeneralPoolExhausted(t *testing.T) {
	g := NewWithPools(rand.New(rand.NewSource(3)), mapper.New(), nil,
		[]types.QuizQuestion{{Text: "only", Options: []string{"a", "b"}}})
	assert.Len(t, g.Generate([]string{"metal"}), 1)
}

func TestScore(t *testing.T) {
	qs := []types.QuizQuestion{
		{Text: "q0", Options: []string{"a", "b"}, CorrectOptionIndex: 0},
		{Text: "q1", Options: []string{"a", "b"}, CorrectOptionIndex: 1},
		{Text: "q2", Options: []string{"a", "b", "c"}, CorrectOptionIndex: 2},
	}
	answers := map[int]int{0: 0, 1: 0}

	got := Score(qs, answers)
	want := types.QuizResult{
		PerQuestion: []types.QuestionOutcome{
			{ChosenIndex: 0, IsCorrect: true},
			{ChosenIndex: 0, IsCorrect: false},
			{ChosenIndex: -1, IsCorrect: false},
		},
		CorrectCount: 1,
		BonusPoints:  2,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Score mismatch (-want +got):\n%s", diff)
	}

	again := Score(qs, answers)
	assert.Equal(t, got, again)
}

func TestScoreAllCorrect(t *testing.T) {
	qs := DefaultGeneral[:4]
	answers := map[int]int{}
	for i, q := range qs {
		answers[i] = q.CorrectOptionIndex
	}
	res := Score(qs, answers)
	assert.Equal(t, 4, res.CorrectCount)
	assert.Equal(t, 8, res.BonusPoints)
}

func TestDefaultPoolsValid(t *testing.T) {
	for key, pool := range DefaultCurated {
		_, ok := mapper.New().Lookup(key)
		assert.True(t, ok, "curated key %q is not a mapping key", key)
		for _, q := range pool {
			assert.True(t, Valid(q), "%+v", q)
		}
	}
	for _, q := range DefaultGeneral {
		assert.True(t, Valid(q), "%+v", q)
	}
}
