// Package quiz builds short quizzes from the materials a user has just
// classified and scores the submitted answers.
package quiz

import (
	"math/rand"
	"sync"
	"time"

	"github.com/menta2k/ecorecycle/pkg/mapper"
	"github.com/menta2k/ecorecycle/pkg/types"
)

const (
	MinQuestions = 3
	MaxQuestions = 5

	// PointsPerCorrect is the bonus awarded for each correct answer
	PointsPerCorrect = 2
)

// Generator draws questions from curated and general pools
type Generator struct {
	mu      sync.Mutex
	rng     *rand.Rand
	mapper  *mapper.Mapper
	curated map[string][]types.QuizQuestion
	general []types.QuizQuestion
}

// New creates a Generator over the default pools. A nil rng is replaced with a
// time-seeded one.
func New(rng *rand.Rand) *Generator {
	return NewWithPools(rng, mapper.New(), DefaultCurated, DefaultGeneral)
}

// NewWithPools creates a Generator over custom pools. Curated pools are keyed by
// the mapping key the mapper resolves a material to.
func NewWithPools(rng *rand.Rand, m *mapper.Mapper, curated map[string][]types.QuizQuestion, general []types.QuizQuestion) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if m == nil {
		m = mapper.New()
	}
	return &Generator{rng: rng, mapper: m, curated: curated, general: general}
}

// Generate builds a quiz for the given materials, most relevant first. Each
// distinct material with a curated pool contributes one random question; the
// general pool pads the quiz when fewer than MinQuestions were produced.
func (g *Generator) Generate(recentMaterials []string) []types.QuizQuestion {
	g.mu.Lock()
	defer g.mu.Unlock()

	selected := make([]types.QuizQuestion, 0, MaxQuestions)
	seen := make(map[string]struct{})
	add := func(q types.QuizQuestion, source string) bool {
		if _, dup := seen[q.Text]; dup {
			return false
		}
		seen[q.Text] = struct{}{}
		q.Options = append([]string(nil), q.Options...)
		q.SourceMaterial = source
		selected = append(selected, q)
		return true
	}

	for _, key := range g.distinctKeys(recentMaterials) {
		if len(selected) == MaxQuestions {
			break
		}
		pool := g.curated[key]
		if len(pool) == 0 {
			continue
		}
		add(pool[g.rng.Intn(len(pool))], key)
	}

	if len(selected) < MinQuestions {
		for _, i := range g.rng.Perm(len(g.general)) {
			if len(selected) == MaxQuestions {
				break
			}
			add(g.general[i], "")
		}
	}
	return selected
}

func (g *Generator) distinctKeys(materials []string) []string {
	keys := make([]string, 0, len(materials))
	seen := make(map[string]struct{})
	for _, m := range materials {
		key := g.mapper.Map(m).Key
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

// Score grades answers keyed by question index. Unanswered questions are
// never correct.
func Score(questions []types.QuizQuestion, answers map[int]int) types.QuizResult {
	result := types.QuizResult{PerQuestion: make([]types.QuestionOutcome, len(questions))}
	for i, q := range questions {
		chosen, ok := answers[i]
		if !ok {
			chosen = -1
		}
		correct := ok && chosen == q.CorrectOptionIndex
		result.PerQuestion[i] = types.QuestionOutcome{ChosenIndex: chosen, IsCorrect: correct}
		if correct {
			result.CorrectCount++
		}
	}
	result.BonusPoints = result.CorrectCount * PointsPerCorrect
	return result
}

// Valid reports whether a question has at least two options and an in-range answer
func Valid(q types.QuizQuestion) bool {
	return q.Text != "" && len(q.Options) >= 2 && q.CorrectOptionIndex >= 0 && q.CorrectOptionIndex < len(q.Options)
}
