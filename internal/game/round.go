package game

import (
	"strings"

	"github.com/bastagame/basta-client/internal"
)

// =============================================================================
// PER-ROUND LOCAL STATE
// =============================================================================

// AnswerSheet holds one player's answers for the round in play. Every
// category of the selected theme is present as a key from the moment the
// sheet is created, so submission never needs defensive key checks.
type AnswerSheet struct {
	Letter      string
	RoundNumber int
	categories  []internal.Category
	answers     map[string]string
}

// NewAnswerSheet pre-populates every category with an empty answer.
func NewAnswerSheet(letter string, roundNumber int, categories []internal.Category) *AnswerSheet {
	s := &AnswerSheet{
		Letter:      letter,
		RoundNumber: roundNumber,
		categories:  categories,
		answers:     make(map[string]string, len(categories)),
	}
	for _, cat := range categories {
		s.answers[cat.Id] = ""
	}
	return s
}

// SetAnswer records an answer for a known category. Unknown category ids are
// ignored and reported false.
func (s *AnswerSheet) SetAnswer(categoryId, value string) bool {
	if _, ok := s.answers[categoryId]; !ok {
		return false
	}
	s.answers[categoryId] = value
	return true
}

// Answers returns a copy of the category-id to answer mapping.
func (s *AnswerSheet) Answers() map[string]string {
	out := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// Categories returns the sheet's categories in theme order.
func (s *AnswerSheet) Categories() []internal.Category {
	return s.categories
}

// PreviewScores scores the sheet locally: 100 for a trimmed, case-normalized
// answer starting with the round letter, 0 otherwise. This is instant local
// feedback only; authoritative cross-player scoring is the room service's job.
func (s *AnswerSheet) PreviewScores() map[string]int {
	return PreviewScores(s.Letter, s.categories, s.answers)
}

// TotalPreviewScore sums the preview scores across all categories.
func (s *AnswerSheet) TotalPreviewScore() int {
	total := 0
	for _, score := range s.PreviewScores() {
		total += score
	}
	return total
}

// PreviewScores applies the local score rule over an arbitrary answer map.
// Every category gets an entry; categories missing from the answers map score
// 0 just like empty answers.
func PreviewScores(letter string, categories []internal.Category, answers map[string]string) map[string]int {
	scores := make(map[string]int, len(categories))
	prefix := strings.ToUpper(letter)
	for _, cat := range categories {
		answer := strings.TrimSpace(answers[cat.Id])
		if answer != "" && strings.HasPrefix(strings.ToUpper(answer), prefix) {
			scores[cat.Id] = 100
		} else {
			scores[cat.Id] = 0
		}
	}
	return scores
}
