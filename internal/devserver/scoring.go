package devserver

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bastagame/basta-client/internal"
)

// Authoritative round scoring. Unlike the client-side preview, answers are
// compared across players: a valid answer repeated by n players is worth
// 100/n points for each of them, a unique valid answer the full 100. Empty
// answers and answers not starting with the round letter score 0.

type answerResult struct {
	ParticipantId string `json:"participant_id"`
	CategoryId    string `json:"category_id"`
	Text          string `json:"text"`
	Score         int    `json:"score"`
	IsValid       bool   `json:"is_valid"`
	Notes         string `json:"notes"`
}

type roundResultsPayload struct {
	RoomId      string         `json:"room_id"`
	RoundNumber int            `json:"round_number"`
	Letter      string         `json:"letter"`
	Answers     []answerResult `json:"answers"`
	Totals      map[string]int `json:"totals"`
}

// scoreRound judges every submitted answer for the current round and returns
// the encoded results payload plus per-participant score deltas.
func scoreRound(room *internal.Room, submitted map[string]map[string]string) (json.RawMessage, map[string]int) {
	letter := strings.ToLower(room.CurrentLetter)

	results := make([]answerResult, 0)
	// categoryId -> normalized text -> participant ids that wrote it
	grouped := make(map[string]map[string][]string)

	for i := range room.Participants {
		pid := room.Participants[i].Id
		for catId, text := range submitted[pid] {
			normalized := strings.ToLower(strings.TrimSpace(text))
			res := answerResult{
				ParticipantId: pid,
				CategoryId:    catId,
				Text:          text,
			}
			switch {
			case normalized == "":
				res.Notes = "Vacía"
			case !strings.HasPrefix(normalized, letter):
				res.Notes = "Letra incorrecta"
			default:
				res.IsValid = true
				if grouped[catId] == nil {
					grouped[catId] = make(map[string][]string)
				}
				grouped[catId][normalized] = append(grouped[catId][normalized], pid)
			}
			results = append(results, res)
		}
	}

	totals := make(map[string]int)
	for i := range results {
		res := &results[i]
		if res.IsValid {
			normalized := strings.ToLower(strings.TrimSpace(res.Text))
			repetitions := len(grouped[res.CategoryId][normalized])
			if repetitions <= 1 {
				res.Score = 100
				res.Notes = "Única (100 pts)"
			} else {
				res.Score = 100 / repetitions
				res.Notes = fmt.Sprintf("Repetida (%d veces, %d pts c/u)", repetitions, res.Score)
			}
		}
		totals[res.ParticipantId] += res.Score
	}

	payload, _ := json.Marshal(roundResultsPayload{
		RoomId:      room.Id,
		RoundNumber: room.CurrentRoundNumber,
		Letter:      room.CurrentLetter,
		Answers:     results,
		Totals:      totals,
	})
	return payload, totals
}
