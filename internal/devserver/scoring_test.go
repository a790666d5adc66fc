package devserver

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastagame/basta-client/internal"
)

func scoringRoom() *internal.Room {
	return &internal.Room{
		Id:                 "room-1",
		CurrentLetter:      "M",
		CurrentRoundNumber: 1,
		Status:             internal.StatusRoundOverResults,
		Participants: []internal.Participant{
			{Id: "p-1", Nickname: "Ana"},
			{Id: "p-2", Nickname: "Beto"},
			{Id: "p-3", Nickname: "Carla"},
		},
	}
}

func TestScoreRound(t *testing.T) {
	room := scoringRoom()
	submitted := map[string]map[string]string{
		"p-1": {"team": "Milan", "coach": "Mourinho"},
		"p-2": {"team": " milan ", "coach": ""},
		"p-3": {"team": "Barcelona"},
	}

	payload, totals := scoreRound(room, submitted)

	var decoded roundResultsPayload
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "room-1", decoded.RoomId)
	assert.Equal(t, 1, decoded.RoundNumber)
	assert.Equal(t, "M", decoded.Letter)
	assert.Len(t, decoded.Answers, 5)

	byKey := make(map[string]answerResult)
	for _, res := range decoded.Answers {
		byKey[res.ParticipantId+"/"+res.CategoryId] = res
	}

	t.Run("repeated valid answers split the points", func(t *testing.T) {
		assert.Equal(t, 50, byKey["p-1/team"].Score)
		assert.Equal(t, 50, byKey["p-2/team"].Score, "normalization groups ' milan ' with 'Milan'")
		assert.Equal(t, "Repetida (2 veces, 50 pts c/u)", byKey["p-1/team"].Notes)
	})

	t.Run("unique valid answer scores full points", func(t *testing.T) {
		assert.Equal(t, 100, byKey["p-1/coach"].Score)
		assert.Equal(t, "Única (100 pts)", byKey["p-1/coach"].Notes)
	})

	t.Run("empty and wrong-letter answers score zero", func(t *testing.T) {
		assert.Equal(t, 0, byKey["p-2/coach"].Score)
		assert.Equal(t, "Vacía", byKey["p-2/coach"].Notes)
		assert.False(t, byKey["p-2/coach"].IsValid)

		assert.Equal(t, 0, byKey["p-3/team"].Score)
		assert.Equal(t, "Letra incorrecta", byKey["p-3/team"].Notes)
		assert.False(t, byKey["p-3/team"].IsValid)
	})

	t.Run("totals sum per participant", func(t *testing.T) {
		assert.Equal(t, 150, totals["p-1"])
		assert.Equal(t, 50, totals["p-2"])
		assert.Equal(t, 0, totals["p-3"])
		assert.Equal(t, totals, decoded.Totals)
	})
}

func TestScoreRoundThreeWaySplit(t *testing.T) {
	room := scoringRoom()
	submitted := map[string]map[string]string{
		"p-1": {"team": "Monterrey"},
		"p-2": {"team": "monterrey"},
		"p-3": {"team": "MONTERREY"},
	}

	_, totals := scoreRound(room, submitted)

	assert.Equal(t, 33, totals["p-1"])
	assert.Equal(t, 33, totals["p-2"])
	assert.Equal(t, 33, totals["p-3"])
}
