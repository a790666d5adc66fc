package internal

import (
	"time"
)

const (
	DefaultMaxPlayers = 8
	MinPlayersToStart = 2
	MaxRoundsPerGame  = 5
	RoomCodeLength    = 6
	Alphabet          = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// RoomStatus is the server-owned room lifecycle state. There is no stored
// "idle" status: idle is simply the absence of a local room snapshot.
type RoomStatus string

const (
	StatusWaiting          RoomStatus = "waiting"
	StatusInProgress       RoomStatus = "in_progress"
	StatusRoundOverResults RoomStatus = "round_over_results"
	StatusFinished         RoomStatus = "finished"
)

// Identity is what the external identity provider exposes. The coordination
// core only ever reads it.
type Identity struct {
	UserId          string `json:"user_id"`
	IsAuthenticated bool   `json:"is_authenticated"`
}

type Participant struct {
	Id         string    `json:"id"`
	UserId     string    `json:"user_id"`
	GameRoomId string    `json:"game_room_id"`
	Nickname   string    `json:"nickname"`
	Score      int       `json:"score"`
	IsReady    bool      `json:"is_ready"`
	JoinedAt   time.Time `json:"joined_at"`
}

type Room struct {
	Id                 string     `json:"id"`
	RoomCode           string     `json:"room_code"`
	ThemeId            string     `json:"theme_id"`
	HostUserId         string     `json:"host_user_id"`
	Status             RoomStatus `json:"status"`
	CurrentLetter      string     `json:"current_letter"`
	CurrentRoundNumber int        `json:"current_round_number"`
	BastaCallerId      string     `json:"basta_caller_id,omitempty"`
	BastaCalledAt      *time.Time `json:"basta_called_at,omitempty"`
	MaxPlayers         int        `json:"max_players"`
	CreatedAt          time.Time  `json:"created_at"`

	// Participants are reconciled through their own event stream, never
	// through room-level updates.
	Participants []Participant `json:"room_participants"`
}

// FindParticipant returns the index of the participant with the given id,
// or -1 if absent.
func (r *Room) FindParticipant(id string) int {
	for i := range r.Participants {
		if r.Participants[i].Id == id {
			return i
		}
	}
	return -1
}

// ParticipantForUser returns the roster entry belonging to a user id, if any.
func (r *Room) ParticipantForUser(userId string) *Participant {
	for i := range r.Participants {
		if r.Participants[i].UserId == userId {
			return &r.Participants[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the room snapshot so readers never alias the
// coordinator's internal state.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	dup := *r
	dup.Participants = make([]Participant, len(r.Participants))
	copy(dup.Participants, r.Participants)
	if r.BastaCalledAt != nil {
		at := *r.BastaCalledAt
		dup.BastaCalledAt = &at
	}
	return &dup
}

// Theme and Category are read-only reference data fetched once per theme
// selection.
type Theme struct {
	Id        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Category struct {
	Id      string `json:"id"`
	ThemeId string `json:"theme_id"`
	Name    string `json:"name"`
	Order   int    `json:"order"`
}
