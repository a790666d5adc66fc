package internal

import "time"

// ChangeOp tags a change-feed event. The feed delivers events at-least-once,
// per-id ordered, with no guarantees across ids.
type ChangeOp string

const (
	OpInsert ChangeOp = "insert"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

type Resource string

const (
	ResourceRoom        Resource = "room"
	ResourceParticipant Resource = "participant"
)

// Envelope is the wire frame of the realtime change feed.
type Envelope[T any] struct {
	Resource Resource `json:"resource"`
	Op       ChangeOp `json:"op"`
	Data     T        `json:"data"`
}

// ParticipantPatch carries only the fields present in a feed payload. Pointer
// fields distinguish "absent from the event" from a zero value, so partial
// updates never clobber fields the event did not mention.
type ParticipantPatch struct {
	Id         string     `json:"id"`
	UserId     *string    `json:"user_id,omitempty"`
	GameRoomId *string    `json:"game_room_id,omitempty"`
	Nickname   *string    `json:"nickname,omitempty"`
	Score      *int       `json:"score,omitempty"`
	IsReady    *bool      `json:"is_ready,omitempty"`
	JoinedAt   *time.Time `json:"joined_at,omitempty"`
}

// Materialize builds a full participant from a patch. Used when an update
// arrives for an id the roster has never seen (missed insert recovery).
func (p ParticipantPatch) Materialize() Participant {
	out := Participant{Id: p.Id}
	if p.UserId != nil {
		out.UserId = *p.UserId
	}
	if p.GameRoomId != nil {
		out.GameRoomId = *p.GameRoomId
	}
	if p.Nickname != nil {
		out.Nickname = *p.Nickname
	}
	if p.Score != nil {
		out.Score = *p.Score
	}
	if p.IsReady != nil {
		out.IsReady = *p.IsReady
	}
	if p.JoinedAt != nil {
		out.JoinedAt = *p.JoinedAt
	}
	return out
}

// RoomPatch is the fixed allow-list of room-level fields a feed event may
// touch. The participant collection deliberately has no field here: rosters
// are reconciled exclusively through participant events.
type RoomPatch struct {
	Id                 *string     `json:"id,omitempty"`
	RoomCode           *string     `json:"room_code,omitempty"`
	ThemeId            *string     `json:"theme_id,omitempty"`
	HostUserId         *string     `json:"host_user_id,omitempty"`
	Status             *RoomStatus `json:"status,omitempty"`
	CurrentLetter      *string     `json:"current_letter,omitempty"`
	CurrentRoundNumber *int        `json:"current_round_number,omitempty"`
	BastaCallerId      *string     `json:"basta_caller_id,omitempty"`
	BastaCalledAt      *time.Time  `json:"basta_called_at,omitempty"`
	MaxPlayers         *int        `json:"max_players,omitempty"`
}

// ParticipantEvent and RoomEvent are the tagged variants handed to the
// reconciliation layer.
type ParticipantEvent struct {
	Op          ChangeOp
	Participant ParticipantPatch
}

type RoomEvent struct {
	Op   ChangeOp
	Room RoomPatch
}
