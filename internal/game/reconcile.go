package game

import (
	"log"
	"time"

	"github.com/bastagame/basta-client/internal"
)

// =============================================================================
// RECONCILIATION LAYER
// =============================================================================
//
// The feed delivers events at-least-once, possibly out of order across ids,
// possibly after disconnection gaps. Everything here is idempotent: duplicate
// application of the same event is a no-op, and only recognized fields are
// ever merged.

// ApplyParticipantEvent merges a participant change into the roster.
func (c *Coordinator) ApplyParticipantEvent(ev internal.ParticipantEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.room == nil {
		log.Printf("[ApplyParticipantEvent] No active room, dropping %s for participant %s", ev.Op, ev.Participant.Id)
		return
	}
	if ev.Participant.Id == "" {
		log.Printf("[ApplyParticipantEvent] Event without participant id, dropping")
		return
	}

	switch ev.Op {
	case internal.OpInsert:
		// Duplicate-suppression by id: the initial snapshot may already
		// contain this participant, or the feed may echo.
		if c.room.FindParticipant(ev.Participant.Id) != -1 {
			return
		}
		c.room.Participants = append(c.room.Participants, ev.Participant.Materialize())
		log.Printf("[ApplyParticipantEvent] Participant %s added to room %s", ev.Participant.Id, c.room.Id)

	case internal.OpUpdate:
		idx := c.room.FindParticipant(ev.Participant.Id)
		if idx == -1 {
			// Missed the insert; recover by treating the update as one.
			c.room.Participants = append(c.room.Participants, ev.Participant.Materialize())
			log.Printf("[ApplyParticipantEvent] Unknown participant %s appended from update event", ev.Participant.Id)
			return
		}
		mergeParticipant(&c.room.Participants[idx], ev.Participant)

	case internal.OpDelete:
		idx := c.room.FindParticipant(ev.Participant.Id)
		if idx == -1 {
			return
		}
		c.room.Participants = append(c.room.Participants[:idx], c.room.Participants[idx+1:]...)
		log.Printf("[ApplyParticipantEvent] Participant %s removed from room %s", ev.Participant.Id, c.room.Id)

	default:
		log.Printf("[ApplyParticipantEvent] Unknown op %q, dropping", ev.Op)
	}
}

// mergeParticipant shallow-merges the fields present in the patch, leaving
// everything the event did not mention untouched.
func mergeParticipant(dst *internal.Participant, patch internal.ParticipantPatch) {
	if patch.UserId != nil {
		dst.UserId = *patch.UserId
	}
	if patch.GameRoomId != nil {
		dst.GameRoomId = *patch.GameRoomId
	}
	if patch.Nickname != nil {
		dst.Nickname = *patch.Nickname
	}
	if patch.Score != nil {
		dst.Score = *patch.Score
	}
	if patch.IsReady != nil {
		dst.IsReady = *patch.IsReady
	}
	if patch.JoinedAt != nil {
		dst.JoinedAt = *patch.JoinedAt
	}
}

// ApplyRoomEvent merges a room-level change into the snapshot. Only the fixed
// allow-list of RoomPatch fields can be touched; the participant collection
// is never part of this path, so a stale room payload cannot clobber roster
// changes applied concurrently through participant events.
func (c *Coordinator) ApplyRoomEvent(ev internal.RoomEvent) {
	c.mu.Lock()

	if c.room == nil {
		c.mu.Unlock()
		log.Printf("[ApplyRoomEvent] No active room, dropping %s event", ev.Op)
		return
	}

	var tr *Transition
	switch ev.Op {
	case internal.OpInsert, internal.OpUpdate:
		tr = c.applyRoomPatchLocked(ev.Room)

	case internal.OpDelete:
		roomId := c.room.Id
		c.clearRoomLocked()
		log.Printf("[ApplyRoomEvent] Room %s deleted remotely, snapshot cleared", roomId)

	default:
		log.Printf("[ApplyRoomEvent] Unknown op %q, dropping", ev.Op)
	}
	c.mu.Unlock()

	c.fireTransition(tr)
}

// applyRoomPatchLocked writes each allow-listed field only when the incoming
// value differs from the current one, making re-application of the same event
// a no-op. Caller holds c.mu.
func (c *Coordinator) applyRoomPatchLocked(patch internal.RoomPatch) *Transition {
	room := c.room
	from := room.Status
	changed := false

	if patch.Id != nil && room.Id != *patch.Id {
		room.Id = *patch.Id
		changed = true
	}
	if patch.RoomCode != nil && room.RoomCode != *patch.RoomCode {
		room.RoomCode = *patch.RoomCode
		changed = true
	}
	if patch.ThemeId != nil && room.ThemeId != *patch.ThemeId {
		room.ThemeId = *patch.ThemeId
		changed = true
	}
	if patch.HostUserId != nil && room.HostUserId != *patch.HostUserId {
		room.HostUserId = *patch.HostUserId
		changed = true
	}
	if patch.Status != nil && room.Status != *patch.Status {
		room.Status = *patch.Status
		changed = true
	}
	if patch.CurrentLetter != nil && room.CurrentLetter != *patch.CurrentLetter {
		room.CurrentLetter = *patch.CurrentLetter
		changed = true
	}
	if patch.CurrentRoundNumber != nil && room.CurrentRoundNumber != *patch.CurrentRoundNumber {
		room.CurrentRoundNumber = *patch.CurrentRoundNumber
		changed = true
	}
	if patch.BastaCallerId != nil && room.BastaCallerId != *patch.BastaCallerId {
		room.BastaCallerId = *patch.BastaCallerId
		changed = true
	}
	if patch.BastaCalledAt != nil && (room.BastaCalledAt == nil || !room.BastaCalledAt.Equal(*patch.BastaCalledAt)) {
		at := *patch.BastaCalledAt
		room.BastaCalledAt = &at
		changed = true
	}
	if patch.MaxPlayers != nil && room.MaxPlayers != *patch.MaxPlayers {
		room.MaxPlayers = *patch.MaxPlayers
		changed = true
	}

	if !changed {
		return nil
	}
	log.Printf("[ApplyRoomEvent] Room %s updated via realtime (status=%s)", room.Id, room.Status)

	if room.Status == from {
		return nil
	}
	c.roundBookkeepingLocked(from, room)
	return &Transition{
		RoomId:      room.Id,
		From:        from,
		To:          room.Status,
		RoundNumber: room.CurrentRoundNumber,
		Letter:      room.CurrentLetter,
		At:          time.Now(),
	}
}
