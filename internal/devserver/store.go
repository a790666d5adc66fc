package devserver

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bastagame/basta-client/internal"
	"github.com/bastagame/basta-client/internal/utils"
)

// apiError carries the HTTP status and the user-facing detail for the error
// envelope, mirroring the shape the client extracts.
type apiError struct {
	Status int
	Detail string
}

func (e *apiError) Error() string {
	return e.Detail
}

var (
	errRoomNotFound    = &apiError{http.StatusNotFound, "Room not found."}
	errNotJoinable     = &apiError{http.StatusForbidden, "This room is not available for joining (game in progress or finished)."}
	errRoomFull        = &apiError{http.StatusForbidden, "This room is full."}
	errAlreadyInRoom   = &apiError{http.StatusConflict, "You are already in this room."}
	errNotParticipant  = &apiError{http.StatusNotFound, "Participant not found in this room."}
	errNotHost         = &apiError{http.StatusForbidden, "Only the host can do that."}
	errNotWaiting      = &apiError{http.StatusBadRequest, "Room is not in 'waiting' state."}
	errNotAllReady     = &apiError{http.StatusBadRequest, "Cannot start game: Not all players are ready."}
	errTooFewPlayers   = &apiError{http.StatusBadRequest, "Cannot start game: More players are required."}
	errRoundNotActive  = &apiError{http.StatusConflict, "The round is not in progress."}
	errRoundNotOver    = &apiError{http.StatusBadRequest, "The current round has not shown its results yet."}
	errNoResults       = &apiError{http.StatusNotFound, "No results for that round."}
	errThemeNotFound   = &apiError{http.StatusNotFound, "Theme not found."}
	errMissingIdentity = &apiError{http.StatusUnauthorized, "Missing user identity."}
)

// Store is the in-memory state behind the dev room service: rooms with their
// rosters, the seeded reference data, the current round's submitted answers
// and the per-round authoritative results.
type Store struct {
	mu         sync.RWMutex
	rooms      map[string]*internal.Room
	byCode     map[string]string
	themes     []internal.Theme
	categories map[string][]internal.Category
	// answers: roomId -> participantId -> categoryId -> text, current round only.
	answers map[string]map[string]map[string]string
	// results: roomId -> roundNumber -> opaque results payload.
	results map[string]map[int]json.RawMessage
}

func NewStore() *Store {
	s := &Store{
		rooms:      make(map[string]*internal.Room),
		byCode:     make(map[string]string),
		categories: make(map[string][]internal.Category),
		answers:    make(map[string]map[string]map[string]string),
		results:    make(map[string]map[int]json.RawMessage),
	}
	s.seed()
	return s
}

// seed installs the classic football theme with its seven categories.
func (s *Store) seed() {
	theme := internal.Theme{Id: uuid.NewString(), Name: "Fútbol Clásico", CreatedAt: time.Now()}
	s.themes = append(s.themes, theme)

	names := []string{
		"Nombre Jugador",
		"Nombre Estadio",
		"Equipo",
		"Selección",
		"Director Técnico",
		"Apodo Jugador",
		"Cosa (fútbol)",
	}
	cats := make([]internal.Category, 0, len(names))
	for i, name := range names {
		cats = append(cats, internal.Category{
			Id:      uuid.NewString(),
			ThemeId: theme.Id,
			Name:    name,
			Order:   i,
		})
	}
	s.categories[theme.Id] = cats
}

func (s *Store) Themes() []internal.Theme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]internal.Theme, len(s.themes))
	copy(out, s.themes)
	return out
}

func (s *Store) Categories(themeId string) ([]internal.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cats, ok := s.categories[themeId]
	if !ok {
		return nil, errThemeNotFound
	}
	out := make([]internal.Category, len(cats))
	copy(out, cats)
	return out, nil
}

func (s *Store) CreateRoom(themeId string, maxPlayers int, userId string) (*internal.Room, error) {
	if maxPlayers <= 0 {
		maxPlayers = internal.DefaultMaxPlayers
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[themeId]; !ok {
		return nil, errThemeNotFound
	}

	code := utils.GenerateRoomCode()
	for s.byCode[code] != "" {
		code = utils.GenerateRoomCode()
	}

	now := time.Now()
	room := &internal.Room{
		Id:         uuid.NewString(),
		RoomCode:   code,
		ThemeId:    themeId,
		HostUserId: userId,
		Status:     internal.StatusWaiting,
		MaxPlayers: maxPlayers,
		CreatedAt:  now,
		Participants: []internal.Participant{{
			Id:       uuid.NewString(),
			UserId:   userId,
			Nickname: utils.DeriveNickname("", userId),
			JoinedAt: now,
		}},
	}
	room.Participants[0].GameRoomId = room.Id

	s.rooms[room.Id] = room
	s.byCode[code] = room.Id
	log.Printf("[CreateRoom] Room %s (%s) created by user %s", room.Id, code, userId)
	return room.Clone(), nil
}

func (s *Store) GetRoom(idOrCode string) (*internal.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room := s.lookupLocked(idOrCode)
	if room == nil {
		return nil, errRoomNotFound
	}
	return room.Clone(), nil
}

func (s *Store) lookupLocked(idOrCode string) *internal.Room {
	if room, ok := s.rooms[idOrCode]; ok {
		return room
	}
	if id, ok := s.byCode[utils.NormalizeRoomCode(idOrCode)]; ok {
		return s.rooms[id]
	}
	return nil
}

// JoinRoom validates and appends a participant, returning the updated room
// and the new roster entry (for the feed event).
func (s *Store) JoinRoom(code, userId, nickname string) (*internal.Room, *internal.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byCode[utils.NormalizeRoomCode(code)]
	if !ok {
		return nil, nil, errRoomNotFound
	}
	room := s.rooms[id]

	if room.Status != internal.StatusWaiting {
		return nil, nil, errNotJoinable
	}
	if len(room.Participants) >= room.MaxPlayers {
		return nil, nil, errRoomFull
	}
	if room.ParticipantForUser(userId) != nil {
		return nil, nil, errAlreadyInRoom
	}

	if nickname == "" {
		nickname = utils.DeriveNickname("", userId)
	}
	p := internal.Participant{
		Id:         uuid.NewString(),
		UserId:     userId,
		GameRoomId: room.Id,
		Nickname:   nickname,
		JoinedAt:   time.Now(),
	}
	room.Participants = append(room.Participants, p)
	log.Printf("[JoinRoom] User %s joined room %s as %q (%d players)", userId, room.Id, nickname, len(room.Participants))
	return room.Clone(), &p, nil
}

func (s *Store) SetReady(roomId, userId string, isReady bool) (*internal.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomId]
	if !ok {
		return nil, errRoomNotFound
	}
	if room.Status != internal.StatusWaiting {
		return nil, &apiError{http.StatusForbidden, "Cannot change ready status: Room is not in 'waiting' state."}
	}
	p := room.ParticipantForUser(userId)
	if p == nil {
		return nil, errNotParticipant
	}
	p.IsReady = isReady
	dup := *p
	return &dup, nil
}

func (s *Store) StartGame(roomId, userId string) (*internal.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomId]
	if !ok {
		return nil, errRoomNotFound
	}
	if room.HostUserId != userId {
		return nil, &apiError{http.StatusForbidden, "Only the host can start the game."}
	}
	if room.Status != internal.StatusWaiting {
		return nil, errNotWaiting
	}
	if len(room.Participants) < internal.MinPlayersToStart {
		return nil, errTooFewPlayers
	}
	for i := range room.Participants {
		if !room.Participants[i].IsReady {
			return nil, errNotAllReady
		}
	}

	room.Status = internal.StatusInProgress
	room.CurrentLetter = utils.RandomLetter()
	room.CurrentRoundNumber = 1
	s.answers[room.Id] = make(map[string]map[string]string)
	log.Printf("[StartGame] Room %s started, round 1, letter %s", room.Id, room.CurrentLetter)
	return room.Clone(), nil
}

// SubmitBasta records the caller's answers, scores the round and flips the
// room to round_over_results. Returns the updated room, the participants
// whose totals changed, and the stored results payload.
func (s *Store) SubmitBasta(roomId, userId string, answers map[string]string) (*internal.Room, []internal.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomId]
	if !ok {
		return nil, nil, errRoomNotFound
	}
	if room.Status != internal.StatusInProgress {
		return nil, nil, errRoundNotActive
	}
	caller := room.ParticipantForUser(userId)
	if caller == nil {
		return nil, nil, errNotParticipant
	}

	if s.answers[room.Id] == nil {
		s.answers[room.Id] = make(map[string]map[string]string)
	}
	sheet := make(map[string]string, len(answers))
	for catId, text := range answers {
		sheet[catId] = text
	}
	s.answers[room.Id][caller.Id] = sheet

	now := time.Now()
	room.BastaCallerId = caller.Id
	room.BastaCalledAt = &now
	room.Status = internal.StatusRoundOverResults

	payload, totals := scoreRound(room, s.answers[room.Id])
	if s.results[room.Id] == nil {
		s.results[room.Id] = make(map[int]json.RawMessage)
	}
	s.results[room.Id][room.CurrentRoundNumber] = payload

	updated := make([]internal.Participant, 0, len(totals))
	for i := range room.Participants {
		p := &room.Participants[i]
		if pts, ok := totals[p.Id]; ok && pts != 0 {
			p.Score += pts
			updated = append(updated, *p)
		}
	}

	log.Printf("[SubmitBasta] Room %s round %d stopped by %s (%s)",
		room.Id, room.CurrentRoundNumber, caller.Nickname, caller.Id)
	return room.Clone(), updated, nil
}

func (s *Store) NextRound(roomId, userId string) (*internal.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomId]
	if !ok {
		return nil, errRoomNotFound
	}
	if room.HostUserId != userId {
		return nil, &apiError{http.StatusForbidden, "Only the host can start the next round."}
	}
	if room.Status != internal.StatusRoundOverResults {
		return nil, errRoundNotOver
	}

	if room.CurrentRoundNumber >= internal.MaxRoundsPerGame {
		room.Status = internal.StatusFinished
		log.Printf("[NextRound] Room %s finished after round %d", room.Id, room.CurrentRoundNumber)
		return room.Clone(), nil
	}

	room.CurrentRoundNumber++
	room.CurrentLetter = utils.RandomLetter()
	room.BastaCallerId = ""
	room.BastaCalledAt = nil
	room.Status = internal.StatusInProgress
	s.answers[room.Id] = make(map[string]map[string]string)
	log.Printf("[NextRound] Room %s advanced to round %d, letter %s",
		room.Id, room.CurrentRoundNumber, room.CurrentLetter)
	return room.Clone(), nil
}

func (s *Store) RoundResults(roomId string, roundNumber int) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.rooms[roomId]; !ok {
		return nil, errRoomNotFound
	}
	payload, ok := s.results[roomId][roundNumber]
	if !ok {
		return nil, errNoResults
	}
	return payload, nil
}

// Leave removes the caller from the room. The host role is reassigned to the
// longest-standing remaining participant so a room never has zero hosts; an
// emptied room is deleted. Returns the removed entry, the post-leave room
// snapshot (nil when deleted), and whether the host changed.
func (s *Store) Leave(roomId, userId string) (*internal.Participant, *internal.Room, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomId]
	if !ok {
		return nil, nil, false, errRoomNotFound
	}
	idx := -1
	for i := range room.Participants {
		if room.Participants[i].UserId == userId {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, nil, false, errNotParticipant
	}

	removed := room.Participants[idx]
	room.Participants = append(room.Participants[:idx], room.Participants[idx+1:]...)
	delete(s.answers[room.Id], removed.Id)

	if len(room.Participants) == 0 {
		delete(s.rooms, room.Id)
		delete(s.byCode, room.RoomCode)
		delete(s.answers, room.Id)
		delete(s.results, room.Id)
		log.Printf("[Leave] Room %s emptied and deleted", room.Id)
		return &removed, nil, false, nil
	}

	hostChanged := false
	if room.HostUserId == userId {
		room.HostUserId = room.Participants[0].UserId
		hostChanged = true
		log.Printf("[Leave] Host left room %s, reassigned to user %s", room.Id, room.HostUserId)
	}
	return &removed, room.Clone(), hostChanged, nil
}
