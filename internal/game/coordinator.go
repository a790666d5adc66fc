package game

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/bastagame/basta-client/internal"
	"github.com/bastagame/basta-client/internal/utils"
)

// =============================================================================
// ROOM COORDINATOR
// =============================================================================

// IdentityProvider supplies the current user identity. The coordinator reads
// it fresh at every guard; the decision is never cached across a network call.
type IdentityProvider interface {
	Current() internal.Identity
}

// RoomService is the remote request/response API the coordinator mutates room
// state through. The authoritative post-mutation state arrives asynchronously
// over the realtime feed; acks here only mean the request was accepted.
type RoomService interface {
	CreateRoom(ctx context.Context, themeId string, maxPlayers int) (*internal.Room, error)
	JoinRoom(ctx context.Context, roomCode, nickname string) (*internal.Room, error)
	GetRoom(ctx context.Context, roomIdOrCode string) (*internal.Room, error)
	LeaveRoom(ctx context.Context, roomId string) error
	SetReady(ctx context.Context, roomId string, isReady bool) error
	StartGame(ctx context.Context, roomId string) error
	SubmitBasta(ctx context.Context, roomId string, answers map[string]string) error
	NextRound(ctx context.Context, roomId string) error
	GetRoundResults(ctx context.Context, roomId string, roundNumber int) (json.RawMessage, error)
	ListThemes(ctx context.Context) ([]internal.Theme, error)
	ListCategories(ctx context.Context, themeId string) ([]internal.Category, error)
}

// Busy-flag keys, one per mutating operation. Operations do not block each
// other's admission; each tracks its own in-flight state.
const (
	ActionCreateRoom   = "create_room"
	ActionJoinRoom     = "join_room"
	ActionFetchRoom    = "fetch_room"
	ActionLeaveRoom    = "leave_room"
	ActionSetReady     = "set_ready"
	ActionStartGame    = "start_game"
	ActionNextRound    = "next_round"
	ActionSubmitBasta  = "submit_basta"
	ActionFetchResults = "fetch_results"
)

// Coordinator owns the authoritative local room snapshot. All mutation goes
// through its actions or through the reconciliation handlers in reconcile.go;
// derived queries re-read the snapshot on every call.
type Coordinator struct {
	identity IdentityProvider
	service  RoomService

	mu         sync.RWMutex
	room       *internal.Room
	roomErr    string
	busy       map[string]bool
	categories []internal.Category
	sheet      *AnswerSheet
	results    json.RawMessage
	listener   TransitionListener
}

func NewCoordinator(identity IdentityProvider, service RoomService) *Coordinator {
	return &Coordinator{
		identity: identity,
		service:  service,
		busy:     make(map[string]bool),
	}
}

// OnTransition registers the observer for structured state-change events.
func (c *Coordinator) OnTransition(fn TransitionListener) {
	c.mu.Lock()
	c.listener = fn
	c.mu.Unlock()
}

// IsHost is the single host-check used at every gate: true only when there is
// a room, an authenticated identity, and a matching host id. Fails closed.
func IsHost(room *internal.Room, identity internal.Identity) bool {
	if room == nil || !identity.IsAuthenticated || identity.UserId == "" || room.HostUserId == "" {
		return false
	}
	return room.HostUserId == identity.UserId
}

// -----------------------------------------------------------------------------
// Actions
// -----------------------------------------------------------------------------

// CreateRoom creates a room and installs the returned snapshot. Any prior
// round state is discarded; a partial snapshot is cleared on failure.
func (c *Coordinator) CreateRoom(ctx context.Context, themeId string, maxPlayers int) (*internal.Room, error) {
	if err := c.requireAuthenticated(); err != nil {
		return nil, err
	}

	c.beginOp(ActionCreateRoom)
	defer c.endOp(ActionCreateRoom)

	room, err := c.service.CreateRoom(ctx, themeId, maxPlayers)
	if err != nil {
		log.Printf("[CreateRoom] Service call failed: %v", err)
		c.mu.Lock()
		c.clearRoomLocked()
		c.roomErr = userMessage(err, "Unknown error creating the room.")
		c.mu.Unlock()
		return nil, err
	}

	tr := c.installRoom(room)
	c.fireTransition(tr)
	log.Printf("[CreateRoom] Room %s (%s) created", room.Id, room.RoomCode)
	return room.Clone(), nil
}

// JoinRoom joins by code. The code is case-normalized before transmission; a
// failure leaves any existing snapshot untouched (the caller may not be in a
// room at all).
func (c *Coordinator) JoinRoom(ctx context.Context, roomCode, nickname string) (*internal.Room, error) {
	if err := c.requireAuthenticated(); err != nil {
		return nil, err
	}

	c.beginOp(ActionJoinRoom)
	defer c.endOp(ActionJoinRoom)

	code := utils.NormalizeRoomCode(roomCode)
	room, err := c.service.JoinRoom(ctx, code, nickname)
	if err != nil {
		log.Printf("[JoinRoom] Failed to join room %s: %v", code, err)
		c.setError(userMessage(err, "Unknown error joining the room."))
		return nil, err
	}

	tr := c.installRoom(room)
	c.fireTransition(tr)
	log.Printf("[JoinRoom] Joined room %s (%s)", room.Id, room.RoomCode)
	return room.Clone(), nil
}

// FetchRoomDetails refreshes the snapshot by id or code. Read-only: a failure
// keeps the last-known-good snapshot so the caller may retry.
func (c *Coordinator) FetchRoomDetails(ctx context.Context, roomIdOrCode string) (*internal.Room, error) {
	c.beginOp(ActionFetchRoom)
	defer c.endOp(ActionFetchRoom)

	room, err := c.service.GetRoom(ctx, roomIdOrCode)
	if err != nil {
		log.Printf("[FetchRoomDetails] Failed for %q: %v", roomIdOrCode, err)
		c.setError(userMessage(err, "Could not load room details."))
		return nil, err
	}

	tr := c.installRoom(room)
	c.fireTransition(tr)
	return room.Clone(), nil
}

// LeaveRoom notifies the service best-effort and then unconditionally clears
// the local snapshot: local state must never stay stuck in a room the user
// believes they left. A no-op without an active room.
func (c *Coordinator) LeaveRoom(ctx context.Context) error {
	c.mu.RLock()
	roomId := ""
	if c.room != nil {
		roomId = c.room.Id
	}
	c.mu.RUnlock()
	if roomId == "" {
		return nil
	}

	c.beginOp(ActionLeaveRoom)
	defer c.endOp(ActionLeaveRoom)

	err := c.service.LeaveRoom(ctx, roomId)
	if err != nil {
		log.Printf("[LeaveRoom] Best-effort notify failed for room %s: %v", roomId, err)
	}

	c.mu.Lock()
	c.clearRoomLocked()
	c.mu.Unlock()
	log.Printf("[LeaveRoom] Cleared local snapshot for room %s", roomId)
	return err
}

// SetMyReadyStatus sends the caller's own readiness. The service identifies
// the caller from the authenticated identity; the roster is not mutated
// optimistically here, the resulting realtime event updates it.
func (c *Coordinator) SetMyReadyStatus(ctx context.Context, isReady bool) error {
	c.mu.RLock()
	roomId := ""
	if c.room != nil {
		roomId = c.room.Id
	}
	c.mu.RUnlock()
	if roomId == "" {
		c.setError(ErrNoActiveRoom.Reason)
		return ErrNoActiveRoom
	}

	c.beginOp(ActionSetReady)
	defer c.endOp(ActionSetReady)

	if err := c.service.SetReady(ctx, roomId, isReady); err != nil {
		log.Printf("[SetMyReadyStatus] Failed for room %s: %v", roomId, err)
		c.setError(userMessage(err, "Could not change your ready status."))
		return err
	}
	c.clearErrorField()
	return nil
}

// StartGame is host-gated. Host identity is re-verified here against the
// current snapshot and a fresh identity read; readiness validation is
// entirely the service's job. The ack only means the request was accepted:
// the status flip to in_progress arrives over the feed.
func (c *Coordinator) StartGame(ctx context.Context) error {
	c.mu.RLock()
	room := c.room
	identity := c.identity.Current()
	isHost := IsHost(room, identity)
	roomId := ""
	if room != nil {
		roomId = room.Id
	}
	c.mu.RUnlock()

	if !isHost {
		log.Printf("[StartGame] Host guard failed: room=%v user=%q authenticated=%t",
			roomId != "", identity.UserId, identity.IsAuthenticated)
		c.setError(ErrNotHost.Reason)
		return ErrNotHost
	}

	c.beginOp(ActionStartGame)
	defer c.endOp(ActionStartGame)

	if err := c.service.StartGame(ctx, roomId); err != nil {
		log.Printf("[StartGame] Failed for room %s: %v", roomId, err)
		c.setError(userMessage(err, "Unknown error starting the game."))
		return err
	}
	c.clearErrorField()
	log.Printf("[StartGame] Accepted for room %s; awaiting confirmed status", roomId)
	return nil
}

// GoToNextRound is host-gated like StartGame and additionally requires the
// room to be showing results. The new letter and round number arrive via the
// feed, confirmed by the server.
func (c *Coordinator) GoToNextRound(ctx context.Context) error {
	c.mu.RLock()
	room := c.room
	identity := c.identity.Current()
	isHost := IsHost(room, identity)
	roomId := ""
	status := internal.RoomStatus("")
	if room != nil {
		roomId = room.Id
		status = room.Status
	}
	c.mu.RUnlock()

	if !isHost {
		c.setError(ErrNotHost.Reason)
		return ErrNotHost
	}
	if status != internal.StatusRoundOverResults {
		c.setError(ErrRoundNotOver.Reason)
		return ErrRoundNotOver
	}

	c.beginOp(ActionNextRound)
	defer c.endOp(ActionNextRound)

	if err := c.service.NextRound(ctx, roomId); err != nil {
		log.Printf("[GoToNextRound] Failed for room %s: %v", roomId, err)
		c.setError(userMessage(err, "Could not start the next round."))
		return err
	}
	c.clearErrorField()
	log.Printf("[GoToNextRound] Accepted for room %s", roomId)
	return nil
}

// PlayerSaysBasta submits the caller's answers. Locally gated on an active
// in-progress round; a duplicate racing the status flip is tolerated here and
// handled idempotently by the service.
func (c *Coordinator) PlayerSaysBasta(ctx context.Context, answers map[string]string) error {
	c.mu.RLock()
	roomId := ""
	status := internal.RoomStatus("")
	if c.room != nil {
		roomId = c.room.Id
		status = c.room.Status
	}
	c.mu.RUnlock()

	if roomId == "" {
		c.setError(ErrNoActiveRoom.Reason)
		return ErrNoActiveRoom
	}
	if status != internal.StatusInProgress {
		c.setError(ErrRoundNotActive.Reason)
		return ErrRoundNotActive
	}

	c.beginOp(ActionSubmitBasta)
	defer c.endOp(ActionSubmitBasta)

	if err := c.service.SubmitBasta(ctx, roomId, answers); err != nil {
		log.Printf("[PlayerSaysBasta] Failed for room %s: %v", roomId, err)
		c.setError(userMessage(err, "Could not process BASTA."))
		return err
	}
	c.clearErrorField()
	log.Printf("[PlayerSaysBasta] BASTA submitted for room %s", roomId)
	return nil
}

// FetchRoundResults fetches the authoritative results for the current round.
// The cached results are cleared before the fetch so stale data is never
// shown while a refresh is pending.
func (c *Coordinator) FetchRoundResults(ctx context.Context) (json.RawMessage, error) {
	c.mu.Lock()
	roomId := ""
	roundNumber := 0
	if c.room != nil {
		roomId = c.room.Id
		roundNumber = c.room.CurrentRoundNumber
	}
	if roomId == "" || roundNumber == 0 {
		c.roomErr = ErrNoRoundInfo.Reason
		c.mu.Unlock()
		return nil, ErrNoRoundInfo
	}
	c.results = nil
	c.mu.Unlock()

	c.beginOp(ActionFetchResults)
	defer c.endOp(ActionFetchResults)

	payload, err := c.service.GetRoundResults(ctx, roomId, roundNumber)
	if err != nil {
		log.Printf("[FetchRoundResults] Failed for room %s round %d: %v", roomId, roundNumber, err)
		c.setError(userMessage(err, "Could not load round results."))
		return nil, err
	}

	c.mu.Lock()
	c.results = payload
	c.roomErr = ""
	c.mu.Unlock()
	return payload, nil
}

// Themes lists the available themes.
func (c *Coordinator) Themes(ctx context.Context) ([]internal.Theme, error) {
	return c.service.ListThemes(ctx)
}

// LoadCategories fetches and retains the category set for a theme; the next
// round's answer sheet is keyed by it.
func (c *Coordinator) LoadCategories(ctx context.Context, themeId string) ([]internal.Category, error) {
	cats, err := c.service.ListCategories(ctx, themeId)
	if err != nil {
		c.setError(userMessage(err, "Could not load categories."))
		return nil, err
	}
	c.mu.Lock()
	c.categories = cats
	c.mu.Unlock()
	return cats, nil
}

// -----------------------------------------------------------------------------
// Derived queries (pure reads over the snapshot)
// -----------------------------------------------------------------------------

func (c *Coordinator) HasActiveRoom() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room != nil
}

func (c *Coordinator) RoomId() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.room == nil {
		return ""
	}
	return c.room.Id
}

func (c *Coordinator) RoomCode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.room == nil {
		return ""
	}
	return c.room.RoomCode
}

// Participants returns the roster in insertion order, as received.
func (c *Coordinator) Participants() []internal.Participant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.room == nil {
		return nil
	}
	out := make([]internal.Participant, len(c.room.Participants))
	copy(out, c.room.Participants)
	return out
}

// IsCurrentUserHost re-evaluates the host check on every read.
func (c *Coordinator) IsCurrentUserHost() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return IsHost(c.room, c.identity.Current())
}

// Snapshot returns a copy of the current room, or nil when idle.
func (c *Coordinator) Snapshot() *internal.Room {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room.Clone()
}

// LastError is the most recent user-facing error message, replaced on every
// new attempt.
func (c *Coordinator) LastError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomErr
}

// Busy reports whether the named operation is in flight.
func (c *Coordinator) Busy(action string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.busy[action]
}

// AnyBusy reports whether any operation is in flight.
func (c *Coordinator) AnyBusy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, b := range c.busy {
		if b {
			return true
		}
	}
	return false
}

// RoundResults returns the cached authoritative results, if fetched.
func (c *Coordinator) RoundResults() json.RawMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.results
}

// UpdateAnswer records an answer on the current round's sheet.
func (c *Coordinator) UpdateAnswer(categoryId, value string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sheet == nil {
		return false
	}
	return c.sheet.SetAnswer(categoryId, value)
}

// CurrentAnswers returns the round's answer map, total-key-covered.
func (c *Coordinator) CurrentAnswers() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sheet == nil {
		return nil
	}
	return c.sheet.Answers()
}

// PreviewScores returns the local score preview for the current sheet.
func (c *Coordinator) PreviewScores() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sheet == nil {
		return nil
	}
	return c.sheet.PreviewScores()
}

// -----------------------------------------------------------------------------
// Internals
// -----------------------------------------------------------------------------

func (c *Coordinator) requireAuthenticated() error {
	if !c.identity.Current().IsAuthenticated {
		c.setError(ErrNotAuthenticated.Reason)
		return ErrNotAuthenticated
	}
	return nil
}

func (c *Coordinator) beginOp(action string) {
	c.mu.Lock()
	c.busy[action] = true
	c.roomErr = ""
	c.mu.Unlock()
}

func (c *Coordinator) endOp(action string) {
	c.mu.Lock()
	c.busy[action] = false
	c.mu.Unlock()
}

func (c *Coordinator) setError(msg string) {
	c.mu.Lock()
	c.roomErr = msg
	c.mu.Unlock()
}

func (c *Coordinator) clearErrorField() {
	c.setError("")
}

// installRoom replaces the snapshot with a service-confirmed room and runs
// the round bookkeeping. Returns the transition to fire, if any.
func (c *Coordinator) installRoom(room *internal.Room) *Transition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setRoomLocked(room.Clone())
}

// setRoomLocked is the single snapshot writer. Caller holds c.mu.
func (c *Coordinator) setRoomLocked(room *internal.Room) *Transition {
	var from internal.RoomStatus
	if c.room != nil {
		from = c.room.Status
	}
	c.room = room
	c.roomErr = ""

	if room == nil || room.Status == from {
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

// roundBookkeepingLocked reacts to a confirmed status change: entering
// in_progress starts a fresh answer sheet and invalidates cached results.
func (c *Coordinator) roundBookkeepingLocked(from internal.RoomStatus, room *internal.Room) {
	if room.Status == internal.StatusInProgress {
		c.sheet = NewAnswerSheet(room.CurrentLetter, room.CurrentRoundNumber, c.categories)
		c.results = nil
	}
	if !IsLegalTransition(from, room.Status) && from != "" {
		log.Printf("[setRoom] Room %s: out-of-band status change %q -> %q applied (server is authoritative)",
			room.Id, from, room.Status)
	}
}

func (c *Coordinator) clearRoomLocked() {
	c.room = nil
	c.roomErr = ""
	c.sheet = nil
	c.results = nil
}

func (c *Coordinator) fireTransition(tr *Transition) {
	if tr == nil {
		return
	}
	c.mu.RLock()
	listener := c.listener
	c.mu.RUnlock()
	if listener != nil {
		listener(*tr)
	}
}
