package devserver

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bastagame/basta-client/internal"
)

// Server is the in-memory reference implementation of the remote room service
// and its change feed. It backs the demo binary and the end-to-end tests;
// authentication is delegated to the caller via the X-User-Id header.
type Server struct {
	store    *Store
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewServer() *Server {
	return &Server{
		store: NewStore(),
		hub:   NewHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) RegisterRoutes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.corsMiddleware)

	r.HandleFunc("/", s.HelloHandler).Methods(http.MethodGet)
	r.HandleFunc("/themes/", s.ListThemes).Methods(http.MethodGet)
	r.HandleFunc("/categories/", s.ListCategories).Methods(http.MethodGet)

	r.HandleFunc("/rooms/", s.CreateRoom).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{code}/join/", s.JoinRoom).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{roomId}/leave/", s.LeaveRoom).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{idOrCode}/", s.GetRoomDetails).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{roomId}/participants/me/ready", s.SetReady).Methods(http.MethodPatch)
	r.HandleFunc("/rooms/{roomId}/start", s.StartGame).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{roomId}/rounds/basta", s.SubmitBasta).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{roomId}/next-round", s.NextRound).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{roomId}/rounds/{round}/results", s.RoundResults).Methods(http.MethodGet)

	r.HandleFunc("/ws/{roomId}", s.ServeFeed)

	return r
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-User-Id")

		if strings.ToLower(r.Header.Get("Upgrade")) == "websocket" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) HelloHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "¡Bienvenido al API de BASTA!"})
}

func (s *Server) ListThemes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Themes())
}

func (s *Server) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.store.Categories(r.URL.Query().Get("theme_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

type createRoomRequest struct {
	ThemeId    string `json:"theme_id"`
	MaxPlayers int    `json:"max_players"`
}

func (s *Server) CreateRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &apiError{http.StatusBadRequest, "Invalid request body."})
		return
	}

	room, err := s.store.CreateRoom(req.ThemeId, req.MaxPlayers, userId)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

type joinRoomRequest struct {
	Nickname string `json:"nickname"`
}

func (s *Server) JoinRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req joinRoomRequest
	// Body is optional on join.
	_ = json.NewDecoder(r.Body).Decode(&req)

	room, participant, err := s.store.JoinRoom(mux.Vars(r)["code"], userId, req.Nickname)
	if err != nil {
		writeError(w, err)
		return
	}

	s.hub.Publish(room.Id, internal.ResourceParticipant, internal.OpInsert, participant)
	writeJSON(w, http.StatusOK, room)
}

func (s *Server) GetRoomDetails(w http.ResponseWriter, r *http.Request) {
	room, err := s.store.GetRoom(mux.Vars(r)["idOrCode"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *Server) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	roomId := mux.Vars(r)["roomId"]

	removed, room, hostChanged, err := s.store.Leave(roomId, userId)
	if err != nil {
		writeError(w, err)
		return
	}

	if room == nil {
		s.hub.Publish(roomId, internal.ResourceRoom, internal.OpDelete, map[string]string{"id": roomId})
	} else {
		s.hub.Publish(roomId, internal.ResourceParticipant, internal.OpDelete, map[string]string{"id": removed.Id})
		if hostChanged {
			s.hub.Publish(roomId, internal.ResourceRoom, internal.OpUpdate, map[string]string{
				"id":           room.Id,
				"host_user_id": room.HostUserId,
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "left"})
}

type setReadyRequest struct {
	IsReady bool `json:"is_ready"`
}

func (s *Server) SetReady(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req setReadyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &apiError{http.StatusBadRequest, "Invalid request body."})
		return
	}

	roomId := mux.Vars(r)["roomId"]
	participant, err := s.store.SetReady(roomId, userId, req.IsReady)
	if err != nil {
		writeError(w, err)
		return
	}

	// Partial patch: only the field that changed travels on the feed.
	s.hub.Publish(roomId, internal.ResourceParticipant, internal.OpUpdate, map[string]any{
		"id":       participant.Id,
		"is_ready": participant.IsReady,
	})
	writeJSON(w, http.StatusOK, participant)
}

func (s *Server) StartGame(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	roomId := mux.Vars(r)["roomId"]

	room, err := s.store.StartGame(roomId, userId)
	if err != nil {
		writeError(w, err)
		return
	}

	s.hub.Publish(roomId, internal.ResourceRoom, internal.OpUpdate, map[string]any{
		"id":                   room.Id,
		"status":               room.Status,
		"current_letter":       room.CurrentLetter,
		"current_round_number": room.CurrentRoundNumber,
	})
	writeJSON(w, http.StatusOK, room)
}

type bastaRequest struct {
	Answers map[string]string `json:"answers"`
}

func (s *Server) SubmitBasta(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req bastaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &apiError{http.StatusBadRequest, "Invalid request body."})
		return
	}

	roomId := mux.Vars(r)["roomId"]
	room, scored, err := s.store.SubmitBasta(roomId, userId, req.Answers)
	if err != nil {
		writeError(w, err)
		return
	}

	for i := range scored {
		s.hub.Publish(roomId, internal.ResourceParticipant, internal.OpUpdate, map[string]any{
			"id":    scored[i].Id,
			"score": scored[i].Score,
		})
	}
	s.hub.Publish(roomId, internal.ResourceRoom, internal.OpUpdate, map[string]any{
		"id":              room.Id,
		"status":          room.Status,
		"basta_caller_id": room.BastaCallerId,
		"basta_called_at": room.BastaCalledAt,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "¡BASTA! Round stopped."})
}

func (s *Server) NextRound(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	roomId := mux.Vars(r)["roomId"]

	room, err := s.store.NextRound(roomId, userId)
	if err != nil {
		writeError(w, err)
		return
	}

	patch := map[string]any{
		"id":     room.Id,
		"status": room.Status,
	}
	if room.Status == internal.StatusInProgress {
		patch["current_letter"] = room.CurrentLetter
		patch["current_round_number"] = room.CurrentRoundNumber
		patch["basta_caller_id"] = ""
	}
	s.hub.Publish(roomId, internal.ResourceRoom, internal.OpUpdate, patch)
	writeJSON(w, http.StatusOK, room)
}

func (s *Server) RoundResults(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	roundNumber, err := strconv.Atoi(vars["round"])
	if err != nil {
		writeError(w, &apiError{http.StatusBadRequest, "Invalid round number."})
		return
	}

	payload, err := s.store.RoundResults(vars["roomId"], roundNumber)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		log.Printf("[RoundResults] Failed to write payload: %v", err)
	}
}

func (s *Server) ServeFeed(w http.ResponseWriter, r *http.Request) {
	roomId := mux.Vars(r)["roomId"]
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ServeFeed] Upgrade failed for room %s: %v", roomId, err)
		return
	}
	s.hub.Register(roomId, conn)
}

func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userId := r.Header.Get("X-User-Id")
	if userId == "" {
		writeError(w, errMissingIdentity)
		return "", false
	}
	return userId, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	detail := "An unexpected error occurred."
	if ae, ok := err.(*apiError); ok {
		status = ae.Status
		detail = ae.Detail
	}
	writeJSON(w, status, map[string]string{"detail": detail})
}
