package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/bastagame/basta-client/internal"
	"github.com/bastagame/basta-client/internal/game"
)

// Client is the HTTP adapter for the remote room service. It implements
// game.RoomService against the REST API:
//
//	POST   /rooms/
//	POST   /rooms/{code}/join/
//	GET    /rooms/{idOrCode}/
//	POST   /rooms/{id}/leave/
//	PATCH  /rooms/{id}/participants/me/ready
//	POST   /rooms/{id}/start
//	POST   /rooms/{id}/rounds/basta
//	POST   /rooms/{id}/next-round
//	GET    /rooms/{id}/rounds/{n}/results
//	GET    /themes/
//	GET    /categories/?theme_id=
type Client struct {
	BaseURL string
	// Token is sent as a bearer Authorization header when set. Obtaining and
	// refreshing it is the identity provider's concern, not this client's.
	Token string
	// UserId is sent as the X-User-Id header, used by servers that delegate
	// authentication to an external layer (the dev server does).
	UserId string
	// HTTP defaults to http.DefaultClient.
	HTTP *http.Client
}

var _ game.RoomService = (*Client)(nil)

func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL}
}

type createRoomPayload struct {
	ThemeId    string `json:"theme_id"`
	MaxPlayers int    `json:"max_players,omitempty"`
}

type joinRoomPayload struct {
	Nickname string `json:"nickname,omitempty"`
}

type setReadyPayload struct {
	IsReady bool `json:"is_ready"`
}

type bastaPayload struct {
	Answers map[string]string `json:"answers"`
}

func (c *Client) CreateRoom(ctx context.Context, themeId string, maxPlayers int) (*internal.Room, error) {
	var room internal.Room
	payload := createRoomPayload{ThemeId: themeId, MaxPlayers: maxPlayers}
	if err := c.do(ctx, http.MethodPost, "/rooms/", payload, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) JoinRoom(ctx context.Context, roomCode, nickname string) (*internal.Room, error) {
	var room internal.Room
	path := fmt.Sprintf("/rooms/%s/join/", url.PathEscape(roomCode))
	if err := c.do(ctx, http.MethodPost, path, joinRoomPayload{Nickname: nickname}, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) GetRoom(ctx context.Context, roomIdOrCode string) (*internal.Room, error) {
	var room internal.Room
	path := fmt.Sprintf("/rooms/%s/", url.PathEscape(roomIdOrCode))
	if err := c.do(ctx, http.MethodGet, path, nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) LeaveRoom(ctx context.Context, roomId string) error {
	path := fmt.Sprintf("/rooms/%s/leave/", url.PathEscape(roomId))
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) SetReady(ctx context.Context, roomId string, isReady bool) error {
	path := fmt.Sprintf("/rooms/%s/participants/me/ready", url.PathEscape(roomId))
	return c.do(ctx, http.MethodPatch, path, setReadyPayload{IsReady: isReady}, nil)
}

func (c *Client) StartGame(ctx context.Context, roomId string) error {
	path := fmt.Sprintf("/rooms/%s/start", url.PathEscape(roomId))
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) SubmitBasta(ctx context.Context, roomId string, answers map[string]string) error {
	path := fmt.Sprintf("/rooms/%s/rounds/basta", url.PathEscape(roomId))
	return c.do(ctx, http.MethodPost, path, bastaPayload{Answers: answers}, nil)
}

func (c *Client) NextRound(ctx context.Context, roomId string) error {
	path := fmt.Sprintf("/rooms/%s/next-round", url.PathEscape(roomId))
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) GetRoundResults(ctx context.Context, roomId string, roundNumber int) (json.RawMessage, error) {
	var payload json.RawMessage
	path := fmt.Sprintf("/rooms/%s/rounds/%d/results", url.PathEscape(roomId), roundNumber)
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Client) ListThemes(ctx context.Context) ([]internal.Theme, error) {
	var themes []internal.Theme
	if err := c.do(ctx, http.MethodGet, "/themes/", nil, &themes); err != nil {
		return nil, err
	}
	return themes, nil
}

func (c *Client) ListCategories(ctx context.Context, themeId string) ([]internal.Category, error) {
	var cats []internal.Category
	path := "/categories/?theme_id=" + url.QueryEscape(themeId)
	if err := c.do(ctx, http.MethodGet, path, nil, &cats); err != nil {
		return nil, err
	}
	return cats, nil
}

// errorBody is the service's error envelope; detail carries the user-facing
// message when the service supplied one.
type errorBody struct {
	Detail string `json:"detail"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if c.UserId != "" {
		req.Header.Set("X-User-Id", c.UserId)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		remote := &game.RemoteError{StatusCode: resp.StatusCode}
		var eb errorBody
		if err := json.NewDecoder(resp.Body).Decode(&eb); err == nil {
			remote.Detail = eb.Detail
		}
		return remote
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
