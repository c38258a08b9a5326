// Package planka is an HTTP client for the Planka kanban board API.
//
// Every method degrades to an absent result on transport errors or non-2xx
// responses: board sync is best effort and callers decide whether a missing
// card matters. Nothing here mutates local state.
package planka

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"
)

// DefaultCardPosition is Planka's standard placement for a card appended to a
// list.
const DefaultCardPosition = 65536.0

// Logger is the narrow logging interface the client needs.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// Card is a Planka card as the API returns it.
type Card struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	ListID      string   `json:"listId"`
	BoardID     string   `json:"boardId"`
	Position    *float64 `json:"position"`
	Type        string   `json:"type"`
}

// CardRequest is the body for card create and update calls.
type CardRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Position    float64 `json:"position,omitempty"`
	Type        string  `json:"type,omitempty"`
}

// BoardList is one list (column) of a board.
type BoardList struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// apiEnvelope is Planka's response wrapper.
type apiEnvelope struct {
	Item     json.RawMessage `json:"item"`
	Included struct {
		Lists []BoardList `json:"lists"`
	} `json:"included"`
}

// Client talks to a Planka instance.
type Client struct {
	baseURL  string
	apiToken string
	http     *http.Client
	logger   Logger
}

// NewClient creates a Planka client with short network timeouts so board sync
// can never stall a workflow mutation for long.
func NewClient(baseURL, apiToken string, logger Logger) *Client {
	return &Client{
		baseURL:  baseURL,
		apiToken: apiToken,
		logger:   logger,
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
			},
		},
	}
}

// CreateCard creates a card in the given list. Returns nil if the call fails.
func (c *Client) CreateCard(ctx context.Context, listID string, req *CardRequest) *Card {
	if req.Position == 0 {
		req.Position = DefaultCardPosition
	}
	env := c.do(ctx, http.MethodPost, "/api/lists/"+listID+"/cards", req)
	if env == nil {
		return nil
	}
	return decodeCard(env.Item)
}

// UpdateCard patches a card's fields. Returns nil if the call fails.
func (c *Client) UpdateCard(ctx context.Context, cardID string, req *CardRequest) *Card {
	env := c.do(ctx, http.MethodPatch, "/api/cards/"+cardID, req)
	if env == nil {
		return nil
	}
	return decodeCard(env.Item)
}

// MoveCard moves a card to another list. A nil position uses the default
// placement.
func (c *Client) MoveCard(ctx context.Context, cardID, targetListID string, position *float64) *Card {
	pos := DefaultCardPosition
	if position != nil {
		pos = *position
	}
	body := map[string]interface{}{
		"listId":   targetListID,
		"position": pos,
	}
	env := c.do(ctx, http.MethodPatch, "/api/cards/"+cardID, body)
	if env == nil {
		return nil
	}
	return decodeCard(env.Item)
}

// DeleteCard deletes a card. Returns false if the call fails.
func (c *Client) DeleteCard(ctx context.Context, cardID string) bool {
	return c.do(ctx, http.MethodDelete, "/api/cards/"+cardID, nil) != nil
}

// GetCard fetches one card. Returns nil if the call fails.
func (c *Client) GetCard(ctx context.Context, cardID string) *Card {
	env := c.do(ctx, http.MethodGet, "/api/cards/"+cardID, nil)
	if env == nil {
		return nil
	}
	return decodeCard(env.Item)
}

// BoardLists returns the lists of a board, from the response's included
// collection. Returns an empty slice if the call fails.
func (c *Client) BoardLists(ctx context.Context, boardID string) []BoardList {
	env := c.do(ctx, http.MethodGet, "/api/boards/"+boardID, nil)
	if env == nil {
		return nil
	}
	return env.Included.Lists
}

// Authenticate exchanges credentials for an API token. Returns "" if the call
// fails.
func (c *Client) Authenticate(ctx context.Context, emailOrUsername, password string) string {
	body := map[string]string{
		"emailOrUsername": emailOrUsername,
		"password":        password,
	}
	env := c.do(ctx, http.MethodPost, "/api/access-tokens", body)
	if env == nil {
		return ""
	}
	var token string
	if err := json.Unmarshal(env.Item, &token); err != nil {
		c.logger.Error("planka: unexpected access token response", "error", err)
		return ""
	}
	return token
}

// do performs one API call, returning nil on any transport or non-2xx
// failure.
func (c *Client) do(ctx context.Context, method, path string, body interface{}) *apiEnvelope {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			c.logger.Error("planka: marshal request", "path", path, "error", err)
			return nil
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		c.logger.Error("planka: build request", "path", path, "error", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("planka: request failed", "method", method, "path", path, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("planka: unexpected status", "method", method, "path", path,
			"status", fmt.Sprintf("%d", resp.StatusCode))
		return nil
	}

	env := &apiEnvelope{}
	if err := json.NewDecoder(resp.Body).Decode(env); err != nil {
		// DELETE returns an empty body on some versions; treat that as ok.
		if method == http.MethodDelete {
			return &apiEnvelope{}
		}
		c.logger.Error("planka: decode response", "path", path, "error", err)
		return nil
	}
	return env
}

func decodeCard(raw json.RawMessage) *Card {
	if len(raw) == 0 {
		return nil
	}
	var card Card
	if err := json.Unmarshal(raw, &card); err != nil {
		return nil
	}
	return &card
}
