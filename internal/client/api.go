// Package client is the participant-side half of the messaging core: a REST
// client, a live Feed over the websocket channel and a Reconciler that merges
// history snapshots with pushed messages.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dm-service/internal/models"
)

// Backend is the server surface the Reconciler depends on.
type Backend interface {
	Participants(ctx context.Context) (ParticipantsResponse, error)
	Conversation(ctx context.Context, participantID string) ([]models.Message, error)
	Send(ctx context.Context, participantID string, payload models.Payload) (models.Message, error)
	AckSeen(ctx context.Context, messageID string) error
	Delete(ctx context.Context, messageID string) error
}

type ParticipantsResponse struct {
	Participants []models.ParticipantSummary `json:"participants"`
	Unseen       map[string]int              `json:"unseen"`
	Online       []string                    `json:"online"`
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// API talks to the REST surface with a bearer token.
type API struct {
	base  string
	token string
	http  *http.Client
}

func NewAPI(baseURL, token string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &API{base: strings.TrimRight(baseURL, "/"), token: token, http: httpClient}
}

// LiveURL is the websocket endpoint for this API's identity.
func (a *API) LiveURL() string {
	u := a.base
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws?token=" + url.QueryEscape(a.token)
}

func (a *API) Participants(ctx context.Context) (ParticipantsResponse, error) {
	var resp ParticipantsResponse
	err := a.do(ctx, http.MethodGet, "/conversations/participants", nil, &resp)
	if resp.Unseen == nil {
		resp.Unseen = map[string]int{}
	}
	return resp, err
}

func (a *API) Conversation(ctx context.Context, participantID string) ([]models.Message, error) {
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	if err := a.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(participantID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (a *API) Send(ctx context.Context, participantID string, payload models.Payload) (models.Message, error) {
	var msg models.Message
	err := a.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(participantID)+"/messages", payload, &msg)
	return msg, err
}

func (a *API) AckSeen(ctx context.Context, messageID string) error {
	return a.do(ctx, http.MethodPut, "/messages/"+url.PathEscape(messageID)+"/seen", nil, nil)
}

func (a *API) Delete(ctx context.Context, messageID string) error {
	return a.do(ctx, http.MethodDelete, "/messages/"+url.PathEscape(messageID), nil, nil)
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var _ Backend = (*API)(nil)
