package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dom/pickup-queue/internal/domain"
)

// APIClient handles HTTP communication with the backend
type APIClient struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// NewAPIClient creates a new API client
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: baseURL + "/api/v1",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Response types matching backend

type loginResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type FinishResult struct {
	Finished *domain.Match     `json:"finished"`
	Started  *domain.Match     `json:"started"`
	Queue    domain.QueueState `json:"queue"`
}

// Login trades the admin password for a token used by every later call.
func (c *APIClient) Login(password string) error {
	var result loginResponse
	if err := c.do(http.MethodPost, "/admin/login", map[string]string{"password": password}, http.StatusOK, &result); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	c.token = result.AccessToken
	return nil
}

// GetQueue fetches the derived queue for an event id or alias.
func (c *APIClient) GetQueue(eventID string) (*domain.QueueState, error) {
	var state domain.QueueState
	if err := c.do(http.MethodGet, "/events/"+eventID+"/queue", nil, http.StatusOK, &state); err != nil {
		return nil, fmt.Errorf("get queue failed: %w", err)
	}
	return &state, nil
}

// CheckInTeam adds a team at the back of the queue.
func (c *APIClient) CheckInTeam(eventID, name string, kind domain.TeamKind) (*domain.Team, error) {
	body := map[string]string{
		"name": name,
		"kind": string(kind),
	}
	var team domain.Team
	if err := c.do(http.MethodPost, "/events/"+eventID+"/teams", body, http.StatusCreated, &team); err != nil {
		return nil, fmt.Errorf("check in %q failed: %w", name, err)
	}
	return &team, nil
}

// StartMatch opens a match when the court is idle.
func (c *APIClient) StartMatch(eventID string) (*domain.Match, error) {
	var match domain.Match
	if err := c.do(http.MethodPost, "/events/"+eventID+"/matches/start", nil, http.StatusCreated, &match); err != nil {
		return nil, fmt.Errorf("start match failed: %w", err)
	}
	return &match, nil
}

// FinishMatch ends the match on court and rotates the queue.
func (c *APIClient) FinishMatch(eventID, matchID string) (*FinishResult, error) {
	var result FinishResult
	if err := c.do(http.MethodPost, "/events/"+eventID+"/matches/"+matchID+"/finish", nil, http.StatusOK, &result); err != nil {
		return nil, fmt.Errorf("finish match failed: %w", err)
	}
	return &result, nil
}

// HTTP helpers

// StatusError is returned when the server answers with an unexpected status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

func (c *APIClient) do(method, path string, body interface{}, want int, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(bodyBytes))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
