package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tomharwin/kestrel/internal/wire"
)

// RESTClient talks to the server's REST API: login and the initial data
// fetches the hub socket does not cover.
type RESTClient struct {
	baseURL string
	http    *http.Client
	// token returns the current access token, or "" before login.
	token func() string
}

// NewRESTClient creates a REST client for the given server base URL.
// token supplies the bearer token per request so refreshed tokens take
// effect without rebuilding the client.
func NewRESTClient(baseURL string, token func() string) *RESTClient {
	return &RESTClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		token:   token,
	}
}

// Login exchanges credentials for a token pair.
func (r *RESTClient) Login(ctx context.Context, name, password string) (*wire.LoginResponse, error) {
	var resp wire.LoginResponse
	err := r.do(ctx, http.MethodPost, "/api/v1/auth/login",
		wire.LoginRequest{Name: name, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refresh exchanges a refresh token for a fresh token pair.
func (r *RESTClient) Refresh(ctx context.Context, refreshToken string) (*wire.LoginResponse, error) {
	var resp wire.LoginResponse
	err := r.do(ctx, http.MethodPost, "/api/v1/auth/refresh",
		map[string]string{"refreshToken": refreshToken}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListAdmins fetches the admin roster.
func (r *RESTClient) ListAdmins(ctx context.Context) ([]wire.UserInfo, error) {
	var resp struct {
		Admins []wire.UserInfo `json:"admins"`
	}
	if err := r.do(ctx, http.MethodGet, "/api/v1/chat/admins", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Admins, nil
}

// ListConversations fetches the viewer's conversation summaries.
func (r *RESTClient) ListConversations(ctx context.Context) ([]wire.ConversationSummary, error) {
	var resp struct {
		Conversations []wire.ConversationSummary `json:"conversations"`
	}
	if err := r.do(ctx, http.MethodGet, "/api/v1/chat/conversations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// ListMessages fetches the full message history of one conversation.
func (r *RESTClient) ListMessages(ctx context.Context, conversationID string) ([]wire.ChatMessage, error) {
	var resp struct {
		Messages []wire.ChatMessage `json:"messages"`
	}
	path := "/api/v1/chat/conversations/" + conversationID + "/messages"
	if err := r.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// MarkConversationRead marks a conversation read for the viewer.
func (r *RESTClient) MarkConversationRead(ctx context.Context, conversationID string) error {
	path := "/api/v1/chat/conversations/" + conversationID + "/read"
	return r.do(ctx, http.MethodPost, path, nil, nil)
}

// UnreadCount fetches the viewer's total unread message count.
func (r *RESTClient) UnreadCount(ctx context.Context) (int, error) {
	var resp wire.UnreadResponse
	if err := r.do(ctx, http.MethodGet, "/api/v1/chat/unread", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (r *RESTClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != nil {
		if tok := r.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Message, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
