package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// defaultAPIBase is the Discord REST API root.
const defaultAPIBase = "https://discord.com/api/v10"

// Client is the REST client for the Discord API. It covers the small
// surface the bridge needs: DM channels, message create/edit and
// interaction responses.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client

	// dmCache maps user id to DM channel id so repeated sends skip the
	// channel-create round trip.
	dmCache map[string]string
}

// NewClient creates a Discord REST client authenticated with a bot token.
func NewClient(token string) *Client {
	return &Client{
		baseURL: defaultAPIBase,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		dmCache: make(map[string]string),
	}
}

// SetBaseURL overrides the API root. Used in tests.
func (c *Client) SetBaseURL(base string) {
	c.baseURL = base
}

// CreateDM opens (or returns the existing) DM channel with a user.
func (c *Client) CreateDM(ctx context.Context, userID string) (string, error) {
	if id, ok := c.dmCache[userID]; ok {
		return id, nil
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/users/@me/channels", map[string]string{
		"recipient_id": userID,
	})
	if err != nil {
		return "", fmt.Errorf("discord: create dm with %s: %w", userID, err)
	}

	var ch struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &ch); err != nil {
		return "", fmt.Errorf("discord: decode dm channel: %w", err)
	}

	c.dmCache[userID] = ch.ID
	return ch.ID, nil
}

// SendMessage posts a message to a channel and returns the created message.
func (c *Client) SendMessage(ctx context.Context, channelID string, msg MessageSend) (Message, error) {
	path := fmt.Sprintf("/channels/%s/messages", url.PathEscape(channelID))

	body, err := c.doRequest(ctx, http.MethodPost, path, msg)
	if err != nil {
		return Message{}, fmt.Errorf("discord: send message: %w", err)
	}

	var created Message
	if err := json.Unmarshal(body, &created); err != nil {
		return Message{}, fmt.Errorf("discord: decode message: %w", err)
	}
	return created, nil
}

// SendDM opens a DM channel with the user and posts a message to it.
func (c *Client) SendDM(ctx context.Context, userID string, msg MessageSend) (Message, error) {
	channelID, err := c.CreateDM(ctx, userID)
	if err != nil {
		return Message{}, err
	}
	return c.SendMessage(ctx, channelID, msg)
}

// EditMessage replaces the content, embeds and components of a message.
func (c *Client) EditMessage(ctx context.Context, channelID, messageID string, msg MessageSend) (Message, error) {
	path := fmt.Sprintf("/channels/%s/messages/%s",
		url.PathEscape(channelID), url.PathEscape(messageID))

	body, err := c.doRequest(ctx, http.MethodPatch, path, msg)
	if err != nil {
		return Message{}, fmt.Errorf("discord: edit message %s: %w", messageID, err)
	}

	var edited Message
	if err := json.Unmarshal(body, &edited); err != nil {
		return Message{}, fmt.Errorf("discord: decode edited message: %w", err)
	}
	return edited, nil
}

// RespondInteraction acknowledges an interaction, optionally updating the
// message the component lives on.
func (c *Client) RespondInteraction(ctx context.Context, interactionID, token string, resp InteractionResponse) error {
	path := fmt.Sprintf("/interactions/%s/%s/callback",
		url.PathEscape(interactionID), url.PathEscape(token))

	if _, err := c.doRequest(ctx, http.MethodPost, path, resp); err != nil {
		return fmt.Errorf("discord: respond interaction: %w", err)
	}
	return nil
}

// GatewayURL asks the API for the gateway WebSocket URL.
func (c *Client) GatewayURL(ctx context.Context) (string, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/gateway/bot", nil)
	if err != nil {
		return "", fmt.Errorf("discord: get gateway url: %w", err)
	}

	var resp struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("discord: decode gateway url: %w", err)
	}
	return resp.URL, nil
}

// doRequest builds, sends, and reads an HTTP request against the Discord API.
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkStatus maps non-2xx HTTP status codes to errors.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("discord: not found: %s (%d)", apiErr.Message, apiErr.Code)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("discord: unauthorized: %s (%d)", apiErr.Message, apiErr.Code)
	case http.StatusTooManyRequests:
		return fmt.Errorf("discord: rate limited: %s (%d)", apiErr.Message, apiErr.Code)
	default:
		return fmt.Errorf("discord: HTTP %d: %s (%d)", statusCode, apiErr.Message, apiErr.Code)
	}
}
