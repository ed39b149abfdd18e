package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// APIClient is the typed HTTP client the bridge uses against the gateway's
// REST API. Running the bridge through the same write path as the dashboard
// keeps the decision race arbitration in exactly one place.
type APIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewAPIClient creates an APIClient for the gateway at baseURL, e.g.
// "http://localhost:8080". apiKey may be empty when the gateway runs with
// auth disabled.
func NewAPIClient(baseURL, apiKey string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// decisionResponse is the body of confirm and reject calls.
type decisionResponse struct {
	Success bool               `json:"success"`
	Signal  domain.TradeSignal `json:"signal"`
	Error   string             `json:"error"`
}

// ConfirmSignal records a confirm decision with source "discord".
func (c *APIClient) ConfirmSignal(ctx context.Context, signalID, userID string) (domain.TradeSignal, error) {
	return c.decide(ctx, signalID, userID, "confirm")
}

// RejectSignal records a reject decision with source "discord".
func (c *APIClient) RejectSignal(ctx context.Context, signalID, userID string) (domain.TradeSignal, error) {
	return c.decide(ctx, signalID, userID, "reject")
}

func (c *APIClient) decide(ctx context.Context, signalID, userID, verb string) (domain.TradeSignal, error) {
	path := fmt.Sprintf("/api/signals/%s/%s", url.PathEscape(signalID), verb)

	body, err := c.doRequest(ctx, http.MethodPost, path, map[string]string{
		"user_id": userID,
		"source":  string(domain.SourceDiscord),
	})
	if err != nil {
		return domain.TradeSignal{}, err
	}

	var resp decisionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.TradeSignal{}, fmt.Errorf("bot: decode %s response: %w", verb, err)
	}
	return resp.Signal, nil
}

// GetSignal fetches a single signal.
func (c *APIClient) GetSignal(ctx context.Context, signalID string) (domain.TradeSignal, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/signals/"+url.PathEscape(signalID), nil)
	if err != nil {
		return domain.TradeSignal{}, err
	}

	var sig domain.TradeSignal
	if err := json.Unmarshal(body, &sig); err != nil {
		return domain.TradeSignal{}, fmt.Errorf("bot: decode signal: %w", err)
	}
	return sig, nil
}

// PendingSignals lists a user's pending signals.
func (c *APIClient) PendingSignals(ctx context.Context, userID string) ([]domain.TradeSignal, error) {
	body, err := c.doRequest(ctx, http.MethodGet,
		"/api/signals/pending?user_id="+url.QueryEscape(userID), nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Signals []domain.TradeSignal `json:"signals"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("bot: decode pending signals: %w", err)
	}
	return resp.Signals, nil
}

// Portfolio fetches a user's open-position portfolio.
func (c *APIClient) Portfolio(ctx context.Context, userID string) (domain.Portfolio, error) {
	body, err := c.doRequest(ctx, http.MethodGet,
		"/api/positions?user_id="+url.QueryEscape(userID), nil)
	if err != nil {
		return domain.Portfolio{}, err
	}

	var p domain.Portfolio
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.Portfolio{}, fmt.Errorf("bot: decode portfolio: %w", err)
	}
	return p, nil
}

// PnL fetches a user's P&L summary.
func (c *APIClient) PnL(ctx context.Context, userID string) (domain.PnLSummary, error) {
	body, err := c.doRequest(ctx, http.MethodGet,
		"/api/analytics/pnl?user_id="+url.QueryEscape(userID), nil)
	if err != nil {
		return domain.PnLSummary{}, err
	}

	var s domain.PnLSummary
	if err := json.Unmarshal(body, &s); err != nil {
		return domain.PnLSummary{}, fmt.Errorf("bot: decode pnl: %w", err)
	}
	return s, nil
}

// UserConfig fetches a user's trading configuration.
func (c *APIClient) UserConfig(ctx context.Context, userID string) (domain.UserConfig, error) {
	body, err := c.doRequest(ctx, http.MethodGet,
		"/api/users/"+url.PathEscape(userID)+"/config", nil)
	if err != nil {
		return domain.UserConfig{}, err
	}

	var cfg domain.UserConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return domain.UserConfig{}, fmt.Errorf("bot: decode user config: %w", err)
	}
	return cfg, nil
}

// DiscordID resolves the Discord user id linked to an account.
func (c *APIClient) DiscordID(ctx context.Context, userID string) (string, error) {
	body, err := c.doRequest(ctx, http.MethodGet,
		"/api/users/"+url.PathEscape(userID)+"/discord", nil)
	if err != nil {
		return "", err
	}

	var resp struct {
		DiscordUserID string `json:"discord_user_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("bot: decode discord id: %w", err)
	}
	return resp.DiscordUserID, nil
}

// UserByDiscordID resolves a Discord user id to an account.
func (c *APIClient) UserByDiscordID(ctx context.Context, discordID string) (domain.User, error) {
	body, err := c.doRequest(ctx, http.MethodGet,
		"/api/users/by-discord/"+url.PathEscape(discordID), nil)
	if err != nil {
		return domain.User{}, err
	}

	var resp struct {
		UserID   string `json:"user_id"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.User{}, fmt.Errorf("bot: decode user: %w", err)
	}
	return domain.User{ID: resp.UserID, Username: resp.Username, DiscordUserID: discordID}, nil
}

// PauseTrading sets the pause flag for a user.
func (c *APIClient) PauseTrading(ctx context.Context, userID string) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/api/trading/pause", map[string]string{
		"user_id": userID,
	})
	return err
}

// ResumeTrading clears the pause flag for a user.
func (c *APIClient) ResumeTrading(ctx context.Context, userID string) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/api/trading/resume", map[string]string{
		"user_id": userID,
	})
	return err
}

// doRequest builds, sends and reads a request against the gateway API,
// mapping error statuses back onto the domain sentinels.
func (c *APIClient) doRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("bot: marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("bot: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bot: %w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("bot: read response: %w", err)
	}

	if err := mapStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// mapStatus converts gateway error responses back into domain sentinels so
// the bridge can branch on errors.Is exactly like in-process callers.
func mapStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("bot: %w: %s", domain.ErrNotFound, apiErr.Error)
	case http.StatusConflict:
		return fmt.Errorf("bot: %w: %s", domain.ErrAlreadyProcessed, apiErr.Error)
	case http.StatusBadRequest:
		return fmt.Errorf("bot: %w: %s", domain.ErrValidation, apiErr.Error)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("bot: %w: %s", domain.ErrUnauthorized, apiErr.Error)
	case http.StatusTooManyRequests:
		return fmt.Errorf("bot: %w: %s", domain.ErrRateLimited, apiErr.Error)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("bot: %w: %s", domain.ErrUpstreamUnavailable, apiErr.Error)
	default:
		return fmt.Errorf("bot: gateway HTTP %d: %s", statusCode, apiErr.Error)
	}
}
