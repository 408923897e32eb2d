package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mcdev12/scoresync/go/internal/auth"
	"github.com/mcdev12/scoresync/go/internal/models"
)

// ScoringAPIClient talks to the scoring server's HTTP API.
type ScoringAPIClient struct {
	*BaseClient
}

// NewScoringAPIClient expects baseURL to end with a slash, as in
// "https://api.example.com/".
func NewScoringAPIClient(baseURL string) *ScoringAPIClient {
	c := &ScoringAPIClient{BaseClient: NewBaseClient(baseURL)}
	c.SetHeader("Content-Type", "application/json")
	c.SetHeader("Application-ID", "Scoresync/Client")
	return c
}

// Refresh exchanges a refresh token for a new token pair.
func (c *ScoringAPIClient) Refresh(ctx context.Context, refreshToken string) (auth.Tokens, error) {
	body, err := json.Marshal(map[string]string{"refresh": refreshToken})
	if err != nil {
		return auth.Tokens{}, err
	}

	resp, err := c.Post(ctx, "refresh", bytes.NewReader(body))
	if err != nil {
		return auth.Tokens{}, fmt.Errorf("refresh: %w", err)
	}

	var tokens auth.Tokens
	if err := json.Unmarshal(resp, &tokens); err != nil {
		return auth.Tokens{}, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if tokens.Token == "" {
		return auth.Tokens{}, fmt.Errorf("refresh response carried no token")
	}
	return tokens, nil
}

// FetchShow loads a show with its competitions, start lists and tests.
func (c *ScoringAPIClient) FetchShow(ctx context.Context, token, showID string) (*models.Show, error) {
	resp, err := c.MakeRequestWithHeaders(ctx, http.MethodGet, "shows/"+url.PathEscape(showID), nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch show %s: %w", showID, err)
	}

	var show models.Show
	if err := json.Unmarshal(resp, &show); err != nil {
		return nil, fmt.Errorf("failed to decode show: %w", err)
	}
	return &show, nil
}
