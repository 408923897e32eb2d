package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoringAPIClient_Refresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/refresh", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["refresh"] != "good" {
			http.Error(w, "unknown refresh token", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"token":"new-token","refresh_token":"new-refresh"}`))
	}))
	defer srv.Close()

	client := NewScoringAPIClient(srv.URL + "/")

	tokens, err := client.Refresh(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "new-token", tokens.Token)
	assert.Equal(t, "new-refresh", tokens.RefreshToken)

	_, err = client.Refresh(context.Background(), "bad")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
}

func TestScoringAPIClient_FetchShow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/shows/show-1", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{
			"id": "show-1",
			"name": "Spring Dressage",
			"competitions": [{
				"id": "comp-1",
				"name": "Prix St. Georges",
				"starters": [{"id": "starter-1", "status": ["Upcoming"], "scoresheets": [{"id": "sheet-1"}]}],
				"tests": [{"id": "test-1", "movements": [{"nr": 1}], "errorsOfCourse": "2p;4p;E"}]
			}]
		}`))
	}))
	defer srv.Close()

	client := NewScoringAPIClient(srv.URL + "/")

	show, err := client.FetchShow(context.Background(), "tok", "show-1")
	require.NoError(t, err)
	require.Len(t, show.Competitions, 1)
	comp := show.Competitions[0]
	assert.Equal(t, "sheet-1", comp.Starters[0].Scoresheets[0].ID)
	require.Len(t, comp.Tests[0].Movements, 1)
	assert.Equal(t, "10", comp.Tests[0].Movements[0].Max.String(), "movement scale defaults apply")
	assert.Len(t, comp.Tests[0].ErrorsOfCourse, 3)

	_, err = client.FetchShow(context.Background(), "wrong", "show-1")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
}
