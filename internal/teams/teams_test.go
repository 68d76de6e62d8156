package teams

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

func TestClientGetTeam(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/teams/1234", r.URL.Path)
		assert.Equal(t, "tok", r.Header.Get("X-Auth-Token"))
		_ = json.NewEncoder(w).Encode(map[string]string{
			"name":         "Team Falcon",
			"core_segment": "Managed",
			"region":       "US",
			"description":  "Managed support, US",
		})
	}))
	defer srv.Close()

	details, err := NewClient(srv.URL, "tok", 0).GetTeam(context.Background(), "1234")
	require.NoError(t, err)
	assert.Equal(t, Details{Name: "Team Falcon", CoreSegment: "Managed", Region: "US", Description: "Managed support, US"}, details)
}

func TestClientGetTeamNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", 0).GetTeam(context.Background(), "9")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestClientGetTeamServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", 0).GetTeam(context.Background(), "9")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "boom")
}

func TestClientGetTeamRequiresNumber(t *testing.T) {
	_, err := NewClient("http://unused", "", 0).GetTeam(context.Background(), " ")
	assert.Error(t, err)
}
