package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatlq1812/user-agreement/internal/domain"
)

func TestLoginClient_CompleteLogin(t *testing.T) {
	var got completeLoginRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, completeLoginPath, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client, err := NewLoginClient(srv.URL+"/", time.Second)
	require.NoError(t, err)

	err = client.CompleteLogin(context.Background(), "u1", &domain.LoginPayload{
		Ticket:            "ST-42",
		ServiceParameters: map[string]string{"returnto": "/dashboard"},
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "ST-42", got.Ticket)
	assert.Equal(t, "/dashboard", got.ServiceParameters["returnto"])
}

func TestLoginClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "ticket expired", http.StatusGone)
	}))
	defer srv.Close()

	client, err := NewLoginClient(srv.URL, time.Second)
	require.NoError(t, err)

	err = client.CompleteLogin(context.Background(), "u1", &domain.LoginPayload{Ticket: "ST-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "410")
	assert.Contains(t, err.Error(), "ticket expired")

	err = client.CompleteLogin(context.Background(), "u1", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNewLoginClient_RequiresURL(t *testing.T) {
	_, err := NewLoginClient("", 0)
	assert.Error(t, err)
}
