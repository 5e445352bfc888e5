package authclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/go-app-lock/reauth"
	"github.com/jrsteele09/go-app-lock/reauth/authclient"
	"github.com/stretchr/testify/require"
)

const parentToken = "parent-session-token"

type captured struct {
	path   string
	auth   string
	method string
	body   authclient.ExchangeRequest
}

func newServer(t *testing.T, status int, response any) (*httptest.Server, *captured) {
	t.Helper()

	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.method = r.Method
		got.auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got.body))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestClient_ExchangePassword(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, authclient.ExchangeResponse{AppSessionToken: "app-token"})

	client, err := authclient.NewWithParentToken(srv.URL+"/", parentToken)
	require.NoError(t, err)

	tok, err := client.Exchange(context.Background(), 42, reauth.Password("hunter2"))
	require.NoError(t, err)
	require.Equal(t, "app-token", tok)

	require.Equal(t, http.MethodPost, got.method)
	require.Equal(t, "/apps/42/session", got.path)
	require.Equal(t, "Bearer "+parentToken, got.auth)
	require.Equal(t, authclient.ExchangeRequest{Password: "hunter2"}, got.body)
}

func TestClient_ExchangeMFA(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, authclient.ExchangeResponse{AppSessionToken: "app-token"})

	client, err := authclient.NewWithParentToken(srv.URL, parentToken)
	require.NoError(t, err)

	_, err = client.Exchange(context.Background(), 7, reauth.MFA("123 456"))
	require.NoError(t, err)
	require.Equal(t, authclient.ExchangeRequest{MFACode: "123456"}, got.body)
}

func TestClient_Rejections(t *testing.T) {
	t.Run("message is user facing", func(t *testing.T) {
		srv, _ := newServer(t, http.StatusUnauthorized, authclient.ExchangeResponse{Message: "Incorrect password"})
		client, err := authclient.NewWithParentToken(srv.URL, parentToken)
		require.NoError(t, err)

		_, err = client.Exchange(context.Background(), 1, reauth.Password("wrong"))
		var rerr *reauth.Error
		require.ErrorAs(t, err, &rerr)
		require.Equal(t, "Incorrect password", reauth.UserMessage(err))
	})

	t.Run("no message is generic", func(t *testing.T) {
		srv, _ := newServer(t, http.StatusInternalServerError, map[string]string{"trace": "stack"})
		client, err := authclient.NewWithParentToken(srv.URL, parentToken)
		require.NoError(t, err)

		_, err = client.Exchange(context.Background(), 1, reauth.Password("pw"))
		require.Error(t, err)
		require.Equal(t, reauth.GenericMessage, reauth.UserMessage(err))
	})

	t.Run("success without token", func(t *testing.T) {
		srv, _ := newServer(t, http.StatusOK, authclient.ExchangeResponse{})
		client, err := authclient.NewWithParentToken(srv.URL, parentToken)
		require.NoError(t, err)

		_, err = client.Exchange(context.Background(), 1, reauth.Password("pw"))
		require.Error(t, err)
	})
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client, err := authclient.NewWithParentToken(srv.URL, parentToken, authclient.WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = client.Exchange(context.Background(), 1, reauth.Password("pw"))
	require.Error(t, err)
	require.Equal(t, reauth.GenericMessage, reauth.UserMessage(err))
}

func TestNew_Validation(t *testing.T) {
	_, err := authclient.NewWithParentToken("not a url", parentToken)
	require.Error(t, err)

	_, err = authclient.New("http://localhost", nil)
	require.Error(t, err)
}
