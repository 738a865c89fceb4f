package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteSendsHistory(t *testing.T) {
	var got completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello there"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "")
	reply, err := c.Complete(context.Background(), []Turn{{Role: "user", Content: "hi"}})

	require.NoError(t, err)
	assert.Equal(t, "hello there", reply)
	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, []Turn{{Role: "user", Content: "hi"}}, got.Messages)
}

func TestCompleteEmptyChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	reply, err := NewClient(srv.URL, "key", "m").Complete(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, EmptyReply, reply)
}

func TestCompleteErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "key", "m").Complete(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	_, err = NewClient(srv.URL, "", "m").Complete(context.Background(), nil)
	assert.ErrorIs(t, err, ErrDisabled)
}
