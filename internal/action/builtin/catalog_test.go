package builtin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/actionflow/internal/action"
)

func call(t *testing.T, h action.Handler, ctx context.Context, args action.Args) (interface{}, error) {
	t.Helper()
	switch fn := h.(type) {
	case action.HandlerFunc:
		return fn(ctx, args)
	case action.BlockingFunc:
		return fn(args)
	}
	t.Fatalf("unexpected handler %T", h)
	return nil, nil
}

func TestDefault_Types(t *testing.T) {
	assert.Equal(t, []string{"log", "sleep", "webhook"}, Default().Types())
}

func TestRegister_DuplicatePanics(t *testing.T) {
	c := NewCatalog()
	c.Register("x", newLog)
	assert.Panics(t, func() { c.Register("x", newLog) })
}

func TestBuild_UnknownType(t *testing.T) {
	_, err := Default().Build("teleport", "a", nil)
	assert.ErrorContains(t, err, `no handler registered for type "teleport"`)
}

func TestLog(t *testing.T) {
	c := Default()
	h, err := c.Build("log", "greet", map[string]interface{}{"message": "hi", "level": "warn"})
	require.NoError(t, err)
	got, err := call(t, h, context.Background(), action.Args{})
	require.NoError(t, err)
	assert.Equal(t, "hi", got)

	_, err = c.Build("log", "greet", map[string]interface{}{})
	assert.ErrorContains(t, err, "message")
	_, err = c.Build("log", "greet", map[string]interface{}{"message": "hi", "level": "loud"})
	assert.ErrorContains(t, err, "invalid level")
}

func TestSleep(t *testing.T) {
	c := Default()
	h, err := c.Build("sleep", "nap", map[string]interface{}{"duration": "5ms"})
	require.NoError(t, err)
	assert.Equal(t, "func", action.Kind(h))

	got, err := call(t, h, context.Background(), action.Args{})
	require.NoError(t, err)
	assert.Equal(t, "5ms", got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = call(t, h, ctx, action.Args{Keyword: map[string]interface{}{"duration": "1h"}})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = call(t, h, context.Background(), action.Args{Keyword: map[string]interface{}{"duration": true}})
	assert.Error(t, err)
}

func TestSleep_Blocking(t *testing.T) {
	h, err := Default().Build("sleep", "nap", map[string]interface{}{"duration": 0.001, "blocking": true})
	require.NoError(t, err)
	assert.Equal(t, "blocking", action.Kind(h))

	got, err := call(t, h, context.Background(), action.Args{})
	require.NoError(t, err)
	assert.Equal(t, time.Millisecond.String(), got)
}

func TestSleep_InvalidDuration(t *testing.T) {
	_, err := Default().Build("sleep", "nap", map[string]interface{}{})
	assert.Error(t, err)
	_, err = Default().Build("sleep", "nap", map[string]interface{}{"duration": "soon"})
	assert.Error(t, err)
}

type seenRequest struct {
	method string
	header string
	body   map[string]interface{}
}

func TestWebhook(t *testing.T) {
	seen := make(chan seenRequest, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := seenRequest{method: r.Method, header: r.Header.Get("X-Source")}
		_ = json.NewDecoder(r.Body).Decode(&req.body)
		seen <- req
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := Default()
	h, err := c.Build("webhook", "notify", map[string]interface{}{
		"url":     srv.URL + "/ok",
		"method":  "put",
		"headers": map[string]interface{}{"X-Source": "test"},
	})
	require.NoError(t, err)

	got, err := call(t, h, context.Background(), action.Args{Positional: []interface{}{"a"}, Keyword: map[string]interface{}{"k": 1.0}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, got)
	req := <-seen
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "test", req.header)
	assert.Equal(t, "notify", req.body["action_id"])
	assert.Equal(t, []interface{}{"a"}, req.body["args"])

	failing, err := c.Build("webhook", "notify", map[string]interface{}{"url": srv.URL + "/fail"})
	require.NoError(t, err)
	_, err = call(t, failing, context.Background(), action.Args{})
	assert.ErrorContains(t, err, "502")
	assert.Equal(t, http.MethodPost, (<-seen).method)
}

func TestWebhook_InvalidParams(t *testing.T) {
	c := Default()
	_, err := c.Build("webhook", "n", map[string]interface{}{"url": "ftp://x"})
	assert.Error(t, err)
	_, err = c.Build("webhook", "n", map[string]interface{}{"url": "http://x", "method": "DELETE"})
	assert.ErrorContains(t, err, "unsupported method")
}
