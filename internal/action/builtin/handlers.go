package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gyaneshwarpardhi/actionflow/internal/action"
)

// newLog handles "log" actions.
//
//	message: <text>               required
//	level:   debug|info|warn|error  default info
func newLog(id string, params map[string]interface{}) (action.Handler, error) {
	msg, _ := params["message"].(string)
	if msg == "" {
		return nil, fmt.Errorf("'message' is required")
	}
	var level slog.Level
	if raw, ok := params["level"].(string); ok && raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			return nil, fmt.Errorf("invalid level %q", raw)
		}
	}
	return action.HandlerFunc(func(ctx context.Context, args action.Args) (interface{}, error) {
		slog.Log(ctx, level, msg, "action_id", id, "args", args.Positional, "kwargs", args.Keyword)
		return msg, nil
	}), nil
}

// newSleep handles "sleep" actions, a stand-in for slow work.
//
//	duration: <Go duration or seconds>  required
//	blocking: true                      run on the worker pool, ignoring cancellation
//
// A "duration" keyword argument overrides the configured one per call.
func newSleep(id string, params map[string]interface{}) (action.Handler, error) {
	d, err := toDuration(params["duration"])
	if err != nil {
		return nil, fmt.Errorf("'duration': %w", err)
	}
	durationFor := func(args action.Args) (time.Duration, error) {
		if v, ok := args.Kwarg("duration"); ok {
			return toDuration(v)
		}
		return d, nil
	}
	if blocking, _ := params["blocking"].(bool); blocking {
		return action.BlockingFunc(func(args action.Args) (interface{}, error) {
			wait, err := durationFor(args)
			if err != nil {
				return nil, err
			}
			time.Sleep(wait)
			return wait.String(), nil
		}), nil
	}
	return action.HandlerFunc(func(ctx context.Context, args action.Args) (interface{}, error) {
		wait, err := durationFor(args)
		if err != nil {
			return nil, err
		}
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-t.C:
			return wait.String(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}), nil
}

// newWebhook handles "webhook" actions: it sends the call arguments as JSON.
//
//	url:     <http(s) URL>     required
//	method:  POST|PUT|GET      default POST
//	headers: {name: value}
//
// Any response status >= 400 is a failure, so retry policy applies.
func newWebhook(id string, params map[string]interface{}) (action.Handler, error) {
	url, _ := params["url"].(string)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("'url' must be an http(s) URL, got %q", url)
	}
	method := http.MethodPost
	if m, ok := params["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodGet:
	default:
		return nil, fmt.Errorf("unsupported method %q", method)
	}
	headers := map[string]string{}
	if raw, ok := params["headers"].(map[string]interface{}); ok {
		for k, v := range raw {
			headers[k] = fmt.Sprintf("%v", v)
		}
	}

	return action.HandlerFunc(func(ctx context.Context, args action.Args) (interface{}, error) {
		var body io.Reader
		if method != http.MethodGet {
			payload, err := json.Marshal(map[string]interface{}{
				"action_id": id,
				"args":      args.Positional,
				"kwargs":    args.Keyword,
			})
			if err != nil {
				return nil, fmt.Errorf("encode payload: %w", err)
			}
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		if resp.StatusCode >= 400 {
			return resp.StatusCode, fmt.Errorf("webhook %s returned %s", url, resp.Status)
		}
		return resp.StatusCode, nil
	}), nil
}

func toDuration(v interface{}) (time.Duration, error) {
	switch d := v.(type) {
	case string:
		return time.ParseDuration(d)
	case int:
		return time.Duration(d) * time.Second, nil
	case int64:
		return time.Duration(d) * time.Second, nil
	case float64:
		return time.Duration(d * float64(time.Second)), nil
	case time.Duration:
		return d, nil
	case nil:
		return 0, fmt.Errorf("missing duration")
	}
	return 0, fmt.Errorf("cannot use %T as a duration", v)
}
