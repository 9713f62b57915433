package action

import "context"

// Args carries the caller's positional and keyword arguments to a handler.
type Args struct {
	Positional []interface{}          `json:"args,omitempty"`
	Keyword    map[string]interface{} `json:"kwargs,omitempty"`
}

// Arg returns the i-th positional argument.
func (a Args) Arg(i int) (interface{}, bool) {
	if i < 0 || i >= len(a.Positional) {
		return nil, false
	}
	return a.Positional[i], true
}

// Kwarg returns a keyword argument by name.
func (a Args) Kwarg(name string) (interface{}, bool) {
	v, ok := a.Keyword[name]
	return v, ok
}

// Handler is the work an action performs. It is either a HandlerFunc or a
// BlockingFunc; the engine normalizes the two.
type Handler interface {
	handlerKind() string
}

// HandlerFunc is a context-aware handler. It should return promptly once ctx
// is done.
type HandlerFunc func(ctx context.Context, args Args) (interface{}, error)

// BlockingFunc is a handler that cannot observe cancellation. The engine runs
// it on its shared worker pool so a stuck call never holds an admission
// goroutine past the timeout.
type BlockingFunc func(args Args) (interface{}, error)

func (HandlerFunc) handlerKind() string  { return "func" }
func (BlockingFunc) handlerKind() string { return "blocking" }

// Kind names the handler flavour for snapshots and logs.
func Kind(h Handler) string {
	if h == nil {
		return ""
	}
	return h.handlerKind()
}
