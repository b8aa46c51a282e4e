package fake

import "sync"

// Call is one recorded method invocation.
type Call struct {
	Method string
	Args   []any
}

// CallRecorder is embedded by fakes to record their invocations.
type CallRecorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *CallRecorder) record(method string, args ...any) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Method: method, Args: args})
	r.mu.Unlock()
}

// Calls returns the invocations of method, or all of them when method is "".
func (r *CallRecorder) Calls(method string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many times method was invoked.
func (r *CallRecorder) Count(method string) int {
	return len(r.Calls(method))
}

// IDs returns the first argument of every invocation of method, for methods
// keyed by container id.
func (r *CallRecorder) IDs(method string) []string {
	var out []string
	for _, c := range r.Calls(method) {
		if len(c.Args) > 0 {
			if id, ok := c.Args[0].(string); ok {
				out = append(out, id)
			}
		}
	}
	return out
}
