// Package faketransport is an in-memory transport.Doer double used only
// by the SDK's own tests: it never touches the network, storing
// registered responses keyed by method+path so a test can script a
// whole paginated exchange.
package faketransport

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Fake is a transport.Doer that replays scripted responses.
type Fake struct {
	mu        sync.Mutex
	responses map[string][]*http.Response
	requests  []*http.Request
}

func New() *Fake {
	return &Fake{responses: make(map[string][]*http.Response)}
}

func key(method, path string) string { return method + " " + path }

// Enqueue registers a response to be returned, in order, for the next
// request matching method+path.
func (f *Fake) Enqueue(method, path string, status int, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(method, path)
	f.responses[k] = append(f.responses[k], &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     make(http.Header),
	})
}

func (f *Fake) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)

	k := key(req.Method, req.URL.Path)
	queue := f.responses[k]
	if len(queue) == 0 {
		return nil, fmt.Errorf("faketransport: no scripted response for %s", k)
	}
	f.responses[k] = queue[1:]
	return queue[0], nil
}

// Requests returns every request observed so far, for assertions.
func (f *Fake) Requests() []*http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*http.Request, len(f.requests))
	copy(out, f.requests)
	return out
}
