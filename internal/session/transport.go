package session

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
)

// Transport is an http.RoundTripper that attaches the current access token
// and transparently retries exactly once after an expired-token 401: the
// retry waits on the monitor's (shared, single-flight) refresh and replays
// the request with the new token. A request that fails again after the one
// retry surfaces the response to the caller unchanged.
type Transport struct {
	Base    http.RoundTripper
	Monitor *Monitor
}

// NewTransport wraps base (or http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, m *Monitor) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Monitor: m}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	first := req.Clone(req.Context())
	if tok := t.Monitor.AccessToken(); tok != "" {
		first.Header.Set("Authorization", "Bearer "+tok)
	}

	res, err := t.Base.RoundTrip(first)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusUnauthorized {
		return res, nil
	}

	expired, res, err := drainExpiredFlag(res)
	if err != nil {
		return nil, err
	}
	if !expired {
		return res, nil
	}
	// Replaying needs a rewindable body.
	if req.Body != nil && req.GetBody == nil {
		return res, nil
	}

	if rerr := t.Monitor.Refresh(req.Context()); rerr != nil {
		return res, nil
	}
	_ = res.Body.Close()

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, berr := req.GetBody()
		if berr != nil {
			return nil, berr
		}
		retry.Body = body
	}
	if tok := t.Monitor.AccessToken(); tok != "" {
		retry.Header.Set("Authorization", "Bearer "+tok)
	}
	return t.Base.RoundTrip(retry)
}

// drainExpiredFlag reads the 401 body to extract the expired flag, then
// rebuilds the response so the caller can still consume it.
func drainExpiredFlag(res *http.Response) (bool, *http.Response, error) {
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	_ = res.Body.Close()
	if err != nil {
		return false, nil, err
	}
	res.Body = io.NopCloser(bytes.NewReader(raw))

	var body struct {
		Expired bool `json:"expired"`
	}
	_ = json.Unmarshal(raw, &body)
	return body.Expired, res, nil
}
