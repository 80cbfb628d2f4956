package gmail

import (
	"log/slog"
	"net/http"
	"time"
)

// loggingTransport logs method, path, status and latency of outgoing Gmail
// requests at debug level. Bodies are never logged.
type loggingTransport struct {
	base http.RoundTripper
	log  *slog.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	rt := t.base
	if rt == nil {
		rt = http.DefaultTransport
	}
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.log.DebugContext(req.Context(), "gmail request failed",
			"method", req.Method, "path", req.URL.Path, "elapsed", time.Since(start), "err", err)
		return resp, err
	}
	t.log.DebugContext(req.Context(), "gmail request",
		"method", req.Method, "path", req.URL.Path, "status", resp.StatusCode, "elapsed", time.Since(start))
	return resp, nil
}
