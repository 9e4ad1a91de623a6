package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/iotrac/pkg/idx"
)

// Transport is an http.RoundTripper that stamps a request ID on outbound
// requests and logs each round trip. A valid ULID request ID set by the
// caller is kept; a missing or malformed one is replaced. A logger attached
// to the request context with WithContext takes precedence over Logger.
type Transport struct {
	Base   http.RoundTripper
	Logger *slog.Logger
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, logger *slog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Logger: OrDefault(logger)}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	reqID, _ := idx.Parse(req.Header.Get(idx.RequestIDHeader))
	if reqID.IsZero() {
		reqID = idx.New()
		req = req.Clone(req.Context())
		req.Header.Set(idx.RequestIDHeader, reqID.String())
	}

	logger := FromContextOr(req.Context(), t.Logger).With(
		"req_id", reqID.String(),
		"method", req.Method,
		"path", req.URL.Path,
	)

	resp, err := t.Base.RoundTrip(req)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		logger.Debug("http_request_failed", "duration_ms", duration, "err", err)
		return nil, err
	}

	logger.Debug("http_request", "status", resp.StatusCode, "duration_ms", duration)
	return resp, nil
}
