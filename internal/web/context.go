package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/charimport/internal/core"
)

// WithRequestMetadata adds the client IP and User-Agent to ctx so they are
// stored with the import run.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ip := r.RemoteAddr // already rewritten by TrustedRealIP
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	ctx = core.ContextWithIPAddress(ctx, ip)
	ctx = core.ContextWithUserAgent(ctx, r.Header.Get("User-Agent"))
	return ctx
}
