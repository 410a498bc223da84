package service

import (
	"context"
	"sync/atomic"
)

type requestInfoKey struct{}

// RequestInfo travels with a request so audit entries carry its id and client
// address, and so the outer middleware can tell whether the handler has
// already produced an entry for the request's outcome.
type RequestInfo struct {
	RequestID string
	IP        string

	handling atomic.Bool
	recorded atomic.Bool
}

func WithRequestInfo(ctx context.Context, requestID string, ip string) (context.Context, *RequestInfo) {
	info := &RequestInfo{RequestID: requestID, IP: ip}
	return context.WithValue(ctx, requestInfoKey{}, info), info
}

func RequestInfoFromContext(ctx context.Context) (*RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey{}).(*RequestInfo)
	return info, ok && info != nil
}

// BeginHandling starts the outcome phase. Entries written before it, such as
// those of authentication or a silent token rotation, do not count as the
// request's outcome.
func (i *RequestInfo) BeginHandling() {
	i.recorded.Store(false)
	i.handling.Store(true)
}

// Recorded reports whether an entry was written since BeginHandling.
func (i *RequestInfo) Recorded() bool {
	return i.handling.Load() && i.recorded.Load()
}

func markOutcome(ctx context.Context) {
	if info, ok := RequestInfoFromContext(ctx); ok && info.handling.Load() {
		info.recorded.Store(true)
	}
}
