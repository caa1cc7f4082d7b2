package ctxutil

import "context"

type requestDataKey struct{}

// RequestData identifies one admin HTTP request across logs and spans.
type RequestData struct {
	RequestID string
	TraceID   string
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(Default(ctx), requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	if ctx == nil {
		return nil
	}
	rd, ok := ctx.Value(requestDataKey{}).(*RequestData)
	if !ok {
		return nil
	}
	return rd
}
