// Package clientinfo carries browser request metadata through the context so
// sync handlers can attach it to outbound order payloads.
package clientinfo

import "context"

type Info struct {
	BrowserIP      string
	AcceptLanguage string
	UserAgent      string
}

type ctxKey struct{}

func WithInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

func FromContext(ctx context.Context) Info {
	info, _ := ctx.Value(ctxKey{}).(Info)
	return info
}
