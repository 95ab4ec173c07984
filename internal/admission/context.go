package admission

import "context"

type resultKey struct{}

// WithResult attaches an admission result to ctx.
func WithResult(ctx context.Context, res *Result) context.Context {
	return context.WithValue(ctx, resultKey{}, res)
}

// ResultFromContext returns the result attached by the pipeline middleware.
func ResultFromContext(ctx context.Context) (*Result, bool) {
	res, ok := ctx.Value(resultKey{}).(*Result)
	return res, ok && res != nil
}
