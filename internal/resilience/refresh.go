package resilience

import "context"

// WithRefresh wraps a fallible call with transparent credential rotation.
// When fn fails with an authentication-expired signal (per isExpired),
// refresh is invoked once and fn is retried exactly once. Any other failure,
// a refresh failure, or a second fn failure propagates unmodified.
//
// The refresh strategy owns the side effects of rotation (token exchange,
// encrypted persistence, live client update), so a successful refresh is
// visible to every subsequent call in the process.
func WithRefresh[T any](
	ctx context.Context,
	isExpired func(error) bool,
	refresh func(ctx context.Context) error,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	val, err := fn(ctx)
	if err == nil || !isExpired(err) {
		return val, err
	}

	if rerr := refresh(ctx); rerr != nil {
		var zero T
		return zero, rerr
	}

	return fn(ctx)
}
