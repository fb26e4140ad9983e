// Package retry provides backoff and retry logic for transient Instagram API
// failures.
//
//	policy := retry.FromConfig(&cfg.Retry, log)
//	profile, err := retry.DoWithResult(ctx, policy, func(ctx context.Context) (*instagram.User, error) {
//		return client.FetchProfile(ctx, username)
//	})
//
// Rate limit errors use a longer backoff than network or server errors.
// Exhaustion wraps the last error, so errors.IsSoft and errors.TypeOf still
// see the original failure.
package retry
