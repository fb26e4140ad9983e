// Package instagram is a small client for Instagram's web API.
//
// It covers the calls the archiver needs: the profile lookup, paginated
// timeline pages, single post lookups (for video URLs the timeline omits)
// and raw media downloads. Every request goes through a rate limiter and a
// circuit breaker, and JSON calls are retried per a retry.Policy. Failures
// come back as *errors.Error so callers can tell soft failures (rate limits,
// forbidden responses, connection problems) from hard ones.
//
//	client := instagram.NewClientFromConfig(cfg, log)
//	user, err := client.FetchProfile(ctx, "natgeo")
//	page, err := client.FetchTimeline(ctx, user.ID, cursor, 12)
package instagram
