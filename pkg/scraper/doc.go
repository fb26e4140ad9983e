// Package scraper downloads an Instagram profile into its profile folder.
//
// A Scraper fetches the profile, walks the timeline page by page and hands
// every matching media file to a worker pool. Each post is stored under a
// name derived from its UTC timestamp:
//
//	2024-03-01_10-00-00_UTC.jpg        single image
//	2024-02-01_10-00-00_UTC_2.mp4      second item of a carousel
//	2024-03-01_10-00-00_UTC.json.xz    post metadata
//	2024-03-01_10-00-00_UTC.txt        caption
//
// An optional year filter keeps only posts taken in that year. Because the
// timeline is newest first, paging stops at the first page made up entirely
// of older posts.
//
// Errors fall in two groups. Hard errors (unknown profile, login required,
// unreadable responses, disk failures) are returned from Download. Soft
// errors (rate limiting, forbidden, connection problems, an open circuit
// breaker, cancellation) end the download early; Download then returns a
// Summary marked Incomplete and keeps the checkpoint so a later run can
// resume with Options.Resume.
//
// Usage:
//
//	s := scraper.New(cfg, log)
//	s.SetReporter(reporter)
//	summary, err := s.Download(ctx, "natgeo", scraper.Options{Year: 2024})
package scraper
