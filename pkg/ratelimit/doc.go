// Package ratelimit paces requests to Instagram.
//
// RequestLimiter wraps golang.org/x/time/rate with a cooldown window that the
// downloader extends when Instagram answers 429.
package ratelimit
