package scraper

import (
	"context"

	"igarchiver/pkg/instagram"
)

// InstagramClient defines the Instagram API operations the scraper needs
type InstagramClient interface {
	FetchProfile(ctx context.Context, username string) (*instagram.User, error)
	FetchTimeline(ctx context.Context, userID, after string, limit int) (*instagram.EdgeOwnerToTimelineMedia, error)
	FetchPost(ctx context.Context, shortcode string) (*instagram.Node, error)
	Download(ctx context.Context, mediaURL string) ([]byte, error)
}
