package storage

import (
	"fmt"
	"time"
)

// stampLayout is the timestamp part of every media file name. The first ten
// characters are the date, which compression uses as its grouping key.
const stampLayout = "2006-01-02_15-04-05"

// Stem returns the base name shared by all files of a post taken at t,
// e.g. "2024-01-01_12-00-00_UTC"
func Stem(t time.Time) string {
	return t.UTC().Format(stampLayout) + "_UTC"
}

// MediaName returns the file name for one media item of a post. Carousel
// children (index >= 1) get a numeric suffix.
func MediaName(stem string, index int, isVideo bool) string {
	ext := ".jpg"
	if isVideo {
		ext = ".mp4"
	}
	if index > 0 {
		return fmt.Sprintf("%s_%d%s", stem, index, ext)
	}
	return stem + ext
}

// CaptionName returns the caption file name for a post stem
func CaptionName(stem string) string {
	return stem + ".txt"
}

// ProfilePicName returns the file name for a profile picture fetched at t
func ProfilePicName(t time.Time) string {
	return Stem(t) + "_profile_pic.jpg"
}
