// Package checkpoint saves and resumes download progress.
//
// A checkpoint records the timeline cursor of the next page and the posts
// already completed, so an interrupted or rate limited download can pick up
// where it stopped. Checkpoints are keyed by username and remember the year
// filter they were created with; a run with a different filter starts over.
//
// Files live in the platform data directory:
//   - Linux: $XDG_DATA_HOME/igarchiver/checkpoints/ (default ~/.local/share)
//   - macOS: ~/Library/Application Support/igarchiver/checkpoints/
//   - Windows: %APPDATA%/igarchiver/checkpoints/
package checkpoint
