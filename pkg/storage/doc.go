// Package storage manages the files of one profile folder.
//
// File names follow the timestamp convention the post-processing steps rely
// on: "2024-01-01_12-00-00_UTC.jpg" for a single post, "_1", "_2" suffixes
// for carousel children, and a shared stem for the post's metadata
// (.json.xz) and caption (.txt) files. The first ten characters of every
// media name are the post date.
//
// Media is written through a temporary file and renamed into place. On
// start the Manager indexes both loose files and the entries of existing
// media_<date>.zip archives, so media that was already downloaded and
// compressed by an earlier run is not fetched again.
package storage
