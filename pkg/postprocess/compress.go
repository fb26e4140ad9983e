package postprocess

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zip"
)

const (
	// ArchivePrefix starts every media archive name
	ArchivePrefix = "media_"

	// groupKeyLen is the number of leading characters media files are grouped by
	groupKeyLen = 10
)

// GroupResult describes one archive written by CompressMedia
type GroupResult struct {
	Key     string
	Archive string
	Files   []string
	// Kept counts entries carried over from an existing archive
	Kept int
}

// CompressResult summarises a compression run
type CompressResult struct {
	Archives int
	Files    int
	BytesIn  int64
	BytesOut int64
	Groups   []GroupResult
}

// GroupKey returns the first ten characters of name, or all of it when
// shorter
func GroupKey(name string) string {
	runes := []rune(name)
	if len(runes) > groupKeyLen {
		runes = runes[:groupKeyLen]
	}
	return string(runes)
}

// ArchiveName returns "media_<key>.zip"
func ArchiveName(key string) string {
	return ArchivePrefix + key + ".zip"
}

// CompressMedia moves the media files in dir into one zip archive per date
// prefix. Each archive is written to a temporary file and renamed before its
// originals are removed, so a failure leaves the group untouched. Groups
// finished before a failure stay archived.
func (p *Processor) CompressMedia(ctx context.Context, dir string) (*CompressResult, error) {
	names, err := listFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list profile folder: %w", err)
	}

	groups := make(map[string][]string)
	for _, name := range names {
		if !p.IsMedia(name) {
			continue
		}
		key := GroupKey(name)
		groups[key] = append(groups[key], name)
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := &CompressResult{}
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		group, in, out, err := p.compressGroup(dir, key, groups[key])
		if err != nil {
			return result, fmt.Errorf("failed to compress %s: %w", ArchiveName(key), err)
		}

		result.Archives++
		result.Files += len(group.Files)
		result.BytesIn += in
		result.BytesOut += out
		result.Groups = append(result.Groups, *group)
	}

	p.logger.InfoWithFields("Media compressed", map[string]interface{}{
		"archives":  result.Archives,
		"files":     result.Files,
		"bytes_in":  result.BytesIn,
		"bytes_out": result.BytesOut,
	})
	return result, nil
}

// compressGroup archives files into media_<key>.zip, keeping entries of an
// existing archive that are not being replaced
func (p *Processor) compressGroup(dir, key string, files []string) (*GroupResult, int64, int64, error) {
	archive := filepath.Join(dir, ArchiveName(key))
	tmp := archive + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return nil, 0, 0, err
	}
	cleanup := func() {
		f.Close()
		os.Remove(tmp)
	}

	group := &GroupResult{Key: key, Archive: archive, Files: files}
	zw := zip.NewWriter(f)

	kept, err := copyExisting(zw, archive, files)
	if err != nil {
		cleanup()
		return nil, 0, 0, err
	}
	group.Kept = kept

	var bytesIn int64
	for _, name := range files {
		n, err := addFile(zw, filepath.Join(dir, name))
		if err != nil {
			cleanup()
			return nil, 0, 0, err
		}
		bytesIn += n
	}

	if err := zw.Close(); err != nil {
		cleanup()
		return nil, 0, 0, fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return nil, 0, 0, fmt.Errorf("failed to close archive: %w", err)
	}
	if err := os.Rename(tmp, archive); err != nil {
		os.Remove(tmp)
		return nil, 0, 0, fmt.Errorf("failed to rename archive: %w", err)
	}

	for _, name := range files {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			// The archive already holds the file; a leftover is merged next run
			p.logger.WithError(err).WithField("file", name).Warn("Failed to remove archived file")
		}
	}

	var bytesOut int64
	if info, err := os.Stat(archive); err == nil {
		bytesOut = info.Size()
	}

	p.logger.DebugWithFields("Archive written", map[string]interface{}{
		"archive": ArchiveName(key),
		"files":   len(files),
		"kept":    kept,
	})
	return group, bytesIn, bytesOut, nil
}

// copyExisting copies the entries of an existing archive into zw, except
// those named in replace. A missing archive copies nothing.
func copyExisting(zw *zip.Writer, archive string, replace []string) (int, error) {
	zr, err := zip.OpenReader(archive)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to open existing archive: %w", err)
	}
	defer zr.Close()

	skip := make(map[string]bool, len(replace))
	for _, name := range replace {
		skip[name] = true
	}

	kept := 0
	for _, entry := range zr.File {
		if skip[entry.Name] {
			continue
		}
		if err := zw.Copy(entry); err != nil {
			return kept, fmt.Errorf("failed to copy %s from existing archive: %w", entry.Name, err)
		}
		kept++
	}
	return kept, nil
}

// addFile deflates path into zw under its base name
func addFile(zw *zip.Writer, path string) (int64, error) {
	src, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return 0, err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return 0, err
	}
	header.Name = filepath.Base(path)
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(w, src)
	if err != nil {
		return n, fmt.Errorf("failed to add %s: %w", header.Name, err)
	}
	return n, nil
}
