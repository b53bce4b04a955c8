// Package archive bundles files into timestamped tar.gz archives and prunes
// old archives.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout formats archive name timestamps (YYYYMMDD_HHMMSS).
const TimestampLayout = "20060102_150405"

// Name returns "<prefix>_<timestamp>.tar.gz" inside dir, adding an _N suffix
// when an archive of that name already exists.
func Name(dir, prefix string, now time.Time) string {
	base := prefix + "_" + now.Format(TimestampLayout)
	path := filepath.Join(dir, base+".tar.gz")
	for n := 1; exists(path); n++ {
		path = filepath.Join(dir, fmt.Sprintf("%s_%d.tar.gz", base, n))
	}
	return path
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Create writes files into a new gzip-compressed tar at dest. Entry names are
// the file paths relative to root. The archive is written to a temporary file
// and renamed into place.
func Create(dest, root string, files []string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".archive-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	gz := gzip.NewWriter(tmp)
	tw := tar.NewWriter(gz)
	for _, file := range files {
		if err := addFile(tw, root, file); err != nil {
			tmp.Close()
			return fmt.Errorf("adding %s: %w", file, err)
		}
	}
	if err := tw.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, dest)
}

func addFile(tw *tar.Writer, root, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	name, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(name, "..") {
		name = filepath.Base(path)
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = filepath.ToSlash(name)
	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

// List returns the entry names of a tar.gz archive in order.
func List(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	var names []string
	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return names, nil
		}
		if err != nil {
			return nil, err
		}
		names = append(names, header.Name)
	}
}

// Prune keeps the newest keep archives in dir whose names start with prefix
// and removes the rest. Timestamped names sort chronologically. keep <= 0
// keeps everything.
func Prune(dir, prefix string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"_*.tar.gz"))
	if err != nil {
		return nil, err
	}
	if len(matches) <= keep {
		return nil, nil
	}
	sort.Slice(matches, func(i, j int) bool { return archiveKey(matches[i]) < archiveKey(matches[j]) })

	removed := matches[:len(matches)-keep]
	for _, path := range removed {
		if err := os.Remove(path); err != nil {
			return nil, err
		}
	}
	return removed, nil
}

// archiveKey orders same-second collision suffixes after the unsuffixed name.
func archiveKey(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), ".tar.gz")
	i := strings.LastIndex(name, "_")
	if i < 0 {
		return name
	}
	n, err := strconv.Atoi(name[i+1:])
	if err != nil || len(name)-i-1 == len("150405") {
		return name + "_0000"
	}
	return fmt.Sprintf("%s_%04d", name[:i], n)
}
