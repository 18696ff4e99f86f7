package utils

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// ErrArchiveFinalized is returned when adding to an archive that was already finalized.
var ErrArchiveFinalized = errors.New("archive already finalized")

// Archive is an in-memory ZIP packager. Entries keep the order in which they were added.
type Archive struct {
	buf       *bytes.Buffer
	zw        *zip.Writer
	names     map[string]int
	count     int
	finalized bool
}

func NewArchive() *Archive {
	buf := &bytes.Buffer{}
	return &Archive{
		buf:   buf,
		zw:    zip.NewWriter(buf),
		names: make(map[string]int),
	}
}

// Add writes data as a new entry. A name already present gets a " (n)" suffix before its
// extension so no entry shadows another. Returns the entry name actually used.
func (a *Archive) Add(name string, data []byte) (string, error) {
	if a.finalized {
		return "", ErrArchiveFinalized
	}
	entryName := a.uniqueName(name)

	header := &zip.FileHeader{
		Name:     entryName,
		Method:   zip.Deflate,
		Modified: time.Now(),
	}
	w, err := a.zw.CreateHeader(header)
	if err != nil {
		return "", fmt.Errorf("failed to create entry in zip for %s: %w", entryName, err)
	}
	if _, err := w.Write(data); err != nil {
		return "", fmt.Errorf("failed to write %s to zip: %w", entryName, err)
	}
	a.count++
	return entryName, nil
}

// Len returns the number of entries added so far.
func (a *Archive) Len() int {
	return a.count
}

// Finalize closes the ZIP writer and returns the complete payload.
func (a *Archive) Finalize() ([]byte, error) {
	if a.finalized {
		return nil, ErrArchiveFinalized
	}
	a.finalized = true
	if err := a.zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize zip writer: %w", err)
	}
	return a.buf.Bytes(), nil
}

func (a *Archive) uniqueName(name string) string {
	name = strings.TrimLeft(path.Clean("/"+name), "/")
	if name == "" {
		name = "image"
	}
	seen := a.names[name]
	a.names[name] = seen + 1
	if seen == 0 {
		return name
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for {
		candidate := fmt.Sprintf("%s (%d)%s", base, seen, ext)
		if a.names[candidate] == 0 {
			a.names[candidate] = 1
			return candidate
		}
		seen++
	}
}
