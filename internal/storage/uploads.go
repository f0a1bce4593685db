package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// UploadPathPrefix is the URL path under which upload references are served.
const UploadPathPrefix = "/uploads/"

// UploadStore holds uploaded file bytes, addressed by reference strings.
type UploadStore interface {
	Put(ctx context.Context, filename string, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

// DiskUploads stores each upload as a file under Dir.
type DiskUploads struct {
	Dir string
}

var (
	unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	validRef        = regexp.MustCompile(`^[0-9a-f-]{36}_[A-Za-z0-9._-]+$`)
)

const maxStoredNameLen = 100

// Put writes data under a new reference of the form <uuidv7>_<name>.
func (d *DiskUploads) Put(_ context.Context, filename string, data []byte) (string, error) {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", storeErr("put upload", fmt.Errorf("create upload dir: %w", err))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", storeErr("put upload", err)
	}
	ref := id.String() + "_" + SanitizeFilename(filename)

	tmp, err := os.CreateTemp(d.Dir, ".upload-*")
	if err != nil {
		return "", storeErr("put upload", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", storeErr("put upload", err)
	}
	if err := tmp.Close(); err != nil {
		return "", storeErr("put upload", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(d.Dir, ref)); err != nil {
		return "", storeErr("put upload", err)
	}
	return ref, nil
}

// Get returns the bytes stored under ref. A leading UploadPathPrefix is
// accepted. Unknown or malformed references yield ErrNotFound.
func (d *DiskUploads) Get(_ context.Context, ref string) ([]byte, error) {
	if r, ok := UploadRef(ref); ok {
		ref = r
	}
	if !validRef.MatchString(ref) {
		return nil, fmt.Errorf("upload %q: %w", ref, ErrNotFound)
	}

	data, err := os.ReadFile(filepath.Join(d.Dir, ref))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("upload %q: %w", ref, ErrNotFound)
		}
		return nil, storeErr("get upload", err)
	}
	return data, nil
}

// SanitizeFilename reduces a client-supplied filename to a safe base name.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if len(name) > maxStoredNameLen {
		name = name[len(name)-maxStoredNameLen:]
	}
	if name == "" {
		return "upload"
	}
	return name
}

// UploadURL returns the item URL for an upload reference.
func UploadURL(ref string) string {
	return UploadPathPrefix + ref
}

// UploadRef extracts the reference from an item URL, reporting whether the
// URL points at an upload.
func UploadRef(itemURL string) (string, bool) {
	if !strings.HasPrefix(itemURL, UploadPathPrefix) {
		return "", false
	}
	return strings.TrimPrefix(itemURL, UploadPathPrefix), true
}
