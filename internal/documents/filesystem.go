package documents

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrBlobNotFound is returned when a locator names nothing.
var ErrBlobNotFound = errors.New("blob not found")

const fileLocatorPrefix = "file:"

// FileBlobStore keeps blobs on local disk under Root. Files are named by the
// sha256 of their content inside a directory derived from the blob name, so
// re-uploading identical bytes for the same name yields the same locator.
type FileBlobStore struct {
	Root string
}

// NewFileBlobStore creates root if needed.
func NewFileBlobStore(root string) (*FileBlobStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir %s: %w", root, err)
	}
	return &FileBlobStore{Root: root}, nil
}

func (s *FileBlobStore) Put(ctx context.Context, name string, r io.Reader) (string, int64, error) {
	dir := filepath.Join(s.Root, safeName(name))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", 0, fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), contextReader{ctx: ctx, r: r})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", 0, fmt.Errorf("write blob %s: %w", name, err)
	}

	final := filepath.Join(dir, hex.EncodeToString(h.Sum(nil)))
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", 0, fmt.Errorf("commit blob %s: %w", name, err)
	}

	rel, err := filepath.Rel(s.Root, final)
	if err != nil {
		return "", 0, err
	}
	return fileLocatorPrefix + filepath.ToSlash(rel), size, nil
}

func (s *FileBlobStore) Open(_ context.Context, locator string) (io.ReadCloser, error) {
	path, err := s.path(locator)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("blob %s: %w", locator, ErrBlobNotFound)
	}
	return f, err
}

func (s *FileBlobStore) Delete(_ context.Context, locator string) error {
	path, err := s.path(locator)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("blob %s: %w", locator, ErrBlobNotFound)
	}
	return err
}

func (s *FileBlobStore) path(locator string) (string, error) {
	rel, ok := strings.CutPrefix(locator, fileLocatorPrefix)
	if !ok {
		return "", fmt.Errorf("not a file locator: %q", locator)
	}
	path := filepath.Join(s.Root, filepath.FromSlash(rel))
	if !strings.HasPrefix(path, filepath.Clean(s.Root)+string(filepath.Separator)) {
		return "", fmt.Errorf("locator escapes blob root: %q", locator)
	}
	return path, nil
}

// safeName keeps only the base of every slash-separated segment.
func safeName(name string) string {
	var parts []string
	for _, seg := range strings.Split(name, "/") {
		seg = filepath.Base(seg)
		if seg == "." || seg == ".." || seg == string(filepath.Separator) || seg == "" {
			continue
		}
		parts = append(parts, seg)
	}
	if len(parts) == 0 {
		return "_"
	}
	return filepath.Join(parts...)
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
