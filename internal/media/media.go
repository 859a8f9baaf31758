package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"classattend/internal/apperr"
)

// Store is a flat-file area for enrollment photos and QR images.
// Put returns the reference later passed to Get.
type Store interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

// Local stores files below a root directory; references are slash-separated keys.
type Local struct {
	Root string
}

// NewLocal creates a local store rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{Root: dir}
}

func (l *Local) resolve(key string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	if clean == "/" {
		return "", apperr.Invalid("empty media key")
	}
	return filepath.Join(l.Root, filepath.FromSlash(clean[1:])), nil
}

// Put writes data to key through a temp file and rename.
func (l *Local) Put(ctx context.Context, key string, data []byte) (string, error) {
	dst, err := l.resolve(key)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperr.IO("create media dir", err)
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", apperr.IO("create temp file", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", apperr.IO("write "+key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", apperr.IO("close "+key, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", apperr.IO("rename "+key, err)
	}
	return strings.TrimPrefix(path.Clean("/"+key), "/"), nil
}

// Get reads the file behind ref.
func (l *Local) Get(ctx context.Context, ref string) ([]byte, error) {
	src, err := l.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.NotFoundf("media %s", ref)
		}
		return nil, apperr.IO("read "+ref, err)
	}
	return data, nil
}

// PhotoKey names an enrollment photo.
func PhotoKey(token string) string {
	return fmt.Sprintf("students/%s.jpg", token)
}

// QRKey names the QR image of a student.
func QRKey(studentID int64) string {
	return fmt.Sprintf("qr/%d.png", studentID)
}
