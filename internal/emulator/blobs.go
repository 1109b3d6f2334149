package emulator

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// TempDirBlobs keeps ROMs as files in a directory and hands out file URLs.
type TempDirBlobs struct {
	dir   string
	owned bool
}

// NewTempDirBlobs stores blobs under dir, or under a fresh temporary
// directory removed by Close when dir is empty.
func NewTempDirBlobs(dir string) (*TempDirBlobs, error) {
	if dir != "" {
		dir, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolve blob dir: %w", err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create blob dir: %w", err)
		}
		return &TempDirBlobs{dir: dir}, nil
	}
	dir, err := os.MkdirTemp("", "turtle-roms-")
	if err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &TempDirBlobs{dir: dir, owned: true}, nil
}

func (b *TempDirBlobs) Create(data []byte) (string, error) {
	path := filepath.Join(b.dir, uuid.NewString()+".rom")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String(), nil
}

func (b *TempDirBlobs) Revoke(handle string) error {
	u, err := url.Parse(handle)
	if err != nil || u.Scheme != "file" {
		return fmt.Errorf("not a blob handle: %q", handle)
	}
	path := filepath.FromSlash(u.Path)
	if filepath.Dir(path) != filepath.Clean(b.dir) || !strings.HasSuffix(path, ".rom") {
		return fmt.Errorf("blob %q is outside %s", handle, b.dir)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

func (b *TempDirBlobs) Dir() string { return b.dir }

func (b *TempDirBlobs) Close() error {
	if !b.owned {
		return nil
	}
	return os.RemoveAll(b.dir)
}
