// Package assets stores screenshots and diff masks on local disk under
// content-addressed keys.
//
// A key is the lowercase hex SHA-256 of the file contents; files live at
// <dir>/<first two key chars>/<key>. Storing the same bytes twice yields the
// same key and leaves a single copy on disk.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"shotdiff/internal/fileutil"
	"shotdiff/internal/services"
)

// ErrInvalidKey is returned for keys that are not 64 lowercase hex characters.
var ErrInvalidKey = errors.New("invalid asset key")

// Store is a local content-addressed asset store.
type Store struct {
	dir           string
	publicBaseURL string
}

// New opens the asset store rooted at dir, creating it when missing. The
// directory must be readable and writable by the current user.
func New(dir, publicBaseURL string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "assets", "open", "asset directory not configured", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "assets", "open", "create asset directory", err)
	}
	if err := unix.Access(dir, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "assets", "open", fmt.Sprintf("asset directory %s not writable", dir), err)
	}
	return &Store{dir: dir, publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/")}, nil
}

// Dir returns the root directory of the store.
func (s *Store) Dir() string {
	return s.dir
}

// ValidKey reports whether key has the shape of an asset key.
func ValidKey(key string) bool {
	if len(key) != 64 {
		return false
	}
	for _, r := range key {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

func (s *Store) pathFor(key string) string {
	return filepath.Join(s.dir, key[:2], key)
}

// LocalPath returns a readable local path for key.
func (s *Store) LocalPath(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !ValidKey(key) {
		return "", services.Wrap(services.ErrValidation, "assets", "resolve", key, ErrInvalidKey)
	}
	path := s.pathFor(key)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", services.Wrap(services.ErrNotFound, "assets", "resolve", key, err)
		}
		return "", services.Wrap(services.ErrTransient, "assets", "resolve", key, err)
	}
	return path, nil
}

// Store copies the file at localPath into the store and returns its key.
func (s *Store) Store(ctx context.Context, localPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, _, err := fileutil.HashFile(localPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", services.Wrap(services.ErrNotFound, "assets", "store", localPath, err)
		}
		return "", services.Wrap(services.ErrTransient, "assets", "store", "hash source", err)
	}
	target := s.pathFor(key)
	if _, err := os.Stat(target); err == nil {
		return key, nil
	}
	if err := fileutil.InstallFile(localPath, target); err != nil {
		return "", services.Wrap(services.ErrTransient, "assets", "store", "install file", err)
	}
	return key, nil
}

// StoreReader streams r into the store and returns its key. It is used for
// uploads where no local source file exists yet.
func (s *Store) StoreReader(ctx context.Context, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	staging := filepath.Join(s.dir, ".incoming-"+uuid.NewString())
	file, err := os.Create(staging)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "assets", "upload", "create staging file", err)
	}
	defer os.Remove(staging)

	if _, err := io.Copy(file, r); err != nil {
		_ = file.Close()
		return "", services.Wrap(services.ErrTransient, "assets", "upload", "write staging file", err)
	}
	if err := file.Close(); err != nil {
		return "", services.Wrap(services.ErrTransient, "assets", "upload", "close staging file", err)
	}
	return s.Store(ctx, staging)
}

// PublicURL returns the browser-facing URL for key when a public base URL is
// configured.
func (s *Store) PublicURL(key string) (string, bool) {
	if s.publicBaseURL == "" || key == "" {
		return "", false
	}
	return s.publicBaseURL + "/" + key, true
}
