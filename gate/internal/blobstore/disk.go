package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore serves objects from a directory tree. Object keys are
// slash-separated paths relative to the root.
type DiskStore struct {
	root string
}

// NewDiskStore validates the root directory and returns a store over it.
func NewDiskStore(root string) (*DiskStore, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("blob root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("blob root %s is not a directory", root)
	}
	return &DiskStore{root: root}, nil
}

// resolve maps a key to an absolute path, rejecting traversal outside root.
func (s *DiskStore) resolve(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return "", ErrObjectNotFound
	}
	path := filepath.Join(s.root, filepath.FromSlash(key))
	if !strings.HasPrefix(path, filepath.Clean(s.root)+string(os.PathSeparator)) {
		return "", ErrObjectNotFound
	}
	return path, nil
}

func (s *DiskStore) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("stat object %s: %w", key, err)
	}
	if info.IsDir() {
		return nil, ErrObjectNotFound
	}

	sum, err := fileSHA256(path)
	if err != nil {
		return nil, fmt.Errorf("hash object %s: %w", key, err)
	}

	return &ObjectInfo{
		Key:       key,
		Name:      filepath.Base(path),
		Size:      info.Size(),
		UpdatedAt: info.ModTime().UTC(),
		SHA256:    sum,
	}, nil
}

func (s *DiskStore) List(ctx context.Context) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}

		info, err := s.Stat(ctx, filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		objects = append(objects, *info)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	return objects, nil
}

func (s *DiskStore) Open(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error) {
	info, err := s.Stat(ctx, key)
	if err != nil {
		return nil, nil, err
	}

	path, err := s.resolve(key)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open object %s: %w", key, err)
	}
	return f, info, nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
