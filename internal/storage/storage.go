// Package storage holds merchant documents.
package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
)

var ErrInvalidKey = errors.New("invalid object key")

// Store puts and removes blobs by key. Put returns the URL clients use to
// fetch the object.
type Store interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
	Delete(ctx context.Context, key string) error
}

// checkKey rejects empty keys, absolute paths and parent traversal.
func checkKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return ErrInvalidKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return ErrInvalidKey
		}
	}
	return nil
}

func joinURL(base, key string) string {
	segs := strings.Split(key, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segs, "/")
}
