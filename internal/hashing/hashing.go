// Package hashing computes streaming SHA-256 content digests.
package hashing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"parcel/internal/fileutil"
	"parcel/internal/services"
)

const stageName = "hash"

// File streams the file at path through SHA-256 and returns the lowercase hex
// digest. The file is never loaded into memory in full.
func File(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", services.Wrap(services.ErrIO, stageName, "open", path, err)
	}
	defer f.Close()
	return Reader(ctx, f)
}

// Reader digests everything r yields.
func Reader(ctx context.Context, r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, fileutil.Reader(ctx, r)); err != nil {
		if ctxErr := services.FromContext(ctx, stageName); ctxErr != nil {
			return "", ctxErr
		}
		return "", services.Wrap(services.ErrIO, stageName, "read", "stream failed", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
