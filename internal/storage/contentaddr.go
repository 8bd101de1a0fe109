package storage

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Content addressing: a file's identity is its content hash, not its
// path. Two independent hashes are kept because they serve different
// masters: the structural hash is cheap and changes whenever the file
// would need re-indexing; the content hash is stable across a rename
// and drives move detection.

// ContentHash computes the identity hash of file content. Stable
// across the file's path changing.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// StructuralHash computes the fast change-detection hash over content
// plus file attributes. Not an identity: the same content re-stored
// with a newer mtime hashes differently, which is what forces a
// re-index after touch-only changes.
func StructuralHash(content []byte, modTime time.Time, size int64) string {
	h := xxhash.New()
	_, _ = h.Write(content)

	var attrs [16]byte
	binary.LittleEndian.PutUint64(attrs[0:8], uint64(modTime.UnixNano()))
	binary.LittleEndian.PutUint64(attrs[8:16], uint64(size))
	_, _ = h.Write(attrs[:])

	return strconv.FormatUint(h.Sum64(), 16)
}

// NormalizeRelativePath canonicalizes a file path against its
// repository root: forward slashes, no leading "./", cleaned of "..".
// Returns ok=false when the path lies outside the root, in which case
// the caller may treat the input as already relative.
func NormalizeRelativePath(repoPath, path string) (string, bool) {
	if repoPath == "" || !filepath.IsAbs(path) {
		return cleanRelative(path), false
	}
	rel, err := filepath.Rel(repoPath, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return cleanRelative(path), false
	}
	return filepath.ToSlash(rel), true
}

func cleanRelative(path string) string {
	p := filepath.ToSlash(filepath.Clean(path))
	p = strings.TrimPrefix(p, "./")
	return p
}
