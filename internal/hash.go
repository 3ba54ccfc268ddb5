package chtl

import (
	"encoding/base32"
	"hash/fnv"
	"strings"

	"github.com/google/uuid"
)

// HashFromSource produces the short stable digest used to name a module's
// extraction-cache directory (component H). The teacher hashes with a
// vendored xxhash; that package wasn't part of this retrieval, so this
// uses the stdlib's fnv-1a instead — still non-cryptographic, still
// stable across runs, same truncated-base32 presentation.
func HashFromSource(source string) string {
	h := fnv.New128a()
	//nolint
	h.Write([]byte(strings.TrimSpace(source)))
	return base32.StdEncoding.EncodeToString(h.Sum(nil))[:8]
}

// HashFromStyleBody hashes a style block's printed CSS. Nothing calls it:
// local-style automation names automatic classes from a counter
// ("chtl-<n>") instead.
func HashFromStyleBody(css string) string {
	return HashFromSource(css)
}

// cacheDirName names a `.cmod`'s extraction directory. Two imports of the
// same archive produce the same name (content hash), so repeated compiles
// reuse one extraction instead of leaking a new directory per run. An
// empty contentHash instead names a disposable scratch directory
// (ExtractCmod's staging area, unique per call so concurrent extractions
// never collide before the final rename).
func cacheDirName(contentHash string) string {
	if contentHash != "" {
		return "chtl-cmod-" + contentHash
	}
	return "chtl-cmod-" + uuid.NewString()
}
