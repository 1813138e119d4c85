package inkwell

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// IfMatchAny is the wildcard If-Match value. An absent or wildcard If-Match
// means "force": the precondition always passes. Internal and administrative
// flows rely on this.
const IfMatchAny = "*"

// ComputeETag derives the opaque concurrency token for a head. It is a pure
// function of (uid, version) so independent processes always compute the same
// value for the same state. The token has no cryptographic meaning; it exists
// only to detect lost updates.
func ComputeETag(uid string, version int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", uid, version)))
	return fmt.Sprintf(`W/"v%d-%s"`, version, hex.EncodeToString(sum[:8]))
}

// AssertMatch checks a caller-supplied If-Match value against the stored etag.
// Empty or wildcard passes; a mismatch yields a ConflictError carrying both
// values so the caller can re-fetch and retry.
func AssertMatch(ifMatch, current string) error {
	if ifMatch == "" || ifMatch == IfMatchAny {
		return nil
	}
	if ifMatch == current {
		return nil
	}
	return &ConflictError{Expected: ifMatch, Actual: current}
}
