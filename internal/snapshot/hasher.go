package snapshot

import "crypto/sha256"

// contentHash returns the SHA256 digest of a pfx-peer row's content
// (collector, peer, prefix, as_path, state) so Writer can skip rewriting
// a row whose content hasn't changed since the last snapshot.
func contentHash(parts ...string) [32]byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
