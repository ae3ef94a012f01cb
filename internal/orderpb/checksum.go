package orderpb

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Checksum recomputes the structural checksum over the fields the spec
// nails down (§3 invariant "Checksum"): items.len, total, paid_amount,
// last_sequence, status. Hashing only these fields — rather than the whole
// snapshot — keeps the checksum stable across schema additions, per the
// "Deterministic JSON for checksums" design note (spec §9).
func Checksum(s *OrderSnapshot) string {
	data := fmt.Sprintf("%d|%.2f|%.2f|%d|%s", len(s.Items), s.Total, s.PaidAmount, s.LastSequence, s.Status)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum reports whether the snapshot's stored checksum matches a
// freshly computed one (spec §8 "Checksum verifiability").
func VerifyChecksum(s *OrderSnapshot) bool {
	return s.StateChecksum == Checksum(s)
}
