package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/schools"
)

// HashedFields are the record fields that affect a rendered page, in hash
// order. Contact fields and updated_at are deliberately absent.
var HashedFields = []string{
	"npsn",
	"nama",
	"bentuk_pendidikan",
	"status",
	"alamat",
	"kelurahan",
	"kecamatan",
	"kab_kota",
	"provinsi",
	"lat",
	"lon",
}

// ComputeHash fingerprints the page-relevant fields of s:
// - Values are joined with "|" in HashedFields order
// - Empty fields are skipped, not replaced with a placeholder
// - The digest is SHA-256, hex-encoded
func ComputeHash(s schools.School) string {
	parts := make([]string, 0, len(HashedFields))
	for _, field := range HashedFields {
		if v := s.Get(field); v != "" {
			parts = append(parts, v)
		}
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
