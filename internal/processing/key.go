package processing

import (
	"crypto/sha1"
	"encoding/hex"

	"github.com/DeafMist/policy-radar/internal/models"
)

// PolicyKey hashes the stable fields of a policy. Generated IDs differ between
// lookups of the same date, so they cannot be used to spot repeats.
func PolicyKey(item models.PolicyItem) string {
	s := sha1.Sum([]byte(item.Title + "|" + item.Date))
	return hex.EncodeToString(s[:])
}
