package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
	"time"
)

// KeyPrefix is the root of the attachment hierarchy in the bucket. The full
// key layout is
//
//	mail-attachments/{tenantId}/{userId}/{YYYY}/{MM}/{DD}/{base}_{unixMillis}_{8hex}{ext}
//
// and must stay stable: existing deployments hold objects under it.
const KeyPrefix = "mail-attachments"

// GeneratePath builds a collision-free storage key for an attachment.
// Uniqueness comes from the millisecond timestamp plus a random suffix, so
// two calls with identical inputs still produce distinct keys.
func GeneratePath(tenantID, userID, originalName string, now time.Time) string {
	base, ext := splitName(originalName)
	return fmt.Sprintf("%s/%s/%s/%04d/%02d/%02d/%s_%d_%s%s",
		KeyPrefix, tenantID, userID,
		now.Year(), int(now.Month()), now.Day(),
		base, now.UnixMilli(), randomSuffix(), ext)
}

// TenantPrefix returns the listing prefix scoping one tenant's hierarchy.
func TenantPrefix(tenantID string) string {
	return KeyPrefix + "/" + tenantID + "/"
}

// splitName separates a sanitized base name from its extension. The extension
// is preserved (lowercased) so content type can be inferred later.
func splitName(originalName string) (base, ext string) {
	name := path.Base(strings.ReplaceAll(originalName, "\\", "/"))
	if name == "/" || name == "." {
		name = ""
	}
	ext = path.Ext(name)
	base = sanitizeName(strings.TrimSuffix(name, ext))
	if strings.Trim(base, "._-") == "" {
		base = "file"
	}
	ext = strings.ToLower(sanitizeName(ext))
	if ext == "." {
		ext = ""
	}
	return base, ext
}

// sanitizeName reduces a filename fragment to [A-Za-z0-9._-]; anything else
// becomes an underscore.
func sanitizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// randomSuffix returns 8 hex characters from a CSPRNG.
func randomSuffix() string {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// time-derived value rather than panicking in the upload path.
		return fmt.Sprintf("%08x", uint32(time.Now().UnixNano()))
	}
	return hex.EncodeToString(buf[:])
}
