// Package contentid derives stable, backend-safe identifiers from document
// references. Every collection name in the system goes through this package,
// so naming rules live in exactly one place.
package contentid

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// maxIDLen bounds the identifier portion of a collection name so that
// prefix + "-" + id stays within backend naming limits.
const maxIDLen = 40

// Derive returns a deterministic content id for a document reference.
// The same reference always yields the same id; distinct references yield
// distinct ids with overwhelming probability. Pure: no I/O, never fails.
func Derive(reference string) string {
	sum := sha256.Sum256([]byte(canonicalize(reference)))
	id := hex.EncodeToString(sum[:])
	if len(id) > maxIDLen {
		id = id[:maxIDLen]
	}
	return ensureLeadingLetter(id)
}

// Sanitize normalizes a caller-supplied identifier (for example a catalog row
// id) to the collection naming alphabet: lowercase alphanumerics and hyphens,
// bounded length, leading letter. Empty or fully-invalid input degrades to a
// hash of the raw string so the result is still stable and non-empty.
func Sanitize(raw string) string {
	var b strings.Builder
	prevHyphen := false
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevHyphen = false
		default:
			// Collapse runs of disallowed characters into a single hyphen.
			if !prevHyphen && b.Len() > 0 {
				b.WriteByte('-')
				prevHyphen = true
			}
		}
	}
	id := strings.TrimRight(b.String(), "-")
	if id == "" {
		return Derive(raw)
	}
	if len(id) > maxIDLen {
		id = strings.TrimRight(id[:maxIDLen], "-")
	}
	return ensureLeadingLetter(id)
}

// Collection joins a kind prefix ("pdf-index", "research-notes") with a
// content id into the backing collection name.
func Collection(prefix, id string) string {
	return prefix + "-" + id
}

// canonicalize normalizes a reference so that trivially-different spellings
// of the same locator hash identically. URL references get a lowercased
// scheme and host and lose their fragment; anything else is just trimmed.
func canonicalize(reference string) string {
	ref := strings.TrimSpace(reference)
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" {
		return ref
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String()
}

func ensureLeadingLetter(id string) string {
	if id == "" || id[0] < 'a' || id[0] > 'z' {
		return "d" + id
	}
	return id
}
