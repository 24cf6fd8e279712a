// Package ipaccess implements IPv4 allow-list checks for project uploads:
// CIDR parsing, client IP extraction from proxy headers, and request-level
// enforcement. IPv6 ranges are not supported.
package ipaccess

import (
	"encoding/json"
	"net/http"
	"strings"
)

// parseOctet parses a dotted-quad octet: digits only, no leading zeros,
// value in [0,255].
func parseOctet(s string) (uint32, bool) {
	if s == "" || len(s) > 3 {
		return 0, false
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, false
	}
	var v uint32
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + uint32(c-'0')
	}
	if v > 255 {
		return 0, false
	}
	return v, true
}

// parseIPv4 packs a dotted-quad address into a big-endian uint32.
func parseIPv4(s string) (uint32, bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, false
	}
	var ip uint32
	for _, p := range parts {
		octet, ok := parseOctet(p)
		if !ok {
			return 0, false
		}
		ip = ip<<8 | octet
	}
	return ip, true
}

// parsePrefix parses a CIDR prefix length: digits only, no leading zeros,
// value in [0,32].
func parsePrefix(s string) (uint32, bool) {
	if s == "" || len(s) > 2 {
		return 0, false
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, false
	}
	var v uint32
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + uint32(c-'0')
	}
	if v > 32 {
		return 0, false
	}
	return v, true
}

// parseRange parses "a.b.c.d" or "a.b.c.d/n" into a base address and mask.
// A bare address is an implicit /32.
func parseRange(s string) (ip, mask uint32, ok bool) {
	addr, prefixStr, hasPrefix := strings.Cut(s, "/")
	if strings.Contains(addr, ":") {
		return 0, 0, false
	}
	ip, ok = parseIPv4(addr)
	if !ok {
		return 0, 0, false
	}
	prefix := uint32(32)
	if hasPrefix {
		prefix, ok = parsePrefix(prefixStr)
		if !ok {
			return 0, 0, false
		}
	}
	// Shift counts >= 32 yield zero, so /0 produces an all-matching mask.
	mask = ^uint32(0) << (32 - prefix)
	return ip, mask, true
}

// IsValidCIDR reports whether s is a valid IPv4 address or IPv4 CIDR range.
func IsValidCIDR(s string) bool {
	_, _, ok := parseRange(strings.TrimSpace(s))
	return ok
}

// ValidateAllowedIPs checks a comma-separated allow-list and returns the
// entries that are not valid IPv4 addresses or ranges. An empty list is
// valid: at the project-config layer it means "no restriction".
func ValidateAllowedIPs(list string) []string {
	var invalid []string
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !IsValidCIDR(entry) {
			invalid = append(invalid, entry)
		}
	}
	return invalid
}

// NormalizeAllowedIPs trims and deduplicates a comma-separated allow-list.
// It returns nil when nothing remains, the canonical "no restriction"
// sentinel for storage.
func NormalizeAllowedIPs(list string) *string {
	seen := make(map[string]bool)
	var out []string
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" || seen[entry] {
			continue
		}
		seen[entry] = true
		out = append(out, entry)
	}
	if len(out) == 0 {
		return nil
	}
	normalized := strings.Join(out, ",")
	return &normalized
}

// IsIPAllowed reports whether clientIP falls inside any range of the
// comma-separated allow-list. Unparseable entries are skipped; a list with
// zero usable ranges denies everything (fail closed), as does an invalid
// or empty client IP.
func IsIPAllowed(clientIP, allowedIPs string) bool {
	ip, ok := parseIPv4(strings.TrimSpace(clientIP))
	if !ok {
		return false
	}
	for _, entry := range strings.Split(allowedIPs, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		base, mask, ok := parseRange(entry)
		if !ok {
			continue
		}
		if ip&mask == base&mask {
			return true
		}
	}
	return false
}

// ClientIP extracts the request's origin address. A trusted proxy header,
// when configured and present, wins over X-Forwarded-For; the forwarded-for
// chain is read right to left so a client cannot prepend its own value. An
// IPv4-mapped IPv6 prefix is stripped from either source. Returns "" when
// no usable header is present.
func ClientIP(h http.Header, trustedHeader string) string {
	if trustedHeader != "" {
		if v := strings.TrimSpace(h.Get(trustedHeader)); v != "" {
			return strings.TrimPrefix(v, "::ffff:")
		}
	}
	fwd := h.Get("X-Forwarded-For")
	if fwd == "" {
		return ""
	}
	parts := strings.Split(fwd, ",")
	last := strings.TrimSpace(parts[len(parts)-1])
	if last == "" {
		return ""
	}
	return strings.TrimPrefix(last, "::ffff:")
}

// Enforce applies a project's IP restriction to a request. A nil restriction
// always permits. On denial it writes a 403 (body-less for HEAD) and returns
// false; the caller must stop handling the request.
func Enforce(w http.ResponseWriter, r *http.Request, allowedIPs *string, trustedHeader string) bool {
	if allowedIPs == nil {
		return true
	}
	clientIP := ClientIP(r.Header, trustedHeader)
	if IsIPAllowed(clientIP, *allowedIPs) {
		return true
	}
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusForbidden)
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	json.NewEncoder(w).Encode(map[string]string{"error": "Forbidden"})
	return false
}
