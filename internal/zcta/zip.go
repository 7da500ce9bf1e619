// Package zcta normalizes ZIP codes to ZCTA codes and assigns point records
// to ZCTAs.
package zcta

import (
	"sort"
	"strings"
)

// PadZIP normalizes a ZIP code to 5 digits: surrounding space and a ZIP+4
// suffix are dropped and short numeric codes are left-padded with zeros.
func PadZIP(zip string) string {
	z := strings.TrimSpace(zip)
	if i := strings.IndexAny(z, "-. "); i >= 0 {
		z = z[:i]
	}
	if len(z) < 5 {
		z = strings.Repeat("0", 5-len(z)) + z
	}
	return z
}

// IsZCTA reports whether code is a 5-digit code.
func IsZCTA(code string) bool {
	if len(code) != 5 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ToZCTA maps a ZIP code to its ZCTA. Overrides map padded ZIPs to the ZCTA
// that covers them (PO-box and unique ZIPs have no polygon of their own).
func ToZCTA(zip string, overrides map[string]string) string {
	z := PadZIP(zip)
	if o, ok := overrides[z]; ok {
		return PadZIP(o)
	}
	return z
}

// NormalizeTargets maps target ZIPs to a sorted, de-duplicated ZCTA list.
func NormalizeTargets(zips []string, overrides map[string]string) []string {
	seen := make(map[string]struct{}, len(zips))
	out := make([]string, 0, len(zips))
	for _, zip := range zips {
		if strings.TrimSpace(zip) == "" {
			continue
		}
		z := ToZCTA(zip, overrides)
		if _, dup := seen[z]; dup {
			continue
		}
		seen[z] = struct{}{}
		out = append(out, z)
	}
	sort.Strings(out)
	return out
}
