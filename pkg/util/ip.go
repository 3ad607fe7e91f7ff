package util

import (
	"fmt"
	"net/netip"
	"strings"
)

// StripPrefix returns the address part of a CIDR string. A bare address is
// returned unchanged.
func StripPrefix(addr string) string {
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		return addr[:i]
	}
	return addr
}

// IsValidIP checks if a string is an IPv4 or IPv6 literal
func IsValidIP(s string) bool {
	_, err := netip.ParseAddr(s)
	return err == nil
}

// IsValidIPv4 checks if a string is an IPv4 literal. BGP router IDs must be.
func IsValidIPv4(s string) bool {
	addr, err := netip.ParseAddr(s)
	return err == nil && addr.Is4()
}

// IsValidCIDR checks if a string parses as a network prefix. Host bits may
// be set (10.0.0.1/31 is accepted).
func IsValidCIDR(s string) bool {
	_, err := netip.ParsePrefix(s)
	return err == nil
}

// IsValidIPv4CIDR checks if a string is an IPv4 prefix. Host bits may be set.
func IsValidIPv4CIDR(s string) bool {
	p, err := netip.ParsePrefix(s)
	return err == nil && p.Addr().Is4()
}

const maxASN = 4294967295 // 4-byte ASN range

// ValidateASN checks if an AS number is valid (1 to 4294967295).
func ValidateASN(asn int64) error {
	if asn < 1 || asn > maxASN {
		return fmt.Errorf("AS number must be between 1 and %d, got %d", maxASN, asn)
	}
	return nil
}

// ValidateMTU checks an interface MTU against the range SR Linux accepts for
// any interface type.
func ValidateMTU(mtu int) error {
	if mtu < 68 || mtu > 9500 {
		return fmt.Errorf("MTU must be between 68 and 9500, got %d", mtu)
	}
	return nil
}
