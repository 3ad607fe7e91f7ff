package util

import (
	"strings"
	"testing"
)

func TestStripPrefix(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10.0.0.1/31", "10.0.0.1"},
		{"10.1.0.1/32", "10.1.0.1"},
		{"2001:db8::1/64", "2001:db8::1"},
		{"10.0.0.1", "10.0.0.1"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := StripPrefix(tt.in)
			if got != tt.want {
				t.Errorf("StripPrefix(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if strings.Contains(got, "/") {
				t.Errorf("StripPrefix(%q) left a prefix separator", tt.in)
			}
			if StripPrefix(got) != got {
				t.Errorf("StripPrefix is not idempotent for %q", tt.in)
			}
		})
	}
}

func TestIsValidIP(t *testing.T) {
	tests := []struct {
		in     string
		want   bool
		wantV4 bool
	}{
		{"10.0.0.1", true, true},
		{"2001:db8::1", true, false},
		{"not-an-ip", false, false},
		{"10.0.0.1/31", false, false},
		{"999.1.1.1", false, false},
		{"", false, false},
	}

	for _, tt := range tests {
		if got := IsValidIP(tt.in); got != tt.want {
			t.Errorf("IsValidIP(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if got := IsValidIPv4(tt.in); got != tt.wantV4 {
			t.Errorf("IsValidIPv4(%q) = %v, want %v", tt.in, got, tt.wantV4)
		}
	}
}

func TestIsValidCIDR(t *testing.T) {
	tests := []struct {
		in     string
		want   bool
		wantV4 bool
	}{
		{"10.0.0.0/31", true, true},
		{"10.0.0.1/31", true, true}, // host bits set
		{"10.1.0.1/32", true, true},
		{"2001:db8::/64", true, false},
		{"10.0.0.0/33", false, false},
		{"10.0.0.0", false, false},
		{"bogus/24", false, false},
	}

	for _, tt := range tests {
		if got := IsValidCIDR(tt.in); got != tt.want {
			t.Errorf("IsValidCIDR(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if got := IsValidIPv4CIDR(tt.in); got != tt.wantV4 {
			t.Errorf("IsValidIPv4CIDR(%q) = %v, want %v", tt.in, got, tt.wantV4)
		}
	}
}

func TestValidateASN(t *testing.T) {
	tests := []struct {
		asn     int64
		wantErr bool
	}{
		{0, true},
		{1, false},
		{65000, false},
		{4294967295, false},
		{4294967296, true},
		{-1, true},
	}

	for _, tt := range tests {
		err := ValidateASN(tt.asn)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateASN(%d) error = %v, wantErr %v", tt.asn, err, tt.wantErr)
		}
	}
}

func TestValidateMTU(t *testing.T) {
	if err := ValidateMTU(9214); err != nil {
		t.Errorf("ValidateMTU(9214) = %v", err)
	}
	if err := ValidateMTU(10); err == nil {
		t.Error("ValidateMTU(10) should fail")
	}
}
