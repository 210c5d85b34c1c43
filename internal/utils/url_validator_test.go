package utils

import (
	"context"
	"net"
	"strings"
	"testing"
)

type staticResolver map[string][]string

func (r staticResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	var out []net.IPAddr
	for _, s := range r[host] {
		out = append(out, net.IPAddr{IP: net.ParseIP(s)})
	}
	if len(out) == 0 {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return out, nil
}

func TestValidateURLWithConfig(t *testing.T) {
	resolver := staticResolver{
		"cdn.example.com":   {"93.184.216.34"},
		"intranet.local":    {"10.0.0.5"},
		"livret.school.lan": {"192.168.1.10"},
	}

	tests := []struct {
		name          string
		url           string
		config        URLValidationConfig
		errorContains string
	}{
		{"valid https URL", "https://cdn.example.com/image.png", URLValidationConfig{}, ""},
		{"valid http URL", "http://cdn.example.com/image.png", URLValidationConfig{}, ""},
		{"invalid URL", "not-a-url", URLValidationConfig{}, "unsupported URL scheme"},
		{"unsupported scheme", "ftp://example.com/file.txt", URLValidationConfig{}, "unsupported URL scheme"},
		{"missing hostname", "http:///path", URLValidationConfig{}, "URL missing hostname"},
		{"blocked exact domain", "https://evil.com/image.png", URLValidationConfig{BlockedDomains: []string{"evil.com"}}, "domain evil.com is blocked"},
		{"blocked subdomain", "https://api.evil.com/image.png", URLValidationConfig{BlockedDomains: []string{"evil.com"}}, "domain api.evil.com is blocked"},
		{"case insensitive domain blocking", "https://API.EVIL.COM/image.png", URLValidationConfig{BlockedDomains: []string{"evil.com"}}, "domain API.EVIL.COM is blocked"},
		{"allowed domain similar to blocked", "https://notevil.com/image.png", URLValidationConfig{BlockedDomains: []string{"evil.com"}}, ""},
		{"public host with private IP blocking", "https://cdn.example.com/a.png", URLValidationConfig{BlockPrivateIPs: true, Resolver: resolver}, ""},
		{"private host blocked", "https://intranet.local/a.png", URLValidationConfig{BlockPrivateIPs: true, Resolver: resolver}, "private IP address 10.0.0.5"},
		{"literal private IP blocked", "http://127.0.0.1:8080/a.png", URLValidationConfig{BlockPrivateIPs: true, Resolver: resolver}, "private IP address 127.0.0.1"},
		{"trusted own host", "https://livret.school.lan/uploads/a.png", URLValidationConfig{BlockPrivateIPs: true, Resolver: resolver, TrustedHosts: []string{"livret.school.lan"}}, ""},
		{"unresolvable host passes", "https://nowhere.invalid/a.png", URLValidationConfig{BlockPrivateIPs: true, Resolver: resolver}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURLWithConfig(context.Background(), tt.url, tt.config)
			if tt.errorContains == "" {
				if err != nil {
					t.Errorf("expected no error but got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got none", tt.errorContains)
			}
			if !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("expected error containing %q, got %q", tt.errorContains, err.Error())
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip       string
		expected bool
	}{
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"172.31.255.254", true},
		{"172.32.0.0", false},
		{"192.168.0.1", true},
		{"127.1.2.3", true},
		{"169.254.0.1", true},
		{"169.255.0.0", false},
		{"::1", true},
		{"fe80::1", true},
		{"fc00::1", true},
		{"2001:4860:4860::8888", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			if got := isPrivateIP(net.ParseIP(tt.ip)); got != tt.expected {
				t.Errorf("isPrivateIP(%s) = %v, want %v", tt.ip, got, tt.expected)
			}
		})
	}
}

func TestGetURLValidationConfig(t *testing.T) {
	t.Setenv("BLOCKED_DOMAINS", "Evil.com, bad.org")
	t.Setenv("BLOCK_PRIVATE_IPS", "true")
	t.Setenv("PUBLIC_BASE_URL", "https://Livret.School.lan:8443")

	cfg := GetURLValidationConfig()
	if !cfg.BlockPrivateIPs {
		t.Error("BlockPrivateIPs should be set")
	}
	if len(cfg.BlockedDomains) != 2 || cfg.BlockedDomains[0] != "evil.com" || cfg.BlockedDomains[1] != "bad.org" {
		t.Errorf("BlockedDomains = %v", cfg.BlockedDomains)
	}
	if len(cfg.TrustedHosts) != 1 || cfg.TrustedHosts[0] != "livret.school.lan" {
		t.Errorf("TrustedHosts = %v", cfg.TrustedHosts)
	}
}
