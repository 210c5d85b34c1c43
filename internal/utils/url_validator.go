package utils

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/gilkh/livret/internal/config"
)

var (
	privateIPRanges = []*net.IPNet{
		// RFC 1918
		mustParseCIDR("10.0.0.0/8"),
		mustParseCIDR("172.16.0.0/12"),
		mustParseCIDR("192.168.0.0/16"),
		// RFC 3927 link-local
		mustParseCIDR("169.254.0.0/16"),
		mustParseCIDR("127.0.0.0/8"),
		mustParseCIDR("::1/128"),
		mustParseCIDR("fe80::/10"),
		mustParseCIDR("fc00::/7"),
	}
)

func mustParseCIDR(cidr string) *net.IPNet {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse CIDR %s: %v", cidr, err))
	}
	return ipNet
}

// IPResolver resolves host names; net.DefaultResolver satisfies it.
type IPResolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// URLValidationConfig holds the policy applied to remote image URLs
type URLValidationConfig struct {
	BlockPrivateIPs bool
	BlockedDomains  []string
	// TrustedHosts skip the private IP check (the API's own origin)
	TrustedHosts []string
	Resolver     IPResolver
}

// GetURLValidationConfig reads BLOCK_PRIVATE_IPS and BLOCKED_DOMAINS. The host
// of PUBLIC_BASE_URL is always trusted.
func GetURLValidationConfig() URLValidationConfig {
	var blocked []string
	for _, d := range config.GetList("BLOCKED_DOMAINS", nil) {
		blocked = append(blocked, strings.ToLower(d))
	}

	cfg := URLValidationConfig{
		BlockPrivateIPs: config.GetBool("BLOCK_PRIVATE_IPS", false),
		BlockedDomains:  blocked,
		Resolver:        net.DefaultResolver,
	}
	if u, err := url.Parse(config.Get("PUBLIC_BASE_URL", "")); err == nil && u.Hostname() != "" {
		cfg.TrustedHosts = append(cfg.TrustedHosts, strings.ToLower(u.Hostname()))
	}
	return cfg
}

// ValidateURL validates a URL according to the configured security policies
func ValidateURL(ctx context.Context, urlStr string) error {
	return ValidateURLWithConfig(ctx, urlStr, GetURLValidationConfig())
}

// ValidateURLWithConfig validates a URL with the provided configuration
func ValidateURLWithConfig(ctx context.Context, urlStr string, cfg URLValidationConfig) error {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %s (only http and https are allowed)", parsedURL.Scheme)
	}

	hostname := parsedURL.Hostname()
	if hostname == "" {
		return fmt.Errorf("URL missing hostname")
	}
	hostnameLower := strings.ToLower(hostname)

	for _, blockedDomain := range cfg.BlockedDomains {
		if hostnameLower == blockedDomain || strings.HasSuffix(hostnameLower, "."+blockedDomain) {
			return fmt.Errorf("domain %s is blocked", hostname)
		}
	}

	if !cfg.BlockPrivateIPs {
		return nil
	}
	for _, trusted := range cfg.TrustedHosts {
		if hostnameLower == trusted {
			return nil
		}
	}

	if ip := net.ParseIP(hostname); ip != nil {
		if isPrivateIP(ip) {
			return fmt.Errorf("private IP address %s is blocked", ip.String())
		}
		return nil
	}

	resolver := cfg.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupIPAddr(ctx, hostname)
	if err != nil {
		// Unresolvable hosts fail on the actual request
		return nil
	}
	for _, addr := range addrs {
		if isPrivateIP(addr.IP) {
			return fmt.Errorf("private IP address %s is blocked for hostname %s", addr.IP.String(), hostname)
		}
	}
	return nil
}

// isPrivateIP checks if an IP address is in a private range
func isPrivateIP(ip net.IP) bool {
	for _, privateRange := range privateIPRanges {
		if privateRange.Contains(ip) {
			return true
		}
	}
	return false
}
