// Package dnslog extracts candidate domains from DNS resolver log streams.
//
// A log source (file or child process) is turned into a line stream, and each
// line is matched against a set of patterns covering common DNS log formats.
// The first pattern that captures a valid domain wins.
package dnslog

import (
	"regexp"
	"strings"
)

// domainPattern is the shared capturing group for a DNS name label sequence.
const domainPattern = `([a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?)*)`

// maxDomainLength is the DNS limit on a fully qualified name.
const maxDomainLength = 253

// Parser extracts domains from DNS log lines. Patterns are tried in order;
// construction compiles them once, so a Parser is cheap to share.
type Parser struct {
	patterns []*regexp.Regexp
}

// NewParser compiles the log line patterns, ordered from most to least
// specific:
//
//  1. dnsdist query format: "Query from IP:port: domain IN type"
//  2. BIND-style client format: "client IP#port (domain)"
//  3. simple "query: domain"
//  4. domain followed by a record type: "domain A ..."
//  5. systemd journal QUERY= / DOMAIN= fields
func NewParser() *Parser {
	return &Parser{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`Query from [^\s]+: ` + domainPattern + ` IN`),
			regexp.MustCompile(`client [^\s]+#\d+ \(` + domainPattern + `\)`),
			regexp.MustCompile(`query:\s+` + domainPattern),
			regexp.MustCompile(`\s` + domainPattern + `\s+(A|AAAA|NS|MX|TXT|CNAME)\s`),
			regexp.MustCompile(`(?:QUERY|DOMAIN)=` + domainPattern),
		},
	}
}

// Extract returns the lowercased domain found in a log line, or ("", false)
// when the line carries no valid domain.
func (p *Parser) Extract(line string) (string, bool) {
	if strings.TrimSpace(line) == "" {
		return "", false
	}

	for _, pattern := range p.patterns {
		matches := pattern.FindStringSubmatch(line)
		if matches == nil {
			continue
		}

		domain := matches[1]
		if strings.Contains(domain, ".") && ValidDomain(domain) {
			return strings.ToLower(domain), true
		}
	}

	return "", false
}

// ValidDomain reports whether a candidate string is a plausible public DNS
// name worth classifying. Localhost and internal-only suffixes are rejected
// so the pipeline never fetches private hosts.
func ValidDomain(domain string) bool {
	if !strings.Contains(domain, ".") {
		return false
	}

	if strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") ||
		strings.HasPrefix(domain, "-") || strings.HasSuffix(domain, "-") {
		return false
	}

	if len(domain) > maxDomainLength {
		return false
	}

	if strings.Contains(domain, " ") {
		return false
	}

	lower := strings.ToLower(domain)
	if lower == "localhost" ||
		strings.HasSuffix(lower, ".local") ||
		strings.HasSuffix(lower, ".localhost") ||
		strings.HasSuffix(lower, ".internal") {
		return false
	}

	return true
}
