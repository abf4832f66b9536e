package stylize

import (
	"fmt"
	"net/url"
	"strings"

	"portraits/internal/domain"
)

// HostAllowlist validates that an outbound fetch target belongs to a known
// provider host before it is dereferenced. A provider response can point
// anywhere; without this check a compromised response could steer the
// service into fetching internal or third-party addresses.
type HostAllowlist []string

// NewHostAllowlist normalizes the configured hostnames.
func NewHostAllowlist(hosts []string) HostAllowlist {
	out := make(HostAllowlist, 0, len(hosts))
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			out = append(out, h)
		}
	}
	return out
}

// Check returns domain.ErrDisallowedHost unless rawURL is an https/http URL
// whose hostname is on the list.
func (a HostAllowlist) Check(rawURL string) error {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("%w: unparseable url", domain.ErrDisallowedHost)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", domain.ErrDisallowedHost, parsed.Scheme)
	}
	host := strings.ToLower(parsed.Hostname())
	for _, allowed := range a {
		if host == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", domain.ErrDisallowedHost, host)
}
