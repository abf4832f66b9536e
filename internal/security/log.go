package security

import (
	"crypto/sha256"
	"encoding/hex"

	"portraits/internal/domain"
	"portraits/internal/infra"
	"portraits/internal/infra/geoip"
)

// HashIdentity derives the hashed form of a source identity used in counter
// keys, blocklist rows and audit events. Raw identities (IPs) are never
// persisted.
func HashIdentity(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:16])
}

// EventLog emits structured security/audit events. When a country resolver is
// configured and the event context carries an "ip" field, the offender's
// country code is attached.
type EventLog struct {
	logger   infra.Logger
	resolver geoip.CountryResolver
}

// NewEventLog builds an EventLog. resolver may be nil.
func NewEventLog(logger infra.Logger, resolver geoip.CountryResolver) *EventLog {
	return &EventLog{logger: logger, resolver: resolver}
}

// Log records one security event.
func (l *EventLog) Log(eventType, identityHash string, context map[string]any) {
	evt := l.logger.Warn().
		Str("event_type", eventType).
		Str("identity_hash", identityHash)
	for k, v := range context {
		evt = evt.Interface(k, v)
	}
	if l.resolver != nil {
		if ip, ok := context["ip"].(string); ok && ip != "" {
			if country, err := l.resolver.CountryCode(ip); err == nil && country != "" {
				evt = evt.Str("country", country)
			}
		}
	}
	evt.Msg("security event")
}

var _ domain.SecurityLog = (*EventLog)(nil)
