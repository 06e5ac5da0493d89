package relay

import (
	"strings"

	"smsrelay/internal/models"
)

// Resolver picks the receiver number recorded with each SMS
type Resolver struct {
	numbers  map[string]string
	fallback string
}

// NewResolver builds a resolver from the receivers config section
func NewResolver(cfg models.ReceiversConfig) *Resolver {
	numbers := make(map[string]string, len(cfg.Numbers))
	for deviceID, number := range cfg.Numbers {
		if n := strings.TrimSpace(number); n != "" {
			numbers[strings.TrimSpace(deviceID)] = n
		}
	}
	return &Resolver{
		numbers:  numbers,
		fallback: strings.TrimSpace(cfg.FallbackNumber),
	}
}

// Resolve returns the receiver number for event: the address reported by the
// source, then the number configured for its device, then the fallback.
// ok is false when none is known.
func (r *Resolver) Resolve(event models.IncomingEvent) (number string, ok bool) {
	if n := strings.TrimSpace(event.ReceiverAddress); n != "" {
		return n, true
	}
	if n, found := r.numbers[strings.TrimSpace(event.ReceiverDeviceID)]; found && event.ReceiverDeviceID != "" {
		return n, true
	}
	if r.fallback != "" {
		return r.fallback, true
	}
	return "", false
}
