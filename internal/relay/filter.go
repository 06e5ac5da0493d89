package relay

import (
	"fmt"
	"regexp"

	apperrors "smsrelay/internal/errors"
)

// SenderFilter accepts senders matching a pattern. The zero pattern accepts
// everything.
type SenderFilter struct {
	pattern *regexp.Regexp
}

// NewSenderFilter compiles expr; an empty expr disables filtering
func NewSenderFilter(expr string) (*SenderFilter, error) {
	if expr == "" {
		return &SenderFilter{}, nil
	}
	pattern, err := regexp.Compile(expr)
	if err != nil {
		return nil, apperrors.NewConfigError("sender_filter", fmt.Sprintf("invalid sender filter: %v", err))
	}
	return &SenderFilter{pattern: pattern}, nil
}

// Allows reports whether sender passes the filter
func (f *SenderFilter) Allows(sender string) bool {
	if f == nil || f.pattern == nil {
		return true
	}
	return f.pattern.MatchString(sender)
}
