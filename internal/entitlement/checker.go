// Package entitlement decides whether a user holds the premium feature that
// smart departure advice requires.
package entitlement

import (
	"context"
	"strings"
)

// Checker reports premium status for a user.
type Checker interface {
	IsPremium(ctx context.Context, userID string) (bool, error)
}

// Static grants premium from a fixed allowlist. An entry of "*" grants
// everyone, which suits local runs.
type Static struct {
	all   bool
	users map[string]struct{}
}

// NewStatic builds a Static checker.
func NewStatic(userIDs []string) *Static {
	s := &Static{users: make(map[string]struct{}, len(userIDs))}
	for _, id := range userIDs {
		id = strings.TrimSpace(id)
		switch id {
		case "":
		case "*":
			s.all = true
		default:
			s.users[id] = struct{}{}
		}
	}
	return s
}

// IsPremium implements Checker.
func (s *Static) IsPremium(_ context.Context, userID string) (bool, error) {
	if s.all {
		return true, nil
	}
	_, ok := s.users[userID]
	return ok, nil
}

var _ Checker = (*Static)(nil)
