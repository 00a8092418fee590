package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidToken rejects device tokens no configured provider accepts.
var ErrInvalidToken = errors.New("invalid push token")

// Dispatcher delivers one push notification to one device token.
type Dispatcher interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) error
}

// Provider is a Dispatcher that can recognise its own token format.
type Provider interface {
	Dispatcher
	Accepts(token string) bool
	Name() string
}

// Router forwards each send to the first provider that accepts the token.
type Router struct {
	providers []Provider
}

// NewRouter builds a Router over the enabled providers; nil entries are skipped.
func NewRouter(providers ...Provider) *Router {
	r := &Router{}
	for _, p := range providers {
		if p != nil {
			r.providers = append(r.providers, p)
		}
	}
	return r
}

// Send implements Dispatcher.
func (r *Router) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	for _, p := range r.providers {
		if p.Accepts(token) {
			if err := p.Send(ctx, token, title, body, data); err != nil {
				return fmt.Errorf("%s: %w", p.Name(), err)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: no provider for token", ErrInvalidToken)
}

// Len reports the number of enabled providers.
func (r *Router) Len() int {
	return len(r.providers)
}

var _ Dispatcher = (*Router)(nil)
