// Package adapters holds the payment provider registry. Each provider ships
// an AdapterFactory; the registry resolves webhook deliveries to the right
// adapter by provider name.
package adapters

import (
	"strings"

	"github.com/upcareer/jobdeck/internal/payment/domain"
)

type Registry struct {
	byProvider map[string]domain.AdapterFactory
}

func NewRegistry(factories ...domain.AdapterFactory) *Registry {
	r := &Registry{byProvider: make(map[string]domain.AdapterFactory, len(factories))}
	for _, f := range factories {
		if f == nil {
			continue
		}
		name := normalizeProvider(f.Provider())
		if name == "" {
			continue
		}
		r.byProvider[name] = f
	}
	return r
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.byProvider[normalizeProvider(provider)]
	return ok
}

func (r *Registry) NewAdapter(provider string, cfg domain.AdapterConfig) (domain.PaymentAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	f, ok := r.byProvider[normalizeProvider(provider)]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return f.NewAdapter(cfg)
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
