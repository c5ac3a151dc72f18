package subwatch

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
)

// A ProviderRegistry is a collection of VideoProvider implementations keyed by
// provider id, which can be used to look up a backend or to match a
// subscription URL against every backend.
type ProviderRegistry struct {
	providerMap map[string]VideoProvider
}

// Add registers a VideoProvider with the ProviderRegistry. The provider's id
// must be non-empty and unique within the registry.
func (r *ProviderRegistry) Add(p VideoProvider) error {
	if r.providerMap == nil {
		r.providerMap = make(map[string]VideoProvider)
	}
	if p == nil {
		return ErrInvalidProvider
	}
	id := p.Info().ID
	if id == "" {
		return ErrInvalidProvider
	}
	if _, ok := r.providerMap[id]; ok {
		return ErrDuplicateProvider
	}
	r.providerMap[id] = p
	return nil
}

// MustAdd wraps Add but panics if there is an error.
func (r *ProviderRegistry) MustAdd(p VideoProvider) {
	if err := r.Add(p); err != nil {
		panic(err)
	}
}

// Get returns the provider registered under the given id, or ErrUnknownProvider.
func (r *ProviderRegistry) Get(id string) (VideoProvider, error) {
	if p, ok := r.providerMap[id]; ok {
		return p, nil
	}
	return nil, ErrUnknownProvider
}

// List returns the ids of registered providers in a stable order.
func (r *ProviderRegistry) List() []string {
	ids := make([]string, 0, len(r.providerMap))
	for id := range r.providerMap {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Match returns the first provider whose ValidateSubscriptionURL accepts the
// URL, or ErrNoMatch wrapping the per-provider failures.
func (r *ProviderRegistry) Match(rawURL string) (VideoProvider, error) {
	var result error
	for _, id := range r.List() {
		p := r.providerMap[id]
		if err := p.ValidateSubscriptionURL(rawURL); err == nil {
			return p, nil
		} else {
			result = multierror.Append(result, multierror.Prefix(err, fmt.Sprintf("[%v]", id)))
		}
	}
	if result == nil {
		return nil, ErrNoMatch
	}
	return nil, fmt.Errorf("%w: %v", ErrNoMatch, result)
}

var DefaultProviderRegistry ProviderRegistry
