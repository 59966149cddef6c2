package providers

import (
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Registry resolves adapters by provider.
type Registry struct {
	adapters map[models.Provider]Adapter
}

// NewRegistry indexes the given adapters. A later adapter replaces an earlier one for the same provider.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Provider]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// NewDefaultRegistry builds the HubSpot, Airtable and Notion adapters over one HTTP client and evaluator.
func NewDefaultRegistry(settings map[models.Provider]Settings, client *httpclient.Client, logger ectologger.Logger) *Registry {
	eval := expressions.NewEvaluator()
	return NewRegistry(
		NewHubSpot(settings[models.ProviderHubSpot], client, eval, logger),
		NewAirtable(settings[models.ProviderAirtable], client, eval, logger),
		NewNotion(settings[models.ProviderNotion], client, eval, logger),
	)
}

// Get returns the adapter for provider.
func (r *Registry) Get(provider models.Provider) (Adapter, bool) {
	a, ok := r.adapters[provider]
	return a, ok
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []models.Provider {
	names := make([]models.Provider, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
