package models

import (
	"fmt"
	"strings"
	"time"
)

// Provider identifies a third-party platform the gateway can connect to
type Provider string

const (
	ProviderHubSpot  Provider = "hubspot"
	ProviderAirtable Provider = "airtable"
	ProviderNotion   Provider = "notion"
)

// Providers lists every supported provider in a stable order
var Providers = []Provider{ProviderHubSpot, ProviderAirtable, ProviderNotion}

// ParseProvider validates a provider name taken from a route or message.
func ParseProvider(name string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Providers {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q", name)
}

func (p Provider) String() string {
	return string(p)
}

// IntegrationItem is the normalized view of one object from a provider
type IntegrationItem struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Type             string     `json:"type"`
	ParentID         *string    `json:"parent_id"`
	ParentPathOrName *string    `json:"parent_path_or_name"`
	CreationTime     *time.Time `json:"creation_time"`
	LastModifiedTime *time.Time `json:"last_modified_time"`
}
