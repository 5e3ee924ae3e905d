// Package selfdesc assembles the connector self-description document in the
// shape dataspace participants expect from a connector endpoint.
package selfdesc

import (
	"context"
	"fmt"

	"dsconnector/pkg/resources"
)

type Config struct {
	ID                   string
	Title                string
	Description          string
	Maintainer           string
	Curator              string
	Version              string
	OutboundModelVersion string
	InboundModelVersions []string
	SecurityProfile      string
	DefaultEndpoint      string
	PublicKey            string
}

// CatalogProvider lists the resources the connector exposes.
// *resources.Service satisfies it.
type CatalogProvider interface {
	List(ctx context.Context, kind resources.Kind) ([]resources.Resource, error)
}

type Endpoint struct {
	AccessURL string `json:"accessURL"`
}

type PublicKey struct {
	KeyType  string `json:"keyType"`
	KeyValue string `json:"keyValue"`
}

type Catalog struct {
	Offered   []resources.Resource `json:"offeredResource"`
	Requested []resources.Resource `json:"requestedResource"`
}

type Document struct {
	ID                   string     `json:"@id"`
	Type                 string     `json:"@type"`
	Title                string     `json:"title"`
	Description          string     `json:"description"`
	Maintainer           string     `json:"maintainer"`
	Curator              string     `json:"curator"`
	Version              string     `json:"version"`
	OutboundModelVersion string     `json:"outboundModelVersion"`
	InboundModelVersions []string   `json:"inboundModelVersion"`
	SecurityProfile      string     `json:"securityProfile"`
	DefaultEndpoint      Endpoint   `json:"hasDefaultEndpoint"`
	PublicKey            *PublicKey `json:"publicKey,omitempty"`
	ResourceCatalog      *Catalog   `json:"resourceCatalog,omitempty"`
}

type Builder struct {
	cfg     Config
	catalog CatalogProvider
}

func New(cfg Config, catalog CatalogProvider) *Builder {
	if cfg.ID == "" {
		cfg.ID = "https://w3id.org/idsa/autogen/baseConnector/connector"
	}
	if cfg.Title == "" {
		cfg.Title = "Dataspace Connector"
	}
	if cfg.Description == "" {
		cfg.Description = "IDS Connector with static example resources"
	}
	if cfg.Maintainer == "" {
		cfg.Maintainer = "https://example.com"
	}
	if cfg.Curator == "" {
		cfg.Curator = "https://example.com"
	}
	if cfg.Version == "" {
		cfg.Version = "v3.0.0"
	}
	if cfg.OutboundModelVersion == "" {
		cfg.OutboundModelVersion = "4.0.0"
	}
	if len(cfg.InboundModelVersions) == 0 {
		cfg.InboundModelVersions = []string{"4.0.0"}
	}
	if cfg.SecurityProfile == "" {
		cfg.SecurityProfile = "BASE_SECURITY_PROFILE"
	}
	if cfg.DefaultEndpoint == "" {
		cfg.DefaultEndpoint = "/api/ids/data"
	}
	return &Builder{cfg: cfg, catalog: catalog}
}

// Describe builds the self-description. The public variant strips the
// resource catalog and the public key, matching what unauthenticated
// participants are allowed to see.
func (b *Builder) Describe(ctx context.Context, public bool) (Document, error) {
	doc := Document{
		ID:                   b.cfg.ID,
		Type:                 "ids:BaseConnector",
		Title:                b.cfg.Title,
		Description:          b.cfg.Description,
		Maintainer:           b.cfg.Maintainer,
		Curator:              b.cfg.Curator,
		Version:              b.cfg.Version,
		OutboundModelVersion: b.cfg.OutboundModelVersion,
		InboundModelVersions: b.cfg.InboundModelVersions,
		SecurityProfile:      b.cfg.SecurityProfile,
		DefaultEndpoint:      Endpoint{AccessURL: b.cfg.DefaultEndpoint},
	}
	if public {
		return doc, nil
	}
	if b.cfg.PublicKey != "" {
		doc.PublicKey = &PublicKey{KeyType: "RSA", KeyValue: b.cfg.PublicKey}
	}
	if b.catalog != nil {
		offered, err := b.catalog.List(ctx, resources.KindOffered)
		if err != nil {
			return Document{}, fmt.Errorf("list offered resources: %w", err)
		}
		requested, err := b.catalog.List(ctx, resources.KindRequested)
		if err != nil {
			return Document{}, fmt.Errorf("list requested resources: %w", err)
		}
		doc.ResourceCatalog = &Catalog{Offered: offered, Requested: requested}
	}
	return doc, nil
}
