package model

// Agent is a public key acting on behalf of an organization.
type Agent struct {
	PublicKey string   `json:"public_key" yaml:"public_key"`
	OrgID     string   `json:"org_id" yaml:"org_id"`
	Active    bool     `json:"active" yaml:"active"`
	Metadata  Metadata `json:"metadata" yaml:"metadata"`
	Roles     []string `json:"roles" yaml:"roles"`

	Version `yaml:"-"`
}

// Organization is a named participant that owns agents, locations and
// products.
type Organization struct {
	OrgID        string        `json:"org_id" yaml:"org_id"`
	Name         string        `json:"name" yaml:"name"`
	Address      string        `json:"address" yaml:"address"`
	Metadata     []KeyValue    `json:"metadata" yaml:"metadata"`
	AlternateIDs []AlternateID `json:"alternate_ids" yaml:"alternate_ids"`
	Locations    []string      `json:"locations" yaml:"locations"`

	Version `yaml:"-"`
}

// KeyValue is one organization metadata entry.
type KeyValue struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// AlternateID is an identifier for an organization issued by another system,
// such as a GLN.
type AlternateID struct {
	IDType string `json:"id_type" yaml:"id_type"`
	ID     string `json:"id" yaml:"id"`
}

// Location is a physical place described by a schema-typed attribute tree.
type Location struct {
	LocationID        string          `json:"location_id" yaml:"location_id"`
	LocationAddress   string          `json:"location_address" yaml:"location_address"`
	LocationNamespace string          `json:"location_namespace" yaml:"location_namespace"`
	Owner             string          `json:"owner" yaml:"owner"`
	Attributes        []PropertyValue `json:"attributes" yaml:"attributes"`

	Version `yaml:"-"`
}

// Product is a trade item described by a schema-typed property tree.
type Product struct {
	ProductID        string          `json:"product_id" yaml:"product_id"`
	ProductAddress   string          `json:"product_address" yaml:"product_address"`
	ProductNamespace string          `json:"product_namespace" yaml:"product_namespace"`
	Owner            string          `json:"owner" yaml:"owner"`
	Properties       []PropertyValue `json:"properties" yaml:"properties"`

	Version `yaml:"-"`
}

// Schema describes the properties that locations and products of a given
// type may carry.
type Schema struct {
	Name        string               `json:"name" yaml:"name"`
	Description string               `json:"description" yaml:"description"`
	Owner       string               `json:"owner" yaml:"owner"`
	Properties  []PropertyDefinition `json:"properties" yaml:"properties"`

	Version `yaml:"-"`
}
