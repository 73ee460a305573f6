package gateway

import "github.com/roach88/gridstate/internal/model"

// List is a page of response slices.
type List[T any] struct {
	Data   []T          `json:"data"`
	Paging model.Paging `json:"paging"`
}

// AgentSlice is an agent as returned to clients.
type AgentSlice struct {
	PublicKey string         `json:"public_key"`
	OrgID     string         `json:"org_id"`
	Active    bool           `json:"active"`
	Roles     []string       `json:"roles"`
	Metadata  model.Metadata `json:"metadata"`
	ServiceID *string        `json:"service_id,omitempty"`
}

// NewAgentSlice renders a.
func NewAgentSlice(a model.Agent) AgentSlice {
	return AgentSlice{
		PublicKey: a.PublicKey,
		OrgID:     a.OrgID,
		Active:    a.Active,
		Roles:     orEmpty(a.Roles),
		Metadata:  a.Metadata,
		ServiceID: a.ServiceID,
	}
}

// OrganizationSlice is an organization as returned to clients.
type OrganizationSlice struct {
	OrgID        string              `json:"org_id"`
	Name         string              `json:"name"`
	Address      string              `json:"address"`
	Metadata     []model.KeyValue    `json:"metadata"`
	AlternateIDs []model.AlternateID `json:"alternate_ids"`
	Locations    []string            `json:"locations"`
	ServiceID    *string             `json:"service_id,omitempty"`
}

// NewOrganizationSlice renders o.
func NewOrganizationSlice(o model.Organization) OrganizationSlice {
	return OrganizationSlice{
		OrgID:        o.OrgID,
		Name:         o.Name,
		Address:      o.Address,
		Metadata:     orEmpty(o.Metadata),
		AlternateIDs: orEmpty(o.AlternateIDs),
		Locations:    orEmpty(o.Locations),
		ServiceID:    o.ServiceID,
	}
}

// LatLongSlice is a coordinate in millionths of a degree.
type LatLongSlice struct {
	Latitude  int64 `json:"latitude"`
	Longitude int64 `json:"longitude"`
}

// PropertyValueSlice is one node of a property tree. Only the value field
// matching DataType is present.
type PropertyValueSlice struct {
	Name         string               `json:"name"`
	DataType     model.DataType       `json:"data_type"`
	BytesValue   []byte               `json:"bytes_value,omitempty"`
	BooleanValue *bool                `json:"boolean_value,omitempty"`
	NumberValue  *int64               `json:"number_value,omitempty"`
	StringValue  *string              `json:"string_value,omitempty"`
	EnumValue    *int32               `json:"enum_value,omitempty"`
	LatLongValue *LatLongSlice        `json:"lat_long_value,omitempty"`
	StructValues []PropertyValueSlice `json:"struct_values,omitempty"`
}

// NewPropertyValueSlices renders a property tree.
func NewPropertyValueSlices(props []model.PropertyValue) []PropertyValueSlice {
	out := make([]PropertyValueSlice, 0, len(props))
	for _, p := range props {
		s := PropertyValueSlice{Name: p.Name, DataType: p.DataType}
		switch p.DataType {
		case model.DataTypeBytes:
			s.BytesValue = orEmpty(p.BytesValue)
		case model.DataTypeBoolean:
			s.BooleanValue = &p.BooleanValue
		case model.DataTypeNumber:
			s.NumberValue = &p.NumberValue
		case model.DataTypeString:
			s.StringValue = &p.StringValue
		case model.DataTypeEnum:
			s.EnumValue = &p.EnumValue
		case model.DataTypeLatLong:
			if p.LatLongValue != nil {
				s.LatLongValue = &LatLongSlice{Latitude: p.LatLongValue.Latitude, Longitude: p.LatLongValue.Longitude}
			}
		case model.DataTypeStruct:
			s.StructValues = NewPropertyValueSlices(p.StructValues)
		}
		out = append(out, s)
	}
	return out
}

// LocationSlice is a location as returned to clients.
type LocationSlice struct {
	LocationID        string               `json:"location_id"`
	LocationNamespace string               `json:"location_namespace"`
	Owner             string               `json:"owner"`
	Properties        []PropertyValueSlice `json:"properties"`
	ServiceID         *string              `json:"service_id,omitempty"`
}

// NewLocationSlice renders l.
func NewLocationSlice(l model.Location) LocationSlice {
	return LocationSlice{
		LocationID:        l.LocationID,
		LocationNamespace: l.LocationNamespace,
		Owner:             l.Owner,
		Properties:        NewPropertyValueSlices(l.Attributes),
		ServiceID:         l.ServiceID,
	}
}

// ProductSlice is a product as returned to clients.
type ProductSlice struct {
	ProductID        string               `json:"product_id"`
	ProductAddress   string               `json:"product_address"`
	ProductNamespace string               `json:"product_namespace"`
	Owner            string               `json:"owner"`
	Properties       []PropertyValueSlice `json:"properties"`
	ServiceID        *string              `json:"service_id,omitempty"`
}

// NewProductSlice renders p.
func NewProductSlice(p model.Product) ProductSlice {
	return ProductSlice{
		ProductID:        p.ProductID,
		ProductAddress:   p.ProductAddress,
		ProductNamespace: p.ProductNamespace,
		Owner:            p.Owner,
		Properties:       NewPropertyValueSlices(p.Properties),
		ServiceID:        p.ServiceID,
	}
}

// PropertyDefinitionSlice is one node of a schema's property tree.
type PropertyDefinitionSlice struct {
	Name             string                    `json:"name"`
	SchemaName       string                    `json:"schema_name"`
	DataType         model.DataType            `json:"data_type"`
	Required         bool                      `json:"required"`
	Description      string                    `json:"description"`
	NumberExponent   int32                     `json:"number_exponent"`
	EnumOptions      []string                  `json:"enum_options"`
	StructProperties []PropertyDefinitionSlice `json:"struct_properties"`
	ServiceID        *string                   `json:"service_id,omitempty"`
}

// SchemaSlice is a schema as returned to clients.
type SchemaSlice struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	Owner       string                    `json:"owner"`
	Properties  []PropertyDefinitionSlice `json:"properties"`
	ServiceID   *string                   `json:"service_id,omitempty"`
}

// NewSchemaSlice renders s.
func NewSchemaSlice(s model.Schema) SchemaSlice {
	return SchemaSlice{
		Name:        s.Name,
		Description: s.Description,
		Owner:       s.Owner,
		Properties:  definitionSlices(s.Name, s.ServiceID, s.Properties),
		ServiceID:   s.ServiceID,
	}
}

func definitionSlices(schema string, scope *string, defs []model.PropertyDefinition) []PropertyDefinitionSlice {
	out := make([]PropertyDefinitionSlice, 0, len(defs))
	for _, d := range defs {
		out = append(out, PropertyDefinitionSlice{
			Name:             d.Name,
			SchemaName:       schema,
			DataType:         d.DataType,
			Required:         d.Required,
			Description:      d.Description,
			NumberExponent:   d.NumberExponent,
			EnumOptions:      orEmpty(d.EnumOptions),
			StructProperties: definitionSlices(schema, scope, d.StructProperties),
			ServiceID:        scope,
		})
	}
	return out
}

// orEmpty turns a nil slice into an empty one so it renders as [].
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
