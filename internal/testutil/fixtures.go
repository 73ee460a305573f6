package testutil

import "github.com/roach88/gridstate/internal/model"

// Acme returns the organization used across the versioning scenarios.
func Acme() model.Organization {
	return model.Organization{
		OrgID:   "org-1",
		Name:    "Acme",
		Address: "1 Main St",
		Metadata: []model.KeyValue{
			{Key: "industry", Value: "widgets"},
			{Key: "region", Value: "us-east"},
		},
		AlternateIDs: []model.AlternateID{
			{IDType: "gln", ID: "0614141000005"},
		},
		Locations: []string{"loc-1"},
	}
}

// Agent returns an active agent of org-1.
func Agent() model.Agent {
	return model.Agent{
		PublicKey: "02a1b2c3",
		OrgID:     "org-1",
		Active:    true,
		Metadata:  model.Metadata(`{"team":"ops"}`),
		Roles:     []string{"admin", "can_create_product"},
	}
}

// WarehouseSchema returns a location schema with a nested STRUCT property.
func WarehouseSchema() model.Schema {
	return model.Schema{
		Name:        "gs1_location",
		Description: "GS1 location",
		Owner:       "org-1",
		Properties: []model.PropertyDefinition{
			{Name: "name", DataType: model.DataTypeString, Required: true, Description: "display name"},
			{Name: "kind", DataType: model.DataTypeEnum, EnumOptions: []string{"warehouse", "store", "plant"}},
			{
				Name:     "address",
				DataType: model.DataTypeStruct,
				StructProperties: []model.PropertyDefinition{
					{Name: "street", DataType: model.DataTypeString},
					{Name: "geo", DataType: model.DataTypeLatLong},
				},
			},
		},
	}
}

// Warehouse returns a location whose attributes nest two levels deep.
func Warehouse() model.Location {
	return model.Location{
		LocationID:        "loc-1",
		LocationAddress:   "0614141000012",
		LocationNamespace: "GS1",
		Owner:             "org-1",
		Attributes: []model.PropertyValue{
			{Name: "name", DataType: model.DataTypeString, StringValue: "North warehouse"},
			{Name: "kind", DataType: model.DataTypeEnum, EnumValue: 0},
			{
				Name:     "address",
				DataType: model.DataTypeStruct,
				StructValues: []model.PropertyValue{
					{Name: "street", DataType: model.DataTypeString, StringValue: "2 Dock Rd"},
					{Name: "geo", DataType: model.DataTypeLatLong, LatLongValue: &model.LatLong{Latitude: 40712776, Longitude: -74005974}},
				},
			},
		},
	}
}

// Widget returns a product with flat and nested properties of every scalar
// data type.
func Widget() model.Product {
	return model.Product{
		ProductID:        "00614141000036",
		ProductAddress:   "prod-addr-1",
		ProductNamespace: "GS1",
		Owner:            "org-1",
		Properties: []model.PropertyValue{
			{Name: "weight", DataType: model.DataTypeNumber, NumberValue: 1250},
			{Name: "fragile", DataType: model.DataTypeBoolean, BooleanValue: true},
			{Name: "label", DataType: model.DataTypeBytes, BytesValue: []byte{0xca, 0xfe}},
			{
				Name:     "dimensions",
				DataType: model.DataTypeStruct,
				StructValues: []model.PropertyValue{
					{Name: "height", DataType: model.DataTypeNumber, NumberValue: 10},
					{Name: "width", DataType: model.DataTypeNumber, NumberValue: 20},
				},
			},
		},
	}
}
