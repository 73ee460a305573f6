package model

import "fmt"

// DataType tags the value carried by a property.
type DataType string

const (
	DataTypeBytes   DataType = "BYTES"
	DataTypeBoolean DataType = "BOOLEAN"
	DataTypeNumber  DataType = "NUMBER"
	DataTypeString  DataType = "STRING"
	DataTypeEnum    DataType = "ENUM"
	DataTypeStruct  DataType = "STRUCT"
	DataTypeLatLong DataType = "LAT_LONG"
)

// ValidDataTypes lists the accepted data types.
var ValidDataTypes = map[DataType]bool{
	DataTypeBytes:   true,
	DataTypeBoolean: true,
	DataTypeNumber:  true,
	DataTypeString:  true,
	DataTypeEnum:    true,
	DataTypeStruct:  true,
	DataTypeLatLong: true,
}

// LatLong is a coordinate in millionths of a degree.
type LatLong struct {
	Latitude  int64 `json:"latitude" yaml:"latitude"`
	Longitude int64 `json:"longitude" yaml:"longitude"`
}

// PropertyValue is one node of a location attribute tree or a product
// property tree. Only the field matching DataType is meaningful; STRUCT
// nodes carry their children in StructValues.
type PropertyValue struct {
	Name         string          `json:"name" yaml:"name"`
	DataType     DataType        `json:"data_type" yaml:"data_type"`
	BytesValue   []byte          `json:"bytes_value,omitempty" yaml:"bytes_value,omitempty"`
	BooleanValue bool            `json:"boolean_value,omitempty" yaml:"boolean_value,omitempty"`
	NumberValue  int64           `json:"number_value,omitempty" yaml:"number_value,omitempty"`
	StringValue  string          `json:"string_value,omitempty" yaml:"string_value,omitempty"`
	EnumValue    int32           `json:"enum_value,omitempty" yaml:"enum_value,omitempty"`
	LatLongValue *LatLong        `json:"lat_long_value,omitempty" yaml:"lat_long_value,omitempty"`
	StructValues []PropertyValue `json:"struct_values,omitempty" yaml:"struct_values,omitempty"`
}

// Validate checks the node itself. Children are validated by the caller
// walking the tree.
func (p PropertyValue) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("property name is empty")
	}
	if !ValidDataTypes[p.DataType] {
		return fmt.Errorf("property %q: unknown data type %q", p.Name, p.DataType)
	}
	if p.DataType != DataTypeStruct && len(p.StructValues) > 0 {
		return fmt.Errorf("property %q: only STRUCT values may have children", p.Name)
	}
	if p.DataType == DataTypeLatLong && p.LatLongValue == nil {
		return fmt.Errorf("property %q: LAT_LONG value is missing", p.Name)
	}
	return nil
}

// PropertyDefinition is one node of a schema's property tree.
type PropertyDefinition struct {
	Name             string               `json:"name" yaml:"name"`
	DataType         DataType             `json:"data_type" yaml:"data_type"`
	Required         bool                 `json:"required" yaml:"required"`
	Description      string               `json:"description" yaml:"description"`
	NumberExponent   int32                `json:"number_exponent" yaml:"number_exponent"`
	EnumOptions      []string             `json:"enum_options" yaml:"enum_options"`
	StructProperties []PropertyDefinition `json:"struct_properties" yaml:"struct_properties"`
}

// Validate checks the definition itself.
func (d PropertyDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("property definition name is empty")
	}
	if !ValidDataTypes[d.DataType] {
		return fmt.Errorf("property definition %q: unknown data type %q", d.Name, d.DataType)
	}
	if d.DataType != DataTypeStruct && len(d.StructProperties) > 0 {
		return fmt.Errorf("property definition %q: only STRUCT definitions may have children", d.Name)
	}
	if d.DataType == DataTypeEnum && len(d.EnumOptions) == 0 {
		return fmt.Errorf("property definition %q: ENUM requires options", d.Name)
	}
	return nil
}
