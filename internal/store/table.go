package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/gridstate/internal/model"
)

// Version columns present on every versioned table.
const (
	colStart   = "start_commit_num"
	colEnd     = "end_commit_num"
	colService = "service_id"
)

// Table describes one versioned table. Key columns identify a logical record
// within a scope; every other column is payload.
type Table struct {
	// Name is the SQL table name.
	Name string

	// Entity names the record kind in errors and logs.
	Entity string

	// Key lists the natural key columns. For child tables the parent key
	// comes first, so a key prefix selects every child of one parent.
	Key []string

	// Columns lists the payload columns.
	Columns []string

	// Order is the deterministic list order. Defaults to Key.
	Order []string
}

func (t *Table) order() []string {
	if len(t.Order) > 0 {
		return t.Order
	}
	return t.Key
}

// selectColumns is the column list every scan reads, in Codec.Fields order
// followed by the version columns.
func (t *Table) selectColumns() string {
	cols := make([]string, 0, len(t.Key)+len(t.Columns)+3)
	cols = append(cols, t.Key...)
	cols = append(cols, t.Columns...)
	cols = append(cols, colStart, colEnd, colService)
	return strings.Join(cols, ", ")
}

// Tables lists every versioned table. Rollback, dump and clear walk it.
var Tables = []*Table{
	AgentTable,
	AgentRoleTable,
	OrganizationTable,
	OrganizationMetadataTable,
	OrganizationAlternateIDTable,
	OrganizationLocationTable,
	LocationTable,
	LocationAttributeTable,
	ProductTable,
	ProductPropertyTable,
	SchemaTable,
	SchemaPropertyTable,
}

var propertyValueColumns = []string{
	"parent_property_name", "position", "data_type",
	"bytes_value", "boolean_value", "number_value", "string_value",
	"enum_value", "latitude_value", "longitude_value",
}

var (
	AgentTable = &Table{
		Name:    "agent",
		Entity:  "agent",
		Key:     []string{"public_key"},
		Columns: []string{"org_id", "active", "metadata"},
	}
	AgentRoleTable = &Table{
		Name:    "agent_role",
		Entity:  "agent role",
		Key:     []string{"public_key", "role_name"},
		Columns: []string{"position"},
		Order:   []string{"public_key", "position", "role_name"},
	}

	OrganizationTable = &Table{
		Name:    "organization",
		Entity:  "organization",
		Key:     []string{"org_id"},
		Columns: []string{"name", "address"},
	}
	OrganizationMetadataTable = &Table{
		Name:    "organization_metadata",
		Entity:  "organization metadata",
		Key:     []string{"org_id", "meta_key"},
		Columns: []string{"meta_value", "position"},
		Order:   []string{"org_id", "position", "meta_key"},
	}
	OrganizationAlternateIDTable = &Table{
		Name:    "organization_alternate_id",
		Entity:  "organization alternate id",
		Key:     []string{"org_id", "id_type", "alternate_id"},
		Columns: []string{"position"},
		Order:   []string{"org_id", "position", "id_type", "alternate_id"},
	}
	OrganizationLocationTable = &Table{
		Name:    "organization_location",
		Entity:  "organization location",
		Key:     []string{"org_id", "location_id"},
		Columns: []string{"position"},
		Order:   []string{"org_id", "position", "location_id"},
	}

	LocationTable = &Table{
		Name:    "location",
		Entity:  "location",
		Key:     []string{"location_id"},
		Columns: []string{"location_address", "location_namespace", "owner"},
	}
	LocationAttributeTable = &Table{
		Name:    "location_attribute",
		Entity:  "location attribute",
		Key:     []string{"location_id", "property_name"},
		Columns: propertyValueColumns,
		Order:   []string{"location_id", "parent_property_name", "position", "property_name"},
	}

	ProductTable = &Table{
		Name:    "product",
		Entity:  "product",
		Key:     []string{"product_id"},
		Columns: []string{"product_address", "product_namespace", "owner"},
	}
	ProductPropertyTable = &Table{
		Name:    "product_property_value",
		Entity:  "product property",
		Key:     []string{"product_id", "property_name"},
		Columns: propertyValueColumns,
		Order:   []string{"product_id", "parent_property_name", "position", "property_name"},
	}

	SchemaTable = &Table{
		Name:    "grid_schema",
		Entity:  "schema",
		Key:     []string{"name"},
		Columns: []string{"description", "owner"},
	}
	SchemaPropertyTable = &Table{
		Name:    "grid_property_definition",
		Entity:  "schema property",
		Key:     []string{"schema_name", "property_name"},
		Columns: []string{"parent_property_name", "position", "data_type", "required", "description", "number_exponent", "enum_options"},
		Order:   []string{"schema_name", "parent_property_name", "position", "property_name"},
	}
)

// Codec maps a record type onto a Table.
//
// Key and Values must return values in Table.Key and Table.Columns order;
// Fields must return scan destinations for Key followed by Columns. The
// version columns are handled by the store through Version.
type Codec[T any] struct {
	Table   *Table
	Key     func(v *T) []any
	Values  func(v *T) []any
	Fields  func(v *T) []any
	Version func(v *T) *model.Version
}

// keyString renders a key for error messages.
func keyString(vals []any) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = toString(v)
	}
	return strings.Join(parts, "/")
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

// scanInto reads one row into a fresh T.
func (c *Codec[T]) scanInto(rows interface{ Scan(...any) error }) (T, error) {
	var v T
	var service sql.NullString
	ver := c.Version(&v)
	dest := append(c.Fields(&v), &ver.StartCommit, &ver.EndCommit, &service)
	if err := rows.Scan(dest...); err != nil {
		return v, err
	}
	if service.Valid {
		s := service.String
		ver.ServiceID = &s
	}
	return v, nil
}

// Blob returns b, or an empty non-nil slice for nil, so that empty payloads
// bind as zero-length blobs rather than NULL.
func Blob(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
