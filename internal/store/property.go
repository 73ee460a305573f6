package store

import (
	"errors"
	"fmt"

	"github.com/roach88/gridstate/internal/model"
	"github.com/roach88/gridstate/internal/tree"
)

// PropertyRow is one flattened node of a location attribute tree or a
// product property tree.
type PropertyRow struct {
	// Owner is the location or product id.
	Owner string

	tree.Node[model.PropertyValue]

	Latitude  int64
	Longitude int64

	model.Version
}

var propertyAccessors = tree.Accessors[model.PropertyValue]{
	Name: func(p model.PropertyValue) string { return p.Name },
	WithName: func(p model.PropertyValue, name string) model.PropertyValue {
		p.Name = name
		return p
	},
	Children: func(p model.PropertyValue) []model.PropertyValue { return p.StructValues },
	WithChildren: func(p model.PropertyValue, kids []model.PropertyValue) model.PropertyValue {
		p.StructValues = kids
		return p
	},
}

// PropertyValueCodec maps PropertyRow onto a property value table such as
// LocationAttributeTable or ProductPropertyTable.
func PropertyValueCodec(t *Table) *Codec[PropertyRow] {
	return &Codec[PropertyRow]{
		Table: t,
		Key:   func(r *PropertyRow) []any { return []any{r.Owner, r.Name} },
		Values: func(r *PropertyRow) []any {
			v := &r.Value
			return []any{r.Parent, r.Position, string(v.DataType),
				Blob(v.BytesValue), v.BooleanValue, v.NumberValue, v.StringValue,
				v.EnumValue, r.Latitude, r.Longitude}
		},
		Fields: func(r *PropertyRow) []any {
			v := &r.Value
			return []any{&r.Owner, &r.Name, &r.Parent, &r.Position, &v.DataType,
				&v.BytesValue, &v.BooleanValue, &v.NumberValue, &v.StringValue,
				&v.EnumValue, &r.Latitude, &r.Longitude}
		},
		Version: func(r *PropertyRow) *model.Version { return &r.Version },
	}
}

// FlattenProperties validates a property tree and flattens it into rows
// owned by owner. Invalid trees yield ErrInvalidInput.
func FlattenProperties(entity, owner string, props []model.PropertyValue) ([]PropertyRow, error) {
	stack := append([]model.PropertyValue(nil), props...)
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if err := p.Validate(); err != nil {
			return nil, NewInvalidInputError(entity, owner, "%v", err)
		}
		stack = append(stack, p.StructValues...)
	}

	nodes, err := tree.Flatten(props, propertyAccessors)
	if err != nil {
		return nil, NewInvalidInputError(entity, owner, "%v", err)
	}
	rows := make([]PropertyRow, len(nodes))
	for i, n := range nodes {
		rows[i] = PropertyRow{Owner: owner, Node: n}
		if ll := n.Value.LatLongValue; ll != nil {
			rows[i].Latitude = ll.Latitude
			rows[i].Longitude = ll.Longitude
		}
		rows[i].Value.LatLongValue = nil
	}
	return rows, nil
}

// BuildProperties reassembles a property tree from stored rows. A row whose
// parent is missing means the stored tree is broken and yields
// ErrInvariantViolation.
func BuildProperties(entity, owner string, rows []PropertyRow) ([]model.PropertyValue, error) {
	nodes := make([]tree.Node[model.PropertyValue], len(rows))
	for i, r := range rows {
		n := r.Node
		if len(n.Value.BytesValue) == 0 {
			n.Value.BytesValue = nil
		}
		if n.Value.DataType == model.DataTypeLatLong {
			n.Value.LatLongValue = &model.LatLong{Latitude: r.Latitude, Longitude: r.Longitude}
		}
		nodes[i] = n
	}
	props, err := tree.Build(nodes, propertyAccessors)
	if err != nil {
		if errors.Is(err, tree.ErrOrphan) || errors.Is(err, tree.ErrDuplicateName) {
			return nil, NewInvariantError("build properties", entity, owner, "%v", err)
		}
		return nil, fmt.Errorf("build properties: %w", err)
	}
	return props, nil
}
