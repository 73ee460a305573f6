package tree

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	Name string
	Kids []item
}

var itemAccessors = Accessors[item]{
	Name: func(i item) string { return i.Name },
	WithName: func(i item, name string) item {
		i.Name = name
		return i
	},
	Children: func(i item) []item { return i.Kids },
	WithChildren: func(i item, kids []item) item {
		i.Kids = kids
		return i
	},
}

func TestFlattenBuildRoundTrip(t *testing.T) {
	roots := []item{
		{Name: "dimensions", Kids: []item{
			{Name: "width"},
			{Name: "height", Kids: []item{{Name: "unit"}}},
		}},
		{Name: "color"},
	}

	nodes, err := Flatten(roots, itemAccessors)
	require.NoError(t, err)
	require.Len(t, nodes, 5)

	byName := map[string]Node[item]{}
	for _, n := range nodes {
		byName[n.Name] = n
		assert.Nil(t, n.Value.Kids, "flattened values carry no children")
	}
	assert.Equal(t, "", byName["dimensions"].Parent)
	assert.Equal(t, 1, byName["color"].Position)
	assert.Equal(t, "dimensions", byName["height"].Parent)
	assert.Equal(t, 1, byName["height"].Position)
	assert.Equal(t, "height", byName["unit"].Parent)

	// Shuffle to prove Build does not depend on row order.
	shuffled := []Node[item]{nodes[4], nodes[2], nodes[0], nodes[3], nodes[1]}
	rebuilt, err := Build(shuffled, itemAccessors)
	require.NoError(t, err)
	assert.Equal(t, roots, rebuilt)
}

func TestFlattenRejectsDuplicateNames(t *testing.T) {
	roots := []item{
		{Name: "a", Kids: []item{{Name: "x"}}},
		{Name: "b", Kids: []item{{Name: "x"}}},
	}
	_, err := Flatten(roots, itemAccessors)
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestFlattenRejectsEmptyName(t *testing.T) {
	_, err := Flatten([]item{{Name: "a", Kids: []item{{}}}}, itemAccessors)
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestBuildRestoresNamesFromNodes(t *testing.T) {
	// Stored rows keep the name on the node only.
	nodes := []Node[item]{
		{Name: "dimensions"},
		{Name: "width", Parent: "dimensions"},
	}
	roots, err := Build(nodes, itemAccessors)
	require.NoError(t, err)
	assert.Equal(t, []item{{Name: "dimensions", Kids: []item{{Name: "width"}}}}, roots)
}

func TestBuildRejectsOrphans(t *testing.T) {
	nodes := []Node[item]{
		{Name: "a"},
		{Name: "b", Parent: "missing"},
	}
	_, err := Build(nodes, itemAccessors)
	assert.ErrorIs(t, err, ErrOrphan)
}

func TestBuildRejectsCycles(t *testing.T) {
	nodes := []Node[item]{
		{Name: "a", Parent: "b"},
		{Name: "b", Parent: "a"},
	}
	_, err := Build(nodes, itemAccessors)
	assert.ErrorIs(t, err, ErrOrphan)
}

func TestBuildEmpty(t *testing.T) {
	roots, err := Build[item](nil, itemAccessors)
	require.NoError(t, err)
	assert.Nil(t, roots)
}

func TestDeepTree(t *testing.T) {
	// A chain well past any reasonable recursion depth.
	const depth = 10000
	root := item{Name: "n0"}
	nodes := []Node[item]{{Name: "n0"}}
	for i := 1; i < depth; i++ {
		nodes = append(nodes, Node[item]{Name: fmt.Sprintf("n%d", i), Parent: fmt.Sprintf("n%d", i-1)})
	}
	roots, err := Build(nodes, itemAccessors)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, root.Name, roots[0].Name)

	n := 0
	for cur := roots[0]; ; cur = cur.Kids[0] {
		n++
		if len(cur.Kids) == 0 {
			break
		}
	}
	assert.Equal(t, depth, n)

	flat, err := Flatten(roots, itemAccessors)
	require.NoError(t, err)
	assert.Len(t, flat, depth)
}
