package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestVersionVisibleAt(t *testing.T) {
	v := Version{StartCommit: 10, EndCommit: 12}

	assert.False(t, v.VisibleAt(9))
	assert.True(t, v.VisibleAt(10))
	assert.True(t, v.VisibleAt(11))
	assert.False(t, v.VisibleAt(12), "end bound is exclusive")
	assert.False(t, v.IsCurrent())

	cur := Version{StartCommit: 12, EndCommit: MaxCommit}
	assert.True(t, cur.IsCurrent())
	assert.True(t, cur.VisibleAt(1<<40))
}

func TestCommitValid(t *testing.T) {
	assert.False(t, NoCommit.Valid())
	assert.False(t, MaxCommit.Valid())
	assert.True(t, Commit(1).Valid())
}

func TestParseCommit(t *testing.T) {
	c, err := ParseCommit("42")
	require.NoError(t, err)
	assert.Equal(t, Commit(42), c)

	c, err = ParseCommit("current")
	require.NoError(t, err)
	assert.Equal(t, MaxCommit, c)

	_, err = ParseCommit("forty-two")
	assert.Error(t, err)
}

func TestSameScope(t *testing.T) {
	assert.True(t, SameScope(nil, nil))
	assert.False(t, SameScope(nil, ServiceID("a")))
	assert.True(t, SameScope(ServiceID("a"), ServiceID("a")))
	assert.False(t, SameScope(ServiceID("a"), ServiceID("b")))
	assert.Nil(t, ServiceID(""))
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{
		"agent":         KindAgent,
		"Agents":        KindAgent,
		"organizations": KindOrganization,
		"schema":        KindSchema,
		"products":      KindProduct,
	} {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseKind("widget")
	assert.Error(t, err)
}

func TestNormalizeKey(t *testing.T) {
	// "é" as e + combining acute accent normalizes to the precomposed rune.
	assert.Equal(t, "caf\u00e9", NormalizeKey("cafe\u0301"))
	assert.Nil(t, NormalizeScope(nil))
	assert.Equal(t, "caf\u00e9", *NormalizeScope(ServiceID("cafe\u0301")))
}

func TestMetadataJSON(t *testing.T) {
	out, err := json.Marshal(Metadata(`{"role":"admin"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"admin"}`, string(out))

	out, err = json.Marshal(Metadata{0xff, 0x00})
	require.NoError(t, err)
	assert.Equal(t, `"ff00"`, string(out))

	out, err = json.Marshal(Metadata(nil))
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(out))

	var m Metadata
	require.NoError(t, json.Unmarshal([]byte(`"plain text"`), &m))
	assert.Equal(t, Metadata("plain text"), m)

	require.NoError(t, json.Unmarshal([]byte(`{"a":1}`), &m))
	assert.Equal(t, Metadata(`{"a":1}`), m)
}

func TestMetadataYAML(t *testing.T) {
	var doc struct {
		Scalar Metadata `yaml:"scalar"`
		Object Metadata `yaml:"object"`
	}
	err := yaml.Unmarshal([]byte("scalar: hello\nobject:\n  a: 1\n"), &doc)
	require.NoError(t, err)

	assert.Equal(t, Metadata("hello"), doc.Scalar)
	assert.JSONEq(t, `{"a":1}`, string(doc.Object))
}

func TestPropertyValueValidate(t *testing.T) {
	assert.NoError(t, PropertyValue{Name: "weight", DataType: DataTypeNumber}.Validate())
	assert.Error(t, PropertyValue{DataType: DataTypeNumber}.Validate())
	assert.Error(t, PropertyValue{Name: "x", DataType: "FLOAT"}.Validate())
	assert.Error(t, PropertyValue{Name: "pos", DataType: DataTypeLatLong}.Validate())
	assert.Error(t, PropertyValue{
		Name:         "flat",
		DataType:     DataTypeString,
		StructValues: []PropertyValue{{Name: "child", DataType: DataTypeString}},
	}.Validate())
}

func TestPropertyDefinitionValidate(t *testing.T) {
	assert.NoError(t, PropertyDefinition{Name: "color", DataType: DataTypeEnum, EnumOptions: []string{"red"}}.Validate())
	assert.Error(t, PropertyDefinition{Name: "color", DataType: DataTypeEnum}.Validate())
}

func TestPageNormalize(t *testing.T) {
	assert.Equal(t, Page{}, Page{}.Normalize())
	assert.Equal(t, Page{Offset: 0, Limit: DefaultLimit}, Page{Offset: -3, Limit: -1}.Normalize())
	assert.Equal(t, MaxLimit, Page{Limit: MaxLimit + 1}.Normalize().Limit)
}
