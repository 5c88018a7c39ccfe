package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_Validate(t *testing.T) {
	schema, err := NewSchema()
	require.NoError(t, err)

	valid := []string{
		`{"zenodo_id": "10_5281_zenodo_1"}`,
		`{"zenodo_id": 12345, "publication_date": null}`,
		`{"zenodo_id": "1", "category": "Dataset", "institutions": [{"id": 1, "name": "VLIZ"}]}`,
		`{"zenodo_id": "1", "category": ["Dataset", "Tool"], "obis_nodes": [{"id": "n1", "extra": true}]}`,
	}
	for _, doc := range valid {
		raw, err := decodeObject([]byte(doc))
		require.NoError(t, err)
		assert.NoError(t, schema.Validate(raw), doc)
	}

	invalid := []string{
		`{"name": "no zenodo id"}`,
		`{"zenodo_id": ""}`,
		`{"zenodo_id": "1", "category": 3}`,
		`{"zenodo_id": "1", "institutions": {"id": 1}}`,
		`{"zenodo_id": "1", "obis_nodes": [{"name": "missing id"}]}`,
	}
	for _, doc := range invalid {
		raw, err := decodeObject([]byte(doc))
		require.NoError(t, err)
		assert.Error(t, schema.Validate(raw), doc)
	}
}

func TestFindDOI(t *testing.T) {
	cases := []struct {
		name string
		raw  map[string]any
		want string
	}{
		{"at id", map[string]any{"@id": "https://doi.org/10.5281/zenodo.1"}, "https://doi.org/10.5281/zenodo.1"},
		{"bare identifier", map[string]any{"identifier": "10.5281/zenodo.2"}, "https://doi.org/10.5281/zenodo.2"},
		{"doi scheme", map[string]any{"identifier": "doi:10.5281/zenodo.3"}, "https://doi.org/10.5281/zenodo.3"},
		{"property value", map[string]any{"identifier": map[string]any{"propertyID": "doi", "value": "https://doi.org/10.1/x"}}, "https://doi.org/10.1/x"},
		{"list", map[string]any{"sameAs": []any{"https://zenodo.org/records/4", "https://doi.org/10.5281/zenodo.4"}}, "https://doi.org/10.5281/zenodo.4"},
		{"none", map[string]any{"url": "https://zenodo.org/records/5"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, findDOI(tc.raw))
		})
	}
}
