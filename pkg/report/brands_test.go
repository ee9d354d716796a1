package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadBrandsJSON(t *testing.T) {
	path := writeFile(t, "brands.json", `[
  {"name": "Nike", "url": "https://www.nike.com", "instagram_handle": "nike"},
  {"name": "Adidas", "handle": "@Adidas", "type": "Brand"},
  {"username": "ann_runs"},
  "https://www.instagram.com/lululemon/",
  {"name": "No handle"},
  {"name": "Bad", "instagram_handle": "not a handle!"}
]`)

	got, err := LoadBrands(path)
	require.NoError(t, err)

	assert.Equal(t, []Target{
		{Name: "Nike", URL: "https://www.nike.com", Handle: "nike"},
		{Name: "Adidas", Handle: "adidas", Type: "brand"},
		{Handle: "ann_runs"},
		{Handle: "lululemon"},
	}, got)
}

func TestLoadBrandsYAMLWrapped(t *testing.T) {
	path := writeFile(t, "brands.yaml", `
brands:
  - name: Puma
    instagram: https://instagram.com/puma
users:
  - jo_lifts
`)

	got, err := LoadBrands(path)
	require.NoError(t, err)
	assert.Equal(t, []Target{{Name: "Puma", Handle: "puma"}, {Handle: "jo_lifts"}}, got)
}

func TestLoadBrandsErrors(t *testing.T) {
	_, err := LoadBrands(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, os.IsNotExist(err))

	_, err = LoadBrands(writeFile(t, "bad.json", `{"brands": 5`))
	assert.Error(t, err)
}

func TestWriteSampleBrands(t *testing.T) {
	for _, name := range []string{"brands.json", "brands.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			created, err := WriteSampleBrands(path)
			require.NoError(t, err)
			assert.True(t, created)

			got, err := LoadBrands(path)
			require.NoError(t, err)
			assert.Equal(t, SampleBrands, got)

			created, err = WriteSampleBrands(path)
			require.NoError(t, err)
			assert.False(t, created)
		})
	}
}

func TestFindTarget(t *testing.T) {
	got, ok := FindTarget(SampleBrands, "@Adidas")
	require.True(t, ok)
	assert.Equal(t, "Adidas", got.DisplayName())

	_, ok = FindTarget(SampleBrands, "puma")
	assert.False(t, ok)

	assert.Equal(t, "jo", Target{Handle: "jo"}.DisplayName())
}
