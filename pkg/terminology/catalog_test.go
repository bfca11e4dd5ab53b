package terminology

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogLookup(t *testing.T) {
	cat := DefaultCatalog()

	code, ok := cat.CodeFor("  Анемия ")
	require.True(t, ok)
	assert.Equal(t, "D64.9", code)

	code, ok = cat.CodeFor("Артериальная   гипертензия")
	require.True(t, ok)
	assert.Equal(t, "I10", code)

	_, ok = cat.CodeFor("редкое состояние")
	assert.False(t, ok)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
diseases:
  - name: Ёлочная аллергия
    icd10: T78.4
    aliases: [аллергия на ель]
`), 0o600))

	cat, err := Load(path)
	require.NoError(t, err)

	code, ok := cat.CodeFor("елочная аллергия")
	require.True(t, ok)
	assert.Equal(t, "T78.4", code)

	code, ok = cat.CodeFor("аллергия на ель")
	require.True(t, ok)
	assert.Equal(t, "T78.4", code)
}

func TestLoadErrors(t *testing.T) {
	cat, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.NotNil(t, cat)

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("diseases: []\n"), 0o600))
	_, err = Load(empty)
	assert.Error(t, err)

	cat, err = Load("")
	require.NoError(t, err)
	_, ok := cat.CodeFor("пневмония")
	assert.True(t, ok)

	var nilCat *Catalog
	_, ok = nilCat.CodeFor("анемия")
	assert.False(t, ok)
}
