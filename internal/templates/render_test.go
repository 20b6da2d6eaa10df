package templates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedFragments(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	for _, name := range []string{"empty-state", "select-option", "legend", "layer-list", "region-detail", "status", "viewer"} {
		assert.NotNil(t, r.templates.Lookup(name), name)
	}
}

func TestScoreFunc(t *testing.T) {
	r := Must()
	v := 55.5

	out, err := r.Render("region-detail", map[string]any{
		"RegionID": "80331", "Name": "Altstadt", "Score": &v, "Color": "#F97316", "DataSourceID": "price",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "55.5")
	assert.Contains(t, out, "background: #F97316")

	out, err = r.Render("region-detail", map[string]any{
		"RegionID": "80335", "Name": "", "Score": (*float64)(nil), "Color": "#374151", "DataSourceID": "price",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "no data")
}

func TestRegionDetailEmpty(t *testing.T) {
	out := Must().MustRender("region-detail", map[string]any{"RegionID": ""})
	assert.Contains(t, out, "No region selected")
}

func TestSelectOption(t *testing.T) {
	out := Must().MustRender("select-option", map[string]any{"Value": "price", "Label": "Price", "Selected": true})
	assert.Equal(t, `<option value="price" selected>Price</option>`, out)
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := Must().Render("nope", nil)
	assert.Error(t, err)
}

func TestReloadOverridesFragment(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.html"),
		[]byte(`{{define "empty-state"}}<p>{{.Title}}</p>{{end}}`), 0o644))

	r := Must()
	require.NoError(t, r.Reload(dir))

	out := r.MustRender("empty-state", map[string]string{"Title": "x"})
	assert.Equal(t, "<p>x</p>", out)
	// untouched fragments survive
	assert.NotNil(t, r.templates.Lookup("legend"))

	assert.Error(t, r.Reload(filepath.Join(dir, "missing")))
}
