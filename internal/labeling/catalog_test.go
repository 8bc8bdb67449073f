package labeling_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/motionsense/internal/labeling"
)

func TestCatalogAdd(t *testing.T) {
	c := labeling.DefaultCatalog()

	name, err := c.Add("  Running ")
	require.NoError(t, err)
	require.Equal(t, "running", name)
	require.Equal(t, []string{"standing", "sitting", "walking", "running"}, c.Names())

	tests := []struct {
		name  string
		input string
		dup   bool
	}{
		{name: "blank", input: "   "},
		{name: "empty", input: ""},
		{name: "existing", input: "walking", dup: true},
		{name: "existing different case", input: " WALKING", dup: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Add(tt.input)
			if tt.dup {
				var derr *labeling.DuplicateActivityError
				require.ErrorAs(t, err, &derr)
				require.Equal(t, "walking", derr.Name)
			} else {
				require.ErrorIs(t, err, labeling.ErrEmptyName)
			}
		})
	}
	require.Len(t, c.Names(), 4, "rejected names do not grow the catalog")
}

func TestCatalogSubActivities(t *testing.T) {
	c := labeling.DefaultCatalog()

	acts := c.Activities()
	for _, a := range acts {
		require.Equal(t, []string{labeling.NoSubActivity}, a.SubActivities)
	}

	sub, err := c.AddSubActivity("Walking", " Uphill")
	require.NoError(t, err)
	require.Equal(t, "uphill", sub)
	require.True(t, c.HasSubActivity("walking", "uphill"))
	require.True(t, c.HasSubActivity("walking", "none"))

	_, err = c.AddSubActivity("walking", "uphill")
	var derr *labeling.DuplicateActivityError
	require.ErrorAs(t, err, &derr)
	require.Equal(t, "walking", derr.Activity)

	_, err = c.AddSubActivity("walking", "none")
	require.ErrorAs(t, err, &derr)

	_, err = c.AddSubActivity("swimming", "crawl")
	var uerr *labeling.UnknownActivityError
	require.ErrorAs(t, err, &uerr)

	_, err = c.AddSubActivity("walking", " ")
	require.ErrorIs(t, err, labeling.ErrEmptyName)
}

func TestActivitiesIsACopy(t *testing.T) {
	c := labeling.DefaultCatalog()
	acts := c.Activities()
	acts[0].SubActivities[0] = "mutated"
	require.Equal(t, labeling.NoSubActivity, c.Activities()[0].SubActivities[0])
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`activities:
  - name: Walking
    sub_activities: [uphill, downhill, None]
  - name: sitting
`), 0o644))

	c, err := labeling.LoadCatalog(path)
	require.NoError(t, err)
	require.Equal(t, []labeling.Activity{
		{Name: "walking", SubActivities: []string{"None", "uphill", "downhill"}},
		{Name: "sitting", SubActivities: []string{"None"}},
	}, c.Activities())
}

func TestLoadCatalogRejects(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"empty.yaml":     "activities: []\n",
		"duplicate.yaml": "activities:\n  - name: a\n  - name: A\n",
		"invalid.yaml":   "activities: [\n",
	}
	for file, body := range cases {
		t.Run(file, func(t *testing.T) {
			path := filepath.Join(dir, file)
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := labeling.LoadCatalog(path)
			require.Error(t, err)
		})
	}

	_, err := labeling.LoadCatalog(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
