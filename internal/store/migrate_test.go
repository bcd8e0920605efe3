package store

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMigrations_SortsAndFilters(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_add_index.sql": {Data: []byte("CREATE INDEX x ON t (a);")},
		"m/0001_init.sql":      {Data: []byte("CREATE TABLE t (a INT);")},
		"m/README.md":          {Data: []byte("ignored")},
		"m/notes.sql":          {Data: []byte("ignored too")},
	}

	migs, err := NewMigrator(fsys, "m").ParseMigrations()
	require.NoError(t, err)
	require.Len(t, migs, 2)
	assert.Equal(t, 1, migs[0].Version)
	assert.Equal(t, "init", migs[0].Name)
	assert.Equal(t, 2, migs[1].Version)
	assert.Equal(t, "add_index", migs[1].Name)
}

func TestParseMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0001_a.sql": {Data: []byte("SELECT 1;")},
		"m/0001_b.sql": {Data: []byte("SELECT 2;")},
	}
	_, err := NewMigrator(fsys, "m").ParseMigrations()
	require.Error(t, err)
}

func TestSchemaMigrator_Embedded(t *testing.T) {
	migs, err := SchemaMigrator().ParseMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migs)
	assert.Equal(t, 1, migs[0].Version)
	assert.Contains(t, migs[0].SQL, "provider_connection")
	assert.Contains(t, migs[0].SQL, "daily_metric")
	assert.Contains(t, migs[0].SQL, "activity")
}

func TestPendingVersions(t *testing.T) {
	migs := []Migration{{Version: 1}, {Version: 2}, {Version: 3}}

	assert.Equal(t, []int{2, 3}, pendingVersions(migs, []int32{1}))
	assert.Empty(t, pendingVersions(migs, []int32{1, 2, 3}))
	assert.Equal(t, []int{1, 2, 3}, pendingVersions(migs, nil))
}
