package postgres

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jyntrix/memctx-go/pkg/storage"
)

// fakeRow feeds canned column values through the rowScanner interface.
type fakeRow struct {
	values []interface{}
}

func (r *fakeRow) Scan(dest ...interface{}) error {
	for i, d := range dest {
		switch v := d.(type) {
		case *string:
			*v = r.values[i].(string)
		case *float64:
			*v = r.values[i].(float64)
		case *int:
			*v = r.values[i].(int)
		case *time.Time:
			*v = r.values[i].(time.Time)
		case *sql.NullString:
			*v = r.values[i].(sql.NullString)
		case *sql.NullTime:
			*v = r.values[i].(sql.NullTime)
		}
	}
	return nil
}

func TestScanMemoryDecodesJSONColumns(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	accessed := now.Add(-time.Hour)
	row := &fakeRow{values: []interface{}{
		"m1", "u1", "semantic", "prefers dark mode",
		sql.NullString{String: `["dark","mode"]`, Valid: true},
		0.9, 0.5, 3,
		sql.NullTime{Time: accessed, Valid: true},
		now, now,
		sql.NullString{String: `{"source":"chat"}`, Valid: true},
	}}

	m, err := scanMemory(row)
	require.NoError(t, err)

	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, storage.TypeSemantic, m.Type)
	assert.Equal(t, []string{"dark", "mode"}, m.Keywords)
	assert.Equal(t, "chat", m.Metadata["source"])
	require.NotNil(t, m.LastAccessedAt)
	assert.Equal(t, accessed, *m.LastAccessedAt)
}

func TestScanMemoryNullColumns(t *testing.T) {
	now := time.Now()
	row := &fakeRow{values: []interface{}{
		"m2", "u1", "episodic", "met at the conference",
		sql.NullString{}, 0.7, 0.5, 0,
		sql.NullTime{}, now, now, sql.NullString{},
	}}

	m, err := scanMemory(row)
	require.NoError(t, err)
	assert.Empty(t, m.Keywords)
	assert.Empty(t, m.Metadata)
	assert.Nil(t, m.LastAccessedAt)
}

func TestScanMemoryBadKeywordsJSON(t *testing.T) {
	now := time.Now()
	row := &fakeRow{values: []interface{}{
		"m3", "u1", "semantic", "x",
		sql.NullString{String: `{not json`, Valid: true},
		0.5, 0.5, 0, sql.NullTime{}, now, now, sql.NullString{},
	}}

	_, err := scanMemory(row)
	assert.ErrorContains(t, err, "decode keywords")
}

func TestEncodeJSON(t *testing.T) {
	keywords, metadata, err := encodeJSON(&storage.Memory{
		Keywords: []string{"a", "b"},
		Metadata: map[string]interface{}{"k": "v"},
	})
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, keywords)
	assert.Equal(t, `{"k":"v"}`, metadata)
}

func TestEncodeJSONEmptyFieldsStayNil(t *testing.T) {
	keywords, metadata, err := encodeJSON(&storage.Memory{})
	require.NoError(t, err)
	assert.Nil(t, keywords)
	assert.Nil(t, metadata)
}

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[0.5,-1,0.25]", vectorLiteral([]float64{0.5, -1, 0.25}))
	assert.Equal(t, "[]", vectorLiteral(nil))
}

func TestNormalizeEntity(t *testing.T) {
	assert.Equal(t, "atlas project", normalizeEntity("  Atlas Project "))
}

func TestSortGraphResults(t *testing.T) {
	results := []*storage.GraphResult{
		{Memory: &storage.Memory{ID: "b"}, Depth: 2},
		{Memory: &storage.Memory{ID: "c"}, Depth: 1},
		{Memory: &storage.Memory{ID: "a"}, Depth: 2},
	}
	sortGraphResults(results)

	assert.Equal(t, "c", results[0].Memory.ID)
	assert.Equal(t, "a", results[1].Memory.ID)
	assert.Equal(t, "b", results[2].Memory.ID)
}
