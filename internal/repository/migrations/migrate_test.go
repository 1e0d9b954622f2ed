package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames_SortedAndEmbedded(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "0001_init.sql", names[0])
	assert.IsIncreasing(t, names)

	body, err := files.ReadFile(names[0])
	require.NoError(t, err)
	for _, table := range []string{"product", "time_slot", "capacity_pool", "inventory_unit", "reservation_hold"} {
		assert.True(t, strings.Contains(string(body), "CREATE TABLE IF NOT EXISTS "+table+" "), table)
	}
}

func TestHoldTokenMigration(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	require.Contains(t, names, "0002_hold_token.sql")

	body, err := files.ReadFile("0002_hold_token.sql")
	require.NoError(t, err)
	sql := string(body)
	assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS hold_token ")
	assert.Contains(t, sql, "token   TEXT PRIMARY KEY")
	assert.Contains(t, sql, "DROP CONSTRAINT IF EXISTS capacity_pool_check")
}
