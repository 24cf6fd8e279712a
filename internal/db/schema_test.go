package db

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	sql := `
-- projects table
CREATE TABLE projects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL
);

CREATE INDEX idx_projects_name ON projects(name);
`
	stmts := SplitStatements(sql)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE projects")
	assert.NotContains(t, stmts[0], "-- projects table")
	assert.Contains(t, stmts[1], "CREATE INDEX")
}

func TestSplitStatements_EmptyAndCommentsOnly(t *testing.T) {
	assert.Empty(t, SplitStatements("-- nothing here\n\n  \n"))
	assert.Empty(t, SplitStatements(""))
}

func TestShippedSchema(t *testing.T) {
	raw, err := os.ReadFile("../../schema.sql")
	require.NoError(t, err)

	stmts := SplitStatements(string(raw))
	require.NotEmpty(t, stmts)

	var backups string
	for _, s := range stmts {
		if strings.Contains(s, "CREATE TABLE IF NOT EXISTS backups") {
			backups = s
		}
	}
	require.NotEmpty(t, backups, "backups table missing from schema")
	// Backups share their project's lifecycle.
	assert.Contains(t, backups, "REFERENCES projects(id) ON DELETE CASCADE")
}
