package db

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/edvin/backuprelay/internal/dbhttp"
)

// Executor runs one SQL statement against the remote query service.
type Executor interface {
	Execute(ctx context.Context, sql string, params ...any) ([]dbhttp.Row, error)
}

// ApplySchema reads a SQL file and executes its statements one at a time.
// The query backend accepts a single statement per call, so the file is
// split on statement-terminating semicolons.
func ApplySchema(ctx context.Context, exec Executor, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schema file: %w", err)
	}

	for _, stmt := range SplitStatements(string(raw)) {
		if _, err := exec.Execute(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// SplitStatements breaks a schema file into individual statements, dropping
// comments and blanks. It does not handle semicolons inside string literals;
// the schema file does not contain any.
func SplitStatements(sql string) []string {
	var stmts []string
	for _, chunk := range strings.Split(sql, ";") {
		var lines []string
		for _, line := range strings.Split(chunk, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "--") {
				continue
			}
			lines = append(lines, line)
		}
		stmt := strings.TrimSpace(strings.Join(lines, "\n"))
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}
