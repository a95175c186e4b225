package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// migrationTable records applied file names on every backend.
const migrationTable = "schema_migrations"

// Migration is one embedded SQL file split into statements.
type Migration struct {
	Name       string
	Statements []string
}

// Load returns the .sql files under dir in lexical order.
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, dir+"/"+name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := validateNoSemicolonInStrings(string(data)); err != nil {
			return nil, fmt.Errorf("validate migration %s: %w", name, err)
		}
		stmts := splitStatements(string(data))
		if len(stmts) == 0 {
			continue
		}
		out = append(out, Migration{Name: name, Statements: stmts})
	}
	return out, nil
}

// backend applies and records migrations for one database.
type backend interface {
	ensureTable(ctx context.Context) error
	isApplied(ctx context.Context, name string) (bool, error)
	// apply runs the statements and records the name. Backends with
	// transactional DDL do both atomically.
	apply(ctx context.Context, m Migration) error
}

// run applies every migration in dir not yet recorded by b and returns the
// names it applied. On error the names applied so far are still returned.
func run(ctx context.Context, b backend, fsys fs.FS, dir string) ([]string, error) {
	ms, err := Load(fsys, dir)
	if err != nil {
		return nil, err
	}
	if err := b.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("ensure %s: %w", migrationTable, err)
	}

	var applied []string
	for _, m := range ms {
		done, err := b.isApplied(ctx, m.Name)
		if err != nil {
			return applied, fmt.Errorf("check migration %s: %w", m.Name, err)
		}
		if done {
			continue
		}
		if err := b.apply(ctx, m); err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
		applied = append(applied, m.Name)
	}
	return applied, nil
}

// splitStatements drops -- comment lines and splits on semicolons.
// Semicolons inside string literals are rejected by validateNoSemicolonInStrings.
func splitStatements(input string) []string {
	var kept []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		kept = append(kept, line)
	}

	var stmts []string
	for _, part := range strings.Split(strings.Join(kept, "\n"), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// validateNoSemicolonInStrings fails on a ';' inside a single-quoted literal.
// Doubled quotes ('') are treated as an escape.
func validateNoSemicolonInStrings(sql string) error {
	quoted := false
	for i := 0; i < len(sql); i++ {
		switch sql[i] {
		case '\'':
			if quoted && i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			quoted = !quoted
		case ';':
			if quoted {
				return fmt.Errorf("semicolon inside string literal at offset %d", i)
			}
		}
	}
	return nil
}
