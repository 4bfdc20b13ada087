package table

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

var ErrBadExpression = errors.New("bad filter expression")

// Select evaluates a SQL WHERE expression over the rows and returns the
// matching row indexes in ascending order. Column names are the field names;
// quote them with double quotes when they are not plain identifiers.
//
// The rows are loaded into a private in-memory SQLite database for the
// duration of the call.
func (t *Table) Select(ctx context.Context, expr string) ([]int, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("%w: empty", ErrBadExpression)
	}

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite conn: %w", err)
	}
	defer conn.Close()

	if err := t.load(ctx, conn); err != nil {
		return nil, err
	}

	// Prepare fails on anything after the first statement.
	stmt, err := conn.PrepareContext(ctx, "SELECT rowid FROM attrs WHERE ("+expr+"\n) ORDER BY rowid")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrBadExpression, err)
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrBadExpression, err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, int(id)-1)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadExpression, err)
	}
	return out, nil
}

func (t *Table) load(ctx context.Context, conn *sql.Conn) error {
	cols := make([]string, len(t.fields))
	marks := make([]string, len(t.fields)+1)
	marks[0] = "?"
	for i, f := range t.fields {
		cols[i] = quoteIdent(f.Name) + " " + sqlType(f.Type)
		marks[i+1] = "?"
	}
	ddl := "CREATE TABLE attrs (" + strings.Join(cols, ", ") + ")"
	if len(cols) == 0 {
		ddl = "CREATE TABLE attrs (_empty INTEGER)"
	}
	if _, err := conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create attrs: %w", err)
	}
	if len(t.rows) == 0 {
		return nil
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	names := []string{"rowid"}
	for _, f := range t.fields {
		names = append(names, quoteIdent(f.Name))
	}
	if len(t.fields) == 0 {
		names = append(names, "_empty")
		marks = append(marks, "?")
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO attrs ("+strings.Join(names, ", ")+") VALUES ("+strings.Join(marks, ", ")+")")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(marks))
	for i, r := range t.rows {
		args[0] = int64(i + 1)
		for c := range t.fields {
			args[c+1] = sqlValue(r[c])
		}
		if len(t.fields) == 0 {
			args[1] = nil
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sqlType(t FieldType) string {
	switch t {
	case Integer, Boolean:
		return "INTEGER"
	case Double:
		return "REAL"
	}
	return "TEXT"
}

func sqlValue(v any) any {
	switch x := v.(type) {
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case time.Time:
		return FormatValue(x)
	}
	return v
}
