package iris2sqlite

import (
	"context"
	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var ErrInvalidStore = errors.New("invalid store")

// Validate checks every fact foreign key against its dimension table and
// returns one issue string per dangling reference. The resolvers guarantee
// these hold for rows written by this tool, so a non-empty result means the
// store was modified by something else.
func Validate(dbPath string) ([]string, error) {
	db, err := sqlite.OpenConn(dbPath, sqlite.SQLITE_OPEN_READONLY)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	issues, err := validate(db, slog.LevelError)
	if err != nil {
		return issues, err
	}
	if len(issues) > 0 {
		return issues, ErrInvalidStore
	}
	return nil, nil
}

func validate(db *sqlite.Conn, logLevel slog.Level) ([]string, error) {
	v := &validator{db: db, logLevel: logLevel}

	slog.Info("Validating")

	for _, table := range diaTables {
		for _, fk := range diaSchema[table].ForeignIDs {
			if err := v.validateForeignID(table, fk); err != nil {
				return nil, err
			}
		}
	}
	return v.issues, nil
}

type validator struct {
	db       *sqlite.Conn
	logLevel slog.Level
	issues   []string
}

func (v *validator) append(msg string, args ...any) {
	issue := fmt.Sprintf(msg, args...)
	slog.Log(context.Background(), v.logLevel, issue)
	v.issues = append(v.issues, issue)
}

func (v *validator) validateForeignID(table string, schema foreignIDSchema) error {
	query := fmt.Sprintf("SELECT rowid, * FROM %s WHERE %s IS NOT NULL AND %s NOT IN (SELECT %s FROM %s)",
		table, schema.Column, schema.Column, schema.RefColumn, schema.RefTable)

	return sqlitex.Exec(v.db, query, func(stmt *sqlite.Stmt) error {
		value := stmt.GetText(schema.Column)
		v.append("%s in %s is not a valid %s.%s [%s]",
			value, table+"."+schema.Column, schema.RefTable, schema.RefColumn, prettyPrintRow(stmt))
		return nil
	})
}

func prettyPrintRow(row *sqlite.Stmt) string {
	var out []string
	for i := 0; i < row.ColumnCount(); i++ {
		column := row.ColumnName(i)
		value := row.GetText(column)
		if column != "rowid" && value != "" {
			out = append(out, fmt.Sprintf("%s: %s", column, value))
		}
	}
	return strings.Join(out, ", ")
}
