package iris2sqlite

import (
	"archive/zip"
	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
)

type ExportOpts struct{}

// Export dumps every table of the store to a zip of CSV files, one per
// table, in a stable order. This is the audit surface: completeness checks
// and golden comparisons work off the export, not the raw database file.
func Export(inputPath string, outputPath string, opts *ExportOpts) error {
	if inputPath == "" {
		panic("Missing inputPath")
	}
	if outputPath == "" {
		panic("Missing outputPath")
	}

	slog.Info(fmt.Sprintf("Exporting %s to %s", inputPath, outputPath))

	db, err := sqlite.OpenConn(inputPath, sqlite.SQLITE_OPEN_READONLY)
	if err != nil {
		return err
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	outputF, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	outputZip := zip.NewWriter(outputF)
	defer func() {
		_ = outputZip.Close()
		_ = outputF.Close()
	}()

	for _, table := range diaTables {
		if err := exportTableIn(db, outputZip, table); err != nil {
			return err
		}
	}

	if err := outputZip.Close(); err != nil {
		return err
	}
	if err := outputF.Close(); err != nil {
		return err
	}

	err = db.Close()
	db = nil
	if err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("Wrote %s", outputPath))
	return nil
}

func exportTableIn(db *sqlite.Conn, outputZip *zip.Writer, table string) error {
	outputName := table + ".csv"
	outputF, err := outputZip.Create(outputName)
	if err != nil {
		return err
	}
	outputCSV := csv.NewWriter(outputF)
	defer func() {
		outputCSV.Flush()
	}()

	var cols []string
	err = sqlitex.Exec(db, "SELECT name FROM pragma_table_info(?)", func(stmt *sqlite.Stmt) error {
		cols = append(cols, stmt.GetText("name"))
		return nil
	}, table)
	if err != nil {
		return err
	}
	if err := outputCSV.Write(cols); err != nil {
		return err
	}

	rowCount := 0
	query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s", table, diaSchema[table].OrderBy)
	err = sqlitex.Exec(db, query, func(stmt *sqlite.Stmt) error {
		var row []string
		for _, col := range cols {
			row = append(row, stmt.GetText(col))
		}
		if err := outputCSV.Write(row); err != nil {
			return err
		}
		rowCount++
		return nil
	})
	if err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("Wrote %d rows to %s", rowCount, outputName))

	outputCSV.Flush()
	return outputCSV.Error()
}
