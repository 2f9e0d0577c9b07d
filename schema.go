package iris2sqlite

import (
	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
)

// Star schema: three dimensions plus one fact table keyed by the natural key
// (snapshot_time_key, station_key, stop_id, event_type).

type tableSchema struct {
	Create     string
	OrderBy    string
	ForeignIDs []foreignIDSchema
}

type foreignIDSchema struct {
	Column    string
	RefTable  string
	RefColumn string
}

// diaTables fixes the creation and export order.
var diaTables = []string{"dim_time", "dim_station", "dim_train", "fact_train_movement"}

var diaSchema = map[string]tableSchema{
	"dim_time": {
		Create: `CREATE TABLE IF NOT EXISTS dim_time (
			time_key INTEGER PRIMARY KEY,
			ts TEXT NOT NULL,
			date TEXT NOT NULL,
			hour INTEGER NOT NULL,
			minute INTEGER NOT NULL,
			dow INTEGER NOT NULL,
			is_weekend INTEGER NOT NULL
		)`,
		OrderBy: "time_key",
	},

	"dim_station": {
		Create: `CREATE TABLE IF NOT EXISTS dim_station (
			station_key INTEGER PRIMARY KEY,
			eva INTEGER NOT NULL UNIQUE,
			station_name TEXT NOT NULL,
			lat REAL,
			lon REAL
		)`,
		OrderBy: "eva",
	},

	"dim_train": {
		Create: `CREATE TABLE IF NOT EXISTS dim_train (
			train_key INTEGER PRIMARY KEY,
			category TEXT NOT NULL,
			train_number TEXT NOT NULL,
			owner TEXT NOT NULL,
			trip_type TEXT NOT NULL,
			filter_flags TEXT NOT NULL,
			UNIQUE (category, train_number, owner, trip_type, filter_flags)
		)`,
		OrderBy: "category, train_number, owner, trip_type, filter_flags",
	},

	"fact_train_movement": {
		Create: `CREATE TABLE IF NOT EXISTS fact_train_movement (
			movement_key INTEGER PRIMARY KEY,
			station_key INTEGER NOT NULL,
			train_key INTEGER NOT NULL,
			snapshot_time_key INTEGER NOT NULL,
			stop_id TEXT NOT NULL,
			event_type TEXT NOT NULL CHECK (event_type IN ('A', 'D')),
			planned_time_key INTEGER,
			changed_time_key INTEGER,
			event_status TEXT,
			planned_platform TEXT,
			changed_platform TEXT,
			line TEXT,
			planned_path TEXT,
			delay_minutes INTEGER,
			is_cancelled INTEGER NOT NULL DEFAULT 0,
			UNIQUE (snapshot_time_key, station_key, stop_id, event_type)
		)`,
		OrderBy: "snapshot_time_key, station_key, stop_id, event_type",
		ForeignIDs: []foreignIDSchema{
			{Column: "station_key", RefTable: "dim_station", RefColumn: "station_key"},
			{Column: "train_key", RefTable: "dim_train", RefColumn: "train_key"},
			{Column: "snapshot_time_key", RefTable: "dim_time", RefColumn: "time_key"},
			{Column: "planned_time_key", RefTable: "dim_time", RefColumn: "time_key"},
			{Column: "changed_time_key", RefTable: "dim_time", RefColumn: "time_key"},
		},
	},
}

// Per-snapshot commits have to actually reach disk, so unlike a throwaway
// bulk import we keep synchronous at NORMAL and use WAL.
var connPragmas = map[string]string{
	"journal_mode": "WAL",
	"synchronous":  "NORMAL",
}

func openStore(path string) (*sqlite.Conn, error) {
	db, err := sqlite.OpenConn(path, 0)
	if err != nil {
		return nil, err
	}

	for pragma, value := range connPragmas {
		if err := sqlitex.Exec(db, "PRAGMA "+pragma+" = "+value, sqlitexNoop); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	for _, table := range diaTables {
		if err := sqlitex.ExecTransient(db, diaSchema[table].Create, sqlitexNoop); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

func sqlitexNoop(stmt *sqlite.Stmt) error { return nil }
