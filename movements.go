package iris2sqlite

import (
	"crawshaw.io/sqlite"
)

// movement is one normalized train-stop event observation. Pointer fields are
// unset when the source did not carry the attribute; unset is stored as NULL,
// never as a placeholder that could be mistaken for a real observation.
type movement struct {
	StationKey  int64
	TrainKey    int64
	SnapshotKey int64
	StopID      string
	EventType   string // "A" arrival, "D" departure

	PlannedTimeKey  *int64
	ChangedTimeKey  *int64
	EventStatus     *string
	PlannedPlatform *string
	ChangedPlatform *string
	Line            *string
	PlannedPath     *string
	DelayMinutes    *int64
	IsCancelled     bool
}

// The merge policy, applied atomically per natural key. Planned-side fields
// keep the existing value once set; live fields (changed time/platform,
// status, delay) always advance to the latest observation; is_cancelled only
// ever moves false -> true. The unknown-train key is bound as ?15 so a stop
// that lost its tl element between snapshots cannot clobber a resolved
// identity. Unqualified columns on the right-hand side refer to the stored
// row, excluded.* to the incoming one.
const sqlUpsertChange = `INSERT INTO fact_train_movement (
  station_key, train_key, snapshot_time_key,
  stop_id, event_type,
  planned_time_key, changed_time_key,
  event_status,
  planned_platform, changed_platform,
  line, planned_path,
  delay_minutes, is_cancelled
)
VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11, ?12, ?13, ?14)
ON CONFLICT (snapshot_time_key, station_key, stop_id, event_type)
DO UPDATE SET
  train_key = CASE
    WHEN excluded.train_key = ?15 THEN train_key
    ELSE excluded.train_key
  END,

  planned_time_key = COALESCE(planned_time_key, excluded.planned_time_key),
  changed_time_key = COALESCE(excluded.changed_time_key, changed_time_key),
  event_status     = COALESCE(excluded.event_status, event_status),

  planned_platform = COALESCE(planned_platform, excluded.planned_platform),
  changed_platform = COALESCE(excluded.changed_platform, changed_platform),

  line             = COALESCE(excluded.line, line),
  planned_path     = COALESCE(excluded.planned_path, planned_path),

  delay_minutes    = COALESCE(excluded.delay_minutes, delay_minutes),

  is_cancelled     = (is_cancelled OR excluded.is_cancelled)`

// The planned-timetable variant only supplies planned-side fields. Its train
// key wins outright (the planned pass is authoritative for identity at load
// time); planned fields coalesce keep-existing so a second file covering the
// same stop fills gaps instead of overwriting.
const sqlUpsertPlanned = `INSERT INTO fact_train_movement (
  station_key, train_key, snapshot_time_key,
  stop_id, event_type,
  planned_time_key, planned_platform, line, planned_path,
  is_cancelled
)
VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, 0)
ON CONFLICT (snapshot_time_key, station_key, stop_id, event_type)
DO UPDATE SET
  train_key        = excluded.train_key,
  planned_time_key = COALESCE(planned_time_key, excluded.planned_time_key),
  planned_platform = COALESCE(planned_platform, excluded.planned_platform),
  line             = COALESCE(line, excluded.line),
  planned_path     = COALESCE(planned_path, excluded.planned_path)`

// movementWriter buffers normalized movements and flushes them through one
// prepared upsert. Batching only affects throughput; every Add is applied by
// the time Flush returns.
type movementWriter struct {
	stmt      *sqlite.Stmt
	bind      func(stmt *sqlite.Stmt, m movement)
	buf       []movement
	batchSize int
	written   int
}

func newChangeWriter(db *sqlite.Conn, batchSize int, unknownTrainKey int64) (*movementWriter, error) {
	if batchSize <= 0 {
		panic("batchSize must be positive")
	}
	stmt, err := db.Prepare(sqlUpsertChange)
	if err != nil {
		return nil, err
	}
	return &movementWriter{
		stmt:      stmt,
		batchSize: batchSize,
		bind: func(stmt *sqlite.Stmt, m movement) {
			bindMovementCommon(stmt, m)
			bindOptInt(stmt, 6, m.PlannedTimeKey)
			bindOptInt(stmt, 7, m.ChangedTimeKey)
			bindOptText(stmt, 8, m.EventStatus)
			bindOptText(stmt, 9, m.PlannedPlatform)
			bindOptText(stmt, 10, m.ChangedPlatform)
			bindOptText(stmt, 11, m.Line)
			bindOptText(stmt, 12, m.PlannedPath)
			bindOptInt(stmt, 13, m.DelayMinutes)
			stmt.BindBool(14, m.IsCancelled)
			stmt.BindInt64(15, unknownTrainKey)
		},
	}, nil
}

func newPlannedWriter(db *sqlite.Conn, batchSize int) (*movementWriter, error) {
	if batchSize <= 0 {
		panic("batchSize must be positive")
	}
	stmt, err := db.Prepare(sqlUpsertPlanned)
	if err != nil {
		return nil, err
	}
	return &movementWriter{
		stmt:      stmt,
		batchSize: batchSize,
		bind: func(stmt *sqlite.Stmt, m movement) {
			bindMovementCommon(stmt, m)
			bindOptInt(stmt, 6, m.PlannedTimeKey)
			bindOptText(stmt, 7, m.PlannedPlatform)
			bindOptText(stmt, 8, m.Line)
			bindOptText(stmt, 9, m.PlannedPath)
		},
	}, nil
}

func (w *movementWriter) Add(m movement) error {
	w.buf = append(w.buf, m)
	if len(w.buf) >= w.batchSize {
		return w.Flush()
	}
	return nil
}

func (w *movementWriter) Flush() error {
	for _, m := range w.buf {
		if err := w.stmt.Reset(); err != nil {
			return err
		}
		if err := w.stmt.ClearBindings(); err != nil {
			return err
		}
		w.bind(w.stmt, m)
		if _, err := w.stmt.Step(); err != nil {
			return err
		}
		w.written++
	}
	w.buf = w.buf[:0]
	return nil
}

func bindMovementCommon(stmt *sqlite.Stmt, m movement) {
	stmt.BindInt64(1, m.StationKey)
	stmt.BindInt64(2, m.TrainKey)
	stmt.BindInt64(3, m.SnapshotKey)
	stmt.BindText(4, m.StopID)
	stmt.BindText(5, m.EventType)
}

func bindOptText(stmt *sqlite.Stmt, param int, v *string) {
	if v == nil {
		stmt.BindNull(param)
	} else {
		stmt.BindText(param, *v)
	}
}

func bindOptInt(stmt *sqlite.Stmt, param int, v *int64) {
	if v == nil {
		stmt.BindNull(param)
	} else {
		stmt.BindInt64(param, *v)
	}
}
