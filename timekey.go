package iris2sqlite

import (
	"crawshaw.io/sqlite"
	"fmt"
	"strconv"
	"time"
)

// Snapshot folders and the pt/ct attributes encode times as YYMMDDHHMM,
// e.g. 2509021615. Time keys are the full YYYYMMDDHHMM integer, so the key
// is derivable from the timestamp alone and never depends on insert order.

const timeKeyLayout = "200601021504"

// parseStamp parses a YYMMDDHHMM stamp. Callers that expect a well-formed
// stamp (snapshot folder names) must treat an error as fatal.
func parseStamp(s string) (time.Time, error) {
	if len(s) != 10 || !allDigits(s) {
		return time.Time{}, fmt.Errorf("invalid YYMMDDHHMM stamp: %q", s)
	}
	t, err := time.Parse("0601021504", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid YYMMDDHHMM stamp: %q", s)
	}
	return t, nil
}

func allDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func timeKey(t time.Time) int64 {
	k, err := strconv.ParseInt(t.Format(timeKeyLayout), 10, 64)
	if err != nil {
		panic("unreachable")
	}
	return k
}

func timeKeyTime(key int64) (time.Time, error) {
	return time.Parse(timeKeyLayout, fmt.Sprintf("%012d", key))
}

const sqlInsertTime = `INSERT INTO dim_time (time_key, ts, date, hour, minute, dow, is_weekend)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (time_key) DO NOTHING`

// timeResolver ensures dim_time rows exist, remembering within the run which
// keys it has already written. Time rows are insert-only.
type timeResolver struct {
	db   *sqlite.Conn
	seen map[int64]struct{}
}

func newTimeResolver(db *sqlite.Conn) *timeResolver {
	return &timeResolver{db: db, seen: make(map[int64]struct{})}
}

func (r *timeResolver) Resolve(t time.Time) (int64, error) {
	k := timeKey(t)
	if _, ok := r.seen[k]; ok {
		return k, nil
	}

	dow := int(t.Weekday())
	if dow == 0 {
		dow = 7 // ISO weekday: Monday=1 .. Sunday=7
	}

	stmt, err := r.db.Prepare(sqlInsertTime)
	if err != nil {
		return 0, err
	}
	if err := stmt.Reset(); err != nil {
		return 0, err
	}
	if err := stmt.ClearBindings(); err != nil {
		return 0, err
	}
	stmt.BindInt64(1, k)
	stmt.BindText(2, t.Format("2006-01-02 15:04"))
	stmt.BindText(3, t.Format("2006-01-02"))
	stmt.BindInt64(4, int64(t.Hour()))
	stmt.BindInt64(5, int64(t.Minute()))
	stmt.BindInt64(6, int64(dow))
	stmt.BindBool(7, dow >= 6)
	if _, err := stmt.Step(); err != nil {
		return 0, err
	}

	r.seen[k] = struct{}{}
	return k, nil
}

// ResolveStamp is the lenient variant for event attributes: a missing or
// malformed pt/ct attribute is just an unset field, not an error. A valid
// stamp gets its dim_time row ensured like any other resolved time.
func (r *timeResolver) ResolveStamp(attr string) (*int64, error) {
	t, err := parseStamp(attr)
	if err != nil {
		return nil, nil
	}
	k, err := r.Resolve(t)
	if err != nil {
		return nil, err
	}
	return &k, nil
}
