package iris2sqlite

import (
	"crawshaw.io/sqlite"
	"fmt"
)

// TrainDescriptor is the composite identity of a train as the source exposes
// it: the tl element's category/number/owner/type/flags attributes. Missing
// subfields are substituted with fixed sentinels so the tuple is always fully
// defined and usable as a map key.
type TrainDescriptor struct {
	Category string `xml:"c,attr"`
	Number   string `xml:"n,attr"`
	Owner    string `xml:"o,attr"`
	TripType string `xml:"t,attr"`
	Flags    string `xml:"f,attr"`
}

// unknownTrain is the reserved identity used when a stop carries no tl
// element at all, which is common in change-only snapshots. It is a real
// dimension row, not a null.
var unknownTrain = TrainDescriptor{Category: "UNK", Number: "UNK"}

func (d TrainDescriptor) withDefaults() TrainDescriptor {
	if d.Category == "" {
		d.Category = "UNK"
	}
	if d.Number == "" {
		d.Number = "UNK"
	}
	return d
}

const sqlInsertTrain = `INSERT INTO dim_train (category, train_number, owner, trip_type, filter_flags)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (category, train_number, owner, trip_type, filter_flags) DO NOTHING`

const sqlSelectTrainKey = `SELECT train_key FROM dim_train
WHERE category = ? AND train_number = ? AND owner = ? AND trip_type = ? AND filter_flags = ?`

// trainResolver maps descriptors to dim_train surrogate keys, insert-if-absent,
// with a per-run cache. The unknown-train row is ensured once at construction.
type trainResolver struct {
	db         *sqlite.Conn
	cache      map[TrainDescriptor]int64
	unknownKey int64
}

func newTrainResolver(db *sqlite.Conn) (*trainResolver, error) {
	r := &trainResolver{db: db, cache: make(map[TrainDescriptor]int64)}
	key, err := r.ensure(unknownTrain)
	if err != nil {
		return nil, fmt.Errorf("ensure unknown train: %w", err)
	}
	r.unknownKey = key
	return r, nil
}

// Resolve returns the surrogate key for the descriptor, or the reserved
// unknown-train key when the source event carried no descriptor.
func (r *trainResolver) Resolve(d *TrainDescriptor) (int64, error) {
	if d == nil {
		return r.unknownKey, nil
	}
	return r.ensure(d.withDefaults())
}

func (r *trainResolver) ensure(d TrainDescriptor) (int64, error) {
	if key, ok := r.cache[d]; ok {
		return key, nil
	}

	insert, err := r.db.Prepare(sqlInsertTrain)
	if err != nil {
		return 0, err
	}
	if err := insert.Reset(); err != nil {
		return 0, err
	}
	insert.BindText(1, d.Category)
	insert.BindText(2, d.Number)
	insert.BindText(3, d.Owner)
	insert.BindText(4, d.TripType)
	insert.BindText(5, d.Flags)
	if _, err := insert.Step(); err != nil {
		return 0, err
	}

	query, err := r.db.Prepare(sqlSelectTrainKey)
	if err != nil {
		return 0, err
	}
	if err := query.Reset(); err != nil {
		return 0, err
	}
	query.BindText(1, d.Category)
	query.BindText(2, d.Number)
	query.BindText(3, d.Owner)
	query.BindText(4, d.TripType)
	query.BindText(5, d.Flags)
	rowReturned, err := query.Step()
	if err != nil {
		return 0, err
	}
	if !rowReturned {
		return 0, fmt.Errorf("dim_train row missing after insert: %+v", d)
	}
	key := query.GetInt64("train_key")
	if err := query.Reset(); err != nil {
		return 0, err
	}

	r.cache[d] = key
	return key, nil
}
