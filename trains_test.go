package iris2sqlite

import (
	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestTrainResolverUnknown(t *testing.T) {
	db := testStore(t)
	trains, err := newTrainResolver(db)
	require.NoError(t, err)

	key, err := trains.Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, trains.unknownKey, key)

	var row TrainDescriptor
	err = sqlitex.Exec(db, "SELECT * FROM dim_train WHERE train_key = ?", func(stmt *sqlite.Stmt) error {
		row = TrainDescriptor{
			Category: stmt.GetText("category"),
			Number:   stmt.GetText("train_number"),
			Owner:    stmt.GetText("owner"),
			TripType: stmt.GetText("trip_type"),
			Flags:    stmt.GetText("filter_flags"),
		}
		return nil
	}, key)
	require.NoError(t, err)
	assert.Equal(t, unknownTrain, row)
}

func TestTrainResolverDefaults(t *testing.T) {
	db := testStore(t)
	trains, err := newTrainResolver(db)
	require.NoError(t, err)

	// A descriptor with only defaulted subfields collapses onto the
	// reserved unknown identity rather than minting a duplicate.
	key, err := trains.Resolve(&TrainDescriptor{})
	require.NoError(t, err)
	assert.Equal(t, trains.unknownKey, key)
	assert.Equal(t, 1, countRows(t, db, "dim_train"))
}

func TestTrainResolverInsertIfAbsent(t *testing.T) {
	db := testStore(t)
	trains, err := newTrainResolver(db)
	require.NoError(t, err)

	ice := &TrainDescriptor{Category: "ICE", Number: "1001", Owner: "80"}
	first, err := trains.Resolve(ice)
	require.NoError(t, err)
	assert.NotEqual(t, trains.unknownKey, first)

	second, err := trains.Resolve(ice)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := trains.Resolve(&TrainDescriptor{Category: "ICE", Number: "1002", Owner: "80"})
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	// A fresh resolver on the same store sees the same keys.
	rerun, err := newTrainResolver(db)
	require.NoError(t, err)
	again, err := rerun.Resolve(ice)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	assert.Equal(t, 3, countRows(t, db, "dim_train"))
}
