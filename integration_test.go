package iris2sqlite

import (
	"archive/zip"
	"fmt"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"os"
	"path/filepath"
	"testing"
)

const plannedBerlinXML = `<timetable>
  <s id="100-1">
    <tl c="ICE" n="1001" o="80"/>
    <ar pt="2509020958" pp="7" ppth="Berlin Suedkreuz"/>
    <dp pt="2509021000" pp="7" ppth="Berlin Gesundbrunnen"/>
  </s>
</timetable>`

const plannedUnknownStationXML = `<timetable station="Kleinstadt">
  <s id="1-1">
    <dp pt="2509021005"/>
  </s>
</timetable>`

const changesBerlinXML = `<timetable eva="8011160">
  <s id="100-1">
    <ar ct="2509021010" cs="p" cp="9"/>
  </s>
  <s id="200-2">
    <dp pt="2509021030" ct="2509021040" cs="c" l="RE1"/>
  </s>
</timetable>`

const changesUnknownStationXML = `<timetable eva="999">
  <s id="9-9">
    <ar pt="2509021030"/>
  </s>
</timetable>`

const expectedFactCSV = `movement_key,station_key,train_key,snapshot_time_key,stop_id,event_type,planned_time_key,changed_time_key,event_status,planned_platform,changed_platform,line,planned_path,delay_minutes,is_cancelled
1,1,2,202509021000,100-1,A,202509020958,202509021010,p,7,9,,Berlin Suedkreuz,,0
2,1,2,202509021000,100-1,D,202509021000,,,7,,,Berlin Gesundbrunnen,,0
3,1,1,202509021000,200-2,D,202509021030,202509021040,c,,,RE1,,10,1
`

// writeFixtureWeek lays out one planned week (with an extra wrapper level)
// and one changes week covering the same snapshot stamp.
func writeFixtureWeek(t *testing.T) (plannedDir, changesDir, stationsPath string) {
	t.Helper()
	root := testTempdir(t)

	stationsPath = filepath.Join(root, "station_data.json")
	require.NoError(t, os.WriteFile(stationsPath, []byte(testCatalogJSON), 0o644))

	plannedDir = filepath.Join(root, "250902_250909_timetable")
	plannedSnap := filepath.Join(plannedDir, "wrapper", "2509021000")
	require.NoError(t, os.MkdirAll(plannedSnap, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(plannedSnap, "Berlin_Hauptbahnhof_timetable.xml"), []byte(plannedBerlinXML), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(plannedSnap, "Kleinstadt_timetable.xml"), []byte(plannedUnknownStationXML), 0o644))

	changesDir = filepath.Join(root, "250902_250909_timetable_changes")
	changesSnap := filepath.Join(changesDir, "2509021000")
	require.NoError(t, os.MkdirAll(changesSnap, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(changesSnap, "8011160.xml"), []byte(changesBerlinXML), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(changesSnap, "999.xml"), []byte(changesUnknownStationXML), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(changesSnap, "broken.xml"), []byte("<timetable><s"), 0o644))

	return plannedDir, changesDir, stationsPath
}

func ingestFixtureWeek(t *testing.T, dbPath string, batchSize int) {
	t.Helper()
	plannedDir, changesDir, stationsPath := writeFixtureWeek(t)

	plannedStats, err := IngestTimetable(dbPath, plannedDir, stationsPath, &TimetableOpts{BatchSize: batchSize})
	require.NoError(t, err)
	assert.Equal(t, 1, plannedStats.Snapshots)
	assert.Equal(t, 2, plannedStats.Files)
	assert.Equal(t, 2, plannedStats.Upserted)
	assert.Equal(t, 1, plannedStats.SkippedStation)
	assert.Equal(t, 0, plannedStats.BadFiles)

	changeStats, err := IngestChanges(dbPath, changesDir, &IngestOpts{BatchSize: batchSize})
	require.NoError(t, err)
	assert.Equal(t, 1, changeStats.Snapshots)
	assert.Equal(t, 3, changeStats.Files)
	assert.Equal(t, 2, changeStats.Upserted)
	assert.Equal(t, 1, changeStats.SkippedStation)
	assert.Equal(t, 1, changeStats.BadFiles)
}

func TestIngestWeek(t *testing.T) {
	outDir := testTempdir(t)
	dbPath := outDir + "/dia.db"

	ingestFixtureWeek(t, dbPath, 0)

	require.NoError(t, Export(dbPath, outDir+"/dia.zip", nil))
	assertZipEntryEqual(t, expectedFactCSV, outDir+"/dia.zip", "fact_train_movement.csv")

	issues, err := Validate(dbPath)
	require.NoError(t, err)
	require.Empty(t, issues)
}

func TestIngestIdempotent(t *testing.T) {
	outDir := testTempdir(t)
	dbPath := outDir + "/dia.db"

	ingestFixtureWeek(t, dbPath, 0)
	require.NoError(t, Export(dbPath, outDir+"/first.zip", nil))

	// Re-applying a committed week must not change observable store state.
	ingestFixtureWeek(t, dbPath, 0)
	require.NoError(t, Export(dbPath, outDir+"/second.zip", nil))

	first := readZipEntries(t, outDir+"/first.zip")
	second := readZipEntries(t, outDir+"/second.zip")
	require.Equal(t, len(first), len(second))
	for name, content := range first {
		assertTextEqual(t, content, second[name], name)
	}
}

func TestIngestBatchSizeDoesNotAffectState(t *testing.T) {
	outDir := testTempdir(t)

	ingestFixtureWeek(t, outDir+"/default.db", 0)
	require.NoError(t, Export(outDir+"/default.db", outDir+"/default.zip", nil))

	ingestFixtureWeek(t, outDir+"/tiny.db", 1)
	require.NoError(t, Export(outDir+"/tiny.db", outDir+"/tiny.zip", nil))

	want := readZipEntries(t, outDir+"/default.zip")
	got := readZipEntries(t, outDir+"/tiny.zip")
	require.Equal(t, len(want), len(got))
	for name, content := range want {
		assertTextEqual(t, content, got[name], name)
	}
}

func TestChangesOnEmptyStationDimension(t *testing.T) {
	outDir := testTempdir(t)
	_, changesDir, _ := writeFixtureWeek(t)

	// Without a loaded catalog every event is skipped, never fatal.
	stats, err := IngestChanges(outDir+"/empty.db", changesDir, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Upserted)
	assert.Equal(t, 2, stats.SkippedStation)
	assert.Equal(t, 1, stats.BadFiles)
}

func assertZipEntryEqual(t *testing.T, expected, zipPath, name string) {
	t.Helper()
	entries := readZipEntries(t, zipPath)
	content, ok := entries[name]
	require.True(t, ok, "missing %s in %s", name, zipPath)
	assertTextEqual(t, expected, content, name)
}

func assertTextEqual(t *testing.T, expected, actual, name string) {
	t.Helper()
	edits := myers.ComputeEdits(span.URIFromPath(name), expected, actual)
	if len(edits) > 0 {
		t.Error(fmt.Sprint("\n", gotextdiff.ToUnified("expected/"+name, "actual/"+name, expected, edits)))
	}
}

func readZipEntries(t *testing.T, path string) map[string]string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	out := map[string]string{}
	for _, entry := range r.File {
		f, err := entry.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(f)
		require.NoError(t, err)
		_ = f.Close()
		out[entry.Name] = string(content)
	}
	return out
}
