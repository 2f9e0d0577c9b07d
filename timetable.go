package iris2sqlite

import (
	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
)

type TimetableOpts struct {
	BatchSize int
	// RegionFeature, if set, is a GeoJSON feature; only catalog stations
	// inside it are loaded into dim_station.
	RegionFeature string
}

// IngestTimetable loads a week of planned timetables. The station catalog is
// upserted into dim_station first; per-station files are then resolved by
// free-text label through the alias table, since planned exports carry no
// numeric station identifier. Commit granularity and skip semantics match
// IngestChanges.
func IngestTimetable(dbPath string, weekDir string, stationsPath string, opts *TimetableOpts) (*IngestStats, error) {
	if dbPath == "" {
		panic("Missing dbPath")
	}
	if weekDir == "" {
		panic("Missing weekDir")
	}
	if stationsPath == "" {
		panic("Missing stationsPath")
	}
	if opts == nil {
		opts = &TimetableOpts{}
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultPlannedBatchSize
	}

	slog.Info(fmt.Sprintf("Ingesting planned timetables from %s into %s", weekDir, dbPath))

	catalog, err := LoadStationCatalog(stationsPath)
	if err != nil {
		return nil, err
	}
	if opts.RegionFeature != "" {
		catalog, err = ClipStations(catalog, opts.RegionFeature)
		if err != nil {
			return nil, err
		}
	}

	db, err := openStore(dbPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	if err := upsertStations(db, catalog); err != nil {
		return nil, fmt.Errorf("load station catalog: %w", err)
	}
	slog.Info(fmt.Sprintf("Loaded %d catalog stations into dim_station", len(catalog)))

	stations, err := newStationResolver(db, catalog)
	if err != nil {
		return nil, err
	}
	times := newTimeResolver(db)
	trains, err := newTrainResolver(db)
	if err != nil {
		return nil, err
	}
	writer, err := newPlannedWriter(db, batchSize)
	if err != nil {
		return nil, err
	}

	// Planned exports sometimes wrap the snapshot folders one level deeper.
	snapshots, err := snapshotDirs(weekDir, true)
	if err != nil {
		return nil, err
	}

	stats := &IngestStats{}
	for _, snap := range snapshots {
		if err := ingestPlannedSnapshot(db, snap, stations, times, trains, writer, stats); err != nil {
			return stats, fmt.Errorf("snapshot %s: %w", snap.Stamp, err)
		}
		stats.Snapshots++
		stats.Upserted = writer.written
		slog.Info(fmt.Sprintf("[snapshot %s] committed. %s", snap.Stamp, stats))
	}

	slog.Info(fmt.Sprintf("[DONE] %s", stats))

	err = db.Close()
	db = nil
	if err != nil {
		return stats, err
	}
	return stats, nil
}

func ingestPlannedSnapshot(db *sqlite.Conn, snap snapshotDir, stations *stationResolver,
	times *timeResolver, trains *trainResolver, writer *movementWriter, stats *IngestStats) (err error) {

	snapTime, err := parseStamp(snap.Stamp)
	if err != nil {
		return err
	}

	defer sqlitex.Save(db)(&err)

	snapKey, err := times.Resolve(snapTime)
	if err != nil {
		return err
	}

	files, err := xmlFiles(snap.Path)
	if err != nil {
		return err
	}
	for _, path := range files {
		stats.Files++

		feed, err := parseStationFeed(path)
		if err != nil {
			stats.BadFiles++
			continue
		}

		stationKey, ok := stations.KeyByName(stationLabel(feed, path))
		if !ok {
			stats.SkippedStation++
			continue
		}

		for _, stop := range feed.Stops {
			trainKey, err := trains.Resolve(stop.Train)
			if err != nil {
				return err
			}

			for _, te := range stop.events() {
				ptKey, err := times.ResolveStamp(te.ev.PlannedTime)
				if err != nil {
					return err
				}

				m := movement{
					StationKey:      stationKey,
					TrainKey:        trainKey,
					SnapshotKey:     snapKey,
					StopID:          stop.ID,
					EventType:       te.etype,
					PlannedTimeKey:  ptKey,
					PlannedPlatform: optText(te.ev.PlannedPlatform),
					Line:            optText(te.ev.Line),
					PlannedPath:     optText(te.ev.PlannedPath),
				}
				if err := writer.Add(m); err != nil {
					return err
				}
			}
		}
	}

	return writer.Flush()
}

var timetableFileSuffixRe = regexp.MustCompile(`(?i)_timetable\.xml$`)

// stationLabel is the station reference of a planned file: the root station
// attribute when present, else the filename with its _timetable.xml suffix
// stripped.
func stationLabel(feed *stationFeed, path string) string {
	if feed.Station != "" {
		return feed.Station
	}
	base := timetableFileSuffixRe.ReplaceAllString(filepath.Base(path), "")
	return strings.ReplaceAll(base, "_", " ")
}
