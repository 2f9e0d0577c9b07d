package iris2sqlite

import (
	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"fmt"
	"log/slog"
	"strconv"
)

const (
	defaultChangeBatchSize  = 800
	defaultPlannedBatchSize = 500
)

type IngestOpts struct {
	// BatchSize is how many normalized events are buffered before a store
	// write is issued. Throughput only, never correctness.
	BatchSize int
}

// IngestStats are the end-of-run audit counters: enough to judge
// completeness of a load without inspecting the store.
type IngestStats struct {
	Snapshots      int
	Files          int
	Upserted       int
	SkippedStation int
	BadFiles       int
}

func (s *IngestStats) String() string {
	return fmt.Sprintf("snapshots=%d, files=%d, upserted~=%d, skipped_station=%d, bad_files=%d",
		s.Snapshots, s.Files, s.Upserted, s.SkippedStation, s.BadFiles)
}

// IngestChanges loads a week of change snapshots (15-minute YYMMDDHHMM
// folders of per-station XML) into the store. Stations are resolved by the
// numeric eva attribute against the already-loaded dim_station; events
// referencing stations outside the catalog are counted and skipped. Each
// snapshot folder commits as one unit, so a rerun after a mid-week failure
// re-applies at most one snapshot, and the merge policy makes that a no-op.
func IngestChanges(dbPath string, weekDir string, opts *IngestOpts) (*IngestStats, error) {
	if dbPath == "" {
		panic("Missing dbPath")
	}
	if weekDir == "" {
		panic("Missing weekDir")
	}
	if opts == nil {
		opts = &IngestOpts{}
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultChangeBatchSize
	}

	slog.Info(fmt.Sprintf("Ingesting change snapshots from %s into %s", weekDir, dbPath))

	db, err := openStore(dbPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	stations, err := newStationResolver(db, nil)
	if err != nil {
		return nil, err
	}
	if len(stations.keyByEVA) == 0 {
		slog.Warn("dim_station is empty; every event will be skipped (load the catalog with --timetable first)")
	}

	times := newTimeResolver(db)
	trains, err := newTrainResolver(db)
	if err != nil {
		return nil, err
	}
	writer, err := newChangeWriter(db, batchSize, trains.unknownKey)
	if err != nil {
		return nil, err
	}

	snapshots, err := snapshotDirs(weekDir, false)
	if err != nil {
		return nil, err
	}

	stats := &IngestStats{}
	for _, snap := range snapshots {
		if err := ingestChangeSnapshot(db, snap, stations, times, trains, writer, stats); err != nil {
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

func ingestChangeSnapshot(db *sqlite.Conn, snap snapshotDir, stations *stationResolver,
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

		eva, err := strconv.ParseInt(feed.EVA, 10, 64)
		if err != nil {
			stats.SkippedStation++
			continue
		}
		stationKey, ok := stations.KeyByEVA(eva)
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
				ctKey, err := times.ResolveStamp(te.ev.ChangedTime)
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
					ChangedTimeKey:  ctKey,
					EventStatus:     optText(te.ev.Status),
					PlannedPlatform: optText(te.ev.PlannedPlatform),
					ChangedPlatform: optText(te.ev.ChangedPlatform),
					Line:            optText(te.ev.Line),
					PlannedPath:     optText(te.ev.PlannedPath),
					DelayMinutes:    computeDelayMinutes(ptKey, ctKey, te.ev.DelayDelta),
					IsCancelled:     te.ev.Status == "c",
				}
				if err := writer.Add(m); err != nil {
					return err
				}
			}
		}
	}

	return writer.Flush()
}

func optText(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
