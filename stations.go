package iris2sqlite

import (
	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"encoding/json"
	"fmt"
	"github.com/tidwall/geojson"
	"github.com/tidwall/geojson/geometry"
	"log/slog"
	"os"
	"strings"
)

// Station is one entry of the externally supplied station reference dataset.
// EVA is the primary numeric identifier; coordinates are optional.
type Station struct {
	EVA  int64
	Name string
	Lat  *float64
	Lon  *float64
}

type stationCatalogFile struct {
	Result []struct {
		Name       string `json:"name"`
		EvaNumbers []struct {
			Number                int64 `json:"number"`
			IsMain                bool  `json:"isMain"`
			GeographicCoordinates struct {
				Coordinates []float64 `json:"coordinates"` // lon, lat
			} `json:"geographicCoordinates"`
		} `json:"evaNumbers"`
	} `json:"result"`
}

// LoadStationCatalog reads the station reference dataset. Stations without
// any EVA number are dropped. Of multiple EVA numbers the one marked main
// wins, else the first.
func LoadStationCatalog(path string) ([]Station, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file stationCatalogFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse station catalog %s: %w", path, err)
	}

	var stations []Station
	for _, entry := range file.Result {
		if len(entry.EvaNumbers) == 0 {
			continue
		}
		main := entry.EvaNumbers[0]
		for _, eva := range entry.EvaNumbers {
			if eva.IsMain {
				main = eva
				break
			}
		}

		s := Station{EVA: main.Number, Name: entry.Name}
		if coords := main.GeographicCoordinates.Coordinates; len(coords) == 2 {
			lon, lat := coords[0], coords[1]
			s.Lon = &lon
			s.Lat = &lat
		}
		stations = append(stations, s)
	}
	return stations, nil
}

// ClipStations keeps only the stations whose coordinates fall inside the
// GeoJSON feature. Stations without coordinates are dropped too, since their
// membership cannot be decided.
func ClipStations(stations []Station, clipFeature string) ([]Station, error) {
	feature, err := geojson.Parse(clipFeature, &geojson.ParseOptions{RequireValid: true})
	if err != nil {
		return nil, fmt.Errorf("parse clip feature: %w", err)
	}

	var inside []Station
	for _, s := range stations {
		if s.Lat == nil || s.Lon == nil {
			continue
		}
		point := geojson.NewPoint(geometry.Point{X: *s.Lon, Y: *s.Lat})
		if feature.Contains(point) {
			inside = append(inside, s)
		}
	}
	slog.Info(fmt.Sprintf("%d of %d catalog stations are inside the region", len(inside), len(stations)))
	return inside, nil
}

const sqlUpsertStation = `INSERT INTO dim_station (eva, station_name, lat, lon)
VALUES (?, ?, ?, ?)
ON CONFLICT (eva) DO UPDATE SET
  station_name = excluded.station_name,
  lat = excluded.lat,
  lon = excluded.lon`

// upsertStations refreshes dim_station from the catalog. EVA is immutable;
// name and coordinates are last-write-wins.
func upsertStations(db *sqlite.Conn, stations []Station) error {
	stmt, err := db.Prepare(sqlUpsertStation)
	if err != nil {
		return err
	}
	for _, s := range stations {
		if err := stmt.Reset(); err != nil {
			return err
		}
		if err := stmt.ClearBindings(); err != nil {
			return err
		}
		stmt.BindInt64(1, s.EVA)
		stmt.BindText(2, s.Name)
		if s.Lat == nil {
			stmt.BindNull(3)
		} else {
			stmt.BindFloat(3, *s.Lat)
		}
		if s.Lon == nil {
			stmt.BindNull(4)
		} else {
			stmt.BindFloat(4, *s.Lon)
		}
		if _, err := stmt.Step(); err != nil {
			return err
		}
	}
	return nil
}

// stationResolver maps station references onto dim_station surrogate keys.
// The numeric path resolves an EVA directly; the name path goes through the
// normalized alias table. Both return ok=false for references outside the
// catalog, which callers count and skip.
type stationResolver struct {
	keyByEVA  map[int64]int64
	evaByName map[string]int64
}

func newStationResolver(db *sqlite.Conn, stations []Station) (*stationResolver, error) {
	r := &stationResolver{
		keyByEVA:  make(map[int64]int64),
		evaByName: make(map[string]int64),
	}

	err := sqlitex.Exec(db, "SELECT eva, station_key FROM dim_station", func(stmt *sqlite.Stmt) error {
		r.keyByEVA[stmt.GetInt64("eva")] = stmt.GetInt64("station_key")
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Source labels inconsistently include the region prefix, so each catalog
	// name is registered with a "berlin "-stripped and a "berlin "-prefixed
	// alias alongside its normalized form.
	for _, s := range stations {
		n := normStationName(s.Name)
		r.evaByName[n] = s.EVA
		if strings.HasPrefix(n, "berlin ") {
			r.evaByName[strings.TrimPrefix(n, "berlin ")] = s.EVA
		}
		if !strings.HasPrefix(n, "berlin") {
			r.evaByName["berlin "+n] = s.EVA
		}
	}

	return r, nil
}

func (r *stationResolver) KeyByEVA(eva int64) (int64, bool) {
	key, ok := r.keyByEVA[eva]
	return key, ok
}

func (r *stationResolver) KeyByName(label string) (int64, bool) {
	eva, ok := r.evaByName[normStationName(label)]
	if !ok {
		return 0, false
	}
	return r.KeyByEVA(eva)
}

func normStationName(x string) string {
	x = strings.ToLower(strings.ReplaceAll(x, "_", " "))
	return strings.Join(strings.Fields(x), " ")
}
