package main

import (
	"fmt"
	"github.com/mgrote/iris2sqlite"
	"github.com/spf13/pflag"
	"os"
	"path"
	"strings"
)

func usageAndDie() {
	fmt.Println("Example usage:\n" +
		"    iris2sqlite --timetable <week_dir> --stations <station_data.json> --db <dia.db>\n" +
		"    iris2sqlite --changes <week_dir> --db <dia.db>\n" +
		"    iris2sqlite --export <dia.db>\n" +
		"    iris2sqlite --validate <dia.db>")
	os.Exit(1)
}

func main() {
	timetableDir := pflag.StringP("timetable", "t", "", "Ingest a week of planned timetable snapshots")
	changesDir := pflag.StringP("changes", "c", "", "Ingest a week of timetable change snapshots")
	exportPath := pflag.StringP("export", "e", "", "Export a store to a zip of CSV files")
	validatePath := pflag.String("validate", "", "Check fact foreign keys against the dimensions")
	primaryOptions := []*string{timetableDir, changesDir, exportPath, validatePath}

	dbPath := pflag.String("db", "", "Path to the SQLite store")
	stationsPath := pflag.StringP("stations", "s", "", "Path to the station catalog JSON (required with --timetable)")
	regionPath := pflag.String("region", "", "Restrict the station catalog to a GeoJSON feature in the file specified")
	batchSize := pflag.Int("batch-size", 0, "Events buffered per store write (0 uses the per-mode default)")
	output := pflag.StringP("out", "o", "", "Path to write output to")

	pflag.Parse()

	primaryCount := 0
	for _, opt := range primaryOptions {
		if *opt != "" {
			primaryCount++
		}
	}
	if primaryCount != 1 {
		usageAndDie()
	}

	var err error
	if *timetableDir != "" {
		if *dbPath == "" || *stationsPath == "" {
			usageAndDie()
		}
		opts := &iris2sqlite.TimetableOpts{BatchSize: *batchSize}
		if *regionPath != "" {
			var feature []byte
			feature, err = os.ReadFile(*regionPath)
			if err != nil {
				fmt.Printf("Error: %s\n", err)
				os.Exit(1)
			}
			opts.RegionFeature = string(feature)
		}
		_, err = iris2sqlite.IngestTimetable(*dbPath, *timetableDir, *stationsPath, opts)
	} else if *changesDir != "" {
		if *dbPath == "" {
			usageAndDie()
		}
		_, err = iris2sqlite.IngestChanges(*dbPath, *changesDir, &iris2sqlite.IngestOpts{BatchSize: *batchSize})
	} else if *exportPath != "" {
		outputPath := outputPathOrDefault(*exportPath, *output, ".db", ".zip")
		err = iris2sqlite.Export(*exportPath, outputPath, nil)
	} else if *validatePath != "" {
		_, err = iris2sqlite.Validate(*validatePath)
	} else {
		usageAndDie()
	}

	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	} else {
		fmt.Println("All done")
	}
}

func outputPathOrDefault(inputPath string, outputPath string, suffixToTrim string, newSuffix string) string {
	if outputPath != "" {
		return outputPath
	}
	inputPath = path.Clean(inputPath)
	return strings.TrimSuffix(path.Base(inputPath), suffixToTrim) + newSuffix
}
