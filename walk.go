package iris2sqlite

import (
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

var snapshotStampRe = regexp.MustCompile(`^\d{10}$`)

type snapshotDir struct {
	Stamp string // YYMMDDHHMM folder name
	Path  string
}

// Weekly timetable exports sometimes wrap the snapshot folders in an extra
// directory level. Descent is depth-bounded rather than unbounded so a
// misshapen tree cannot recurse forever.
const maxWrapperDepth = 3

// snapshotDirs lists the snapshot folders under root in ascending stamp
// order. With descendWrappers, directories whose name is not a stamp are
// descended into instead of ignored.
func snapshotDirs(root string, descendWrappers bool) ([]snapshotDir, error) {
	out, err := listSnapshotDirs(root, descendWrappers, 0)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(out, func(a, b snapshotDir) int {
		return strings.Compare(a.Stamp, b.Stamp)
	})
	return out, nil
}

func listSnapshotDirs(dir string, descendWrappers bool, depth int) ([]snapshotDir, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []snapshotDir
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if snapshotStampRe.MatchString(entry.Name()) {
			out = append(out, snapshotDir{Stamp: entry.Name(), Path: path})
		} else if descendWrappers && depth < maxWrapperDepth {
			nested, err := listSnapshotDirs(path, descendWrappers, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		}
	}
	return out, nil
}

// xmlFiles lists the XML files of one snapshot folder in name order.
func xmlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".xml") {
			continue
		}
		out = append(out, filepath.Join(dir, entry.Name()))
	}
	return out, nil
}
