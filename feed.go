package iris2sqlite

import (
	"encoding/xml"
	"os"
)

// IRIS-style per-station timetable file. Everything of interest lives in
// attributes; elements that are absent decode as nil pointers. The root
// element name is deliberately not pinned down, matching how tolerant the
// real feeds require consumers to be.
type stationFeed struct {
	Station string     `xml:"station,attr"`
	EVA     string     `xml:"eva,attr"`
	Stops   []feedStop `xml:"s"`
}

type feedStop struct {
	ID        string           `xml:"id,attr"`
	Train     *TrainDescriptor `xml:"tl"`
	Arrival   *feedEvent       `xml:"ar"`
	Departure *feedEvent       `xml:"dp"`
}

type feedEvent struct {
	PlannedTime     string `xml:"pt,attr"`
	ChangedTime     string `xml:"ct,attr"`
	Status          string `xml:"cs,attr"` // p/a/c, often missing
	PlannedPlatform string `xml:"pp,attr"`
	ChangedPlatform string `xml:"cp,attr"`
	Line            string `xml:"l,attr"`
	PlannedPath     string `xml:"ppth,attr"`
	DelayDelta      string `xml:"dc,attr"` // delay delta in minutes, if present
}

type typedEvent struct {
	ev    *feedEvent
	etype string // "A" or "D"
}

// events pairs each present event element with its type code.
func (s *feedStop) events() []typedEvent {
	var out []typedEvent
	if s.Arrival != nil {
		out = append(out, typedEvent{s.Arrival, "A"})
	}
	if s.Departure != nil {
		out = append(out, typedEvent{s.Departure, "D"})
	}
	return out
}

func parseStationFeed(path string) (*stationFeed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var feed stationFeed
	if err := xml.Unmarshal(raw, &feed); err != nil {
		return nil, err
	}
	return &feed, nil
}
