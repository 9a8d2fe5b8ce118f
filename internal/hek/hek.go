// Package hek handles solar flare event records from the Heliophysics Events
// Knowledgebase: parsing downloaded catalog documents, filtering by GOES
// class, and formatting the event selector labels shown to the user.
package hek

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// eventTimeFormat is the timestamp format of HEK catalog records.
const eventTimeFormat = "2006-01-02T15:04:05"

// FlareEvent is one GOES flare record. Catalog documents decode through
// flareEventJSON; see ParseCatalog.
type FlareEvent struct {
	StartTime time.Time
	PeakTime  time.Time
	EndTime   time.Time
	GOESClass string
	PeakFlux  float64
	HGSX      float64
	HGSY      float64
	NOAAARNum int
}

// SelectorLabel formats the event for selection lists, e.g.
// "FLX1.0|2021-10-28T15:35:00".
func (e FlareEvent) SelectorLabel() string {
	return "FL" + e.GOESClass + "|" + e.PeakTime.UTC().Format(eventTimeFormat)
}

// flareEventJSON is the raw catalog record; times are strings and numeric
// fields may be absent.
type flareEventJSON struct {
	StartTime string   `json:"event_starttime"`
	PeakTime  string   `json:"event_peaktime"`
	EndTime   string   `json:"event_endtime"`
	GOESClass string   `json:"fl_goescls"`
	PeakFlux  *float64 `json:"fl_peakflux"`
	HGSX      *float64 `json:"hgs_x"`
	HGSY      *float64 `json:"hgs_y"`
	NOAAARNum *int     `json:"ar_noaanum"`
}

// ParseCatalog parses a HEK flare catalog document: a JSON array of flare
// records, as returned by an event search for one observation day. Events
// come back sorted by peak time.
func ParseCatalog(data []byte) ([]FlareEvent, error) {
	var raw []flareEventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("hek: parse flare catalog: %w", err)
	}

	events := make([]FlareEvent, 0, len(raw))
	for i, r := range raw {
		e := FlareEvent{GOESClass: r.GOESClass}
		var err error
		if e.StartTime, err = parseEventTime(r.StartTime); err != nil {
			return nil, fmt.Errorf("hek: record %d: %w", i, err)
		}
		if e.PeakTime, err = parseEventTime(r.PeakTime); err != nil {
			return nil, fmt.Errorf("hek: record %d: %w", i, err)
		}
		if e.EndTime, err = parseEventTime(r.EndTime); err != nil {
			return nil, fmt.Errorf("hek: record %d: %w", i, err)
		}
		if r.PeakFlux != nil {
			e.PeakFlux = *r.PeakFlux
		}
		if r.HGSX != nil {
			e.HGSX = *r.HGSX
		}
		if r.HGSY != nil {
			e.HGSY = *r.HGSY
		}
		if r.NOAAARNum != nil {
			e.NOAAARNum = *r.NOAAARNum
		}
		events = append(events, e)
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].PeakTime.Before(events[j].PeakTime)
	})
	return events, nil
}

func parseEventTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	// Some records carry fractional seconds.
	for _, layout := range []string{eventTimeFormat, "2006-01-02T15:04:05.000"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised event time %q", s)
}

// goesMagnitude converts a GOES class string (e.g. "M2.3") to a comparable
// magnitude on a log scale: each letter step is a factor of ten.
func goesMagnitude(class string) (float64, error) {
	if class == "" {
		return 0, fmt.Errorf("hek: empty GOES class")
	}
	letters := "ABCMX"
	idx := strings.IndexByte(letters, class[0])
	if idx < 0 {
		return 0, fmt.Errorf("hek: unknown GOES class letter in %q", class)
	}
	mult := 1.0
	if len(class) > 1 {
		v, err := strconv.ParseFloat(class[1:], 64)
		if err != nil {
			return 0, fmt.Errorf("hek: bad GOES class multiplier in %q: %w", class, err)
		}
		mult = v
	}
	scale := 1.0
	for i := 0; i < idx; i++ {
		scale *= 10
	}
	return scale * mult, nil
}

// FilterAboveClass keeps events strictly stronger than the given GOES class
// threshold (the search default is "B1.0"). Events with unparseable classes
// are dropped.
func FilterAboveClass(events []FlareEvent, threshold string) ([]FlareEvent, error) {
	limit, err := goesMagnitude(threshold)
	if err != nil {
		return nil, err
	}
	out := make([]FlareEvent, 0, len(events))
	for _, e := range events {
		mag, err := goesMagnitude(e.GOESClass)
		if err != nil {
			continue
		}
		if mag > limit {
			out = append(out, e)
		}
	}
	return out, nil
}

// SelectorList formats events for a selection list. An empty catalog yields
// the single "No events returned" entry.
func SelectorList(events []FlareEvent) []string {
	if len(events) == 0 {
		return []string{"No events returned"}
	}
	labels := make([]string, len(events))
	for i, e := range events {
		labels[i] = e.SelectorLabel()
	}
	return labels
}
