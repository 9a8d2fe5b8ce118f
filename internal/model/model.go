// Package model holds the fit-session container: which eruptive event is
// being analysed, which geometric model was fitted to the imagery, and the
// per-parameter measurement time series the fitting engine consumes.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/moonlight1509/pythea/internal/fitting"
	"github.com/moonlight1509/pythea/internal/units"
)

// Kind identifies the geometric model used for the 3D reconstruction.
type Kind string

const (
	Spheroid  Kind = "Spheroid"
	Ellipsoid Kind = "Ellipsoid"
	GCS       Kind = "GCS"
)

// timeFormat matches the export format of the measurement timestamps,
// microsecond resolution.
const timeFormat = "2006-01-02T15:04:05.000000"

// ParameterInfo describes one fittable parameter of a geometric model.
type ParameterInfo struct {
	Name  string // column name in the measurement table
	Label string // display label (h-apex, r-axis1, ...)
	Unit  string // units constant
}

// Parameters lists the fittable parameters per geometric model, in display
// order.
var Parameters = map[Kind][]ParameterInfo{
	Spheroid: {
		{Name: "height", Label: "h-apex", Unit: units.Rsun},
		{Name: "orthoaxis1", Label: "r-axis1", Unit: units.Rsun},
	},
	Ellipsoid: {
		{Name: "height", Label: "r-apex", Unit: units.Rsun},
		{Name: "orthoaxis1", Label: "r-axis1", Unit: units.Rsun},
		{Name: "orthoaxis2", Label: "r-axis2", Unit: units.Rsun},
	},
	GCS: {
		{Name: "height", Label: "h-apex", Unit: units.Rsun},
		{Name: "rappex", Label: "r-apex", Unit: units.Rsun},
	},
}

// Fittings is one fit session: the measurements of every model parameter over
// the reconstruction timestamps. Parameter values are aligned with Times;
// missing measurements are NaN and are dropped when a series is extracted.
type Fittings struct {
	SessionID     string
	EventSelected string
	DateProcess   time.Time
	Kind          Kind

	Times      []time.Time
	Parameters map[string][]float64
}

// New creates an empty fit session for the given event and geometric model.
func New(eventSelected string, dateProcess time.Time, kind Kind) *Fittings {
	return &Fittings{
		SessionID:     uuid.NewString(),
		EventSelected: eventSelected,
		DateProcess:   dateProcess,
		Kind:          kind,
		Parameters:    make(map[string][]float64),
	}
}

// ModelID derives the compact identifier used to name exported artifacts,
// from the event selector and the model kind.
func (f *Fittings) ModelID() string {
	r := strings.NewReplacer("-", "", ":", "", "|", "D", ".", "p")
	return r.Replace(f.EventSelected) + "M" + string(f.Kind)
}

// Add appends one measurement row: a timestamp plus the parameter values
// measured at it. Parameters absent from the row are recorded as missing.
// Rows must arrive in time order.
func (f *Fittings) Add(t time.Time, values map[string]float64) error {
	if n := len(f.Times); n > 0 && !t.After(f.Times[n-1]) {
		return fmt.Errorf("model: measurement at %v is not after the previous row", t)
	}

	for name := range values {
		if _, ok := f.Parameters[name]; !ok {
			// Backfill earlier rows where this parameter was not measured.
			f.Parameters[name] = nanSlice(len(f.Times))
		}
	}
	f.Times = append(f.Times, t)
	for name, col := range f.Parameters {
		v, ok := values[name]
		if !ok {
			v = math.NaN()
		}
		f.Parameters[name] = append(col, v)
	}
	return nil
}

// Series extracts the sample series for one parameter, skipping missing
// values.
func (f *Fittings) Series(param string) (fitting.SampleSeries, error) {
	col, ok := f.Parameters[param]
	if !ok {
		return nil, fmt.Errorf("model: no measurements for parameter %q", param)
	}
	series := make(fitting.SampleSeries, 0, len(col))
	for i, v := range col {
		if math.IsNaN(v) {
			continue
		}
		series = append(series, fitting.Sample{Time: f.Times[i], Value: v})
	}
	return series, nil
}

// ParameterNames returns the measured parameter names in sorted order.
func (f *Fittings) ParameterNames() []string {
	names := make([]string, 0, len(f.Parameters))
	for name := range f.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// JSON document layout for session export and import. The time column rides
// inside parameters next to the measurement columns.
type jsonDocument struct {
	SessionID        string        `json:"session_id,omitempty"`
	EventSelected    string        `json:"event_selected"`
	DateProcess      string        `json:"date_process"`
	GeometricalModel jsonGeomModel `json:"geometrical_model"`
}

type jsonGeomModel struct {
	Type       string                     `json:"type"`
	Parameters map[string]json.RawMessage `json:"parameters"`
}

// jsonColumn is a parameter column; missing values encode as null.
type jsonColumn []*float64

// ToJSON serializes the session. Times marshal in the export time format;
// missing measurements marshal as null.
func (f *Fittings) ToJSON() ([]byte, error) {
	params := make(map[string]json.RawMessage, len(f.Parameters)+1)
	for name, col := range f.Parameters {
		out := make(jsonColumn, len(col))
		for i, v := range col {
			if !math.IsNaN(v) {
				value := v
				out[i] = &value
			}
		}
		raw, err := json.Marshal(out)
		if err != nil {
			return nil, err
		}
		params[name] = raw
	}

	times := make([]string, len(f.Times))
	for i, t := range f.Times {
		times[i] = t.UTC().Format(timeFormat)
	}
	rawTimes, err := json.Marshal(times)
	if err != nil {
		return nil, err
	}
	params["time"] = rawTimes

	doc := jsonDocument{
		SessionID:     f.SessionID,
		EventSelected: f.EventSelected,
		DateProcess:   f.DateProcess.UTC().Format(timeFormat),
		GeometricalModel: jsonGeomModel{
			Type:       string(f.Kind),
			Parameters: params,
		},
	}
	return json.MarshalIndent(doc, "", " ")
}

// FromJSON parses a session document produced by ToJSON.
func FromJSON(data []byte) (*Fittings, error) {
	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("model: parse session document: %w", err)
	}

	f := &Fittings{
		SessionID:     doc.SessionID,
		EventSelected: doc.EventSelected,
		Kind:          Kind(doc.GeometricalModel.Type),
		Parameters:    make(map[string][]float64),
	}
	if f.SessionID == "" {
		f.SessionID = uuid.NewString()
	}

	var err error
	f.DateProcess, err = time.Parse(timeFormat, doc.DateProcess)
	if err != nil {
		// Older exports carry second resolution.
		f.DateProcess, err = time.Parse("2006-01-02T15:04:05", doc.DateProcess)
		if err != nil {
			return nil, fmt.Errorf("model: parse date_process: %w", err)
		}
	}

	rawParams := doc.GeometricalModel.Parameters
	rawTimes, ok := rawParams["time"]
	if !ok {
		return nil, fmt.Errorf("model: session document has no time column")
	}
	var times []string
	if err := json.Unmarshal(rawTimes, &times); err != nil {
		return nil, fmt.Errorf("model: parse time column: %w", err)
	}
	f.Times = make([]time.Time, len(times))
	for i, s := range times {
		t, err := time.Parse(timeFormat, s)
		if err != nil {
			return nil, fmt.Errorf("model: parse time %q: %w", s, err)
		}
		f.Times[i] = t.UTC()
	}

	for name, raw := range rawParams {
		if name == "time" {
			continue
		}
		var col jsonColumn
		if err := json.Unmarshal(raw, &col); err != nil {
			return nil, fmt.Errorf("model: parse parameter %q: %w", name, err)
		}
		if len(col) != len(f.Times) {
			return nil, fmt.Errorf("model: parameter %q has %d values for %d timestamps",
				name, len(col), len(f.Times))
		}
		values := make([]float64, len(col))
		for i, p := range col {
			if p == nil {
				values[i] = math.NaN()
			} else {
				values[i] = *p
			}
		}
		f.Parameters[name] = values
	}

	return f, nil
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
