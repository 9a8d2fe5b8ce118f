// Command fitcme fits kinematic curves to the measurement series of a stored
// fit session and writes the fitted curves, plots and an HTML report.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/moonlight1509/pythea/internal/config"
	"github.com/moonlight1509/pythea/internal/fitting"
	"github.com/moonlight1509/pythea/internal/model"
	"github.com/moonlight1509/pythea/internal/plotting"
	"github.com/moonlight1509/pythea/internal/store"
	"github.com/moonlight1509/pythea/internal/version"
)

func main() {
	sessionPath := flag.String("session", "", "path to a fit-session JSON document")
	sessionID := flag.String("session-id", "", "load the session from the store instead of a file")
	configPath := flag.String("config", "", "optional fitting defaults JSON")
	params := flag.String("params", "", "comma-separated parameters to fit (default: all for the model)")
	strategy := flag.String("type", "", "fit strategy override: poly or spline")
	order := flag.Int("order", 0, "fit order override")
	smooth := flag.Float64("smooth", -1, "spline smoothing override")
	outDir := flag.String("out", "out", "output directory for plots, curves and the report")
	dbPath := flag.String("db", "", "session store path (default from config)")
	noStore := flag.Bool("no-store", false, "skip recording the run in the store")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("fitcme %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *dbPath == "" {
		*dbPath = cfg.GetDatabasePath()
	}

	var db *store.Store
	if !*noStore || *sessionID != "" {
		db, err = store.Open(*dbPath)
		if err != nil {
			log.Fatalf("open store: %v", err)
		}
		defer db.Close()
	}

	session, err := loadSession(db, *sessionPath, *sessionID)
	if err != nil {
		log.Fatalf("load session: %v", err)
	}
	log.Printf("session %s: event %s, model %s, %d measurement rows",
		session.SessionID, session.EventSelected, session.Kind, len(session.Times))

	fitCfg := cfg.FitConfig(string(session.Kind))
	if *strategy != "" {
		fitCfg.Kind = fitting.Kind(*strategy)
	}
	if *order > 0 {
		fitCfg.Order = *order
	}
	if *smooth >= 0 {
		fitCfg.Smoothing = *smooth
	}
	if err := fitCfg.Validate(); err != nil {
		log.Fatalf("fit configuration: %v", err)
	}

	names := selectParameters(session, *params)
	if len(names) == 0 {
		log.Fatalf("session has no measurements for the requested parameters")
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}

	plots := make([]plotting.ParameterPlot, 0, len(names))
	for _, name := range names {
		series, err := session.Series(name)
		if err != nil {
			log.Fatalf("extract series %s: %v", name, err)
		}

		pp := plotting.ParameterPlot{Label: parameterLabel(session.Kind, name), Samples: series}
		res, err := fitting.Fit(series, fitCfg)
		switch {
		case err == nil:
			pp.Result = res
			if err := writeCurve(*outDir, session, name, fitCfg, res); err != nil {
				log.Fatalf("write curve for %s: %v", name, err)
			}
			if db != nil && !*noStore {
				if err := db.SaveFitResult(session.SessionID, name, fitCfg, res); err != nil {
					log.Fatalf("store fit result for %s: %v", name, err)
				}
			}
			log.Printf("fitted %s: %s order %d, %d samples", name, fitCfg.Kind, fitCfg.Order, len(series))
		case errors.Is(err, fitting.ErrUnderdeterminedFit), errors.Is(err, fitting.ErrDegenerateInput):
			// Not enough samples: the parameter still appears in the height
			// plot as a raw line.
			log.Printf("skipping fit for %s: %v", name, err)
		default:
			log.Fatalf("fit %s: %v", name, err)
		}
		plots = append(plots, pp)
	}

	if db != nil && !*noStore {
		if err := db.SaveSession(session); err != nil {
			log.Fatalf("store session: %v", err)
		}
	}

	title := fmt.Sprintf("Event: %s | %s%d", session.EventSelected, fitCfg.Kind, fitCfg.Order)
	if err := writeFigures(*outDir, session, title, plots); err != nil {
		log.Fatalf("write figures: %v", err)
	}
	log.Printf("✓ Output in %s", *outDir)
}

// loadSession reads the session from a JSON file or from the store.
func loadSession(db *store.Store, path, id string) (*model.Fittings, error) {
	switch {
	case path != "" && id != "":
		return nil, fmt.Errorf("-session and -session-id are mutually exclusive")
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return model.FromJSON(data)
	case id != "":
		if db == nil {
			return nil, fmt.Errorf("no store open")
		}
		return db.GetSession(id)
	default:
		return nil, fmt.Errorf("one of -session or -session-id is required")
	}
}

// selectParameters resolves the parameter list: an explicit -params value, or
// every known parameter of the model that has measurements.
func selectParameters(session *model.Fittings, requested string) []string {
	if requested != "" {
		names := strings.Split(requested, ",")
		for i := range names {
			names[i] = strings.TrimSpace(names[i])
		}
		return names
	}
	var names []string
	for _, info := range model.Parameters[session.Kind] {
		if _, ok := session.Parameters[info.Name]; ok {
			names = append(names, info.Name)
		}
	}
	if len(names) == 0 {
		names = session.ParameterNames()
	}
	return names
}

func parameterLabel(kind model.Kind, name string) string {
	for _, info := range model.Parameters[kind] {
		if info.Name == name {
			return info.Label
		}
	}
	return name
}

// curveDocument is the exported fitted-curve JSON for one parameter.
type curveDocument struct {
	SessionID string          `json:"session_id"`
	Parameter string          `json:"parameter"`
	Config    fitting.Config  `json:"fit"`
	EvalTimes []time.Time     `json:"eval_times"`
	Curve     []float64       `json:"curve"`
	Upper     []float64       `json:"upper"`
	Lower     []float64       `json:"lower"`
	Envelope  *envelopeBounds `json:"envelope,omitempty"`
	Speed     speedDocument   `json:"speed"`
}

type envelopeBounds struct {
	Upper []float64 `json:"upper"`
	Lower []float64 `json:"lower"`
}

type speedDocument struct {
	Curve    []float64       `json:"curve"`
	Upper    []float64       `json:"upper"`
	Lower    []float64       `json:"lower"`
	Envelope *envelopeBounds `json:"envelope,omitempty"`
}

func writeCurve(dir string, session *model.Fittings, name string, cfg fitting.Config, res fitting.Result) error {
	vel := fitting.DeriveVelocity(res)
	upper, lower := res.Bands()
	doc := curveDocument{
		SessionID: session.SessionID,
		Parameter: name,
		Config:    cfg,
		EvalTimes: res.EvalAxis().EvalTimes(),
		Curve:     res.FittedCurve(),
		Upper:     upper,
		Lower:     lower,
		Speed: speedDocument{
			Curve: vel.Curve,
			Upper: vel.Upper,
			Lower: vel.Lower,
		},
	}
	if sr, ok := res.(*fitting.SplineResult); ok {
		doc.Envelope = &envelopeBounds{Upper: sr.EnvelopeUpper, Lower: sr.EnvelopeLower}
		doc.Speed.Envelope = &envelopeBounds{Upper: vel.EnvelopeUpper, Lower: vel.EnvelopeLower}
	}

	data, err := json.MarshalIndent(doc, "", " ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.json", session.ModelID(), name))
	return os.WriteFile(path, data, 0644)
}

func writeFigures(dir string, session *model.Fittings, title string, plots []plotting.ParameterPlot) error {
	height, err := plotting.HeightTime(title, plots)
	if err != nil {
		return err
	}
	if err := plotting.SavePNG(height, filepath.Join(dir, session.ModelID()+"_height.png")); err != nil {
		return err
	}

	anyFit := false
	for _, pp := range plots {
		if pp.Result != nil {
			anyFit = true
		}
	}
	if !anyFit {
		log.Printf("no fitted parameters; skipping speed plot and report")
		return nil
	}

	speed, err := plotting.SpeedTime(title, plots)
	if err != nil {
		return err
	}
	if err := plotting.SavePNG(speed, filepath.Join(dir, session.ModelID()+"_speed.png")); err != nil {
		return err
	}

	report, err := os.Create(filepath.Join(dir, session.ModelID()+"_report.html"))
	if err != nil {
		return err
	}
	defer report.Close()
	return plotting.WriteReport(report, title, plots)
}
