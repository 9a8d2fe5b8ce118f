// Package store persists fit sessions and their fit results to a local
// sqlite database so runs can be revisited and compared.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/moonlight1509/pythea/internal/fitting"
	"github.com/moonlight1509/pythea/internal/model"
)

// ErrNotFound reports a lookup for a session or result that does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps the sqlite database holding sessions and fit results.
type Store struct {
	*sql.DB
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Single writer; avoids SQLITE_BUSY on concurrent tool invocations.
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set pragmas: %w", err)
	}

	s := &Store{db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// SessionInfo is a summary row for listing stored sessions.
type SessionInfo struct {
	SessionID     string
	EventSelected string
	Model         model.Kind
	DateProcess   time.Time
	CreatedAt     time.Time
}

// SaveSession inserts or replaces a fit session; the full document is kept as
// JSON so the measurement table round-trips exactly.
func (s *Store) SaveSession(f *model.Fittings) error {
	doc, err := f.ToJSON()
	if err != nil {
		return fmt.Errorf("store: encode session %s: %w", f.SessionID, err)
	}
	_, err = s.Exec(`
		INSERT OR REPLACE INTO sessions
			(session_id, event_selected, geometric_model, date_process, document)
		VALUES (?, ?, ?, ?, ?)`,
		f.SessionID, f.EventSelected, string(f.Kind), f.DateProcess.UTC(), string(doc))
	if err != nil {
		return fmt.Errorf("store: save session %s: %w", f.SessionID, err)
	}
	return nil
}

// GetSession loads a stored session by ID.
func (s *Store) GetSession(sessionID string) (*model.Fittings, error) {
	var doc string
	err := s.QueryRow(`SELECT document FROM sessions WHERE session_id = ?`, sessionID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session %s: %w", sessionID, err)
	}
	return model.FromJSON([]byte(doc))
}

// ListSessions returns summaries of all stored sessions, newest first.
func (s *Store) ListSessions() ([]SessionInfo, error) {
	rows, err := s.Query(`
		SELECT session_id, event_selected, geometric_model, date_process, created_at
		FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var kind string
		if err := rows.Scan(&info.SessionID, &info.EventSelected, &kind,
			&info.DateProcess, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan session row: %w", err)
		}
		info.Model = model.Kind(kind)
		out = append(out, info)
	}
	return out, rows.Err()
}

// FitRecord is one stored fit result. Envelope bands are nil for polynomial
// fits.
type FitRecord struct {
	ResultID  int64
	SessionID string
	Parameter string
	Config    fitting.Config
	EvalTimes []time.Time
	Curve     []float64
	Upper     []float64
	Lower     []float64

	EnvelopeUpper []float64
	EnvelopeLower []float64

	CreatedAt time.Time
}

// SaveFitResult records one fit of a session parameter.
func (s *Store) SaveFitResult(sessionID, parameter string, cfg fitting.Config, res fitting.Result) error {
	evalTimes, err := json.Marshal(res.EvalAxis().EvalTimes())
	if err != nil {
		return fmt.Errorf("store: encode eval axis: %w", err)
	}
	upper, lower := res.Bands()
	curveJSON, err := marshalFloats(res.FittedCurve())
	if err != nil {
		return err
	}
	upperJSON, err := marshalFloats(upper)
	if err != nil {
		return err
	}
	lowerJSON, err := marshalFloats(lower)
	if err != nil {
		return err
	}

	var envUpperJSON, envLowerJSON sql.NullString
	if sr, ok := res.(*fitting.SplineResult); ok {
		raw, err := marshalFloats(sr.EnvelopeUpper)
		if err != nil {
			return err
		}
		envUpperJSON = sql.NullString{String: raw, Valid: true}
		raw, err = marshalFloats(sr.EnvelopeLower)
		if err != nil {
			return err
		}
		envLowerJSON = sql.NullString{String: raw, Valid: true}
	}

	_, err = s.Exec(`
		INSERT INTO fit_results
			(session_id, parameter, strategy, fit_order, smoothing,
			 eval_times, curve, band_upper, band_lower, envelope_upper, envelope_lower)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, parameter, string(cfg.Kind), cfg.Order, cfg.Smoothing,
		string(evalTimes), curveJSON, upperJSON, lowerJSON, envUpperJSON, envLowerJSON)
	if err != nil {
		return fmt.Errorf("store: save fit result for %s/%s: %w", sessionID, parameter, err)
	}
	return nil
}

// ListFitResults returns the stored fits for a session, oldest first.
func (s *Store) ListFitResults(sessionID string) ([]FitRecord, error) {
	rows, err := s.Query(`
		SELECT result_id, session_id, parameter, strategy, fit_order, smoothing,
		       eval_times, curve, band_upper, band_lower,
		       envelope_upper, envelope_lower, created_at
		FROM fit_results WHERE session_id = ? ORDER BY result_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: list fit results for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []FitRecord
	for rows.Next() {
		var rec FitRecord
		var strategy string
		var evalTimes, curve, upper, lower string
		var envUpper, envLower sql.NullString
		if err := rows.Scan(&rec.ResultID, &rec.SessionID, &rec.Parameter,
			&strategy, &rec.Config.Order, &rec.Config.Smoothing,
			&evalTimes, &curve, &upper, &lower,
			&envUpper, &envLower, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan fit result row: %w", err)
		}
		rec.Config.Kind = fitting.Kind(strategy)

		if err := json.Unmarshal([]byte(evalTimes), &rec.EvalTimes); err != nil {
			return nil, fmt.Errorf("store: decode eval axis: %w", err)
		}
		if rec.Curve, err = unmarshalFloats(curve); err != nil {
			return nil, err
		}
		if rec.Upper, err = unmarshalFloats(upper); err != nil {
			return nil, err
		}
		if rec.Lower, err = unmarshalFloats(lower); err != nil {
			return nil, err
		}
		if envUpper.Valid {
			if rec.EnvelopeUpper, err = unmarshalFloats(envUpper.String); err != nil {
				return nil, err
			}
		}
		if envLower.Valid {
			if rec.EnvelopeLower, err = unmarshalFloats(envLower.String); err != nil {
				return nil, err
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func marshalFloats(v []float64) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("store: encode float column: %w", err)
	}
	return string(raw), nil
}

func unmarshalFloats(raw string) ([]float64, error) {
	var v []float64
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("store: decode float column: %w", err)
	}
	return v, nil
}
