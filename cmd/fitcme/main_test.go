package main

import (
	"testing"
	"time"

	"github.com/moonlight1509/pythea/internal/model"
)

func testSession(t *testing.T) *model.Fittings {
	t.Helper()
	t0 := time.Date(2021, 10, 28, 15, 0, 0, 0, time.UTC)
	f := model.New("FLX1.0|2021-10-28T15:35:00", t0, model.Spheroid)
	for i, h := range []float64{2.4, 3.1, 4.0, 5.2} {
		if err := f.Add(t0.Add(time.Duration(i)*10*time.Minute),
			map[string]float64{"height": h, "orthoaxis1": h / 2}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	return f
}

func TestSelectParameters_Default(t *testing.T) {
	session := testSession(t)
	names := selectParameters(session, "")
	want := []string{"height", "orthoaxis1"}
	if len(names) != len(want) {
		t.Fatalf("selectParameters = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("selectParameters[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestSelectParameters_Explicit(t *testing.T) {
	session := testSession(t)
	names := selectParameters(session, " height , orthoaxis1")
	if len(names) != 2 || names[0] != "height" || names[1] != "orthoaxis1" {
		t.Errorf("selectParameters = %v, want [height orthoaxis1]", names)
	}
}

func TestParameterLabel(t *testing.T) {
	if got := parameterLabel(model.Spheroid, "height"); got != "h-apex" {
		t.Errorf("parameterLabel(Spheroid, height) = %q, want h-apex", got)
	}
	if got := parameterLabel(model.GCS, "rappex"); got != "r-apex" {
		t.Errorf("parameterLabel(GCS, rappex) = %q, want r-apex", got)
	}
	// Unknown parameters fall back to their raw name.
	if got := parameterLabel(model.Spheroid, "kappa"); got != "kappa" {
		t.Errorf("parameterLabel fallback = %q, want kappa", got)
	}
}
