package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/USEPA-clone/nsink/internal/service"
	"github.com/USEPA-clone/nsink/internal/store"
	"github.com/USEPA-clone/nsink/internal/testutil"
)

// seededConfig returns a config whose store holds the synthetic watershed.
func seededConfig(t *testing.T) *Config {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Data.Path = filepath.Join(t.TempDir(), "nsink.db")
	cfg.Sampling.Density = 20
	cfg.Sampling.MinSamples = 1
	cfg.Sampling.Workers = 2

	db, err := store.Open(cfg.Data.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := db.SavePrepared(testutil.Watershed(t)); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func testOpts(cfg *Config) []Option {
	return []Option{WithConfig(cfg), WithLogOutput(io.Discard)}
}

func TestRequiresConfig(t *testing.T) {
	if err := Removal(context.Background(), io.Discard, WithLogOutput(io.Discard)); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestRemoval(t *testing.T) {
	cfg := seededConfig(t)
	var out bytes.Buffer
	if err := Removal(context.Background(), &out, testOpts(cfg)...); err != nil {
		t.Fatal(err)
	}
	var rep RemovalReport
	if err := json.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.HUC != "010100020101" || len(rep.Network) != 4 || len(rep.Lakes) != 1 || len(rep.Land) != 2 {
		t.Errorf("report = %d network, %d lakes, %d land", len(rep.Network), len(rep.Lakes), len(rep.Land))
	}
	for i := 1; i < len(rep.Network); i++ {
		if rep.Network[i-1].COMID >= rep.Network[i].COMID {
			t.Fatal("network rows not ordered by COMID")
		}
	}
}

func TestRemoval_EmptyStore(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Data.Path = filepath.Join(t.TempDir(), "empty.db")
	if err := Removal(context.Background(), io.Discard, testOpts(cfg)...); err == nil {
		t.Fatal("expected error for an empty store")
	}
}

func TestFlowPath(t *testing.T) {
	cfg := seededConfig(t)
	var out bytes.Buffer
	if err := FlowPath(context.Background(), 5, 85, &out, testOpts(cfg)...); err != nil {
		t.Fatal(err)
	}
	var res struct {
		Rows              []json.RawMessage `json:"rows"`
		CumulativeRemoval float64           `json:"cumulative_removal"`
	}
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) == 0 || res.CumulativeRemoval <= 0 || res.CumulativeRemoval > 100 {
		t.Errorf("rows = %d, cumulative = %v", len(res.Rows), res.CumulativeRemoval)
	}

	if err := FlowPath(context.Background(), -5, 50, io.Discard, testOpts(cfg)...); err == nil {
		t.Error("expected error outside the watershed")
	}
}

func TestFlowPath_ConfiguredPolicies(t *testing.T) {
	cfg := seededConfig(t)
	cfg.Removal.HydricThreshold = 100
	cfg.Removal.OffNetworkCanals = "removal"

	var out bytes.Buffer
	if err := FlowPath(context.Background(), 5, 85, &out, testOpts(cfg)...); err != nil {
		t.Fatal(err)
	}
	// The canal column now removes everything that crosses it.
	var res struct {
		CumulativeRemoval float64 `json:"cumulative_removal"`
	}
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.CumulativeRemoval != 100 {
		t.Errorf("cumulative = %v, want 100", res.CumulativeRemoval)
	}
}

func ptr[T any](v T) *T { return &v }

func TestStaticMaps_Export(t *testing.T) {
	cfg := seededConfig(t)
	dir := filepath.Join(t.TempDir(), "maps")
	var out bytes.Buffer
	if err := StaticMaps(context.Background(), service.StaticMapRequest{Seed: ptr(uint64(3))}, dir, &out, testOpts(cfg)...); err != nil {
		t.Fatal(err)
	}
	var run store.Run
	if err := json.Unmarshal(out.Bytes(), &run); err != nil {
		t.Fatal(err)
	}
	if run.ID == 0 || run.Density != 20 || run.Seed != 3 {
		t.Errorf("run = %+v", run)
	}
	for _, name := range service.MapNames {
		if _, err := os.Stat(filepath.Join(dir, name+".asc")); err != nil {
			t.Errorf("%s not exported: %v", name, err)
		}
	}
}

func TestReadyHandler(t *testing.T) {
	cfg := seededConfig(t)
	app, logger, err := newApplication(testOpts(cfg))
	if err != nil {
		t.Fatal(err)
	}
	svc, db, err := app.openService(logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	h := readyHandler(svc)
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("before load: status = %d", rec.Code)
	}

	loadInitial(context.Background(), svc, logger)
	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("after load: status = %d", rec.Code)
	}
}
