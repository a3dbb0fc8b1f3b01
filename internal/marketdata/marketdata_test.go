package marketdata

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"replaytrainer/internal/domain"
)

func writeTestData(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, "kline_raw"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "factor"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "stock_list.csv"), []byte("code,name\n600000,Test Bank\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	bars := "date,open,close,high,low,volume\n" +
		"2020-01-02,10.0,10.5,10.6,9.9,100000\n" +
		"2020-01-03,10.5,10.8,10.9,10.4,120000\n"
	if err := os.WriteFile(filepath.Join(dir, "kline_raw", "600000.csv"), []byte(bars), 0o644); err != nil {
		t.Fatal(err)
	}
	factors := "date,factor\n2020-01-02,1.0\n2020-01-03,1.02\n"
	if err := os.WriteFile(filepath.Join(dir, "factor", "600000.csv"), []byte(factors), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCSVProviderLoadBars(t *testing.T) {
	dir := t.TempDir()
	writeTestData(t, dir)
	p := NewCSVProvider(dir)

	bars, err := p.LoadBars(context.Background(), "600000")
	if err != nil {
		t.Fatalf("LoadBars() error = %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("len(bars) = %d, want 2", len(bars))
	}
	if bars[0].Open != 10.0 || bars[0].Close != 10.5 {
		t.Errorf("unexpected first bar: %+v", bars[0])
	}

	// Second call should hit the in-memory/parquet cache.
	bars2, err := p.LoadBars(context.Background(), "600000")
	if err != nil {
		t.Fatalf("LoadBars() (cached) error = %v", err)
	}
	if len(bars2) != len(bars) {
		t.Errorf("cached read returned different length: %d vs %d", len(bars2), len(bars))
	}
}

func TestCSVProviderListInstruments(t *testing.T) {
	dir := t.TempDir()
	writeTestData(t, dir)
	p := NewCSVProvider(dir)

	instruments, err := p.ListInstruments(context.Background())
	if err != nil {
		t.Fatalf("ListInstruments() error = %v", err)
	}
	if len(instruments) != 1 || instruments[0].Code != "600000" {
		t.Fatalf("unexpected instruments: %+v", instruments)
	}
}

func TestCSVProviderValidate(t *testing.T) {
	dir := t.TempDir()
	writeTestData(t, dir)
	p := NewCSVProvider(dir)
	ctx := context.Background()

	if err := p.Validate(ctx, "999999", mustDate("2020-01-02")); err != domain.ErrInstrumentNotFound {
		t.Errorf("Validate() unknown code error = %v, want ErrInstrumentNotFound", err)
	}
	if err := p.Validate(ctx, "600000", mustDate("2019-01-01")); err != domain.ErrInvalidDateRange {
		t.Errorf("Validate() out-of-range error = %v, want ErrInvalidDateRange", err)
	}
	if err := p.Validate(ctx, "600000", mustDate("2020-01-02")); err != nil {
		t.Errorf("Validate() valid date error = %v, want nil", err)
	}
}

func TestSectorPrefixes(t *testing.T) {
	cases := map[domain.Sector][]string{
		domain.SectorMain: {"60", "000"},
		domain.SectorGEM:  {"30"},
		domain.SectorSME:  {"002"},
		domain.SectorAll:  nil,
	}
	for sector, want := range cases {
		got := sectorPrefixes(sector)
		if len(got) != len(want) {
			t.Errorf("sectorPrefixes(%v) = %v, want %v", sector, got, want)
		}
	}
}

func mustDate(s string) time.Time {
	tm, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return tm
}
