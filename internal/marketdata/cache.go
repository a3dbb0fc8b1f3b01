package marketdata

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"replaytrainer/internal/domain"
)

// barRecord is the on-disk Parquet schema for a cached raw bar.
type barRecord struct {
	Date   int64   `parquet:"date,timestamp(millisecond)"`
	Open   float64 `parquet:"open"`
	High   float64 `parquet:"high"`
	Low    float64 `parquet:"low"`
	Close  float64 `parquet:"close"`
	Volume int64   `parquet:"volume"`
}

// factorRecord is the on-disk Parquet schema for a cached adjustment factor.
type factorRecord struct {
	Date   int64   `parquet:"date,timestamp(millisecond)"`
	Factor float64 `parquet:"factor"`
}

// parquetCache caches parsed bar and factor slices for the lifetime of the
// process, in memory first and on disk second, so a second session on the
// same instrument skips re-parsing the source CSV. Entries are never
// invalidated: once a table is cached in memory or in its Parquet file,
// later changes to the source CSV are not picked up.
type parquetCache struct {
	dir string

	mu      sync.RWMutex
	bars    map[string][]domain.Bar
	factors map[string][]domain.AdjustFactor
}

func newParquetCache(dir string) *parquetCache {
	return &parquetCache{
		dir:     dir,
		bars:    make(map[string][]domain.Bar),
		factors: make(map[string][]domain.AdjustFactor),
	}
}

func (c *parquetCache) loadBars(code string) ([]domain.Bar, bool) {
	c.mu.RLock()
	if bars, ok := c.bars[code]; ok {
		c.mu.RUnlock()
		return bars, true
	}
	c.mu.RUnlock()

	path := c.barPath(code)
	records, err := readParquetFile[barRecord](path)
	if err != nil || len(records) == 0 {
		return nil, false
	}
	bars := make([]domain.Bar, len(records))
	for i, r := range records {
		bars[i] = domain.Bar{
			Date:   time.UnixMilli(r.Date).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}

	c.mu.Lock()
	c.bars[code] = bars
	c.mu.Unlock()
	return bars, true
}

func (c *parquetCache) storeBars(code string, bars []domain.Bar) {
	c.mu.Lock()
	c.bars[code] = bars
	c.mu.Unlock()

	records := make([]barRecord, len(bars))
	for i, b := range bars {
		records[i] = barRecord{
			Date:   b.Date.UnixMilli(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}
	_ = writeParquetFile(c.barPath(code), records)
}

func (c *parquetCache) loadFactors(code string) ([]domain.AdjustFactor, bool) {
	c.mu.RLock()
	if factors, ok := c.factors[code]; ok {
		c.mu.RUnlock()
		return factors, true
	}
	c.mu.RUnlock()

	records, err := readParquetFile[factorRecord](c.factorPath(code))
	if err != nil || len(records) == 0 {
		return nil, false
	}
	factors := make([]domain.AdjustFactor, len(records))
	for i, r := range records {
		factors[i] = domain.AdjustFactor{Date: time.UnixMilli(r.Date).UTC(), Factor: r.Factor}
	}

	c.mu.Lock()
	c.factors[code] = factors
	c.mu.Unlock()
	return factors, true
}

func (c *parquetCache) storeFactors(code string, factors []domain.AdjustFactor) {
	c.mu.Lock()
	c.factors[code] = factors
	c.mu.Unlock()

	records := make([]factorRecord, len(factors))
	for i, f := range factors {
		records[i] = factorRecord{Date: f.Date.UnixMilli(), Factor: f.Factor}
	}
	_ = writeParquetFile(c.factorPath(code), records)
}

func (c *parquetCache) barPath(code string) string {
	return filepath.Join(c.dir, "bars", code+".parquet")
}

func (c *parquetCache) factorPath(code string) string {
	return filepath.Join(c.dir, "factors", code+".parquet")
}

func writeParquetFile[T any](path string, records []T) error {
	if len(records) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	return parquet.ReadFile[T](path)
}
