package marketdata

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"replaytrainer/internal/domain"
)

// Compile-time interface check.
var _ Provider = (*CSVProvider)(nil)

// CSVProvider reads instrument lists, raw bars, and adjustment factors from
// a directory laid out as:
//
//	{dataDir}/stock_list.csv       code,name
//	{dataDir}/stock_names.json     {"code": "name", ...} (optional override)
//	{dataDir}/kline_raw/{code}.csv date,open,close,high,low,volume,...
//	{dataDir}/factor/{code}.csv    date,factor
//
// Parsed results are cached in memory per process; a *parquetCache layers
// an on-disk columnar shadow copy in front of the CSV parse so repeat
// sessions on the same instrument avoid re-parsing text.
type CSVProvider struct {
	dataDir string
	cache   *parquetCache

	mu    sync.Mutex
	names map[string]string
	rng   *rand.Rand
}

// NewCSVProvider creates a CSVProvider rooted at dataDir.
func NewCSVProvider(dataDir string) *CSVProvider {
	return &CSVProvider{
		dataDir: dataDir,
		cache:   newParquetCache(filepath.Join(dataDir, "cache")),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *CSVProvider) ListInstruments(_ context.Context) ([]domain.Instrument, error) {
	f, err := os.Open(filepath.Join(p.dataDir, "stock_list.csv"))
	if err != nil {
		return nil, fmt.Errorf("marketdata: reading stock list: %w", err)
	}
	defer f.Close()

	names, err := p.stockNames()
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("marketdata: parsing stock list: %w", err)
	}

	var out []domain.Instrument
	for i, row := range rows {
		if i == 0 || len(row) < 1 {
			continue // header
		}
		code := strings.TrimSpace(row[0])
		if code == "" {
			continue
		}
		name := names[code]
		if name == "" && len(row) > 1 {
			name = strings.TrimSpace(row[1])
		}
		if name == "" {
			name = fmt.Sprintf("股票%s", code)
		}
		out = append(out, domain.Instrument{Code: code, Name: name})
	}
	if len(out) == 0 {
		return nil, domain.ErrNoInstruments
	}
	return out, nil
}

func (p *CSVProvider) stockNames() (map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.names != nil {
		return p.names, nil
	}
	p.names = map[string]string{}

	data, err := os.ReadFile(filepath.Join(p.dataDir, "stock_names.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return p.names, nil
		}
		return nil, fmt.Errorf("marketdata: reading stock names: %w", err)
	}
	if err := json.Unmarshal(data, &p.names); err != nil {
		return nil, fmt.Errorf("marketdata: parsing stock names: %w", err)
	}
	return p.names, nil
}

func (p *CSVProvider) Validate(ctx context.Context, code string, date time.Time) error {
	bars, err := p.LoadBars(ctx, code)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		return domain.ErrInstrumentNotFound
	}
	first, last := bars[0].Date, bars[len(bars)-1].Date
	if date.Before(first) || date.After(last) {
		return domain.ErrInvalidDateRange
	}
	return nil
}

// sectorPrefixes mirrors the original implementation's code-prefix rules
// for the A-share main board, ChiNext (GEM), and SME boards.
func sectorPrefixes(s domain.Sector) []string {
	switch s {
	case domain.SectorMain:
		return []string{"60", "000"}
	case domain.SectorGEM:
		return []string{"30"}
	case domain.SectorSME:
		return []string{"002"}
	default:
		return nil
	}
}

func (p *CSVProvider) RandomPick(ctx context.Context, sector domain.Sector, yearRange string) (string, time.Time, error) {
	y1, y2, err := parseYearRange(yearRange)
	if err != nil {
		return "", time.Time{}, err
	}

	instruments, err := p.ListInstruments(ctx)
	if err != nil {
		return "", time.Time{}, err
	}

	prefixes := sectorPrefixes(sector)
	candidates := instruments[:0:0]
	for _, inst := range instruments {
		if len(prefixes) == 0 {
			candidates = append(candidates, inst)
			continue
		}
		for _, pre := range prefixes {
			if strings.HasPrefix(inst.Code, pre) {
				candidates = append(candidates, inst)
				break
			}
		}
	}
	if len(candidates) == 0 {
		candidates = instruments
	}

	const maxAttempts = 25
	for attempt := 0; attempt < maxAttempts; attempt++ {
		inst := candidates[p.rng.Intn(len(candidates))]
		bars, err := p.LoadBars(ctx, inst.Code)
		if err != nil || len(bars) == 0 {
			continue
		}
		year := y1
		if y2 > y1 {
			year = y1 + p.rng.Intn(y2-y1+1)
		}
		start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		if start.Before(bars[0].Date) {
			start = bars[0].Date
		}
		if start.After(bars[len(bars)-1].Date) {
			continue
		}
		return inst.Code, start, nil
	}

	// Fall back to a known-good default, matching the original
	// implementation's last-resort behavior.
	return "000001", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), nil
}

func parseYearRange(r string) (int, int, error) {
	parts := strings.SplitN(r, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("marketdata: invalid year range %q", r)
	}
	y1, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	y2, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("marketdata: invalid year range %q", r)
	}
	return y1, y2, nil
}

func (p *CSVProvider) LoadBars(_ context.Context, code string) ([]domain.Bar, error) {
	if bars, ok := p.cache.loadBars(code); ok {
		return bars, nil
	}

	path := filepath.Join(p.dataDir, "kline_raw", code+".csv")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrInstrumentNotFound
		}
		return nil, fmt.Errorf("marketdata: reading bars for %s: %w", code, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("marketdata: parsing bars for %s: %w", code, err)
	}

	// Raw CSV column order: date, open, close, high, low, volume, ...
	bars := make([]domain.Bar, 0, len(rows))
	for i, row := range rows {
		if i == 0 || len(row) < 6 {
			continue
		}
		date, err := time.Parse("2006-01-02", strings.TrimSpace(row[0]))
		if err != nil {
			continue
		}
		open, _ := strconv.ParseFloat(row[1], 64)
		closeP, _ := strconv.ParseFloat(row[2], 64)
		high, _ := strconv.ParseFloat(row[3], 64)
		low, _ := strconv.ParseFloat(row[4], 64)
		volume, _ := strconv.ParseFloat(row[5], 64)
		bars = append(bars, domain.Bar{
			Date:   date,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closeP,
			Volume: int64(volume),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	p.cache.storeBars(code, bars)
	return bars, nil
}

func (p *CSVProvider) LoadFactors(_ context.Context, code string) ([]domain.AdjustFactor, error) {
	if factors, ok := p.cache.loadFactors(code); ok {
		return factors, nil
	}

	path := filepath.Join(p.dataDir, "factor", code+".csv")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// A missing factor table means no adjustment ever applies;
			// the replay engine fills a 1.0 factor for every bar.
			return nil, nil
		}
		return nil, fmt.Errorf("marketdata: reading factors for %s: %w", code, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("marketdata: parsing factors for %s: %w", code, err)
	}

	factors := make([]domain.AdjustFactor, 0, len(rows))
	for i, row := range rows {
		if i == 0 || len(row) < 2 {
			continue
		}
		date, err := time.Parse("2006-01-02", strings.TrimSpace(row[0]))
		if err != nil {
			continue
		}
		factor, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			continue
		}
		factors = append(factors, domain.AdjustFactor{Date: date, Factor: factor})
	}
	sort.Slice(factors, func(i, j int) bool { return factors[i].Date.Before(factors[j].Date) })

	p.cache.storeFactors(code, factors)
	return factors, nil
}
