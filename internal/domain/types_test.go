package domain

import "testing"

func TestZeroValues(t *testing.T) {
	var bar Bar
	if bar.Open != 0 || bar.Volume != 0 {
		t.Error("expected zero-value Bar to have zero fields")
	}

	var cfg UserConfig
	if cfg.AdjustmentMode != "" {
		t.Error("expected zero-value UserConfig to have empty AdjustmentMode")
	}

	var stats UserStatistics
	if stats.AvgReturnPct() != 0 {
		t.Errorf("AvgReturnPct() on zero UserStatistics = %v, want 0", stats.AvgReturnPct())
	}
	if stats.SuccessRatePct() != 0 {
		t.Errorf("SuccessRatePct() on zero UserStatistics = %v, want 0", stats.SuccessRatePct())
	}
}

func TestDefaultUserConfig(t *testing.T) {
	cfg := DefaultUserConfig()
	if cfg.CommissionRate != 0.0003 {
		t.Errorf("CommissionRate = %v, want 0.0003", cfg.CommissionRate)
	}
	if cfg.MinCommission != 5.0 {
		t.Errorf("MinCommission = %v, want 5.0", cfg.MinCommission)
	}
	if cfg.StampTaxRate != 0.001 {
		t.Errorf("StampTaxRate = %v, want 0.001", cfg.StampTaxRate)
	}
	if cfg.AdjustmentMode != AdjustDynamicForward {
		t.Errorf("AdjustmentMode = %v, want %v", cfg.AdjustmentMode, AdjustDynamicForward)
	}
	if cfg.DefaultInitialCapital != 100000 {
		t.Errorf("DefaultInitialCapital = %v, want 100000", cfg.DefaultInitialCapital)
	}
	if !cfg.Preferences.AutoSave {
		t.Error("Preferences.AutoSave = false, want true")
	}
	if cfg.Preferences.PlaybackSpeed != 1.0 {
		t.Errorf("Preferences.PlaybackSpeed = %v, want 1.0", cfg.Preferences.PlaybackSpeed)
	}
}

func TestUserStatisticsDerived(t *testing.T) {
	s := UserStatistics{
		TotalSessions:     4,
		CompletedSessions: 2,
		TotalReturnSum:    30,
	}
	if got := s.AvgReturnPct(); got != 15 {
		t.Errorf("AvgReturnPct() = %v, want 15", got)
	}
	if got := s.SuccessRatePct(); got != 50 {
		t.Errorf("SuccessRatePct() = %v, want 50", got)
	}
}
