package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"replaytrainer/internal/marketdata"
	"replaytrainer/internal/session"
	"replaytrainer/internal/store"
	"replaytrainer/internal/userstore"
)

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()
	dataDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dataDir, "kline_raw"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "stock_list.csv"), []byte("code,name\n600000,Test Bank\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	csvBody := "date,open,close,high,low,volume\n"
	for i := 0; i < 120; i++ {
		date := base.AddDate(0, 0, i)
		csvBody += date.Format("2006-01-02") + ",10,10.5,11,9,1000\n"
	}
	if err := os.WriteFile(filepath.Join(dataDir, "kline_raw", "600000.csv"), []byte(csvBody), 0o644); err != nil {
		t.Fatal(err)
	}

	provider := marketdata.NewCSVProvider(dataDir)

	usersDir := t.TempDir()
	users, err := userstore.New(usersDir, nil)
	if err != nil {
		t.Fatal(err)
	}

	historyFor := func(username string) (*store.SQLiteStore, error) {
		return users.History(username)
	}
	sessions := session.NewManager(provider, historyFor, nil)

	srv := NewServer(users, sessions, provider, nil)
	return httptest.NewServer(srv.Handler())
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestHealthEndpoint(t *testing.T) {
	ts := setupServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
}

func TestUserLifecycle(t *testing.T) {
	ts := setupServer(t)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/users", map[string]string{"username": "alice"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create user status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/api/users")
	if err != nil {
		t.Fatal(err)
	}
	list := decode[map[string][]string](t, resp)
	if len(list["users"]) != 1 || list["users"][0] != "alice" {
		t.Errorf("users = %v, want [alice]", list["users"])
	}

	resp, err = http.Get(ts.URL + "/api/users/alice/settings")
	if err != nil {
		t.Fatal(err)
	}
	cfg := decode[UserConfigJSON](t, resp)
	if cfg.DefaultInitialCapital != 100000 {
		t.Errorf("DefaultInitialCapital = %v, want 100000", cfg.DefaultInitialCapital)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/users/alice", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete user status = %d", resp.StatusCode)
	}
}

func TestTrainingLifecycle(t *testing.T) {
	ts := setupServer(t)
	defer ts.Close()

	postJSON(t, ts.URL+"/api/users", map[string]string{"username": "bob"}).Body.Close()

	resp := postJSON(t, ts.URL+"/api/training/start", StartTrainingRequest{
		Username:       "bob",
		InstrumentCode: "600000",
		StartDate:      "2020-02-19",
		AdjustmentMode: "none",
		InitialCapital: 100000,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start training status = %d", resp.StatusCode)
	}
	snap := decode[SnapshotJSON](t, resp)
	if snap.Session.InstrumentCode != "600000" {
		t.Fatalf("InstrumentCode = %q, want 600000", snap.Session.InstrumentCode)
	}
	id := snap.Session.ID

	resp, err := http.Get(ts.URL + "/api/training/" + id + "/data")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("data status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/api/training/"+id+"/trade", TradeRequest{Action: "buy", Quantity: 10})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("trade status = %d", resp.StatusCode)
	}
	tradeResp := decode[TradeResponse](t, resp)
	if tradeResp.Snapshot.Account.Position == nil {
		t.Error("expected open position after buy")
	}

	resp, err = http.Post(ts.URL+"/api/training/"+id+"/next", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("next status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/api/training/" + id + "/indicators/MACD")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("indicators status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Post(ts.URL+"/api/training/"+id+"/end", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("end status = %d", resp.StatusCode)
	}
	report := decode[SessionReportJSON](t, resp)
	if report.TotalTrades != 1 {
		t.Errorf("TotalTrades = %d, want 1", report.TotalTrades)
	}
}
