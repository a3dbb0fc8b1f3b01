package store

const schemaDDL = `
CREATE TABLE IF NOT EXISTS training_sessions (
	session_id          TEXT PRIMARY KEY,
	username            TEXT NOT NULL,
	stock_code          TEXT NOT NULL,
	stock_name          TEXT NOT NULL DEFAULT '',
	start_date          TEXT NOT NULL,
	end_date            TEXT NOT NULL,
	mode                TEXT NOT NULL,
	initial_capital     REAL NOT NULL,
	final_capital       REAL NOT NULL DEFAULT 0,
	total_return        REAL NOT NULL DEFAULT 0,
	total_trades        INTEGER NOT NULL DEFAULT 0,
	trade_win_rate      REAL NOT NULL DEFAULT 0,
	session_win_rate    REAL NOT NULL DEFAULT 0,
	total_commission    REAL NOT NULL DEFAULT 0,
	status              TEXT NOT NULL DEFAULT 'active',
	commission_settings TEXT NOT NULL DEFAULT '{}',
	created_at          TEXT NOT NULL,
	completed_at        TEXT
);

CREATE TABLE IF NOT EXISTS bar_history (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id      TEXT NOT NULL REFERENCES training_sessions(session_id),
	bar_id          INTEGER NOT NULL,
	date            TEXT NOT NULL,
	open_price      REAL NOT NULL,
	high_price      REAL NOT NULL,
	low_price       REAL NOT NULL,
	close_price     REAL NOT NULL,
	volume          INTEGER NOT NULL,
	total_assets    REAL NOT NULL,
	available_cash  REAL NOT NULL,
	position_value  REAL NOT NULL,
	floating_pnl    REAL NOT NULL,
	total_shares    INTEGER NOT NULL,
	average_cost    REAL NOT NULL,
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bar_history_session ON bar_history(session_id, bar_id);

CREATE TABLE IF NOT EXISTS trade_history (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id           TEXT NOT NULL REFERENCES training_sessions(session_id),
	bar_id               INTEGER NOT NULL,
	trade_date           TEXT NOT NULL,
	action               TEXT NOT NULL,
	quantity             INTEGER NOT NULL,
	price                REAL NOT NULL,
	amount               REAL NOT NULL,
	commission           REAL NOT NULL,
	stamp_tax            REAL NOT NULL,
	net_amount           REAL NOT NULL,
	total_assets_before  REAL NOT NULL,
	total_assets_after   REAL NOT NULL,
	created_at           TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trade_history_session ON trade_history(session_id, bar_id);

CREATE TABLE IF NOT EXISTS position_lots (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id      TEXT NOT NULL REFERENCES training_sessions(session_id),
	buy_bar_id      INTEGER NOT NULL,
	buy_date        TEXT NOT NULL,
	available_date  TEXT NOT NULL,
	quantity        INTEGER NOT NULL,
	net_cost        REAL NOT NULL,
	updated_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_position_lots_session ON position_lots(session_id);

CREATE TABLE IF NOT EXISTS user_statistics (
	username                 TEXT PRIMARY KEY,
	total_sessions           INTEGER NOT NULL DEFAULT 0,
	completed_sessions       INTEGER NOT NULL DEFAULT 0,
	total_trades             INTEGER NOT NULL DEFAULT 0,
	total_return_sum         REAL NOT NULL DEFAULT 0,
	best_return              REAL NOT NULL DEFAULT 0,
	worst_return             REAL NOT NULL DEFAULT 0,
	avg_trade_win_rate       REAL NOT NULL DEFAULT 0,
	avg_session_win_rate     REAL NOT NULL DEFAULT 0,
	total_commission_paid    REAL NOT NULL DEFAULT 0,
	last_updated             TEXT NOT NULL
);
`
