package journal

const Schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	time DATETIME NOT NULL,
	source TEXT NOT NULL,
	mode TEXT NOT NULL,
	symbol TEXT NOT NULL,
	qty REAL NOT NULL,
	side TEXT NOT NULL,
	order_type TEXT NOT NULL,
	time_in_force TEXT NOT NULL,
	outcome TEXT NOT NULL,
	order_id TEXT NOT NULL DEFAULT '',
	fill_price REAL NOT NULL DEFAULT 0,
	realized_pl REAL NOT NULL DEFAULT 0,
	reason TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_transactions_time ON transactions(time);
`
