package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create agents and calls",
		SQL: `
			CREATE TABLE agents (
				id                 INTEGER PRIMARY KEY AUTOINCREMENT,
				name               TEXT NOT NULL,
				phone_number       TEXT NOT NULL UNIQUE,
				status             TEXT NOT NULL DEFAULT 'offline',
				last_status_update TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_agents_status ON agents (status, id);

			CREATE TABLE calls (
				id               INTEGER PRIMARY KEY AUTOINCREMENT,
				call_sid         TEXT UNIQUE,
				caller_number    TEXT NOT NULL,
				agent_id         INTEGER REFERENCES agents(id),
				start_time       TEXT,
				end_time         TEXT,
				duration         INTEGER,
				status           TEXT,
				recording_url    TEXT,
				dialogue_summary TEXT
			);

			CREATE INDEX idx_calls_start ON calls (start_time);
			CREATE INDEX idx_calls_status ON calls (status);
			CREATE INDEX idx_calls_agent ON calls (agent_id);
		`,
	},
	{
		Version: 2,
		Name:    "seed default agents",
		SQL: `
			INSERT INTO agents (name, phone_number, status)
			SELECT * FROM (VALUES
				('Sarah Johnson',   '+919325484855', 'available'),
				('Mike Chen',       '+15552345678',  'offline'),
				('Emily Rodriguez', '+15553456789',  'available'),
				('David Kim',       '+15554567890',  'offline')
			) WHERE NOT EXISTS (SELECT 1 FROM agents);
		`,
	},
}
