package database

// Migration represents a database migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// migrations contains all database migrations in order
var migrations = []Migration{
	{
		Version: "001_server_jobs",
		Up: `
CREATE TABLE server_jobs (
    id TEXT PRIMARY KEY,
    server_name TEXT NOT NULL,
    operation TEXT NOT NULL,
    status TEXT NOT NULL,
    progress INTEGER NOT NULL DEFAULT 0,
    message TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    started_at INTEGER NOT NULL,
    completed_at INTEGER,
    result TEXT
);

CREATE INDEX idx_server_jobs_server_status ON server_jobs(server_name, status);
CREATE INDEX idx_server_jobs_completed ON server_jobs(completed_at);
`,
		Down: `
DROP INDEX IF EXISTS idx_server_jobs_completed;
DROP INDEX IF EXISTS idx_server_jobs_server_status;
DROP TABLE IF EXISTS server_jobs;
`,
	},
}
