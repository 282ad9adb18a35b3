package db

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id              TEXT PRIMARY KEY,
    provider        TEXT NOT NULL DEFAULT 'email',
    provider_id     TEXT NOT NULL DEFAULT '',
    email           TEXT UNIQUE NOT NULL,
    first_name      TEXT NOT NULL DEFAULT '',
    last_name       TEXT NOT NULL DEFAULT '',
    role            TEXT NOT NULL DEFAULT 'USER' CHECK(role IN ('USER','ADMIN')),
    verified        INTEGER NOT NULL DEFAULT 0 CHECK(verified IN (0, 1)),
    receive_email   INTEGER NOT NULL DEFAULT 1 CHECK(receive_email IN (0, 1)),
    password_hash   TEXT,
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    expires_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON sessions(expires_at);

-- One row per logged request, mirrored from the newline-delimited log file.
CREATE TABLE IF NOT EXISTS request_logs (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp     TEXT NOT NULL,
    level         TEXT NOT NULL,
    method        TEXT NOT NULL,
    path          TEXT NOT NULL,
    status        INTEGER NOT NULL,
    duration_ms   REAL NOT NULL,
    user_id       TEXT,
    error_id      TEXT,
    line          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_request_logs_ts ON request_logs(timestamp);
CREATE INDEX IF NOT EXISTS idx_request_logs_error ON request_logs(error_id) WHERE error_id IS NOT NULL;
`
