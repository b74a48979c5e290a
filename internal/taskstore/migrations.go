package taskstore

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    queue TEXT NOT NULL,
    description TEXT NOT NULL,
    context TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    priority TEXT NOT NULL DEFAULT 'MEDIUM',
    ord INTEGER NOT NULL DEFAULT 0,
    app_id TEXT,
    provider_id TEXT,
    model TEXT,
    task_type TEXT,
    attachments TEXT,
    blocker TEXT,
    auto_approved BOOLEAN DEFAULT FALSE,
    approved BOOLEAN DEFAULT FALSE,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tasks_queue_status ON tasks(queue, status);
CREATE INDEX IF NOT EXISTS idx_tasks_ord ON tasks(queue, ord);

CREATE TABLE IF NOT EXISTS agent_runs (
    id TEXT PRIMARY KEY,
    task_id TEXT NOT NULL,
    queue TEXT NOT NULL,
    pid INTEGER,
    status TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP,
    output TEXT,
    success BOOLEAN,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_agent_runs_task_id ON agent_runs(task_id);
CREATE INDEX IF NOT EXISTS idx_agent_runs_status ON agent_runs(status);

CREATE TABLE IF NOT EXISTS task_type_configs (
    task_type TEXT PRIMARY KEY,
    category TEXT NOT NULL,
    enabled BOOLEAN DEFAULT TRUE,
    interval_type TEXT NOT NULL,
    interval_ms INTEGER DEFAULT 0,
    cron_expr TEXT,
    scheduled_time TEXT,
    provider_id TEXT,
    model TEXT,
    prompt TEXT,
    last_run TIMESTAMP,
    run_count INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS app_overrides (
    task_type TEXT NOT NULL,
    app_id TEXT NOT NULL,
    enabled BOOLEAN,
    interval_ms INTEGER,
    PRIMARY KEY (task_type, app_id)
);

CREATE TABLE IF NOT EXISTS on_demand_requests (
    task_type TEXT NOT NULL,
    app_id TEXT NOT NULL DEFAULT '',
    requested_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (task_type, app_id)
);

CREATE TABLE IF NOT EXISTS duration_samples (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    bucket TEXT NOT NULL,
    duration_ms INTEGER NOT NULL,
    success BOOLEAN NOT NULL,
    recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_duration_samples_bucket ON duration_samples(bucket);

CREATE TABLE IF NOT EXISTS duration_stats (
    bucket TEXT PRIMARY KEY,
    completed INTEGER NOT NULL,
    avg_duration_min REAL NOT NULL,
    p80_duration_ms INTEGER NOT NULL,
    success_rate REAL NOT NULL
);
`
