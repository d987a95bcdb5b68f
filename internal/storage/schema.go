package storage

const schema = `
-- A project is a user's study collection.
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

-- Flashcards belong to exactly one project. position keeps insertion order.
CREATE TABLE IF NOT EXISTS flashcards (
    project_id TEXT NOT NULL,
    id TEXT NOT NULL,
    question TEXT NOT NULL,
    answer TEXT NOT NULL DEFAULT '',
    context TEXT NOT NULL DEFAULT '',
    ease_factor REAL NOT NULL DEFAULT 2.5,
    interval INTEGER NOT NULL DEFAULT 0,
    due_date DATETIME NOT NULL,
    position INTEGER NOT NULL,

    PRIMARY KEY(project_id, id),
    FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS flashcards_due ON flashcards(due_date);

-- Deck sources feed a project, either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local', -- local | git
    project_id TEXT NOT NULL,
    last_scanned DATETIME,

    FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
);

-- Experience ledger, one row per completed review session.
CREATE TABLE IF NOT EXISTS experience (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    amount INTEGER NOT NULL,
    awarded_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS review_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    card_id TEXT NOT NULL,
    project_id TEXT NOT NULL,
    quality INTEGER NOT NULL,
    ease_factor REAL NOT NULL,
    interval INTEGER NOT NULL,
    reviewed_at DATETIME NOT NULL
);
`
