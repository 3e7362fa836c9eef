package store

// SchemaSQL defines the session snapshot and report tables.
const SchemaSQL = `
    DEFINE TABLE IF NOT EXISTS session SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS session_id ON session TYPE string;
    DEFINE FIELD IF NOT EXISTS cache ON session TYPE string;
    DEFINE FIELD IF NOT EXISTS state ON session TYPE string;
    DEFINE FIELD IF NOT EXISTS increments ON session TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS created ON session TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated ON session TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS session_updated ON session FIELDS updated;

    DEFINE TABLE IF NOT EXISTS report SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS session_id ON report TYPE string;
    DEFINE FIELD IF NOT EXISTS model_id ON report TYPE string;
    DEFINE FIELD IF NOT EXISTS body ON report TYPE string;
    DEFINE FIELD IF NOT EXISTS created ON report TYPE datetime DEFAULT time::now();
`
