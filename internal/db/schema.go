package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- SCHEDULE TABLE
    -- ==========================================================================
    -- Materialized schedules are immutable: one record per solve, versioned
    -- per input fingerprint.
    DEFINE TABLE IF NOT EXISTS schedule SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS fingerprint ON schedule TYPE string;
    DEFINE FIELD IF NOT EXISTS version ON schedule TYPE int;
    DEFINE FIELD IF NOT EXISTS quality ON schedule TYPE string
        ASSERT $value IN ["optimal", "feasible", "infeasible"];
    DEFINE FIELD IF NOT EXISTS objective ON schedule TYPE float;
    DEFINE FIELD IF NOT EXISTS makespan_q ON schedule TYPE int;
    DEFINE FIELD IF NOT EXISTS diagnostic ON schedule TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS assignments ON schedule TYPE array<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS solved_at ON schedule TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS wall_time_ms ON schedule TYPE int;

    DEFINE INDEX IF NOT EXISTS schedule_fingerprint ON schedule FIELDS fingerprint;
    DEFINE INDEX IF NOT EXISTS schedule_fp_version ON schedule FIELDS fingerprint, version UNIQUE;

    -- ==========================================================================
    -- ZONE WIP TABLE
    -- ==========================================================================
    -- One record per production zone. The counter only moves through the
    -- transactional commit/release queries, so 0 <= current <= limit holds.
    DEFINE TABLE IF NOT EXISTS zone_wip SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS current ON zone_wip TYPE int DEFAULT 0 ASSERT $value >= 0;
    DEFINE FIELD IF NOT EXISTS wip_limit ON zone_wip TYPE int ASSERT $value > 0;
    DEFINE FIELD IF NOT EXISTS updated ON zone_wip TYPE datetime DEFAULT time::now();

    -- ==========================================================================
    -- WIP LOG TABLE (audit trail of counter changes)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS wip_log SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS zone ON wip_log TYPE string;
    DEFINE FIELD IF NOT EXISTS job ON wip_log TYPE string;
    DEFINE FIELD IF NOT EXISTS old_wip ON wip_log TYPE int;
    DEFINE FIELD IF NOT EXISTS new_wip ON wip_log TYPE int;
    DEFINE FIELD IF NOT EXISTS reason ON wip_log TYPE string;
    DEFINE FIELD IF NOT EXISTS at ON wip_log TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS wip_log_zone ON wip_log FIELDS zone;
`
