package repo

import (
    "context"
    "encoding/json"
    "errors"
    "time"

    "github.com/google/uuid"
    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/rs/zerolog"
    "github.com/sartthi/syncd/internal/config"
    "github.com/sartthi/syncd/internal/domain"
    "github.com/sartthi/syncd/internal/services/poller"
)

type DB struct {
    Pool *pgxpool.Pool
    log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
    pool, err := pgxpool.New(ctx, cfg.DBDSN)
    if err != nil { log.Fatal().Err(err).Msg("db connect failed") }
    ctx2, cancel := context.WithTimeout(ctx, 10*time.Second); defer cancel()
    if err := pool.Ping(ctx2); err != nil { log.Fatal().Err(err).Msg("db ping failed") }
    return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

type Repository struct {
    db  *DB
    log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok)
    return ok, err
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) error {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
    if !ok && err == nil { return errors.New("advisory unlock returned false") }
    return err
}

// ---- connected accounts ----

func (r *Repository) ActiveAccount(ctx context.Context, userID string, kind domain.TrackerKind) (*domain.ConnectedAccount, error) {
    const q = `SELECT id, user_id, kind, COALESCE(account_email,''), access_token, COALESCE(refresh_token,''),
        expires_at, COALESCE(cloud_id,''), active, created_at, updated_at
        FROM connected_accounts WHERE user_id=$1 AND kind=$2 AND active LIMIT 1`
    var a domain.ConnectedAccount
    var kindStr string
    err := r.db.Pool.QueryRow(ctx, q, userID, string(kind)).Scan(&a.ID, &a.UserID, &kindStr, &a.AccountEmail,
        &a.AccessToken, &a.RefreshToken, &a.ExpiresAt, &a.CloudID, &a.Active, &a.CreatedAt, &a.UpdatedAt)
    if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
    if err != nil { return nil, err }
    a.Kind = domain.TrackerKind(kindStr)
    return &a, nil
}

// SaveAccount stores a freshly connected account and deactivates any
// previous one for the same (user, kind).
func (r *Repository) SaveAccount(ctx context.Context, a domain.ConnectedAccount) (int64, error) {
    tx, err := r.db.Pool.Begin(ctx)
    if err != nil { return 0, err }
    defer tx.Rollback(ctx)
    if _, err := tx.Exec(ctx, `UPDATE connected_accounts SET active=false, updated_at=now() WHERE user_id=$1 AND kind=$2 AND active`, a.UserID, string(a.Kind)); err != nil { return 0, err }
    const q = `INSERT INTO connected_accounts(user_id, kind, account_email, access_token, refresh_token, expires_at, cloud_id, active, created_at, updated_at)
        VALUES($1,$2,$3,$4,$5,$6,$7,true,now(),now()) RETURNING id`
    var id int64
    if err := tx.QueryRow(ctx, q, a.UserID, string(a.Kind), a.AccountEmail, a.AccessToken, a.RefreshToken, a.ExpiresAt, a.CloudID).Scan(&id); err != nil { return 0, err }
    return id, tx.Commit(ctx)
}

func (r *Repository) UpdateTokens(ctx context.Context, accountID int64, access, refresh string, expiresAt time.Time) error {
    const q = `UPDATE connected_accounts SET access_token=$2, refresh_token=$3, expires_at=$4, updated_at=now() WHERE id=$1`
    _, err := r.db.Pool.Exec(ctx, q, accountID, access, refresh, expiresAt)
    return err
}

func (r *Repository) UpdateTenant(ctx context.Context, accountID int64, cloudID string) error {
    const q = `UPDATE connected_accounts SET cloud_id=$2, updated_at=now() WHERE id=$1`
    _, err := r.db.Pool.Exec(ctx, q, accountID, cloudID)
    return err
}

func (r *Repository) DeactivateAccount(ctx context.Context, userID string, kind domain.TrackerKind) error {
    _, err := r.db.Pool.Exec(ctx, `UPDATE connected_accounts SET active=false, updated_at=now() WHERE user_id=$1 AND kind=$2 AND active`, userID, string(kind))
    return err
}

func (r *Repository) TrackerUsers(ctx context.Context) ([]poller.TrackerUser, error) {
    rows, err := r.db.Pool.Query(ctx, `SELECT user_id, kind FROM connected_accounts WHERE active ORDER BY user_id`)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []poller.TrackerUser
    for rows.Next() {
        var u poller.TrackerUser
        var kind string
        if err := rows.Scan(&u.UserID, &kind); err != nil { return nil, err }
        u.Kind = domain.TrackerKind(kind)
        out = append(out, u)
    }
    return out, rows.Err()
}

// ---- tracker issues ----

const issueCols = `id, kind, issue_key, COALESCE(issue_id,''), workspace_id, COALESCE(summary,''), COALESCE(description,''),
    COALESCE(status,''), COALESCE(priority,''), COALESCE(issue_type,''), COALESCE(project_key,''), COALESCE(project_name,''),
    COALESCE(labels,'{}'), due_date, COALESCE(resolution,''), remote_updated, last_synced_at`

func scanIssue(row pgx.Row) (*domain.Issue, error) {
    var i domain.Issue
    var kind string
    err := row.Scan(&i.ID, &kind, &i.IssueKey, &i.IssueID, &i.WorkspaceID, &i.Summary, &i.Description,
        &i.Status, &i.Priority, &i.IssueType, &i.ProjectKey, &i.ProjectName,
        &i.Labels, &i.DueDate, &i.Resolution, &i.RemoteUpdated, &i.LastSyncedAt)
    if err != nil { return nil, err }
    i.Kind = domain.TrackerKind(kind)
    return &i, nil
}

// UpsertIssue is a full replace keyed by (kind, issue_key): every
// column takes the incoming value, stale local fields never survive.
func (r *Repository) UpsertIssue(ctx context.Context, i domain.Issue) (*domain.Issue, error) {
    const q = `
        INSERT INTO tracker_issues(kind, issue_key, issue_id, workspace_id, summary, description,
            status, priority, issue_type, project_key, project_name, labels, due_date, resolution,
            remote_updated, last_synced_at)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
        ON CONFLICT(kind, issue_key) DO UPDATE SET
            issue_id=EXCLUDED.issue_id,
            workspace_id=EXCLUDED.workspace_id,
            summary=EXCLUDED.summary,
            description=EXCLUDED.description,
            status=EXCLUDED.status,
            priority=EXCLUDED.priority,
            issue_type=EXCLUDED.issue_type,
            project_key=EXCLUDED.project_key,
            project_name=EXCLUDED.project_name,
            labels=EXCLUDED.labels,
            due_date=EXCLUDED.due_date,
            resolution=EXCLUDED.resolution,
            remote_updated=EXCLUDED.remote_updated,
            last_synced_at=EXCLUDED.last_synced_at
        RETURNING ` + issueCols
    row := r.db.Pool.QueryRow(ctx, q, string(i.Kind), i.IssueKey, i.IssueID, i.WorkspaceID, i.Summary, i.Description,
        i.Status, i.Priority, i.IssueType, i.ProjectKey, i.ProjectName, i.Labels, i.DueDate, i.Resolution,
        i.RemoteUpdated, i.LastSyncedAt)
    return scanIssue(row)
}

func (r *Repository) GetIssue(ctx context.Context, kind domain.TrackerKind, key string) (*domain.Issue, error) {
    row := r.db.Pool.QueryRow(ctx, `SELECT `+issueCols+` FROM tracker_issues WHERE kind=$1 AND issue_key=$2`, string(kind), key)
    iss, err := scanIssue(row)
    if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
    return iss, err
}

func (r *Repository) DeleteIssue(ctx context.Context, kind domain.TrackerKind, key string) error {
    _, err := r.db.Pool.Exec(ctx, `DELETE FROM tracker_issues WHERE kind=$1 AND issue_key=$2`, string(kind), key)
    return err
}

func (r *Repository) IssuesByWorkspace(ctx context.Context, kind domain.TrackerKind, workspaceID string) ([]domain.Issue, error) {
    rows, err := r.db.Pool.Query(ctx, `SELECT `+issueCols+` FROM tracker_issues WHERE kind=$1 AND workspace_id=$2 ORDER BY issue_key`, string(kind), workspaceID)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.Issue
    for rows.Next() {
        iss, err := scanIssue(rows)
        if err != nil { return nil, err }
        out = append(out, *iss)
    }
    return out, rows.Err()
}

func (r *Repository) WorkspaceIDs(ctx context.Context, userID string, kind domain.TrackerKind) ([]string, error) {
    const q = `SELECT DISTINCT ti.workspace_id FROM tracker_issues ti
        JOIN workspace_members wm ON wm.workspace_id = ti.workspace_id
        WHERE wm.user_id=$1 AND ti.kind=$2 ORDER BY ti.workspace_id`
    rows, err := r.db.Pool.Query(ctx, q, userID, string(kind))
    if err != nil { return nil, err }
    defer rows.Close()
    var out []string
    for rows.Next() {
        var ws string
        if err := rows.Scan(&ws); err != nil { return nil, err }
        out = append(out, ws)
    }
    return out, rows.Err()
}

// ---- planner events ----

func (r *Repository) UpsertEvent(ctx context.Context, ev domain.PlannerEvent) error {
    parts, err := json.Marshal(ev.Participants)
    if err != nil { return err }
    rules, err := json.Marshal(ev.Reminders)
    if err != nil { return err }
    const q = `
        INSERT INTO planner_events(id, workspace_id, title, description, start_at, end_at, all_day, created_by,
            participants, reminders, created_at, updated_at)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
        ON CONFLICT(id) DO UPDATE SET
            title=EXCLUDED.title,
            description=EXCLUDED.description,
            start_at=EXCLUDED.start_at,
            end_at=EXCLUDED.end_at,
            all_day=EXCLUDED.all_day,
            participants=EXCLUDED.participants,
            reminders=EXCLUDED.reminders,
            updated_at=now()`
    _, err = r.db.Pool.Exec(ctx, q, ev.ID, ev.WorkspaceID, ev.Title, ev.Description, ev.Start, ev.End, ev.AllDay,
        ev.CreatedBy, parts, rules)
    return err
}

func (r *Repository) GetEvent(ctx context.Context, id string) (*domain.PlannerEvent, error) {
    const q = `SELECT id, workspace_id, COALESCE(title,''), COALESCE(description,''), start_at, end_at, all_day,
        COALESCE(created_by,''), participants, reminders, created_at, updated_at
        FROM planner_events WHERE id=$1`
    var ev domain.PlannerEvent
    var parts, rules []byte
    err := r.db.Pool.QueryRow(ctx, q, id).Scan(&ev.ID, &ev.WorkspaceID, &ev.Title, &ev.Description, &ev.Start, &ev.End,
        &ev.AllDay, &ev.CreatedBy, &parts, &rules, &ev.CreatedAt, &ev.UpdatedAt)
    if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
    if err != nil { return nil, err }
    if len(parts) > 0 { if err := json.Unmarshal(parts, &ev.Participants); err != nil { return nil, err } }
    if len(rules) > 0 { if err := json.Unmarshal(rules, &ev.Reminders); err != nil { return nil, err } }
    return &ev, nil
}

func (r *Repository) DeleteEvent(ctx context.Context, id string) error {
    _, err := r.db.Pool.Exec(ctx, `DELETE FROM planner_events WHERE id=$1`, id)
    return err
}

// ---- reminder triggers ----

func (r *Repository) ReplaceTriggers(ctx context.Context, entityType, entityID string, ts []domain.Trigger) error {
    tx, err := r.db.Pool.Begin(ctx)
    if err != nil { return err }
    defer tx.Rollback(ctx)
    if _, err := tx.Exec(ctx, `DELETE FROM reminder_triggers WHERE entity_type=$1 AND entity_id=$2`, entityType, entityID); err != nil { return err }
    if len(ts) > 0 {
        batch := &pgx.Batch{}
        const q = `INSERT INTO reminder_triggers(id, entity_type, entity_id, workspace_id, user_ids, type,
            trigger_time, payload, repeat_minutes, created_at)
            VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
        for _, t := range ts {
            payload, err := json.Marshal(t.Payload)
            if err != nil { return err }
            batch.Queue(q, t.ID.String(), t.EntityType, t.EntityID, t.WorkspaceID, t.UserIDs, string(t.Type),
                t.TriggerTime, payload, t.RepeatMinutes, t.CreatedAt)
        }
        br := tx.SendBatch(ctx, batch)
        for range ts {
            if _, err := br.Exec(); err != nil { br.Close(); return err }
        }
        if err := br.Close(); err != nil { return err }
    }
    return tx.Commit(ctx)
}

func (r *Repository) DeleteTriggers(ctx context.Context, entityType, entityID string) error {
    _, err := r.db.Pool.Exec(ctx, `DELETE FROM reminder_triggers WHERE entity_type=$1 AND entity_id=$2`, entityType, entityID)
    return err
}

func (r *Repository) DueTriggers(ctx context.Context, now time.Time, limit int) ([]domain.Trigger, error) {
    const q = `SELECT id, entity_type, entity_id, workspace_id, user_ids, type, trigger_time, payload,
        COALESCE(repeat_minutes,0), created_at
        FROM reminder_triggers WHERE trigger_time <= $1 ORDER BY trigger_time ASC LIMIT $2`
    rows, err := r.db.Pool.Query(ctx, q, now, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.Trigger
    for rows.Next() {
        var t domain.Trigger
        var id, typ string
        var payload []byte
        if err := rows.Scan(&id, &t.EntityType, &t.EntityID, &t.WorkspaceID, &t.UserIDs, &typ,
            &t.TriggerTime, &payload, &t.RepeatMinutes, &t.CreatedAt); err != nil { return nil, err }
        t.ID, err = uuid.Parse(id)
        if err != nil { return nil, err }
        t.Type = domain.TriggerType(typ)
        if len(payload) > 0 {
            if err := json.Unmarshal(payload, &t.Payload); err != nil { return nil, err }
        }
        out = append(out, t)
    }
    return out, rows.Err()
}

func (r *Repository) DeleteTrigger(ctx context.Context, id uuid.UUID) error {
    _, err := r.db.Pool.Exec(ctx, `DELETE FROM reminder_triggers WHERE id=$1`, id.String())
    return err
}

func (r *Repository) RescheduleTrigger(ctx context.Context, id uuid.UUID, next time.Time) error {
    _, err := r.db.Pool.Exec(ctx, `UPDATE reminder_triggers SET trigger_time=$2 WHERE id=$1`, id.String(), next)
    return err
}

// ---- directory ----

func (r *Repository) Emails(ctx context.Context, userIDs []string) ([]string, error) {
    if len(userIDs) == 0 { return nil, nil }
    rows, err := r.db.Pool.Query(ctx, `SELECT email FROM users WHERE id = ANY($1) AND COALESCE(email,'') <> ''`, userIDs)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []string
    for rows.Next() {
        var e string
        if err := rows.Scan(&e); err != nil { return nil, err }
        out = append(out, e)
    }
    return out, rows.Err()
}
