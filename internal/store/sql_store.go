package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/pyoots/internal/models"
	"github.com/BTreeMap/pyoots/internal/util"
)

// sqlStore holds the queries shared by SQLiteStore and PostgresStore.
// Queries are written with ? placeholders and rebound for postgres.
type sqlStore struct {
	db       *sql.DB
	name     string
	postgres bool
}

func (s *sqlStore) q(query string) string {
	if s.postgres {
		return rebindPostgres(query)
	}
	return query
}

func (s *sqlStore) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.q(query), args...)
}

func (s *sqlStore) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, s.q(query), args...)
}

func (s *sqlStore) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.q(query), args...)
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	slog.Debug(s.name + ".Close: closing database")
	return s.db.Close()
}

// --- users ---

func (s *sqlStore) UpsertUser(ctx context.Context, id, displayName string, now time.Time) (*models.User, error) {
	now = now.UTC()
	row := s.queryRow(ctx,
		`INSERT INTO users (id, display_name, is_active, interaction_count, created_at, last_seen_at)
		 VALUES (?, ?, ?, 1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   display_name = CASE WHEN excluded.display_name <> '' THEN excluded.display_name ELSE users.display_name END,
		   is_active = excluded.is_active,
		   interaction_count = users.interaction_count + 1,
		   last_seen_at = excluded.last_seen_at
		 RETURNING `+userColumns,
		id, displayName, true, now, now,
	)
	u, err := scanUser(row)
	if err != nil {
		slog.Error(s.name+".UpsertUser failed", "error", err, "user_id", id)
		return nil, fmt.Errorf("failed to upsert user %s: %w", id, err)
	}
	slog.Debug(s.name+".UpsertUser succeeded", "user_id", id, "interaction_count", u.InteractionCount)
	return &u, nil
}

func (s *sqlStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return &u, nil
}

func (s *sqlStore) ActiveUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.query(ctx, `SELECT `+userColumns+` FROM users WHERE is_active = ? ORDER BY created_at, id`, true)
	if err != nil {
		return nil, fmt.Errorf("failed to query active users: %w", err)
	}
	return collectUsers(rows)
}

func (s *sqlStore) SetUserActive(ctx context.Context, id string, active bool) error {
	res, err := s.exec(ctx, `UPDATE users SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("failed to update user %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func (s *sqlStore) UserStats(ctx context.Context, now time.Time) (models.UserStats, error) {
	weekAgo := now.UTC().AddDate(0, 0, -7)
	var st models.UserStats
	err := s.queryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN last_seen_at >= ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0)
		 FROM users`,
		weekAgo, weekAgo,
	).Scan(&st.Total, &st.ActiveWeek, &st.NewWeek)
	if err != nil {
		return st, fmt.Errorf("failed to compute user stats: %w", err)
	}
	return st, nil
}

func collectUsers(rows *sql.Rows) ([]models.User, error) {
	defer rows.Close()
	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	return users, nil
}

// --- sessions ---

func (s *sqlStore) LatestSession(ctx context.Context, userID string) (*models.Session, error) {
	sess, err := scanSession(s.queryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = ? ORDER BY started_at DESC, id DESC LIMIT 1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest session for %s: %w", userID, err)
	}
	return &sess, nil
}

func (s *sqlStore) CreateSession(ctx context.Context, sess *models.Session) error {
	err := s.queryRow(ctx,
		`INSERT INTO sessions (user_id, started_at, last_activity_at, completed, duration_seconds, source)
		 VALUES (?, ?, ?, ?, 0, ?) RETURNING id`,
		sess.UserID, sess.StartedAt.UTC(), sess.LastActivityAt.UTC(), false, string(sess.Source),
	).Scan(&sess.ID)
	if err != nil {
		slog.Error(s.name+".CreateSession failed", "error", err, "user_id", sess.UserID)
		return fmt.Errorf("failed to create session for %s: %w", sess.UserID, err)
	}
	slog.Debug(s.name+".CreateSession succeeded", "user_id", sess.UserID, "session_id", sess.ID, "source", sess.Source)
	return nil
}

func (s *sqlStore) TouchSession(ctx context.Context, id int64, at time.Time) error {
	res, err := s.exec(ctx, `UPDATE sessions SET last_activity_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to touch session %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

func (s *sqlStore) CompleteSession(ctx context.Context, id int64, endedAt time.Time, durationSeconds int64) (bool, error) {
	res, err := s.exec(ctx,
		`UPDATE sessions SET completed = ?, ended_at = ?, duration_seconds = ? WHERE id = ? AND completed = ?`,
		true, endedAt.UTC(), durationSeconds, id, false,
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete session %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *sqlStore) GetSession(ctx context.Context, id int64) (*models.Session, error) {
	sess, err := scanSession(s.queryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %d: %w", id, err)
	}
	return &sess, nil
}

func (s *sqlStore) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	rows, err := s.query(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE user_id = ? ORDER BY started_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()
	var out []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// --- interactions ---

func (s *sqlStore) AddInteraction(ctx context.Context, in *models.Interaction) error {
	var latency interface{}
	if in.LatencyMS != nil {
		latency = *in.LatencyMS
	}
	err := s.queryRow(ctx,
		`INSERT INTO interactions (user_id, session_id, action, payload, success, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		in.UserID, in.SessionID, string(in.Action), in.Payload, in.Success, latency, in.CreatedAt.UTC(),
	).Scan(&in.ID)
	if err != nil {
		return fmt.Errorf("failed to insert interaction for %s: %w", in.UserID, err)
	}
	return nil
}

func (s *sqlStore) ListInteractions(ctx context.Context, userID string) ([]models.Interaction, error) {
	rows, err := s.query(ctx,
		`SELECT id, user_id, session_id, action, payload, success, latency_ms, created_at
		 FROM interactions WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()
	var out []models.Interaction
	for rows.Next() {
		var in models.Interaction
		var action string
		var latency sql.NullInt64
		if err := rows.Scan(&in.ID, &in.UserID, &in.SessionID, &action, &in.Payload, &in.Success, &latency, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan interaction row: %w", err)
		}
		in.Action = models.ActionType(action)
		if latency.Valid {
			v := latency.Int64
			in.LatencyMS = &v
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// --- ratings ---

func (s *sqlStore) AddRating(ctx context.Context, r *models.Rating) error {
	if err := r.Validate(); err != nil {
		return err
	}
	err := s.queryRow(ctx,
		`INSERT INTO ratings (user_id, recipe_type, recipe_name, value, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id`,
		r.UserID, r.RecipeType, r.RecipeName, r.Value, r.CreatedAt.UTC(),
	).Scan(&r.ID)
	if err != nil {
		slog.Error(s.name+".AddRating failed", "error", err, "user_id", r.UserID)
		return fmt.Errorf("failed to insert rating: %w", err)
	}
	slog.Debug(s.name+".AddRating succeeded", "user_id", r.UserID, "recipe_type", r.RecipeType, "value", r.Value)
	return nil
}

func (s *sqlStore) ListRatings(ctx context.Context, userID string) ([]models.Rating, error) {
	rows, err := s.query(ctx,
		`SELECT id, user_id, recipe_type, recipe_name, value, created_at FROM ratings WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ratings: %w", err)
	}
	defer rows.Close()
	var out []models.Rating
	for rows.Next() {
		var r models.Rating
		if err := rows.Scan(&r.ID, &r.UserID, &r.RecipeType, &r.RecipeName, &r.Value, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rating row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlStore) RecipeStats(ctx context.Context) ([]models.RecipeStat, error) {
	rows, err := s.query(ctx,
		`SELECT recipe_type, AVG(value), COUNT(*) FROM ratings GROUP BY recipe_type ORDER BY recipe_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipe stats: %w", err)
	}
	defer rows.Close()
	var out []models.RecipeStat
	for rows.Next() {
		var st models.RecipeStat
		if err := rows.Scan(&st.RecipeType, &st.Average, &st.Count); err != nil {
			return nil, fmt.Errorf("failed to scan recipe stat: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// --- broadcasts ---

func (s *sqlStore) CreateBroadcast(ctx context.Context, b *models.BroadcastMessage) error {
	err := s.queryRow(ctx,
		`INSERT INTO broadcasts (admin_id, text, scheduled_at, sent, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id`,
		b.AdminID, b.Text, b.ScheduledAt.UTC(), false, b.CreatedAt.UTC(),
	).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("failed to insert broadcast: %w", err)
	}
	slog.Debug(s.name+".CreateBroadcast succeeded", "broadcast_id", b.ID, "scheduled_at", b.ScheduledAt)
	return nil
}

func (s *sqlStore) DueBroadcasts(ctx context.Context, now time.Time) ([]models.BroadcastMessage, error) {
	rows, err := s.query(ctx,
		`SELECT `+broadcastColumns+` FROM broadcasts WHERE sent = ? AND scheduled_at <= ? ORDER BY scheduled_at, id`,
		false, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query due broadcasts: %w", err)
	}
	defer rows.Close()
	var out []models.BroadcastMessage
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan broadcast row: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *sqlStore) MarkBroadcastSent(ctx context.Context, id int64, at time.Time) error {
	_, err := s.exec(ctx, `UPDATE broadcasts SET sent = ?, sent_at = ? WHERE id = ? AND sent = ?`, true, at.UTC(), id, false)
	if err != nil {
		return fmt.Errorf("failed to mark broadcast %d sent: %w", id, err)
	}
	return nil
}

func (s *sqlStore) GetBroadcast(ctx context.Context, id int64) (*models.BroadcastMessage, error) {
	b, err := scanBroadcast(s.queryRow(ctx, `SELECT `+broadcastColumns+` FROM broadcasts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get broadcast %d: %w", id, err)
	}
	return &b, nil
}

// --- survey ---

func (s *sqlStore) SurveyReminderCandidates(ctx context.Context, cutoff time.Time) ([]models.User, error) {
	rows, err := s.query(ctx,
		`SELECT u.id, u.display_name, u.is_active, u.interaction_count, u.created_at, u.last_seen_at
		 FROM users u LEFT JOIN survey_status s ON s.user_id = u.id
		 WHERE u.is_active = ?
		   AND (s.user_id IS NULL
		        OR (s.completed = ? AND (s.last_reminder_at IS NULL OR s.last_reminder_at < ?)))
		 ORDER BY u.created_at, u.id`,
		true, false, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query survey reminder candidates: %w", err)
	}
	return collectUsers(rows)
}

func (s *sqlStore) MarkSurveyReminded(ctx context.Context, userID string, at time.Time) error {
	_, err := s.exec(ctx,
		`INSERT INTO survey_status (user_id, completed, last_reminder_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET last_reminder_at = excluded.last_reminder_at`,
		userID, false, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to record survey reminder for %s: %w", userID, err)
	}
	return nil
}

func (s *sqlStore) CompleteSurvey(ctx context.Context, userID string, at time.Time) error {
	_, err := s.exec(ctx,
		`INSERT INTO survey_status (user_id, completed, completed_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   completed = excluded.completed,
		   completed_at = COALESCE(survey_status.completed_at, excluded.completed_at)`,
		userID, true, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to complete survey for %s: %w", userID, err)
	}
	slog.Debug(s.name+".CompleteSurvey succeeded", "user_id", userID)
	return nil
}

func (s *sqlStore) GetSurveyStatus(ctx context.Context, userID string) (*models.SurveyStatus, error) {
	var st models.SurveyStatus
	var completedAt, remindedAt sql.NullTime
	err := s.queryRow(ctx,
		`SELECT user_id, completed, completed_at, last_reminder_at FROM survey_status WHERE user_id = ?`, userID,
	).Scan(&st.UserID, &st.Completed, &completedAt, &remindedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get survey status for %s: %w", userID, err)
	}
	st.CompletedAt = timePtr(completedAt)
	st.LastReminderAt = timePtr(remindedAt)
	return &st, nil
}

// --- moods ---

func (s *sqlStore) AddMoodCheck(ctx context.Context, m *models.MoodCheck) error {
	if !models.IsValidMood(m.Mood) {
		return fmt.Errorf("%w: %q", models.ErrInvalidMood, m.Mood)
	}
	err := s.queryRow(ctx,
		`INSERT INTO mood_checks (user_id, mood, created_at) VALUES (?, ?, ?) RETURNING id`,
		m.UserID, string(m.Mood), m.CreatedAt.UTC(),
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("failed to insert mood check: %w", err)
	}
	return nil
}

func (s *sqlStore) MoodStats(ctx context.Context, since time.Time) (models.MoodStats, error) {
	st := models.MoodStats{Counts: make(map[models.Mood]int)}
	rows, err := s.query(ctx, `SELECT mood, COUNT(*) FROM mood_checks WHERE created_at >= ? GROUP BY mood`, since.UTC())
	if err != nil {
		return st, fmt.Errorf("failed to query mood stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var mood string
		var n int
		if err := rows.Scan(&mood, &n); err != nil {
			return st, fmt.Errorf("failed to scan mood stat: %w", err)
		}
		st.Counts[models.Mood(mood)] = n
	}
	if err := rows.Err(); err != nil {
		return st, err
	}
	err = s.queryRow(ctx, `SELECT COUNT(DISTINCT user_id) FROM mood_checks WHERE created_at >= ?`, since.UTC()).Scan(&st.ActiveUsers)
	if err != nil {
		return st, fmt.Errorf("failed to count mood reporters: %w", err)
	}
	return st, nil
}

// --- inbound dedup ---

func (s *sqlStore) RecordInbound(ctx context.Context, messageID, userID string) (bool, error) {
	res, err := s.exec(ctx,
		`INSERT INTO inbound_dedup (message_id, user_id, received_at) VALUES (?, ?, ?) ON CONFLICT (message_id) DO NOTHING`,
		messageID, userID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		slog.Debug(s.name+".RecordInbound: duplicate message", "message_id", messageID)
	}
	return n > 0, nil
}

func (s *sqlStore) MarkProcessed(ctx context.Context, messageID string) error {
	_, err := s.exec(ctx, `UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`, time.Now().UTC(), messageID)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

// --- jobs (claiming is backend specific) ---

func (s *sqlStore) EnqueueJob(ctx context.Context, kind string, runAt time.Time, payloadJSON string, dedupeKey string) (string, error) {
	if dedupeKey != "" {
		var existingID string
		err := s.queryRow(ctx,
			`SELECT id FROM jobs WHERE dedupe_key = ? AND status <> 'canceled'`, dedupeKey,
		).Scan(&existingID)
		if err == nil {
			slog.Debug(s.name+".EnqueueJob: dedupe hit", "dedupeKey", dedupeKey, "existingID", existingID)
			return existingID, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("dedupe check failed: %w", err)
		}
	}

	id := util.GenerateJobID()
	now := time.Now().UTC()
	_, err := s.exec(ctx,
		`INSERT INTO jobs (id, kind, run_at, payload_json, status, attempt, max_attempts, dedupe_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'queued', 0, ?, ?, ?, ?)`,
		id, kind, runAt.UTC(), payloadJSON, DefaultJobMaxAttempts, nilIfEmpty(dedupeKey), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue job failed: %w", err)
	}
	slog.Debug(s.name+".EnqueueJob", "id", id, "kind", kind, "runAt", runAt)
	return id, nil
}

func (s *sqlStore) CompleteJob(ctx context.Context, id string) error {
	_, err := s.exec(ctx, `UPDATE jobs SET status = 'done', locked_at = NULL, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("complete job failed: %w", err)
	}
	return nil
}

func (s *sqlStore) FailJob(ctx context.Context, id string, errMsg string, nextRunAt time.Time) error {
	var attempt, maxAttempts int
	if err := s.queryRow(ctx, `SELECT attempt, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempt, &maxAttempts); err != nil {
		return fmt.Errorf("fail job lookup failed: %w", err)
	}

	now := time.Now().UTC()
	attempt++
	var err error
	if attempt >= maxAttempts {
		_, err = s.exec(ctx,
			`UPDATE jobs SET status = 'failed', attempt = ?, last_error = ?, locked_at = NULL, updated_at = ? WHERE id = ?`,
			attempt, errMsg, now, id)
	} else {
		_, err = s.exec(ctx,
			`UPDATE jobs SET status = 'queued', attempt = ?, last_error = ?, run_at = ?, locked_at = NULL, updated_at = ? WHERE id = ?`,
			attempt, errMsg, nextRunAt.UTC(), now, id)
	}
	if err != nil {
		return fmt.Errorf("fail job update failed: %w", err)
	}
	return nil
}

func (s *sqlStore) CancelJob(ctx context.Context, id string) error {
	_, err := s.exec(ctx, `UPDATE jobs SET status = 'canceled', locked_at = NULL, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("cancel job failed: %w", err)
	}
	return nil
}

func (s *sqlStore) RequeueStaleRunningJobs(ctx context.Context, staleBefore time.Time) (int, error) {
	res, err := s.exec(ctx,
		`UPDATE jobs SET status = 'queued', locked_at = NULL, updated_at = ? WHERE status = 'running' AND locked_at < ?`,
		time.Now().UTC(), staleBefore.UTC())
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		slog.Info(s.name+".RequeueStaleRunningJobs", "requeued", n)
	}
	return int(n), nil
}

func (s *sqlStore) GetJob(ctx context.Context, id string) (*Job, error) {
	j, err := scanJob(s.queryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job failed: %w", err)
	}
	return &j, nil
}
