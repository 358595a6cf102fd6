package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/pyoots/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nullTime converts an optional time into a nullable column value.
func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// timePtr returns a pointer for a valid sql.NullTime.
func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// rebindPostgres rewrites ? placeholders to $1, $2, ... for lib/pq.
// Queries in this package never contain literal question marks.
func rebindPostgres(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const userColumns = `id, display_name, is_active, interaction_count, created_at, last_seen_at`

func scanUser(row rowScanner) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.DisplayName, &u.IsActive, &u.InteractionCount, &u.CreatedAt, &u.LastSeenAt)
	return u, err
}

const sessionColumns = `id, user_id, started_at, last_activity_at, ended_at, completed, duration_seconds, source`

func scanSession(row rowScanner) (models.Session, error) {
	var s models.Session
	var endedAt sql.NullTime
	var source string
	err := row.Scan(&s.ID, &s.UserID, &s.StartedAt, &s.LastActivityAt, &endedAt, &s.Completed, &s.DurationSeconds, &source)
	if err != nil {
		return s, err
	}
	s.EndedAt = timePtr(endedAt)
	s.Source = models.SessionSource(source)
	return s, nil
}

const broadcastColumns = `id, admin_id, text, scheduled_at, sent, created_at, sent_at`

func scanBroadcast(row rowScanner) (models.BroadcastMessage, error) {
	var b models.BroadcastMessage
	var sentAt sql.NullTime
	err := row.Scan(&b.ID, &b.AdminID, &b.Text, &b.ScheduledAt, &b.Sent, &b.CreatedAt, &sentAt)
	if err != nil {
		return b, err
	}
	b.SentAt = timePtr(sentAt)
	return b, nil
}

const jobColumns = `id, kind, run_at, payload_json, status, attempt, max_attempts, last_error, locked_at, dedupe_key, created_at, updated_at`

// scanJob scans a Job from a row.
func scanJob(row rowScanner) (Job, error) {
	var j Job
	var payloadJSON, lastError, dedupeKey sql.NullString
	var lockedAt sql.NullTime
	err := row.Scan(
		&j.ID, &j.Kind, &j.RunAt, &payloadJSON, &j.Status, &j.Attempt, &j.MaxAttempts,
		&lastError, &lockedAt, &dedupeKey, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return j, err
	}
	j.PayloadJSON = payloadJSON.String
	j.LastError = lastError.String
	j.DedupeKey = dedupeKey.String
	j.LockedAt = timePtr(lockedAt)
	return j, nil
}

// collectJobs drains rows into jobs.
func collectJobs(rows *sql.Rows) ([]Job, error) {
	defer rows.Close()
	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job failed: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("job rows iteration failed: %w", err)
	}
	return jobs, nil
}
