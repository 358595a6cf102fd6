// Package store provides storage backends for the assistant.
//
// This file implements the in-memory store used by tests and DSN-less runs.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/pyoots/internal/models"
	"github.com/BTreeMap/pyoots/internal/util"
)

// InMemoryStore keeps every record in process memory. Safe for concurrent use.
type InMemoryStore struct {
	mu           sync.Mutex
	users        map[string]*models.User
	sessions     []*models.Session
	interactions []models.Interaction
	ratings      []models.Rating
	broadcasts   []*models.BroadcastMessage
	survey       map[string]*models.SurveyStatus
	moods        []models.MoodCheck
	jobs         map[string]*Job
	inbound      map[string]*time.Time
	nextID       int64
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:   make(map[string]*models.User),
		survey:  make(map[string]*models.SurveyStatus),
		jobs:    make(map[string]*Job),
		inbound: make(map[string]*time.Time),
	}
}

func (s *InMemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }

// --- users ---

func (s *InMemoryStore) UpsertUser(ctx context.Context, id, displayName string, now time.Time) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		u = &models.User{ID: id, CreatedAt: now}
		s.users[id] = u
	}
	if displayName != "" {
		u.DisplayName = displayName
	}
	u.IsActive = true
	u.InteractionCount++
	u.LastSeenAt = now
	cp := *u
	return &cp, nil
}

func (s *InMemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *InMemoryStore) ActiveUsers(ctx context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, u := range s.users {
		if u.IsActive {
			out = append(out, *u)
		}
	}
	sortUsers(out)
	return out, nil
}

func (s *InMemoryStore) SetUserActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.ErrUserNotFound
	}
	u.IsActive = active
	return nil
}

func (s *InMemoryStore) UserStats(ctx context.Context, now time.Time) (models.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	weekAgo := now.AddDate(0, 0, -7)
	var st models.UserStats
	for _, u := range s.users {
		st.Total++
		if !u.LastSeenAt.Before(weekAgo) {
			st.ActiveWeek++
		}
		if !u.CreatedAt.Before(weekAgo) {
			st.NewWeek++
		}
	}
	return st, nil
}

func sortUsers(users []models.User) {
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})
}

// --- sessions ---

func (s *InMemoryStore) LatestSession(ctx context.Context, userID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.Session
	for _, sess := range s.sessions {
		if sess.UserID != userID {
			continue
		}
		if latest == nil || !sess.StartedAt.Before(latest.StartedAt) {
			latest = sess
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *InMemoryStore) CreateSession(ctx context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.ID = s.id()
	cp := *sess
	s.sessions = append(s.sessions, &cp)
	return nil
}

func (s *InMemoryStore) findSession(id int64) *models.Session {
	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess
		}
	}
	return nil
}

func (s *InMemoryStore) TouchSession(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.findSession(id)
	if sess == nil {
		return models.ErrSessionNotFound
	}
	sess.LastActivityAt = at
	return nil
}

func (s *InMemoryStore) CompleteSession(ctx context.Context, id int64, endedAt time.Time, durationSeconds int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.findSession(id)
	if sess == nil {
		return false, models.ErrSessionNotFound
	}
	if sess.Completed {
		return false, nil
	}
	end := endedAt
	sess.Completed = true
	sess.EndedAt = &end
	sess.DurationSeconds = durationSeconds
	return true, nil
}

func (s *InMemoryStore) GetSession(ctx context.Context, id int64) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.findSession(id)
	if sess == nil {
		return nil, models.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *InMemoryStore) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, *sess)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// --- interactions ---

func (s *InMemoryStore) AddInteraction(ctx context.Context, in *models.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in.ID = s.id()
	s.interactions = append(s.interactions, *in)
	return nil
}

func (s *InMemoryStore) ListInteractions(ctx context.Context, userID string) ([]models.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Interaction
	for _, in := range s.interactions {
		if in.UserID == userID {
			out = append(out, in)
		}
	}
	return out, nil
}

// --- ratings ---

func (s *InMemoryStore) AddRating(ctx context.Context, r *models.Rating) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.id()
	s.ratings = append(s.ratings, *r)
	return nil
}

func (s *InMemoryStore) ListRatings(ctx context.Context, userID string) ([]models.Rating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Rating
	for _, r := range s.ratings {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *InMemoryStore) RecipeStats(ctx context.Context) ([]models.RecipeStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sums := make(map[string]int)
	counts := make(map[string]int)
	for _, r := range s.ratings {
		sums[r.RecipeType] += r.Value
		counts[r.RecipeType]++
	}
	var out []models.RecipeStat
	for t, n := range counts {
		out = append(out, models.RecipeStat{RecipeType: t, Average: float64(sums[t]) / float64(n), Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecipeType < out[j].RecipeType })
	return out, nil
}

// --- broadcasts ---

func (s *InMemoryStore) CreateBroadcast(ctx context.Context, b *models.BroadcastMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = s.id()
	b.Sent = false
	b.SentAt = nil
	cp := *b
	s.broadcasts = append(s.broadcasts, &cp)
	return nil
}

func (s *InMemoryStore) DueBroadcasts(ctx context.Context, now time.Time) ([]models.BroadcastMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.BroadcastMessage
	for _, b := range s.broadcasts {
		if !b.Sent && !b.ScheduledAt.After(now) {
			out = append(out, *b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (s *InMemoryStore) MarkBroadcastSent(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.broadcasts {
		if b.ID == id {
			if !b.Sent {
				sentAt := at
				b.Sent = true
				b.SentAt = &sentAt
			}
			return nil
		}
	}
	return fmt.Errorf("broadcast %d not found", id)
}

func (s *InMemoryStore) GetBroadcast(ctx context.Context, id int64) (*models.BroadcastMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.broadcasts {
		if b.ID == id {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

// --- survey ---

func (s *InMemoryStore) SurveyReminderCandidates(ctx context.Context, cutoff time.Time) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for id, u := range s.users {
		if u.IsActive && s.survey[id].NeedsReminder(cutoff) {
			out = append(out, *u)
		}
	}
	sortUsers(out)
	return out, nil
}

func (s *InMemoryStore) surveyRow(userID string) *models.SurveyStatus {
	st, ok := s.survey[userID]
	if !ok {
		st = &models.SurveyStatus{UserID: userID}
		s.survey[userID] = st
	}
	return st
}

func (s *InMemoryStore) MarkSurveyReminded(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := at
	s.surveyRow(userID).LastReminderAt = &t
	return nil
}

func (s *InMemoryStore) CompleteSurvey(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.surveyRow(userID)
	st.Completed = true
	if st.CompletedAt == nil {
		t := at
		st.CompletedAt = &t
	}
	return nil
}

func (s *InMemoryStore) GetSurveyStatus(ctx context.Context, userID string) (*models.SurveyStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.survey[userID]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

// --- moods ---

func (s *InMemoryStore) AddMoodCheck(ctx context.Context, m *models.MoodCheck) error {
	if !models.IsValidMood(m.Mood) {
		return fmt.Errorf("%w: %q", models.ErrInvalidMood, m.Mood)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.id()
	s.moods = append(s.moods, *m)
	return nil
}

func (s *InMemoryStore) MoodStats(ctx context.Context, since time.Time) (models.MoodStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := models.MoodStats{Counts: make(map[models.Mood]int)}
	reporters := make(map[string]bool)
	for _, m := range s.moods {
		if m.CreatedAt.Before(since) {
			continue
		}
		st.Counts[m.Mood]++
		reporters[m.UserID] = true
	}
	st.ActiveUsers = len(reporters)
	return st, nil
}

// --- inbound dedup ---

func (s *InMemoryStore) RecordInbound(ctx context.Context, messageID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.inbound[messageID]; seen {
		return false, nil
	}
	s.inbound[messageID] = nil
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.inbound[messageID] = &now
	return nil
}

// --- jobs ---

func (s *InMemoryStore) EnqueueJob(ctx context.Context, kind string, runAt time.Time, payloadJSON string, dedupeKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dedupeKey != "" {
		for _, j := range s.jobs {
			if j.DedupeKey == dedupeKey && j.Status != JobStatusCanceled {
				return j.ID, nil
			}
		}
	}
	now := time.Now()
	j := &Job{
		ID:          util.GenerateJobID(),
		Kind:        kind,
		RunAt:       runAt,
		PayloadJSON: payloadJSON,
		Status:      JobStatusQueued,
		MaxAttempts: DefaultJobMaxAttempts,
		DedupeKey:   dedupeKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.jobs[j.ID] = j
	return j.ID, nil
}

func (s *InMemoryStore) ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*Job
	for _, j := range s.jobs {
		if j.Status == JobStatusQueued && !j.RunAt.After(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].RunAt.Before(due[k].RunAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]Job, 0, len(due))
	for _, j := range due {
		lockedAt := now
		j.Status = JobStatusRunning
		j.LockedAt = &lockedAt
		j.UpdatedAt = now
		out = append(out, *j)
	}
	return out, nil
}

func (s *InMemoryStore) job(id string) (*Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s not found", id)
	}
	return j, nil
}

func (s *InMemoryStore) CompleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.job(id)
	if err != nil {
		return err
	}
	j.Status = JobStatusDone
	j.LockedAt = nil
	j.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) FailJob(ctx context.Context, id string, errMsg string, nextRunAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.job(id)
	if err != nil {
		return err
	}
	j.Attempt++
	j.LastError = errMsg
	j.LockedAt = nil
	j.UpdatedAt = time.Now()
	if j.Attempt >= j.MaxAttempts {
		j.Status = JobStatusFailed
	} else {
		j.Status = JobStatusQueued
		j.RunAt = nextRunAt
	}
	return nil
}

func (s *InMemoryStore) CancelJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.job(id)
	if err != nil {
		return err
	}
	j.Status = JobStatusCanceled
	j.LockedAt = nil
	return nil
}

func (s *InMemoryStore) RequeueStaleRunningJobs(ctx context.Context, staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.Status == JobStatusRunning && j.LockedAt != nil && j.LockedAt.Before(staleBefore) {
			j.Status = JobStatusQueued
			j.LockedAt = nil
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) GetJob(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}
