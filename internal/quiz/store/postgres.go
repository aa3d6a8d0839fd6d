package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"quizdeck/internal/quiz/models"
	"quizdeck/pkg/domain"
	"quizdeck/pkg/platform/sentinel"
)

// completionSweepBatch bounds the number of rows flipped per UPDATE during
// the completion sweep so a large backlog cannot hold row locks for long.
const completionSweepBatch = 1000

// PostgresStore persists quizzes and assignments in PostgreSQL.
//
// publish_at holds the UTC instant of business-midnight on the publish date,
// so every calendar-date filter becomes a half-open instant range computed
// by domain.DayBoundary. Guarded mutations are single conditional statements;
// the database evaluates predicate and write atomically.
type PostgresStore struct {
	db  *sql.DB
	loc *time.Location
	now func() time.Time
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithPostgresClock sets the clock function for testability.
func WithPostgresClock(now func() time.Time) PostgresOption {
	return func(s *PostgresStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewPostgres constructs a PostgreSQL-backed store. loc is the business
// timezone used for all date/instant conversions.
func NewPostgres(db *sql.DB, loc *time.Location, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db, loc: loc, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

const quizColumns = "id, author_id, publish_at, question, answer, hint, reward_points, status, created_at, updated_at"

func (s *PostgresStore) Create(ctx context.Context, quiz *models.Quiz) error {
	publishAt, _ := domain.DayBoundary(quiz.PublishDate, s.loc)
	now := s.now().UTC()
	if quiz.CachedStatus == "" {
		quiz.CachedStatus = models.StatusScheduled
	}
	query := `
		INSERT INTO quizzes (author_id, publish_at, question, answer, hint, reward_points, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING id
	`
	var id int64
	err := s.db.QueryRowContext(ctx, query,
		quiz.AuthorID.String(), publishAt, quiz.Question, quiz.Answer,
		quiz.Hint, quiz.RewardPoints, string(quiz.CachedStatus), now,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("create quiz: %w", err)
	}
	quiz.ID = domain.QuizID(id)
	quiz.CreatedAt = now
	quiz.UpdatedAt = now
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.QuizID) (*models.Quiz, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE id = $1`, id.Int64())
	quiz, err := s.scanQuiz(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find quiz: %w", err)
	}
	return quiz, nil
}

func (s *PostgresStore) ListActiveForAuthor(ctx context.Context, authorID domain.UserID, day domain.CalendarDate, limit int, afterID domain.QuizID) (*Page, error) {
	start, end := domain.DayBoundary(day, s.loc)
	query := `
		SELECT ` + quizColumns + `
		FROM quizzes
		WHERE author_id = $1 AND publish_at >= $2 AND publish_at < $3 AND id > $4
		ORDER BY id ASC
		LIMIT $5
	`
	rows, err := s.db.QueryContext(ctx, query, authorID.String(), start, end, afterID.Int64(), limit+1)
	if err != nil {
		return nil, fmt.Errorf("list active quizzes: %w", err)
	}
	return s.collectPage(rows, limit)
}

func (s *PostgresStore) ListScheduledForAuthor(ctx context.Context, authorID domain.UserID, today domain.CalendarDate, limit int, after *DateIDKey) (*Page, error) {
	// publishDate > today is equivalent to publish_at >= start of tomorrow,
	// because stored instants are always business-midnights.
	tomorrowStart, _ := domain.DayBoundary(today.AddDays(1), s.loc)

	var rows *sql.Rows
	var err error
	if after == nil {
		query := `
			SELECT ` + quizColumns + `
			FROM quizzes
			WHERE author_id = $1 AND publish_at >= $2
			ORDER BY publish_at ASC, id ASC
			LIMIT $3
		`
		rows, err = s.db.QueryContext(ctx, query, authorID.String(), tomorrowStart, limit+1)
	} else {
		afterStart, _ := domain.DayBoundary(after.Date, s.loc)
		query := `
			SELECT ` + quizColumns + `
			FROM quizzes
			WHERE author_id = $1 AND publish_at >= $2
			  AND (publish_at > $3 OR (publish_at = $3 AND id > $4))
			ORDER BY publish_at ASC, id ASC
			LIMIT $5
		`
		rows, err = s.db.QueryContext(ctx, query, authorID.String(), tomorrowStart, afterStart, after.ID.Int64(), limit+1)
	}
	if err != nil {
		return nil, fmt.Errorf("list scheduled quizzes: %w", err)
	}
	return s.collectPage(rows, limit)
}

func (s *PostgresStore) ListCompletedForAuthor(ctx context.Context, authorID domain.UserID, today domain.CalendarDate, limit int, after *DateIDKey) (*Page, error) {
	todayStart, _ := domain.DayBoundary(today, s.loc)

	var rows *sql.Rows
	var err error
	if after == nil {
		query := `
			SELECT ` + quizColumns + `
			FROM quizzes
			WHERE author_id = $1 AND publish_at < $2
			ORDER BY publish_at DESC, id DESC
			LIMIT $3
		`
		rows, err = s.db.QueryContext(ctx, query, authorID.String(), todayStart, limit+1)
	} else {
		afterStart, _ := domain.DayBoundary(after.Date, s.loc)
		query := `
			SELECT ` + quizColumns + `
			FROM quizzes
			WHERE author_id = $1 AND publish_at < $2
			  AND (publish_at < $3 OR (publish_at = $3 AND id < $4))
			ORDER BY publish_at DESC, id DESC
			LIMIT $5
		`
		rows, err = s.db.QueryContext(ctx, query, authorID.String(), todayStart, afterStart, after.ID.Int64(), limit+1)
	}
	if err != nil {
		return nil, fmt.Errorf("list completed quizzes: %w", err)
	}
	return s.collectPage(rows, limit)
}

func (s *PostgresStore) UpdateIfScheduled(ctx context.Context, id domain.QuizID, authorID domain.UserID, today domain.CalendarDate, patch models.QuizPatch) (int64, error) {
	tomorrowStart, _ := domain.DayBoundary(today.AddDays(1), s.loc)

	// Only fields present in the patch appear in SET; an explicit null on a
	// clearable field writes NULL.
	set := make([]string, 0, 5)
	args := make([]any, 0, 8)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if patch.Question.Set {
		set = append(set, "question = "+arg(patch.Question.Value))
	}
	if patch.Answer.Set {
		set = append(set, "answer = "+arg(patch.Answer.Value))
	}
	if patch.Hint.Set {
		if patch.Hint.Valid {
			set = append(set, "hint = "+arg(patch.Hint.Value))
		} else {
			set = append(set, "hint = NULL")
		}
	}
	if patch.RewardPoints.Set {
		set = append(set, "reward_points = "+arg(patch.RewardPoints.Value))
	}
	if len(set) == 0 {
		return 0, nil
	}
	set = append(set, "updated_at = "+arg(s.now().UTC()))

	query := "UPDATE quizzes SET " + strings.Join(set, ", ") +
		" WHERE id = " + arg(id.Int64()) +
		" AND author_id = " + arg(authorID.String()) +
		" AND publish_at >= " + arg(tomorrowStart)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("guarded quiz update: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("guarded quiz update rows: %w", err)
	}
	return affected, nil
}

func (s *PostgresStore) DeleteIfScheduled(ctx context.Context, id domain.QuizID, authorID domain.UserID, today domain.CalendarDate) (int64, error) {
	tomorrowStart, _ := domain.DayBoundary(today.AddDays(1), s.loc)
	query := `
		DELETE FROM quizzes
		WHERE id = $1 AND author_id = $2 AND publish_at >= $3
	`
	result, err := s.db.ExecContext(ctx, query, id.Int64(), authorID.String(), tomorrowStart)
	if err != nil {
		return 0, fmt.Errorf("guarded quiz delete: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("guarded quiz delete rows: %w", err)
	}
	return affected, nil
}

func (s *PostgresStore) TransitionStatuses(ctx context.Context, today domain.CalendarDate) (TransitionCounts, error) {
	start, end := domain.DayBoundary(today, s.loc)
	now := s.now().UTC()
	var counts TransitionCounts

	result, err := s.db.ExecContext(ctx, `
		UPDATE quizzes SET status = 'active', updated_at = $3
		WHERE publish_at >= $1 AND publish_at < $2 AND status = 'scheduled'
	`, start, end, now)
	if err != nil {
		return counts, fmt.Errorf("activate quizzes: %w", err)
	}
	counts.Activated, err = result.RowsAffected()
	if err != nil {
		return counts, fmt.Errorf("activate quizzes rows: %w", err)
	}

	// The completion sweep can face an unbounded backlog (e.g. after the job
	// was down), so it runs in id-ordered chunks.
	for {
		flipped, err := s.completeBatch(ctx, start, now)
		if err != nil {
			return counts, err
		}
		counts.Completed += flipped
		if flipped < completionSweepBatch {
			return counts, nil
		}
	}
}

func (s *PostgresStore) completeBatch(ctx context.Context, todayStart, now time.Time) (int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM quizzes
		WHERE publish_at < $1 AND status IN ('scheduled', 'active')
		ORDER BY id
		LIMIT $2
	`, todayStart, completionSweepBatch)
	if err != nil {
		return 0, fmt.Errorf("select completion batch: %w", err)
	}
	ids := make([]int64, 0, completionSweepBatch)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan completion batch: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("read completion batch: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE quizzes SET status = 'completed', updated_at = $2
		WHERE id = ANY($1::bigint[]) AND status IN ('scheduled', 'active')
	`, pq.Array(ids), now)
	if err != nil {
		return 0, fmt.Errorf("complete quizzes batch: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("complete quizzes rows: %w", err)
	}
	return affected, nil
}

func (s *PostgresStore) GetAssignment(ctx context.Context, quizID domain.QuizID, recipientID domain.UserID) (*models.Assignment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT quiz_id, recipient_id, is_solved, reward_granted, created_at, solved_at
		FROM assignments
		WHERE quiz_id = $1 AND recipient_id = $2
	`, quizID.Int64(), recipientID.String())
	assignment, err := s.scanAssignment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find assignment: %w", err)
	}
	return assignment, nil
}

func (s *PostgresStore) EnsureAssignment(ctx context.Context, quizID domain.QuizID, recipientID domain.UserID) (*models.Assignment, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assignments (quiz_id, recipient_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (quiz_id, recipient_id) DO NOTHING
	`, quizID.Int64(), recipientID.String(), s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("ensure assignment: %w", err)
	}
	return s.GetAssignment(ctx, quizID, recipientID)
}

func (s *PostgresStore) MarkSolved(ctx context.Context, quizID domain.QuizID, recipientID domain.UserID) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE assignments SET is_solved = TRUE, solved_at = $3
		WHERE quiz_id = $1 AND recipient_id = $2 AND is_solved = FALSE
	`, quizID.Int64(), recipientID.String(), s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("mark assignment solved: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark assignment solved rows: %w", err)
	}
	return affected, nil
}

func (s *PostgresStore) GrantReward(ctx context.Context, quizID domain.QuizID, recipientID domain.UserID) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE assignments SET reward_granted = TRUE
		WHERE quiz_id = $1 AND recipient_id = $2 AND is_solved = TRUE AND reward_granted = FALSE
	`, quizID.Int64(), recipientID.String())
	if err != nil {
		return 0, fmt.Errorf("grant reward: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("grant reward rows: %w", err)
	}
	return affected, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanQuiz(row rowScanner) (*models.Quiz, error) {
	var (
		quiz      models.Quiz
		id        int64
		authorID  string
		publishAt time.Time
		status    string
	)
	err := row.Scan(&id, &authorID, &publishAt, &quiz.Question, &quiz.Answer,
		&quiz.Hint, &quiz.RewardPoints, &status, &quiz.CreatedAt, &quiz.UpdatedAt)
	if err != nil {
		return nil, err
	}
	parsedAuthor, err := domain.ParseUserID(authorID)
	if err != nil {
		return nil, fmt.Errorf("stored author id %q: %w", authorID, err)
	}
	quiz.ID = domain.QuizID(id)
	quiz.AuthorID = parsedAuthor
	quiz.PublishDate = domain.CalendarDateOf(publishAt, s.loc)
	quiz.CachedStatus = models.QuizStatus(status)
	return &quiz, nil
}

func (s *PostgresStore) scanAssignment(row rowScanner) (*models.Assignment, error) {
	var (
		assignment  models.Assignment
		quizID      int64
		recipientID string
		solvedAt    sql.NullTime
	)
	err := row.Scan(&quizID, &recipientID, &assignment.IsSolved,
		&assignment.RewardGranted, &assignment.CreatedAt, &solvedAt)
	if err != nil {
		return nil, err
	}
	parsedRecipient, err := domain.ParseUserID(recipientID)
	if err != nil {
		return nil, fmt.Errorf("stored recipient id %q: %w", recipientID, err)
	}
	assignment.QuizID = domain.QuizID(quizID)
	assignment.RecipientID = parsedRecipient
	if solvedAt.Valid {
		t := solvedAt.Time
		assignment.SolvedAt = &t
	}
	return &assignment, nil
}

func (s *PostgresStore) collectPage(rows *sql.Rows, limit int) (*Page, error) {
	defer rows.Close()

	quizzes := make([]*models.Quiz, 0, limit+1)
	for rows.Next() {
		quiz, err := s.scanQuiz(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quiz page: %w", err)
		}
		quizzes = append(quizzes, quiz)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read quiz page: %w", err)
	}

	hasNext := len(quizzes) > limit
	if hasNext {
		quizzes = quizzes[:limit]
	}
	return &Page{Quizzes: quizzes, HasNext: hasNext}, nil
}
