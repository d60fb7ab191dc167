package study

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"hamstudy/internal/blueprint"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrQuestionNotFound    = errors.New("question not found")
	ErrTermNotFound        = errors.New("glossary term not found")
	ErrUnknownLicenseClass = errors.New("unknown license class")
)

// Answer history older than this no longer counts toward readiness.
const readinessWindow = 90 * 24 * time.Hour

type Service struct {
	db         *sql.DB
	blueprints blueprint.Set
}

func NewService(db *sql.DB, blueprints blueprint.Set) *Service {
	return &Service{db: db, blueprints: blueprints}
}

// BookmarkedQuestion is a bookmark joined with enough of the question to
// render a review list.
type BookmarkedQuestion struct {
	QuestionID    int64     `json:"question_id"`
	DisplayNumber string    `json:"display_number"`
	LicenseClass  string    `json:"license_class"`
	Subelement    string    `json:"subelement"`
	QuestionText  string    `json:"question_text"`
	BookmarkedAt  time.Time `json:"bookmarked_at"`
}

// ToggleBookmark flips a user's bookmark on a question and reports the
// resulting state.
func (s *Service) ToggleBookmark(ctx context.Context, userID, questionID int64) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM questions WHERE id = $1)
	`, questionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check question: %w", err)
	}
	if !exists {
		return false, ErrQuestionNotFound
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM bookmarks WHERE user_id = $1 AND question_id = $2
	`, userID, questionID)
	if err != nil {
		return false, fmt.Errorf("remove bookmark: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return false, nil
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO bookmarks (user_id, question_id, created_at)
		VALUES ($1, $2, now())
	`, userID, questionID); err != nil {
		return false, fmt.Errorf("insert bookmark: %w", err)
	}
	return true, nil
}

func (s *Service) ListBookmarks(ctx context.Context, userID int64) ([]BookmarkedQuestion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id, q.display_number, q.license_class, q.subelement, q.question_text, b.created_at
		FROM bookmarks b
		JOIN questions q ON q.id = b.question_id
		WHERE b.user_id = $1
		ORDER BY q.display_number
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query bookmarks: %w", err)
	}
	defer rows.Close()

	out := make([]BookmarkedQuestion, 0)
	for rows.Next() {
		var b BookmarkedQuestion
		if err := rows.Scan(&b.QuestionID, &b.DisplayNumber, &b.LicenseClass, &b.Subelement, &b.QuestionText, &b.BookmarkedAt); err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookmarks: %w", err)
	}
	return out, nil
}

// GlossaryTerm is one flashcard: a term and its definition, scoped to a
// license class or shared across all of them when LicenseClass is empty.
type GlossaryTerm struct {
	ID           int64     `json:"id"`
	Term         string    `json:"term"`
	Definition   string    `json:"definition"`
	LicenseClass string    `json:"license_class,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Flashcard is a glossary term plus the user's review state.
type Flashcard struct {
	GlossaryTerm
	Known    bool       `json:"known"`
	MarkedAt *time.Time `json:"marked_at,omitempty"`
}

type UpsertTermInput struct {
	Term         string `json:"term"`
	Definition   string `json:"definition"`
	LicenseClass string `json:"license_class,omitempty"`
	IsActive     *bool  `json:"is_active,omitempty"`
}

func (in *UpsertTermInput) normalize() error {
	in.Term = strings.TrimSpace(in.Term)
	in.Definition = strings.TrimSpace(in.Definition)
	in.LicenseClass = strings.ToLower(strings.TrimSpace(in.LicenseClass))
	if in.Term == "" {
		return fmt.Errorf("%w: term is required", ErrInvalidInput)
	}
	if in.Definition == "" {
		return fmt.Errorf("%w: definition is required", ErrInvalidInput)
	}
	return nil
}

func (s *Service) CreateTerm(ctx context.Context, in UpsertTermInput) (*GlossaryTerm, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	isActive := true
	if in.IsActive != nil {
		isActive = *in.IsActive
	}

	term := &GlossaryTerm{Term: in.Term, Definition: in.Definition, LicenseClass: in.LicenseClass, IsActive: isActive}
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO glossary_terms (term, definition, license_class, is_active, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, now())
		RETURNING id, created_at
	`, in.Term, in.Definition, in.LicenseClass, isActive).Scan(&term.ID, &term.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert glossary term: %w", err)
	}
	return term, nil
}

func (s *Service) UpdateTerm(ctx context.Context, id int64, in UpsertTermInput) (*GlossaryTerm, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	isActive := true
	if in.IsActive != nil {
		isActive = *in.IsActive
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE glossary_terms
		SET term = $2, definition = $3, license_class = NULLIF($4, ''), is_active = $5
		WHERE id = $1
	`, id, in.Term, in.Definition, in.LicenseClass, isActive)
	if err != nil {
		return nil, fmt.Errorf("update glossary term: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrTermNotFound
	}

	term := &GlossaryTerm{ID: id}
	var class sql.NullString
	if err := s.db.QueryRowContext(ctx, `
		SELECT term, definition, license_class, is_active, created_at
		FROM glossary_terms WHERE id = $1
	`, id).Scan(&term.Term, &term.Definition, &class, &term.IsActive, &term.CreatedAt); err != nil {
		return nil, fmt.Errorf("load glossary term: %w", err)
	}
	term.LicenseClass = class.String
	return term, nil
}

func (s *Service) DeleteTerm(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete term tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM flashcard_marks WHERE term_id = $1`, id); err != nil {
		return fmt.Errorf("delete term marks: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM glossary_terms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete glossary term: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTermNotFound
	}
	return tx.Commit()
}

// ListFlashcards returns the active glossary for a license class (class
// terms plus shared terms) together with the user's known/review state.
func (s *Service) ListFlashcards(ctx context.Context, userID int64, licenseClass string) ([]Flashcard, error) {
	class := strings.ToLower(strings.TrimSpace(licenseClass))

	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.term, g.definition, COALESCE(g.license_class, ''), g.is_active, g.created_at,
			COALESCE(m.known, FALSE), m.marked_at
		FROM glossary_terms g
		LEFT JOIN flashcard_marks m ON m.term_id = g.id AND m.user_id = $1
		WHERE g.is_active = TRUE
		  AND (g.license_class IS NULL OR $2 = '' OR g.license_class = $2)
		ORDER BY g.term
	`, userID, class)
	if err != nil {
		return nil, fmt.Errorf("query flashcards: %w", err)
	}
	defer rows.Close()

	out := make([]Flashcard, 0)
	for rows.Next() {
		var f Flashcard
		var markedAt sql.NullTime
		if err := rows.Scan(&f.ID, &f.Term, &f.Definition, &f.LicenseClass, &f.IsActive, &f.CreatedAt, &f.Known, &markedAt); err != nil {
			return nil, fmt.Errorf("scan flashcard: %w", err)
		}
		if markedAt.Valid {
			f.MarkedAt = &markedAt.Time
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flashcards: %w", err)
	}
	return out, nil
}

// MarkFlashcard records whether the user knows a term; marking it unknown
// puts it back into rotation.
func (s *Service) MarkFlashcard(ctx context.Context, userID, termID int64, known bool) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM glossary_terms WHERE id = $1)
	`, termID).Scan(&exists); err != nil {
		return fmt.Errorf("check glossary term: %w", err)
	}
	if !exists {
		return ErrTermNotFound
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO flashcard_marks (user_id, term_id, known, marked_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, term_id)
		DO UPDATE SET known = EXCLUDED.known, marked_at = now()
	`, userID, termID, known); err != nil {
		return fmt.Errorf("upsert flashcard mark: %w", err)
	}
	return nil
}

// UserReadiness aggregates the user's recent answer history per subelement
// and folds it into the readiness score for a license class.
func (s *Service) UserReadiness(ctx context.Context, userID int64, licenseClass string) (*Readiness, error) {
	bp, ok := s.blueprints.Get(licenseClass)
	if !ok {
		return nil, ErrUnknownLicenseClass
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			q.subelement,
			COUNT(*) AS attempted,
			COUNT(*) FILTER (WHERE UPPER(sq.selected_answer) = UPPER(q.correct_answer)) AS correct
		FROM session_questions sq
		JOIN exam_sessions es ON es.id = sq.session_id
		JOIN questions q ON q.id = sq.question_id
		WHERE es.user_id = $1
		  AND es.license_class = $2
		  AND sq.selected_answer IS NOT NULL
		  AND es.started_at > $3
		GROUP BY q.subelement
	`, userID, bp.LicenseClass, time.Now().Add(-readinessWindow))
	if err != nil {
		return nil, fmt.Errorf("query answer history: %w", err)
	}
	defer rows.Close()

	history := map[string]SubelementStats{}
	for rows.Next() {
		var st SubelementStats
		if err := rows.Scan(&st.Subelement, &st.Attempted, &st.Correct); err != nil {
			return nil, fmt.Errorf("scan answer history: %w", err)
		}
		history[st.Subelement] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answer history: %w", err)
	}

	// Every blueprint subelement appears in the result, attempted or not.
	stats := make([]SubelementStats, 0, len(bp.Distribution))
	for _, seg := range bp.Distribution {
		st := history[seg.Subelement]
		st.Subelement = seg.Subelement
		st.Quota = seg.Count
		stats = append(stats, st)
	}

	r := ComputeReadiness(stats)
	return &r, nil
}
