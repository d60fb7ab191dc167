package exam

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"hamstudy/internal/blueprint"
	"hamstudy/internal/contenthash"
	"hamstudy/internal/examgen"
	"hamstudy/internal/question"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionNotEditable  = errors.New("session is not editable")
	ErrSessionNotFinal     = errors.New("session not finalized")
	ErrSessionForbidden    = errors.New("session forbidden")
	ErrUnknownLicenseClass = errors.New("unknown license class")
	ErrPoolEmpty           = errors.New("question pool is empty")
	ErrInvalidPosition     = errors.New("question position not in session")
	ErrInvalidAnswer       = errors.New("answer must be one of A-D")
)

const (
	ModeExam     = "exam"
	ModePractice = "practice"

	statusInProgress = "in_progress"
	statusSubmitted  = "submitted"
	statusExpired    = "expired"
)

// poolLoader is the slice of the question service the exam flow needs.
type poolLoader interface {
	ActivePool(ctx context.Context, licenseClass string) ([]question.Question, error)
}

type Service struct {
	db          *sql.DB
	pool        poolLoader
	blueprints  blueprint.Set
	examMinutes int
}

const defaultPracticeCount = 10

func NewService(db *sql.DB, pool poolLoader, blueprints blueprint.Set, examMinutes int) *Service {
	if examMinutes <= 0 {
		examMinutes = 60
	}
	return &Service{db: db, pool: pool, blueprints: blueprints, examMinutes: examMinutes}
}

type StartSessionInput struct {
	UserID        int64
	LicenseClass  string
	Mode          string
	QuestionCount int      // practice mode only; exam mode uses the blueprint
	Subelements   []string // practice mode only; empty means the whole pool
}

type Session struct {
	ID            string     `json:"id"`
	UserID        int64      `json:"user_id"`
	LicenseClass  string     `json:"license_class"`
	Mode          string     `json:"mode"`
	Status        string     `json:"status"`
	QuestionCount int        `json:"question_count"`
	PassingScore  int        `json:"passing_score"`
	StartedAt     time.Time  `json:"started_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

type SessionSummary struct {
	Session
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	RemainingSecs int64      `json:"remaining_secs"`
	Answered      int        `json:"answered"`
	Correct       int        `json:"correct"`
	Incorrect     int        `json:"incorrect"`
	Unanswered    int        `json:"unanswered"`
	Percent       float64    `json:"percent"`
	Passed        *bool      `json:"passed,omitempty"`
}

// SessionQuestion is one question as presented to the taker. The correct
// answer and explanation are withheld until they may be shown.
type SessionQuestion struct {
	Position      int     `json:"position"`
	DisplayNumber string  `json:"display_number"`
	Subelement    string  `json:"subelement"`
	Group         string  `json:"group"`
	QuestionText  string  `json:"question_text"`
	OptionA       string  `json:"option_a"`
	OptionB       string  `json:"option_b"`
	OptionC       string  `json:"option_c"`
	OptionD       string  `json:"option_d"`
	FigureRef     *string `json:"figure_ref,omitempty"`
	Selected      string  `json:"selected,omitempty"`
	CorrectAnswer string  `json:"correct_answer,omitempty"`
	Explanation   *string `json:"explanation,omitempty"`
}

type SaveAnswerInput struct {
	SessionID string
	Position  int
	Answer    string
}

// AnswerFeedback is returned from SaveAnswer in practice mode, where the
// taker learns the outcome immediately.
type AnswerFeedback struct {
	Position      int     `json:"position"`
	Correct       *bool   `json:"correct,omitempty"`
	CorrectAnswer string  `json:"correct_answer,omitempty"`
	Explanation   *string `json:"explanation,omitempty"`
}

type ResultItem struct {
	Position      int     `json:"position"`
	DisplayNumber string  `json:"display_number"`
	Subelement    string  `json:"subelement"`
	Selected      string  `json:"selected,omitempty"`
	CorrectAnswer string  `json:"correct_answer"`
	IsCorrect     *bool   `json:"is_correct,omitempty"`
	Explanation   *string `json:"explanation,omitempty"`
}

type SessionResult struct {
	Summary   SessionSummary        `json:"summary"`
	Grade     Grade                 `json:"grade"`
	Items     []ResultItem          `json:"items"`
	Breakdown []SubelementBreakdown `json:"breakdown"`
}

type sessionRow struct {
	ID            int64
	PublicID      string
	UserID        int64
	LicenseClass  string
	Mode          string
	Status        string
	QuestionCount int
	PassingScore  int
	StartedAt     time.Time
	ExpiresAt     sql.NullTime
	SubmittedAt   sql.NullTime
	Correct       sql.NullInt64
	Incorrect     sql.NullInt64
	Unanswered    sql.NullInt64
	Percent       sql.NullFloat64
	Passed        sql.NullBool
}

// StartSession assembles a fresh question set for the user and persists it.
// Exam mode draws the full blueprint set under a countdown; practice mode
// draws a smaller untimed set, optionally restricted to subelements.
func (s *Service) StartSession(ctx context.Context, in StartSessionInput) (*Session, error) {
	bp, ok := s.blueprints.Get(in.LicenseClass)
	if !ok {
		return nil, ErrUnknownLicenseClass
	}

	mode := strings.ToLower(strings.TrimSpace(in.Mode))
	if mode == "" {
		mode = ModeExam
	}
	if mode != ModeExam && mode != ModePractice {
		return nil, fmt.Errorf("invalid mode %q", in.Mode)
	}

	pool, err := s.pool.ActivePool(ctx, bp.LicenseClass)
	if err != nil {
		return nil, fmt.Errorf("load question pool: %w", err)
	}

	var selected []question.Question
	switch mode {
	case ModeExam:
		selected = examgen.SelectExamQuestions(pool, bp.QuestionCount, bp.ExamDistribution())
	case ModePractice:
		if len(in.Subelements) > 0 {
			pool = filterBySubelements(pool, in.Subelements)
		}
		count := in.QuestionCount
		if count <= 0 {
			count = defaultPracticeCount
		}
		if count > len(pool) {
			count = len(pool)
		}
		// No distribution: the selector's global pass gives a plain
		// uniform draw without duplicates.
		selected = examgen.SelectExamQuestions(pool, count, nil)
	}
	if len(selected) == 0 {
		return nil, ErrPoolEmpty
	}

	session := &Session{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		LicenseClass:  bp.LicenseClass,
		Mode:          mode,
		Status:        statusInProgress,
		QuestionCount: len(selected),
		PassingScore:  PassingScoreFor(len(selected)),
	}

	var expiresAt interface{}
	if mode == ModeExam {
		t := time.Now().Add(time.Duration(s.examMinutes) * time.Minute)
		session.ExpiresAt = &t
		expiresAt = t
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin start session tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var sessionID int64
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO exam_sessions (
			public_id,
			user_id,
			license_class,
			mode,
			status,
			question_count,
			passing_score,
			started_at,
			expires_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,now(),$8)
		RETURNING id, started_at
	`, session.ID, in.UserID, bp.LicenseClass, mode, statusInProgress,
		session.QuestionCount, session.PassingScore, expiresAt,
	).Scan(&sessionID, &session.StartedAt); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	for i, q := range selected {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_questions (session_id, position, question_id)
			VALUES ($1,$2,$3)
		`, sessionID, i+1, q.ID); err != nil {
			return nil, fmt.Errorf("insert session question %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit start session: %w", err)
	}
	return session, nil
}

func filterBySubelements(pool []question.Question, subelements []string) []question.Question {
	want := map[string]bool{}
	for _, sub := range subelements {
		sub = strings.ToUpper(strings.TrimSpace(sub))
		if sub != "" {
			want[sub] = true
		}
	}
	if len(want) == 0 {
		return pool
	}
	out := make([]question.Question, 0, len(pool))
	for _, q := range pool {
		if want[q.Subelement] {
			out = append(out, q)
		}
	}
	return out
}

func (s *Service) GetSessionOwner(ctx context.Context, sessionID string) (int64, error) {
	var userID int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM exam_sessions WHERE public_id = $1
	`, sessionID).Scan(&userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrSessionNotFound
		}
		return 0, fmt.Errorf("load session owner: %w", err)
	}
	return userID, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (*SessionSummary, error) {
	row, err := s.loadSessionRow(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}

	if row.Status == statusInProgress && expired(row) {
		if _, err := s.finalizeSession(ctx, sessionID, statusExpired); err != nil {
			return nil, err
		}
		row, err = s.loadSessionRow(ctx, s.db, sessionID)
		if err != nil {
			return nil, err
		}
	}

	return s.buildSummary(ctx, s.db, row)
}

func (s *Service) GetSessionQuestion(ctx context.Context, sessionID string, position int) (*SessionQuestion, error) {
	row, err := s.loadSessionRow(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	if position <= 0 || position > row.QuestionCount {
		return nil, ErrInvalidPosition
	}

	sq := &SessionQuestion{}
	var selected sql.NullString
	var answerKey string
	var explanation *string
	if err := s.db.QueryRowContext(ctx, `
		SELECT
			sq.position,
			q.display_number,
			q.subelement,
			q.question_group,
			q.question_text,
			q.option_a, q.option_b, q.option_c, q.option_d,
			q.figure_ref,
			sq.selected_answer,
			q.correct_answer,
			q.explanation
		FROM session_questions sq
		JOIN questions q ON q.id = sq.question_id
		WHERE sq.session_id = $1 AND sq.position = $2
	`, row.ID, position).Scan(
		&sq.Position,
		&sq.DisplayNumber,
		&sq.Subelement,
		&sq.Group,
		&sq.QuestionText,
		&sq.OptionA, &sq.OptionB, &sq.OptionC, &sq.OptionD,
		&sq.FigureRef,
		&selected,
		&answerKey,
		&explanation,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidPosition
		}
		return nil, fmt.Errorf("load session question: %w", err)
	}

	if selected.Valid {
		sq.Selected = selected.String
	}

	// The key is revealed once the session is final, or in practice mode
	// once this question has been answered.
	finalized := row.Status != statusInProgress
	if finalized || (row.Mode == ModePractice && sq.Selected != "") {
		sq.CorrectAnswer = answerKey
		sq.Explanation = explanation
	}
	return sq, nil
}

func (s *Service) SaveAnswer(ctx context.Context, in SaveAnswerInput) (*AnswerFeedback, error) {
	row, err := s.loadSessionRow(ctx, s.db, in.SessionID)
	if err != nil {
		return nil, err
	}
	if row.Status != statusInProgress {
		return nil, ErrSessionNotEditable
	}
	if expired(row) {
		_, _ = s.finalizeSession(ctx, in.SessionID, statusExpired)
		return nil, ErrSessionNotEditable
	}
	if in.Position <= 0 || in.Position > row.QuestionCount {
		return nil, ErrInvalidPosition
	}

	answer := strings.ToUpper(strings.TrimSpace(in.Answer))
	if answer != "" && contenthash.AnswerIndex(answer) < 0 {
		return nil, ErrInvalidAnswer
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE session_questions
		SET selected_answer = NULLIF($3, ''),
			answered_at = CASE WHEN $3 = '' THEN NULL ELSE now() END
		WHERE session_id = $1 AND position = $2
	`, row.ID, in.Position, answer)
	if err != nil {
		return nil, fmt.Errorf("save answer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrInvalidPosition
	}

	feedback := &AnswerFeedback{Position: in.Position}
	if row.Mode == ModePractice && answer != "" {
		var answerKey string
		var explanation *string
		if err := s.db.QueryRowContext(ctx, `
			SELECT q.correct_answer, q.explanation
			FROM session_questions sq
			JOIN questions q ON q.id = sq.question_id
			WHERE sq.session_id = $1 AND sq.position = $2
		`, row.ID, in.Position).Scan(&answerKey, &explanation); err != nil {
			return nil, fmt.Errorf("load answer key: %w", err)
		}
		correct := strings.EqualFold(answer, answerKey)
		feedback.Correct = &correct
		feedback.CorrectAnswer = answerKey
		feedback.Explanation = explanation
	}
	return feedback, nil
}

func (s *Service) SubmitSession(ctx context.Context, sessionID string) (*SessionSummary, error) {
	return s.finalizeSession(ctx, sessionID, statusSubmitted)
}

func (s *Service) GetSessionResult(ctx context.Context, sessionID string) (*SessionResult, error) {
	row, err := s.loadSessionRow(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}

	if row.Status == statusInProgress {
		if !expired(row) {
			return nil, ErrSessionNotFinal
		}
		if _, err := s.finalizeSession(ctx, sessionID, statusExpired); err != nil {
			return nil, err
		}
		row, err = s.loadSessionRow(ctx, s.db, sessionID)
		if err != nil {
			return nil, err
		}
	}

	summary, err := s.buildSummary(ctx, s.db, row)
	if err != nil {
		return nil, err
	}

	graded, items, err := s.loadGradedItems(ctx, s.db, row)
	if err != nil {
		return nil, err
	}
	grade := GradeSession(graded, row.PassingScore)

	return &SessionResult{
		Summary:   *summary,
		Grade:     grade,
		Items:     items,
		Breakdown: grade.Breakdown,
	}, nil
}

// ListUserSessions returns the user's most recent sessions, newest first.
func (s *Service) ListUserSessions(ctx context.Context, userID int64, limit int) ([]SessionSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM exam_sessions
		WHERE user_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query user sessions: %w", err)
	}
	defer rows.Close()

	out := make([]SessionSummary, 0)
	for rows.Next() {
		row, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		summary, err := s.buildSummary(ctx, s.db, row)
		if err != nil {
			return nil, err
		}
		out = append(out, *summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

func (s *Service) finalizeSession(ctx context.Context, sessionID, finalStatus string) (*SessionSummary, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin finalize tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row, err := s.loadSessionRowForUpdate(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}

	if row.Status != statusInProgress {
		summary, err := s.buildSummary(ctx, tx, row)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit finalize existing: %w", err)
		}
		return summary, nil
	}

	if finalStatus == statusExpired && !expired(row) {
		summary, err := s.buildSummary(ctx, tx, row)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit finalize noop: %w", err)
		}
		return summary, nil
	}

	graded, _, err := s.loadGradedItems(ctx, tx, row)
	if err != nil {
		return nil, err
	}
	grade := GradeSession(graded, row.PassingScore)

	if _, err := tx.ExecContext(ctx, `
		UPDATE exam_sessions
		SET status = $2,
			submitted_at = now(),
			total_correct = $3,
			total_incorrect = $4,
			total_unanswered = $5,
			score_percent = $6,
			passed = $7
		WHERE id = $1
	`, row.ID, finalStatus, grade.Correct, grade.Incorrect, grade.Unanswered, grade.Percent, grade.Passed); err != nil {
		return nil, fmt.Errorf("update session final: %w", err)
	}

	row, err = s.loadSessionRowForUpdate(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}
	summary, err := s.buildSummary(ctx, tx, row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit finalize: %w", err)
	}
	return summary, nil
}

func (s *Service) loadGradedItems(ctx context.Context, q queryable, row *sessionRow) ([]GradeItem, []ResultItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT
			sq.position,
			qs.display_number,
			qs.subelement,
			COALESCE(sq.selected_answer, ''),
			qs.correct_answer,
			qs.explanation
		FROM session_questions sq
		JOIN questions qs ON qs.id = sq.question_id
		WHERE sq.session_id = $1
		ORDER BY sq.position
	`, row.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("query session answers: %w", err)
	}
	defer rows.Close()

	graded := make([]GradeItem, 0, row.QuestionCount)
	items := make([]ResultItem, 0, row.QuestionCount)
	for rows.Next() {
		var (
			item        ResultItem
			explanation *string
		)
		if err := rows.Scan(&item.Position, &item.DisplayNumber, &item.Subelement, &item.Selected, &item.CorrectAnswer, &explanation); err != nil {
			return nil, nil, fmt.Errorf("scan session answer: %w", err)
		}
		item.Explanation = explanation
		if item.Selected != "" {
			correct := strings.EqualFold(item.Selected, item.CorrectAnswer)
			item.IsCorrect = &correct
		}
		items = append(items, item)
		graded = append(graded, GradeItem{
			Position:   item.Position,
			Subelement: item.Subelement,
			Selected:   item.Selected,
			Correct:    item.CorrectAnswer,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate session answers: %w", err)
	}
	return graded, items, nil
}

func (s *Service) buildSummary(ctx context.Context, q queryable, row *sessionRow) (*SessionSummary, error) {
	var answered int
	if err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM session_questions
		WHERE session_id = $1 AND selected_answer IS NOT NULL
	`, row.ID).Scan(&answered); err != nil {
		return nil, fmt.Errorf("count answered: %w", err)
	}

	summary := &SessionSummary{
		Session: Session{
			ID:            row.PublicID,
			UserID:        row.UserID,
			LicenseClass:  row.LicenseClass,
			Mode:          row.Mode,
			Status:        row.Status,
			QuestionCount: row.QuestionCount,
			PassingScore:  row.PassingScore,
			StartedAt:     row.StartedAt,
		},
		Answered:      answered,
		RemainingSecs: remainingSeconds(row),
	}
	if row.ExpiresAt.Valid {
		summary.ExpiresAt = &row.ExpiresAt.Time
	}
	if row.SubmittedAt.Valid {
		summary.SubmittedAt = &row.SubmittedAt.Time
	}

	if row.Status == statusInProgress {
		summary.Unanswered = row.QuestionCount - answered
		return summary, nil
	}

	if row.Correct.Valid {
		summary.Correct = int(row.Correct.Int64)
	}
	if row.Incorrect.Valid {
		summary.Incorrect = int(row.Incorrect.Int64)
	}
	if row.Unanswered.Valid {
		summary.Unanswered = int(row.Unanswered.Int64)
	} else {
		summary.Unanswered = row.QuestionCount - answered
	}
	if row.Percent.Valid {
		summary.Percent = row.Percent.Float64
	}
	if row.Passed.Valid {
		v := row.Passed.Bool
		summary.Passed = &v
	}
	return summary, nil
}

const sessionColumns = `
	id,
	public_id,
	user_id,
	license_class,
	mode,
	status,
	question_count,
	passing_score,
	started_at,
	expires_at,
	submitted_at,
	total_correct,
	total_incorrect,
	total_unanswered,
	score_percent,
	passed
`

func (s *Service) loadSessionRow(ctx context.Context, q queryable, sessionID string) (*sessionRow, error) {
	return scanSessionRowErr(q.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM exam_sessions
		WHERE public_id = $1
	`, sessionID))
}

func (s *Service) loadSessionRowForUpdate(ctx context.Context, tx *sql.Tx, sessionID string) (*sessionRow, error) {
	return scanSessionRowErr(tx.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM exam_sessions
		WHERE public_id = $1
		FOR UPDATE
	`, sessionID))
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSessionRow(r rowScanner) (*sessionRow, error) {
	row := &sessionRow{}
	err := r.Scan(
		&row.ID,
		&row.PublicID,
		&row.UserID,
		&row.LicenseClass,
		&row.Mode,
		&row.Status,
		&row.QuestionCount,
		&row.PassingScore,
		&row.StartedAt,
		&row.ExpiresAt,
		&row.SubmittedAt,
		&row.Correct,
		&row.Incorrect,
		&row.Unanswered,
		&row.Percent,
		&row.Passed,
	)
	if err != nil {
		return nil, err
	}
	return row, nil
}

func scanSessionRowErr(r *sql.Row) (*sessionRow, error) {
	row, err := scanSessionRow(r)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	return row, nil
}

type queryable interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func expired(row *sessionRow) bool {
	return row.ExpiresAt.Valid && time.Now().After(row.ExpiresAt.Time)
}

func remainingSeconds(row *sessionRow) int64 {
	if row.Status != statusInProgress || !row.ExpiresAt.Valid {
		return 0
	}
	remaining := time.Until(row.ExpiresAt.Time)
	if remaining <= 0 {
		return 0
	}
	return int64(remaining.Seconds())
}
