package question

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"hamstudy/internal/contenthash"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrQuestionNotFound = errors.New("question not found")
	ErrDuplicateNumber  = errors.New("display number already exists")
)

// Display numbers follow the pool convention: subelement, group letter,
// two-digit sequence, e.g. T1A01, G9B11, E0A02.
var displayNumberRe = regexp.MustCompile(`^([TGE][0-9])([A-Z])([0-9]{2})$`)

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Question is one pool entry. Subelement and Group are derived from the
// display number on write so the selector's grouping fields cannot drift
// from the numbering.
type Question struct {
	ID            int64     `json:"id"`
	DisplayNumber string    `json:"display_number"`
	LicenseClass  string    `json:"license_class"`
	Subelement    string    `json:"subelement"`
	Group         string    `json:"group"`
	QuestionText  string    `json:"question_text"`
	OptionA       string    `json:"option_a"`
	OptionB       string    `json:"option_b"`
	OptionC       string    `json:"option_c"`
	OptionD       string    `json:"option_d"`
	CorrectAnswer string    `json:"correct_answer"`
	Explanation   *string   `json:"explanation,omitempty"`
	FigureRef     *string   `json:"figure_ref,omitempty"`
	IsActive      bool      `json:"is_active"`
	ContentHash   string    `json:"content_hash"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SubelementCode and QuestionGroup satisfy the exam selector's view of a
// pool item.
func (q Question) SubelementCode() string { return q.Subelement }
func (q Question) QuestionGroup() string  { return q.Group }

// Options returns the option texts in A-D order.
func (q Question) Options() []string {
	return []string{q.OptionA, q.OptionB, q.OptionC, q.OptionD}
}

// Hash computes the content digest from the question's current fields.
func (q Question) Hash() string {
	return contenthash.ContentHash(q.QuestionText, q.Options(), contenthash.AnswerIndex(q.CorrectAnswer))
}

type UpsertQuestionInput struct {
	DisplayNumber string  `json:"display_number"`
	LicenseClass  string  `json:"license_class"`
	QuestionText  string  `json:"question_text"`
	OptionA       string  `json:"option_a"`
	OptionB       string  `json:"option_b"`
	OptionC       string  `json:"option_c"`
	OptionD       string  `json:"option_d"`
	CorrectAnswer string  `json:"correct_answer"`
	Explanation   *string `json:"explanation,omitempty"`
	FigureRef     *string `json:"figure_ref,omitempty"`
	IsActive      *bool   `json:"is_active,omitempty"`
}

type ListFilter struct {
	LicenseClass string
	Subelement   string
	Group        string
	ActiveOnly   bool
	Limit        int
	Offset       int
}

func (in *UpsertQuestionInput) normalize() error {
	in.DisplayNumber = strings.ToUpper(strings.TrimSpace(in.DisplayNumber))
	in.LicenseClass = strings.ToLower(strings.TrimSpace(in.LicenseClass))
	in.QuestionText = strings.TrimSpace(in.QuestionText)
	in.OptionA = strings.TrimSpace(in.OptionA)
	in.OptionB = strings.TrimSpace(in.OptionB)
	in.OptionC = strings.TrimSpace(in.OptionC)
	in.OptionD = strings.TrimSpace(in.OptionD)
	in.CorrectAnswer = strings.ToUpper(strings.TrimSpace(in.CorrectAnswer))

	if !displayNumberRe.MatchString(in.DisplayNumber) {
		return fmt.Errorf("%w: display_number %q does not match the pool numbering", ErrInvalidInput, in.DisplayNumber)
	}
	if in.LicenseClass == "" {
		return fmt.Errorf("%w: license_class is required", ErrInvalidInput)
	}
	if in.QuestionText == "" {
		return fmt.Errorf("%w: question_text is required", ErrInvalidInput)
	}
	if in.OptionA == "" || in.OptionB == "" || in.OptionC == "" || in.OptionD == "" {
		return fmt.Errorf("%w: all four options are required", ErrInvalidInput)
	}
	if contenthash.AnswerIndex(in.CorrectAnswer) < 0 {
		return fmt.Errorf("%w: correct_answer must be one of A-D", ErrInvalidInput)
	}
	return nil
}

func (in UpsertQuestionInput) hash() string {
	return contenthash.ContentHash(
		in.QuestionText,
		[]string{in.OptionA, in.OptionB, in.OptionC, in.OptionD},
		contenthash.AnswerIndex(in.CorrectAnswer),
	)
}

// SplitDisplayNumber derives (subelement, group) from a pool display
/// number: T1A01 -> ("T1", "T1A").
func SplitDisplayNumber(number string) (subelement, group string, ok bool) {
	m := displayNumberRe.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(number)))
	if m == nil {
		return "", "", false
	}
	return m[1], m[1] + m[2], true
}

func (s *Service) Create(ctx context.Context, in UpsertQuestionInput) (*Question, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	subelement, group, _ := SplitDisplayNumber(in.DisplayNumber)

	isActive := true
	if in.IsActive != nil {
		isActive = *in.IsActive
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM questions WHERE display_number = $1)
	`, in.DisplayNumber).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check display number: %w", err)
	}
	if exists {
		return nil, ErrDuplicateNumber
	}

	hash := in.hash()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO questions (
			display_number,
			license_class,
			subelement,
			question_group,
			question_text,
			option_a, option_b, option_c, option_d,
			correct_answer,
			explanation,
			figure_ref,
			is_active,
			content_hash,
			created_at,
			updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now(),now())
		RETURNING id, created_at, updated_at
	`, in.DisplayNumber, in.LicenseClass, subelement, group, in.QuestionText,
		in.OptionA, in.OptionB, in.OptionC, in.OptionD, in.CorrectAnswer,
		in.Explanation, in.FigureRef, isActive, hash)

	q := &Question{
		DisplayNumber: in.DisplayNumber,
		LicenseClass:  in.LicenseClass,
		Subelement:    subelement,
		Group:         group,
		QuestionText:  in.QuestionText,
		OptionA:       in.OptionA,
		OptionB:       in.OptionB,
		OptionC:       in.OptionC,
		OptionD:       in.OptionD,
		CorrectAnswer: in.CorrectAnswer,
		Explanation:   in.Explanation,
		FigureRef:     in.FigureRef,
		IsActive:      isActive,
		ContentHash:   hash,
	}
	if err := row.Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}
	return q, nil
}

func (s *Service) Update(ctx context.Context, id int64, in UpsertQuestionInput) (*Question, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	subelement, group, _ := SplitDisplayNumber(in.DisplayNumber)

	isActive := true
	if in.IsActive != nil {
		isActive = *in.IsActive
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE questions
		SET display_number = $2,
			license_class = $3,
			subelement = $4,
			question_group = $5,
			question_text = $6,
			option_a = $7, option_b = $8, option_c = $9, option_d = $10,
			correct_answer = $11,
			explanation = $12,
			figure_ref = $13,
			is_active = $14,
			content_hash = $15,
			updated_at = now()
		WHERE id = $1
	`, id, in.DisplayNumber, in.LicenseClass, subelement, group, in.QuestionText,
		in.OptionA, in.OptionB, in.OptionC, in.OptionD, in.CorrectAnswer,
		in.Explanation, in.FigureRef, isActive, in.hash())
	if err != nil {
		return nil, fmt.Errorf("update question: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrQuestionNotFound
	}
	return s.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrQuestionNotFound
	}
	return nil
}

const questionColumns = `
	id,
	display_number,
	license_class,
	subelement,
	question_group,
	question_text,
	option_a, option_b, option_c, option_d,
	correct_answer,
	explanation,
	figure_ref,
	is_active,
	content_hash,
	created_at,
	updated_at
`

func (s *Service) Get(ctx context.Context, id int64) (*Question, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+questionColumns+`
		FROM questions
		WHERE id = $1
	`, id)
	q, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("load question: %w", err)
	}
	return q, nil
}

func (s *Service) GetByDisplayNumber(ctx context.Context, number string) (*Question, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+questionColumns+`
		FROM questions
		WHERE display_number = $1
	`, strings.ToUpper(strings.TrimSpace(number)))
	q, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("load question by number: %w", err)
	}
	return q, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Question, error) {
	where := []string{"TRUE"}
	args := []interface{}{}

	if c := strings.ToLower(strings.TrimSpace(f.LicenseClass)); c != "" {
		args = append(args, c)
		where = append(where, fmt.Sprintf("license_class = $%d", len(args)))
	}
	if sub := strings.ToUpper(strings.TrimSpace(f.Subelement)); sub != "" {
		args = append(args, sub)
		where = append(where, fmt.Sprintf("subelement = $%d", len(args)))
	}
	if g := strings.ToUpper(strings.TrimSpace(f.Group)); g != "" {
		args = append(args, g)
		where = append(where, fmt.Sprintf("question_group = $%d", len(args)))
	}
	if f.ActiveOnly {
		where = append(where, "is_active = TRUE")
	}

	limit := f.Limit
	if limit <= 0 || limit > 5000 {
		limit = 200
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	query := fmt.Sprintf(`
		SELECT `+questionColumns+`
		FROM questions
		WHERE %s
		ORDER BY display_number
		LIMIT $%d OFFSET $%d
	`, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	out := make([]Question, 0)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return out, nil
}

// ActivePool loads every active question for a license class; this is the
// pool the exam selector draws from.
func (s *Service) ActivePool(ctx context.Context, licenseClass string) ([]Question, error) {
	return s.List(ctx, ListFilter{LicenseClass: licenseClass, ActiveOnly: true, Limit: 5000})
}

// DuplicateCluster is a set of questions sharing one content hash.
// Single-member clusters are not reported.
type DuplicateCluster struct {
	ContentHash string   `json:"content_hash"`
	Numbers     []string `json:"display_numbers"`
}

// FindDuplicates scans the active pool for questions whose normalized
// content is identical even though their display numbers differ.
func (s *Service) FindDuplicates(ctx context.Context, licenseClass string) ([]DuplicateCluster, error) {
	where := "is_active = TRUE"
	args := []interface{}{}
	if c := strings.ToLower(strings.TrimSpace(licenseClass)); c != "" {
		args = append(args, c)
		where += " AND license_class = $1"
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT content_hash, string_agg(display_number, ',' ORDER BY display_number)
		FROM questions
		WHERE %s
		GROUP BY content_hash
		HAVING COUNT(*) > 1
		ORDER BY content_hash
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("query duplicates: %w", err)
	}
	defer rows.Close()

	out := make([]DuplicateCluster, 0)
	for rows.Next() {
		var c DuplicateCluster
		var numbers string
		if err := rows.Scan(&c.ContentHash, &numbers); err != nil {
			return nil, fmt.Errorf("scan duplicate cluster: %w", err)
		}
		c.Numbers = strings.Split(numbers, ",")
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate duplicates: %w", err)
	}
	return out, nil
}

// RefreshHashes recomputes every stored content hash and rewrites the ones
// that drifted, e.g. after an edit that bypassed the service. Returns the
// number of rows updated.
func (s *Service) RefreshHashes(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question_text, option_a, option_b, option_c, option_d, correct_answer, content_hash
		FROM questions
		ORDER BY id
	`)
	if err != nil {
		return 0, fmt.Errorf("query questions for rehash: %w", err)
	}
	defer rows.Close()

	type rehash struct {
		id   int64
		hash string
	}
	stale := make([]rehash, 0)
	for rows.Next() {
		var (
			id                     int64
			text, a, b, c, d, corr string
			stored                 string
		)
		if err := rows.Scan(&id, &text, &a, &b, &c, &d, &corr, &stored); err != nil {
			return 0, fmt.Errorf("scan question for rehash: %w", err)
		}
		fresh := contenthash.ContentHash(text, []string{a, b, c, d}, contenthash.AnswerIndex(corr))
		if fresh != stored {
			stale = append(stale, rehash{id: id, hash: fresh})
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate questions for rehash: %w", err)
	}

	for _, r := range stale {
		if _, err := s.db.ExecContext(ctx, `
			UPDATE questions SET content_hash = $2, updated_at = now() WHERE id = $1
		`, r.id, r.hash); err != nil {
			return 0, fmt.Errorf("update hash for question %d: %w", r.id, err)
		}
	}
	return len(stale), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQuestion(r rowScanner) (*Question, error) {
	q := &Question{}
	err := r.Scan(
		&q.ID,
		&q.DisplayNumber,
		&q.LicenseClass,
		&q.Subelement,
		&q.Group,
		&q.QuestionText,
		&q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD,
		&q.CorrectAnswer,
		&q.Explanation,
		&q.FigureRef,
		&q.IsActive,
		&q.ContentHash,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return q, nil
}
