package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

type QuestionnairesStore interface {
	Create(ctx context.Context, q *Questionnaire) (int64, error)
	// CreateFull persists a questionnaire together with its sections and
	// questions in one transaction; seeding and imports use it.
	CreateFull(ctx context.Context, q *Questionnaire) (int64, error)
	GetByID(ctx context.Context, id int64) (*Questionnaire, error)
	GetByUUID(ctx context.Context, publicID string) (*Questionnaire, error)
	// GetFull loads the questionnaire with sections and questions ordered
	// by position.
	GetFull(ctx context.Context, id int64) (*Questionnaire, error)
	// ListForOrg returns the organization's own questionnaires plus the
	// global ones (org_id NULL).
	ListForOrg(ctx context.Context, orgID int64) ([]Questionnaire, error)
	ListByTitle(ctx context.Context, title string) ([]Questionnaire, error)
	DefaultForOrg(ctx context.Context, orgID int64) (*Questionnaire, error)
	Update(ctx context.Context, q *Questionnaire) error
	Delete(ctx context.Context, id int64) error

	CreateSection(ctx context.Context, sec *QuestionSection) (int64, error)
	UpdateSection(ctx context.Context, sec *QuestionSection) error
	DeleteSection(ctx context.Context, id int64) error

	CreateQuestion(ctx context.Context, q *Question) (int64, error)
	UpdateQuestion(ctx context.Context, q *Question) error
	UpdateQuestionText(ctx context.Context, id int64, text string) error
	DeleteQuestion(ctx context.Context, id int64) error
}

type questionnairesStore struct {
	db *sql.DB
}

func NewQuestionnairesStore(db *sql.DB) QuestionnairesStore {
	return &questionnairesStore{db: db}
}

const questionnaireColumns = `id, org_id, uuid, title, description, is_default, created_at, updated_at`

func (s *questionnairesStore) Create(ctx context.Context, q *Questionnaire) (int64, error) {
	return s.create(ctx, s.db, q)
}

type execRowQueryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *questionnairesStore) create(ctx context.Context, q execRowQueryer, qn *Questionnaire) (int64, error) {
	title := strings.TrimSpace(qn.Title)
	if title == "" {
		return 0, errors.New("title is required")
	}
	publicID := qn.UUID
	if publicID == "" {
		publicID = uuid.Must(uuid.NewV4()).String()
	}
	now := time.Now().UTC()
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO questionnaires(org_id, uuid, title, description, is_default, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?) RETURNING id`,
		nullableID(qn.OrgID), publicID, title, strings.TrimSpace(qn.Description), boolToInt(qn.IsDefault), now, now).Scan(&id)
	if err != nil {
		return 0, err
	}
	qn.ID = id
	qn.UUID = publicID
	qn.Title = title
	qn.CreatedAt = now
	qn.UpdatedAt = now
	return id, nil
}

func (s *questionnairesStore) CreateFull(ctx context.Context, q *Questionnaire) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	id, err := s.create(ctx, tx, q)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	for si := range q.Sections {
		sec := &q.Sections[si]
		sec.QuestionnaireID = id
		if sec.Position == 0 {
			sec.Position = si + 1
		}
		secID, err := createSection(ctx, tx, sec)
		if err != nil {
			tx.Rollback()
			return 0, err
		}
		for qi := range sec.Questions {
			question := &sec.Questions[qi]
			question.SectionID = secID
			if question.Position == 0 {
				question.Position = qi + 1
			}
			if _, err := createQuestion(ctx, tx, question); err != nil {
				tx.Rollback()
				return 0, err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *questionnairesStore) GetByID(ctx context.Context, id int64) (*Questionnaire, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+questionnaireColumns+` FROM questionnaires WHERE id=?`, id)
	return scanQuestionnaire(row)
}

func (s *questionnairesStore) GetByUUID(ctx context.Context, publicID string) (*Questionnaire, error) {
	publicID = strings.TrimSpace(publicID)
	if publicID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+questionnaireColumns+` FROM questionnaires WHERE uuid=?`, publicID)
	return scanQuestionnaire(row)
}

func (s *questionnairesStore) GetFull(ctx context.Context, id int64) (*Questionnaire, error) {
	qn, err := s.GetByID(ctx, id)
	if err != nil || qn == nil {
		return qn, err
	}
	if err := s.loadSections(ctx, qn); err != nil {
		return nil, err
	}
	return qn, nil
}

func (s *questionnairesStore) loadSections(ctx context.Context, qn *Questionnaire) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, questionnaire_id, title, description, position
		FROM question_sections WHERE questionnaire_id=? ORDER BY position ASC, id ASC`, qn.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	var sections []QuestionSection
	for rows.Next() {
		var sec QuestionSection
		if err := rows.Scan(&sec.ID, &sec.QuestionnaireID, &sec.Title, &sec.Description, &sec.Position); err != nil {
			return err
		}
		sections = append(sections, sec)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range sections {
		questions, err := s.questionsForSection(ctx, sections[i].ID)
		if err != nil {
			return err
		}
		sections[i].Questions = questions
	}
	qn.Sections = sections
	return nil
}

func (s *questionnairesStore) questionsForSection(ctx context.Context, sectionID int64) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, section_id, uuid, text, kind, config, position, required
		FROM questions WHERE section_id=? ORDER BY position ASC, id ASC`, sectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Question
	for rows.Next() {
		var q Question
		var required int
		if err := rows.Scan(&q.ID, &q.SectionID, &q.UUID, &q.Text, &q.Kind, &q.Config, &q.Position, &required); err != nil {
			return nil, err
		}
		q.Required = required == 1
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *questionnairesStore) ListForOrg(ctx context.Context, orgID int64) ([]Questionnaire, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+questionnaireColumns+` FROM questionnaires
		WHERE org_id=? OR org_id IS NULL ORDER BY is_default DESC, title ASC, id ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectQuestionnaires(rows)
}

func (s *questionnairesStore) ListByTitle(ctx context.Context, title string) ([]Questionnaire, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+questionnaireColumns+` FROM questionnaires WHERE title=? ORDER BY id ASC`, strings.TrimSpace(title))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectQuestionnaires(rows)
}

// DefaultForOrg prefers an organization-scoped default over a global one.
func (s *questionnairesStore) DefaultForOrg(ctx context.Context, orgID int64) (*Questionnaire, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+questionnaireColumns+` FROM questionnaires
		WHERE is_default=1 AND (org_id=? OR org_id IS NULL)
		ORDER BY (org_id IS NULL) ASC, id ASC LIMIT 1`, orgID)
	return scanQuestionnaire(row)
}

func (s *questionnairesStore) Update(ctx context.Context, q *Questionnaire) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE questionnaires SET title=?, description=?, is_default=?, updated_at=? WHERE id=?`,
		strings.TrimSpace(q.Title), strings.TrimSpace(q.Description), boolToInt(q.IsDefault), now, q.ID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	q.UpdatedAt = now
	return nil
}

func (s *questionnairesStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM questionnaires WHERE id=?`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *questionnairesStore) CreateSection(ctx context.Context, sec *QuestionSection) (int64, error) {
	return createSection(ctx, s.db, sec)
}

func createSection(ctx context.Context, q execRowQueryer, sec *QuestionSection) (int64, error) {
	title := strings.TrimSpace(sec.Title)
	if title == "" {
		return 0, errors.New("section title is required")
	}
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO question_sections(questionnaire_id, title, description, position)
		VALUES(?,?,?,?) RETURNING id`,
		sec.QuestionnaireID, title, strings.TrimSpace(sec.Description), sec.Position).Scan(&id)
	if err != nil {
		return 0, err
	}
	sec.ID = id
	sec.Title = title
	return id, nil
}

func (s *questionnairesStore) UpdateSection(ctx context.Context, sec *QuestionSection) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE question_sections SET title=?, description=?, position=? WHERE id=?`,
		strings.TrimSpace(sec.Title), strings.TrimSpace(sec.Description), sec.Position, sec.ID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *questionnairesStore) DeleteSection(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM question_sections WHERE id=?`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *questionnairesStore) CreateQuestion(ctx context.Context, q *Question) (int64, error) {
	return createQuestion(ctx, s.db, q)
}

func createQuestion(ctx context.Context, e execRowQueryer, q *Question) (int64, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return 0, errors.New("question text is required")
	}
	kind := q.Kind
	if kind == "" {
		kind = QuestionKindRating
	}
	config := strings.TrimSpace(q.Config)
	if config == "" {
		config = "{}"
	}
	publicID := q.UUID
	if publicID == "" {
		publicID = uuid.Must(uuid.NewV4()).String()
	}
	var id int64
	err := e.QueryRowContext(ctx, `
		INSERT INTO questions(section_id, uuid, text, kind, config, position, required)
		VALUES(?,?,?,?,?,?,?) RETURNING id`,
		q.SectionID, publicID, text, kind, config, q.Position, boolToInt(q.Required)).Scan(&id)
	if err != nil {
		return 0, err
	}
	q.ID = id
	q.UUID = publicID
	q.Text = text
	q.Kind = kind
	q.Config = config
	return id, nil
}

func (s *questionnairesStore) UpdateQuestion(ctx context.Context, q *Question) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE questions SET text=?, kind=?, config=?, position=?, required=? WHERE id=?`,
		strings.TrimSpace(q.Text), q.Kind, q.Config, q.Position, boolToInt(q.Required), q.ID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *questionnairesStore) UpdateQuestionText(ctx context.Context, id int64, text string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE questions SET text=? WHERE id=?`, strings.TrimSpace(text), id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *questionnairesStore) DeleteQuestion(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id=?`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanQuestionnaire(row *sql.Row) (*Questionnaire, error) {
	var qn Questionnaire
	var orgID sql.NullInt64
	var isDefault int
	if err := row.Scan(&qn.ID, &orgID, &qn.UUID, &qn.Title, &qn.Description, &isDefault, &qn.CreatedAt, &qn.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if orgID.Valid {
		qn.OrgID = &orgID.Int64
	}
	qn.IsDefault = isDefault == 1
	return &qn, nil
}

func collectQuestionnaires(rows *sql.Rows) ([]Questionnaire, error) {
	var out []Questionnaire
	for rows.Next() {
		var qn Questionnaire
		var orgID sql.NullInt64
		var isDefault int
		if err := rows.Scan(&qn.ID, &orgID, &qn.UUID, &qn.Title, &qn.Description, &isDefault, &qn.CreatedAt, &qn.UpdatedAt); err != nil {
			return nil, err
		}
		if orgID.Valid {
			qn.OrgID = &orgID.Int64
		}
		qn.IsDefault = isDefault == 1
		out = append(out, qn)
	}
	return out, rows.Err()
}
