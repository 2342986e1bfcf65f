package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/distrischool/grade-service/internal/domain/model"
	"github.com/distrischool/grade-service/internal/domain/types"
	"github.com/distrischool/grade-service/pkg/metrics"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

const gradeColumns = `id, student_id, teacher_id, class_id, evaluation_id, grade_value, grade_date,
	notes, status, is_automatic, posted_at, academic_year, academic_semester,
	created_at, updated_at, created_by, updated_by, deleted_at, deleted_by`

// SQLStore is a Store over database/sql. Queries use $n placeholders,
// which both the pgx and the sqlite drivers accept.
type SQLStore struct {
	db   *sql.DB
	opts options
}

// NewSQLStore wraps an open database whose schema already exists.
func NewSQLStore(db *sql.DB, opts ...Option) *SQLStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &SQLStore{db: db, opts: o}
}

func (s *SQLStore) Create(ctx context.Context, g model.Grade) (model.Grade, error) {
	defer observe("create", time.Now())

	now := s.opts.now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now

	err := s.db.QueryRowContext(ctx, `INSERT INTO grades (
		student_id, teacher_id, class_id, evaluation_id, grade_value, grade_date,
		notes, status, is_automatic, posted_at, academic_year, academic_semester,
		created_at, updated_at, created_by, updated_by, deleted_at, deleted_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING id`,
		g.StudentID, g.TeacherID, nullInt64(g.ClassID), g.EvaluationID, nullDecimal(g.Value), nullDate(g.GradeDate),
		g.Notes, string(g.Status), g.IsAutomatic, nullMillis(g.PostedAt), g.AcademicYear, g.AcademicSemester,
		now.UnixMilli(), now.UnixMilli(), g.CreatedBy, g.UpdatedBy, nullMillis(g.DeletedAt), g.DeletedBy,
	).Scan(&g.ID)
	if err != nil {
		metrics.RecordErrorByComponent("repository", "insert")
		return model.Grade{}, fmt.Errorf("insert grade: %w", err)
	}
	g.CreatedAt = time.UnixMilli(now.UnixMilli()).UTC()
	g.UpdatedAt = g.CreatedAt
	return g, nil
}

func (s *SQLStore) Update(ctx context.Context, g model.Grade) (model.Grade, error) {
	defer observe("update", time.Now())

	now := s.opts.now().UTC()
	var created int64
	err := s.db.QueryRowContext(ctx, `UPDATE grades SET
		student_id=$1, teacher_id=$2, class_id=$3, evaluation_id=$4, grade_value=$5, grade_date=$6,
		notes=$7, status=$8, is_automatic=$9, posted_at=$10, academic_year=$11, academic_semester=$12,
		updated_at=$13, updated_by=$14, deleted_at=$15, deleted_by=$16
		WHERE id=$17
		RETURNING created_at`,
		g.StudentID, g.TeacherID, nullInt64(g.ClassID), g.EvaluationID, nullDecimal(g.Value), nullDate(g.GradeDate),
		g.Notes, string(g.Status), g.IsAutomatic, nullMillis(g.PostedAt), g.AcademicYear, g.AcademicSemester,
		now.UnixMilli(), g.UpdatedBy, nullMillis(g.DeletedAt), g.DeletedBy, g.ID,
	).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Grade{}, ErrNotFound
	}
	if err != nil {
		metrics.RecordErrorByComponent("repository", "update")
		return model.Grade{}, fmt.Errorf("update grade %d: %w", g.ID, err)
	}
	g.CreatedAt = time.UnixMilli(created).UTC()
	g.UpdatedAt = time.UnixMilli(now.UnixMilli()).UTC()
	return g, nil
}

func (s *SQLStore) Get(ctx context.Context, id int64) (model.Grade, error) {
	defer observe("get", time.Now())

	row := s.db.QueryRowContext(ctx,
		`SELECT `+gradeColumns+` FROM grades WHERE id=$1 AND deleted_at IS NULL`, id)
	g, err := scanGrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Grade{}, ErrNotFound
	}
	if err != nil {
		return model.Grade{}, fmt.Errorf("get grade %d: %w", id, err)
	}
	return g, nil
}

func (s *SQLStore) Find(ctx context.Context, q Query) ([]model.Grade, error) {
	defer observe("find", time.Now())

	where, args := buildWhere(q)
	return s.query(ctx, `SELECT `+gradeColumns+` FROM grades`+where+` ORDER BY id ASC`, args...)
}

func (s *SQLStore) List(ctx context.Context, q Query, page types.PageRequest) (types.Page[model.Grade], error) {
	defer observe("list", time.Now())

	page = page.Normalize()
	col, ok := sortColumns[page.SortBy]
	if !ok {
		return types.Page[model.Grade]{}, ErrInvalidSort
	}

	total, err := s.Count(ctx, q)
	if err != nil {
		return types.Page[model.Grade]{}, err
	}

	where, args := buildWhere(q)
	args = append(args, page.Size, page.Offset())
	stmt := fmt.Sprintf(`SELECT %s FROM grades%s ORDER BY %s %s NULLS LAST, id ASC LIMIT $%d OFFSET $%d`,
		gradeColumns, where, col, page.Direction, len(args)-1, len(args))
	grades, err := s.query(ctx, stmt, args...)
	if err != nil {
		return types.Page[model.Grade]{}, err
	}
	return types.NewPage(grades, page, total), nil
}

func (s *SQLStore) Count(ctx context.Context, q Query) (int64, error) {
	where, args := buildWhere(q)
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM grades`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count grades: %w", err)
	}
	return n, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) query(ctx context.Context, stmt string, args ...any) ([]model.Grade, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		metrics.RecordErrorByComponent("repository", "query")
		return nil, fmt.Errorf("query grades: %w", err)
	}
	defer rows.Close()

	out := []model.Grade{}
	for rows.Next() {
		g, err := scanGrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan grade: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// buildWhere renders q as a WHERE clause with numbered placeholders.
func buildWhere(q Query) (string, []any) {
	conds := []string{"deleted_at IS NULL"}
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if q.StudentID != nil {
		add("student_id", *q.StudentID)
	}
	if q.TeacherID != nil {
		add("teacher_id", *q.TeacherID)
	}
	if q.ClassID != nil {
		add("class_id", *q.ClassID)
	}
	if q.EvaluationID != nil {
		add("evaluation_id", *q.EvaluationID)
	}
	if q.AcademicYear != nil {
		add("academic_year", *q.AcademicYear)
	}
	if q.AcademicSemester != nil {
		add("academic_semester", *q.AcademicSemester)
	}
	if q.Status != "" {
		add("status", string(q.Status))
	}
	if q.HasClass {
		conds = append(conds, "class_id IS NOT NULL")
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrade(r rowScanner) (model.Grade, error) {
	var (
		g                  model.Grade
		classID            sql.NullInt64
		value              decimal.NullDecimal
		gradeDate          sql.NullString
		status             string
		posted, deleted    sql.NullInt64
		createdAt, updated int64
	)
	err := r.Scan(&g.ID, &g.StudentID, &g.TeacherID, &classID, &g.EvaluationID, &value, &gradeDate,
		&g.Notes, &status, &g.IsAutomatic, &posted, &g.AcademicYear, &g.AcademicSemester,
		&createdAt, &updated, &g.CreatedBy, &g.UpdatedBy, &deleted, &g.DeletedBy)
	if err != nil {
		return model.Grade{}, err
	}

	g.Status = model.Status(status)
	g.CreatedAt = time.UnixMilli(createdAt).UTC()
	g.UpdatedAt = time.UnixMilli(updated).UTC()
	if classID.Valid {
		g.ClassID = model.Int64Ptr(classID.Int64)
	}
	if value.Valid {
		v := value.Decimal
		g.Value = &v
	}
	if gradeDate.Valid && gradeDate.String != "" {
		d, err := time.Parse(dateLayout, gradeDate.String)
		if err != nil {
			return model.Grade{}, fmt.Errorf("grade %d date %q: %w", g.ID, gradeDate.String, err)
		}
		g.GradeDate = &d
	}
	g.PostedAt = fromMillis(posted)
	g.DeletedAt = fromMillis(deleted)
	return g, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullDecimal(v *decimal.Decimal) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*v)
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateLayout), Valid: true}
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
