package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/classsphere/backend/core/classroom"
)

type dbClassroom struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Subject   string    `db:"subject"`
	Code      string    `db:"code"`
	TeacherID string    `db:"teacher_id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r dbClassroom) toCore() classroom.Classroom {
	return classroom.Classroom{
		ID:        r.ID,
		Name:      r.Name,
		Subject:   r.Subject,
		Code:      r.Code,
		TeacherID: r.TeacherID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type classroomRepository struct {
	db *sqlx.DB
}

var _ classroom.Repository = (*classroomRepository)(nil) // interface compliance check

func NewClassroomRepository(db *sqlx.DB) *classroomRepository {
	return &classroomRepository{db: db}
}

func (repo classroomRepository) CreateClassroom(ctx context.Context, cls classroom.Classroom) (classroom.Classroom, error) {
	cls.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO classroom (id, name, subject, code, teacher_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		cls.ID, cls.Name, cls.Subject, cls.Code, cls.TeacherID, cls.CreatedAt.UTC(), cls.UpdatedAt.UTC(),
	)
	if err != nil {
		return classroom.Classroom{}, errors.Wrap(err, "inserting classroom")
	}
	return cls, nil
}

func (repo classroomRepository) getOne(ctx context.Context, query string, arg interface{}) (classroom.Classroom, error) {
	var row dbClassroom
	if err := repo.db.GetContext(ctx, &row, query, arg); err != nil {
		if err == sql.ErrNoRows {
			return classroom.Classroom{}, classroom.ErrNotFound
		}
		return classroom.Classroom{}, errors.Wrap(err, "getting classroom")
	}
	return row.toCore(), nil
}

func (repo classroomRepository) GetClassroom(ctx context.Context, id string) (classroom.Classroom, error) {
	return repo.getOne(ctx, `SELECT * FROM classroom WHERE id = $1`, id)
}

func (repo classroomRepository) GetClassroomByCode(ctx context.Context, code string) (classroom.Classroom, error) {
	return repo.getOne(ctx, `SELECT * FROM classroom WHERE code = $1`, code)
}

func (repo classroomRepository) query(ctx context.Context, query string, arg interface{}) ([]classroom.Classroom, error) {
	var rows []dbClassroom
	if err := repo.db.SelectContext(ctx, &rows, query, arg); err != nil {
		return nil, errors.Wrap(err, "querying classrooms")
	}
	clss := make([]classroom.Classroom, 0, len(rows))
	for _, r := range rows {
		clss = append(clss, r.toCore())
	}
	return clss, nil
}

func (repo classroomRepository) QueryTeacherClassrooms(ctx context.Context, teacherID string) ([]classroom.Classroom, error) {
	return repo.query(ctx, `SELECT * FROM classroom WHERE teacher_id = $1 ORDER BY created_at DESC`, teacherID)
}

func (repo classroomRepository) QueryStudentClassrooms(ctx context.Context, studentID string) ([]classroom.Classroom, error) {
	return repo.query(ctx,
		`SELECT c.* FROM classroom c
		 JOIN classroom_student s ON s.classroom_id = c.id
		 WHERE s.student_id = $1
		 ORDER BY c.created_at DESC`, studentID)
}

func (repo classroomRepository) IsStudent(ctx context.Context, classroomID, studentID string) (bool, error) {
	var exists bool
	err := repo.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM classroom_student WHERE classroom_id = $1 AND student_id = $2)`,
		classroomID, studentID,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "checking classroom membership")
	}
	return exists, nil
}

func (repo classroomRepository) AddStudent(ctx context.Context, classroomID, studentID string) error {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO classroom_student (classroom_id, student_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		classroomID, studentID)
	return errors.Wrap(err, "adding classroom student")
}

func (repo classroomRepository) UpdateClassroom(ctx context.Context, cls classroom.Classroom) (classroom.Classroom, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE classroom SET name = $1, subject = $2, updated_at = $3 WHERE id = $4`,
		cls.Name, cls.Subject, cls.UpdatedAt.UTC(), cls.ID)
	if err != nil {
		return classroom.Classroom{}, errors.Wrap(err, "updating classroom")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return classroom.Classroom{}, classroom.ErrNotFound
	}
	return cls, nil
}

func (repo classroomRepository) DeleteClassroom(ctx context.Context, id string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM classroom WHERE id = $1`, id)
	return errors.Wrap(err, "deleting classroom")
}
