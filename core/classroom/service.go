package classroom

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/classsphere/backend/core/notification"
	"github.com/classsphere/backend/core/user"
)

var (
	ErrNotFound      = errors.New("classroom not found")
	ErrNotOwner      = errors.New("not the owner of this classroom")
	ErrAlreadyJoined = errors.New("already joined this classroom")

	// NowFunc is mockable in tests.
	NowFunc = time.Now
)

type (
	Repository interface {
		CreateClassroom(ctx context.Context, cls Classroom) (Classroom, error)
		GetClassroom(ctx context.Context, id string) (Classroom, error)
		GetClassroomByCode(ctx context.Context, code string) (Classroom, error)
		QueryTeacherClassrooms(ctx context.Context, teacherID string) ([]Classroom, error)
		QueryStudentClassrooms(ctx context.Context, studentID string) ([]Classroom, error)
		IsStudent(ctx context.Context, classroomID, studentID string) (bool, error)
		AddStudent(ctx context.Context, classroomID, studentID string) error
		UpdateClassroom(ctx context.Context, cls Classroom) (Classroom, error)
		DeleteClassroom(ctx context.Context, id string) error
	}

	Service struct {
		repo     Repository
		notifSvc *notification.Service
	}
)

func NewService(repo Repository, notifSvc *notification.Service) *Service {
	return &Service{repo: repo, notifSvc: notifSvc}
}

// generateCode returns a short lowercase join code.
func generateCode() (string, error) {
	const alphabet = "abcdefghjkmnpqrstuvwxyz23456789"
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "reading random bytes")
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}

func (svc *Service) Create(ctx context.Context, tchr user.User, nc NewClassroom) (Classroom, error) {
	code, err := generateCode()
	if err != nil {
		return Classroom{}, err
	}
	now := NowFunc().UTC()
	cls := Classroom{
		Name:      nc.Name,
		Subject:   nc.Subject,
		Code:      code,
		TeacherID: tchr.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateClassroom(ctx, cls)
}

func (svc *Service) Get(ctx context.Context, id string) (Classroom, error) {
	return svc.repo.GetClassroom(ctx, id)
}

// QueryFor lists the classrooms relevant to usr: owned ones for teachers,
// joined ones for students.
func (svc *Service) QueryFor(ctx context.Context, usr user.User) ([]Classroom, error) {
	if usr.IsTeacher() {
		return svc.repo.QueryTeacherClassrooms(ctx, usr.ID)
	}
	return svc.repo.QueryStudentClassrooms(ctx, usr.ID)
}

// Join adds the student to the classroom matching the code and notifies the
// owning teacher on their personal stream.
func (svc *Service) Join(ctx context.Context, student user.User, code string) (Classroom, error) {
	cls, err := svc.repo.GetClassroomByCode(ctx, code)
	if err != nil {
		return Classroom{}, err
	}
	joined, err := svc.repo.IsStudent(ctx, cls.ID, student.ID)
	if err != nil {
		return Classroom{}, errors.Wrap(err, "checking classroom membership")
	}
	if joined {
		return Classroom{}, ErrAlreadyJoined
	}
	if err = svc.repo.AddStudent(ctx, cls.ID, student.ID); err != nil {
		return Classroom{}, errors.Wrap(err, "adding student")
	}

	if _, err = svc.notifSvc.Notify(
		ctx, cls.TeacherID,
		fmt.Sprintf("%s joined your classroom %s", student.Username, cls.Name),
		notification.TypeSuccess,
	); err != nil {
		// the join itself succeeded; the teacher just misses a heads-up
		return cls, nil
	}
	return cls, nil
}

// Update modifies a classroom; only the owning teacher may do so.
func (svc *Service) Update(ctx context.Context, usr user.User, id string, uc UpdateClassroom) (Classroom, error) {
	cls, err := svc.repo.GetClassroom(ctx, id)
	if err != nil {
		return Classroom{}, err
	}
	if cls.TeacherID != usr.ID {
		return Classroom{}, ErrNotOwner
	}
	cls.Name = uc.Name
	cls.Subject = uc.Subject
	cls.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateClassroom(ctx, cls)
}

// Delete removes a classroom; only the owning teacher may do so.
func (svc *Service) Delete(ctx context.Context, usr user.User, id string) error {
	cls, err := svc.repo.GetClassroom(ctx, id)
	if err != nil {
		return err
	}
	if cls.TeacherID != usr.ID {
		return ErrNotOwner
	}
	return svc.repo.DeleteClassroom(ctx, id)
}
