package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/classsphere/backend/core/classroom"
)

type classroomRepository struct {
	db *classroomTable
}

var _ classroom.Repository = (*classroomRepository)(nil)

func NewClassroomRepository(db *DB) *classroomRepository {
	return &classroomRepository{db: db.classroom}
}

func sortClassrooms(classrooms []classroom.Classroom) {
	sort.Slice(classrooms, func(i, j int) bool {
		return classrooms[i].CreatedAt.After(classrooms[j].CreatedAt)
	})
}

func (repo *classroomRepository) CreateClassroom(_ context.Context, cls classroom.Classroom) (classroom.Classroom, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	cls.ID = uuid.New().String()
	repo.db.table[cls.ID] = &cls
	repo.db.students[cls.ID] = make(map[string]struct{})
	return cls, nil
}

func (repo *classroomRepository) GetClassroom(_ context.Context, id string) (classroom.Classroom, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if cls, ok := repo.db.table[id]; ok {
		return *cls, nil
	}
	return classroom.Classroom{}, classroom.ErrNotFound
}

func (repo *classroomRepository) GetClassroomByCode(_ context.Context, code string) (classroom.Classroom, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, cls := range repo.db.table {
		if cls.Code == code {
			return *cls, nil
		}
	}
	return classroom.Classroom{}, classroom.ErrNotFound
}

func (repo *classroomRepository) QueryTeacherClassrooms(_ context.Context, teacherID string) ([]classroom.Classroom, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	classrooms := make([]classroom.Classroom, 0)
	for _, cls := range repo.db.table {
		if cls.TeacherID == teacherID {
			classrooms = append(classrooms, *cls)
		}
	}
	sortClassrooms(classrooms)
	return classrooms, nil
}

func (repo *classroomRepository) QueryStudentClassrooms(_ context.Context, studentID string) ([]classroom.Classroom, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	classrooms := make([]classroom.Classroom, 0)
	for id, students := range repo.db.students {
		if _, ok := students[studentID]; ok {
			classrooms = append(classrooms, *repo.db.table[id])
		}
	}
	sortClassrooms(classrooms)
	return classrooms, nil
}

func (repo *classroomRepository) IsStudent(_ context.Context, classroomID, studentID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	_, ok := repo.db.students[classroomID][studentID]
	return ok, nil
}

func (repo *classroomRepository) AddStudent(_ context.Context, classroomID, studentID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[classroomID]; !ok {
		return classroom.ErrNotFound
	}
	if repo.db.students[classroomID] == nil {
		repo.db.students[classroomID] = make(map[string]struct{})
	}
	repo.db.students[classroomID][studentID] = struct{}{}
	return nil
}

func (repo *classroomRepository) UpdateClassroom(_ context.Context, cls classroom.Classroom) (classroom.Classroom, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[cls.ID]
	if !ok {
		return classroom.Classroom{}, classroom.ErrNotFound
	}
	if cls.Name != "" {
		orig.Name = cls.Name
	}
	if cls.Subject != "" {
		orig.Subject = cls.Subject
	}
	if !cls.UpdatedAt.IsZero() {
		orig.UpdatedAt = cls.UpdatedAt
	}
	return *orig, nil
}

func (repo *classroomRepository) DeleteClassroom(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	delete(repo.db.table, id)
	delete(repo.db.students, id)
	return nil
}
