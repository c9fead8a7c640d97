package classroom

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/classsphere/backend/core"
)

type Classroom struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	Code      string    `json:"code"` // join code handed to students
	TeacherID string    `json:"teacher_id"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

type NewClassroom struct {
	Name    string `json:"name" validate:"required"`
	Subject string `json:"subject" validate:"required"`
}

func (nc *NewClassroom) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Subject = core.CleanString(nc.Subject)
	return validate.Struct(nc)
}

type UpdateClassroom struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
}

func (uc *UpdateClassroom) Validate(validate *validator.Validate, orig Classroom) error {
	if name := core.CleanString(uc.Name); name != "" {
		uc.Name = name
	} else {
		uc.Name = orig.Name
	}
	if subject := core.CleanString(uc.Subject); subject != "" {
		uc.Subject = subject
	} else {
		uc.Subject = orig.Subject
	}
	return validate.Struct(uc)
}

type JoinClassroom struct {
	Code string `json:"code" validate:"required"`
}

func (jc *JoinClassroom) Validate(validate *validator.Validate) error {
	jc.Code = core.CleanString(jc.Code, true /* lower */)
	return validate.Struct(jc)
}
