package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/classsphere/backend/core"
	"github.com/classsphere/backend/core/classroom"
	"github.com/classsphere/backend/core/user"
)

type classroomApi struct {
	svc      *classroom.Service
	usrSvc   *user.Service
	validate *validator.Validate
}

func registerClassroomAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := classroomApi{
		svc:      deps.ClassroomSvc,
		usrSvc:   deps.UserSvc,
		validate: deps.Validate,
	}

	cg := g.Group("/classrooms", jwt)
	cg.GET("", api.query)
	cg.POST("", api.create, teacherMiddleware())
	cg.POST("/join", api.join)
	cg.GET("/:id", api.retrieve)
	cg.PUT("/:id", api.update, teacherMiddleware())
	cg.DELETE("/:id", api.destroy, teacherMiddleware())
}

// Handlers

func (api *classroomApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	classrooms, err := api.svc.QueryFor(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "querying classrooms")
	}
	if classrooms == nil {
		classrooms = []classroom.Classroom{}
	}
	return ctx.JSON(http.StatusOK, classrooms)
}

func (api *classroomApi) create(ctx echo.Context) error {
	var data classroom.NewClassroom
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClassroom")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	cls, err := api.svc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating classroom")
	}
	return ctx.JSON(http.StatusCreated, cls)
}

func (api *classroomApi) join(ctx echo.Context) error {
	var data classroom.JoinClassroom
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to JoinClassroom")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	cls, err := api.svc.Join(ctx.Request().Context(), usr, data.Code)
	if err != nil {
		switch errors.Cause(err) {
		case classroom.ErrNotFound:
			return core.NewValidationError(nil, core.FieldError{Field: "code", Error: "invalid classroom code"})
		case classroom.ErrAlreadyJoined:
			return core.NewValidationError(classroom.ErrAlreadyJoined)
		}
		return errors.Wrap(err, "joining classroom")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *classroomApi) retrieve(ctx echo.Context) error {
	cls, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == classroom.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding classroom by ID")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *classroomApi) update(ctx echo.Context) error {
	var data classroom.UpdateClassroom
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClassroom")
	}

	orig, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == classroom.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding classroom by ID")
	}
	if err := data.Validate(api.validate, orig); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	cls, err := api.svc.Update(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		switch errors.Cause(err) {
		case classroom.ErrNotFound:
			return errHttpNotFound
		case classroom.ErrNotOwner:
			return errHttpForbidden
		}
		return errors.Wrap(err, "updating classroom")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *classroomApi) destroy(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err := api.svc.Delete(ctx.Request().Context(), usr, ctx.Param("id")); err != nil {
		switch errors.Cause(err) {
		case classroom.ErrNotFound:
			return errHttpNotFound
		case classroom.ErrNotOwner:
			return errHttpForbidden
		}
		return errors.Wrap(err, "deleting classroom")
	}
	return ctx.NoContent(http.StatusNoContent)
}
