package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/classsphere/backend/core"
	"github.com/classsphere/backend/core/notification"
)

type notificationApi struct {
	svc      *notification.Service
	validate *validator.Validate
}

func registerNotificationAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := notificationApi{
		svc:      deps.NotifSvc,
		validate: deps.Validate,
	}

	ng := g.Group("/notifications", jwt)
	ng.GET("", api.query)
	ng.POST("", api.create, adminMiddleware())
	ng.POST("/mark-all-read", api.markAllRead)
	ng.DELETE("", api.clear)
	ng.POST("/:id/read", api.markRead)
}

// Handlers

func (api *notificationApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	notifs, err := api.svc.Query(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying notifications")
	}
	if notifs == nil {
		notifs = []notification.Notification{}
	}
	return ctx.JSON(http.StatusOK, notifs)
}

func (api *notificationApi) create(ctx echo.Context) error {
	var data NewNotificationRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewNotificationRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	notif, err := api.svc.Notify(ctx.Request().Context(), data.UserID, data.Message, data.Type)
	if err != nil {
		return errors.Wrap(err, "creating notification")
	}
	return ctx.JSON(http.StatusCreated, notif)
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return errHttpNotFound
	}

	notif, err := api.svc.MarkRead(ctx.Request().Context(), id, claims.Subject)
	if err != nil {
		if errors.Cause(err) == notification.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "marking notification read")
	}
	return ctx.JSON(http.StatusOK, notif)
}

func (api *notificationApi) markAllRead(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	if err := api.svc.MarkAllRead(ctx.Request().Context(), claims.Subject); err != nil {
		return errors.Wrap(err, "marking all notifications read")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *notificationApi) clear(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	if err := api.svc.Clear(ctx.Request().Context(), claims.Subject); err != nil {
		return errors.Wrap(err, "clearing notifications")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type NewNotificationRequest struct {
	UserID  string `json:"user_id" validate:"required"`
	Message string `json:"message" validate:"required"`
	Type    string `json:"notification_type"`
}

func (nr *NewNotificationRequest) Validate(validate *validator.Validate) error {
	nr.Message = core.CleanString(nr.Message)
	return validate.Struct(nr)
}
