package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/classsphere/backend/core"
	"github.com/classsphere/backend/core/chat"
	"github.com/classsphere/backend/core/user"
)

type chatApi struct {
	svc      *chat.Service
	usrSvc   *user.Service
	validate *validator.Validate
}

func registerChatAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := chatApi{
		svc:      deps.ChatSvc,
		usrSvc:   deps.UserSvc,
		validate: deps.Validate,
	}

	cg := g.Group("/chats", jwt)
	cg.GET("", api.recent)
	cg.POST("", api.getOrCreate)
	cg.GET("/:id/messages", api.messages)
	cg.POST("/:id/messages", api.send)
}

// Handlers

func (api *chatApi) recent(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	chats, err := api.svc.RecentChats(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "querying recent chats")
	}
	if chats == nil {
		chats = []chat.ChatInfo{}
	}
	return ctx.JSON(http.StatusOK, chats)
}

func (api *chatApi) getOrCreate(ctx echo.Context) error {
	var data StartChatRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StartChatRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	cht, err := api.svc.GetOrCreate(ctx.Request().Context(), usr, data.UserID)
	if err != nil {
		switch errors.Cause(err) {
		case chat.ErrSelfChat:
			return core.NewValidationError(errors.New("cannot start a chat with yourself"))
		case user.ErrNotFound:
			return errHttpNotFound
		}
		return errors.Wrap(err, "getting or creating chat")
	}
	return ctx.JSON(http.StatusOK, cht)
}

func (api *chatApi) messages(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	msgs, err := api.svc.Messages(ctx.Request().Context(), ctx.Param("id"), usr)
	if err != nil {
		switch errors.Cause(err) {
		case chat.ErrNotFound:
			return errHttpNotFound
		case chat.ErrNotParticipant:
			return errHttpForbidden
		}
		return errors.Wrap(err, "querying messages")
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return ctx.JSON(http.StatusOK, msgs)
}

func (api *chatApi) send(ctx echo.Context) error {
	var data chat.NewMessage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMessage")
	}
	data.ChatID = ctx.Param("id")
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	msg, err := api.svc.Send(ctx.Request().Context(), usr, data)
	if err != nil {
		switch errors.Cause(err) {
		case chat.ErrNotFound:
			return errHttpNotFound
		case chat.ErrNotParticipant:
			return errHttpForbidden
		case chat.ErrEmptyMessage:
			return core.NewValidationError(chat.ErrEmptyMessage)
		}
		return errors.Wrap(err, "sending message")
	}
	return ctx.JSON(http.StatusCreated, msg)
}

type StartChatRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

func (sr *StartChatRequest) Validate(validate *validator.Validate) error {
	sr.UserID = core.CleanString(sr.UserID)
	return validate.Struct(sr)
}
