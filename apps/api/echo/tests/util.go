package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	echoapi "github.com/classsphere/backend/apps/api/echo"
	"github.com/classsphere/backend/core"
	"github.com/classsphere/backend/core/chat"
	"github.com/classsphere/backend/core/classroom"
	"github.com/classsphere/backend/core/notification"
	"github.com/classsphere/backend/core/realtime"
	"github.com/classsphere/backend/core/user"
	emailsvc "github.com/classsphere/backend/services/email"
	dummydb "github.com/classsphere/backend/storage/database/dummy"
	testutil "github.com/classsphere/backend/tests"
)

var (
	conf         *core.Config
	app          *echoapi.Server
	usrRepo      user.Repository
	usrSvc       *user.Service
	chatSvc      *chat.Service
	chatRepo     interface {
		chat.Repository
		FailMessageWrites(error)
		LastMessageContext() context.Context
	}
	notifSvc     *notification.Service
	classroomSvc *classroom.Service
	registry     *realtime.Registry
	broadcaster  *realtime.Broadcaster

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

// setup builds a fresh in-memory backend and API server for each test.
func setup(t *testing.T) *echoapi.Server {
	t.Helper()

	conf = testutil.NewConfig()
	logger := testutil.Logger{}

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	usrRepo = dummydb.NewUserRepository(db)

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	emailsvc.ClearSentMessages()

	registry = realtime.NewRegistry()
	broadcaster = realtime.NewBroadcaster(registry, logger)

	usrSvc = user.NewService(usrRepo, mailSvc, conf, logger)
	chatRepo = dummydb.NewChatRepository(db)
	chatSvc = chat.NewService(chatRepo, usrSvc, broadcaster)
	notifSvc = notification.NewService(dummydb.NewNotificationRepository(db), broadcaster)
	classroomSvc = classroom.NewService(dummydb.NewClassroomRepository(db), notifSvc)

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	app = echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:           conf,
			Logger:         logger,
			UserSvc:        usrSvc,
			ChatSvc:        chatSvc,
			NotifSvc:       notifSvc,
			ClassroomSvc:   classroomSvc,
			Registry:       registry,
			Broadcaster:    broadcaster,
			Validate:       validate,
			Translator:     translator,
			DisableReqLogs: true,
		},
	)
	return app
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	claims := echoapi.GetUserClaims(conf, usr)
	token, err := echoapi.GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallList(): %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList(): %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
