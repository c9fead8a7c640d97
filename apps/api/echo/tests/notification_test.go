package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	echoapi "github.com/classsphere/backend/apps/api/echo"
	"github.com/classsphere/backend/core/notification"
	"github.com/classsphere/backend/core/user"
	testutil "github.com/classsphere/backend/tests"
)

func Test_notificationApi_create(t *testing.T) {
	setup(t)

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.test", "", user.RoleAdmin, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.test", "", user.RoleStudent, true)

	body := marchallObj(t, echoapi.NewNotificationRequest{UserID: student.ID, Message: "exam tomorrow", Type: notification.TypeWarning})

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", token: getToken(t, student), body: body,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "required fields", token: getToken(t, admin), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"user_id": "this field is required", "message": "this field is required"}),
		},
		{name: "created", token: getToken(t, admin), body: body, wantCode: http.StatusCreated},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/notifications"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusCreated {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var notif notification.Notification
				if err := json.Unmarshal(rec.Body.Bytes(), &notif); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if notif.ID == 0 || notif.Message != "exam tomorrow" || notif.Type != notification.TypeWarning {
					t.Errorf("failed! notification = %+v", notif)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_notificationApi_queryAndMarkRead(t *testing.T) {
	setup(t)
	ctx := context.Background()

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.test", "", user.RoleStudent, true)
	other := testutil.CreateUser(t, usrRepo, "Bob", "bob", "bob@test.test", "", user.RoleStudent, true)

	mine, err := notifSvc.Notify(ctx, student.ID, "welcome aboard", notification.TypeInfo)
	if err != nil {
		t.Fatalf("Notify() failed: %v", err)
	}
	theirs, err := notifSvc.Notify(ctx, other.ID, "not yours", notification.TypeInfo)
	if err != nil {
		t.Fatalf("Notify() failed: %v", err)
	}

	studentToken := getToken(t, student)

	// users only ever see their own notifications
	req, rec := newAuthRequest(http.MethodGet, "/v1/notifications", studentToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	var notifs []notification.Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &notifs); err != nil {
		t.Fatalf("json.Unmarshal() failed! err %v", err)
	}
	if len(notifs) != 1 || notifs[0].ID != mine.ID || notifs[0].IsRead {
		t.Errorf("failed! notifications = %+v", notifs)
	}

	tests := []httpTest{
		{
			name: "bad id", path: "/v1/notifications/lol/read",
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "someone else's notification", path: "/v1/notifications/" + strconv.Itoa(theirs.ID) + "/read",
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{name: "marked read", path: "/v1/notifications/" + strconv.Itoa(mine.ID) + "/read", wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.token = studentToken

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var notif notification.Notification
				if err := json.Unmarshal(rec.Body.Bytes(), &notif); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if !notif.IsRead {
					t.Error("failed! notification not marked read")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_notificationApi_markAllReadAndClear(t *testing.T) {
	setup(t)
	ctx := context.Background()

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.test", "", user.RoleStudent, true)
	for _, msg := range []string{"one", "two", "three"} {
		if _, err := notifSvc.Notify(ctx, student.ID, msg, ""); err != nil {
			t.Fatalf("Notify() failed: %v", err)
		}
	}

	studentToken := getToken(t, student)

	req, rec := newAuthRequest(http.MethodPost, "/v1/notifications/mark-all-read", studentToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("mark-all-read failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	notifs, err := notifSvc.Query(ctx, student.ID)
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	for _, n := range notifs {
		if !n.IsRead {
			t.Errorf("failed! notification %d still unread", n.ID)
		}
	}

	req, rec = newAuthRequest(http.MethodDelete, "/v1/notifications", studentToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("clear failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	if notifs, err = notifSvc.Query(ctx, student.ID); err != nil {
		t.Fatalf("Query() failed: %v", err)
	} else if len(notifs) != 0 {
		t.Errorf("failed! len(notifications) = %d; want 0", len(notifs))
	}
}
