package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"

	echoapi "github.com/classsphere/backend/apps/api/echo"
	"github.com/classsphere/backend/core/user"
	emailsvc "github.com/classsphere/backend/services/email"
	testutil "github.com/classsphere/backend/tests"
)

func Test_userApi_signupFlow(t *testing.T) {
	setup(t)
	ctx := context.Background()

	newUsr := func(role string) []byte {
		return marchallObj(t, user.NewUser{
			Name: "Hero", Username: "hero", Email: "hero@test.test",
			Role: role, Password: "LolC@t123", PasswordConfirm: "LolC@t123",
		})
	}

	// admins cannot self-provision
	req, rec := newRequest(http.MethodPost, "/v1/users/signup", newUsr(user.RoleAdmin))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"role": "invalid role"})}, rec)

	// a student signup stores a pending record and emails the code
	req, rec = newRequest(http.MethodPost, "/v1/users/signup", newUsr(user.RoleStudent))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("signup failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	ps, err := usrRepo.GetPendingSignup(ctx, "hero@test.test")
	if err != nil {
		t.Fatalf("GetPendingSignup() failed: %v", err)
	}
	if len(emailsvc.SentMessages) != 1 {
		t.Fatalf("failed! len(SentMessages) = %d; want 1", len(emailsvc.SentMessages))
	}
	if !strings.Contains(emailsvc.SentMessages[0].TextContent, ps.Code) {
		t.Error("failed! OTP email does not contain the code")
	}
	if _, err = usrSvc.GetByEmail(ctx, "hero@test.test"); err == nil {
		t.Error("failed! User row created before verification")
	}

	verifyBody := func(code string) []byte {
		return marchallObj(t, user.VerifyOTP{Email: "hero@test.test", Code: code})
	}
	wrong := "000000"
	if ps.Code == wrong {
		wrong = "111111"
	}

	tests := []httpTest{
		{
			name: "wrong code", body: verifyBody(wrong), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "invalid OTP"}),
		},
		{
			name: "unknown email", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.VerifyOTP{Email: "ghost@test.test", Code: "123456"}),
			wantData: marchallObj(t, map[string]string{"otp": "invalid code"}),
		},
		{name: "valid code", body: verifyBody(ps.Code), wantCode: http.StatusCreated},
		{
			name: "code replay", body: verifyBody(ps.Code), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"otp": "invalid code"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/verify-otp"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusCreated {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var respData echoapi.LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Errorf("json.Unmarshal() failed! err %v", err)
				}
				if respData.Token == "" {
					t.Error("failed! empty token")
				}

				usr, err := usrSvc.GetByEmail(context.Background(), "hero@test.test")
				if err != nil {
					t.Fatalf("GetByEmail() failed: %v", err)
				}
				if !usr.IsVerified || !usr.Active() || !usr.IsStudent() {
					t.Errorf("failed! verified user = %+v", usr)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_userLogin(t *testing.T) {
	setup(t)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.test", "LolC@t123", user.RoleStudent, true)
	testutil.CreateUser(t, usrRepo, "N Dog", "ndog", "ndog@test.test", "LolC@t123", user.RoleStudent, false) // 😂

	reqMsg := "this field is required"
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": reqMsg, "password": reqMsg}),
		},
		{
			name: "unknown user", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "ghost", Password: "LolC@t123"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "hero", Password: "nope"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "inactive account", wantCode: http.StatusForbidden,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "ndog", Password: "LolC@t123"}),
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "login by username", wantCode: http.StatusOK,
			body: marchallObj(t, echoapi.LoginRequest{Username: "hero", Password: "LolC@t123"}),
		},
		{
			name: "login by email", wantCode: http.StatusOK,
			body: marchallObj(t, echoapi.LoginRequest{Username: student.Email, Password: "LolC@t123"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/login"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)

			// cannot guess the token; just check that it's not empty
			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var respData echoapi.LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Errorf("json.Unmarshal() failed! err %v", err)
				}
				if respData.Token == "" {
					t.Error("failed! empty token")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_userQuery(t *testing.T) {
	setup(t)

	path := func(search, role string, isActive *bool) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if role != "" {
			v.Add("role", role)
		}
		if isActive != nil {
			v.Add("is_active", strconv.FormatBool(*isActive))
		}
		return "/v1/users?" + v.Encode()
	}
	bPtr := func(b bool) *bool { return &b }

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.test", "", user.RoleStudent, true)
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teacher", "teacher@test.test", "", user.RoleTeacher, true)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.test", "", user.RoleAdmin, true)
	naughty := testutil.CreateUser(t, usrRepo, "N Dog", "ndog", "ndog@test.test", "", user.RoleStudent, false) // 😂

	adminToken := getToken(t, admin)
	empty := marchallList(t, []interface{}{}...)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", path: "/v1/users", token: getToken(t, student), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Get all", path: "/v1/users", token: adminToken,
			wantData: marchallList(t, student, teacher, admin, naughty),
		},
		{name: "search (unknown)", path: path("lol", "", nil), token: adminToken, wantData: empty},
		{name: "search=her", path: path("her", "", nil), token: adminToken, wantData: marchallList(t, student, teacher)}, // matches "Hero" and "teacHER"
		{name: "search=hero", path: path("hero", "", nil), token: adminToken, wantData: marchallList(t, student)},
		{name: "role (unknown)", path: path("", "lol", nil), token: adminToken, wantData: empty},
		{name: "role=teacher", path: path("", user.RoleTeacher, nil), token: adminToken, wantData: marchallList(t, teacher)},
		{name: "is_active=false", path: path("", "", bPtr(false)), token: adminToken, wantData: marchallList(t, naughty)},
		{
			name: "search & role & is_active", path: path("dog", user.RoleStudent, bPtr(false)),
			token: adminToken, wantData: marchallList(t, naughty),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_userRefreshToken(t *testing.T) {
	setup(t)

	naughty := testutil.CreateUser(t, usrRepo, "N Dog", "ndog", "ndog@test.test", "", user.RoleStudent, false) // 😂
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.test", "", user.RoleStudent, true)

	now := time.Now()
	unrefreshableClaims := &echoapi.Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   student.ID,
			Audience:  "ClassSphere",
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		OrigIssuedAt: now.Add(-2 * conf.Server.JWTRefreshExpirationDelta).Unix(), // older than threshold
		Username:     student.Username,
		Email:        student.Email,
		Role:         student.Role,
		IsStudent:    student.IsStudent(),
	}
	unrefreshableToken, err := echoapi.GenerateToken(conf, unrefreshableClaims)
	if err != nil {
		t.Fatalf("GenerateToken(): %v", err)
	}

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Inactive user not allowed", token: getToken(t, naughty), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "Refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})},
		{name: "Token refreshed", token: getToken(t, student), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/token-refresh"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			// cannot guess new token.. just check that it's not empty
			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var respData echoapi.LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Errorf("json.Unmarshal() failed! err %v", err)
				}
				if respData.Token == "" {
					t.Error("failed! empty token")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_userResetPassword(t *testing.T) {
	setup(t)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.test", "", user.RoleStudent, true)
	successData := marchallObj(t, echoapi.SuccessResponse{Success: "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."})

	type extraTest struct {
		emailSent bool
	}
	tests := []httpTest{
		{name: "required fields", wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"email": "this field is required"})},
		{
			name: "invalid email", wantCode: http.StatusBadRequest, body: marchallObj(t, echoapi.PasswordResetRequest{Email: "lol"}),
			wantData: marchallObj(t, map[string]string{"email": "email must be a valid email address"}),
		},
		{
			name: "unknown email", wantCode: http.StatusOK, body: marchallObj(t, echoapi.PasswordResetRequest{Email: "lol@test.test"}),
			wantData: successData, extra: extraTest{emailSent: false},
		},
		{
			name: "known email", wantCode: http.StatusOK, body: marchallObj(t, echoapi.PasswordResetRequest{Email: student.Email}),
			wantData: successData, extra: extraTest{emailSent: true},
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/password-reset"

		t.Run(tt.name, func(t *testing.T) {
			emailsvc.ClearSentMessages()

			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if extra, ok := tt.extra.(extraTest); ok {
				if extra.emailSent {
					if len(emailsvc.SentMessages) != 1 {
						t.Fatalf("failed! len(SentMessages) = %d; want 1", len(emailsvc.SentMessages))
					}
					msg := emailsvc.SentMessages[0]
					if msg.To[0].Address != student.Email {
						t.Errorf("failed! To = %v; want %v", msg.To[0].Address, student.Email)
					}
					if !strings.Contains(msg.TextContent, user.EncodeUID(student)) {
						t.Error("failed! reset email does not carry the UID")
					}
				} else if len(emailsvc.SentMessages) > 0 {
					t.Errorf("failed! len(SentMessages) = %d; want 0", len(emailsvc.SentMessages))
				}
			}
		})
	}
}

func Test_userApi_userConfirmPasswordReset(t *testing.T) {
	setup(t)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.test", "lol", user.RoleStudent, true)
	validUID := user.EncodeUID(student)
	validToken, err := user.MakeToken(conf, student)
	if err != nil {
		t.Fatalf("MakeToken(): %v", err)
	}

	// generate an expired token
	dayLate := conf.PasswordResetTimeoutDelta + (24 * time.Hour)
	user.NowFunc = func() time.Time { return time.Now().Add(-dayLate) }
	expiredToken, err := user.MakeToken(conf, student)
	if err != nil {
		t.Fatalf("MakeToken(): %v", err)
	}
	user.NowFunc = time.Now // reset

	reqMsg := "this field is required"
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"token": reqMsg, "uid": reqMsg, "password": reqMsg, "password_confirm": reqMsg}),
		},
		{
			name: "PasswordConfirm must = Password", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "lol", UID: "lol", Password: "LolC@t123", PasswordConfirm: "lol"}),
			wantData: marchallObj(t, map[string]string{"password_confirm": "password_confirm must be equal to Password"}),
		},
		{
			name: "invalid uid", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "lol", UID: "?!?", Password: "LolC@t123", PasswordConfirm: "LolC@t123"}),
			wantData: marchallObj(t, httpErr{Error: "invalid token"}),
		},
		{
			name: "invalid token", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "HE4TS-sigsig-sig", UID: validUID, Password: "LolC@t123", PasswordConfirm: "LolC@t123"}),
			wantData: marchallObj(t, httpErr{Error: "invalid token"}),
		},
		{
			name: "expired token", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: expiredToken, UID: validUID, Password: "LolC@t123", PasswordConfirm: "LolC@t123"}),
			wantData: marchallObj(t, httpErr{Error: "token expired"}),
		},
		{
			name: "valid token", wantCode: http.StatusOK,
			body:     marchallObj(t, user.ResetUserPassword{Token: validToken, UID: validUID, Password: "LolC@t123", PasswordConfirm: "LolC@t123"}),
			wantData: marchallObj(t, echoapi.SuccessResponse{Success: "Password has been reset with the new password."}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/password-reset-confirm"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				refreshed, err := usrSvc.GetByID(context.Background(), student.ID)
				if err != nil {
					t.Fatalf("GetByID() failed: %v", err)
				}
				if refreshed.CheckPassword("LolC@t123") != nil {
					t.Fatal("failed to update new password")
				}
			}
		})
	}
}

func Test_userApi_userDestroy(t *testing.T) {
	setup(t)

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.test", "", user.RoleAdmin, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.test", "", user.RoleStudent, true)

	adminToken := getToken(t, admin)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users/" + student.ID, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", path: "/v1/users/" + admin.ID, token: getToken(t, student),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "Say No to Suicide", path: "/v1/users/" + admin.ID, token: adminToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "Deleted", path: "/v1/users/" + student.ID, token: adminToken, wantCode: http.StatusNoContent},
	}
	for _, tt := range tests {
		tt.method = http.MethodDelete

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusNoContent {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				if _, err := usrSvc.GetByID(context.Background(), student.ID); err == nil {
					t.Error("failed! user still exists")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}
