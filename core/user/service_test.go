package user_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/classsphere/backend/core"
	"github.com/classsphere/backend/core/user"
	emailsvc "github.com/classsphere/backend/services/email"
	dummydb "github.com/classsphere/backend/storage/database/dummy"
	testutil "github.com/classsphere/backend/tests"
)

func setup(t *testing.T) (*user.Service, user.Repository) {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	repo := dummydb.NewUserRepository(db)

	conf := testutil.NewConfig()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	emailsvc.ClearSentMessages()

	return user.NewService(repo, mailSvc, conf, testutil.Logger{}), repo
}

// validationCause digs the wrapped error out of a ValidationError.
func validationCause(err error) error {
	var vErr *core.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Err
	}
	return err
}

func TestService_SignupRoundtrip(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	nu := user.NewUser{
		Name:            "Jane Doe",
		Username:        "jane",
		Email:           "jane@test.test",
		Role:            user.RoleStudent,
		Password:        "LionelMessi10",
		PasswordConfirm: "LionelMessi10",
	}
	if err := svc.StartSignup(ctx, nu); err != nil {
		t.Fatalf("StartSignup() error = %v", err)
	}

	// the code was stored and emailed
	ps, err := repo.GetPendingSignup(ctx, nu.Email)
	if err != nil {
		t.Fatalf("GetPendingSignup() error = %v", err)
	}
	if len(ps.Code) != 6 {
		t.Errorf("OTP code = %q, want 6 digits", ps.Code)
	}
	if len(emailsvc.SentMessages) != 1 {
		t.Fatalf("sent %d emails, want 1", len(emailsvc.SentMessages))
	}
	if !strings.Contains(emailsvc.SentMessages[0].TextContent, ps.Code) {
		t.Error("OTP email does not contain the code")
	}

	// no User row yet
	if _, err := svc.GetByEmail(ctx, nu.Email); errors.Cause(err) != user.ErrNotFound {
		t.Errorf("GetByEmail() before verification error = %v, want ErrNotFound", err)
	}

	// wrong code is rejected
	wrong := "000000"
	if wrong == ps.Code {
		wrong = "000001"
	}
	_, err = svc.VerifySignup(ctx, user.VerifyOTP{Email: nu.Email, Code: wrong})
	if validationCause(err) != user.ErrOTPInvalid {
		t.Errorf("VerifySignup() wrong code error = %v, want ErrOTPInvalid", err)
	}

	// right code creates the verified, active user
	usr, err := svc.VerifySignup(ctx, user.VerifyOTP{Email: nu.Email, Code: ps.Code})
	if err != nil {
		t.Fatalf("VerifySignup() error = %v", err)
	}
	if !usr.IsVerified || !usr.Active() {
		t.Errorf("VerifySignup() user = %+v, want verified and active", usr)
	}
	if usr.Role != user.RoleStudent {
		t.Errorf("Role = %q, want %q", usr.Role, user.RoleStudent)
	}
	if err := usr.CheckPassword(nu.Password); err != nil {
		t.Errorf("CheckPassword() error = %v", err)
	}

	// the pending signup is consumed
	_, err = svc.VerifySignup(ctx, user.VerifyOTP{Email: nu.Email, Code: ps.Code})
	if errors.Cause(err) != user.ErrOTPNotFound {
		t.Errorf("VerifySignup() replay error = %v, want ErrOTPNotFound", err)
	}
}

func TestService_SignupOTPExpiry(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	nu := user.NewUser{
		Name:            "Jane Doe",
		Username:        "jane",
		Email:           "jane@test.test",
		Role:            user.RoleStudent,
		Password:        "LionelMessi10",
		PasswordConfirm: "LionelMessi10",
	}
	if err := svc.StartSignup(ctx, nu); err != nil {
		t.Fatalf("StartSignup() error = %v", err)
	}
	ps, err := repo.GetPendingSignup(ctx, nu.Email)
	if err != nil {
		t.Fatalf("GetPendingSignup() error = %v", err)
	}

	user.NowFunc = func() time.Time { return time.Now().Add(11 * time.Minute) }
	defer func() { user.NowFunc = time.Now }()

	_, err = svc.VerifySignup(ctx, user.VerifyOTP{Email: nu.Email, Code: ps.Code})
	if validationCause(err) != user.ErrOTPExpired {
		t.Errorf("VerifySignup() error = %v, want ErrOTPExpired", err)
	}

	// a resend restamps the pending signup with a fresh code
	if err := svc.ResendOTP(ctx, nu.Email); err != nil {
		t.Fatalf("ResendOTP() error = %v", err)
	}
	fresh, err := repo.GetPendingSignup(ctx, nu.Email)
	if err != nil {
		t.Fatalf("GetPendingSignup() error = %v", err)
	}
	if _, err = svc.VerifySignup(ctx, user.VerifyOTP{Email: nu.Email, Code: fresh.Code}); err != nil {
		t.Errorf("VerifySignup() after resend error = %v", err)
	}
}

func TestService_SignupUniqueness(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	testutil.CreateUser(t, repo, "Taken", "taken", "taken@test.test", "pwd", user.RoleStudent, true)

	nu := user.NewUser{
		Name:            "Jane Doe",
		Username:        "taken",
		Email:           "jane@test.test",
		Role:            user.RoleStudent,
		Password:        "LionelMessi10",
		PasswordConfirm: "LionelMessi10",
	}
	err := svc.StartSignup(ctx, nu)
	var vErr *core.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("StartSignup() error = %v, want ValidationError", err)
	}
	if len(vErr.Fields) != 1 || vErr.Fields[0].Field != "username" {
		t.Errorf("ValidationError fields = %+v", vErr.Fields)
	}
}

func TestService_PasswordReset(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, repo, "Jane", "jane", "jane@test.test", "oldpwd", user.RoleTeacher, true)

	if err := svc.RequestPasswordReset(ctx, usr.Email); err != nil {
		t.Fatalf("RequestPasswordReset() error = %v", err)
	}
	if len(emailsvc.SentMessages) != 1 {
		t.Fatalf("sent %d emails, want 1", len(emailsvc.SentMessages))
	}
	if !strings.Contains(emailsvc.SentMessages[0].TextContent, user.EncodeUID(usr)) {
		t.Error("reset email does not contain the uid")
	}

	token, err := user.MakeToken(testutil.NewConfig(), usr)
	if err != nil {
		t.Fatalf("MakeToken() error = %v", err)
	}
	data := user.ResetUserPassword{
		Token:           token,
		UID:             user.EncodeUID(usr),
		Password:        "CR7goat!",
		PasswordConfirm: "CR7goat!",
	}
	if err := svc.ResetPassword(ctx, data); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}

	refreshed, err := svc.GetByID(ctx, usr.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if err := refreshed.CheckPassword("CR7goat!"); err != nil {
		t.Errorf("CheckPassword() after reset error = %v", err)
	}

	// the token is single-use: hashing the new password invalidated it
	if err := svc.ResetPassword(ctx, data); err == nil {
		t.Error("ResetPassword() accepted a used token")
	}
}
