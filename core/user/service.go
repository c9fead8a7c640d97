package user

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/classsphere/backend/core"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
	ErrOTPNotFound    = errors.New("no pending signup for this email")
	ErrOTPExpired     = errors.New("OTP expired; request a new one")
	ErrOTPInvalid     = errors.New("invalid OTP")

	// NowFunc is mockable in tests.
	NowFunc = time.Now
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		QueryAllUsers(ctx context.Context) ([]User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		GetUserByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		// FilterUsers applies AND on available QueryFilter fields. QueryFilter.Search
		// does a case-insensitive match on one of Name, Username or Email.
		FilterUsers(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]User, error)
		UpdateUser(ctx context.Context, usr User, isActive *bool) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) error

		UpsertPendingSignup(ctx context.Context, ps PendingSignup) (PendingSignup, error)
		GetPendingSignup(ctx context.Context, email string) (PendingSignup, error)
		DeletePendingSignup(ctx context.Context, email string) error
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
		logger  core.Logger
	}
)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config, logger core.Logger) *Service {
	return &Service{repo: repo, mailSvc: mailSvc, conf: conf, logger: logger}
}

func (svc *Service) checkUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(ctx, uname, email, exclUsers...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// generateOTP returns a 6-digit numeric one-time code.
func generateOTP() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "reading random bytes")
	}
	code := make([]byte, 6)
	for i, b := range buf {
		code[i] = '0' + b%10
	}
	return string(code), nil
}

// StartSignup stores a pending signup and emails its OTP code. The User row
// is only created once VerifySignup succeeds with the matching code.
func (svc *Service) StartSignup(ctx context.Context, nu NewUser) error {
	if err := svc.checkUniqueness(ctx, nu.Username, nu.Email); err != nil {
		return err
	}

	code, err := generateOTP()
	if err != nil {
		return err
	}
	var usr User
	if err = usr.SetPassword(nu.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}

	ps := PendingSignup{
		Email:        nu.Email,
		Code:         code,
		Name:         nu.Name,
		Username:     nu.Username,
		Role:         nu.Role,
		PasswordHash: usr.PasswordHash,
		CreatedAt:    NowFunc().UTC(),
	}
	if _, err = svc.repo.UpsertPendingSignup(ctx, ps); err != nil {
		return errors.Wrap(err, "storing pending signup")
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: nu.Name, Address: nu.Email}},
		Subject: "Verify Your Email - OTP Code",
		BodyStr: fmt.Sprintf(
			"Hello %s,\n\nYour OTP code is: %s. It expires in %v.\n\nThank you!",
			nu.Name, code, svc.conf.SignupOTPTimeoutDelta,
		),
	})
	return nil
}

// VerifySignup checks the OTP code and, on success, creates the User.
func (svc *Service) VerifySignup(ctx context.Context, data VerifyOTP) (User, error) {
	ps, err := svc.repo.GetPendingSignup(ctx, data.Email)
	if err != nil {
		return User{}, err
	}
	if ps.Expired(svc.conf.SignupOTPTimeoutDelta, NowFunc().UTC()) {
		return User{}, core.NewValidationError(ErrOTPExpired)
	}
	if ps.Code != data.Code {
		return User{}, core.NewValidationError(ErrOTPInvalid)
	}

	now := NowFunc().UTC()
	usr := User{
		Name:         ps.Name,
		Username:     ps.Username,
		Email:        ps.Email,
		Role:         ps.Role,
		IsVerified:   true,
		PasswordHash: ps.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	usr.SetActive(true)
	usr, err = svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}
	if err = svc.repo.DeletePendingSignup(ctx, ps.Email); err != nil {
		svc.logger.Warn(fmt.Sprintf("deleting pending signup for %s: %v", ps.Email, err))
	}
	return usr, nil
}

// ResendOTP regenerates the code for a pending signup and re-sends the email.
func (svc *Service) ResendOTP(ctx context.Context, email string) error {
	ps, err := svc.repo.GetPendingSignup(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		return err
	}
	code, err := generateOTP()
	if err != nil {
		return err
	}
	ps.Code = code
	ps.CreatedAt = NowFunc().UTC()
	if _, err = svc.repo.UpsertPendingSignup(ctx, ps); err != nil {
		return errors.Wrap(err, "storing pending signup")
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: ps.Name, Address: ps.Email}},
		Subject: "Verify Your Email - OTP Code",
		BodyStr: fmt.Sprintf(
			"Hello %s,\n\nYour OTP code is: %s. It expires in %v.\n\nThank you!",
			ps.Name, code, svc.conf.SignupOTPTimeoutDelta,
		),
	})
	return nil
}

// Create creates an already-verified User (admin CLI and admin endpoints).
func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	if err := svc.checkUniqueness(ctx, nu.Username, nu.Email); err != nil {
		return User{}, err
	}
	now := NowFunc().UTC()
	usr := User{
		Name:       nu.Name,
		Username:   nu.Username,
		Email:      nu.Email,
		Role:       nu.Role,
		IsVerified: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	usr.SetActive(true)
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) QueryAll(ctx context.Context) ([]User, error) {
	return svc.repo.QueryAllUsers(ctx)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUserByUsernameOrEmail(ctx, core.CleanString(uname, true /* lower */))
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]User, error) {
	return svc.repo.FilterUsers(ctx, filter, ordering...)
}

func (svc *Service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	orig, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if err = svc.checkUniqueness(ctx, uu.Username, uu.Email, orig); err != nil {
		return User{}, err
	}
	usr := User{
		ID:        id,
		Name:      uu.Name,
		Username:  uu.Username,
		Email:     uu.Email,
		UpdatedAt: NowFunc().UTC(),
	}
	if uu.Password != "" {
		if err = usr.SetPassword(uu.Password); err != nil {
			return User{}, err
		}
	}
	return svc.repo.UpdateUser(ctx, usr, uu.IsActive)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = NowFunc().UTC()
	return svc.repo.UpdateUser(ctx, User{ID: usr.ID, LastLogin: usr.LastLogin}, nil)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteUsersByID(ctx, ids...)
}

// RequestPasswordReset emails a reset link for the account, if one exists.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		return err
	}
	token, err := MakeToken(svc.conf, usr)
	if err != nil {
		return errors.Wrap(err, "making reset token")
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject: fmt.Sprintf("Password reset on %s", svc.conf.AppName),
		BodyStr: fmt.Sprintf(
			"Hello %s,\n\nFollow the link below to set a new password:\n\n%s/password-reset-confirm?uid=%s&token=%s\n",
			usr.Name, svc.conf.FrontendBaseURL, EncodeUID(usr), token,
		),
	})
	return nil
}

// ResetPassword sets a new password after verifying the emailed token.
func (svc *Service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	uid, err := decodeUID(data.UID)
	if err != nil {
		return core.NewValidationError(errInvalidToken)
	}
	usr, err := svc.repo.GetUserByID(ctx, uid)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return core.NewValidationError(errInvalidToken)
		}
		return err
	}
	if err = verifyToken(svc.conf, usr, data.Token); err != nil {
		return core.NewValidationError(err)
	}
	if err = usr.SetPassword(data.Password); err != nil {
		return err
	}
	usr.UpdatedAt = NowFunc().UTC()
	if _, err = svc.repo.UpdateUser(ctx, usr, nil); err != nil {
		return errors.Wrap(err, "updating password")
	}
	return nil
}
