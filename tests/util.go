package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/classsphere/backend/core"
	"github.com/classsphere/backend/core/user"
)

// NewConfig returns a config suitable for tests: no external services,
// short deltas, a fixed secret.
func NewConfig() *core.Config {
	return &core.Config{
		Debug:                     false,
		TestMode:                  true,
		Env:                       "TEST",
		AppName:                   "ClassSphere",
		SecretKey:                 []byte("secret"),
		FrontendBaseURL:           "http://localhost:3000",
		DefaultFromEmail:          "noreply@test.test",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		SignupOTPTimeoutDelta:     10 * time.Minute,
		Server: core.ServerConfig{
			JWTExpirationDelta:        7 * 24 * time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			WSWriteTimeout:            2 * time.Second,
			WSPingInterval:            30 * time.Second,
			WSSendBufferSize:          16,
			WSMaxMessageBytes:         1 << 20,
		},
	}
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:       name,
		Username:   uname,
		Email:      email,
		Role:       role,
		IsVerified: true,
		CreatedAt:  tstamp,
		UpdatedAt:  tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// Logger discards everything; it keeps test output quiet.
type Logger struct{}

var _ core.Logger = (*Logger)(nil)

func (Logger) Enable(bool)                  {}
func (Logger) Debug(string, ...interface{}) {}
func (Logger) Info(string, ...interface{})  {}
func (Logger) Warn(string, ...interface{})  {}
func (Logger) Error(string, ...interface{}) {}
func (Logger) Fatal(string, ...interface{}) {}
