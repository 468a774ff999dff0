package testutil

import (
	"context"
	"log"
	"net/mail"
	"os"
	"testing"
	"time"

	"github.com/trezcool/maoni/core"
	"github.com/trezcool/maoni/core/user"
	logsvc "github.com/trezcool/maoni/services/logger"
)

// NewTestConfig sets up the package-level core.Conf for tests and parses
// the email templates.
func NewTestConfig() *core.Config {
	core.Conf = &core.Config{
		Debug:            false,
		TestMode:         true,
		Env:              "TEST",
		Build:            "test",
		AppName:          "Maoni",
		SecretKey:        "secret",
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: mail.Address{Address: "noreply@localhost"},

		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		OTPExpirationDelta:        10 * time.Minute,

		Server: core.ServerConfig{
			Host:                      "localhost",
			Port:                      "8000",
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			ShutdownTimeout:           5 * time.Second,
		},
	}

	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "TEST : ", log.LstdFlags), core.Conf)
	logger.Enable(false)
	core.ParseEmailTemplates(logger)

	return core.Conf
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd string,
	isStaff bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:       name,
		Username:   email,
		Email:      email,
		IsStaff:    isStaff,
		IsVerified: true,
		CreatedAt:  tstamp,
		UpdatedAt:  tstamp,
	}
	if isStaff {
		usr.CanCreateBatch = true
		usr.CanCreateSubject = true
		usr.CanCreateForm = true
	}
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

func CreateSuperuser(t *testing.T, repo user.Repository, name, email, pwd string) user.User {
	usr := CreateUser(t, repo, name, email, pwd, true)
	usr.IsSuperuser = true
	usr, err := repo.UpdateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateSuperuser() failed: %v", err)
	}
	return usr
}
