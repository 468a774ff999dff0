package user_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maoni/core/user"
	emailsvc "github.com/trezcool/maoni/services/email"
	dummydb "github.com/trezcool/maoni/storage/database/dummy"
	testutil "github.com/trezcool/maoni/tests"
)

func setup(t *testing.T) (user.Service, user.Repository) {
	conf := testutil.NewTestConfig()
	db, err := dummydb.Open()
	require.NoError(t, err)
	repo := dummydb.NewUserRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock()
	emailsvc.ClearSentMessages()
	return user.NewServiceMock(db, repo, mailSvc, conf), repo
}

func TestService_CreateTeacher(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	usr, err := svc.CreateTeacher(ctx, user.NewTeacher{
		Name:     "Jane Doe",
		Email:    "jane@test.test",
		Password: "Str0ng&Pwd!",
	})
	require.NoError(t, err)

	assert.Equal(t, "jane@test.test", usr.Username)
	assert.True(t, usr.IsStaff)
	assert.False(t, usr.IsVerified)
	assert.True(t, usr.CanCreateSubject)
	assert.True(t, usr.CanCreateForm)
	assert.False(t, usr.CanCreateBatch)
	assert.NoError(t, usr.CheckPassword("Str0ng&Pwd!"))
}

func TestService_OTPFlow(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	usr, err := svc.CreateTeacher(ctx, user.NewTeacher{
		Name:     "Jane Doe",
		Email:    "jane@test.test",
		Password: "Str0ng&Pwd!",
	})
	require.NoError(t, err)

	t.Run("unknown email", func(t *testing.T) {
		err := svc.SendOTP(ctx, "nobody@test.test")
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	})

	t.Run("send", func(t *testing.T) {
		require.NoError(t, svc.SendOTP(ctx, usr.Email))

		require.Len(t, emailsvc.SentMessages, 1)
		msg := emailsvc.SentMessages[0]
		assert.Equal(t, "OTP Verification", msg.Subject)
		assert.Equal(t, usr.Email, msg.To[0].Address)

		otp, err := repo.GetOTPByUserID(ctx, usr.ID)
		require.NoError(t, err)
		assert.Len(t, otp.Code, 6)
		assert.Contains(t, msg.TextContent, otp.Code)
	})

	t.Run("resend overwrites", func(t *testing.T) {
		first, err := repo.GetOTPByUserID(ctx, usr.ID)
		require.NoError(t, err)

		require.NoError(t, svc.SendOTP(ctx, usr.Email))
		second, err := repo.GetOTPByUserID(ctx, usr.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID) // still a single OTP per user
	})

	t.Run("wrong code", func(t *testing.T) {
		_, err := svc.VerifyOTP(ctx, usr.Email, "000000")
		assert.Equal(t, user.ErrOTPInvalid, errors.Cause(err))
	})

	t.Run("expired code", func(t *testing.T) {
		otp, err := repo.GetOTPByUserID(ctx, usr.ID)
		require.NoError(t, err)
		otp.GeneratedAt = time.Now().UTC().Add(-time.Hour)
		_, err = repo.UpsertOTP(ctx, otp)
		require.NoError(t, err)

		_, err = svc.VerifyOTP(ctx, usr.Email, otp.Code)
		assert.Equal(t, user.ErrOTPExpired, errors.Cause(err))
	})

	t.Run("valid code", func(t *testing.T) {
		require.NoError(t, svc.SendOTP(ctx, usr.Email))
		otp, err := repo.GetOTPByUserID(ctx, usr.ID)
		require.NoError(t, err)

		verified, err := svc.VerifyOTP(ctx, usr.Email, otp.Code)
		require.NoError(t, err)
		assert.True(t, verified.IsVerified)
	})
}

func TestService_PasswordResetFlow(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	usr, err := svc.CreateTeacher(ctx, user.NewTeacher{
		Name:     "Jane Doe",
		Email:    "jane@test.test",
		Password: "Str0ng&Pwd!",
	})
	require.NoError(t, err)

	require.NoError(t, svc.RequestPasswordReset(ctx, usr.Email))
	require.Len(t, emailsvc.SentMessages, 1)
	msg := emailsvc.SentMessages[0]
	assert.Equal(t, "Reset Password", msg.Subject)

	// pull uid & token out of the reset URL: .../resetPassword/<uid>/<token>
	idx := strings.Index(msg.TextContent, "/resetPassword/")
	require.True(t, idx >= 0)
	rest := msg.TextContent[idx+len("/resetPassword/"):]
	parts := strings.SplitN(strings.Fields(rest)[0], "/", 2)
	require.Len(t, parts, 2)
	uid, token := parts[0], parts[1]

	require.NoError(t, svc.VerifyPasswordResetToken(ctx, uid, token))

	require.NoError(t, svc.ResetPassword(ctx, user.ResetUserPassword{
		UID:             uid,
		Token:           token,
		Password:        "N3w&Str0ng!",
		PasswordConfirm: "N3w&Str0ng!",
	}))

	refreshed, err := svc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.NoError(t, refreshed.CheckPassword("N3w&Str0ng!"))

	// token is single-use: the password change invalidates it
	err = svc.VerifyPasswordResetToken(ctx, uid, token)
	assert.Error(t, err)
}

func TestService_UpdatePermissions(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	teacher, err := svc.CreateTeacher(ctx, user.NewTeacher{
		Name:     "Jane Doe",
		Email:    "jane@test.test",
		Password: "Str0ng&Pwd!",
	})
	require.NoError(t, err)

	yes := true
	no := false
	updated, err := svc.UpdatePermissions(ctx, user.TeacherPermissions{
		UserID:         teacher.ID,
		CanCreateBatch: &yes,
		CanCreateForm:  &no,
	})
	require.NoError(t, err)
	assert.True(t, updated.CanCreateBatch)
	assert.False(t, updated.CanCreateForm)
	assert.True(t, updated.CanCreateSubject) // untouched

	t.Run("student is not a teacher", func(t *testing.T) {
		student := testutil.CreateUser(t, repo, "Stu", "stu@test.test", "pwd", false)
		_, err := svc.UpdatePermissions(ctx, user.TeacherPermissions{UserID: student.ID, CanCreateBatch: &yes})
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	})
}
