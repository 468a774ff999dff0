package roster_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maoni/core/roster"
	"github.com/trezcool/maoni/core/user"
	dummydb "github.com/trezcool/maoni/storage/database/dummy"
	testutil "github.com/trezcool/maoni/tests"
)

const instID = "7415f6f2-5b3d-4dcc-b0e3-9926bbb092fb"

func setup(t *testing.T) (roster.Service, user.Repository) {
	testutil.NewTestConfig()
	db, err := dummydb.Open()
	require.NoError(t, err)
	return roster.NewService(db, dummydb.NewRosterRepository(db)), dummydb.NewUserRepository(db)
}

func TestService_CreateBatch(t *testing.T) {
	svc, usrRepo := setup(t)
	ctx := context.Background()

	s1 := testutil.CreateUser(t, usrRepo, "Stu One", "s1@test.test", "pwd", false)
	s2 := testutil.CreateUser(t, usrRepo, "Stu Two", "s2@test.test", "pwd", false)

	year := 2
	batch, err := svc.CreateBatch(ctx, instID, roster.NewBatch{
		Name:     "IT-A",
		Division: "A",
		Year:     &year,
		// unknown addresses are skipped, not rejected
		StudentEmails: []string{s1.Email, s2.Email, "ghost@test.test"},
	})
	require.NoError(t, err)
	assert.Equal(t, instID, batch.InstanceID)
	assert.Equal(t, 2, batch.Year)

	members, err := svc.BatchStudents(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	emails := []string{members[0].Email, members[1].Email}
	assert.ElementsMatch(t, []string{s1.Email, s2.Email}, emails)
}

func TestService_UpdateBatch(t *testing.T) {
	svc, usrRepo := setup(t)
	ctx := context.Background()

	s1 := testutil.CreateUser(t, usrRepo, "Stu One", "s1@test.test", "pwd", false)
	s2 := testutil.CreateUser(t, usrRepo, "Stu Two", "s2@test.test", "pwd", false)

	year := 2
	batch, err := svc.CreateBatch(ctx, instID, roster.NewBatch{
		Name:          "IT-A",
		Year:          &year,
		StudentEmails: []string{s1.Email},
	})
	require.NoError(t, err)

	t.Run("not found", func(t *testing.T) {
		_, err := svc.UpdateBatch(ctx, roster.UpdateBatch{ID: "1817a3b9-32ae-4881-b6d3-fc4c57db1dcc"})
		assert.Equal(t, roster.ErrBatchNotFound, errors.Cause(err))
	})

	t.Run("nil member list leaves membership untouched", func(t *testing.T) {
		newYear := 3
		updated, err := svc.UpdateBatch(ctx, roster.UpdateBatch{ID: batch.ID, Name: "IT-B", Year: &newYear})
		require.NoError(t, err)
		assert.Equal(t, "IT-B", updated.Name)
		assert.Equal(t, 3, updated.Year)

		members, err := svc.BatchStudents(ctx, batch.ID)
		require.NoError(t, err)
		assert.Len(t, members, 1)
	})

	t.Run("member list is replaced wholesale", func(t *testing.T) {
		_, err := svc.UpdateBatch(ctx, roster.UpdateBatch{ID: batch.ID, StudentEmails: []string{s2.Email}})
		require.NoError(t, err)

		members, err := svc.BatchStudents(ctx, batch.ID)
		require.NoError(t, err)
		require.Len(t, members, 1)
		assert.Equal(t, s2.Email, members[0].Email)
	})
}

func TestService_QueryBatches(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	y2, y3 := 2, 3
	_, err := svc.CreateBatch(ctx, instID, roster.NewBatch{Name: "IT-A", Year: &y2})
	require.NoError(t, err)
	_, err = svc.CreateBatch(ctx, instID, roster.NewBatch{Name: "IT-B", Year: &y3})
	require.NoError(t, err)
	_, err = svc.CreateBatch(ctx, "e9929e54-c431-4861-b6ca-b9bdcdcdd53d", roster.NewBatch{Name: "Other", Year: &y2})
	require.NoError(t, err)

	all, err := svc.QueryBatches(ctx, &roster.BatchFilter{InstanceID: instID})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byYear, err := svc.QueryBatches(ctx, &roster.BatchFilter{Year: &y3, InstanceID: instID})
	require.NoError(t, err)
	require.Len(t, byYear, 1)
	assert.Equal(t, "IT-B", byYear[0].Name)
}

func TestService_Sections(t *testing.T) {
	svc, usrRepo := setup(t)
	ctx := context.Background()

	teacher := testutil.CreateUser(t, usrRepo, "Prof", "prof@test.test", "pwd", true)
	year := 2
	batch, err := svc.CreateBatch(ctx, instID, roster.NewBatch{Name: "IT-A", Year: &year})
	require.NoError(t, err)

	t.Run("unknown batch", func(t *testing.T) {
		_, err := svc.AddSection(ctx, instID, roster.NewSection{
			SubjectName: "Networks",
			BatchID:     "deabeccc-33a6-4ccb-a9eb-17a3b65bcc28",
			Kind:        roster.Theory,
		})
		assert.Equal(t, roster.ErrBatchNotFound, errors.Cause(err))
	})

	theory, err := svc.AddSection(ctx, instID, roster.NewSection{
		SubjectName: "Networks",
		BatchID:     batch.ID,
		TeacherIDs:  []string{teacher.ID},
		Kind:        roster.Theory,
	})
	require.NoError(t, err)

	// same subject name reuses the subject record
	practical, err := svc.AddSection(ctx, instID, roster.NewSection{
		SubjectName: "Networks",
		BatchID:     batch.ID,
		TeacherIDs:  []string{teacher.ID},
		Kind:        roster.Practical,
	})
	require.NoError(t, err)
	assert.Equal(t, theory.SubjectID, practical.SubjectID)

	subjects, err := svc.QuerySubjects(ctx, instID)
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Equal(t, "Networks", subjects[0].Name)
	require.Len(t, subjects[0].Sections, 2)
	for _, sec := range subjects[0].Sections {
		assert.Equal(t, "IT-A", sec.BatchName)
		assert.Contains(t, sec.TeacherNames, "Prof")
	}

	t.Run("delete subject removes its sections", func(t *testing.T) {
		require.NoError(t, svc.DeleteSubject(ctx, theory.SubjectID))

		subjects, err := svc.QuerySubjects(ctx, instID)
		require.NoError(t, err)
		assert.Empty(t, subjects)

		_, err = svc.GetSubject(ctx, roster.SubjectFilter{ID: theory.SubjectID})
		assert.Equal(t, roster.ErrSubjectNotFound, errors.Cause(err))
	})
}

func TestService_DeleteBatch(t *testing.T) {
	svc, usrRepo := setup(t)
	ctx := context.Background()

	s1 := testutil.CreateUser(t, usrRepo, "Stu One", "s1@test.test", "pwd", false)
	year := 2
	batch, err := svc.CreateBatch(ctx, instID, roster.NewBatch{Name: "IT-A", Year: &year, StudentEmails: []string{s1.Email}})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteBatch(ctx, batch.ID))
	_, err = svc.GetBatch(ctx, batch.ID)
	assert.Equal(t, roster.ErrBatchNotFound, errors.Cause(err))
}
