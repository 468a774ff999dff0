package feedback_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maoni/core/feedback"
	"github.com/trezcool/maoni/core/roster"
	"github.com/trezcool/maoni/core/user"
	emailsvc "github.com/trezcool/maoni/services/email"
	dummydb "github.com/trezcool/maoni/storage/database/dummy"
	testutil "github.com/trezcool/maoni/tests"
)

type fixture struct {
	ctx     context.Context
	usrRepo user.Repository
	roster  roster.Service
	svc     feedback.Service

	teacher user.User
	s1      user.User
	s2      user.User
	s3      user.User

	instID  string
	batch   roster.Batch
	subject roster.Subject
}

func setup(t *testing.T) *fixture {
	testutil.NewTestConfig()
	db, err := dummydb.Open()
	require.NoError(t, err)

	f := &fixture{
		ctx:     context.Background(),
		usrRepo: dummydb.NewUserRepository(db),
		roster:  roster.NewService(db, dummydb.NewRosterRepository(db)),
	}
	mailSvc := emailsvc.NewConsoleServiceMock()
	emailsvc.ClearSentMessages()
	f.svc = feedback.NewService(db, dummydb.NewFeedbackRepository(db), f.roster, mailSvc)

	f.teacher = testutil.CreateUser(t, f.usrRepo, "Prof", "prof@test.test", "pwd", true)
	f.s1 = testutil.CreateUser(t, f.usrRepo, "Stu One", "s1@test.test", "pwd", false)
	f.s2 = testutil.CreateUser(t, f.usrRepo, "Stu Two", "s2@test.test", "pwd", false)
	f.s3 = testutil.CreateUser(t, f.usrRepo, "Stu Three", "s3@test.test", "pwd", false)

	f.instID = "2cd68cc3-66b9-4712-89d7-e235b33b4e05"

	year := 3
	f.batch, err = f.roster.CreateBatch(f.ctx, f.instID, roster.NewBatch{
		Name:          "CS-A",
		Division:      "A",
		Year:          &year,
		StudentEmails: []string{f.s1.Email, f.s2.Email},
	})
	require.NoError(t, err)

	section, err := f.roster.AddSection(f.ctx, f.instID, roster.NewSection{
		SubjectName: "Databases",
		BatchID:     f.batch.ID,
		TeacherIDs:  []string{f.teacher.ID},
		Kind:        roster.Theory,
	})
	require.NoError(t, err)
	f.subject, err = f.roster.GetSubject(f.ctx, roster.SubjectFilter{ID: section.SubjectID})
	require.NoError(t, err)

	return f
}

func (f *fixture) createForm(t *testing.T, batchIDs ...string) feedback.Form {
	if len(batchIDs) == 0 {
		batchIDs = []string{f.batch.ID}
	}
	form, err := f.svc.CreateForm(f.ctx, f.teacher.ID, f.instID, feedback.NewForm{
		Fields:    json.RawMessage(`[{"question":"How was the pace?","type":"rating"}]`),
		SubjectID: f.subject.ID,
		DueDate:   time.Now().Add(7 * 24 * time.Hour).UTC().Format(time.RFC3339),
		BatchIDs:  batchIDs,
		IsTheory:  true,
	})
	require.NoError(t, err)
	return form
}

func TestService_CreateForm(t *testing.T) {
	f := setup(t)

	t.Run("unknown subject", func(t *testing.T) {
		_, err := f.svc.CreateForm(f.ctx, f.teacher.ID, f.instID, feedback.NewForm{
			Fields:    json.RawMessage(`[]`),
			SubjectID: "6f8ed2a3-55fc-4f44-a6ef-ec096e36cfd0",
			DueDate:   time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
			BatchIDs:  []string{f.batch.ID},
		})
		assert.Equal(t, roster.ErrSubjectNotFound, errors.Cause(err))
	})

	form := f.createForm(t)
	assert.True(t, form.IsAlive)

	// one Pending connector per student of the batch
	data, err := f.svc.FormResponses(f.ctx, form.ID)
	require.NoError(t, err)
	require.Len(t, data, 2)
	for _, d := range data {
		assert.False(t, d.IsFilled)
	}

	for _, stu := range []user.User{f.s1, f.s2} {
		pending, err := f.svc.PendingForStudent(f.ctx, stu.ID)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, form.ID, pending[0].FormID)
		assert.Equal(t, "Databases", pending[0].SubjectName)
	}

	// s3 is not in the batch
	pending, err := f.svc.PendingForStudent(f.ctx, f.s3.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestService_SaveResult(t *testing.T) {
	f := setup(t)
	form := f.createForm(t)

	t.Run("no connector", func(t *testing.T) {
		_, err := f.svc.SaveResult(f.ctx, f.s3.ID, feedback.SubmitResult{
			FormID:  form.ID,
			Payload: json.RawMessage(`{"q1":5}`),
		})
		assert.Equal(t, feedback.ErrConnectorNotFound, errors.Cause(err))
	})

	conn, err := f.svc.SaveResult(f.ctx, f.s1.ID, feedback.SubmitResult{
		FormID:  form.ID,
		Payload: json.RawMessage(`{"q1":5}`),
	})
	require.NoError(t, err)
	assert.True(t, conn.IsFilled)
	assert.JSONEq(t, `{"q1":5}`, string(conn.Payload))

	// a filled form moves from the pending list to the history
	pending, err := f.svc.PendingForStudent(f.ctx, f.s1.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
	history, err := f.svc.HistoryForStudent(f.ctx, f.s1.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].IsFilled)

	t.Run("resubmit overwrites", func(t *testing.T) {
		conn, err := f.svc.SaveResult(f.ctx, f.s1.ID, feedback.SubmitResult{
			FormID:  form.ID,
			Payload: json.RawMessage(`{"q1":2}`),
		})
		require.NoError(t, err)
		assert.True(t, conn.IsFilled)
		assert.JSONEq(t, `{"q1":2}`, string(conn.Payload))
	})
}

func TestService_UpdateForm_ReconcilesBatches(t *testing.T) {
	f := setup(t)
	form := f.createForm(t)

	year := 3
	other, err := f.roster.CreateBatch(f.ctx, f.instID, roster.NewBatch{
		Name:          "CS-B",
		Division:      "B",
		Year:          &year,
		StudentEmails: []string{f.s3.Email},
	})
	require.NoError(t, err)

	// s1 fills in before the retarget
	_, err = f.svc.SaveResult(f.ctx, f.s1.ID, feedback.SubmitResult{
		FormID:  form.ID,
		Payload: json.RawMessage(`{"q1":4}`),
	})
	require.NoError(t, err)

	_, err = f.svc.UpdateForm(f.ctx, feedback.UpdateForm{
		ID:       form.ID,
		BatchIDs: []string{other.ID},
	})
	require.NoError(t, err)

	// the dropped batch loses all its connectors, responses included;
	// the added batch gets fresh Pending ones
	data, err := f.svc.FormResponses(f.ctx, form.ID)
	require.NoError(t, err)
	require.Len(t, data, 1)
	assert.Equal(t, f.s3.ID, data[0].StudentID)
	assert.False(t, data[0].IsFilled)

	history, err := f.svc.HistoryForStudent(f.ctx, f.s1.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestService_UpdateForm_FanOutKeepsResponses(t *testing.T) {
	f := setup(t)
	form := f.createForm(t)

	_, err := f.svc.SaveResult(f.ctx, f.s1.ID, feedback.SubmitResult{
		FormID:  form.ID,
		Payload: json.RawMessage(`{"q1":4}`),
	})
	require.NoError(t, err)

	year := 3
	other, err := f.roster.CreateBatch(f.ctx, f.instID, roster.NewBatch{
		Name:          "CS-B",
		Division:      "B",
		Year:          &year,
		StudentEmails: []string{f.s3.Email},
	})
	require.NoError(t, err)

	// keeping the original batch while adding another must not reset s1
	_, err = f.svc.UpdateForm(f.ctx, feedback.UpdateForm{
		ID:       form.ID,
		BatchIDs: []string{f.batch.ID, other.ID},
	})
	require.NoError(t, err)

	data, err := f.svc.FormResponses(f.ctx, form.ID)
	require.NoError(t, err)
	require.Len(t, data, 3)
	var s1Filled bool
	for _, d := range data {
		if d.StudentID == f.s1.ID {
			s1Filled = d.IsFilled
		}
	}
	assert.True(t, s1Filled)
}

func TestService_BatchEditLeavesConnectorsAlone(t *testing.T) {
	f := setup(t)
	form := f.createForm(t)

	// adding s3 to the batch after the fan-out does not hand them the form
	_, err := f.roster.UpdateBatch(f.ctx, roster.UpdateBatch{
		ID:            f.batch.ID,
		StudentEmails: []string{f.s1.Email, f.s2.Email, f.s3.Email},
	})
	require.NoError(t, err)

	data, err := f.svc.FormResponses(f.ctx, form.ID)
	require.NoError(t, err)
	assert.Len(t, data, 2)

	pending, err := f.svc.PendingForStudent(f.ctx, f.s3.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestService_Remind(t *testing.T) {
	f := setup(t)
	form := f.createForm(t)

	_, err := f.svc.SaveResult(f.ctx, f.s1.ID, feedback.SubmitResult{
		FormID:  form.ID,
		Payload: json.RawMessage(`{"q1":3}`),
	})
	require.NoError(t, err)

	targets, err := f.svc.Remind(f.ctx, form.ID)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, f.s2.Email, targets[0].Email)

	require.Len(t, emailsvc.SentMessages, 1)
	msg := emailsvc.SentMessages[0]
	assert.Equal(t, "Feedback Reminder", msg.Subject)
	require.Len(t, msg.To, 1)
	assert.Equal(t, f.s2.Email, msg.To[0].Address)
	assert.Contains(t, msg.TextContent, "Databases")

	t.Run("nothing pending", func(t *testing.T) {
		emailsvc.ClearSentMessages()
		_, err := f.svc.SaveResult(f.ctx, f.s2.ID, feedback.SubmitResult{
			FormID:  form.ID,
			Payload: json.RawMessage(`{"q1":1}`),
		})
		require.NoError(t, err)

		targets, err := f.svc.Remind(f.ctx, form.ID)
		require.NoError(t, err)
		assert.Empty(t, targets)
		assert.Empty(t, emailsvc.SentMessages)
	})
}

func TestService_DeadFormLeavesThePendingList(t *testing.T) {
	f := setup(t)
	form := f.createForm(t)

	_, err := f.svc.SaveResult(f.ctx, f.s1.ID, feedback.SubmitResult{
		FormID:  form.ID,
		Payload: json.RawMessage(`{"q1":5}`),
	})
	require.NoError(t, err)

	dead := false
	_, err = f.svc.UpdateForm(f.ctx, feedback.UpdateForm{ID: form.ID, IsAlive: &dead})
	require.NoError(t, err)

	// pending entries disappear; submitted history stays visible
	pending, err := f.svc.PendingForStudent(f.ctx, f.s2.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	history, err := f.svc.HistoryForStudent(f.ctx, f.s1.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestService_DeleteForm(t *testing.T) {
	f := setup(t)
	form := f.createForm(t)

	require.NoError(t, f.svc.DeleteForm(f.ctx, form.ID))

	_, err := f.svc.GetForm(f.ctx, form.ID)
	assert.Equal(t, feedback.ErrFormNotFound, errors.Cause(err))

	pending, err := f.svc.PendingForStudent(f.ctx, f.s1.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
