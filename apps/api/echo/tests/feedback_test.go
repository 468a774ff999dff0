package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/trezcool/maoni/core/feedback"
	"github.com/trezcool/maoni/core/instance"
	"github.com/trezcool/maoni/core/roster"
	emailsvc "github.com/trezcool/maoni/services/email"
	testutil "github.com/trezcool/maoni/tests"
)

// Walks the whole portal flow over HTTP: instance, batch, subject, form,
// student submission, reminder.
func Test_feedbackApi_endToEnd(t *testing.T) {
	admin := testutil.CreateSuperuser(t, usrRepo, "Admin E2E", "admin.e2e@test.test", "pwd")
	teacher := testutil.CreateUser(t, usrRepo, "Prof E2E", "prof.e2e@test.test", "pwd", true)
	s1 := testutil.CreateUser(t, usrRepo, "Stu One", "s1.e2e@test.test", "pwd", false)
	s2 := testutil.CreateUser(t, usrRepo, "Stu Two", "s2.e2e@test.test", "pwd", false)

	adminToken := getToken(t, admin)
	teacherToken := getToken(t, teacher)
	s1Token := getToken(t, s1)
	s2Token := getToken(t, s2)

	emailsvc.ClearSentMessages()

	// admin opens the academic instance
	req, rec := newAuthRequest(http.MethodPost, "/api/createNewInst", adminToken, []byte(`{"year":"2024-25"}`))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("createNewInst failed! code = %v; body %s", rec.Code, rec.Body.String())
	}

	// teacher creates a batch with two students and one unknown email
	body := []byte(`{"batch_name":"CS-A","division":"A","year":3,"students":["s1.e2e@test.test","s2.e2e@test.test","ghost@test.test"]}`)
	req, rec = newAuthRequest(http.MethodPost, "/api/bac", teacherToken, body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("bac failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	var batch roster.Batch
	env := parseEnvelope(t, rec)
	if err := json.Unmarshal(env.Data, &batch); err != nil {
		t.Fatalf("unmarshalling batch: %v", err)
	}

	// theory section for a new subject
	body = marshallObj(t, map[string]interface{}{
		"subject_name": "Databases",
		"batch_id":     batch.ID,
		"teachers":     []string{teacher.ID},
	})
	req, rec = newAuthRequest(http.MethodPost, "/api/addTheorySubject", teacherToken, body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("addTheorySubject failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	var section roster.Section
	env = parseEnvelope(t, rec)
	if err := json.Unmarshal(env.Data, &section); err != nil {
		t.Fatalf("unmarshalling section: %v", err)
	}

	// the feedback form targets the batch
	body = marshallObj(t, map[string]interface{}{
		"form_field": []map[string]string{{"question": "How was the pace?", "type": "rating"}},
		"subject_id": section.SubjectID,
		"due_date":   time.Now().Add(7 * 24 * time.Hour).UTC().Format(time.RFC3339),
		"batch_list": []string{batch.ID},
		"is_theory":  true,
	})
	req, rec = newAuthRequest(http.MethodPost, "/api/createFeedbackForm", teacherToken, body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("createFeedbackForm failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	var form feedback.Form
	env = parseEnvelope(t, rec)
	if err := json.Unmarshal(env.Data, &form); err != nil {
		t.Fatalf("unmarshalling form: %v", err)
	}

	// both students see it pending
	for name, token := range map[string]string{"s1": s1Token, "s2": s2Token} {
		req, rec = newAuthRequest(http.MethodGet, "/api/getSDashData", token)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("getSDashData(%s) failed! code = %v; body %s", name, rec.Code, rec.Body.String())
		}
		var items []feedback.DashboardItem
		env = parseEnvelope(t, rec)
		_ = json.Unmarshal(env.Data, &items)
		if len(items) != 1 || items[0].FormID != form.ID {
			t.Fatalf("getSDashData(%s) = %s; want the pending form", name, rec.Body.String())
		}
	}

	// s1 opens and submits the form
	req, rec = newAuthRequest(http.MethodGet, "/api/getSDashDataForm/"+form.ID, s1Token)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("getSDashDataForm failed! code = %v; body %s", rec.Code, rec.Body.String())
	}

	body = marshallObj(t, map[string]interface{}{
		"form_id":       form.ID,
		"user_feedback": map[string]int{"q1": 5},
	})
	req, rec = newAuthRequest(http.MethodPost, "/api/saveFeedbackFormResult", s1Token, body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("saveFeedbackFormResult failed! code = %v; body %s", rec.Code, rec.Body.String())
	}

	// it moves to s1's history, stays pending for s2
	req, rec = newAuthRequest(http.MethodGet, "/api/getSDashData", s1Token)
	app.ServeHTTP(rec, req)
	var items []feedback.DashboardItem
	env = parseEnvelope(t, rec)
	_ = json.Unmarshal(env.Data, &items)
	if len(items) != 0 {
		t.Fatalf("s1 pending = %s; want empty", rec.Body.String())
	}
	req, rec = newAuthRequest(http.MethodGet, "/api/getSDashDataFilled", s1Token)
	app.ServeHTTP(rec, req)
	env = parseEnvelope(t, rec)
	items = nil
	_ = json.Unmarshal(env.Data, &items)
	if len(items) != 1 {
		t.Fatalf("s1 history = %s; want one entry", rec.Body.String())
	}

	// teacher checks the responses
	req, rec = newAuthRequest(http.MethodGet, "/api/getFeedbackData/"+form.ID, teacherToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("getFeedbackData failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	var responses []feedback.ConnectorData
	env = parseEnvelope(t, rec)
	_ = json.Unmarshal(env.Data, &responses)
	if len(responses) != 2 {
		t.Fatalf("getFeedbackData = %s; want 2 connectors", rec.Body.String())
	}

	// the reminder goes to s2 only
	req, rec = newAuthRequest(http.MethodPost, "/api/sendReminder/"+form.ID, teacherToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("sendReminder failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	var targets []feedback.ReminderTarget
	env = parseEnvelope(t, rec)
	_ = json.Unmarshal(env.Data, &targets)
	if len(targets) != 1 || targets[0].Email != s2.Email {
		t.Fatalf("sendReminder = %s; want s2 only", rec.Body.String())
	}
	if len(emailsvc.SentMessages) != 1 {
		t.Fatalf("sent mails = %d; want 1", len(emailsvc.SentMessages))
	}

	// a student holding no connector cannot fetch the form
	ghost := testutil.CreateUser(t, usrRepo, "Ghost", "ghost.e2e@test.test", "pwd", false)
	req, rec = newAuthRequest(http.MethodGet, "/api/getSDashDataForm/"+form.ID, getToken(t, ghost))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("getSDashDataForm(ghost) code = %v; want 404", rec.Code)
	}

	// students cannot touch teacher endpoints
	req, rec = newAuthRequest(http.MethodGet, "/api/getFeedbackForm", s1Token)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("getFeedbackForm(student) code = %v; want 400", rec.Code)
	}
}

func Test_feedbackApi_deleteForm(t *testing.T) {
	teacher := testutil.CreateUser(t, usrRepo, "Prof Del", "prof.del@test.test", "pwd", true)
	s1 := testutil.CreateUser(t, usrRepo, "Stu Del", "s1.del@test.test", "pwd", false)
	token := getToken(t, teacher)

	// build the fixture through the services directly
	ctx := context.Background()
	inst, err := instSvc.Create(ctx, instance.NewInstance{Name: "2025-26-del"})
	if err != nil {
		t.Fatalf("instance Create() failed: %v", err)
	}
	year := 3
	batch, err := rosterSvc.CreateBatch(ctx, inst.ID, roster.NewBatch{
		Name:          "CS-DEL",
		Year:          &year,
		StudentEmails: []string{s1.Email},
	})
	if err != nil {
		t.Fatalf("CreateBatch() failed: %v", err)
	}
	section, err := rosterSvc.AddSection(ctx, inst.ID, roster.NewSection{
		SubjectName: "Compilers",
		BatchID:     batch.ID,
		TeacherIDs:  []string{teacher.ID},
		Kind:        roster.Theory,
	})
	if err != nil {
		t.Fatalf("AddSection() failed: %v", err)
	}
	form, err := fbSvc.CreateForm(ctx, teacher.ID, inst.ID, feedback.NewForm{
		Fields:    json.RawMessage(`[]`),
		SubjectID: section.SubjectID,
		DueDate:   time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
		BatchIDs:  []string{batch.ID},
	})
	if err != nil {
		t.Fatalf("CreateForm() failed: %v", err)
	}

	req, rec := newAuthRequest(http.MethodDelete, "/api/deleteFeedbackform/"+form.ID, token)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("deleteFeedbackform failed! code = %v; body %s", rec.Code, rec.Body.String())
	}

	req, rec = newAuthRequest(http.MethodDelete, "/api/deleteFeedbackform/"+form.ID, token)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleteFeedbackform(again) code = %v; want 404", rec.Code)
	}
}
