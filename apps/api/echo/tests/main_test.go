package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	. "github.com/trezcool/maoni/apps/api/echo"
	"github.com/trezcool/maoni/core"
	"github.com/trezcool/maoni/core/feedback"
	"github.com/trezcool/maoni/core/instance"
	"github.com/trezcool/maoni/core/roster"
	"github.com/trezcool/maoni/core/user"
	emailsvc "github.com/trezcool/maoni/services/email"
	dummydb "github.com/trezcool/maoni/storage/database/dummy"
	testutil "github.com/trezcool/maoni/tests"
)

var (
	app *Server

	usrRepo  user.Repository
	instRepo instance.Repository

	usrSvc    user.Service
	instSvc   instance.Service
	rosterSvc roster.Service
	fbSvc     feedback.Service

	errMissingToken = envelope{
		StatusCode: http.StatusForbidden,
		StatusMsg:  "Access denied, Authentication header not found or invalid token",
	}
	errForbidden = envelope{
		StatusCode: http.StatusBadRequest,
		StatusMsg:  "User is not authorized to perform this action",
	}
)

func TestMain(m *testing.M) {
	conf := testutil.NewTestConfig()

	// set up DB & repos
	db, err := dummydb.Open()
	if err != nil {
		fmt.Printf("dummydb.Open(): %v", err)
		os.Exit(1)
	}
	usrRepo = dummydb.NewUserRepository(db)
	instRepo = dummydb.NewInstanceRepository(db)
	rosterRepo := dummydb.NewRosterRepository(db)
	fbRepo := dummydb.NewFeedbackRepository(db)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock()
	usrSvc = user.NewServiceMock(db, usrRepo, mailSvc, conf)
	instSvc = instance.NewService(db, instRepo)
	rosterSvc = roster.NewService(db, rosterRepo)
	fbSvc = feedback.NewService(db, fbRepo, rosterSvc, mailSvc)

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.RegisterValidators(validate, translator)

	// set up server
	app = NewServer(
		"", /* addr */
		&ServerDeps{
			Conf:        conf,
			Logger:      noopLogger{},
			UserSvc:     usrSvc,
			InstanceSvc: instSvc,
			RosterSvc:   rosterSvc,
			FeedbackSvc: fbSvc,
			Validate:    validate,
			Translator:  translator,
		},
	)

	os.Exit(m.Run())
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

type noopLogger struct{}

func (noopLogger) Enable(bool)                  {}
func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) Fatal(string, ...interface{}) {}

type envelope struct {
	StatusCode int             `json:"status_code"`
	StatusMsg  string          `json:"status_msg,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	claims := GetUserClaims(usr)
	token, err := GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj(): %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	return false, nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func parseEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("parseEnvelope(): %v; body %s", err, rec.Body.String())
	}
	return env
}
