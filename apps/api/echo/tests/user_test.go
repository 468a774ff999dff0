package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/trezcool/maoni/core/user"
	testutil "github.com/trezcool/maoni/tests"
)

func Test_userApi_login(t *testing.T) {
	ctx := context.Background()

	usr := testutil.CreateUser(t, usrRepo, "Jane Doe", "jane.login@test.test", "LeP@ss10rd", true)

	unverified, err := usrSvc.CreateTeacher(ctx, user.NewTeacher{
		Name:     "Notyet Verified",
		Email:    "notyet.login@test.test",
		Password: "LeP@ss10rd",
	})
	if err != nil {
		t.Fatalf("CreateTeacher() failed: %v", err)
	}

	tests := []httpTest{
		{name: "empty body", body: []byte(`{}`), wantCode: http.StatusBadRequest},
		{name: "unknown email", body: []byte(`{"email":"ghost@test.test","password":"lol"}`), wantCode: http.StatusUnauthorized},
		{name: "wrong password", body: []byte(`{"email":"jane.login@test.test","password":"lol"}`), wantCode: http.StatusUnauthorized},
		{name: "unverified account", body: []byte(`{"email":"notyet.login@test.test","password":"LeP@ss10rd"}`), wantCode: http.StatusForbidden},
		{name: "success", body: []byte(`{"email":"jane.login@test.test","password":"LeP@ss10rd"}`), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/api/login", tt.body)
			app.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}

			switch tt.name {
			case "unverified account":
				env := parseEnvelope(t, rec)
				if env.StatusMsg != "Please complete authentication" {
					t.Errorf("failed! status_msg = %q", env.StatusMsg)
				}
				var data map[string]string
				_ = json.Unmarshal(env.Data, &data)
				if data["email"] != unverified.Email {
					t.Errorf("failed! data.email = %q; want %q", data["email"], unverified.Email)
				}
			case "success":
				env := parseEnvelope(t, rec)
				var data map[string]interface{}
				_ = json.Unmarshal(env.Data, &data)
				if data["token"] == "" {
					t.Error("failed! no token returned")
				}
				if data["is_teacher"] != true {
					t.Error("failed! is_teacher should be true")
				}
				if data["email"] != usr.Email {
					t.Errorf("failed! email = %v; want %v", data["email"], usr.Email)
				}
			}
		})
	}
}

func Test_userApi_createTeacher(t *testing.T) {
	ctx := context.Background()

	t.Run("no secret code generated yet", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/api/createTeacher", []byte(`{"secret_code":"WHATEVER"}`))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
	})

	code, err := instSvc.GenerateSecretCode(ctx)
	if err != nil {
		t.Fatalf("GenerateSecretCode() failed: %v", err)
	}

	tests := []httpTest{
		{
			name:     "bad secret code",
			body:     []byte(`{"secret_code":"NOPE1234","name":"T","email":"t.reg@test.test","password":"LeP@ss10rd","password_confirm":"LeP@ss10rd"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "weak password",
			body:     []byte(`{"secret_code":"` + code + `","name":"T","email":"t.reg@test.test","password":"abc","password_confirm":"abc"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "password mismatch",
			body:     []byte(`{"secret_code":"` + code + `","name":"T","email":"t.reg@test.test","password":"LeP@ss10rd","password_confirm":"Other1!"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "success",
			body:     []byte(`{"secret_code":"` + code + `","name":"T","email":"t.reg@test.test","password":"LeP@ss10rd","password_confirm":"LeP@ss10rd"}`),
			wantCode: http.StatusCreated,
		},
		{
			name:     "duplicate email",
			body:     []byte(`{"secret_code":"` + code + `","name":"T2","email":"t.reg@test.test","password":"LeP@ss10rd","password_confirm":"LeP@ss10rd"}`),
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/api/createTeacher", tt.body)
			app.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}

	t.Run("account starts unverified", func(t *testing.T) {
		usr, err := usrSvc.GetByEmail(ctx, "t.reg@test.test")
		if err != nil {
			t.Fatalf("GetByEmail() failed: %v", err)
		}
		if usr.IsVerified {
			t.Error("failed! new teacher should not be verified")
		}
		if !usr.IsStaff {
			t.Error("failed! new teacher should be staff")
		}
	})
}

func Test_userApi_authGates(t *testing.T) {
	student := testutil.CreateUser(t, usrRepo, "Stu Gate", "stu.gate@test.test", "pwd", false)
	teacher := testutil.CreateUser(t, usrRepo, "Prof Gate", "prof.gate@test.test", "pwd", true)
	admin := testutil.CreateSuperuser(t, usrRepo, "Admin Gate", "admin.gate@test.test", "pwd")

	studentToken := getToken(t, student)
	teacherToken := getToken(t, teacher)
	adminToken := getToken(t, admin)

	tests := []httpTest{
		{name: "anonymous is rejected", method: http.MethodGet, path: "/api/getProfile",
			wantCode: http.StatusForbidden, wantData: marshallObj(t, errMissingToken)},
		{name: "garbage token is rejected", method: http.MethodGet, path: "/api/getProfile", token: "lol",
			wantCode: http.StatusForbidden, wantData: marshallObj(t, errMissingToken)},
		{name: "student cannot list users", method: http.MethodGet, path: "/api/getuserslist", token: studentToken,
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, errForbidden)},
		{name: "student cannot create an instance", method: http.MethodPost, path: "/api/createNewInst", token: studentToken,
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, errForbidden)},
		{name: "teacher cannot create an instance", method: http.MethodPost, path: "/api/createNewInst", token: teacherToken,
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, errForbidden)},
		{name: "teacher cannot toggle permissions", method: http.MethodPost, path: "/api/tSettings", token: teacherToken,
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, errForbidden)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("superuser toggles teacher permissions", func(t *testing.T) {
		body := []byte(`{"user_id":"` + teacher.ID + `","canCreateBatch":false}`)
		req, rec := newAuthRequest(http.MethodPost, "/api/tSettings", adminToken, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}

		refreshed, err := usrSvc.GetByID(context.Background(), teacher.ID)
		if err != nil {
			t.Fatalf("GetByID() failed: %v", err)
		}
		if refreshed.CanCreateBatch {
			t.Error("failed! canCreateBatch should be off")
		}
	})
}

func Test_userApi_profile(t *testing.T) {
	usr := testutil.CreateUser(t, usrRepo, "Stu Prof", "stu.profile@test.test", "pwd", false)
	token := getToken(t, usr)

	t.Run("get", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/getProfile", token)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var data user.User
		env := parseEnvelope(t, rec)
		_ = json.Unmarshal(env.Data, &data)
		if data.Email != usr.Email {
			t.Errorf("failed! email = %q; want %q", data.Email, usr.Email)
		}
	})

	t.Run("save", func(t *testing.T) {
		body := []byte(`{"name":"Stu Profile","sapId":"60004200042","mobile":"9999999999","year":3}`)
		req, rec := newAuthRequest(http.MethodPost, "/api/saveProfile", token, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}

		refreshed, err := usrSvc.GetByID(context.Background(), usr.ID)
		if err != nil {
			t.Fatalf("GetByID() failed: %v", err)
		}
		if refreshed.SapID != "60004200042" {
			t.Errorf("failed! sapId = %q", refreshed.SapID)
		}
		if refreshed.Year == nil || *refreshed.Year != 3 {
			t.Errorf("failed! year = %v", refreshed.Year)
		}
	})
}

func Test_userApi_refreshToken(t *testing.T) {
	usr := testutil.CreateUser(t, usrRepo, "Stu Refresh", "stu.refresh@test.test", "pwd", false)
	token := getToken(t, usr)

	req, rec := newAuthRequest(http.MethodGet, "/api/token/refresh", token)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
	}

	env := parseEnvelope(t, rec)
	var data map[string]string
	_ = json.Unmarshal(env.Data, &data)
	if data["token"] == "" {
		t.Error("failed! no token returned")
	}
}
