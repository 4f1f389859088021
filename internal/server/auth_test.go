package server

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/skillsmith/coursegen/internal/store"
)

func newMockStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &store.Store{DB: db}, mock
}

func jsonRequest(method, target, payload string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req, httptest.NewRecorder()
}

func TestLoginSuccess(t *testing.T) {
	st, mock := newMockStore(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, password_hash FROM users WHERE email=$1")).
		WithArgs("a@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash"}).AddRow("user-1", string(hash)))

	handler := &AuthHandler{Store: st, Secret: []byte("test-secret")}

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/api/auth/login", `{"email":"a@example.com","password":"password123"}`)
	if err := handler.login(e.NewContext(req, rec)); err != nil {
		t.Fatalf("login: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "token") {
		t.Fatalf("expected token in body: %s", rec.Body.String())
	}
	var cookieSet bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == "auth" && c.Value != "" {
			cookieSet = true
		}
	}
	if !cookieSet {
		t.Fatal("expected auth cookie")
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	st, mock := newMockStore(t)
	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, password_hash FROM users")).
		WithArgs("a@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash"}).AddRow("user-1", string(hash)))

	handler := &AuthHandler{Store: st, Secret: []byte("test-secret")}

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/api/auth/login", `{"email":"a@example.com","password":"wrongpassword"}`)
	err := handler.login(e.NewContext(req, rec))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %#v", err)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("a@example.com", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})

	handler := &AuthHandler{Store: st, Secret: []byte("test-secret")}

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/api/auth/signup", `{"email":"a@example.com","password":"password123"}`)
	err := handler.signup(e.NewContext(req, rec))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %#v", err)
	}
}

func TestSignupRejectsShortPassword(t *testing.T) {
	handler := &AuthHandler{Secret: []byte("test-secret")}

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/api/auth/signup", `{"email":"a@example.com","password":"short"}`)
	err := handler.signup(e.NewContext(req, rec))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %#v", err)
	}
}
