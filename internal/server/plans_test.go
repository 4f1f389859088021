package server

import (
	"net/http"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
)

func TestGetPlanWithContent(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM course_plans WHERE id=$1")).
		WithArgs("plan-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "employee_id", "title", "summary", "status", "plan", "skill_gaps", "refresh_cron", "created_at", "updated_at"}).
			AddRow("plan-1", "emp-1", "SQL Course", "Learn SQL.", "completed", []byte(`[{"number":1,"title":"Basics"}]`), []byte(`[]`), "", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM module_content WHERE plan_id=$1 ORDER BY module_number")).
		WithArgs("plan-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "plan_id", "module_number", "title", "sections", "word_count", "status", "created_at", "updated_at"}).
			AddRow("content-1", "plan-1", 1, "Basics", []byte(`[{"heading":"h","body":"b"}]`), 120, "approved", now, now))

	handler := &PlansHandler{Store: st}

	e := echo.New()
	req, rec := jsonRequest(http.MethodGet, "/api/plans/plan-1", "")
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues("plan-1")

	if err := handler.get(ctx); err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "SQL Course") || !strings.Contains(body, "content-1") {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestGetPlanNotFound(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM course_plans WHERE id=$1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	handler := &PlansHandler{Store: st}

	e := echo.New()
	req, rec := jsonRequest(http.MethodGet, "/api/plans/missing", "")
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues("missing")

	err := handler.get(ctx)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %#v", err)
	}
}

func TestScheduleRejectsInvalidCron(t *testing.T) {
	handler := &PlansHandler{}

	e := echo.New()
	req, rec := jsonRequest(http.MethodPut, "/api/plans/plan-1/schedule", `{"refresh_cron":"every tuesday maybe"}`)
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues("plan-1")

	err := handler.schedule(ctx)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %#v", err)
	}
}

func TestScheduleUpdatesPlan(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM course_plans WHERE id=$1")).
		WithArgs("plan-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "employee_id", "title", "summary", "status", "plan", "skill_gaps", "refresh_cron", "created_at", "updated_at"}).
			AddRow("plan-1", "emp-1", "SQL Course", "", "completed", []byte(`[]`), []byte(`[]`), "", now, now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE course_plans SET")).
		WithArgs("plan-1", "SQL Course", "", "completed", sqlmock.AnyArg(), sqlmock.AnyArg(), "@daily").
		WillReturnResult(sqlmock.NewResult(0, 1))

	handler := &PlansHandler{Store: st}

	e := echo.New()
	req, rec := jsonRequest(http.MethodPut, "/api/plans/plan-1/schedule", `{"refresh_cron":"@daily"}`)
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues("plan-1")

	if err := handler.schedule(ctx); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
