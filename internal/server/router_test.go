package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/scout/backend/internal/database"
	"github.com/MarcoPoloResearchLab/scout/backend/internal/llm"
	"github.com/MarcoPoloResearchLab/scout/backend/internal/roadmap"
	"github.com/MarcoPoloResearchLab/scout/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type stubGateway struct {
	reply      json.RawMessage
	err        error
	lastPrompt string
}

func (s *stubGateway) Complete(_ context.Context, userPrompt string) (json.RawMessage, error) {
	s.lastPrompt = userPrompt
	if s.err != nil {
		return nil, s.err
	}
	return s.reply, nil
}

func newTestHandler(t *testing.T, gateway CompletionGateway) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite("file::memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	usersService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create users service: %v", err)
	}
	roadmapService, err := roadmap.NewService(roadmap.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create roadmap service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		UsersService:   usersService,
		RoadmapService: roadmapService,
		Gateway:        gateway,
		Logger:         zap.NewNop(),
		Clock:          func() time.Time { return time.Date(2026, time.February, 4, 9, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("failed to create handler: %v", err)
	}
	return handler
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var request *http.Request
	if body == "" {
		request = httptest.NewRequest(method, path, nil)
	} else {
		request = httptest.NewRequest(method, path, strings.NewReader(body))
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, recorder.Body.String())
	}
	return payload
}

const savePlanBody = `{
  "name": "Ann",
  "roadmap": {
    "start_date": "2026-02-04",
    "daily_tasks": [
      {
        "date": "2026-02-04",
        "day_name": "Wednesday",
        "tasks": [
          {"title": "Set up environment", "description": "Install tools", "duration": "2 hours", "priority": "high"},
          {"title": "Learn HTML", "description": "Tags and structure", "duration": "1 hour", "priority": "high"}
        ]
      }
    ],
    "skills_to_learn": ["HTML", "CSS"]
  }
}`

func TestHandleHealth(t *testing.T) {
	handler := newTestHandler(t, &stubGateway{})
	recorder := doJSON(t, handler, http.MethodGet, "/api/health", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if decodeBody(t, recorder)["status"] != "ok" {
		t.Fatalf("unexpected body: %s", recorder.Body.String())
	}
}

func TestHandleCreateUserRequiresName(t *testing.T) {
	handler := newTestHandler(t, &stubGateway{})
	recorder := doJSON(t, handler, http.MethodPost, "/api/user/create", `{"name":"  ","career":"web","level":"beginner"}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestHandleCreateUserIsIdempotent(t *testing.T) {
	handler := newTestHandler(t, &stubGateway{})

	first := doJSON(t, handler, http.MethodPost, "/api/user/create", `{"name":"Ann","career":"web","level":"beginner"}`)
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", first.Code, first.Body.String())
	}
	firstBody := decodeBody(t, first)

	second := doJSON(t, handler, http.MethodPost, "/api/user/create", `{"name":" ANN ","career":"data","level":"intermediate"}`)
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", second.Code)
	}
	secondBody := decodeBody(t, second)

	if firstBody["user_id"] != secondBody["user_id"] {
		t.Fatalf("expected stable user id across name variants")
	}
	if secondBody["career"] != "data" {
		t.Fatalf("expected latest career, got %v", secondBody["career"])
	}
}

func TestHandleStartReturnsFixedQuestion(t *testing.T) {
	handler := newTestHandler(t, &stubGateway{})
	recorder := doJSON(t, handler, http.MethodPost, "/api/start", `{"name":"Ann","career":"web development"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	question, _ := body["question"].(string)
	if !strings.Contains(question, "Ann") || !strings.Contains(question, "web development") {
		t.Fatalf("unexpected opening question: %q", question)
	}
	options, _ := body["options"].([]interface{})
	if len(options) != 4 {
		t.Fatalf("expected 4 options, got %d", len(options))
	}
	if body["status"] != "CONTINUE" {
		t.Fatalf("expected CONTINUE status, got %v", body["status"])
	}
}

func TestHandleNextQuestionRequiresAnswer(t *testing.T) {
	handler := newTestHandler(t, &stubGateway{})
	recorder := doJSON(t, handler, http.MethodPost, "/api/next-question", `{"messages":[],"user_answer":""}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestHandleNextQuestionPassesModelReplyThrough(t *testing.T) {
	reply := `{"question":"Which stack?","options":["a","b","c","d"],"status":"CONTINUE"}`
	gateway := &stubGateway{reply: json.RawMessage(reply)}
	handler := newTestHandler(t, gateway)

	recorder := doJSON(t, handler, http.MethodPost, "/api/next-question",
		`{"messages":[{"q":"Status?","a":"Student"}],"user_answer":"Web Development"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if recorder.Body.String() != reply {
		t.Fatalf("expected passthrough body, got %s", recorder.Body.String())
	}
	if !strings.Contains(gateway.lastPrompt, "Q: Status? | A: Student") {
		t.Fatalf("prompt should embed history, got:\n%s", gateway.lastPrompt)
	}
	if !strings.Contains(gateway.lastPrompt, "Web Development") {
		t.Fatalf("prompt should embed the latest answer")
	}
}

func TestHandleNextQuestionUpstreamFailure(t *testing.T) {
	handler := newTestHandler(t, &stubGateway{err: llm.ErrUpstreamUnavailable})
	recorder := doJSON(t, handler, http.MethodPost, "/api/next-question",
		`{"messages":[],"user_answer":"Student"}`)
	if recorder.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", recorder.Code)
	}
}

func TestHandleGenerateRoadmapRequiresMessages(t *testing.T) {
	handler := newTestHandler(t, &stubGateway{})
	recorder := doJSON(t, handler, http.MethodPost, "/api/generate-roadmap", `{"messages":[],"name":"Ann","career":"web"}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestHandleGenerateRoadmapAnnotatesReply(t *testing.T) {
	gateway := &stubGateway{reply: json.RawMessage(`{"start_date":"2026-02-04","daily_tasks":[]}`)}
	handler := newTestHandler(t, gateway)

	recorder := doJSON(t, handler, http.MethodPost, "/api/generate-roadmap",
		`{"messages":[{"q":"Status?","a":"Student"}],"name":"Ann","career":"web"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	if body["user_name"] != "Ann" || body["career_path"] != "web" {
		t.Fatalf("expected user annotations, got %v", body)
	}
	if body["start_date"] != "2026-02-04" {
		t.Fatalf("model fields must survive annotation")
	}
	if !strings.Contains(gateway.lastPrompt, "Start Date: 2026-02-04") {
		t.Fatalf("prompt should pin the plan window to the injected clock:\n%s", gateway.lastPrompt)
	}
	if !strings.Contains(gateway.lastPrompt, "End Date: 2026-08-03") {
		t.Fatalf("prompt should compute the 180-day end date")
	}
}

func TestHandleSaveRoadmapValidation(t *testing.T) {
	handler := newTestHandler(t, &stubGateway{})

	missingName := doJSON(t, handler, http.MethodPost, "/api/save-roadmap", `{"name":"","roadmap":{"daily_tasks":[]}}`)
	if missingName.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing name, got %d", missingName.Code)
	}

	missingRoadmap := doJSON(t, handler, http.MethodPost, "/api/save-roadmap", `{"name":"Ann"}`)
	if missingRoadmap.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing roadmap, got %d", missingRoadmap.Code)
	}
}

func TestHandleSaveRoadmapUnknownUser(t *testing.T) {
	handler := newTestHandler(t, &stubGateway{})
	recorder := doJSON(t, handler, http.MethodPost, "/api/save-roadmap", savePlanBody)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before user creation, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestRoadmapLifecycle(t *testing.T) {
	handler := newTestHandler(t, &stubGateway{})

	if recorder := doJSON(t, handler, http.MethodPost, "/api/user/create", `{"name":"Ann","career":"web","level":"beginner"}`); recorder.Code != http.StatusOK {
		t.Fatalf("user create failed: %d", recorder.Code)
	}

	saved := doJSON(t, handler, http.MethodPost, "/api/save-roadmap", savePlanBody)
	if saved.Code != http.StatusOK {
		t.Fatalf("save failed: %d %s", saved.Code, saved.Body.String())
	}
	savedBody := decodeBody(t, saved)
	if savedBody["success"] != true || savedBody["roadmap_id"] == "" {
		t.Fatalf("unexpected save response: %v", savedBody)
	}

	fetched := doJSON(t, handler, http.MethodGet, "/api/roadmap/ANN", "")
	if fetched.Code != http.StatusOK {
		t.Fatalf("fetch failed: %d", fetched.Code)
	}
	fetchedBody := decodeBody(t, fetched)
	plan, _ := fetchedBody["roadmap"].(map[string]interface{})
	if plan == nil {
		t.Fatalf("expected embedded roadmap, got %s", fetched.Body.String())
	}
	days, _ := plan["daily_tasks"].([]interface{})
	if len(days) != 1 {
		t.Fatalf("expected one day, got %d", len(days))
	}
	firstDay, _ := days[0].(map[string]interface{})
	tasks, _ := firstDay["tasks"].([]interface{})
	if len(tasks) != 2 {
		t.Fatalf("expected two tasks, got %d", len(tasks))
	}
	firstTask, _ := tasks[0].(map[string]interface{})
	if firstTask["id"] != "2026-02-04_task_0" {
		t.Fatalf("expected derived task id, got %v", firstTask["id"])
	}
	if firstTask["completed"] != false {
		t.Fatalf("expected fresh tasks to be incomplete")
	}

	updated := doJSON(t, handler, http.MethodPatch, "/api/update-task",
		`{"name":"ann","date":"2026-02-04","task_id":"2026-02-04_task_0","completed":true}`)
	if updated.Code != http.StatusOK {
		t.Fatalf("update failed: %d", updated.Code)
	}
	if decodeBody(t, updated)["success"] != true {
		t.Fatalf("expected matched update, got %s", updated.Body.String())
	}

	miss := doJSON(t, handler, http.MethodPatch, "/api/update-task",
		`{"name":"ann","date":"2026-02-04","task_id":"2026-02-04_task_9","completed":true}`)
	if miss.Code != http.StatusOK {
		t.Fatalf("a miss is not an HTTP error: %d", miss.Code)
	}
	if decodeBody(t, miss)["success"] != false {
		t.Fatalf("expected success=false on miss, got %s", miss.Body.String())
	}

	stats := doJSON(t, handler, http.MethodGet, "/api/statistics/Ann", "")
	if stats.Code != http.StatusOK {
		t.Fatalf("statistics failed: %d", stats.Code)
	}
	statsBody := decodeBody(t, stats)
	if statsBody["total_tasks"] != float64(2) || statsBody["completed_tasks"] != float64(1) {
		t.Fatalf("unexpected counts: %s", stats.Body.String())
	}
	if statsBody["completion_percentage"] != float64(50) {
		t.Fatalf("expected 50 percent, got %v", statsBody["completion_percentage"])
	}
}

func TestHandleUpdateTaskValidation(t *testing.T) {
	handler := newTestHandler(t, &stubGateway{})

	missingName := doJSON(t, handler, http.MethodPatch, "/api/update-task", `{"name":"","date":"2026-02-04","task_id":"x","completed":true}`)
	if missingName.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing name, got %d", missingName.Code)
	}
	missingDate := doJSON(t, handler, http.MethodPatch, "/api/update-task", `{"name":"ann","date":"","task_id":"x","completed":true}`)
	if missingDate.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing date, got %d", missingDate.Code)
	}
	missingTask := doJSON(t, handler, http.MethodPatch, "/api/update-task", `{"name":"ann","date":"2026-02-04","task_id":"","completed":true}`)
	if missingTask.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing task id, got %d", missingTask.Code)
	}
}

func TestHandleGetRoadmapNotFound(t *testing.T) {
	handler := newTestHandler(t, &stubGateway{})
	recorder := doJSON(t, handler, http.MethodGet, "/api/roadmap/nobody", "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
}

func TestHandleStatisticsWithoutRoadmap(t *testing.T) {
	handler := newTestHandler(t, &stubGateway{})
	recorder := doJSON(t, handler, http.MethodGet, "/api/statistics/nobody", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	for _, key := range []string{"total_tasks", "completed_tasks", "completion_percentage", "current_streak"} {
		if body[key] != float64(0) {
			t.Fatalf("expected zeroed %s, got %v", key, body[key])
		}
	}
}
