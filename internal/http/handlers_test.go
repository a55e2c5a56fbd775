package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/studenthub/internal/application"
	"github.com/example/studenthub/internal/notify"
	"github.com/example/studenthub/internal/testfixtures"
)

type testEnv struct {
	handler http.Handler
	store   *testfixtures.MemoryStore
	clock   *testfixtures.Clock
}

type noopSync struct{}

func (noopSync) SyncUser(context.Context, string) {}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := testfixtures.NewMemoryStore()
	clock := testfixtures.NewClock(testfixtures.ReferenceTime())
	ids := testfixtures.NewIDGenerator("id")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hash := func(password string) (string, error) {
		return "hashed:" + password, nil
	}
	verify := func(hashedPassword, password string) error {
		if hashedPassword != "hashed:"+password {
			return application.ErrInvalidCredentials
		}
		return nil
	}

	users := application.NewUserService(store, hash, ids.NextFunc(), clock.NowFunc(), logger)
	auth := application.NewAuthService(store, store, verify, ids.NextFunc(), clock.NowFunc(), time.Hour, logger)
	courses := application.NewCourseService(store, ids.NextFunc(), clock.NowFunc(), noopSync{}, logger)
	habits := application.NewHabitService(store, ids.NextFunc(), clock.NowFunc(), noopSync{}, logger)
	budgets := application.NewBudgetService(store, ids.NextFunc(), clock.NowFunc(), logger)
	notifications := application.NewNotificationService(store, clock.NowFunc(), logger)

	handler := NewRouter(RouterConfig{
		Auth:              NewAuthHandler(auth, logger),
		Users:             NewUserHandler(users, logger),
		Courses:           NewCourseHandler(courses, logger),
		Habits:            NewHabitHandler(habits, logger),
		Budgets:           NewBudgetHandler(budgets, logger),
		Notifications:     NewNotificationHandler(notifications, logger),
		SessionMiddleware: RequireSession(auth, logger),
	})

	return &testEnv{handler: handler, store: store, clock: clock}
}

func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
	}
}

// signUp registers an account and logs it in, returning the session token.
func (env *testEnv) signUp(t *testing.T, email string) string {
	t.Helper()

	resp := env.do(t, http.MethodPost, "/users", "", map[string]string{
		"email":        email,
		"display_name": "Test Student",
		"password":     "correct horse",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("register: got status %d, body %s", resp.Code, resp.Body.String())
	}

	resp = env.do(t, http.MethodPost, "/sessions", "", map[string]string{
		"email":    email,
		"password": "correct horse",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("login: got status %d, body %s", resp.Code, resp.Body.String())
	}

	var session struct {
		Token string `json:"token"`
	}
	decodeBody(t, resp, &session)
	if session.Token == "" {
		t.Fatal("login response carries no token")
	}
	return session.Token
}

func TestAuthEndpoints(t *testing.T) {
	t.Run("login then logout invalidates the token", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.signUp(t, "ada@example.edu")

		resp := env.do(t, http.MethodGet, "/courses", token, nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("authenticated list: got status %d", resp.Code)
		}

		resp = env.do(t, http.MethodDelete, "/sessions/current", token, nil)
		if resp.Code != http.StatusNoContent {
			t.Fatalf("logout: got status %d, body %s", resp.Code, resp.Body.String())
		}

		resp = env.do(t, http.MethodGet, "/courses", token, nil)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("after logout: got status %d, want 401", resp.Code)
		}
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		env.signUp(t, "ada@example.edu")

		resp := env.do(t, http.MethodPost, "/sessions", "", map[string]string{
			"email":    "ada@example.edu",
			"password": "wrong",
		})
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("got status %d, want 401", resp.Code)
		}
	})

	t.Run("protected routes require a token", func(t *testing.T) {
		env := newTestEnv(t)

		paths := []struct {
			method string
			path   string
		}{
			{http.MethodGet, "/courses"},
			{http.MethodGet, "/habits"},
			{http.MethodGet, "/budgets/current"},
			{http.MethodGet, "/notifications"},
		}
		for _, p := range paths {
			resp := env.do(t, p.method, p.path, "", nil)
			if resp.Code != http.StatusUnauthorized {
				t.Fatalf("%s %s without token: got status %d, want 401", p.method, p.path, resp.Code)
			}
		}
	})

	t.Run("registration validates input", func(t *testing.T) {
		env := newTestEnv(t)

		resp := env.do(t, http.MethodPost, "/users", "", map[string]string{
			"email":    "not-an-email",
			"password": "short",
		})
		if resp.Code != http.StatusUnprocessableEntity {
			t.Fatalf("got status %d, want 422, body %s", resp.Code, resp.Body.String())
		}

		var body struct {
			Errors map[string]string `json:"errors"`
		}
		decodeBody(t, resp, &body)
		for _, field := range []string{"email", "display_name", "password"} {
			if body.Errors[field] == "" {
				t.Fatalf("expected field error for %q, got %v", field, body.Errors)
			}
		}
	})
}

func TestCourseEndpoints(t *testing.T) {
	validCourse := map[string]any{
		"name":       "Algorithms",
		"code":       "CS201",
		"instructor": "Dr. Hopper",
		"meetings": []map[string]string{
			{"day": "mon", "start_time": "09:00", "end_time": "10:30", "room": "B12"},
		},
	}

	t.Run("create read update delete round trip", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.signUp(t, "ada@example.edu")

		resp := env.do(t, http.MethodPost, "/courses", token, validCourse)
		if resp.Code != http.StatusCreated {
			t.Fatalf("create: got status %d, body %s", resp.Code, resp.Body.String())
		}
		var created courseDTO
		decodeBody(t, resp, &created)
		if created.ID == "" || created.Name != "Algorithms" {
			t.Fatalf("unexpected created course: %+v", created)
		}

		resp = env.do(t, http.MethodGet, "/courses/"+created.ID, token, nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("get: got status %d", resp.Code)
		}

		updated := map[string]any{
			"name": "Advanced Algorithms",
			"meetings": []map[string]string{
				{"day": "tue", "start_time": "14:00", "end_time": "15:30"},
			},
		}
		resp = env.do(t, http.MethodPut, "/courses/"+created.ID, token, updated)
		if resp.Code != http.StatusOK {
			t.Fatalf("update: got status %d, body %s", resp.Code, resp.Body.String())
		}
		var afterUpdate courseDTO
		decodeBody(t, resp, &afterUpdate)
		if afterUpdate.Name != "Advanced Algorithms" || len(afterUpdate.Meetings) != 1 || afterUpdate.Meetings[0].Day != "tue" {
			t.Fatalf("unexpected updated course: %+v", afterUpdate)
		}

		resp = env.do(t, http.MethodDelete, "/courses/"+created.ID, token, nil)
		if resp.Code != http.StatusNoContent {
			t.Fatalf("delete: got status %d", resp.Code)
		}
		resp = env.do(t, http.MethodGet, "/courses/"+created.ID, token, nil)
		if resp.Code != http.StatusNotFound {
			t.Fatalf("get after delete: got status %d, want 404", resp.Code)
		}
	})

	t.Run("invalid meeting times yield field errors", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.signUp(t, "ada@example.edu")

		resp := env.do(t, http.MethodPost, "/courses", token, map[string]any{
			"name": "Broken",
			"meetings": []map[string]string{
				{"day": "mon", "start_time": "10:00", "end_time": "09:00"},
			},
		})
		if resp.Code != http.StatusUnprocessableEntity {
			t.Fatalf("got status %d, want 422, body %s", resp.Code, resp.Body.String())
		}
	})

	t.Run("other users cannot touch the course", func(t *testing.T) {
		env := newTestEnv(t)
		owner := env.signUp(t, "ada@example.edu")
		intruder := env.signUp(t, "mallory@example.edu")

		resp := env.do(t, http.MethodPost, "/courses", owner, validCourse)
		if resp.Code != http.StatusCreated {
			t.Fatalf("create: got status %d", resp.Code)
		}
		var created courseDTO
		decodeBody(t, resp, &created)

		resp = env.do(t, http.MethodDelete, "/courses/"+created.ID, intruder, nil)
		if resp.Code != http.StatusForbidden {
			t.Fatalf("intruder delete: got status %d, want 403", resp.Code)
		}
	})
}

func TestHabitEndpoints(t *testing.T) {
	t.Run("complete bumps the streak once per day", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.signUp(t, "ada@example.edu")

		resp := env.do(t, http.MethodPost, "/habits", token, map[string]any{
			"title":            "Morning review",
			"frequency":        "daily",
			"target_time":      "08:30",
			"reminder_enabled": true,
		})
		if resp.Code != http.StatusCreated {
			t.Fatalf("create: got status %d, body %s", resp.Code, resp.Body.String())
		}
		var habit habitDTO
		decodeBody(t, resp, &habit)
		if habit.Streak != 0 {
			t.Fatalf("new habit streak = %d, want 0", habit.Streak)
		}

		resp = env.do(t, http.MethodPost, fmt.Sprintf("/habits/%s/complete", habit.ID), token, nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("complete: got status %d, body %s", resp.Code, resp.Body.String())
		}
		decodeBody(t, resp, &habit)
		if habit.Streak != 1 {
			t.Fatalf("streak after first completion = %d, want 1", habit.Streak)
		}

		resp = env.do(t, http.MethodPost, fmt.Sprintf("/habits/%s/complete", habit.ID), token, nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("repeat complete: got status %d", resp.Code)
		}
		decodeBody(t, resp, &habit)
		if habit.Streak != 1 {
			t.Fatalf("streak after same-day repeat = %d, want 1", habit.Streak)
		}

		env.clock.Advance(24 * time.Hour)
		resp = env.do(t, http.MethodPost, fmt.Sprintf("/habits/%s/complete", habit.ID), token, nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("next-day complete: got status %d", resp.Code)
		}
		decodeBody(t, resp, &habit)
		if habit.Streak != 2 {
			t.Fatalf("streak next day = %d, want 2", habit.Streak)
		}
	})

	t.Run("weekly habit requires days of week", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.signUp(t, "ada@example.edu")

		resp := env.do(t, http.MethodPost, "/habits", token, map[string]any{
			"title":     "Gym",
			"frequency": "weekly",
		})
		if resp.Code != http.StatusUnprocessableEntity {
			t.Fatalf("got status %d, want 422, body %s", resp.Code, resp.Body.String())
		}
	})
}

func TestBudgetEndpoints(t *testing.T) {
	t.Run("set budget then track spending", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.signUp(t, "ada@example.edu")

		resp := env.do(t, http.MethodPut, "/budgets/current", token, map[string]float64{"total": 500})
		if resp.Code != http.StatusOK {
			t.Fatalf("set budget: got status %d, body %s", resp.Code, resp.Body.String())
		}

		resp = env.do(t, http.MethodPost, "/expenses", token, map[string]any{
			"amount":      42.50,
			"category":    "books",
			"description": "course reader",
		})
		if resp.Code != http.StatusCreated {
			t.Fatalf("add expense: got status %d, body %s", resp.Code, resp.Body.String())
		}

		resp = env.do(t, http.MethodGet, "/budgets/current", token, nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("current budget: got status %d", resp.Code)
		}
		var status budgetStatusDTO
		decodeBody(t, resp, &status)
		if status.TotalBudget != 500 || status.SpentThisMonth != 42.50 {
			t.Fatalf("unexpected status: %+v", status)
		}

		resp = env.do(t, http.MethodGet, "/expenses", token, nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("list expenses: got status %d", resp.Code)
		}
		var list struct {
			Expenses []expenseDTO `json:"expenses"`
		}
		decodeBody(t, resp, &list)
		if len(list.Expenses) != 1 || list.Expenses[0].Category != "books" {
			t.Fatalf("unexpected expenses: %+v", list.Expenses)
		}
	})

	t.Run("missing budget reports zero totals", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.signUp(t, "ada@example.edu")

		resp := env.do(t, http.MethodGet, "/budgets/current", token, nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("got status %d, body %s", resp.Code, resp.Body.String())
		}
		var status budgetStatusDTO
		decodeBody(t, resp, &status)
		if status.TotalBudget != 0 || status.SpentThisMonth != 0 {
			t.Fatalf("unexpected status: %+v", status)
		}
	})

	t.Run("non-positive total is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.signUp(t, "ada@example.edu")

		resp := env.do(t, http.MethodPut, "/budgets/current", token, map[string]float64{"total": 0})
		if resp.Code != http.StatusUnprocessableEntity {
			t.Fatalf("got status %d, want 422", resp.Code)
		}
	})
}

func TestNotificationEndpoints(t *testing.T) {
	seed := func(t *testing.T, env *testEnv, userID, id, title string) {
		t.Helper()
		_, err := env.store.SaveNotification(context.Background(), notify.Notification{
			ID:       id,
			UserID:   userID,
			Title:    title,
			Message:  "msg",
			Type:     notify.TypeHabitReminder,
			Priority: notify.PriorityMedium,
			SentAt:   env.clock.Now(),
		})
		if err != nil {
			t.Fatalf("seed notification: %v", err)
		}
	}

	userIDFromToken := func(t *testing.T, env *testEnv, token string) string {
		t.Helper()
		session, err := env.store.GetSession(context.Background(), token)
		if err != nil {
			t.Fatalf("resolve session: %v", err)
		}
		return session.UserID
	}

	t.Run("list unread count and mark read", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.signUp(t, "ada@example.edu")
		userID := userIDFromToken(t, env, token)
		seed(t, env, userID, "n-1", "first")
		seed(t, env, userID, "n-2", "second")

		resp := env.do(t, http.MethodGet, "/notifications", token, nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("list: got status %d, body %s", resp.Code, resp.Body.String())
		}
		var list struct {
			Notifications []notificationDTO `json:"notifications"`
		}
		decodeBody(t, resp, &list)
		if len(list.Notifications) != 2 {
			t.Fatalf("listed %d notifications, want 2", len(list.Notifications))
		}

		resp = env.do(t, http.MethodGet, "/notifications/unread-count", token, nil)
		var count struct {
			Unread int `json:"unread"`
		}
		decodeBody(t, resp, &count)
		if count.Unread != 2 {
			t.Fatalf("unread = %d, want 2", count.Unread)
		}

		resp = env.do(t, http.MethodPost, "/notifications/n-1/read", token, nil)
		if resp.Code != http.StatusNoContent {
			t.Fatalf("mark read: got status %d, body %s", resp.Code, resp.Body.String())
		}
		resp = env.do(t, http.MethodGet, "/notifications/unread-count", token, nil)
		decodeBody(t, resp, &count)
		if count.Unread != 1 {
			t.Fatalf("unread after mark = %d, want 1", count.Unread)
		}

		resp = env.do(t, http.MethodPost, "/notifications/read-all", token, nil)
		if resp.Code != http.StatusNoContent {
			t.Fatalf("read-all: got status %d", resp.Code)
		}
		resp = env.do(t, http.MethodGet, "/notifications/unread-count", token, nil)
		decodeBody(t, resp, &count)
		if count.Unread != 0 {
			t.Fatalf("unread after read-all = %d, want 0", count.Unread)
		}
	})

	t.Run("cannot mark another user's notification", func(t *testing.T) {
		env := newTestEnv(t)
		owner := env.signUp(t, "ada@example.edu")
		intruder := env.signUp(t, "mallory@example.edu")
		seed(t, env, userIDFromToken(t, env, owner), "n-1", "private")

		resp := env.do(t, http.MethodPost, "/notifications/n-1/read", intruder, nil)
		if resp.Code != http.StatusForbidden {
			t.Fatalf("got status %d, want 403", resp.Code)
		}
	})
}

func TestRouterMethodHandling(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp(t, "ada@example.edu")

	resp := env.do(t, http.MethodDelete, "/users", "", nil)
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE /users: got status %d, want 405", resp.Code)
	}

	resp = env.do(t, http.MethodPatch, "/courses", token, nil)
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("PATCH /courses: got status %d, want 405", resp.Code)
	}
	if allow := resp.Header().Get("Allow"); allow != "GET, POST" {
		t.Fatalf("Allow header = %q, want %q", allow, "GET, POST")
	}

	resp = env.do(t, http.MethodGet, "/notifications/n-1/unknown", token, nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("unknown notification action: got status %d, want 404", resp.Code)
	}
}
