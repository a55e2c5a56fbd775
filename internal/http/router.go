package http

import (
	"net/http"
	"strings"
)

// RouterConfig collects the handlers and middleware chain for the HTTP API.
// SessionMiddleware wraps every route except registration and login.
type RouterConfig struct {
	Auth              *AuthHandler
	Users             *UserHandler
	Courses           *CourseHandler
	Habits            *HabitHandler
	Budgets           *BudgetHandler
	Notifications     *NotificationHandler
	SessionMiddleware func(http.Handler) http.Handler
	Middleware        []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	protect := func(h http.HandlerFunc) http.Handler {
		if cfg.SessionMiddleware == nil {
			return h
		}
		return cfg.SessionMiddleware(h)
	}

	if cfg.Auth != nil {
		mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Auth.CreateSession(w, r)
		})
		mux.HandleFunc("/sessions/current", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodDelete {
				methodNotAllowed(w, http.MethodDelete)
				return
			}
			cfg.Auth.DeleteCurrentSession(w, r)
		})
	}

	if cfg.Users != nil {
		mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Users.Create(w, r)
		})
	}

	if cfg.Courses != nil {
		mux.Handle("/courses", protect(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Courses.List(w, r)
			case http.MethodPost:
				cfg.Courses.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		}))
		mux.Handle("/courses/", protect(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimPrefix(r.URL.Path, "/courses/")
			if id == "" {
				http.NotFound(w, r)
				return
			}
			ctx := ContextWithResourceID(r.Context(), id)
			r = r.WithContext(ctx)
			switch r.Method {
			case http.MethodGet:
				cfg.Courses.Get(w, r)
			case http.MethodPut:
				cfg.Courses.Update(w, r)
			case http.MethodDelete:
				cfg.Courses.Delete(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
			}
		}))
	}

	if cfg.Habits != nil {
		mux.Handle("/habits", protect(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Habits.List(w, r)
			case http.MethodPost:
				cfg.Habits.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		}))
		mux.Handle("/habits/", protect(func(w http.ResponseWriter, r *http.Request) {
			rest := strings.TrimPrefix(r.URL.Path, "/habits/")
			if rest == "" {
				http.NotFound(w, r)
				return
			}
			if id, found := strings.CutSuffix(rest, "/complete"); found {
				if id == "" {
					http.NotFound(w, r)
					return
				}
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Habits.Complete(w, r.WithContext(ContextWithResourceID(r.Context(), id)))
				return
			}
			ctx := ContextWithResourceID(r.Context(), rest)
			r = r.WithContext(ctx)
			switch r.Method {
			case http.MethodGet:
				cfg.Habits.Get(w, r)
			case http.MethodPut:
				cfg.Habits.Update(w, r)
			case http.MethodDelete:
				cfg.Habits.Delete(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
			}
		}))
	}

	if cfg.Budgets != nil {
		mux.Handle("/budgets/current", protect(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Budgets.GetCurrent(w, r)
			case http.MethodPut:
				cfg.Budgets.SetCurrent(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPut)
			}
		}))
		mux.Handle("/expenses", protect(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Budgets.ListExpenses(w, r)
			case http.MethodPost:
				cfg.Budgets.CreateExpense(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		}))
	}

	if cfg.Notifications != nil {
		mux.Handle("/notifications", protect(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Notifications.List(w, r)
		}))
		mux.Handle("/notifications/", protect(func(w http.ResponseWriter, r *http.Request) {
			rest := strings.TrimPrefix(r.URL.Path, "/notifications/")
			switch rest {
			case "":
				http.NotFound(w, r)
			case "unread-count":
				if r.Method != http.MethodGet {
					methodNotAllowed(w, http.MethodGet)
					return
				}
				cfg.Notifications.UnreadCount(w, r)
			case "read-all":
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Notifications.MarkAllRead(w, r)
			default:
				id, found := strings.CutSuffix(rest, "/read")
				if !found || id == "" {
					http.NotFound(w, r)
					return
				}
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Notifications.MarkRead(w, r.WithContext(ContextWithResourceID(r.Context(), id)))
			}
		}))
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
