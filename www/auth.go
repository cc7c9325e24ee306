package www

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"

	"github.com/gorilla/sessions"
)

const sessionName = "sitemanager_session"

// sessionStore remembers which user signed in on this browser. The backend
// token itself lives in the engine; the cookie only gates mutating routes.
type sessionStore struct {
	store *sessions.CookieStore
}

func newSessionStore(secret string) *sessionStore {
	var key []byte
	if secret != "" {
		key, _ = base64.StdEncoding.DecodeString(secret)
	}
	if len(key) < 32 {
		key = make([]byte, 32)
		rand.Read(key)
	}
	cs := sessions.NewCookieStore(key)
	cs.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60, // 7 days
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &sessionStore{store: cs}
}

func (s *sessionStore) get(r *http.Request) *sessions.Session {
	sess, _ := s.store.Get(r, sessionName)
	return sess
}

func (s *sessionStore) getUser(r *http.Request) (userID string, ok bool) {
	u, exists := s.get(r).Values["user_id"]
	if !exists {
		return "", false
	}
	userID, ok = u.(string)
	return userID, ok && userID != ""
}

func (s *sessionStore) setUser(w http.ResponseWriter, r *http.Request, userID string) error {
	sess := s.get(r)
	sess.Values["user_id"] = userID
	return sess.Save(r, w)
}

func (s *sessionStore) clear(w http.ResponseWriter, r *http.Request) error {
	sess := s.get(r)
	delete(sess.Values, "user_id")
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

func (h *Handlers) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := h.sessions.getUser(r); !ok {
			writeError(w, http.StatusUnauthorized, "sign in required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) apiLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token  string `json:"token" validate:"required"`
		UserID string `json:"user_id" validate:"required"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.engine.Login(req.Token, req.UserID)
	if err := h.sessions.setUser(w, r, req.UserID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok", "user_id": req.UserID})
}

func (h *Handlers) apiLogout(w http.ResponseWriter, r *http.Request) {
	h.engine.Logout()
	h.sessions.clear(w, r)
	writeJSON(w, map[string]string{"status": "ok"})
}
