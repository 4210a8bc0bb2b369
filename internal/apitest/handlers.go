package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/eventdesk/internal/middleware"
	"github.com/hitoshi/eventdesk/internal/model"
)

// registerRequest はアカウント登録リクエストのボディ。
type registerRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// tokenResponse はトークンを返すレスポンス。
type tokenResponse struct {
	Message string `json:"message,omitempty"`
	Token   string `json:"token"`
}

// eventRequest はイベント作成・更新リクエストのボディ。
type eventRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	DateTime    time.Time       `json:"date_time"`
	Location    string          `json:"location"`
	Type        model.EventType `json:"type"`
	TagIDs      []string        `json:"tag_ids"`
	UserID      string          `json:"user_id"`
}

// handleRegister はアカウント登録を処理する。
// POST /auth/register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if req.FirstName == "" || req.LastName == "" || req.Username == "" || req.Password == "" {
		middleware.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "All fields are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	s.mu.Lock()
	if _, exists := s.users[req.Username]; exists {
		s.mu.Unlock()
		middleware.WriteError(w, http.StatusConflict, "USERNAME_TAKEN", "Username already exists")
		return
	}
	u := &user{
		ID:           uuid.New().String(),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Username:     req.Username,
		PasswordHash: hash,
	}
	s.users[u.Username] = u
	s.mu.Unlock()

	middleware.WriteJSON(w, http.StatusCreated, tokenResponse{
		Message: "User registered successfully",
		Token:   s.IssueToken(u.ID),
	})
}

// handleLogin はログインを処理する。
// POST /auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	s.mu.Lock()
	u, ok := s.users[req.Username]
	s.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(req.Password)) != nil {
		middleware.WriteError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, tokenResponse{Token: s.IssueToken(u.ID)})
}

// handleListEvents はイベント一覧を返す。非公開イベントは作成者にのみ返す。
// GET /events?tags=<タグ名>&type=<past|upcoming>
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	for _, key := range []string{"tags", "type"} {
		if q.Has(key) && q.Get(key) == "" {
			middleware.WriteError(w, http.StatusBadRequest, "INVALID_FILTER", fmt.Sprintf("%s must not be empty", key))
			return
		}
	}
	timeClass := model.TimeClass(q.Get("type"))
	if timeClass != model.TimeClassAny && timeClass != model.TimeClassPast && timeClass != model.TimeClassUpcoming {
		middleware.WriteError(w, http.StatusBadRequest, "INVALID_FILTER", "type must be past or upcoming")
		return
	}
	tagName := q.Get("tags")

	s.mu.Lock()
	hook := s.listHook
	s.mu.Unlock()
	if hook != nil {
		hook(r)
	}

	currentUserID, _ := middleware.UserIDFromContext(r.Context())
	now := s.now()

	s.mu.Lock()
	result := make([]model.Event, 0, len(s.events))
	for _, ev := range s.events {
		if !visible(ev, currentUserID) {
			continue
		}
		if tagName != "" && !hasTagNamed(ev, tagName) {
			continue
		}
		switch timeClass {
		case model.TimeClassPast:
			if !ev.DateTime.Before(now) {
				continue
			}
		case model.TimeClassUpcoming:
			if ev.DateTime.Before(now) {
				continue
			}
		}
		result = append(result, ev)
	}
	s.mu.Unlock()

	middleware.WriteJSON(w, http.StatusOK, result)
}

// handleGetEvent はイベントを1件返す。
// GET /events/{id}
func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	currentUserID, _ := middleware.UserIDFromContext(r.Context())

	s.mu.Lock()
	i := s.indexOf(chi.URLParam(r, "id"))
	var ev model.Event
	if i >= 0 {
		ev = s.events[i]
	}
	s.mu.Unlock()

	if i < 0 || !visible(ev, currentUserID) {
		middleware.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Event not found")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, ev)
}

// handleCreateEvent はイベントを作成する。作成者はトークンのユーザー。
// POST /events
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	currentUserID, _ := middleware.UserIDFromContext(r.Context())

	req, ok := decodeEventRequest(w, r, currentUserID)
	if !ok {
		return
	}

	s.mu.Lock()
	tags, unknown, ok := s.resolveTags(req.TagIDs)
	if !ok {
		s.mu.Unlock()
		middleware.WriteError(w, http.StatusBadRequest, "UNKNOWN_TAG", "Unknown tag: "+unknown)
		return
	}
	ev := model.Event{
		ID:          uuid.New().String(),
		Title:       req.Title,
		Description: req.Description,
		DateTime:    req.DateTime.UTC(),
		Location:    req.Location,
		Type:        req.Type,
		UserID:      currentUserID,
		Tags:        tags,
	}
	s.events = append(s.events, ev)
	s.mu.Unlock()

	middleware.WriteJSON(w, http.StatusCreated, ev)
}

// handleUpdateEvent はイベントを更新する。作成者以外は403。
// PUT /events/{id}
func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	currentUserID, _ := middleware.UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if status, msg := s.checkOwner(id, currentUserID); status != http.StatusOK {
		middleware.WriteError(w, status, codeFor(status), msg)
		return
	}

	req, ok := decodeEventRequest(w, r, currentUserID)
	if !ok {
		return
	}

	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		middleware.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Event not found")
		return
	}
	tags, unknown, ok := s.resolveTags(req.TagIDs)
	if !ok {
		s.mu.Unlock()
		middleware.WriteError(w, http.StatusBadRequest, "UNKNOWN_TAG", "Unknown tag: "+unknown)
		return
	}
	ev := &s.events[i]
	ev.Title = req.Title
	ev.Description = req.Description
	ev.DateTime = req.DateTime.UTC()
	ev.Location = req.Location
	ev.Type = req.Type
	ev.Tags = tags
	updated := *ev
	s.mu.Unlock()

	middleware.WriteJSON(w, http.StatusOK, updated)
}

// handleDeleteEvent はイベントを削除する。作成者以外は403。
// DELETE /events/{id}
func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	currentUserID, _ := middleware.UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if status, msg := s.checkOwner(id, currentUserID); status != http.StatusOK {
		middleware.WriteError(w, status, codeFor(status), msg)
		return
	}

	s.mu.Lock()
	if i := s.indexOf(id); i >= 0 {
		s.events = append(s.events[:i], s.events[i+1:]...)
	}
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

// handleListTags はタグ一覧を返す。
// GET /tags
func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	tags := append([]model.Tag{}, s.tags...)
	s.mu.Unlock()

	middleware.WriteJSON(w, http.StatusOK, tags)
}

// checkOwner はイベントの存在と所有者を確認し、HTTPステータスとメッセージを返す。
func (s *Server) checkOwner(id, currentUserID string) (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 || !visible(s.events[i], currentUserID) {
		return http.StatusNotFound, "Event not found"
	}
	if s.events[i].UserID != currentUserID {
		return http.StatusForbidden, "You can only modify your own events"
	}
	return http.StatusOK, ""
}

// resolveTags はタグIDをタグに変換する。呼び出し側でロックを保持すること。
// 存在しないIDがあればそのIDとfalseを返す。
func (s *Server) resolveTags(ids []string) ([]model.Tag, string, bool) {
	tags := make([]model.Tag, 0, len(ids))
	for _, id := range ids {
		found := false
		for _, t := range s.tags {
			if t.ID == id {
				tags = append(tags, t)
				found = true
				break
			}
		}
		if !found {
			return nil, id, false
		}
	}
	return tags, "", true
}

// decodeEventRequest はイベントのリクエストボディを読み取り、検証する。
// 失敗時はレスポンスを書き込んでfalseを返す。
func decodeEventRequest(w http.ResponseWriter, r *http.Request, currentUserID string) (*eventRequest, bool) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return nil, false
	}
	if req.UserID != "" && req.UserID != currentUserID {
		middleware.WriteError(w, http.StatusForbidden, "FORBIDDEN", "user_id does not match the authenticated user")
		return nil, false
	}

	var missing []string
	if strings.TrimSpace(req.Title) == "" {
		missing = append(missing, "title")
	}
	if req.DateTime.IsZero() {
		missing = append(missing, "date_time")
	}
	if strings.TrimSpace(req.Location) == "" {
		missing = append(missing, "location")
	}
	if len(missing) > 0 {
		middleware.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR",
			"Missing required fields: "+strings.Join(missing, ", "))
		return nil, false
	}
	if req.Type == "" {
		req.Type = model.EventTypePublic
	}
	if req.Type != model.EventTypePublic && req.Type != model.EventTypePrivate {
		middleware.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "type must be public or private")
		return nil, false
	}
	return &req, true
}

// visible は現在のユーザーがイベントを閲覧できるかを返す。
func visible(ev model.Event, currentUserID string) bool {
	return ev.Type != model.EventTypePrivate || (currentUserID != "" && ev.UserID == currentUserID)
}

// hasTagNamed はイベントに指定名のタグが付いているかを返す。
func hasTagNamed(ev model.Event, name string) bool {
	for _, t := range ev.Tags {
		if strings.EqualFold(t.Name, name) {
			return true
		}
	}
	return false
}

func codeFor(status int) string {
	switch status {
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusForbidden:
		return "FORBIDDEN"
	default:
		return ""
	}
}
