package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/tidwall/sjson"

	"followreq/pkg/model"
)

const defaultHistoryLimit = 50

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []byte(`{"status":"ok"}`))
}

func (s *Server) listPending(w http.ResponseWriter, r *http.Request) {
	useCache := true
	if v := r.URL.Query().Get("cache"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid cache parameter", "")
			return
		}
		useCache = b
	}
	users, err := s.svc.FetchPending(r.Context(), useCache)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeUsers(w, users)
}

func (s *Server) searchPending(w http.ResponseWriter, r *http.Request) {
	users, err := s.svc.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeUsers(w, users)
}

func (s *Server) executeAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind, err := model.ParseActionKind(vars["kind"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	advance := false
	if v := r.URL.Query().Get("advance"); v != "" {
		if advance, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid advance parameter", "")
			return
		}
	}

	out := s.svc.Execute(r.Context(), model.Intent{Kind: kind, UserID: vars["userId"], AutoAdvance: advance})
	if out.Err != nil {
		s.fail(w, r, out.Err)
		return
	}

	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "kind", kind.String())
	body, _ = sjson.SetBytes(body, "userId", out.UserID)
	body, _ = sjson.SetBytes(body, "result", string(model.ResultOK))
	if out.NextUserID != "" {
		body, _ = sjson.SetBytes(body, "nextUserId", out.NextUserID)
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) checkProfile(w http.ResponseWriter, r *http.Request) {
	view, ok, err := s.svc.CheckProfile(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "profile has no pending request", "")
		return
	}
	body, err := sjson.SetBytes([]byte(`{}`), "banner", view)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter", "")
			return
		}
		limit = n
	}
	recs, err := s.svc.History(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if recs == nil {
		recs = []model.ActionRecord{}
	}
	body, _ := sjson.SetBytes([]byte(`{}`), "count", len(recs))
	body, err = sjson.SetBytes(body, "actions", recs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) targets(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Targets(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []model.TargetInfo{}
	}
	body, err := sjson.SetBytes([]byte(`{}`), "targets", list)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// events 以 server-sent events 推送事件，直到客户端断开
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", "")
		return
	}
	ch, cancel := s.svc.SubscribeEvents()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				s.log.Err(err, "序列化事件失败")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// fail 按错误分类映射状态码
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Err(err, "请求处理失败", "path", r.URL.Path, "status", status)
	}
	writeError(w, status, err.Error(), model.Classify(err))
}

func statusFor(err error) int {
	var rl *model.RateLimitError
	var apiErr *model.APIError
	var netErr *model.NetworkError
	switch {
	case errors.As(err, &rl):
		return http.StatusTooManyRequests
	case errors.Is(err, model.ErrActionInFlight):
		return http.StatusConflict
	case errors.As(err, &apiErr), errors.As(err, &netErr):
		return http.StatusBadGateway
	case errors.Is(err, model.ErrSessionNotReady), errors.Is(err, model.ErrNoTarget), errors.Is(err, model.ErrNoSession):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeUsers(w http.ResponseWriter, users []model.PendingUser) {
	if users == nil {
		users = []model.PendingUser{}
	}
	body, _ := sjson.SetBytes([]byte(`{}`), "count", len(users))
	body, err := sjson.SetBytes(body, "users", users)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func writeError(w http.ResponseWriter, status int, msg string, result model.ActionResult) {
	body, _ := sjson.SetBytes([]byte(`{}`), "error", msg)
	if result != "" {
		body, _ = sjson.SetBytes(body, "result", string(result))
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
