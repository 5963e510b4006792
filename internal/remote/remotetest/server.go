// Package remotetest 提供模拟远端接口的测试服务器
package remotetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/tidwall/sjson"
)

// User 模拟用户
type User struct {
	PK            string
	Username      string
	FullName      string
	SocialContext string
	Following     bool
}

// Server 模拟的远端接口
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	pages         [][]User
	pageErrStatus map[int]int // 页码(从0开始) -> 状态码
	showManyFail  map[int]bool
	mutateStatus  int
	mutateBody    string

	PageRequests     int
	ShowManyRequests int
	ShowManyBodies   []string
	Mutations        []string
	Headers          []http.Header
}

// New 创建并启动模拟服务器，pages 为按顺序返回的分页
func New(pages ...[]User) *Server {
	s := &Server{
		pages:         pages,
		pageErrStatus: map[int]int{},
		showManyFail:  map[int]bool{},
		mutateStatus:  http.StatusOK,
		mutateBody:    `{"status":"ok"}`,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/friendships/pending/", s.handlePending)
	mux.HandleFunc("/friendships/show_many/", s.handleShowMany)
	mux.HandleFunc("/web/friendships/", s.handleMutate)
	s.Server = httptest.NewServer(mux)
	return s
}

// Users 生成 n 个用户，编号从 start 开始
func Users(start, n int) []User {
	out := make([]User, 0, n)
	for i := start; i < start+n; i++ {
		out = append(out, User{
			PK:       fmt.Sprintf("%d", 1000+i),
			Username: fmt.Sprintf("user%d", i),
			FullName: fmt.Sprintf("User %d", i),
		})
	}
	return out
}

// SetPages 替换分页数据
func (s *Server) SetPages(pages ...[]User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = pages
}

// FailPage 指定页返回错误状态码
func (s *Server) FailPage(page, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageErrStatus[page] = status
}

// FailShowMany 指定第 n 次（从0开始）关系查询失败
func (s *Server) FailShowMany(call int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showManyFail[call] = true
}

// SetMutateResponse 设置变更接口的响应
func (s *Server) SetMutateResponse(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mutateStatus = status
	s.mutateBody = body
}

// RemoveUser 从分页数据中删除用户，模拟远端状态变化
func (s *Server) RemoveUser(pk string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeUserLocked(pk)
}

func (s *Server) removeUserLocked(pk string) {
	for i, page := range s.pages {
		kept := page[:0:0]
		for _, u := range page {
			if u.PK != pk {
				kept = append(kept, u)
			}
		}
		s.pages[i] = kept
	}
}

// Counts 返回请求计数
func (s *Server) Counts() (pages, showMany, mutations int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PageRequests, s.ShowManyRequests, len(s.Mutations)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PageRequests++
	s.Headers = append(s.Headers, r.Header.Clone())

	idx := 0
	if v := r.URL.Query().Get("max_id"); v != "" {
		if _, err := fmt.Sscanf(v, "cursor-%d", &idx); err != nil {
			http.Error(w, "bad cursor", http.StatusBadRequest)
			return
		}
	}
	if status, ok := s.pageErrStatus[idx]; ok {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("upstream failure"))
		return
	}

	body := `{"users":[],"status":"ok"}`
	if idx < len(s.pages) {
		for _, u := range s.pages[idx] {
			item, _ := sjson.Set(`{}`, "pk", u.PK)
			item, _ = sjson.Set(item, "username", u.Username)
			item, _ = sjson.Set(item, "full_name", u.FullName)
			item, _ = sjson.Set(item, "profile_pic_url", "https://cdn.example/"+u.Username+".jpg")
			if u.SocialContext != "" {
				item, _ = sjson.Set(item, "social_context", u.SocialContext)
			}
			body, _ = sjson.SetRaw(body, "users.-1", item)
		}
		if idx+1 < len(s.pages) {
			body, _ = sjson.Set(body, "next_max_id", fmt.Sprintf("cursor-%d", idx+1))
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func (s *Server) handleShowMany(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.ShowManyRequests
	s.ShowManyRequests++
	ids := r.PostForm.Get("user_ids")
	s.ShowManyBodies = append(s.ShowManyBodies, ids)
	if s.showManyFail[call] {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	following := map[string]bool{}
	for _, page := range s.pages {
		for _, u := range page {
			following[u.PK] = u.Following
		}
	}
	statuses := map[string]map[string]bool{}
	for _, id := range strings.Split(ids, ",") {
		if id == "" {
			continue
		}
		statuses[id] = map[string]bool{"following": following[id], "incoming_request": true}
	}
	raw, _ := json.Marshal(statuses)
	body, _ := sjson.SetRaw(`{"status":"ok"}`, "friendship_statuses", string(raw))
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func (s *Server) handleMutate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// /web/friendships/{id}/{verb}/
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/web/friendships/"), "/"), "/")
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Mutations = append(s.Mutations, parts[1]+":"+parts[0])
	if s.mutateStatus >= 200 && s.mutateStatus < 300 && (parts[1] == "approve" || parts[1] == "ignore") {
		s.removeUserLocked(parts[0])
	}
	w.WriteHeader(s.mutateStatus)
	_, _ = w.Write([]byte(s.mutateBody))
}
