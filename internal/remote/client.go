package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"followreq/internal/ctxkeys"
	"followreq/internal/logger"
	"followreq/internal/metrics"
	"followreq/pkg/model"
)

const (
	pendingPath  = "friendships/pending/"
	showManyPath = "friendships/show_many/"
	mutatePath   = "web/friendships/%s/%s/"

	maxBodyBytes = 8 << 20
)

// RawUser 待处理请求接口返回的原始用户记录
type RawUser struct {
	PK            string
	Username      string
	FullName      string
	ProfilePicURL string
	SocialContext string
}

// Page 一页待处理请求
type Page struct {
	Users     []RawUser
	NextMaxID string
}

// Relationship 与某个用户的关系状态
type Relationship struct {
	Following       bool
	FollowedBy      bool
	OutgoingRequest bool
	IncomingRequest bool
}

// Options 客户端配置
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Session    *model.SessionContext
	Logger     logger.Logger
}

// Client 远端接口客户端
type Client struct {
	baseURL string
	http    *http.Client
	log     logger.Logger

	mu      sync.RWMutex
	session *model.SessionContext
}

// New 创建客户端
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("remote: base url is required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("remote: invalid base url: %w", err)
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/") + "/",
		http:    hc,
		log:     opts.Logger,
		session: opts.Session,
	}, nil
}

// SetSession 替换会话上下文，页面重新加载后调用
func (c *Client) SetSession(sc *model.SessionContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = sc
}

// ListPending 获取一页待处理请求，maxID 为空表示第一页
func (c *Client) ListPending(ctx context.Context, maxID string) (Page, error) {
	path := pendingPath
	if maxID != "" {
		path += "?max_id=" + url.QueryEscape(maxID)
	}
	res, err := c.do(ctx, "list pending", "pending", http.MethodGet, path, "")
	if err != nil {
		return Page{}, err
	}

	var page Page
	res.Get("users").ForEach(func(_, u gjson.Result) bool {
		pk := u.Get("pk").String()
		if pk == "" {
			pk = u.Get("pk_id").String()
		}
		page.Users = append(page.Users, RawUser{
			PK:            pk,
			Username:      u.Get("username").String(),
			FullName:      u.Get("full_name").String(),
			ProfilePicURL: u.Get("profile_pic_url").String(),
			SocialContext: u.Get("social_context").String(),
		})
		return true
	})
	page.NextMaxID = res.Get("next_max_id").String()
	return page, nil
}

// ShowMany 批量查询关系状态
func (c *Client) ShowMany(ctx context.Context, ids []string) (map[string]Relationship, error) {
	body := "user_ids=" + strings.Join(ids, ",")
	res, err := c.do(ctx, "show many", "show_many", http.MethodPost, showManyPath, body)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Relationship, len(ids))
	res.Get("friendship_statuses").ForEach(func(k, v gjson.Result) bool {
		out[k.String()] = Relationship{
			Following:       v.Get("following").Bool(),
			FollowedBy:      v.Get("followed_by").Bool(),
			OutgoingRequest: v.Get("outgoing_request").Bool(),
			IncomingRequest: v.Get("incoming_request").Bool(),
		}
		return true
	})
	return out, nil
}

// Mutate 执行变更操作，只依赖 HTTP 状态判断成功
func (c *Client) Mutate(ctx context.Context, kind model.ActionKind, userID string) error {
	verb, err := endpointVerb(kind)
	if err != nil {
		return err
	}
	path := fmt.Sprintf(mutatePath, url.PathEscape(userID), verb)
	_, err = c.do(ctx, kind.String(), verb, http.MethodPost, path, "")
	return err
}

func endpointVerb(kind model.ActionKind) (string, error) {
	switch kind {
	case model.ActionAccept:
		return "approve", nil
	case model.ActionReject:
		return "ignore", nil
	case model.ActionFollow:
		return "follow", nil
	case model.ActionUnfollow:
		return "unfollow", nil
	default:
		return "", fmt.Errorf("remote: unsupported action %s", kind)
	}
}

func (c *Client) currentSession() *model.SessionContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// do 发送请求并按约定分类错误
func (c *Client) do(ctx context.Context, op, endpoint, method, path, body string) (gjson.Result, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return gjson.Result{}, &model.NetworkError{Op: op, Err: err}
	}
	if sc := c.currentSession(); sc != nil {
		sc.Headers.ApplyTo(req.Header)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	log := c.log.With("traceId", ctxkeys.TraceID(ctx), "op", op)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveRemote(endpoint, 0, time.Since(start).Seconds())
		log.Err(err, "远端请求失败")
		return gjson.Result{}, &model.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	metrics.ObserveRemote(endpoint, resp.StatusCode, time.Since(start).Seconds())

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return gjson.Result{}, &model.NetworkError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	log.Debug("远端请求完成", "status", resp.StatusCode, "bytes", len(data), "duration", time.Since(start))

	parsed := gjson.ParseBytes(data)
	isObject := gjson.ValidBytes(data) && parsed.IsObject()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if isObject {
			return gjson.Result{}, &model.APIError{
				Op:         op,
				StatusCode: resp.StatusCode,
				Status:     parsed.Get("status").String(),
				Message:    parsed.Get("message").String(),
			}
		}
		return gjson.Result{}, &model.NetworkError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	if method == http.MethodGet || endpoint == "show_many" {
		if !isObject {
			return gjson.Result{}, &model.NetworkError{Op: op, StatusCode: resp.StatusCode, Err: errors.New("response body is not a json object")}
		}
		if parsed.Get("status").String() == "fail" {
			return gjson.Result{}, &model.APIError{
				Op:         op,
				StatusCode: resp.StatusCode,
				Status:     "fail",
				Message:    parsed.Get("message").String(),
			}
		}
	}
	return parsed, nil
}
