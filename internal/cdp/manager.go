package cdp

import (
	"context"
	"fmt"
	"sync"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"

	cdpadapter "followreq/internal/adapter/cdp"
	"followreq/internal/logger"
	"followreq/internal/session"
	"followreq/pkg/model"
)

const (
	markupExpr = `document.body ? document.body.innerHTML : ""`
	claimExpr  = `(function(){ try { return sessionStorage.getItem("www-claim-v2") || ""; } catch (e) { return ""; } })()`
)

// Options 浏览器连接配置
type Options struct {
	DevToolsURL string
	PageHost    string // 只附加到该域名下的页面
	CookieURL   string // 读取 cookie 使用的地址
	Logger      logger.Logger
}

// Manager 通过 DevTools 协议附加到用户浏览器中的页面，读取会话所需的页面状态
type Manager struct {
	devtoolsURL string
	pageHost    string
	cookieURL   string
	log         logger.Logger

	mu     sync.Mutex
	conn   *rpcc.Conn
	client *cdp.Client
	target model.TargetInfo
}

// New 创建管理器
func New(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &Manager{
		devtoolsURL: opts.DevToolsURL,
		pageHost:    opts.PageHost,
		cookieURL:   opts.CookieURL,
		log:         opts.Logger,
	}
}

// GetAllTargets 列出匹配域名的页面目标
func (m *Manager) GetAllTargets(ctx context.Context) ([]model.TargetInfo, error) {
	targets, err := devtool.New(m.devtoolsURL).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devtools targets: %w", err)
	}
	out := make([]model.TargetInfo, 0, len(targets))
	for _, t := range targets {
		if t.Type != devtool.Page || !cdpadapter.MatchHost(t.URL, m.pageHost) {
			continue
		}
		out = append(out, cdpadapter.ToTargetInfo(t))
	}
	return out, nil
}

// AttachTarget 附加到指定页面，id 为空时选择第一个匹配域名的页面
func (m *Manager) AttachTarget(ctx context.Context, id model.TargetID) (model.TargetInfo, error) {
	targets, err := devtool.New(m.devtoolsURL).List(ctx)
	if err != nil {
		return model.TargetInfo{}, fmt.Errorf("list devtools targets: %w", err)
	}

	var sel *devtool.Target
	for _, t := range targets {
		if id != "" {
			if model.TargetID(t.ID) == id {
				sel = t
				break
			}
			continue
		}
		if t.Type == devtool.Page && cdpadapter.MatchHost(t.URL, m.pageHost) {
			sel = t
			break
		}
	}
	if sel == nil {
		return model.TargetInfo{}, model.ErrNoTarget
	}

	conn, err := rpcc.DialContext(ctx, sel.WebSocketDebuggerURL)
	if err != nil {
		return model.TargetInfo{}, fmt.Errorf("dial target %s: %w", sel.ID, err)
	}

	info := cdpadapter.ToTargetInfo(sel)
	m.mu.Lock()
	old := m.conn
	m.conn = conn
	m.client = cdp.NewClient(conn)
	m.target = info
	m.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	m.log.Info("已附加到页面", "target", string(info.ID), "url", info.URL)
	return info, nil
}

// Target 当前附加的页面
func (m *Manager) Target() (model.TargetInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.target, m.client != nil
}

// Detach 断开连接
func (m *Manager) Detach() error {
	m.mu.Lock()
	conn := m.conn
	m.conn, m.client = nil, nil
	m.target = model.TargetInfo{}
	m.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Snapshot 读取页面标记、会话存储中的 claim 以及 cookie，未附加时自动附加
func (m *Manager) Snapshot(ctx context.Context) (session.PageState, error) {
	client, err := m.ensureClient(ctx)
	if err != nil {
		return session.PageState{}, err
	}

	markup, err := m.evaluate(ctx, client, markupExpr)
	if err != nil {
		return session.PageState{}, fmt.Errorf("read page markup: %w", err)
	}

	var state session.PageState
	state.Markup = markup

	// claim 和 cookie 可选，失败只记录日志
	if claim, err := m.evaluate(ctx, client, claimExpr); err != nil {
		m.log.Warn("读取 claim 失败", "error", err.Error())
	} else {
		state.Claim = claim
	}

	if m.cookieURL != "" {
		reply, err := client.Network.GetCookies(ctx, network.NewGetCookiesArgs().SetURLs([]string{m.cookieURL}))
		if err != nil {
			m.log.Warn("读取 cookie 失败", "error", err.Error())
		} else {
			state.CookieHeader = cdpadapter.CookieHeader(reply.Cookies)
		}
	}
	return state, nil
}

func (m *Manager) ensureClient(ctx context.Context) (*cdp.Client, error) {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client != nil {
		return client, nil
	}
	if _, err := m.AttachTarget(ctx, ""); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil, model.ErrNoTarget
	}
	return m.client, nil
}

func (m *Manager) evaluate(ctx context.Context, client *cdp.Client, expr string) (string, error) {
	reply, err := client.Runtime.Evaluate(ctx, runtime.NewEvaluateArgs(expr).SetReturnByValue(true))
	if err != nil {
		return "", err
	}
	return cdpadapter.EvalString(reply)
}
