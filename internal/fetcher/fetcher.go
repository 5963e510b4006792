package fetcher

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"followreq/internal/cache"
	"followreq/internal/ctxkeys"
	"followreq/internal/logger"
	"followreq/internal/metrics"
	"followreq/internal/remote"
	"followreq/pkg/model"
)

const (
	DefaultChunkSize = 100
	DefaultMaxPages  = 1000
)

// ErrTooManyPages 翻页超过上限，通常是游标循环
var ErrTooManyPages = errors.New("pending list exceeds page limit")

var moreSuffixPattern = regexp.MustCompile(`\+\s*(\d+)\s*more`)

// Remote 获取待处理请求所需的远端能力
type Remote interface {
	ListPending(ctx context.Context, maxID string) (remote.Page, error)
	ShowMany(ctx context.Context, ids []string) (map[string]remote.Relationship, error)
}

// Options 拉取器配置
type Options struct {
	Remote           Remote
	Cache            *cache.RequestCache
	ChunkSize        int
	ChunkConcurrency int
	MaxPages         int
	Logger           logger.Logger
}

// Fetcher 分页拉取待处理请求并补充关系状态
type Fetcher struct {
	remote      Remote
	cache       *cache.RequestCache
	chunkSize   int
	concurrency int
	maxPages    int
	log         logger.Logger

	// 同一时刻只允许一次网络拉取
	mu sync.Mutex
}

// New 创建拉取器
func New(opts Options) *Fetcher {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkConcurrency <= 0 {
		opts.ChunkConcurrency = 1
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.Cache == nil {
		opts.Cache = cache.New(cache.DefaultTTL)
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &Fetcher{
		remote:      opts.Remote,
		cache:       opts.Cache,
		chunkSize:   opts.ChunkSize,
		concurrency: opts.ChunkConcurrency,
		maxPages:    opts.MaxPages,
		log:         opts.Logger,
	}
}

// Cache 返回拉取器使用的缓存
func (f *Fetcher) Cache() *cache.RequestCache { return f.cache }

// FetchPending 返回排序后的待处理请求列表，useCache 为 true 且缓存有效时不发请求
func (f *Fetcher) FetchPending(ctx context.Context, useCache bool) ([]model.PendingUser, error) {
	if useCache {
		if users, ok := f.cache.Get(); ok {
			return users, nil
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// 等锁期间其他调用可能已经写好缓存
	if useCache {
		if users, ok := f.cache.Get(); ok {
			return users, nil
		}
	}

	ctx, traceID := ctxkeys.WithTraceID(ctx)
	log := f.log.With("traceId", traceID)
	gen := f.cache.Generation()

	raw, err := f.collectPages(ctx)
	if err != nil {
		log.Err(err, "拉取待处理请求失败")
		return nil, err
	}

	rels := f.lookupRelationships(ctx, log, raw)

	users := make([]model.PendingUser, 0, len(raw))
	for _, r := range raw {
		rel := rels[r.PK]
		users = append(users, model.PendingUser{
			ID:                r.PK,
			Username:          r.Username,
			FullName:          r.FullName,
			ProfilePicURL:     r.ProfilePicURL,
			FollowedByViewer:  rel.Following,
			FollowsViewer:     rel.FollowedBy,
			RequestedByViewer: rel.OutgoingRequest,
			MutualCount:       MutualCount(r.SocialContext),
			SocialContext:     r.SocialContext,
			IsPendingRequest:  true,
		})
	}
	SortUsers(users)

	metrics.Fetches.WithLabelValues("network").Inc()
	if !f.cache.PutIf(gen, users) {
		// 拉取期间有请求被接受或拒绝，快照可能包含已处理的用户
		log.Warn("拉取期间缓存已失效，结果不写入缓存", "count", len(users))
		return users, nil
	}
	log.Info("待处理请求已刷新", "count", len(users))
	return users, nil
}

// collectPages 顺序翻页，遇到空页或没有游标时结束，重复的用户只保留第一次出现
func (f *Fetcher) collectPages(ctx context.Context) ([]remote.RawUser, error) {
	var out []remote.RawUser
	seen := make(map[string]struct{})
	cursor := ""
	for i := 0; ; i++ {
		if i == f.maxPages {
			return nil, fmt.Errorf("%w: stopped after %d pages", ErrTooManyPages, f.maxPages)
		}
		page, err := f.remote.ListPending(ctx, cursor)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", i+1, err)
		}
		if len(page.Users) == 0 {
			break
		}
		for _, u := range page.Users {
			if u.PK == "" {
				continue
			}
			if _, dup := seen[u.PK]; dup {
				continue
			}
			seen[u.PK] = struct{}{}
			out = append(out, u)
		}
		if page.NextMaxID == "" || page.NextMaxID == cursor {
			break
		}
		cursor = page.NextMaxID
	}
	return out, nil
}

// lookupRelationships 分块查询关系状态，单块失败只记录日志
func (f *Fetcher) lookupRelationships(ctx context.Context, log logger.Logger, raw []remote.RawUser) map[string]remote.Relationship {
	merged := make(map[string]remote.Relationship, len(raw))
	if len(raw) == 0 {
		return merged
	}

	ids := make([]string, 0, len(raw))
	for _, r := range raw {
		ids = append(ids, r.PK)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for start := 0; start < len(ids); start += f.chunkSize {
		chunk := ids[start:min(start+f.chunkSize, len(ids))]
		g.Go(func() error {
			rels, err := f.remote.ShowMany(gctx, chunk)
			if err != nil {
				log.Warn("关系状态查询失败，跳过该块", "size", len(chunk), "first", chunk[0], "error", err.Error())
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for id, rel := range rels {
				merged[id] = rel
			}
			return nil
		})
	}
	_ = g.Wait()
	return merged
}

// MutualCount 解析共同关注描述，命名部分按逗号计数，再加上 "+ N more" 中的 N
func MutualCount(socialContext string) int {
	s := strings.TrimSpace(socialContext)
	if s == "" {
		return 0
	}

	extra := 0
	named := s
	if loc := moreSuffixPattern.FindStringSubmatchIndex(s); loc != nil {
		if n, err := strconv.Atoi(s[loc[2]:loc[3]]); err == nil {
			extra = n
		}
		named = s[:loc[0]]
	}

	count := 0
	for _, seg := range strings.Split(named, ",") {
		if strings.TrimSpace(seg) != "" {
			count++
		}
	}
	return count + extra
}

// SortUsers 稳定排序：已关注的在前，其次共同关注数降序
func SortUsers(users []model.PendingUser) {
	slices.SortStableFunc(users, func(a, b model.PendingUser) int {
		if a.FollowedByViewer != b.FollowedByViewer {
			if a.FollowedByViewer {
				return -1
			}
			return 1
		}
		return b.MutualCount - a.MutualCount
	})
}
