// Package status 并行探测各依赖的健康状况
package status

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tetherapp/tether/internal/config"
)

// probeTimeout 单项探测超时
const probeTimeout = 3 * time.Second

// Pinger 可探活的依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyChecker 提供方就绪检查
type ReadyChecker interface {
	Ready() bool
	ModelName() string
}

// Check 单项检查结果
type Check struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
	Latency string `json:"latency"`
}

// Report 汇总报告
type Report struct {
	Healthy   bool      `json:"healthy"`
	Checks    []Check   `json:"checks"`
	CheckedAt time.Time `json:"checked_at"`
}

// Service 健康状态服务
type Service struct {
	db         Pinger
	redis      Pinger
	provider   ReadyChecker
	notionCfg  config.NotionConfig
	httpClient *http.Client
}

// NewService 创建状态服务
func NewService(db, redis Pinger, provider ReadyChecker, notionCfg config.NotionConfig) *Service {
	return &Service{
		db:         db,
		redis:      redis,
		provider:   provider,
		notionCfg:  notionCfg,
		httpClient: &http.Client{Timeout: probeTimeout},
	}
}

// Collect 并行执行全部探测并汇总
// 单项失败不影响其余探测，报告总是完整返回
func (s *Service) Collect(ctx context.Context) *Report {
	checks := make([]Check, 4)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		checks[0] = s.probe(ctx, "database", func(ctx context.Context) error {
			return s.db.Ping(ctx)
		})
		return nil
	})
	g.Go(func() error {
		checks[1] = s.probe(ctx, "redis", func(ctx context.Context) error {
			return s.redis.Ping(ctx)
		})
		return nil
	})
	g.Go(func() error {
		checks[2] = s.probe(ctx, "provider", func(context.Context) error {
			if !s.provider.Ready() {
				return fmt.Errorf("api key is not configured")
			}
			return nil
		})
		if checks[2].Healthy {
			checks[2].Detail = s.provider.ModelName()
		}
		return nil
	})
	g.Go(func() error {
		checks[3] = s.probe(ctx, "notion", s.probeNotion)
		return nil
	})

	g.Wait()

	report := &Report{Healthy: true, Checks: checks, CheckedAt: time.Now()}
	for _, c := range checks {
		if !c.Healthy {
			report.Healthy = false
			break
		}
	}
	return report
}

// probe 执行单项探测并记录耗时
func (s *Service) probe(ctx context.Context, name string, fn func(context.Context) error) Check {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	check := Check{
		Name:    name,
		Healthy: err == nil,
		Latency: time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		check.Detail = err.Error()
	}
	return check
}

// probeNotion 探测 Notion API 可达性
func (s *Service) probeNotion(ctx context.Context) error {
	if s.notionCfg.APIKey == "" {
		return fmt.Errorf("api key is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(s.notionCfg.BaseURL, "/")+"/users/me", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.notionCfg.APIKey)
	req.Header.Set("Notion-Version", "2022-06-28")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
