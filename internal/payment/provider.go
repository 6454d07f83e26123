package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrStatusUnavailable 支付平台暂时不可用（网络错误、非 2xx、响应不可解析）
var ErrStatusUnavailable = errors.New("payment status unavailable")

// StatusProvider 支付状态查询接口，对账任务用它核实会话的真实支付结果
type StatusProvider interface {
	QueryStatus(ctx context.Context, sessionNo string) (StatusResult, error)
}

// StatusResult 支付状态查询结果
type StatusResult struct {
	Status     string `json:"status"`      // paid/failed/pending
	PaymentRef string `json:"payment_ref"` // 支付平台侧事件标识
}

// HTTPProviderOptions HTTP 查询客户端配置
type HTTPProviderOptions struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	RatePerSecond float64
	RateBurst     int
}

// HTTPProvider 基于 HTTP 的支付状态查询客户端，带限速保护下游
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPProvider 创建 HTTP 支付状态查询客户端
func NewHTTPProvider(opts HTTPProviderOptions) *HTTPProvider {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	rps := opts.RatePerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := opts.RateBurst
	if burst <= 0 {
		burst = 5
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		apiKey:  opts.APIKey,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// QueryStatus 查询某会话的支付状态。
// 平台侧的任何故障都折叠为 ErrStatusUnavailable，由调用方保持会话原状等待下一轮。
func (p *HTTPProvider) QueryStatus(ctx context.Context, sessionNo string) (StatusResult, error) {
	if strings.TrimSpace(sessionNo) == "" {
		return StatusResult{}, errors.New("invalid session no")
	}
	if p.baseURL == "" {
		return StatusResult{}, ErrStatusUnavailable
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return StatusResult{}, fmt.Errorf("%w: %v", ErrStatusUnavailable, err)
	}

	endpoint := fmt.Sprintf("%s/payments/status?session_no=%s", p.baseURL, url.QueryEscape(sessionNo))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return StatusResult{}, fmt.Errorf("%w: %v", ErrStatusUnavailable, err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return StatusResult{}, fmt.Errorf("%w: %v", ErrStatusUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return StatusResult{}, fmt.Errorf("%w: status %d", ErrStatusUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return StatusResult{}, fmt.Errorf("%w: %v", ErrStatusUnavailable, err)
	}
	var result StatusResult
	if err := json.Unmarshal(body, &result); err != nil {
		return StatusResult{}, fmt.Errorf("%w: %v", ErrStatusUnavailable, err)
	}
	switch result.Status {
	case "paid", "failed", "pending":
	default:
		return StatusResult{}, fmt.Errorf("%w: unknown status %q", ErrStatusUnavailable, result.Status)
	}
	return result, nil
}
