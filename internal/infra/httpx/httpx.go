package httpx

import (
	"errors"
	"net/http"
	"time"
)

const (
	// DefaultTimeout 是单次外部查询的总超时；超时按 LookupError 处理（上层降级）。
	DefaultTimeout = 20 * time.Second

	defaultRetryMax = 2
)

// Transport 把"有界重试"固化为统一策略。
//
// 设计目标：provider 只负责定位与解析，不关心网络策略细节。
type Transport struct {
	Base http.RoundTripper

	// RetryMax 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	RetryMax int
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对"可重放"的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 || !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		// Clone 避免在 RoundTripper 内部污染调用方的 request。
		resp, err := t.Base.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			// ctx 已取消/超时：不再重试，直接返回最后错误（更可解释）。
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// NewClient 构造用于元数据查询的 HTTP client：有界重试 + 总超时。
// timeout <= 0 时使用 DefaultTimeout。
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base := &http.Transport{
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}
	return &http.Client{
		Transport: &Transport{
			Base:     base,
			RetryMax: defaultRetryMax,
		},
		Timeout: timeout,
	}
}
