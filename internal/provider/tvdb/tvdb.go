package tvdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/John-Robertt/mediasort/internal/domain"
	providerx "github.com/John-Robertt/mediasort/internal/provider"
)

// defaultBaseURL 是 TVDB v4 API 的入口；测试用 httptest 注入替身。
const defaultBaseURL = "https://api4.thetvdb.com/v4"

// Provider 实现 TVDB v4 的登录与搜索。
//
// token 按需获取并在进程内复用：首次 Search 时 POST /login 换取 bearer token，
// 之后所有请求共享同一个 token；遇到 401 则丢弃 token，下一次调用重新登录。
type Provider struct {
	apiKey  string
	baseURL string
	client  *http.Client

	mu    sync.Mutex
	token string
}

func New(apiKey string, client *http.Client) *Provider {
	return &Provider{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: defaultBaseURL,
		client:  client,
	}
}

// NewWithBaseURL 仅供测试：把 API 指向本地替身。
func NewWithBaseURL(apiKey, baseURL string, client *http.Client) *Provider {
	p := New(apiKey, client)
	p.baseURL = strings.TrimRight(baseURL, "/")
	return p
}

func (*Provider) Name() string { return "tvdb" }

// apiReply 是 TVDB v4 的统一响应信封。
type apiReply[T any] struct {
	Status string `json:"status"`
	Data   T      `json:"data"`
}

type loginReply struct {
	Token string `json:"token"`
}

// searchResult 只取我们会用到的字段；year 在 v4 里是字符串。
type searchResult struct {
	TVDBID string `json:"tvdb_id"`
	Name   string `json:"name"`
	Year   string `json:"year"`
}

func (p *Provider) Search(ctx context.Context, kind domain.Kind, name string, year int) ([]providerx.Candidate, error) {
	if p.client == nil {
		return nil, errors.New("http client 不能为空")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("name 不能为空")
	}
	mediaType, err := searchType(kind)
	if err != nil {
		return nil, err
	}

	token, err := p.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("q", name)
	q.Set("type", mediaType)
	if year > 0 {
		q.Set("year", strconv.Itoa(year))
	}
	u := p.baseURL + "/search?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		// token 过期：作废后让下一次调用重新登录；本次直接上报失败。
		p.mu.Lock()
		p.token = ""
		p.mu.Unlock()
		return nil, &providerx.HTTPStatusError{URL: u, StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &providerx.HTTPStatusError{URL: u, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}

	var reply apiReply[[]searchResult]
	if err := json.Unmarshal(b, &reply); err != nil {
		return nil, fmt.Errorf("解析搜索响应失败：%w", err)
	}

	out := make([]providerx.Candidate, 0, len(reply.Data))
	for _, r := range reply.Data {
		n := strings.TrimSpace(r.Name)
		if n == "" {
			continue
		}
		y, _ := strconv.Atoi(strings.TrimSpace(r.Year))
		out = append(out, providerx.Candidate{
			Name: n,
			ID:   strings.TrimSpace(r.TVDBID),
			Year: y,
		})
	}
	return out, nil
}

// ensureToken 返回可用 token；没有就登录换一个。
// 持锁覆盖整个登录过程：并发的首次 Search 只会触发一次 /login。
func (p *Provider) ensureToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" {
		return p.token, nil
	}
	if p.apiKey == "" {
		return "", errors.New("缺少 TVDB API key")
	}

	body, err := json.Marshal(map[string]string{"apikey": p.apiKey})
	if err != nil {
		return "", err
	}
	u := p.baseURL + "/login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &providerx.HTTPStatusError{URL: u, StatusCode: resp.StatusCode}
	}

	var reply apiReply[loginReply]
	if err := json.Unmarshal(b, &reply); err != nil {
		return "", fmt.Errorf("解析登录响应失败：%w", err)
	}
	if strings.TrimSpace(reply.Data.Token) == "" {
		return "", errors.New("登录响应缺少 token")
	}
	p.token = reply.Data.Token
	return p.token, nil
}

func searchType(kind domain.Kind) (string, error) {
	switch kind {
	case domain.KindTV:
		return "series", nil
	case domain.KindMovie:
		return "movie", nil
	default:
		return "", fmt.Errorf("未知的媒体类型：%q", kind)
	}
}
