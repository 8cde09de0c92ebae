package imdb

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/mediasort/internal/domain"
	providerx "github.com/John-Robertt/mediasort/internal/provider"
)

const defaultBaseURL = "https://www.imdb.com"

// Provider 通过 IMDb 的 find 页面做标题搜索，作为无 API key 时的退路。
//
// 约束：
// - fetch 不做缓存/重试/限速（由上层统一控制）
// - parseFind 必须是纯函数：相同 HTML => 相同输出
// - IMDb 没有公开搜索 API；页面结构漂移时解析直接报错，由上层降级
type Provider struct {
	baseURL string
	client  *http.Client
}

func New(client *http.Client) *Provider {
	return &Provider{baseURL: defaultBaseURL, client: client}
}

// NewWithBaseURL 仅供测试：把站点指向本地替身。
func NewWithBaseURL(baseURL string, client *http.Client) *Provider {
	return &Provider{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (*Provider) Name() string { return "imdb" }

func (p *Provider) Search(ctx context.Context, kind domain.Kind, name string, year int) ([]providerx.Candidate, error) {
	if p.client == nil {
		return nil, errors.New("http client 不能为空")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("name 不能为空")
	}
	ttype, err := titleType(kind)
	if err != nil {
		return nil, err
	}

	// 有年份线索时并入查询词；find 页没有独立的年份参数。
	q := name
	if year > 0 {
		q = name + " " + strconv.Itoa(year)
	}
	v := url.Values{}
	v.Set("q", q)
	v.Set("s", "tt")
	v.Set("ttype", ttype)
	u := p.baseURL + "/find/?" + v.Encode()

	html, err := p.fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	return parseFind(html)
}

func (p *Provider) fetch(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	// IMDb 对无 UA/非英文请求会降级或拦截；固定这两个头保证解析器输入稳定。
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		return nil, &providerx.BlockedError{URL: u, Reason: "bot-check"}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &providerx.HTTPStatusError{URL: u, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}
	if len(b) == 0 {
		return nil, errors.New("empty response body")
	}
	return b, nil
}

// parseFind 把 find 结果页解析为候选列表。
// 空结果与“页面不是结果页”要区分开：前者返回空切片，后者报错。
func parseFind(html []byte) ([]providerx.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	section := doc.Find(`section[data-testid="find-results-section-title"]`)
	if section.Length() == 0 {
		// 查无结果时 IMDb 仍会渲染提示区；两者都没有说明拿到的不是结果页。
		if doc.Find(`[data-testid="find-no-results"]`).Length() > 0 {
			return nil, nil
		}
		return nil, errors.New("未找到结果区域（疑似返回了拦截页/结构已漂移）")
	}

	out := make([]providerx.Candidate, 0, 8)
	section.Find("li.ipc-metadata-list-summary-item").Each(func(_ int, s *goquery.Selection) {
		a := s.Find("a.ipc-metadata-list-summary-item__t").First()
		title := strings.Join(strings.Fields(a.Text()), " ")
		if title == "" {
			return
		}
		href, _ := a.Attr("href")
		c := providerx.Candidate{
			Name: title,
			ID:   titleID(href),
			Year: firstYear(s.Find("span.ipc-metadata-list-summary-item__li").First().Text()),
		}
		out = append(out, c)
	})
	return out, nil
}

// titleID 从 /title/tt0944947/?ref_=... 提取 tt0944947。
func titleID(href string) string {
	const prefix = "/title/"
	i := strings.Index(href, prefix)
	if i < 0 {
		return ""
	}
	rest := href[i+len(prefix):]
	if j := strings.IndexAny(rest, "/?"); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

// firstYear 从 “2011–2019” / “2017” 这类区间文本里取起始年份。
func firstYear(s string) int {
	s = strings.TrimSpace(s)
	run := 0
	start := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if run == 0 {
				start = i
			}
			run++
			if run == 4 {
				n, _ := strconv.Atoi(s[start : start+4])
				return n
			}
			continue
		}
		run = 0
	}
	return 0
}

func titleType(kind domain.Kind) (string, error) {
	switch kind {
	case domain.KindTV:
		return "tv", nil
	case domain.KindMovie:
		return "ft", nil
	default:
		return "", errors.New("未知的媒体类型：" + string(kind))
	}
}
