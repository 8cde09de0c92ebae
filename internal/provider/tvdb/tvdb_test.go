package tvdb

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/mediasort/internal/domain"
	providerx "github.com/John-Robertt/mediasort/internal/provider"
)

// fakeAPI 模拟 TVDB v4 的 /login 与 /search。
type fakeAPI struct {
	t          *testing.T
	logins     atomic.Int64
	searches   atomic.Int64
	searchCode int // 非 0 时 /search 固定返回该状态码

	mu        sync.Mutex
	lastQuery map[string]string
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		f.logins.Add(1)
		b, _ := io.ReadAll(r.Body)
		var body map[string]string
		require.NoError(f.t, json.Unmarshal(b, &body))
		if body["apikey"] != "good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `{"status":"success","data":{"token":"tok-1"}}`)
	})
	mux.HandleFunc("GET /search", func(w http.ResponseWriter, r *http.Request) {
		f.searches.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.searchCode != 0 {
			w.WriteHeader(f.searchCode)
			return
		}
		f.mu.Lock()
		f.lastQuery = map[string]string{
			"q":    r.URL.Query().Get("q"),
			"type": r.URL.Query().Get("type"),
			"year": r.URL.Query().Get("year"),
		}
		f.mu.Unlock()
		io.WriteString(w, `{"status":"success","data":[
			{"tvdb_id":"121361","name":"Game of Thrones","year":"2011"},
			{"tvdb_id":"999","name":"Game of Thrones: The Last Watch","year":""}
		]}`)
	})
	return mux
}

func newTestProvider(t *testing.T, f *fakeAPI, key string) *Provider {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return NewWithBaseURL(key, srv.URL, srv.Client())
}

func TestSearchLogsInOnceAndMapsResults(t *testing.T) {
	f := &fakeAPI{t: t}
	p := newTestProvider(t, f, "good-key")

	got, err := p.Search(context.Background(), domain.KindTV, "Game of Thrones", 0)
	require.NoError(t, err)
	require.Equal(t, []providerx.Candidate{
		{Name: "Game of Thrones", ID: "121361", Year: 2011},
		{Name: "Game of Thrones: The Last Watch", ID: "999", Year: 0},
	}, got)

	// 第二次搜索复用 token，不再登录。
	_, err = p.Search(context.Background(), domain.KindTV, "Game of Thrones", 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), f.logins.Load())
	require.Equal(t, int64(2), f.searches.Load())
}

func TestSearchQueryParams(t *testing.T) {
	f := &fakeAPI{t: t}
	p := newTestProvider(t, f, "good-key")

	_, err := p.Search(context.Background(), domain.KindMovie, "Blade Runner", 1982)
	require.NoError(t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Equal(t, "Blade Runner", f.lastQuery["q"])
	require.Equal(t, "movie", f.lastQuery["type"])
	require.Equal(t, "1982", f.lastQuery["year"])
}

func TestSearchNoYearParamWhenUnknown(t *testing.T) {
	f := &fakeAPI{t: t}
	p := newTestProvider(t, f, "good-key")

	_, err := p.Search(context.Background(), domain.KindTV, "Foo", 0)
	require.NoError(t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Equal(t, "series", f.lastQuery["type"])
	require.Empty(t, f.lastQuery["year"])
}

func TestLoginRejectedSurfacesHTTPStatus(t *testing.T) {
	f := &fakeAPI{t: t}
	p := newTestProvider(t, f, "bad-key")

	_, err := p.Search(context.Background(), domain.KindTV, "Foo", 0)
	var se *providerx.HTTPStatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusUnauthorized, se.StatusCode)
}

func TestExpiredTokenInvalidatedForNextCall(t *testing.T) {
	f := &fakeAPI{t: t}
	p := newTestProvider(t, f, "good-key")

	// 先正常拿到 token。
	_, err := p.Search(context.Background(), domain.KindTV, "Foo", 0)
	require.NoError(t, err)

	// 手工作废：下一次 /search 会带无效 token → 401 → token 清空。
	p.mu.Lock()
	p.token = "stale"
	p.mu.Unlock()
	_, err = p.Search(context.Background(), domain.KindTV, "Foo", 0)
	var se *providerx.HTTPStatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusUnauthorized, se.StatusCode)

	// 再下一次会重新登录并成功。
	_, err = p.Search(context.Background(), domain.KindTV, "Foo", 0)
	require.NoError(t, err)
	require.Equal(t, int64(2), f.logins.Load())
}

func TestSearchServerErrorSurfacesHTTPStatus(t *testing.T) {
	f := &fakeAPI{t: t, searchCode: http.StatusServiceUnavailable}
	p := newTestProvider(t, f, "good-key")

	_, err := p.Search(context.Background(), domain.KindTV, "Foo", 0)
	var se *providerx.HTTPStatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
}

func TestSearchRejectsUnknownKind(t *testing.T) {
	f := &fakeAPI{t: t}
	p := newTestProvider(t, f, "good-key")

	_, err := p.Search(context.Background(), domain.Kind("radio"), "Foo", 0)
	require.Error(t, err)
	require.Equal(t, int64(0), f.logins.Load())
}
