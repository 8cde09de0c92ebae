package run

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/mediasort/internal/domain"
)

type recordingObserver struct {
	mu      sync.Mutex
	started []Params
	done    []int
	results []domain.FileResult
}

func (o *recordingObserver) OnStart(p Params) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, p)
}

func (o *recordingObserver) OnFileDone(done int, res domain.FileResult, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.done = append(o.done, done)
	o.results = append(o.results, res)
}

func TestObserverReceivesEvents(t *testing.T) {
	in := seedInput(t)
	obs := &recordingObserver{}
	p := Params{Input: in, Output: filepath.Join(t.TempDir(), "library"), MaxDepth: -1, Action: domain.ActionTest}

	rep := ExecuteWithObserver(context.Background(), testEffective(t), p, testRegistry(t, goodProvider()), zerolog.Nop(), obs)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Equal(t, []Params{p}, obs.started)
	// done 计数单调递增，条目数与 report 一致。
	require.Equal(t, []int{1, 2, 3}, obs.done)
	require.Len(t, obs.results, len(rep.Items))
}

func TestNilObserverIsSafe(t *testing.T) {
	in := seedInput(t)
	rep := ExecuteWithObserver(context.Background(), testEffective(t), Params{
		Input: in, Output: filepath.Join(t.TempDir(), "library"), MaxDepth: -1, Action: domain.ActionTest,
	}, testRegistry(t, goodProvider()), zerolog.Nop(), nil)
	require.Len(t, rep.Items, 3)
}
