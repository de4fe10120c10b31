package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONProcessorDefaults(t *testing.T) {
	doc := `{
		"nodes": [
			{"id": "A", "label": "Alpha", "cluster": 2, "degree": 0.5},
			{"id": "B"},
			{"id": 7, "betweenness": "0.25"}
		],
		"edges": [
			{"source": "A", "target": "B", "strength": 0.5, "rerank": 0.1, "yes": true},
			{"source": "B", "target": 7},
			{"source": "A", "target": "7", "weight": 3},
			{"source": "A", "target": "missing", "strength": "bogus"}
		],
		"metadata": {"generated": "today"}
	}`

	exp, err := NewJSONProcessor().ProcessData([]byte(doc))
	require.NoError(t, err)
	require.Len(t, exp.Nodes, 3)
	require.Len(t, exp.Edges, 4)

	assert.Equal(t, "Alpha", exp.Nodes[0].Label)
	assert.Equal(t, 2, exp.Nodes[0].ClusterID())
	assert.Equal(t, 0.5, exp.Nodes[0].DegreeValue())
	assert.Equal(t, "B", exp.Nodes[1].Label, "label falls back to id")
	assert.Nil(t, exp.Nodes[1].Cluster)
	assert.Equal(t, "7", exp.Nodes[2].ID)
	require.NotNil(t, exp.Nodes[2].Betweenness)
	assert.Equal(t, 0.25, *exp.Nodes[2].Betweenness)

	assert.Equal(t, 0.5, exp.Edges[0].Strength)
	require.NotNil(t, exp.Edges[0].Yes)
	assert.True(t, *exp.Edges[0].Yes)
	assert.Equal(t, 0.0, exp.Edges[1].Strength, "missing strength defaults to zero")
	assert.Equal(t, "7", exp.Edges[1].Target)
	assert.Equal(t, 1.0, exp.Edges[2].Strength, "weight is clamped like strength")
	assert.Equal(t, 0.0, exp.Edges[3].Strength)

	assert.Equal(t, "today", exp.Metadata["generated"])
	assert.Equal(t, int64(len(doc)), exp.Bytes)
}

func TestJSONProcessorInvalid(t *testing.T) {
	_, err := NewJSONProcessor().ProcessData([]byte(`{"nodes": [`))
	assert.ErrorIs(t, err, ErrInvalidExport)

	exp, err := NewJSONProcessor().ProcessData([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, exp.Nodes)
	assert.Empty(t, exp.Edges)
}

func TestCSVProcessor(t *testing.T) {
	data := "Source,Target,Weight\nA,B,0.5\nB,C,not-a-number\nC,A,0.9\nshort\n"
	exp, err := NewCSVProcessor().ProcessData([]byte(data))
	require.NoError(t, err)

	ids := make([]string, 0, len(exp.Nodes))
	for _, n := range exp.Nodes {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"A", "B", "C"}, ids)
	require.Len(t, exp.Edges, 3)
	assert.Equal(t, 0.5, exp.Edges[0].Strength)
	assert.Equal(t, 0.0, exp.Edges[1].Strength)

	_, err = NewCSVProcessor().ProcessData([]byte("a,b\n1,2\n"))
	assert.ErrorIs(t, err, ErrInvalidExport)
}

func TestGetProcessor(t *testing.T) {
	p, err := GetProcessor(".json")
	require.NoError(t, err)
	assert.Equal(t, "JSON Processor", p.GetName())

	p, err = GetProcessor("CSV")
	require.NoError(t, err)
	assert.Equal(t, "CSV Processor", p.GetName())

	_, err = GetProcessor("log")
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"nodes":[{"id":"A"}],"edges":[]}`), 0o644))

	exp, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, exp.Nodes, 1)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"nodes":[{"id":"A"}]}`), 0o644))

	var (
		mu  sync.Mutex
		got []*Export
	)
	w, err := NewWatcher(path, func(e *Export) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	}, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	assert.Len(t, w.Current().Nodes, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte(`{}`), 0o644))
	require.NoError(t, os.WriteFile(path, []byte(`{"nodes":[{"id":"A"},{"id":"B"}]}`), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0 && len(got[len(got)-1].Nodes) == 2
	}, 5*time.Second, 20*time.Millisecond)

	// A broken write keeps the previous document.
	require.NoError(t, os.WriteFile(path, []byte(`{"nodes":`), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Len(t, w.Current().Nodes, 2)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestNewWatcherRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, os.WriteFile(path, []byte(`nope`), 0o644))
	_, err := NewWatcher(path, nil)
	assert.ErrorIs(t, err, ErrInvalidExport)
}
