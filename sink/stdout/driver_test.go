package stdout

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchml/sink"
)

func TestDriver_JSONLinesAndBatching(t *testing.T) {
	var buf bytes.Buffer
	a, err := sink.NewAdapter("stdout")
	require.NoError(t, err)
	require.NoError(t, a.Configure(Config{BatchSize: 2, Writer: &buf}))

	require.NoError(t, a.Push(sink.Record{Dataset: "d", Module: "m", Metrics: map[string]float64{"mae": 0.5}}))
	assert.Zero(t, buf.Len(), "first record is buffered")
	require.NoError(t, a.Push(sink.Record{Dataset: "d", Module: "m2"}))
	require.NoError(t, a.Push(sink.Record{Dataset: "d", Module: "m3", Err: "boom"}))
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	var modules []string
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var r sink.Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		modules = append(modules, r.Module)
	}
	assert.Equal(t, []string{"m", "m2", "m3"}, modules)
}

func TestDriver_RejectsWrongConfig(t *testing.T) {
	d := &driver{}
	assert.Error(t, d.Configure(struct{}{}))
	assert.Error(t, d.Push(sink.Record{}))
}
