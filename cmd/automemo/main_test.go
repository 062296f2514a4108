package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(viper.New())
	root.SetOut(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func TestBench(t *testing.T) {
	out := run(t, "bench", "--calls", "1000", "--arg", "41")
	assert.Contains(t, out, "result=42 calls=1000 invocations=1")
	assert.Contains(t, out, `automemo_lookups_total{memo=bench,result=hit,tier=a} 999`)
}

func TestBench_SingleFlight(t *testing.T) {
	out := run(t, "--single-flight", "--shards", "2", "bench", "--calls", "10")
	assert.Contains(t, out, "invocations=1")
}

func TestBench_Env(t *testing.T) {
	t.Setenv("AUTOMEMO_BENCH_CALLS", "7")
	out := run(t, "bench")
	assert.Contains(t, out, "calls=7 invocations=1")
}

func TestBench_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "automemo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("automemo:\n  bench:\n    calls: 3\n    arg: 1\n"), 0o600))

	out := run(t, "--config", path, "bench")
	assert.Contains(t, out, "result=2 calls=3 invocations=1")
}

func TestBench_NegativeCalls(t *testing.T) {
	root := newRootCmd(viper.New())
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"bench", "--calls", "-1"})
	assert.ErrorIs(t, root.Execute(), errNegativeCalls)
}

func TestChurn(t *testing.T) {
	out := run(t, "churn", "--keys", "500", "--settle", "5s")
	assert.Contains(t, out, "keys=500 ")
	assert.Contains(t, out, "drained=true")
}
