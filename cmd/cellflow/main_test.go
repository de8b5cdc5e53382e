// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code.hybscloud.com/cellflow"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		cellflow.SetLogger(nil)
		require.NoError(t, cellflow.Configure(cellflow.DefaultConfig()))
	})
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDemos(t *testing.T) {
	cases := map[string][]string{
		"for-loop":   {"[[1] [3] [6] [10]]", "a:       Dense(float32(1,): [10])"},
		"while-loop": {"a: Dense(float32(1,): [7])", "b: Dense(float32(1,): [6])"},
		"cond":       {"pred=true a=Dense(float32(2,): [1 1]) b=Dense(float32(2,): [1 1])", "pred=false a=Dense(float32(2,): [1 1]) b=Dense(float32(2,): [0 0])"},
		"ifelse":     {"a=1 -> 4", "a=3 -> 3", "a=7 -> 2", "a=11 -> 1"},
	}
	for name, want := range cases {
		for _, extra := range [][]string{nil, {"--no-jit"}} {
			t.Run(name, func(t *testing.T) {
				out, err := run(t, append([]string{"demo", name}, extra...)...)
				require.NoError(t, err)
				for _, w := range want {
					assert.Contains(t, out, w)
				}
			})
		}
	}
}

func TestDemoRejectsUnknown(t *testing.T) {
	_, err := run(t, "demo", "fibonacci")
	assert.Error(t, err)
	_, err = run(t, "demo")
	assert.Error(t, err)
}

func TestConfigCommand(t *testing.T) {
	out, err := run(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "unroll: 1")
	assert.Contains(t, out, "disable_jit: false")

	path := filepath.Join(t.TempDir(), "cellflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("unroll: 3\n"), 0o600))
	out, err = run(t, "--config", path, "--no-jit", "config")
	require.NoError(t, err)
	assert.Contains(t, out, "unroll: 3")
	assert.Contains(t, out, "disable_jit: true")
}

func TestBadLogLevel(t *testing.T) {
	_, err := run(t, "--log-level", "chatty", "config")
	assert.Error(t, err)
}
