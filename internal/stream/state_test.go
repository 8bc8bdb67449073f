package stream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnStateJSON(t *testing.T) {
	for st := Unconfigured; st <= Errored; st++ {
		b, err := json.Marshal(st)
		require.NoError(t, err)

		var got ConnState
		require.NoError(t, json.Unmarshal(b, &got))
		require.Equal(t, st, got)
	}
	require.JSONEq(t, `"error"`, mustJSON(t, Errored))

	var st ConnState
	require.Error(t, json.Unmarshal([]byte(`"sleeping"`), &st))
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
