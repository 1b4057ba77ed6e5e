package slack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redpanda-data/benthos/v4/public/bloblang"
	"github.com/redpanda-data/benthos/v4/public/service"
)

func newTestEscapeProcessor(t *testing.T, yaml string) *escapeProcessor {
	t.Helper()

	conf, err := escapeProcessorConfigSpec().ParseYAML(yaml, nil)
	require.NoError(t, err)

	proc, err := newEscapeProcessor(conf)
	require.NoError(t, err)
	return proc
}

func TestEscapeContent(t *testing.T) {
	proc := newTestEscapeProcessor(t, `{}`)

	batch, err := proc.Process(t.Context(), service.NewMessage([]byte("<a & b>")))
	require.NoError(t, err)
	require.Len(t, batch, 1)

	res, err := batch[0].AsBytes()
	require.NoError(t, err)
	assert.Equal(t, "&lt;a &amp; b&gt;", string(res))
}

func TestEscapeEmptyPassthrough(t *testing.T) {
	proc := newTestEscapeProcessor(t, `{}`)

	batch, err := proc.Process(t.Context(), service.NewMessage(nil))
	require.NoError(t, err)
	require.Len(t, batch, 1)

	res, err := batch[0].AsBytes()
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestEscapeInterpolatedSourceToMeta(t *testing.T) {
	proc := newTestEscapeProcessor(t, `
value: '${! json("text") }'
result_meta_key: escaped
`)

	batch, err := proc.Process(t.Context(), service.NewMessage([]byte(`{"text":"a < b"}`)))
	require.NoError(t, err)
	require.Len(t, batch, 1)

	escaped, exists := batch[0].MetaGetMut("escaped")
	require.True(t, exists)
	assert.Equal(t, "a &lt; b", escaped)

	res, err := batch[0].AsBytes()
	require.NoError(t, err)
	assert.Equal(t, `{"text":"a < b"}`, string(res))
}

func TestEscapeAbsentFieldPassthrough(t *testing.T) {
	proc := newTestEscapeProcessor(t, `value: '${! json("text").or("") }'`)

	batch, err := proc.Process(t.Context(), service.NewMessage([]byte(`{"other":1}`)))
	require.NoError(t, err)
	require.Len(t, batch, 1)

	res, err := batch[0].AsBytes()
	require.NoError(t, err)
	assert.Equal(t, `{"other":1}`, string(res))
}

func TestEscapeBloblangMethod(t *testing.T) {
	exec, err := bloblang.Parse(`root = this.text.slack_escape()`)
	require.NoError(t, err)

	res, err := exec.Query(map[string]any{"text": "<a & b>"})
	require.NoError(t, err)
	assert.Equal(t, "&lt;a &amp; b&gt;", res)
}
