package slack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redpanda-data/benthos/v4/public/service"
)

func TestHandleRegistrySharesByToken(t *testing.T) {
	log := service.MockResources().Logger()

	h1, done1 := globalHandles.get("xoxb-shared", defaultAPIURL, log)
	h2, done2 := globalHandles.get("xoxb-shared", defaultAPIURL, log)
	h3, done3 := globalHandles.get("xoxb-other", defaultAPIURL, log)

	assert.Same(t, h1, h2)
	assert.NotSame(t, h1, h3)

	done1()
	done2()
	done3()

	// Fully released handles are rebuilt on the next acquisition.
	h4, done4 := globalHandles.get("xoxb-shared", defaultAPIURL, log)
	defer done4()
	assert.NotSame(t, h1, h4)
}

func TestClientFromParsedNormalizesURL(t *testing.T) {
	conf, err := service.NewConfigSpec().Fields(clientFields()...).ParseYAML(`
token: xoxb-test
api_url: http://example.com/api
`, nil)
	require.NoError(t, err)

	h, done, err := clientFromParsed(conf, service.MockResources())
	require.NoError(t, err)
	defer done()

	assert.Equal(t, "http://example.com/api/", h.caller.apiURL)
}
