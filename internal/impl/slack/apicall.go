package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// apiCaller invokes arbitrary Slack Web API methods by name. The typed
// slack-go client only exposes a fixed method set, so generic
// invocation posts form-encoded requests directly against the method
// endpoints, following the upstream client convention of JSON-encoding
// any non-scalar option value.
type apiCaller struct {
	token      string
	apiURL     string
	httpClient *http.Client
}

func (c *apiCaller) call(ctx context.Context, method string, opts map[string]any) (map[string]any, error) {
	form, err := encodeOptions(opts)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+method, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.token)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("slack api method %v returned status %v", method, res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	var page map[string]any
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to parse slack api response: %w", err)
	}
	return page, nil
}

func encodeOptions(opts map[string]any) (url.Values, error) {
	form := url.Values{}
	for k, v := range opts {
		switch t := v.(type) {
		case nil:
		case string:
			form.Set(k, t)
		case bool:
			form.Set(k, strconv.FormatBool(t))
		case int:
			form.Set(k, strconv.Itoa(t))
		case int64:
			form.Set(k, strconv.FormatInt(t, 10))
		case float64:
			form.Set(k, strconv.FormatFloat(t, 'f', -1, 64))
		case json.Number:
			form.Set(k, t.String())
		default:
			enc, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("failed to encode option %v: %w", k, err)
			}
			form.Set(k, string(enc))
		}
	}
	return form, nil
}

func pageOK(page map[string]any) bool {
	ok, _ := page["ok"].(bool)
	return ok
}

func pageError(page map[string]any) string {
	if s, _ := page["error"].(string); s != "" {
		return s
	}
	return "unknown_error"
}

func pageCursor(page map[string]any) string {
	meta, _ := page["response_metadata"].(map[string]any)
	if meta == nil {
		return ""
	}
	cursor, _ := meta["next_cursor"].(string)
	return cursor
}
