package slack

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/redpanda-data/benthos/v4/public/bloblang"
	"github.com/redpanda-data/benthos/v4/public/service"
)

const (
	// Metadata keys correlating the pages of one paginated invocation.
	metaGroupID    = "slack_group_id"
	metaGroupIndex = "slack_group_index"
	metaGroupCount = "slack_group_count"
	metaGroupLast  = "slack_group_last"
)

func apiProcessorConfigSpec() *service.ConfigSpec {
	return service.NewConfigSpec().
		Categories("Services", "Social").
		Summary("Invokes an arbitrary Slack Web API method with the message payload as call options.").
		Description(`
The structured payload of each message is used as the options of one call
to the configured https://api.slack.com/methods[Slack Web API method^].
An empty payload invokes the method with no options. Non-scalar option
values are JSON-encoded before submission, following the convention of
the official Slack clients.

Responses with `+"`ok: false`"+` are emitted with the error flag set, so
they can be routed with standard error handling patterns, whereas
transport failures abort the invocation entirely.

When `+"`paginate`"+` is set the method is called repeatedly following the
cursor convention (`+"`response_metadata.next_cursor`"+`), and each page is
emitted as one message of the resulting batch with the metadata fields
`+"`slack_group_id`, `slack_group_index`, `slack_group_count`"+` and
`+"`slack_group_last`"+` correlating the pages of the invocation.`).
		Example(
			"Post a message",
			"Sends the payload of each message as chat.postMessage options.",
			`
pipeline:
  processors:
    - slack_api:
        token: "${SLACK_BOT_TOKEN}"
        method: chat.postMessage
`).
		Example(
			"Paginate a member list",
			"Fetches every page of a conversation's members, stopping early once an empty page is seen.",
			`
pipeline:
  processors:
    - slack_api:
        token: "${SLACK_BOT_TOKEN}"
        method: conversations.members
        paginate: true
        page_limit: 200
        stop_on: 'this.members.length() == 0'
`).
		Fields(clientFields()...).
		Fields(
			service.NewStringField("method").
				Description("The name of the Slack Web API method to invoke.").
				Example("chat.postMessage").
				Example("conversations.history"),
			service.NewBoolField("paginate").
				Description("Whether to follow response cursors and emit every page of the result.").
				Default(false),
			service.NewIntField("page_limit").
				Description("The page size requested during paginated invocations, applied as the `limit` option when the payload does not set one.").
				Default(100).
				Advanced(),
			service.NewBloblangField("stop_on").
				Description("An optional Bloblang query evaluated against each fetched page, halting pagination early when it resolves to `true`.").
				Optional().
				Example(`this.messages.any(m -> m.ts < "1700000000.000000")`),
		)
}

func init() {
	err := service.RegisterProcessor(
		"slack_api", apiProcessorConfigSpec(),
		func(conf *service.ParsedConfig, mgr *service.Resources) (service.Processor, error) {
			return newAPIProcessor(conf, mgr)
		},
	)
	if err != nil {
		panic(err)
	}
}

type apiProcessor struct {
	client     *handle
	releaseFn  func()
	log        *service.Logger
	method     string
	paginate   bool
	pageLimit  int
	stopQuery  *bloblang.Executor
	mSuccesses *service.MetricCounter
	mAPIErrors *service.MetricCounter
	mReqErrors *service.MetricCounter
}

func newAPIProcessor(conf *service.ParsedConfig, mgr *service.Resources) (*apiProcessor, error) {
	p := &apiProcessor{
		log:        mgr.Logger(),
		mSuccesses: mgr.Metrics().NewCounter("slack_api_success"),
		mAPIErrors: mgr.Metrics().NewCounter("slack_api_api_error"),
		mReqErrors: mgr.Metrics().NewCounter("slack_api_request_error"),
	}

	var err error
	if p.client, p.releaseFn, err = clientFromParsed(conf, mgr); err != nil {
		return nil, err
	}
	if p.method, err = conf.FieldString("method"); err != nil {
		return nil, err
	}
	if p.paginate, err = conf.FieldBool("paginate"); err != nil {
		return nil, err
	}
	if p.pageLimit, err = conf.FieldInt("page_limit"); err != nil {
		return nil, err
	}
	if conf.Contains("stop_on") {
		if p.stopQuery, err = conf.FieldBloblang("stop_on"); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *apiProcessor) Process(ctx context.Context, msg *service.Message) (service.MessageBatch, error) {
	opts, err := optionsFromMessage(msg)
	if err != nil {
		p.mReqErrors.Incr(1)
		return nil, err
	}

	if !p.paginate {
		return p.processSingle(ctx, msg, opts)
	}
	return p.processPaginated(ctx, msg, opts)
}

func (p *apiProcessor) processSingle(ctx context.Context, msg *service.Message, opts map[string]any) (service.MessageBatch, error) {
	page, err := p.client.caller.call(ctx, p.method, opts)
	if err != nil {
		p.mReqErrors.Incr(1)
		return nil, err
	}

	out := msg.Copy()
	out.SetStructuredMut(page)
	if !pageOK(page) {
		p.mAPIErrors.Incr(1)
		out.SetError(fmt.Errorf("slack api method %v failed: %v", p.method, pageError(page)))
	} else {
		p.mSuccesses.Incr(1)
	}
	return service.MessageBatch{out}, nil
}

func (p *apiProcessor) processPaginated(ctx context.Context, msg *service.Message, opts map[string]any) (service.MessageBatch, error) {
	if _, exists := opts["limit"]; !exists {
		opts["limit"] = p.pageLimit
	}

	var pages []map[string]any
	allOK, firstErr := true, ""

	for {
		page, err := p.client.caller.call(ctx, p.method, opts)
		if err != nil {
			// Abort the whole invocation; pages fetched so far are
			// intentionally discarded rather than emitted partially.
			p.mReqErrors.Incr(1)
			return nil, err
		}
		pages = append(pages, page)

		if ok := pageOK(page); !ok {
			allOK = false
			if firstErr == "" {
				firstErr = pageError(page)
			}
		}

		stop, err := p.shouldStop(page)
		if err != nil {
			p.mReqErrors.Incr(1)
			return nil, err
		}
		cursor := pageCursor(page)
		if stop || cursor == "" {
			break
		}
		opts["cursor"] = cursor
	}

	groupID := uuid.NewString()
	count := len(pages)

	batch := make(service.MessageBatch, 0, count)
	for i, page := range pages {
		out := msg.Copy()
		out.SetStructuredMut(page)
		out.MetaSetMut(metaGroupID, groupID)
		out.MetaSetMut(metaGroupIndex, i)
		out.MetaSetMut(metaGroupCount, count)
		out.MetaSetMut(metaGroupLast, i == count-1)
		if !allOK {
			out.SetError(fmt.Errorf("slack api method %v failed: %v", p.method, firstErr))
		}
		batch = append(batch, out)
	}

	if allOK {
		p.mSuccesses.Incr(1)
	} else {
		p.mAPIErrors.Incr(1)
	}
	p.log.Debugf("Fetched %v pages of %v", count, p.method)
	return batch, nil
}

func (p *apiProcessor) shouldStop(page map[string]any) (bool, error) {
	if p.stopQuery == nil {
		return false, nil
	}
	pageMsg := service.NewMessage(nil)
	pageMsg.SetStructuredMut(page)
	res, err := pageMsg.BloblangQuery(p.stopQuery)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate stop_on query: %w", err)
	}
	if res == nil {
		return false, nil
	}
	v, err := res.AsStructured()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate stop_on query: %w", err)
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("stop_on query must resolve to a boolean, got %T", v)
	}
}

func (p *apiProcessor) Close(context.Context) error {
	if p.releaseFn != nil {
		p.releaseFn()
		p.releaseFn = nil
	}
	return nil
}

// optionsFromMessage interprets the structured payload as method call
// options, defaulting to no options for an empty payload.
func optionsFromMessage(msg *service.Message) (map[string]any, error) {
	raw, err := msg.AsBytes()
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}

	structured, err := msg.AsStructured()
	if err != nil {
		return nil, fmt.Errorf("failed to parse message payload as call options: %w", err)
	}
	obj, ok := structured.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("message payload must be an object to be used as call options, got %T", structured)
	}

	opts := make(map[string]any, len(obj))
	for k, v := range obj {
		opts[k] = v
	}
	return opts, nil
}
