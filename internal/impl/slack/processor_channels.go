package slack

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"

	"github.com/redpanda-data/benthos/v4/public/service"
)

func channelsProcessorConfigSpec() *service.ConfigSpec {
	return service.NewConfigSpec().
		Categories("Services", "Social").
		Summary("Resolves Slack channel and user references into concrete IDs.").
		Description(`
Takes a comma-separated list of channel references and resolves each of
them against the workspace directory: `+"`#name`"+` references resolve to
the ID of the public or private channel of that name, `+"`@name`"+`
references resolve to the ID of the user of that name, and anything
starting with `+"`C`, `G` or `D`"+`, or otherwise unmatched, passes
through unchanged. References naming channels or users absent from the
directory are dropped from the result.

When `+"`group_conversations`"+` is set and every resolved entry is a user
ID, a direct or multi-party conversation is opened among those users and
its channel ID is returned instead of the joined list.

The directory is scanned in full on every resolution by default, which
can be expensive on large workspaces; set `+"`cache_ttl`"+` to reuse the
lookup tables for a bounded period instead.`).
		Example(
			"Resolve recipients from the payload",
			"Reads the references from a field of the message and stores the result in a metadata field.",
			`
pipeline:
  processors:
    - slack_channels:
        token: "${SLACK_BOT_TOKEN}"
        channels: '${! json("recipients") }'
        result_meta_key: slack_channel_id
        cache_ttl: 5m
`).
		Fields(clientFields()...).
		Fields(
			service.NewInterpolatedStringField("channels").
				Description("The channel references to resolve, as a comma-separated list.").
				Example("#general,#ops").
				Example("@alice,@bob").
				Example(`${! json("recipients") }`),
			service.NewBoolField("group_conversations").
				Description("Whether to open a direct or multi-party conversation when every resolved reference is a user ID, returning the conversation's channel ID.").
				Default(false),
			service.NewStringField("result_meta_key").
				Description("An optional metadata key to store the resolved IDs under, leaving the payload untouched. When unset the resolved IDs replace the payload.").
				Optional(),
			service.NewDurationField("cache_ttl").
				Description("For how long the channel and user directories may be reused between resolutions. The default of 0s rescans both directories on every call.").
				Default("0s").
				Advanced(),
		)
}

func init() {
	err := service.RegisterProcessor(
		"slack_channels", channelsProcessorConfigSpec(),
		func(conf *service.ParsedConfig, mgr *service.Resources) (service.Processor, error) {
			return newChannelsProcessor(conf, mgr)
		},
	)
	if err != nil {
		panic(err)
	}
}

// directory holds the two name to ID lookup tables built from full
// paginated listings.
type directory struct {
	channels map[string]string
	users    map[string]string
}

type channelsProcessor struct {
	client    *handle
	releaseFn func()
	log       *service.Logger

	channels  *service.InterpolatedString
	groupConv bool
	metaKey   string
	cacheTTL  time.Duration

	cacheMut     sync.Mutex
	cached       *directory
	cacheExpires time.Time
}

func newChannelsProcessor(conf *service.ParsedConfig, mgr *service.Resources) (*channelsProcessor, error) {
	p := &channelsProcessor{
		log: mgr.Logger(),
	}

	var err error
	if p.client, p.releaseFn, err = clientFromParsed(conf, mgr); err != nil {
		return nil, err
	}
	if p.channels, err = conf.FieldInterpolatedString("channels"); err != nil {
		return nil, err
	}
	if p.groupConv, err = conf.FieldBool("group_conversations"); err != nil {
		return nil, err
	}
	if conf.Contains("result_meta_key") {
		if p.metaKey, err = conf.FieldString("result_meta_key"); err != nil {
			return nil, err
		}
	}
	if p.cacheTTL, err = conf.FieldDuration("cache_ttl"); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *channelsProcessor) Process(ctx context.Context, msg *service.Message) (service.MessageBatch, error) {
	refsStr, err := p.channels.TryString(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate channels expression: %w", err)
	}

	resolved, err := p.resolve(ctx, splitRefs(refsStr))
	if err != nil {
		return nil, err
	}

	if p.metaKey != "" {
		msg.MetaSetMut(p.metaKey, resolved)
	} else {
		msg.SetBytes([]byte(resolved))
	}
	return service.MessageBatch{msg}, nil
}

func (p *channelsProcessor) Close(context.Context) error {
	if p.releaseFn != nil {
		p.releaseFn()
		p.releaseFn = nil
	}
	return nil
}

// splitRefs normalizes a comma-separated reference list, trimming
// whitespace and dropping empty entries.
func splitRefs(s string) []string {
	var refs []string
	for _, ref := range strings.Split(s, ",") {
		if ref = strings.TrimSpace(ref); ref != "" {
			refs = append(refs, ref)
		}
	}
	return refs
}

func (p *channelsProcessor) resolve(ctx context.Context, refs []string) (string, error) {
	// Short-circuit before any directory scan.
	if len(refs) == 0 {
		return "", nil
	}

	dir, err := p.directory(ctx)
	if err != nil {
		return "", err
	}

	var ids []string
	for _, ref := range refs {
		switch {
		case strings.HasPrefix(ref, "#"):
			if id, exists := dir.channels[ref[1:]]; exists {
				ids = append(ids, id)
			}
		case strings.HasPrefix(ref, "@"):
			if id, exists := dir.users[ref[1:]]; exists {
				ids = append(ids, id)
			}
		default:
			ids = append(ids, ref)
		}
	}

	if p.groupConv && len(ids) > 1 && allUserIDs(ids) {
		channel, _, _, err := p.client.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
			Users: ids,
		})
		if err != nil {
			return "", fmt.Errorf("failed to open group conversation: %w", err)
		}
		return channel.ID, nil
	}
	return strings.Join(ids, ","), nil
}

func allUserIDs(ids []string) bool {
	for _, id := range ids {
		if !strings.HasPrefix(id, "U") {
			return false
		}
	}
	return true
}

// directory returns the lookup tables, rebuilding them when no cached
// copy is fresh enough. A TTL of zero disables caching entirely.
func (p *channelsProcessor) directory(ctx context.Context) (*directory, error) {
	if p.cacheTTL <= 0 {
		return p.buildDirectory(ctx)
	}

	p.cacheMut.Lock()
	defer p.cacheMut.Unlock()

	if p.cached != nil && time.Now().Before(p.cacheExpires) {
		return p.cached, nil
	}

	dir, err := p.buildDirectory(ctx)
	if err != nil {
		return nil, err
	}
	p.cached = dir
	p.cacheExpires = time.Now().Add(p.cacheTTL)
	return dir, nil
}

func (p *channelsProcessor) buildDirectory(ctx context.Context) (*directory, error) {
	dir := &directory{
		channels: map[string]string{},
		users:    map[string]string{},
	}

	params := &slack.GetConversationsParameters{
		Types: []string{"public_channel", "private_channel"},
		Limit: 1000,
	}
	for {
		channels, next, err := p.client.api.GetConversationsContext(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("failed to list conversations: %w", err)
		}
		for _, channel := range channels {
			dir.channels[channel.Name] = channel.ID
		}
		if next == "" {
			break
		}
		params.Cursor = next
	}

	users, err := p.client.api.GetUsersContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	for _, user := range users {
		dir.users[user.Name] = user.ID
	}

	p.log.Debugf("Built directory tables with %v channels and %v users", len(dir.channels), len(dir.users))
	return dir, nil
}
