package slack

import (
	"context"
	"fmt"

	"github.com/slack-go/slack/slackutilsx"

	"github.com/redpanda-data/benthos/v4/public/service"
)

func escapeProcessorConfigSpec() *service.ConfigSpec {
	return service.NewConfigSpec().
		Categories("Services", "Social").
		Summary("Escapes text for inclusion in Slack messages.").
		Description(`
Replaces the Slack control characters `+"`&`, `<` and `>`"+` of the source
string with their HTML entities, per the
https://api.slack.com/reference/surfaces/formatting#escaping[Slack formatting rules^].
An absent or empty source value passes the message through unchanged.

The same transformation is available as the Bloblang method
`+"`slack_escape`"+` for use within mappings.`).
		Fields(
			service.NewInterpolatedStringField("value").
				Description("The string to escape. When unset the raw payload of the message is escaped in place.").
				Optional().
				Example(`${! json("text") }`),
			service.NewStringField("result_meta_key").
				Description("An optional metadata key to store the escaped string under, leaving the payload untouched. When unset the escaped string replaces the payload.").
				Optional(),
		)
}

func init() {
	err := service.RegisterProcessor(
		"slack_escape", escapeProcessorConfigSpec(),
		func(conf *service.ParsedConfig, _ *service.Resources) (service.Processor, error) {
			return newEscapeProcessor(conf)
		},
	)
	if err != nil {
		panic(err)
	}
}

type escapeProcessor struct {
	value   *service.InterpolatedString
	metaKey string
}

func newEscapeProcessor(conf *service.ParsedConfig) (*escapeProcessor, error) {
	p := &escapeProcessor{}

	var err error
	if conf.Contains("value") {
		if p.value, err = conf.FieldInterpolatedString("value"); err != nil {
			return nil, err
		}
	}
	if conf.Contains("result_meta_key") {
		if p.metaKey, err = conf.FieldString("result_meta_key"); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *escapeProcessor) Process(_ context.Context, msg *service.Message) (service.MessageBatch, error) {
	source, err := p.sourceValue(msg)
	if err != nil {
		return nil, err
	}
	if source == "" {
		return service.MessageBatch{msg}, nil
	}

	escaped := slackutilsx.EscapeMessage(source)
	if p.metaKey != "" {
		msg.MetaSetMut(p.metaKey, escaped)
	} else {
		msg.SetBytes([]byte(escaped))
	}
	return service.MessageBatch{msg}, nil
}

func (p *escapeProcessor) sourceValue(msg *service.Message) (string, error) {
	if p.value != nil {
		s, err := p.value.TryString(msg)
		if err != nil {
			return "", fmt.Errorf("failed to evaluate value expression: %w", err)
		}
		return s, nil
	}
	raw, err := msg.AsBytes()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (*escapeProcessor) Close(context.Context) error { return nil }
