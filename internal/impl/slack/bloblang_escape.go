package slack

import (
	"github.com/slack-go/slack/slackutilsx"

	"github.com/redpanda-data/benthos/v4/public/bloblang"
)

func init() {
	spec := bloblang.NewPluginSpec().
		Category("String Manipulation").
		Description("Escapes a string for inclusion in Slack message text, replacing the control characters `&`, `<` and `>` with their HTML entities per the https://api.slack.com/reference/surfaces/formatting#escaping[Slack formatting rules^].").
		Example("",
			`root.text = this.text.slack_escape()`,
			[2]string{
				`{"text":"<a & b>"}`,
				`{"text":"&lt;a &amp; b&gt;"}`,
			})

	if err := bloblang.RegisterMethodV2(
		"slack_escape", spec,
		func(*bloblang.ParsedParams) (bloblang.Method, error) {
			return bloblang.StringMethod(func(s string) (any, error) {
				return slackutilsx.EscapeMessage(s), nil
			}), nil
		},
	); err != nil {
		panic(err)
	}
}
