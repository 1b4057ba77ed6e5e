// Package slack imports the Slack Web API component implementations,
// registering them with the service environment.
package slack

import (
	// Import the Slack component implementations.
	_ "github.com/catfoxtech/slack-connect/internal/impl/slack"
)
