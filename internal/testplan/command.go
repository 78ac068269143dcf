package testplan

import (
	"context"

	"testrig/internal/platform"
	"testrig/pkg/logging"
)

// CommandTest builds a test case that runs one shell command over the
// environment's control channel. The command's combined output is logged;
// a non-zero exit fails the test.
func CommandTest(id, name, command string) TestCase {
	return TestCase{
		ID:   id,
		Name: name,
		Run: func(ctx context.Context, ch platform.ControlChannel) error {
			output, err := ch.Run(ctx, command)
			if output != "" {
				logging.Info("Test", "%s: %s", id, output)
			}
			return err
		},
	}
}
