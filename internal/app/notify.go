package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// DefaultTestMessage is sent by notify-test when no message is given.
const DefaultTestMessage = "vault watcher test notification"

// NotifyTest sends message through every configured channel once and reports each result.
func (a *App) NotifyTest(ctx context.Context, message string) error {
	if message == "" {
		message = DefaultTestMessage
	}

	dispatcher := a.newDispatcher(nil)
	if len(dispatcher.Channels()) == 0 {
		return errors.New("no alert channels configured")
	}

	results := dispatcher.DispatchAll(ctx, message)
	channels := make([]string, 0, len(results))
	for name := range results {
		channels = append(channels, name)
	}
	sort.Strings(channels)

	failed := 0
	for _, name := range channels {
		if err := results[name]; err != nil {
			failed++
			fmt.Fprintf(a.Out, "%s: FAILED (%v)\n", name, err)
			continue
		}
		fmt.Fprintf(a.Out, "%s: ok\n", name)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d channels failed", failed, len(channels))
	}
	return nil
}
