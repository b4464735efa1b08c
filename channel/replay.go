package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oriys/fabric/internal/config"
	"github.com/oriys/fabric/internal/logging"
	"github.com/oriys/fabric/listener"
	"github.com/oriys/fabric/message"
)

// wireReplayListener builds and starts a listener.StoreListener over the
// channel's failure store whose handler retries a failed Replay in process,
// up to cfg.MaxRetries times, sleeping cfg.RetryInterval between attempts
// and threading the freshly-updated Message (accumulating skip state and
// causes) into each subsequent attempt. None of these in-process attempts
// persist to the failure store themselves — the original retrieved entry
// is what the listener's own ack ultimately resolves, so writing fresh
// entries on every intermediate attempt would leave stale duplicates
// behind for later poll cycles to pick up. The underlying listener is built
// with MaxRetries forced to 0: its own retry loop must not also fire, since
// the service above already owns bounded retry; once the service's budget
// is exhausted the handler returns the real error so the listener's
// configured DLQ/drop policy (cfg.DeadLetterStore / DropMessageAfterMaxRetries)
// takes over exactly as it would for any other exhausted message.
func (c *Channel) wireReplayListener(cfg listener.Config) {
	c.replayMu.Lock()
	defer c.replayMu.Unlock()

	maxRetries := cfg.MaxRetries
	retryInterval := cfg.RetryInterval
	if retryInterval <= 0 {
		retryInterval = config.DefaultListener().RetryInterval
	}

	underlying := cfg
	underlying.MaxRetries = 0

	l := listener.New(fmt.Sprintf("%s.replay", c.name), c.failure.Store, underlying)
	_ = l.Attach(func(ctx context.Context, content message.Content) error {
		msg, err := message.FromContent(content)
		if err != nil {
			logging.Op().Error("channel: replay listener received undecodable failure record", "channel", c.name, "error", err)
			return nil // ack (drop): a record we can't decode will never decode.
		}

		var execErr error
		for attempts := 0; ; attempts++ {
			_, execErr = c.replay(ctx, msg, false)
			if execErr == nil {
				return nil
			}
			var ee *ExecutionError
			if errors.As(execErr, &ee) && ee.Message != nil {
				msg = ee.Message
			}
			if attempts >= maxRetries {
				break
			}
			time.Sleep(retryInterval)
		}

		logging.Op().Warn("channel: replay exhausted retries, deferring to listener dead-letter/drop policy", "channel", c.name, "retries", maxRetries, "error", execErr)
		return execErr
	})
	l.Start(context.Background())
	c.replayListener = l
}

// StopReplayListener stops the auto-wired replay listener, if any. Mainly
// useful for tests and graceful process shutdown.
func (c *Channel) StopReplayListener() {
	c.replayMu.Lock()
	l := c.replayListener
	c.replayMu.Unlock()
	if l != nil {
		l.GracefulStop()
	}
}
