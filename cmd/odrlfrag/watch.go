package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/odrlfrag/internal/events"
	"github.com/alfredjeanlab/odrlfrag/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Print analysis events as they are published",
	GroupID: "store",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.NATSURL == "" {
			return fmt.Errorf("no event bus configured (set nats_url or ODRLFRAG_NATS_URL)")
		}
		topic, _ := cmd.Flags().GetString("topic")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		sub, err := events.NewNATSSubscriber(cfg.NATSURL,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("nats disconnected", "err", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				logger.Info("nats reconnected")
			}),
		)
		if err != nil {
			return err
		}
		defer sub.Close()

		return watchEvents(ctx, sub, topic, cmd.OutOrStdout())
	},
}

func init() {
	watchCmd.Flags().String("topic", events.TopicAll, "subject to subscribe to")
}

// watchEvents prints every event received on topic until ctx is done or
// the subscription closes.
func watchEvents(ctx context.Context, sub events.Subscriber, topic string, w io.Writer) error {
	ch, cancel, err := sub.Subscribe(topic)
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := printEvent(w, msg); err != nil {
				return err
			}
		}
	}
}

// watchedEvent is the structured form of one received event. The payload
// is kept generic so YAML output uses the wire field names.
type watchedEvent struct {
	Topic string `json:"topic" yaml:"topic"`
	Event any    `json:"event" yaml:"event"`
}

func printEvent(w io.Writer, msg events.Message) error {
	ev, err := events.Decode(msg)
	if err != nil {
		logger.Warn("skipping event", "subject", msg.Subject, "err", err)
		return nil
	}
	if jsonOutput || yamlOutput {
		var payload any
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return err
		}
		_, err := printStructured(w, watchedEvent{Topic: msg.Subject, Event: payload})
		return err
	}

	switch e := ev.(type) {
	case *events.AnalysisCompleted:
		_, err = fmt.Fprintf(w, "%s %s %s: %d rules, %d conflicts\n", ui.RenderPass("completed"), e.RunID, e.ProcessID, e.Rules, e.Conflicts)
	case *events.AnalysisFailed:
		stage := ""
		if e.Stage != "" {
			stage = " [" + e.Stage + "]"
		}
		_, err = fmt.Fprintf(w, "%s %s %s%s: %s\n", ui.RenderFail("failed"), e.RunID, e.ProcessID, stage, e.Error)
	case *events.ConflictsDetected:
		_, err = fmt.Fprintf(w, "%s %s %s: %d conflicts\n", ui.RenderWarn("conflicts"), e.RunID, e.ProcessID, len(e.Conflicts))
	}
	return err
}
