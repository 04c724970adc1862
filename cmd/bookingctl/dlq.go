package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dreamscape/service-voyage/pkg/events"
	"github.com/dreamscape/service-voyage/pkg/kafka"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const replayGroupSuffix = "bookingctl-dlq-replay"

func dlqCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and replay dead-lettered payment events",
	}
	cmd.PersistentFlags().IntP("limit", "n", 50, "Maximum messages to read (0 for all)")
	cmd.PersistentFlags().Duration("idle", 10*time.Second, "Stop reading after this long without a message")

	list := &cobra.Command{
		Use:   "list",
		Short: "Print dead-lettered events with their failure headers",
		Args:  cobra.NoArgs,
		RunE:  runDLQList,
	}
	list.Flags().BoolP("json", "j", false, "Output as JSON")
	cmd.AddCommand(list)

	replay := &cobra.Command{
		Use:   "replay",
		Short: "Re-publish dead-lettered events to their original topic",
		Long: `Re-publish dead-lettered events to their original topic.

Replayed messages are committed in a dedicated consumer group, so running
replay twice does not publish the same dead letter twice.`,
		Args: cobra.NoArgs,
		RunE: runDLQReplay,
	}
	replay.Flags().Bool("dry-run", false, "show what would be replayed without publishing")
	cmd.AddCommand(replay)

	return cmd
}

func runDLQList(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadEnv()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	limit, _ := cmd.Flags().GetInt("limit")
	idle, _ := cmd.Flags().GetDuration("idle")
	asJSON, _ := cmd.Flags().GetBool("json")

	// A throwaway group reads from the start without moving any real offsets.
	groupID := cfg.KafkaConfig.GroupPrefix + "bookingctl-dlq-list-" + uuid.NewString()
	reader := kafka.NewDeadLetterReader(cfg.KafkaConfig.Brokers, cfg.KafkaConfig.DLQTopic, groupID)
	defer func() { _ = reader.Close() }()

	letters, err := reader.Read(cmd.Context(), limit, idle)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", cfg.KafkaConfig.DLQTopic, err)
	}

	if asJSON {
		return writeDeadLettersJSON(cmd.OutOrStdout(), letters)
	}
	return writeDeadLettersTable(cmd.OutOrStdout(), letters)
}

func runDLQReplay(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadEnv()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	limit, _ := cmd.Flags().GetInt("limit")
	idle, _ := cmd.Flags().GetDuration("idle")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	reader := kafka.NewDeadLetterReader(cfg.KafkaConfig.Brokers, cfg.KafkaConfig.DLQTopic,
		cfg.KafkaConfig.GroupPrefix+replayGroupSuffix)
	defer func() { _ = reader.Close() }()

	letters, err := reader.Read(cmd.Context(), limit, idle)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", cfg.KafkaConfig.DLQTopic, err)
	}
	if len(letters) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no dead letters to replay")
		return nil
	}

	if dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "dry run: %d dead letters would be replayed\n", len(letters))
		return writeDeadLettersTable(cmd.OutOrStdout(), letters)
	}

	producer := kafka.NewProducer(cfg.KafkaConfig.Brokers, log)
	defer func() { _ = producer.Close() }()

	replayed, err := replay(cmd.Context(), producer, reader, letters, log)
	fmt.Fprintf(cmd.OutOrStdout(), "replayed %d of %d dead letters\n", replayed, len(letters))
	return err
}

// replay re-publishes letters one by one and commits each after it was written.
func replay(ctx context.Context, producer *kafka.Producer, reader *kafka.DeadLetterReader, letters []kafka.DeadLetter, log *zap.Logger) (int, error) {
	for i, d := range letters {
		msg := d.ReplayMessage(events.TopicPaymentEvents)
		if err := producer.WriteMessages(ctx, msg); err != nil {
			return i, fmt.Errorf("failed to replay offset %d: %w", d.Message.Offset, err)
		}
		if err := reader.Commit(ctx, d); err != nil {
			return i + 1, fmt.Errorf("replayed offset %d but failed to commit it: %w", d.Message.Offset, err)
		}
		log.Info("dead letter replayed",
			zap.Int64("dlq_offset", d.Message.Offset),
			zap.String("topic", msg.Topic),
			zap.String("event_type", d.EventType()),
		)
	}
	return len(letters), nil
}

type deadLetterView struct {
	Offset         int64           `json:"offset"`
	Key            string          `json:"key"`
	EventType      string          `json:"event_type"`
	Error          string          `json:"error"`
	Attempts       int             `json:"attempts"`
	OriginalTopic  string          `json:"original_topic"`
	OriginalOffset int64           `json:"original_offset"`
	FailedAt       time.Time       `json:"failed_at"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

func toView(d kafka.DeadLetter) deadLetterView {
	v := deadLetterView{
		Offset:         d.Message.Offset,
		Key:            string(d.Message.Key),
		EventType:      d.EventType(),
		Error:          d.Error,
		Attempts:       d.Attempts,
		OriginalTopic:  d.OriginalTopic,
		OriginalOffset: d.OriginalOffset,
		FailedAt:       d.FailedAt,
	}
	if json.Valid(d.Message.Value) {
		v.Payload = d.Message.Value
	}
	return v
}

func writeDeadLettersJSON(w io.Writer, letters []kafka.DeadLetter) error {
	views := make([]deadLetterView, len(letters))
	for i, d := range letters {
		views[i] = toView(d)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(views)
}

func writeDeadLettersTable(w io.Writer, letters []kafka.DeadLetter) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OFFSET\tKEY\tTYPE\tATTEMPTS\tFAILED AT\tERROR")
	for _, d := range letters {
		failedAt := "-"
		if !d.FailedAt.IsZero() {
			failedAt = d.FailedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
			d.Message.Offset, d.Message.Key, d.EventType(), d.Attempts, failedAt, d.Error)
	}
	return tw.Flush()
}
