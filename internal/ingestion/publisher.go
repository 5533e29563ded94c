package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"DCSLedger/internal/engine"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// OutboundPublisher publishes applied operations to NATS for downstream
// consumers (auction services, treasury reconciliation, dashboards).
// Subjects follow the pattern: dcs.ledger.ops.{command_type}[.{vault_id}]
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan engine.Output
	logger    zerolog.Logger
}

// publishedOp is the outbound wire form of one applied operation.
type publishedOp struct {
	Sequence       int64           `json:"sequence"`
	CommandType    string          `json:"command_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	VaultID        *string         `json:"vault_id,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	StateHash      []byte          `json:"state_hash"`
	Timestamp      int64           `json:"ts"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan engine.Output, logger zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		logger:    logger,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, output); err != nil {
				// Non-fatal: downstream consumers can query the op log directly.
				op.logger.Warn().
					Err(err).
					Int64("sequence", output.Envelope.Sequence).
					Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, output engine.Output) error {
	env := output.Envelope

	msg := publishedOp{
		Sequence:       env.Sequence,
		CommandType:    env.CommandType.String(),
		IdempotencyKey: env.IdempotencyKey,
		Payload:        env.Payload,
		StateHash:      env.StateHash[:],
		Timestamp:      env.Timestamp,
	}

	subject := fmt.Sprintf("dcs.ledger.ops.%s", env.CommandType)
	if env.VaultID != nil {
		id := env.VaultID.String()
		msg.VaultID = &id
		subject = fmt.Sprintf("%s.%s", subject, id)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal operation: %w", err)
	}

	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound operations stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream, logger zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "DCS_LEDGER_OPS",
		Subjects:  []string{"dcs.ledger.ops.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	logger.Info().Str("stream", "DCS_LEDGER_OPS").Msg("ensured outbound stream")
	return nil
}
