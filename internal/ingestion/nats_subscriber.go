package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// NATSSubscriber subscribes to NATS JetStream subjects and feeds commands
// into the engine via the command channel. JetStream is the primary
// high-throughput ingestion surface; the HTTP API is for admin operations
// and manual injection.
type NATSSubscriber struct {
	js        jetstream.JetStream
	inputChan chan<- RawCommand
	consumers []jetstream.ConsumeContext
	logger    zerolog.Logger
}

// RawCommand is the parsed-but-untyped command from NATS, ready for the
// shell to validate and convert into a typed command.Command before
// sending to the engine.
type RawCommand struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // Call to ACK the NATS message after successful processing
	NakFunc   func() // Call to NAK on failure (will be redelivered)
}

// SubjectConfig maps NATS subjects to command types.
type SubjectConfig struct {
	Subject      string
	CommandType  string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject configuration. Each command
// type has its own subject so consumers scale independently; producers
// append a product or vault id as the final token.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "dcs.admin.product.create.>", CommandType: "CreateProduct", ConsumerName: "dcs-product-create", StreamName: "DCS_ADMIN"},
		{Subject: "dcs.admin.vault.create.>", CommandType: "CreateVault", ConsumerName: "dcs-vault-create", StreamName: "DCS_ADMIN"},
		{Subject: "dcs.admin.vault.status.>", CommandType: "SetVaultStatus", ConsumerName: "dcs-vault-status", StreamName: "DCS_ADMIN"},
		{Subject: "dcs.admin.vault.settlement.>", CommandType: "SetSettlementStatus", ConsumerName: "dcs-settlement-status", StreamName: "DCS_ADMIN"},
		{Subject: "dcs.admin.vault.payoff.>", CommandType: "SetPayoffDenomination", ConsumerName: "dcs-payoff", StreamName: "DCS_ADMIN"},
		{Subject: "dcs.admin.price.override.>", CommandType: "OverridePrice", ConsumerName: "dcs-price-override", StreamName: "DCS_ADMIN"},
		{Subject: "dcs.deposits.queue.>", CommandType: "QueueDeposit", ConsumerName: "dcs-deposit-queue", StreamName: "DCS_DEPOSITS"},
		{Subject: "dcs.deposits.open.>", CommandType: "OpenDeposits", ConsumerName: "dcs-deposit-open", StreamName: "DCS_DEPOSITS"},
		{Subject: "dcs.deposits.process.>", CommandType: "ProcessDepositQueue", ConsumerName: "dcs-deposit-process", StreamName: "DCS_DEPOSITS"},
		{Subject: "dcs.trades.auction.end.>", CommandType: "EndAuction", ConsumerName: "dcs-auction-end", StreamName: "DCS_TRADES"},
		{Subject: "dcs.trades.start.>", CommandType: "StartTrade", ConsumerName: "dcs-trade-start", StreamName: "DCS_TRADES"},
		{Subject: "dcs.trades.expiry.>", CommandType: "CheckTradeExpiry", ConsumerName: "dcs-trade-expiry", StreamName: "DCS_TRADES"},
		{Subject: "dcs.settlement.default.>", CommandType: "CheckSettlementDefault", ConsumerName: "dcs-settle-default", StreamName: "DCS_SETTLEMENT"},
		{Subject: "dcs.settlement.settle.>", CommandType: "SettleVault", ConsumerName: "dcs-settle", StreamName: "DCS_SETTLEMENT"},
		{Subject: "dcs.settlement.fees.>", CommandType: "CollectFees", ConsumerName: "dcs-fees", StreamName: "DCS_SETTLEMENT"},
		{Subject: "dcs.withdrawals.queue.>", CommandType: "QueueWithdrawal", ConsumerName: "dcs-wd-queue", StreamName: "DCS_WITHDRAWALS"},
		{Subject: "dcs.withdrawals.process.>", CommandType: "ProcessWithdrawalQueue", ConsumerName: "dcs-wd-process", StreamName: "DCS_WITHDRAWALS"},
		{Subject: "dcs.withdrawals.rollover.>", CommandType: "RolloverVault", ConsumerName: "dcs-rollover", StreamName: "DCS_WITHDRAWALS"},
		{Subject: "dcs.disputes.raise.>", CommandType: "DisputeVault", ConsumerName: "dcs-dispute-raise", StreamName: "DCS_DISPUTES"},
		{Subject: "dcs.disputes.process.>", CommandType: "ProcessDispute", ConsumerName: "dcs-dispute-process", StreamName: "DCS_DISPUTES"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, inputChan chan<- RawCommand, logger zerolog.Logger) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		inputChan: inputChan,
		logger:    logger,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawCommand{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.inputChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		ns.logger.Info().
			Str("subject", cfg.Subject).
			Str("consumer", cfg.ConsumerName).
			Msg("subscribed")
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, logger zerolog.Logger) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "DCS_ADMIN",
			Subjects:  []string{"dcs.admin.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "DCS_DEPOSITS",
			Subjects:  []string{"dcs.deposits.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "DCS_TRADES",
			Subjects:  []string{"dcs.trades.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "DCS_SETTLEMENT",
			Subjects:  []string{"dcs.settlement.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "DCS_WITHDRAWALS",
			Subjects:  []string{"dcs.withdrawals.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "DCS_DISPUTES",
			Subjects:  []string{"dcs.disputes.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		logger.Info().Str("stream", cfg.Name).Msg("ensured stream")
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.logger.Info().Msg("NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
