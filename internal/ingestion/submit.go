package ingestion

import (
	"context"
	"strings"

	"DCSLedger/internal/command"
)

// Request carries one typed command toward the engine goroutine. Reply is
// optional: the HTTP path waits on it for the applied sequence, the NATS
// path instead passes Ack/Nak callbacks.
type Request struct {
	Cmd   command.Command
	Reply chan<- Result
	Ack   func()
	Nak   func()

	// Barrier, when set with a nil Cmd, runs on the engine goroutine
	// between commands. Used for snapshot capture.
	Barrier func()
}

// Result is the engine's answer for one submitted command.
type Result struct {
	Sequence int64
	Err      error
}

// Submitter offers synchronous command submission over the engine's input
// channel. Used by the HTTP API for admin operations and manual injection;
// high-throughput producers go through NATS.
type Submitter struct {
	commandChan chan<- Request
}

func NewSubmitter(commandChan chan<- Request) *Submitter {
	return &Submitter{commandChan: commandChan}
}

// Submit queues the command and waits for the engine's verdict.
func (s *Submitter) Submit(ctx context.Context, cmd command.Command) (int64, error) {
	reply := make(chan Result, 1)

	select {
	case s.commandChan <- Request{Cmd: cmd, Reply: reply}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case res := <-reply:
		return res.Sequence, res.Err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// CommandTypeForSubject resolves a concrete NATS subject to its command
// type using the configured subject table. Returns "" when nothing matches.
func CommandTypeForSubject(subject string, subjects []SubjectConfig) string {
	for _, cfg := range subjects {
		prefix := strings.TrimSuffix(cfg.Subject, ">")
		if strings.HasPrefix(subject, prefix) {
			return cfg.CommandType
		}
	}
	return ""
}
