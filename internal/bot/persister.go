package bot

import (
	"github.com/rs/zerolog"

	"github.com/nidoux/keet/internal/conversation"
)

// persister applies intermediate-message appends for one orchestration run.
// The agent loop hands messages over without waiting, but a single drain
// goroutine applies them strictly in the order they were produced. close
// flushes everything before the event handler finishes, so no scheduled
// append is lost. Persistence failures are logged and dropped, never
// retried: a missing intermediate message degrades later context but must
// not abort a run that already produced an answer.
type persister struct {
	ch   chan conversation.Message
	done chan struct{}
}

func newPersister(convo *conversation.Manager, userID string, logger zerolog.Logger) *persister {
	p := &persister{
		ch:   make(chan conversation.Message, 16),
		done: make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		for msg := range p.ch {
			if err := convo.Append(userID, msg); err != nil {
				logger.Error().Err(err).Msg("failed to persist intermediate message")
			}
		}
	}()
	return p
}

func (p *persister) enqueue(msg conversation.Message) {
	p.ch <- msg
}

func (p *persister) close() {
	close(p.ch)
	<-p.done
}
