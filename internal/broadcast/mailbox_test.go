package broadcast

import (
	"testing"

	"github.com/pscheid92/fanout/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_DeliverAndDrain(t *testing.T) {
	mb := NewMailbox(2)

	require.True(t, mb.Deliver(domain.TextMessage("a")))
	require.True(t, mb.Deliver(domain.BinaryMessage([]byte{1})))
	assert.Equal(t, 2, mb.Len())

	first := <-mb.Messages()
	assert.Equal(t, "a", first.Text())
	second := <-mb.Messages()
	assert.Equal(t, []byte{1}, second.Bytes())
}

func TestMailbox_FullRejectsWithoutBlocking(t *testing.T) {
	mb := NewMailbox(1)

	require.True(t, mb.Deliver(domain.TextMessage("a")))
	assert.False(t, mb.Deliver(domain.TextMessage("b")))
	assert.Equal(t, 1, mb.Len())
}

func TestMailbox_ClosedRejects(t *testing.T) {
	mb := NewMailbox(4)
	mb.Close()

	assert.False(t, mb.Deliver(domain.TextMessage("a")))

	_, ok := <-mb.Messages()
	assert.False(t, ok)
}

func TestMailbox_CloseIdempotent(t *testing.T) {
	mb := NewMailbox(4)
	assert.NotPanics(t, func() {
		mb.Close()
		mb.Close()
	})
}

func TestMailbox_CloseKeepsBufferedMessages(t *testing.T) {
	mb := NewMailbox(4)
	require.True(t, mb.Deliver(domain.TextMessage("pending")))
	mb.Close()
	assert.Equal(t, 1, mb.Len(), "unsent messages are still counted after close")

	msg, ok := <-mb.Messages()
	require.True(t, ok)
	assert.Equal(t, "pending", msg.Text())

	_, ok = <-mb.Messages()
	assert.False(t, ok)
}

func TestNewMailbox_MinimumSize(t *testing.T) {
	mb := NewMailbox(0)
	assert.True(t, mb.Deliver(domain.TextMessage("a")))
}
