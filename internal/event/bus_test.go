package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDelivers(t *testing.T) {
	b := NewBus()
	_, ch := b.Subscribe("ui.update")

	b.Publish("ui.update")

	select {
	case <-ch:
	default:
		t.Fatal("expected a signal")
	}
}

func TestPublishCoalesces(t *testing.T) {
	b := NewBus()
	_, ch := b.Subscribe("ui.update")

	// A burst while the subscriber is idle collapses into one pending
	// signal; publish never blocks.
	for i := 0; i < 10; i++ {
		b.Publish("ui.update")
	}

	<-ch
	select {
	case <-ch:
		t.Fatal("burst should coalesce into a single signal")
	default:
	}
}

func TestChannelsAreIndependent(t *testing.T) {
	b := NewBus()
	_, a := b.Subscribe("a")
	_, c := b.Subscribe("c")

	b.Publish("a")

	select {
	case <-a:
	default:
		t.Fatal("subscriber of published channel should be signalled")
	}
	select {
	case <-c:
		t.Fatal("unrelated channel must not be signalled")
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	id, ch := b.Subscribe("a")
	b.Unsubscribe("a", id)

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe must not panic.
	b.Publish("a")
	b.Unsubscribe("a", "unknown-id")
}

func TestChannels(t *testing.T) {
	b := NewBus()
	require.Empty(t, b.Channels())
	id, _ := b.Subscribe("x")
	assert.Equal(t, []string{"x"}, b.Channels())
	b.Unsubscribe("x", id)
	assert.Empty(t, b.Channels())
}
