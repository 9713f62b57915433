package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_FanOut(t *testing.T) {
	b := NewBus()
	a, cancelA := b.Subscribe(4)
	defer cancelA()
	c, cancelC := b.Subscribe(4)
	defer cancelC()

	dropped := b.Publish(Outcome{ID: "1", ActionID: "x", Trigger: TriggerImmediate})
	assert.Equal(t, 0, dropped)

	for _, ch := range []<-chan Outcome{a, c} {
		o := <-ch
		assert.Equal(t, "1", o.ID)
		assert.Equal(t, TriggerImmediate, o.Trigger)
	}
}

func TestBus_FullSubscriberMisses(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(1)
	defer cancel()

	assert.Equal(t, 0, b.Publish(Outcome{ID: "1"}))
	assert.Equal(t, 1, b.Publish(Outcome{ID: "2"}), "publish never blocks on a full subscriber")
	assert.Equal(t, "1", (<-ch).ID)
}

func TestBus_CancelAndClose(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(1)
	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok, "cancel closes the channel")

	other, cancelOther := b.Subscribe(1)
	b.Close()
	b.Close()
	_, ok = <-other
	assert.False(t, ok, "close ends every subscription")
	cancelOther()

	late, _ := b.Subscribe(1)
	_, ok = <-late
	require.False(t, ok, "subscribing after close yields a closed channel")
	assert.Equal(t, 0, b.Publish(Outcome{ID: "3"}))
}
