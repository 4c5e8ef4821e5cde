package mux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanout_DeliversToEverySubscriber(t *testing.T) {
	f := NewFanout[int]()
	a := f.Subscribe(4)
	b := f.Subscribe(4)

	f.Publish(1)
	f.Publish(2)
	f.Close()

	for _, sub := range []*Subscription[int]{a, b} {
		var got []int
		for v := range sub.C() {
			got = append(got, v)
		}
		assert.Equal(t, []int{1, 2}, got)
	}
}

func TestFanout_DropsOldest(t *testing.T) {
	f := NewFanout[int]()
	sub := f.Subscribe(2)

	for i := 1; i <= 4; i++ {
		f.Publish(i)
	}
	assert.Equal(t, uint64(2), sub.Dropped())
	assert.Equal(t, 3, <-sub.C())
	assert.Equal(t, 4, <-sub.C())
}

func TestFanout_CloseSubscription(t *testing.T) {
	f := NewFanout[int]()
	sub := f.Subscribe(1)
	sub.Close()
	sub.Close()

	_, ok := <-sub.C()
	assert.False(t, ok)
	f.Publish(1)
	f.Close()
	sub.Close()
}

func TestFanout_SubscribeAfterClose(t *testing.T) {
	f := NewFanout[string]()
	f.Close()
	f.Close()
	f.Publish("ignored")

	sub := f.Subscribe(1)
	_, ok := <-sub.C()
	require.False(t, ok)
}
