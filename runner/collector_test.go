package runner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unitbridge/unitbridge/types"
)

func discoveredMsg(id, name string) types.DiscoveryMessage {
	return types.DiscoveryMessage{
		Kind:       types.DiscoveryTestCase,
		Descriptor: types.TestCaseDescriptor{ID: id, Name: name},
	}
}

func completeMsg() types.DiscoveryMessage {
	return types.DiscoveryMessage{Kind: types.DiscoveryComplete}
}

func TestCollectorPreservesArrivalOrder(t *testing.T) {
	c := NewCollector(nil)

	assert.False(t, c.Visit(discoveredMsg("b", "B")))
	assert.False(t, c.Visit(discoveredMsg("a", "A")))
	assert.False(t, c.Visit(discoveredMsg("c", "C")))
	assert.True(t, c.Visit(completeMsg()))

	result := c.Result()
	require.Len(t, result, 3)
	assert.Equal(t, "b", result[0].ID)
	assert.Equal(t, "a", result[1].ID)
	assert.Equal(t, "c", result[2].ID)
}

func TestCollectorAppliesPredicate(t *testing.T) {
	c := NewCollector(func(d types.TestCaseDescriptor) bool {
		return d.ID != "skipme"
	})

	c.Visit(discoveredMsg("keep1", "Keep1"))
	c.Visit(discoveredMsg("skipme", "Skip"))
	c.Visit(discoveredMsg("keep2", "Keep2"))
	c.Visit(completeMsg())

	result := c.Result()
	require.Len(t, result, 2)
	assert.Equal(t, "keep1", result[0].ID)
	assert.Equal(t, "keep2", result[1].ID)
}

func TestCollectorIgnoresMessagesAfterCompletion(t *testing.T) {
	c := NewCollector(nil)
	c.Visit(discoveredMsg("a", "A"))
	c.Visit(completeMsg())

	assert.True(t, c.Visit(discoveredMsg("late", "Late")))
	assert.Len(t, c.Result(), 1)
	assert.True(t, c.Done())
}

func TestCollectorEmptyStream(t *testing.T) {
	c := NewCollector(nil)
	assert.True(t, c.Visit(completeMsg()))
	assert.Empty(t, c.Result())
}

func TestCollectBlocksUntilDiscoveryComplete(t *testing.T) {
	messages := make(chan types.DiscoveryMessage)
	done := make(chan []types.TestCaseDescriptor)

	go func() {
		done <- Collect(messages, nil)
	}()

	messages <- discoveredMsg("a", "A")
	messages <- discoveredMsg("b", "B")

	select {
	case <-done:
		t.Fatal("Collect returned before DiscoveryComplete")
	case <-time.After(20 * time.Millisecond):
	}

	messages <- completeMsg()

	select {
	case result := <-done:
		require.Len(t, result, 2)
		assert.Equal(t, "a", result[0].ID)
		assert.Equal(t, "b", result[1].ID)
	case <-time.After(time.Second):
		t.Fatal("Collect did not return after DiscoveryComplete")
	}
}

func TestCollectReturnsOnClosedChannel(t *testing.T) {
	messages := make(chan types.DiscoveryMessage, 2)
	messages <- discoveredMsg("a", "A")
	close(messages)

	result := Collect(messages, nil)
	require.Len(t, result, 1)
	assert.Equal(t, "a", result[0].ID)
}
