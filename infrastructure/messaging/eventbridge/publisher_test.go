package eventbridge

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-staging/domain/staging"
)

type fakeEventBridge struct {
	calls [][]int // entry counts per PutEvents call
	fail  bool
}

func (f *fakeEventBridge) PutEvents(_ context.Context, params *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.calls = append(f.calls, []int{len(params.Entries)})
	if f.fail {
		return nil, fmt.Errorf("throttled")
	}
	return &eventbridge.PutEventsOutput{FailedEntryCount: 0}, nil
}

func makeEvents(n int) []staging.Event {
	events := make([]staging.Event, n)
	for i := range events {
		events[i] = staging.Event{
			Type: staging.EventChangeAdded,
			Data: map[string]string{"nodeId": fmt.Sprintf("n%d", i)},
		}
	}
	return events
}

func TestPublisher_Publish_BatchesToLimit(t *testing.T) {
	client := &fakeEventBridge{}
	pub := NewPublisher(client, "staging-events", nil)

	require.NoError(t, pub.Publish(context.Background(), makeEvents(23)))

	require.Len(t, client.calls, 3)
	assert.Equal(t, 10, client.calls[0][0])
	assert.Equal(t, 10, client.calls[1][0])
	assert.Equal(t, 3, client.calls[2][0])
}

func TestPublisher_Publish_EmptyIsNoOp(t *testing.T) {
	client := &fakeEventBridge{}
	pub := NewPublisher(client, "staging-events", nil)

	require.NoError(t, pub.Publish(context.Background(), nil))
	assert.Empty(t, client.calls)
}

func TestPublisher_Publish_PropagatesClientError(t *testing.T) {
	client := &fakeEventBridge{fail: true}
	pub := NewPublisher(client, "staging-events", nil)

	err := pub.Publish(context.Background(), makeEvents(1))
	assert.Error(t, err)
}

func TestPublisher_EntryShape(t *testing.T) {
	var captured *eventbridge.PutEventsInput
	client := &captureEventBridge{capture: &captured}
	pub := NewPublisher(client, "staging-events", nil)

	require.NoError(t, pub.Publish(context.Background(), []staging.Event{{
		Type: staging.EventDeletionTracked,
		Data: map[string]string{"nodeId": "grp-1"},
	}}))

	require.NotNil(t, captured)
	require.Len(t, captured.Entries, 1)
	entry := captured.Entries[0]
	assert.Equal(t, "staging-events", aws.ToString(entry.EventBusName))
	assert.Equal(t, Source, aws.ToString(entry.Source))
	assert.Equal(t, string(staging.EventDeletionTracked), aws.ToString(entry.DetailType))
	assert.Contains(t, aws.ToString(entry.Detail), "grp-1")
}

type captureEventBridge struct {
	capture **eventbridge.PutEventsInput
}

func (c *captureEventBridge) PutEvents(_ context.Context, params *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	*c.capture = params
	return &eventbridge.PutEventsOutput{}, nil
}
