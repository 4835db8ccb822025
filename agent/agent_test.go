package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testIdentity() Identity {
	return Identity{
		ID:                 "agent-a",
		Role:               "reviewer",
		Specialties:        []string{"go", "security"},
		SystemPrompt:       "you are a careful reviewer",
		PriorityKeywords:   []string{"urgent", "production down"},
		InterruptThreshold: 50,
	}
}

func TestSpeakReturnsModelResponse(t *testing.T) {
	a := New(testIdentity(), &StubModel{Reply: "looks good"})

	resp, err := a.Speak(context.Background(), "review this diff", nil)
	require.NoError(t, err)
	require.Equal(t, "looks good", resp)
}

func TestSpeakRecordsResponseTime(t *testing.T) {
	a := New(testIdentity(), &StubModel{
		Fn: func(ctx context.Context, systemPrompt, prompt string, history []Turn) (string, error) {
			time.Sleep(5 * time.Millisecond)
			return "ok", nil
		},
	})

	_, err := a.Speak(context.Background(), "x", nil)
	require.NoError(t, err)
	require.Greater(t, a.MeanResponseTime(), time.Duration(0))
}

func TestSpeakPropagatesModelError(t *testing.T) {
	wantErr := errors.New("model unavailable")
	a := New(testIdentity(), &StubModel{Err: wantErr})

	_, err := a.Speak(context.Background(), "x", nil)
	require.ErrorIs(t, err, wantErr)
}

func TestAdjustReputationClampsToUnitRange(t *testing.T) {
	a := New(testIdentity(), &StubModel{})

	a.AdjustReputation(-10)
	require.Equal(t, 0.0, a.Reputation())

	a.AdjustReputation(10)
	require.Equal(t, 1.0, a.Reputation())
}

func TestHasPriorityKeywordIsCaseInsensitive(t *testing.T) {
	a := New(testIdentity(), &StubModel{})
	require.True(t, a.HasPriorityKeyword("this is URGENT, please help"))
	require.False(t, a.HasPriorityKeyword("just a routine update"))
}

func TestMeanResponseTimeWindowIsBounded(t *testing.T) {
	a := New(testIdentity(), &StubModel{Reply: "ok"})
	for i := 0; i < maxResponseSamples+10; i++ {
		a.recordResponseTime(time.Millisecond)
	}
	require.Len(t, a.responseTimes, maxResponseSamples)
}
