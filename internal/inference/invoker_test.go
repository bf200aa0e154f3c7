package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/policy"
	"github.com/sells-group/trust-router/internal/resilience"
	"github.com/sells-group/trust-router/pkg/anthropic"
	"github.com/sells-group/trust-router/pkg/openai"
)

type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

type mockOpenAI struct {
	mock.Mock
}

func (m *mockOpenAI) Complete(ctx context.Context, req openai.CompletionRequest) (*openai.CompletionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*openai.CompletionResponse), args.Error(1)
}

func TestDispatcher_RoutesByProvider(t *testing.T) {
	t.Parallel()

	ac := &mockAnthropic{}
	ac.On("CreateMessage", mock.Anything, mock.MatchedBy(func(r anthropic.MessageRequest) bool {
		return r.Model == policy.DefaultFastModel && r.System != "" && r.MaxTokens > 0
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: `{"claim":"c"}`}},
		Usage:   anthropic.TokenUsage{InputTokens: 12, OutputTokens: 4},
	}, nil)

	oc := &mockOpenAI{}
	oc.On("Complete", mock.Anything, mock.MatchedBy(func(r openai.CompletionRequest) bool {
		return r.Model == policy.DefaultOpenAIModel
	})).Return(&openai.CompletionResponse{Text: "gpt", InputTokens: 3, OutputTokens: 1}, nil)

	d := NewDispatcher(
		NewAnthropicProvider(ac, NewLimiter(0, 0)),
		NewOpenAIProvider(oc, NewLimiter(100, 10)),
	)
	ctx := policy.WithContext(context.Background(), policy.Default())

	resp, err := d.Invoke(ctx, policy.DefaultFastModel, "prompt")
	require.NoError(t, err)
	assert.Equal(t, policy.DefaultFastModel, resp.ModelID)
	assert.Equal(t, `{"claim":"c"}`, resp.Text)
	assert.Equal(t, 12, resp.InputTokens)

	resp, err = d.Invoke(ctx, policy.DefaultOpenAIModel, "prompt")
	require.NoError(t, err)
	assert.Equal(t, "gpt", resp.Text)

	ac.AssertExpectations(t)
	oc.AssertExpectations(t)
}

func TestDispatcher_MissingProvider(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(NewOpenAIProvider(nil, nil))
	_, err := d.Invoke(context.Background(), policy.DefaultFastModel, "prompt")
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrModelUnavailable))
}

func TestAnthropicProvider_DeadlineIsModelTimeout(t *testing.T) {
	t.Parallel()

	ac := &mockAnthropic{}
	ac.On("CreateMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	p := NewAnthropicProvider(ac, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Complete(ctx, Call{ModelID: "m", Prompt: "p", MaxTokens: 8})
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrModelTimeout))
	assert.True(t, resilience.IsRetryable(err))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	bg := context.Background()
	base := errors.New("boom")

	err := classify(bg, base, 529)
	var te *resilience.TransientError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 529, te.StatusCode)

	assert.Equal(t, base, classify(bg, base, 400))
	assert.Equal(t, base, classify(bg, base, 0))

	cancelled, cancel := context.WithCancel(bg)
	cancel()
	err = classify(cancelled, context.Canceled, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, resilience.IsRetryable(err))
}

func TestWait_CancelledContext(t *testing.T) {
	t.Parallel()

	l := NewLimiter(0.001, 1)
	l.Allow() // drain the single token

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := wait(ctx, l)
	assert.ErrorIs(t, err, context.Canceled)
}
