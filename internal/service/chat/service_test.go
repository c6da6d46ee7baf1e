package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"consultline/internal/domain"
	"consultline/pkg/errors"
)

func newTestService(repo Repository) *Service {
	return NewService(repo, Config{AuthToken: "auth", UserID: "me", PollInterval: time.Hour, PageSize: 2})
}

func TestOpen_LoadsFirstPageOldestFirst(t *testing.T) {
	repo := new(MockRepository)
	repo.On("FetchPage", mock.Anything, "auth", "conv-1", 1, 2).
		Return(&domain.MessagePage{Messages: []domain.Message{msg("m2", "c1", t1), msg("m1", "me", t0)}, HasMore: true}, nil)
	repo.On("MarkRead", mock.Anything, "auth", "conv-1").Return(nil)

	svc := newTestService(repo)
	p, err := svc.Open(context.Background(), "conv-1")
	require.NoError(t, err)
	defer svc.Close()

	got := p.Messages()
	require.Len(t, got, 2)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "m2", got[1].ID)
	assert.True(t, p.Watermark().Equal(t1))
	assert.True(t, p.Running())
	repo.AssertExpectations(t)
}

func TestOpen_SwitchStopsPreviousPoller(t *testing.T) {
	repo := new(MockRepository)
	repo.On("FetchPage", mock.Anything, "auth", mock.Anything, 1, 2).Return(&domain.MessagePage{}, nil)
	repo.On("MarkRead", mock.Anything, "auth", mock.Anything).Return(nil)

	svc := newTestService(repo)
	first, err := svc.Open(context.Background(), "conv-1")
	require.NoError(t, err)
	second, err := svc.Open(context.Background(), "conv-2")
	require.NoError(t, err)

	assert.False(t, first.Running())
	assert.True(t, second.Running())
	assert.Same(t, second, svc.Current())

	svc.Close()
	assert.False(t, second.Running())
	assert.Nil(t, svc.Current())
}

func TestOpen_RequiresConversation(t *testing.T) {
	_, err := newTestService(new(MockRepository)).Open(context.Background(), "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeMissingField))
}

func TestSend_AppearsOnceAfterPollEcho(t *testing.T) {
	repo := new(MockRepository)
	repo.On("FetchPage", mock.Anything, "auth", "conv-1", 1, 2).Return(&domain.MessagePage{}, nil)
	repo.On("MarkRead", mock.Anything, "auth", "conv-1").Return(nil)
	sent := msg("m9", "me", t1)
	repo.On("Send", mock.Anything, "auth", "conv-1", domain.SendMessageRequest{Content: "hi", MessageType: domain.MessageTypeText}).
		Return(&sent, nil)
	repo.On("Poll", mock.Anything, "auth", "conv-1", time.Time{}).
		Return(&domain.PollResult{Messages: []domain.Message{sent}, ServerTime: t1}, nil)

	svc := newTestService(repo)
	p, err := svc.Open(context.Background(), "conv-1")
	require.NoError(t, err)
	defer svc.Close()

	got, err := svc.Send(context.Background(), "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "m9", got.ID)

	_, err = p.Poll(context.Background())
	require.NoError(t, err)
	assert.Len(t, p.Messages(), 1)
}

func TestSend_Validation(t *testing.T) {
	repo := new(MockRepository)
	repo.On("FetchPage", mock.Anything, "auth", "conv-1", 1, 2).Return(&domain.MessagePage{}, nil)
	repo.On("MarkRead", mock.Anything, "auth", "conv-1").Return(nil)

	svc := newTestService(repo)
	_, err := svc.Send(context.Background(), "hi", domain.MessageTypeText)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))

	_, err = svc.Open(context.Background(), "conv-1")
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.Send(context.Background(), "", domain.MessageTypeText)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))

	_, err = svc.Send(context.Background(), strings.Repeat("x", 10001), domain.MessageTypeText)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))

	_, err = svc.Send(context.Background(), "hi", "sticker")
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
	repo.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLoadOlder_PrependsUntilExhausted(t *testing.T) {
	repo := new(MockRepository)
	repo.On("FetchPage", mock.Anything, "auth", "conv-1", 1, 2).
		Return(&domain.MessagePage{Messages: []domain.Message{msg("m4", "c1", t0.Add(4*time.Second)), msg("m3", "c1", t0.Add(3*time.Second))}, HasMore: true}, nil)
	repo.On("FetchPage", mock.Anything, "auth", "conv-1", 2, 2).
		Return(&domain.MessagePage{Messages: []domain.Message{msg("m2", "c1", t0.Add(2*time.Second)), msg("m1", "c1", t0.Add(time.Second))}, HasMore: false}, nil)
	repo.On("MarkRead", mock.Anything, "auth", "conv-1").Return(nil)

	svc := newTestService(repo)
	p, err := svc.Open(context.Background(), "conv-1")
	require.NoError(t, err)
	defer svc.Close()

	added, more, err := svc.LoadOlder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.False(t, more)

	added, more, err = svc.LoadOlder(context.Background())
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.False(t, more)

	ids := []string{}
	for _, m := range p.Messages() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, ids)
	repo.AssertNumberOfCalls(t, "FetchPage", 2)
}

func TestUnreadCount(t *testing.T) {
	repo := new(MockRepository)
	repo.On("UnreadCount", mock.Anything, "auth").Return(4, nil)

	n, err := newTestService(repo).UnreadCount(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 4, n)
}
