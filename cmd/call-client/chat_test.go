package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consultline/internal/domain"
)

func TestFormatMessage(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local)

	mine := domain.Message{Sender: domain.Sender{ID: "u1"}, Content: "hi", CreatedAt: at}
	assert.Equal(t, "[09:30] you: hi", formatMessage(mine, "u1"))

	theirs := domain.Message{Sender: domain.Sender{ID: "c1", Name: "Dr. Lee"}, Content: "hello", CreatedAt: at}
	assert.Equal(t, "[09:30] Dr. Lee: hello", formatMessage(theirs, "u1"))

	log := domain.Message{Sender: domain.Sender{ID: "u1"}, Content: "Voice call ended (01:02)", MessageType: domain.MessageTypeCallLog, CreatedAt: at}
	assert.Equal(t, "[09:30] -- Voice call ended (01:02) --", formatMessage(log, "u1"))
}

func TestIsEmoji(t *testing.T) {
	assert.True(t, isEmoji("👍"))
	assert.True(t, isEmoji("❤️"))
	assert.False(t, isEmoji("ok 👍"))
	assert.False(t, isEmoji("hello"))
}

func TestTranscript_PrintsBackfillAboveLiveMessages(t *testing.T) {
	var buf bytes.Buffer
	out := newTranscript(&console{out: &buf}, "u1")
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local)
	msg := func(id, content string, offset time.Duration) domain.Message {
		return domain.Message{ID: id, Sender: domain.Sender{ID: "c1", Name: "Dr. Lee"}, Content: content, CreatedAt: at.Add(offset)}
	}

	live := []domain.Message{msg("m3", "three", 3*time.Minute)}
	out.flush(live)

	backfilled := append([]domain.Message{msg("m1", "one", time.Minute), msg("m2", "two", 2*time.Minute)}, live...)
	out.printOlder(backfilled, 2)
	// the update raised by the backfill must not print anything twice
	out.flush(backfilled)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, []string{
		"[09:33] Dr. Lee: three",
		"-- earlier messages --",
		"[09:31] Dr. Lee: one",
		"[09:32] Dr. Lee: two",
		"-- end of earlier messages --",
	}, lines)
}

func TestTranscript_PrintOlderWithNothingLoaded(t *testing.T) {
	var buf bytes.Buffer
	out := newTranscript(&console{out: &buf}, "u1")

	out.printOlder(nil, 3)
	out.printOlder([]domain.Message{{ID: "m1"}}, 0)

	assert.Empty(t, buf.String())
}
