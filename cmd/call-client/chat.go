package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"consultline/internal/domain"
	"consultline/internal/repository/api"
	"consultline/internal/service/chat"
	"consultline/pkg/config"
)

func runChat(ctx context.Context, cfg *config.Config, client *api.Client, con *console, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	with := fs.String("with", "", "user id of the other participant")
	conversationID := fs.String("conversation", "", "conversation id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *conversationID == "" {
		if *with == "" || cfg.API.UserID == "" {
			return fmt.Errorf("either -conversation or -with plus USER_ID is required")
		}
		*conversationID = domain.DirectConversationID(cfg.API.UserID, *with)
	}

	svc := chat.NewService(api.NewChatRepository(client), chat.Config{
		AuthToken:    cfg.API.AuthToken,
		UserID:       cfg.API.UserID,
		PollInterval: cfg.Chat.PollInterval,
		PageSize:     cfg.Chat.PageSize,
		SeenCapacity: cfg.Chat.SeenCapacity,
	})
	defer svc.Close()

	poller, err := svc.Open(ctx, *conversationID)
	if err != nil {
		return err
	}
	if n, err := svc.UnreadCount(ctx); err == nil && n > 0 {
		con.printf("%d unread message(s) in other conversations", n)
	}
	con.printf("Chat %s. Type a message, /older for history, /quit to leave.", *conversationID)

	out := newTranscript(con, cfg.API.UserID)
	out.flush(poller.Messages())

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-poller.Updates():
			out.flush(poller.Messages())

		case line, ok := <-con.lines:
			if !ok {
				return nil
			}
			switch {
			case line == "":
			case line == "/quit":
				return nil
			case line == "/older":
				n, more, err := svc.LoadOlder(ctx)
				if err != nil {
					con.printf("Could not load history: %v", err)
					continue
				}
				out.printOlder(poller.Messages(), n)
				if more {
					con.printf("Loaded %d older message(s)", n)
				} else {
					con.printf("Loaded %d older message(s), no more history", n)
				}
			default:
				msgType := domain.MessageTypeText
				if isEmoji(line) {
					msgType = domain.MessageTypeEmoji
				}
				if _, err := svc.Send(ctx, line, msgType); err != nil {
					con.printf("Not sent: %v", err)
					continue
				}
				out.flush(poller.Messages())
			}
		}
	}
}

// transcript prints each message at most once
type transcript struct {
	con     *console
	userID  string
	printed map[string]bool
}

func newTranscript(con *console, userID string) *transcript {
	return &transcript{con: con, userID: userID, printed: make(map[string]bool)}
}

// flush prints the messages not shown yet, oldest first
func (t *transcript) flush(msgs []domain.Message) {
	for _, m := range msgs {
		t.print(m)
	}
}

// printOlder prints the first n messages, which is where a backfill lands,
// under a separator so they read as history above the live conversation
func (t *transcript) printOlder(msgs []domain.Message, n int) {
	n = min(n, len(msgs))
	if n <= 0 {
		return
	}
	t.con.printf("-- earlier messages --")
	for _, m := range msgs[:n] {
		t.print(m)
	}
	t.con.printf("-- end of earlier messages --")
}

func (t *transcript) print(m domain.Message) {
	if t.printed[m.ID] {
		return
	}
	t.printed[m.ID] = true
	t.con.printf("%s", formatMessage(m, t.userID))
}

func formatMessage(m domain.Message, userID string) string {
	who := m.Sender.Name
	if who == "" {
		who = m.Sender.ID
	}
	if m.IsMine(userID) {
		who = "you"
	}
	stamp := m.CreatedAt.Local().Format("15:04")
	if m.MessageType == domain.MessageTypeCallLog {
		return fmt.Sprintf("[%s] -- %s --", stamp, m.Content)
	}
	return fmt.Sprintf("[%s] %s: %s", stamp, who, m.Content)
}

// isEmoji treats a line made only of runes from U+2000 up as an emoji message
func isEmoji(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return r < 0x2000 }) < 0
}
