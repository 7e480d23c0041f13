package chat

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"auxroom/internal/proto"
)

type sentCommand struct {
	dest string
	body any
}

func newTestStore() (*Store, *[]sentCommand) {
	sent := &[]sentCommand{}
	store := New(func(dest string, body any) {
		*sent = append(*sent, sentCommand{dest: dest, body: body})
	}, func() string { return "self-token" }, zerolog.Nop())
	return store, sent
}

func chatMsg(id int, userID string) proto.ChatMessage {
	return proto.ChatMessage{
		ID:      fmt.Sprintf("m-%d", id),
		UserID:  userID,
		Content: fmt.Sprintf("message %d", id),
		Type:    proto.MessageChat,
	}
}

func TestUnreadCountsOnlyForeignChatWhileClosed(t *testing.T) {
	store, _ := newTestStore()

	store.AddMessage(chatMsg(1, "other"))
	store.AddMessage(chatMsg(2, "self-token"))
	store.AddMessage(proto.ChatMessage{ID: "s", UserID: proto.SystemUserID, Type: proto.MessageSystem})
	require.Equal(t, 1, store.Unread())

	store.SetOpen(true)
	require.Equal(t, 0, store.Unread())

	// Open panel: nothing accumulates.
	store.AddMessage(chatMsg(3, "other"))
	require.Equal(t, 0, store.Unread())

	store.SetOpen(false)
	store.AddMessage(chatMsg(4, "other"))
	require.Equal(t, 1, store.Unread())
}

func TestTrimOnlyOnCapCrossing(t *testing.T) {
	store, _ := newTestStore()

	for i := 0; i < HardCap; i++ {
		store.AddMessage(chatMsg(i, "other"))
	}
	require.Len(t, store.Messages(), HardCap)

	// One more crosses the cap and trims down to the retain window.
	store.AddMessage(chatMsg(HardCap, "other"))
	messages := store.Messages()
	require.Len(t, messages, RetainWindow)
	require.Equal(t, fmt.Sprintf("m-%d", HardCap), messages[len(messages)-1].ID)

	// The next insert must not trim again.
	store.AddMessage(chatMsg(HardCap+1, "other"))
	require.Len(t, store.Messages(), RetainWindow+1)
}

func TestHistoryPaging(t *testing.T) {
	store, sent := newTestStore()

	full := make([]proto.ChatMessage, PageSize)
	for i := range full {
		full[i] = chatMsg(i, "other")
	}
	store.SetHistory(full)
	require.True(t, store.HasMore(), "a full page implies older history")

	store.LoadMoreHistory()
	require.Len(t, *sent, 1)
	require.Equal(t, proto.DestChatHistoryFetch, (*sent)[0].dest)
	require.Equal(t, map[string]int{"offset": PageSize, "limit": PageSize}, (*sent)[0].body)
	require.True(t, store.Fetching())

	// Duplicate request while in flight is dropped.
	store.LoadMoreHistory()
	require.Len(t, *sent, 1)

	// A short page exhausts history.
	store.PrependHistory(full[:10])
	require.False(t, store.Fetching())
	require.False(t, store.HasMore())
	require.Len(t, store.Messages(), PageSize+10)

	// Exhausted: no further requests go out.
	store.LoadMoreHistory()
	require.Len(t, *sent, 1)
}

func TestEmptyPageExhaustsHistory(t *testing.T) {
	store, _ := newTestStore()
	full := make([]proto.ChatMessage, PageSize)
	for i := range full {
		full[i] = chatMsg(i, "other")
	}
	store.SetHistory(full)
	store.LoadMoreHistory()
	store.PrependHistory(nil)
	require.False(t, store.HasMore())
}

func TestShortInitialHistoryHasNoMore(t *testing.T) {
	store, sent := newTestStore()
	store.SetHistory([]proto.ChatMessage{chatMsg(1, "other")})
	require.False(t, store.HasMore())
	store.LoadMoreHistory()
	require.Empty(t, *sent)
}

func TestOffsetAccountsForTrimmedHead(t *testing.T) {
	store, sent := newTestStore()

	full := make([]proto.ChatMessage, PageSize)
	for i := range full {
		full[i] = chatMsg(i, "other")
	}
	store.SetHistory(full)

	// Live traffic pushes the log over the cap; the trimmed head must
	// still be counted when anchoring the next page request.
	for i := PageSize; i <= HardCap; i++ {
		store.AddMessage(chatMsg(i, "other"))
	}
	trimmed := HardCap + 1 - RetainWindow
	require.Len(t, store.Messages(), RetainWindow)

	store.LoadMoreHistory()
	require.Len(t, *sent, 1)
	require.Equal(t, map[string]int{"offset": trimmed + RetainWindow, "limit": PageSize}, (*sent)[0].body)
}

func TestReset(t *testing.T) {
	store, _ := newTestStore()
	store.AddMessage(chatMsg(1, "other"))
	store.Reset()
	require.Empty(t, store.Messages())
	require.Equal(t, 0, store.Unread())
	require.False(t, store.HasMore())
}
