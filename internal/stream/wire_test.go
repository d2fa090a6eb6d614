package stream

import (
	"encoding/json"
	"testing"
)

// The server encodes booleans and counters as strings on the chat list
// surface. Normalization has to survive that.
func TestChatListResponseNormalization(t *testing.T) {
	raw := `{
		"responseHeader": {"status": "200", "requestId": "r1"},
		"response": {
			"currentPage": "2",
			"totalPages": "7",
			"groupChats": [{
				"groupId": "g1",
				"groupName": "Trip Planning",
				"type": "group",
				"participantsId": ["alice", "bob"],
				"isPinned": "true",
				"isMuted": "false",
				"messageCount": "42",
				"seenDetails": [{"participantId": "alice", "seenCount": "40", "timestamp": "1700000000000"}],
				"lastMessage": {
					"messageId": "L9",
					"senderId": "bob",
					"senderName": "Bob",
					"text": "see you there",
					"messageType": "text",
					"timestamp": "1700000001000"
				}
			}]
		}
	}`

	var frame wireChatListResponse
	if err := json.Unmarshal([]byte(raw), &frame); err != nil {
		t.Fatal(err)
	}
	snap := frame.toSnapshot()

	if snap.CurrentPage != 2 || snap.TotalPages != 7 {
		t.Errorf("pagination = %d/%d", snap.CurrentPage, snap.TotalPages)
	}
	if len(snap.Chats) != 1 {
		t.Fatalf("got %d chats", len(snap.Chats))
	}
	c := snap.Chats[0]
	if !c.Pinned || c.Muted {
		t.Errorf("string booleans not decoded: pinned=%v muted=%v", c.Pinned, c.Muted)
	}
	if c.MessageCount != 42 {
		t.Errorf("messageCount = %d", c.MessageCount)
	}
	if len(c.SeenDetails) != 1 || c.SeenDetails[0].SeenCount != 40 {
		t.Errorf("seenDetails = %+v", c.SeenDetails)
	}
	if c.LastMessage.Timestamp != 1700000001000 || c.LastMessage.Text != "see you there" {
		t.Errorf("lastMessage = %+v", c.LastMessage)
	}
}

func TestChatListDefaults(t *testing.T) {
	frame := wireChatListResponse{}
	frame.Response.GroupChats = []wireChat{{GroupID: "g1"}}
	snap := frame.toSnapshot()

	c := snap.Chats[0]
	if c.Type != "individual" {
		t.Errorf("type default = %q", c.Type)
	}
	if c.LastMessage.MessageID != "" || c.LastMessage.Timestamp != 0 {
		t.Errorf("absent lastMessage should stay zero: %+v", c.LastMessage)
	}
}

func TestMessageEventNormalization(t *testing.T) {
	raw := `{
		"message": {
			"Id": "srv-1",
			"messageId": "L1",
			"senderId": "alice",
			"content": "hello",
			"automated": false,
			"createdAt": "1700000000000",
			"updatedAt": "1700000000000",
			"multimedia": [{"url": "https://cdn.example/a.png", "mimeType": "image/png", "width": "100", "height": "80"}],
			"replyTo": {"messageId": "L0", "senderId": "bob", "replyTocontent": "hi"}
		}
	}`

	var frame wireMessageEvent
	if err := json.Unmarshal([]byte(raw), &frame); err != nil {
		t.Fatal(err)
	}
	evt := frame.toEvent("c1")

	if evt.Created == nil {
		t.Fatal("created event not set")
	}
	m := evt.Created
	if m.ChatID != "c1" {
		t.Errorf("chat id not filled from subscription: %q", m.ChatID)
	}
	if m.ServerID != "srv-1" || m.LogicalID != "L1" {
		t.Errorf("ids = %s/%s", m.ServerID, m.LogicalID)
	}
	if m.CreatedAt != 1700000000000 {
		t.Errorf("createdAt = %d", m.CreatedAt)
	}
	if len(m.Multimedia) != 1 || m.Multimedia[0].Width != 100 {
		t.Errorf("multimedia = %+v", m.Multimedia)
	}
	if m.ReplyTo == nil || m.ReplyTo.Content != "hi" {
		t.Errorf("replyTo = %+v", m.ReplyTo)
	}
}

func TestPinAndReactionEvents(t *testing.T) {
	var pin wireMessageEvent
	if err := json.Unmarshal([]byte(`{"pinnedMessage": {"messageId": "L1", "isPinned": true}}`), &pin); err != nil {
		t.Fatal(err)
	}
	evt := pin.toEvent("c1")
	if evt.Pinned == nil || !evt.Pinned.Pinned || evt.Pinned.LogicalID != "L1" || evt.Pinned.ChatID != "c1" {
		t.Errorf("pin event = %+v", evt.Pinned)
	}

	var react wireMessageEvent
	if err := json.Unmarshal([]byte(`{"reaction": {"messageId": "L1", "participantId": "bob", "emoji": "🔥", "timestamp": "123"}}`), &react); err != nil {
		t.Fatal(err)
	}
	evt = react.toEvent("c1")
	if evt.Reaction == nil || evt.Reaction.Reaction.Emoji != "🔥" || evt.Reaction.Reaction.Timestamp != 123 {
		t.Errorf("reaction event = %+v", evt.Reaction)
	}
}

func TestBackfillResponseNormalization(t *testing.T) {
	raw := `{
		"groupMessages": [
			{"Id": "srv-1", "messageId": "L1", "chatId": "c1", "content": "a", "createdAt": "100"},
			{"Id": "srv-2", "messageId": "L2", "chatId": "c1", "content": "b", "createdAt": "200"}
		],
		"pinnedMessages": [
			{"Id": "srv-3", "messageId": "L3", "chatId": "c1", "content": "rules", "pinnedBy": "alice", "pinnedAt": "300"}
		]
	}`

	var frame wireBackfillResponse
	if err := json.Unmarshal([]byte(raw), &frame); err != nil {
		t.Fatal(err)
	}
	resp := frame.toResponse()

	if len(resp.Messages) != 2 || resp.Messages[1].LogicalID != "L2" {
		t.Errorf("messages = %+v", resp.Messages)
	}
	if len(resp.Pinned) != 1 {
		t.Fatalf("pinned = %+v", resp.Pinned)
	}
	p := resp.Pinned[0]
	if !p.Pinned || p.PinnedBy != "alice" || p.PinnedAt != 300 {
		t.Errorf("pinned message = %+v", p)
	}
}
