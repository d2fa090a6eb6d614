package stream

import (
	"strconv"

	"github.com/yarsha/chatsync/internal/store"
)

// The server serializes most scalars as strings, booleans included. These
// types mirror that encoding exactly; everything downstream works with the
// normalized event types instead.

type wireRequestHeader struct {
	RequestID   string `json:"requestId"`
	DeviceID    string `json:"deviceId"`
	DeviceModel string `json:"deviceModel"`
	Timestamp   string `json:"timestamp"`
}

type wireResponseHeader struct {
	Status              string `json:"status"`
	StatusCode          string `json:"statusCode"`
	Timestamp           string `json:"timestamp"`
	RequestID           string `json:"requestId"`
	ResponseTitle       string `json:"responseTitle"`
	ResponseDescription string `json:"responseDescription"`
}

type wireChatListRequest struct {
	RequestHeader wireRequestHeader `json:"requestHeader"`
}

type wireChatListResponse struct {
	ResponseHeader wireResponseHeader `json:"responseHeader"`
	Response       struct {
		GroupChats  []wireChat `json:"groupChats"`
		CurrentPage string     `json:"currentPage"`
		TotalPages  string     `json:"totalPages"`
	} `json:"response"`
}

type wireChat struct {
	GroupID         string           `json:"groupId"`
	GroupName       string           `json:"groupName"`
	Type            string           `json:"type"`
	GroupIcon       string           `json:"groupIcon"`
	ParticipantsID  []string         `json:"participantsId"`
	IsPinned        string           `json:"isPinned"`
	IsMuted         string           `json:"isMuted"`
	BackgroundColor string           `json:"backgroundColor"`
	SeenDetails     []wireSeenDetail `json:"seenDetails"`
	LastMessage     *wireLastMessage `json:"lastMessage"`
	MessageCount    string           `json:"messageCount"`
	UpdatedAt       string           `json:"updatedAt"`
}

type wireSeenDetail struct {
	ParticipantID string `json:"participantId"`
	SeenCount     string `json:"seenCount"`
	Timestamp     string `json:"timestamp"`
}

type wireLastMessage struct {
	MessageID   string `json:"messageId"`
	SenderID    string `json:"senderId"`
	SenderName  string `json:"senderName"`
	Text        string `json:"text"`
	MessageType string `json:"messageType"`
	Timestamp   string `json:"timestamp"`
}

type wireSubscribeRequest struct {
	ChatID string `json:"chatId"`
}

type wireMessageEvent struct {
	Message         *wireMessage  `json:"message"`
	PinnedMessage   *wirePin      `json:"pinnedMessage"`
	UnpinnedMessage *wirePin      `json:"unpinnedMessage"`
	Reaction        *wireReaction `json:"reaction"`
}

type wireMessage struct {
	ID                  string           `json:"Id"`
	MessageID           string           `json:"messageId"`
	ChatID              string           `json:"chatId"`
	SenderID            string           `json:"senderId"`
	Content             string           `json:"content"`
	Automated           bool             `json:"automated"`
	IsPinned            bool             `json:"isPinned"`
	Multimedia          []wireMultimedia `json:"multimedia"`
	ReplyTo             *wireReplyRef    `json:"replyTo"`
	Reactions           []wireReaction   `json:"reactions"`
	PreparedTransaction string           `json:"preparedTransaction"`
	CreatedAt           string           `json:"createdAt"`
	UpdatedAt           string           `json:"updatedAt"`
}

type wireMultimedia struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Name     string `json:"name"`
	Width    string `json:"width"`
	Height   string `json:"height"`
	Size     string `json:"size"`
}

type wireReplyRef struct {
	MessageID      string `json:"messageId"`
	SenderID       string `json:"senderId"`
	ReplyToContent string `json:"replyTocontent"`
}

type wireReaction struct {
	MessageID     string `json:"messageId"`
	ParticipantID string `json:"participantId"`
	Emoji         string `json:"emoji"`
	Timestamp     string `json:"timestamp"`
}

type wirePin struct {
	MessageID string `json:"messageId"`
	IsPinned  bool   `json:"isPinned"`
}

type wireBackfillRequest struct {
	RequestHeader wireRequestHeader `json:"requestHeader"`
	Body          struct {
		ChatID    string `json:"chatId"`
		Timestamp string `json:"timestamp,omitempty"`
		Limit     int    `json:"limit,omitempty"`
		Direction string `json:"direction"`
	} `json:"body"`
}

type wireBackfillResponse struct {
	ResponseHeader wireResponseHeader  `json:"responseHeader"`
	GroupMessages  []wireMessage       `json:"groupMessages"`
	PinnedMessages []wirePinnedMessage `json:"pinnedMessages"`
}

type wirePinnedMessage struct {
	wireMessage
	PinnedBy string `json:"pinnedBy"`
	PinnedAt string `json:"pinnedAt"`
}

type wireSendRequest struct {
	RequestHeader wireRequestHeader `json:"requestHeader"`
	Body          struct {
		ChatID     string           `json:"chatId"`
		MessageID  string           `json:"messageId"`
		SenderID   string           `json:"senderId"`
		Content    string           `json:"content"`
		Multimedia []wireMultimedia `json:"multimedia,omitempty"`
		ReplyTo    *wireReplyRef    `json:"replyTo,omitempty"`
	} `json:"body"`
}

type wireSendResponse struct {
	ResponseHeader wireResponseHeader `json:"responseHeader"`
	Response       struct {
		ID        string `json:"Id"`
		Timestamp string `json:"timestamp"`
	} `json:"response"`
}

type wireTogglePinRequest struct {
	RequestHeader wireRequestHeader `json:"requestHeader"`
	Body          struct {
		ChatID   string `json:"chatId"`
		IsPinned string `json:"isPinned"`
	} `json:"body"`
}

type wireTogglePinResponse struct {
	ResponseHeader wireResponseHeader `json:"responseHeader"`
}

func wireBool(s string) bool {
	return s == "true" || s == "1"
}

func wireInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func wireInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func (r *wireChatListResponse) toSnapshot() *ChatSnapshot {
	snap := &ChatSnapshot{
		CurrentPage: wireInt(r.Response.CurrentPage),
		TotalPages:  wireInt(r.Response.TotalPages),
	}
	for _, c := range r.Response.GroupChats {
		snap.Chats = append(snap.Chats, c.toChat())
	}
	return snap
}

func (c *wireChat) toChat() SnapshotChat {
	sc := SnapshotChat{
		ChatID:          c.GroupID,
		Name:            c.GroupName,
		Icon:            c.GroupIcon,
		Type:            c.Type,
		Participants:    c.ParticipantsID,
		Pinned:          wireBool(c.IsPinned),
		Muted:           wireBool(c.IsMuted),
		BackgroundColor: c.BackgroundColor,
		MessageCount:    wireInt(c.MessageCount),
	}
	if sc.Type == "" {
		sc.Type = store.ChatIndividual
	}
	for _, s := range c.SeenDetails {
		sc.SeenDetails = append(sc.SeenDetails, store.SeenDetail{
			ParticipantID: s.ParticipantID,
			SeenCount:     wireInt(s.SeenCount),
			Timestamp:     wireInt64(s.Timestamp),
		})
	}
	if lm := c.LastMessage; lm != nil {
		sc.LastMessage = store.LastMessage{
			MessageID:  lm.MessageID,
			SenderID:   lm.SenderID,
			SenderName: lm.SenderName,
			Text:       lm.Text,
			Type:       lm.MessageType,
			Timestamp:  wireInt64(lm.Timestamp),
		}
		if sc.LastMessage.Type == "" {
			sc.LastMessage.Type = store.TypeText
		}
	}
	return sc
}

func (m *wireMessage) toIncoming() *IncomingMessage {
	in := &IncomingMessage{
		ServerID:            m.ID,
		ChatID:              m.ChatID,
		SenderID:            m.SenderID,
		LogicalID:           m.MessageID,
		Content:             m.Content,
		Automated:           m.Automated,
		Pinned:              m.IsPinned,
		PreparedTransaction: m.PreparedTransaction,
		CreatedAt:           wireInt64(m.CreatedAt),
		UpdatedAt:           wireInt64(m.UpdatedAt),
	}
	for _, mm := range m.Multimedia {
		in.Multimedia = append(in.Multimedia, store.Multimedia{
			URL:      mm.URL,
			MimeType: mm.MimeType,
			Name:     mm.Name,
			Width:    wireInt(mm.Width),
			Height:   wireInt(mm.Height),
			Size:     wireInt64(mm.Size),
		})
	}
	if m.ReplyTo != nil && m.ReplyTo.MessageID != "" {
		in.ReplyTo = &store.ReplyRef{
			MessageID: m.ReplyTo.MessageID,
			SenderID:  m.ReplyTo.SenderID,
			Content:   m.ReplyTo.ReplyToContent,
		}
	}
	for _, r := range m.Reactions {
		in.Reactions = append(in.Reactions, store.Reaction{
			ParticipantID: r.ParticipantID,
			Emoji:         r.Emoji,
			Timestamp:     wireInt64(r.Timestamp),
		})
	}
	return in
}

// toEvent normalizes one stream frame. chatID fills in fields the pin and
// reaction frames omit on the wire.
func (e *wireMessageEvent) toEvent(chatID string) *MessageEvent {
	evt := &MessageEvent{}
	switch {
	case e.Message != nil:
		evt.Created = e.Message.toIncoming()
		if evt.Created.ChatID == "" {
			evt.Created.ChatID = chatID
		}
	case e.PinnedMessage != nil:
		evt.Pinned = &PinEvent{ChatID: chatID, LogicalID: e.PinnedMessage.MessageID, Pinned: e.PinnedMessage.IsPinned}
	case e.UnpinnedMessage != nil:
		evt.Unpinned = &PinEvent{ChatID: chatID, LogicalID: e.UnpinnedMessage.MessageID, Pinned: e.UnpinnedMessage.IsPinned}
	case e.Reaction != nil:
		evt.Reaction = &ReactionEvent{
			ChatID:    chatID,
			LogicalID: e.Reaction.MessageID,
			Reaction: store.Reaction{
				ParticipantID: e.Reaction.ParticipantID,
				Emoji:         e.Reaction.Emoji,
				Timestamp:     wireInt64(e.Reaction.Timestamp),
			},
		}
	}
	return evt
}

func (r *wireBackfillResponse) toResponse() *BackfillResponse {
	resp := &BackfillResponse{}
	for _, m := range r.GroupMessages {
		resp.Messages = append(resp.Messages, *m.toIncoming())
	}
	for _, p := range r.PinnedMessages {
		in := p.toIncoming()
		in.Pinned = true
		resp.Pinned = append(resp.Pinned, PinnedMessage{
			IncomingMessage: *in,
			PinnedBy:        p.PinnedBy,
			PinnedAt:        wireInt64(p.PinnedAt),
		})
	}
	return resp
}
