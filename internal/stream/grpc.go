package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// Full method names on the server. The payloads are JSON frames, so no
// generated stubs are needed; the generic grpc call paths carry them.
const (
	methodStreamChats   = "/groupchat.GroupChatService/StreamGroupChats"
	methodTogglePin     = "/groupchat.GroupChatService/TogglePinChat"
	methodSubscribeChat = "/message.SocketService/SubscribeChat"
	methodGetMessages   = "/message.MessageService/GetChatMessages"
	methodSendMessage   = "/message.MessageService/SendMessage"
)

var serverStreamDesc = &grpc.StreamDesc{ServerStreams: true}

// GRPCClient implements Client over a single shared connection.
type GRPCClient struct {
	conn   *grpc.ClientConn
	tokens TokenSource
	logger *zap.Logger
}

// Dial connects to the chat server. The connection is lazy; actual failures
// surface on the first call.
func Dial(addr string, insecureTransport bool, tokens TokenSource, logger *zap.Logger) (*GRPCClient, error) {
	creds := credentials.NewTLS(nil)
	if insecureTransport {
		creds = insecure.NewCredentials()
	}
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn, tokens: tokens, logger: logger}, nil
}

// Close tears down the shared connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) withAuth(ctx context.Context) (context.Context, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, err
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token), nil
}

func newRequestHeader() wireRequestHeader {
	return wireRequestHeader{
		RequestID: uuid.NewString(),
		Timestamp: fmt.Sprintf("%d", time.Now().UnixMilli()),
	}
}

// StreamChatList opens the server-push chat list stream.
func (c *GRPCClient) StreamChatList(ctx context.Context) (ChatListStream, error) {
	ctx, err := c.withAuth(ctx)
	if err != nil {
		return nil, err
	}
	cs, err := c.conn.NewStream(ctx, serverStreamDesc, methodStreamChats)
	if err != nil {
		return nil, fmt.Errorf("open chat list stream: %w", err)
	}
	if err := cs.SendMsg(&wireChatListRequest{RequestHeader: newRequestHeader()}); err != nil {
		return nil, fmt.Errorf("chat list stream request: %w", err)
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	c.logger.Debug("chat list stream open")
	return &chatListStream{cs: cs}, nil
}

type chatListStream struct {
	cs grpc.ClientStream
}

func (s *chatListStream) Recv() (*ChatSnapshot, error) {
	var frame wireChatListResponse
	if err := s.cs.RecvMsg(&frame); err != nil {
		return nil, err
	}
	return frame.toSnapshot(), nil
}

func (s *chatListStream) Close() error {
	// Client streams have no explicit close; cancelling the parent context
	// tears the stream down. Drain errors are ignored here.
	return nil
}

// SubscribeChat opens the live message stream for one chat.
func (c *GRPCClient) SubscribeChat(ctx context.Context, chatID string) (MessageStream, error) {
	ctx, err := c.withAuth(ctx)
	if err != nil {
		return nil, err
	}
	cs, err := c.conn.NewStream(ctx, serverStreamDesc, methodSubscribeChat)
	if err != nil {
		return nil, fmt.Errorf("subscribe chat %s: %w", chatID, err)
	}
	if err := cs.SendMsg(&wireSubscribeRequest{ChatID: chatID}); err != nil {
		return nil, fmt.Errorf("subscribe request %s: %w", chatID, err)
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	c.logger.Debug("chat subscription open", zap.String("chat_id", chatID))
	return &messageStream{cs: cs, chatID: chatID}, nil
}

type messageStream struct {
	cs     grpc.ClientStream
	chatID string
}

func (s *messageStream) Recv() (*MessageEvent, error) {
	var frame wireMessageEvent
	if err := s.cs.RecvMsg(&frame); err != nil {
		return nil, err
	}
	return frame.toEvent(s.chatID), nil
}

func (s *messageStream) Close() error { return nil }

// GetChatMessages fetches one backfill page.
func (c *GRPCClient) GetChatMessages(ctx context.Context, req *BackfillRequest) (*BackfillResponse, error) {
	ctx, err := c.withAuth(ctx)
	if err != nil {
		return nil, err
	}

	wreq := &wireBackfillRequest{RequestHeader: newRequestHeader()}
	wreq.Body.ChatID = req.ChatID
	if req.Cursor > 0 {
		wreq.Body.Timestamp = fmt.Sprintf("%d", req.Cursor)
	}
	wreq.Body.Limit = req.Limit
	wreq.Body.Direction = req.Direction
	if wreq.Body.Direction == "" {
		wreq.Body.Direction = DirectionAfter
	}

	var wresp wireBackfillResponse
	if err := c.conn.Invoke(ctx, methodGetMessages, wreq, &wresp); err != nil {
		return nil, fmt.Errorf("get messages %s: %w", req.ChatID, err)
	}
	return wresp.toResponse(), nil
}

// SendMessage submits a locally authored message.
func (c *GRPCClient) SendMessage(ctx context.Context, req *SendRequest) (*SendResult, error) {
	ctx, err := c.withAuth(ctx)
	if err != nil {
		return nil, err
	}

	wreq := &wireSendRequest{RequestHeader: newRequestHeader()}
	wreq.Body.ChatID = req.ChatID
	wreq.Body.MessageID = req.LogicalID
	wreq.Body.SenderID = req.SenderID
	wreq.Body.Content = req.Content
	for _, mm := range req.Multimedia {
		wreq.Body.Multimedia = append(wreq.Body.Multimedia, wireMultimedia{
			URL:      mm.URL,
			MimeType: mm.MimeType,
			Name:     mm.Name,
			Width:    fmt.Sprintf("%d", mm.Width),
			Height:   fmt.Sprintf("%d", mm.Height),
			Size:     fmt.Sprintf("%d", mm.Size),
		})
	}
	if req.ReplyTo != nil {
		wreq.Body.ReplyTo = &wireReplyRef{
			MessageID:      req.ReplyTo.MessageID,
			SenderID:       req.ReplyTo.SenderID,
			ReplyToContent: req.ReplyTo.Content,
		}
	}

	var wresp wireSendResponse
	if err := c.conn.Invoke(ctx, methodSendMessage, wreq, &wresp); err != nil {
		return nil, fmt.Errorf("send message %s: %w", req.LogicalID, err)
	}
	return &SendResult{
		ServerID: wresp.Response.ID,
		SentAt:   wireInt64(wresp.Response.Timestamp),
	}, nil
}

// TogglePinChat flips a chat's pinned flag server-side.
func (c *GRPCClient) TogglePinChat(ctx context.Context, chatID string, pinned bool) error {
	ctx, err := c.withAuth(ctx)
	if err != nil {
		return err
	}

	wreq := &wireTogglePinRequest{RequestHeader: newRequestHeader()}
	wreq.Body.ChatID = chatID
	wreq.Body.IsPinned = "false"
	if pinned {
		wreq.Body.IsPinned = "true"
	}

	var wresp wireTogglePinResponse
	if err := c.conn.Invoke(ctx, methodTogglePin, wreq, &wresp); err != nil {
		return fmt.Errorf("toggle pin %s: %w", chatID, err)
	}
	return nil
}
