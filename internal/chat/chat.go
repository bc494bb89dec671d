package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"parley/internal/content"
	"parley/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const attachmentSummaryPrefix = "shared an attachment: "

type Store interface {
	GetConversation(id string) (models.Conversation, error)
	AppendMessage(message models.Message, summary string) (models.Message, error)
	ListMessages(conversationID string, from int64, limit int) ([]models.Message, error)
}

// Deliverer receives every committed message, in commit order per conversation.
type Deliverer interface {
	Deliver(conv models.Conversation, msg models.Message)
}

type SubmitRequest struct {
	ConversationID string             `validate:"required"`
	SenderID       string             `validate:"required"`
	Body           string             `validate:"max=10000"`
	Attachment     *models.Attachment
}

type Config struct {
	Store     Store
	Deliverer Deliverer
	Log       *slog.Logger
}

// Pipeline validates, persists and orders incoming messages and then hands
// them to delivery.
type Pipeline struct {
	store     Store
	deliverer Deliverer
	log       *slog.Logger
	validate  *validator.Validate
	locks     *convLocks
	now       func() time.Time
}

func New(config Config) *Pipeline {
	return &Pipeline{
		store:     config.Store,
		deliverer: config.Deliverer,
		log:       config.Log,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		locks:     newConvLocks(),
		now:       time.Now,
	}
}

// Submit stores a new message and delivers it. Nothing is delivered unless the
// message and the conversation summary were committed together.
func (p *Pipeline) Submit(ctx context.Context, req SubmitRequest) (models.Message, error) {
	if err := p.validate.Struct(req); err != nil {
		return models.Message{}, fmt.Errorf("%w: %v", models.ErrInvalidMessage, err)
	}

	unlock := p.locks.Lock(req.ConversationID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}

	conv, err := p.authorize(req.ConversationID, req.SenderID)
	if err != nil {
		return models.Message{}, err
	}

	body := strings.TrimSpace(content.Sanitize(req.Body))
	if body == "" && req.Attachment == nil {
		return models.Message{}, fmt.Errorf("%w: empty body and no attachment", models.ErrInvalidMessage)
	}

	var attachment *models.Attachment
	if req.Attachment != nil {
		a := *req.Attachment
		a.Name = content.Sanitize(a.Name)
		attachment = &a
	}

	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       req.SenderID,
		Content:        body,
		Attachment:     attachment,
		Kind:           attachment.Kind(),
		Timestamp:      p.now().UnixMilli(),
	}
	if body != "" {
		if msg.HTML, err = content.Render(body); err != nil {
			p.log.Warn("failed to render message body", "conversation_id", conv.ID, "error", err)
		}
	}

	saved, err := p.store.AppendMessage(msg, Summarize(msg))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.Message{}, err
		}
		return models.Message{}, fmt.Errorf("%w: %w", models.ErrPersistence, err)
	}

	p.log.Debug("message committed", "conversation_id", saved.ConversationID, "seq", saved.Seq, "kind", saved.Kind)

	if p.deliverer != nil {
		p.deliverer.Deliver(conv, saved)
	}
	return saved, nil
}

// History returns up to limit messages starting at sequence number from.
func (p *Pipeline) History(ctx context.Context, conversationID, userID string, from int64, limit int) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := p.authorize(conversationID, userID); err != nil {
		return nil, err
	}
	messages, err := p.store.ListMessages(conversationID, from, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrPersistence, err)
	}
	return messages, nil
}

// Authorize returns the conversation if userID participates in it.
func (p *Pipeline) Authorize(conversationID, userID string) (models.Conversation, error) {
	return p.authorize(conversationID, userID)
}

func (p *Pipeline) authorize(conversationID, userID string) (models.Conversation, error) {
	conv, err := p.store.GetConversation(conversationID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.Conversation{}, err
		}
		return models.Conversation{}, fmt.Errorf("%w: %w", models.ErrPersistence, err)
	}
	if !conv.HasParticipant(userID) {
		return models.Conversation{}, fmt.Errorf("user %s in conversation %s: %w", userID, conversationID, models.ErrForbidden)
	}
	return conv, nil
}

// Summarize returns the conversation list preview for a message.
func Summarize(msg models.Message) string {
	if msg.Kind == models.MessageKindText || msg.Attachment == nil {
		return msg.Content
	}
	return attachmentSummaryPrefix + msg.Attachment.Name
}
