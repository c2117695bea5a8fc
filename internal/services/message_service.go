package services

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"fieldlink/internal/events"
	"fieldlink/internal/models"
	"fieldlink/internal/repositories/interfaces"
	"fieldlink/internal/utils"
	"fieldlink/pkg/logger"
)

// MessageService relays chat and typing events. Messages persist;
// typing indicators are fire and forget.
type MessageService struct {
	messages    interfaces.MessageRepository
	membership  *MembershipService
	broadcaster Broadcaster
	log         *logger.Logger
}

func NewMessageService(messages interfaces.MessageRepository, membership *MembershipService, broadcaster Broadcaster, log *logger.Logger) *MessageService {
	return &MessageService{
		messages:    messages,
		membership:  membership,
		broadcaster: broadcaster,
		log:         log,
	}
}

// Send persists and fans out one message to a group or a direct
// recipient, then returns the stored record for the sender echo.
func (s *MessageService) Send(ctx context.Context, senderID primitive.ObjectID, req *events.MessageSend) (*models.Message, error) {
	if len(req.Content) > utils.MaxMessageLength {
		return nil, ErrInvalidRequest
	}

	messageType := models.MessageType(req.MessageType)
	if messageType == "" {
		messageType = models.MessageTypeText
	}

	message := &models.Message{
		SenderID:    senderID,
		MessageType: messageType,
		Content:     req.Content,
	}

	if req.GroupID != "" {
		groupID, err := primitive.ObjectIDFromHex(req.GroupID)
		if err != nil {
			return nil, ErrInvalidRequest
		}
		member, err := s.membership.MembershipFor(ctx, senderID, groupID)
		if err != nil {
			return nil, err
		}
		if member == nil || !member.Permission.CanTransmit() {
			return nil, ErrPermissionDenied
		}
		message.GroupID = &groupID
	} else {
		recipientID, err := primitive.ObjectIDFromHex(req.RecipientID)
		if err != nil {
			return nil, ErrInvalidRequest
		}
		message.RecipientID = &recipientID
	}

	if err := s.messages.Create(ctx, message); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependencyFailure, err)
	}

	env := events.NewEnvelope(events.TypeMessageReceived, senderID.Hex(), map[string]interface{}{
		"message_id":   message.ID.Hex(),
		"sender_id":    senderID.Hex(),
		"content":      message.Content,
		"message_type": message.MessageType,
		"timestamp":    message.Timestamp.Unix(),
	})

	if message.GroupID != nil {
		s.broadcaster.SendToGroupExcept(*message.GroupID, senderID, env)
	} else {
		s.broadcaster.SendToUser(*message.RecipientID, env)
	}

	message.Delivered = true
	if err := s.messages.MarkDelivered(ctx, message.ID); err != nil {
		s.log.WithError(err).Debug("Failed to mark message delivered")
	}

	return message, nil
}

// Typing broadcasts a typing indicator. No persistence, no delivery
// guarantee, and membership is still enforced for group targets.
func (s *MessageService) Typing(ctx context.Context, senderID primitive.ObjectID, req *events.MessageTyping) error {
	env := events.NewEnvelope(events.TypeUserTyping, senderID.Hex(), map[string]interface{}{
		"sender_id": senderID.Hex(),
		"is_typing": req.IsTyping,
	})

	if req.GroupID != "" {
		groupID, err := primitive.ObjectIDFromHex(req.GroupID)
		if err != nil {
			return ErrInvalidRequest
		}
		member, err := s.membership.MembershipFor(ctx, senderID, groupID)
		if err != nil {
			return err
		}
		if member == nil {
			return ErrPermissionDenied
		}
		s.broadcaster.SendToGroupExcept(groupID, senderID, env)
		return nil
	}

	recipientID, err := primitive.ObjectIDFromHex(req.RecipientID)
	if err != nil {
		return ErrInvalidRequest
	}
	s.broadcaster.SendToUser(recipientID, env)
	return nil
}
