package notification

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"

	"budgetlink/internal/domain/institution"
	"budgetlink/internal/shared/messages"
)

// RouteAccounts is the in-app route opened from institution notifications.
const RouteAccounts = "accounts"

// Service sends institution notifications to a user's devices. Devices
// subscribe to their user's topic; this service never stores tokens.
type Service struct {
	messenger Messenger
	texts     messages.Messages
}

// NewService creates a new notification service. A nil messenger turns
// every send into a logged no-op.
func NewService(messenger Messenger, texts *messages.Messages) *Service {
	s := &Service{messenger: messenger, texts: messages.Defaults()}
	if texts != nil {
		s.texts = *texts
	}
	return s
}

// UserTopic returns the FCM topic a user's devices subscribe to. Characters
// outside the topic alphabet are replaced with '_'.
func UserTopic(userID string) string {
	var b strings.Builder
	b.Grow(len(userID) + 5)
	b.WriteString("user_")
	for _, r := range userID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~', r == '%':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// NotifyRelinkRequired tells the owner of inst to sign in to the bank again.
func (s *Service) NotifyRelinkRequired(ctx context.Context, inst *institution.Institution) error {
	if inst == nil {
		return errors.New("institution is required")
	}
	if inst.UserID == "" {
		return errors.New("institution has no owner")
	}

	if s.messenger == nil {
		log.Printf("Institution %d: relink notification skipped, messenger not configured", inst.ID)
		return nil
	}

	text := s.texts.RelinkRequired.Render(inst.InstitutionName)
	data := map[string]string{
		"route":         RouteAccounts,
		"type":          string(institution.StatusRelinkRequired),
		"institutionId": strconv.FormatInt(inst.ID, 10),
	}

	return s.messenger.SendToTopic(ctx, UserTopic(inst.UserID), text.Title, text.Body, data)
}
