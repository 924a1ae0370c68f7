// Package campaign sends admin email campaigns to every known user.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nstogner/glow/pkg/domain"
	"github.com/nstogner/glow/pkg/mail"
	"github.com/nstogner/glow/pkg/store"
)

// ErrAlreadySent is returned when a sent campaign is sent again.
var ErrAlreadySent = errors.New("campaign already sent")

// Store is the persistence a Sender needs.
type Store interface {
	store.UserStore
	store.TemplateStore
	store.CampaignStore
}

// Sender delivers campaigns.
type Sender struct {
	store  Store
	mailer mail.Sender
	now    func() time.Time
}

// NewSender creates a Sender. mailer may be a queue; each user gets exactly
// one delivery attempt either way.
func NewSender(s Store, mailer mail.Sender) *Sender {
	return &Sender{store: s, mailer: mailer, now: func() time.Time { return time.Now().UTC() }}
}

// Send renders the campaign's template for every user and sends it once.
// Failed recipients are logged and skipped. The campaign is marked sent with
// the number of successful sends.
func (s *Sender) Send(ctx context.Context, campaignID string) (*domain.Campaign, error) {
	c, err := s.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("loading campaign: %w", err)
	}
	if c.Status == domain.CampaignSent {
		return nil, fmt.Errorf("%w: %s", ErrAlreadySent, campaignID)
	}
	tpl, err := s.store.GetTemplate(ctx, c.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("loading template: %w", err)
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	sent := 0
	for _, u := range users {
		subject := mail.Render(tpl.Subject, u.Name, u.Email)
		msg := mail.Message{
			To:      u.Email,
			Subject: subject,
			HTML:    mail.Document(subject, mail.Render(tpl.Body, u.Name, u.Email)),
		}
		if err := s.mailer.Send(ctx, msg); err != nil {
			slog.WarnContext(ctx, "Campaign email failed", "campaignID", c.ID, "to", u.Email, "error", err)
			continue
		}
		sent++
	}

	sentAt := s.now()
	if err := s.store.MarkCampaignSent(ctx, c.ID, sent, sentAt); err != nil {
		return nil, fmt.Errorf("marking campaign sent: %w", err)
	}
	c.Status = domain.CampaignSent
	c.SentCount = sent
	c.SentAt = &sentAt
	slog.InfoContext(ctx, "Campaign sent", "campaignID", c.ID, "recipients", len(users), "sent", sent)
	return c, nil
}
