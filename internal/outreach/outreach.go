// Package outreach builds the click-to-contact links agents use to reach a
// lead and logs the attempt.
package outreach

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"leadpool-crm/internal/activity"
	"leadpool-crm/internal/leads"
	"leadpool-crm/pkg/logger"
	"leadpool-crm/pkg/phone"
)

// Channel is a contact medium. Links are opened by the client; the server
// never talks to a carrier or messaging provider.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelCall     Channel = "call"
)

var ErrNoPhone = errors.New("outreach: lead has no usable phone")

type LeadReader interface {
	Get(ctx context.Context, id string) (leads.Lead, error)
}

type Recorder interface {
	Record(ctx context.Context, userID, leadID string, typ activity.Type, details string) (activity.Activity, error)
}

type TemplateSource interface {
	WhatsAppTemplate(ctx context.Context) (string, error)
}

type Link struct {
	Channel Channel `json:"channel"`
	LeadID  string  `json:"lead_id"`
	URL     string  `json:"url"`
	// Message is the rendered WhatsApp text, empty for calls.
	Message string `json:"message,omitempty"`
}

type Service struct {
	leads     LeadReader
	recorder  Recorder
	templates TemplateSource
}

func NewService(l LeadReader, rec Recorder, tmpl TemplateSource) *Service {
	return &Service{leads: l, recorder: rec, templates: tmpl}
}

// Open resolves the link for ch and records the matching activity. The
// activity is written before the client follows the link, so it counts even
// if the call never connects.
func (s *Service) Open(ctx context.Context, actor leads.Actor, leadID string, ch Channel) (Link, error) {
	l, err := s.leads.Get(ctx, leadID)
	if err != nil {
		return Link{}, err
	}
	if !actor.Admin && l.AssignedTo != actor.ID {
		return Link{}, leads.ErrNotOwner
	}

	var (
		link    Link
		typ     activity.Type
		details string
	)
	switch ch {
	case ChannelWhatsApp:
		tmpl := ""
		if s.templates != nil {
			tmpl, err = s.templates.WhatsAppTemplate(ctx)
			if err != nil {
				return Link{}, err
			}
		}
		link, err = WhatsAppLink(l, tmpl)
		typ, details = activity.TypeWhatsApp, "WhatsApp message opened"
	case ChannelCall:
		link, err = CallLink(l)
		typ, details = activity.TypeCall, "Call started"
	default:
		return Link{}, errors.New("outreach: unknown channel " + string(ch))
	}
	if err != nil {
		return Link{}, err
	}

	if s.recorder != nil {
		if _, err := s.recorder.Record(ctx, actor.ID, l.ID, typ, details); err != nil {
			logger.From(ctx).Error("outreach activity record failed", "lead_id", l.ID, "channel", ch, "err", err)
		}
	}
	return link, nil
}

// WhatsAppLink renders tmpl for l and returns a wa.me link. {name} and
// {interest} are substituted; an empty template falls back to a plain
// greeting.
func WhatsAppLink(l leads.Lead, tmpl string) (Link, error) {
	digits := phone.Digits(l.Phone)
	if digits == "" {
		return Link{}, ErrNoPhone
	}
	msg := Render(tmpl, l)
	u := "https://wa.me/" + digits
	if msg != "" {
		u += "?text=" + strings.ReplaceAll(url.QueryEscape(msg), "+", "%20")
	}
	return Link{Channel: ChannelWhatsApp, LeadID: l.ID, URL: u, Message: msg}, nil
}

func CallLink(l leads.Lead) (Link, error) {
	p := strings.TrimSpace(l.Phone)
	if phone.Digits(p) == "" {
		return Link{}, ErrNoPhone
	}
	p = strings.Map(func(r rune) rune {
		if r == '+' || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, p)
	return Link{Channel: ChannelCall, LeadID: l.ID, URL: "tel:" + p}, nil
}

func Render(tmpl string, l leads.Lead) string {
	if strings.TrimSpace(tmpl) == "" {
		tmpl = "Hello {name}"
	}
	name := strings.TrimSpace(l.Name)
	if name == "" {
		name = "there"
	}
	return strings.NewReplacer("{name}", name, "{interest}", strings.TrimSpace(l.Interest)).Replace(tmpl)
}
