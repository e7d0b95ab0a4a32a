// Package handoff turns a recognized identity into the personalization
// payload shown to the patient.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ayusman/memora/internal/ai"
	"github.com/ayusman/memora/internal/store"
)

// DefaultTimeout bounds how long a starter may take to generate.
const DefaultTimeout = 15 * time.Second

// Member holds the details shown for a recognized family member.
type Member struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Relation string `json:"relation"`
	Age      int    `json:"age"`
	Interest string `json:"interest"`
}

// Payload is produced for a recognized identity.
type Payload struct {
	Identity            string `json:"identity"`
	Member              Member `json:"member"`
	ConversationStarter string `json:"conversation_starter"`
	Provider            string `json:"provider"`
	// LatestUpdate is the newest family news the starter was built from.
	LatestUpdate string `json:"latest_update,omitempty"`
}

// Bridge receives identities from the recognition loop.
type Bridge interface {
	OnIdentityRecognized(ctx context.Context, identity string) (*Payload, error)
}

// BridgeFunc adapts a function to the Bridge interface.
type BridgeFunc func(ctx context.Context, identity string) (*Payload, error)

// OnIdentityRecognized calls f.
func (f BridgeFunc) OnIdentityRecognized(ctx context.Context, identity string) (*Payload, error) {
	return f(ctx, identity)
}

// MemberLookup finds a member by identity.
type MemberLookup interface {
	GetByID(id string) (*store.Member, error)
}

// UpdateLookup finds a member's most recent update.
type UpdateLookup interface {
	Latest(memberID string) (*store.Update, error)
}

// Personalizer looks up the member and asks a generator for a starter.
// If the generator fails, the starter falls back to a fixed template.
type Personalizer struct {
	members   MemberLookup
	updates   UpdateLookup
	generator ai.Generator
	fallback  ai.Generator
	timeout   time.Duration
}

// NewPersonalizer creates a Personalizer. A nil generator uses the static template.
func NewPersonalizer(members MemberLookup, generator ai.Generator) *Personalizer {
	if generator == nil {
		generator = ai.StaticGenerator{}
	}
	return &Personalizer{
		members:   members,
		generator: generator,
		fallback:  ai.StaticGenerator{},
		timeout:   DefaultTimeout,
	}
}

// SetUpdates makes starters mention the member's latest update.
func (p *Personalizer) SetUpdates(u UpdateLookup) {
	p.updates = u
}

// SetTimeout changes the generation timeout. Non-positive values are ignored.
func (p *Personalizer) SetTimeout(d time.Duration) {
	if d > 0 {
		p.timeout = d
	}
}

// OnIdentityRecognized builds the payload for identity.
func (p *Personalizer) OnIdentityRecognized(ctx context.Context, identity string) (*Payload, error) {
	m, err := p.members.GetByID(identity)
	if err != nil {
		return nil, fmt.Errorf("look up member %s: %w", identity, err)
	}

	payload := &Payload{
		Identity: identity,
		Member: Member{
			ID:       m.ID,
			Name:     m.Name,
			Relation: m.Relation,
			Age:      m.Age,
			Interest: m.Interest,
		},
	}
	profile := ai.Profile{Name: m.Name, Relation: m.Relation, Interest: m.Interest}
	if p.updates != nil {
		u, err := p.updates.Latest(m.ID)
		switch {
		case err == nil:
			profile.LatestUpdate = u.Content
			payload.LatestUpdate = u.Content
		case !errors.Is(err, store.ErrNotFound):
			log.Printf("latest update for %s unavailable: %v", m.ID, err)
		}
	}

	genCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	starter, err := p.generator.Starter(genCtx, profile)
	if err != nil {
		log.Printf("conversation starter from %s failed, using template: %v", p.generator.Name(), err)
		starter, _ = p.fallback.Starter(ctx, profile)
		payload.Provider = p.fallback.Name()
	} else {
		payload.Provider = p.generator.Name()
	}
	payload.ConversationStarter = starter

	return payload, nil
}
