package handoff

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ayusman/memora/internal/ai"
	"github.com/ayusman/memora/internal/store"
)

type memberMap map[string]*store.Member

func (m memberMap) GetByID(id string) (*store.Member, error) {
	if mem, ok := m[id]; ok {
		return mem, nil
	}
	return nil, store.ErrNotFound
}

type fakeGenerator struct {
	text string
	err  error
	got  ai.Profile
}

func (g *fakeGenerator) Name() string { return "fake" }

func (g *fakeGenerator) Starter(ctx context.Context, p ai.Profile) (string, error) {
	g.got = p
	return g.text, g.err
}

var members = memberMap{
	"m-1": {ID: "m-1", Name: "Priya", Relation: "daughter", Age: 34, Interest: "gardening"},
}

func TestPersonalizer_OnIdentityRecognized(t *testing.T) {
	gen := &fakeGenerator{text: "Priya, how are the tomatoes doing?"}
	p := NewPersonalizer(members, gen)

	payload, err := p.OnIdentityRecognized(context.Background(), "m-1")
	if err != nil {
		t.Fatalf("OnIdentityRecognized() error = %v", err)
	}

	if payload.Identity != "m-1" || payload.Member.Name != "Priya" || payload.Member.Age != 34 {
		t.Errorf("payload = %+v", payload)
	}
	if payload.ConversationStarter != gen.text || payload.Provider != "fake" {
		t.Errorf("starter = %q from %q", payload.ConversationStarter, payload.Provider)
	}
	if gen.got.Relation != "daughter" || gen.got.Interest != "gardening" {
		t.Errorf("generator saw profile %+v", gen.got)
	}
}

func TestPersonalizer_GeneratorFailureFallsBack(t *testing.T) {
	p := NewPersonalizer(members, &fakeGenerator{err: errors.New("quota exceeded")})

	payload, err := p.OnIdentityRecognized(context.Background(), "m-1")
	if err != nil {
		t.Fatalf("OnIdentityRecognized() error = %v", err)
	}
	if payload.Provider != ai.ProviderStatic {
		t.Errorf("Provider = %q, want %q", payload.Provider, ai.ProviderStatic)
	}
	if !strings.Contains(payload.ConversationStarter, "Priya") {
		t.Errorf("fallback starter %q does not use the name", payload.ConversationStarter)
	}
}

func TestPersonalizer_UnknownMember(t *testing.T) {
	p := NewPersonalizer(members, nil)

	_, err := p.OnIdentityRecognized(context.Background(), "ghost")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("OnIdentityRecognized() error = %v, want ErrNotFound", err)
	}
}

func TestBridgeFunc(t *testing.T) {
	var got string
	var b Bridge = BridgeFunc(func(ctx context.Context, identity string) (*Payload, error) {
		got = identity
		return &Payload{Identity: identity}, nil
	})

	if _, err := b.OnIdentityRecognized(context.Background(), "7"); err != nil || got != "7" {
		t.Errorf("BridgeFunc called with %q, err %v", got, err)
	}
}

type updateMap struct {
	latest map[string]*store.Update
	err    error
}

func (u updateMap) Latest(memberID string) (*store.Update, error) {
	if u.err != nil {
		return nil, u.err
	}
	if up, ok := u.latest[memberID]; ok {
		return up, nil
	}
	return nil, store.ErrNotFound
}

func TestPersonalizer_LatestUpdate(t *testing.T) {
	tests := []struct {
		name    string
		updates updateMap
		want    string
	}{
		{
			name:    "newest update reaches the generator",
			updates: updateMap{latest: map[string]*store.Update{"m-1": {ID: "u-2", MemberID: "m-1", Content: "Moved to Pune"}}},
			want:    "Moved to Pune",
		},
		{name: "no updates", updates: updateMap{}},
		{name: "lookup failure is not fatal", updates: updateMap{err: errors.New("database is locked")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{text: "Hello Priya!"}
			p := NewPersonalizer(members, gen)
			p.SetUpdates(tt.updates)

			payload, err := p.OnIdentityRecognized(context.Background(), "m-1")
			if err != nil {
				t.Fatalf("OnIdentityRecognized() error = %v", err)
			}
			if gen.got.LatestUpdate != tt.want || payload.LatestUpdate != tt.want {
				t.Errorf("profile update = %q, payload update = %q, want %q", gen.got.LatestUpdate, payload.LatestUpdate, tt.want)
			}
			if gen.got.Interest != "gardening" {
				t.Errorf("Interest = %q, want it kept", gen.got.Interest)
			}
		})
	}
}
