package usagecode

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/perkhub/perkhub-api/internal/domain/directory"
	"github.com/perkhub/perkhub-api/internal/domain/settings"
)

type partnerStub struct {
	locked  int
	missing bool
}

func (p *partnerStub) LockPartnerTx(context.Context, *sqlx.Tx, uuid.UUID) (*directory.Partner, error) {
	p.locked++
	if p.missing {
		return nil, directory.ErrPartnerNotFound
	}
	return &directory.Partner{ID: uuid.New(), IsActive: true}, nil
}

type storeStub struct {
	live       *UsageCode
	collisions int
	expired    []uuid.UUID
	inserted   []*UsageCode
}

func (s *storeStub) LockLiveByPartnerTx(context.Context, *sqlx.Tx, uuid.UUID) (*UsageCode, error) {
	return s.live, nil
}

func (s *storeStub) LockByPartnerCodeTx(context.Context, *sqlx.Tx, uuid.UUID, string) (*UsageCode, error) {
	return nil, nil
}

func (s *storeStub) ExpireTx(_ context.Context, _ *sqlx.Tx, id uuid.UUID) error {
	s.expired = append(s.expired, id)
	return nil
}

func (s *storeStub) CodeLiveAnywhereTx(context.Context, *sqlx.Tx, string) (bool, error) {
	if s.collisions > 0 {
		s.collisions--
		return true, nil
	}
	return false, nil
}

func (s *storeStub) InsertTx(_ context.Context, _ *sqlx.Tx, c *UsageCode) error {
	s.inserted = append(s.inserted, c)
	return nil
}

func (s *storeStub) IncrementUsageTx(context.Context, *sqlx.Tx, uuid.UUID) error { return nil }

func (s *storeStub) GetLiveByPartner(context.Context, uuid.UUID) (*UsageCode, error) {
	if s.live == nil {
		return nil, ErrNoLiveCode
	}
	return s.live, nil
}

type providerStub struct{}

func (providerStub) UsageCode(context.Context) (settings.UsageCodeSettings, error) {
	return settings.UsageCodeSettings{TTLSeconds: 300, MaxUsesPerWindow: 10}, nil
}

func (providerStub) ClassificationEnabled(context.Context, string) (bool, error) {
	return true, nil
}

func (providerStub) ActiveMember(context.Context) (settings.ActiveMemberSettings, error) {
	return settings.ActiveMemberSettings{}, nil
}

func TestIssueTxCreatesFreshCode(t *testing.T) {
	store := &storeStub{}
	svc := NewService(nil, store, &partnerStub{}, providerStub{}, nil, 30)

	partnerID := uuid.New()
	code, err := svc.IssueTx(context.Background(), nil, partnerID)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if !ValidFormat(code.Code) {
		t.Fatalf("issued code %q has invalid format", code.Code)
	}
	if code.PartnerID != partnerID {
		t.Fatalf("expected partner %s, got %s", partnerID, code.PartnerID)
	}
	if code.MaxUsesPerWindow != 10 {
		t.Fatalf("expected max uses 10, got %d", code.MaxUsesPerWindow)
	}
	if want := code.CreatedAt.Add(300 * time.Second); !code.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, code.ExpiresAt)
	}
	if len(store.expired) != 0 {
		t.Fatalf("no live code existed, nothing should be expired")
	}
}

func TestIssueTxRotatesLiveCode(t *testing.T) {
	prev := &UsageCode{ID: uuid.New(), Code: "1234"}
	store := &storeStub{live: prev}
	svc := NewService(nil, store, &partnerStub{}, providerStub{}, nil, 30)

	code, err := svc.IssueTx(context.Background(), nil, uuid.New())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if len(store.expired) != 1 || store.expired[0] != prev.ID {
		t.Fatalf("expected previous code expired, got %v", store.expired)
	}
	if code.ID == prev.ID {
		t.Fatalf("expected a new code row")
	}
}

func TestIssueTxLocksPartnerFirst(t *testing.T) {
	store := &storeStub{}
	partners := &partnerStub{}
	svc := NewService(nil, store, partners, providerStub{}, nil, 30)

	if _, err := svc.IssueTx(context.Background(), nil, uuid.New()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if partners.locked != 1 {
		t.Fatalf("expected partner row locked once, got %d", partners.locked)
	}
}

func TestIssueTxUnknownPartner(t *testing.T) {
	store := &storeStub{}
	svc := NewService(nil, store, &partnerStub{missing: true}, providerStub{}, nil, 30)

	_, err := svc.IssueTx(context.Background(), nil, uuid.New())
	if err != directory.ErrPartnerNotFound {
		t.Fatalf("expected ErrPartnerNotFound, got %v", err)
	}
	if len(store.inserted) != 0 {
		t.Fatalf("nothing should be inserted for an unknown partner")
	}
}

func TestIssueTxSkipsOutgoingCodeDigits(t *testing.T) {
	prev := &UsageCode{ID: uuid.New(), Code: "4217"}
	store := &storeStub{live: prev}
	svc := NewService(nil, store, &partnerStub{}, providerStub{}, nil, 30)

	draws := []string{"4217", "4217", "9035"}
	svc.gen = func() string {
		next := draws[0]
		if len(draws) > 1 {
			draws = draws[1:]
		}
		return next
	}

	code, err := svc.IssueTx(context.Background(), nil, uuid.New())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if code.Code == prev.Code {
		t.Fatalf("rotation handed back the outgoing code %q", prev.Code)
	}
	if code.Code != "9035" {
		t.Fatalf("expected code 9035, got %q", code.Code)
	}
}

func TestIssueTxRetriesOnCollision(t *testing.T) {
	store := &storeStub{collisions: 3}
	svc := NewService(nil, store, &partnerStub{}, providerStub{}, nil, 30)

	if _, err := svc.IssueTx(context.Background(), nil, uuid.New()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("expected exactly one insert, got %d", len(store.inserted))
	}
}

func TestIssueTxExhaustsAttemptBudget(t *testing.T) {
	store := &storeStub{collisions: 1 << 30}
	svc := NewService(nil, store, &partnerStub{}, providerStub{}, nil, 5)

	_, err := svc.IssueTx(context.Background(), nil, uuid.New())
	if err != ErrExhaustedCodeSpace {
		t.Fatalf("expected ErrExhaustedCodeSpace, got %v", err)
	}
	if len(store.inserted) != 0 {
		t.Fatalf("nothing should be inserted on exhaustion")
	}
}

func TestCurrentNoLiveCode(t *testing.T) {
	svc := NewService(nil, &storeStub{}, &partnerStub{}, providerStub{}, nil, 30)

	_, err := svc.Current(context.Background(), uuid.New())
	if err != ErrNoLiveCode {
		t.Fatalf("expected ErrNoLiveCode, got %v", err)
	}
}
