package redemption

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/perkhub/perkhub-api/internal/domain/directory"
)

type storeStub struct {
	redeemed   bool
	pending    *Redemption
	byCode     *Redemption
	byID       *Redemption
	codeTaken  int
	inserted   []*Redemption
	expiredTx  []uuid.UUID
	expired    []uuid.UUID
	marked     []uuid.UUID
	newTokens  []string
	swept      int
	sweptAfter time.Time
}

func (s *storeStub) ExistsRedeemedTx(context.Context, *sqlx.Tx, uuid.UUID, uuid.UUID) (bool, error) {
	return s.redeemed, nil
}

func (s *storeStub) LockPendingTx(context.Context, *sqlx.Tx, uuid.UUID, uuid.UUID) (*Redemption, error) {
	return s.pending, nil
}

func (s *storeStub) LockByCodeTx(context.Context, *sqlx.Tx, string) (*Redemption, error) {
	return s.byCode, nil
}

func (s *storeStub) CodeExistsTx(context.Context, *sqlx.Tx, string) (bool, error) {
	if s.codeTaken > 0 {
		s.codeTaken--
		return true, nil
	}
	return false, nil
}

func (s *storeStub) InsertTx(_ context.Context, _ *sqlx.Tx, r *Redemption) error {
	s.inserted = append(s.inserted, r)
	return nil
}

func (s *storeStub) MarkExpiredTx(_ context.Context, _ *sqlx.Tx, id uuid.UUID) error {
	s.expiredTx = append(s.expiredTx, id)
	return nil
}

func (s *storeStub) MarkRedeemedTx(_ context.Context, _ *sqlx.Tx, id uuid.UUID, _ time.Time) error {
	s.marked = append(s.marked, id)
	return nil
}

func (s *storeStub) MarkExpired(_ context.Context, id uuid.UUID) error {
	s.expired = append(s.expired, id)
	return nil
}

func (s *storeStub) UpdateQRToken(_ context.Context, _ uuid.UUID, token string) error {
	s.newTokens = append(s.newTokens, token)
	return nil
}

func (s *storeStub) GetByID(context.Context, uuid.UUID) (*Redemption, error) {
	if s.byID == nil {
		return nil, ErrNotFound
	}
	return s.byID, nil
}

func (s *storeStub) ListByMember(context.Context, uuid.UUID) ([]Redemption, error) {
	if s.pending == nil {
		return nil, nil
	}
	return []Redemption{*s.pending}, nil
}

func (s *storeStub) SweepExpired(_ context.Context, cutoff time.Time) (int, error) {
	s.sweptAfter = cutoff
	return s.swept, nil
}

type offerStub struct {
	offer  *directory.Offer
	locked int
}

func (o *offerStub) LockOfferTx(context.Context, *sqlx.Tx, uuid.UUID) (*directory.Offer, error) {
	o.locked++
	if o.offer == nil {
		return nil, directory.ErrOfferNotFound
	}
	return o.offer, nil
}

func testOffer() *directory.Offer {
	return &directory.Offer{ID: uuid.New(), PartnerID: uuid.New(), IsEnabled: true}
}

func newTestService(store *storeStub, offers *offerStub) *Service {
	return NewService(nil, store, offers, nil, 48*time.Hour, 30)
}

func TestActivateTxCreatesRedemption(t *testing.T) {
	store := &storeStub{}
	off := testOffer()
	svc := newTestService(store, &offerStub{offer: off})

	memberID := uuid.New()
	red, err := svc.ActivateTx(context.Background(), nil, memberID, off.ID)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if red.Status != StatusPending {
		t.Fatalf("expected pending, got %s", red.Status)
	}
	if red.MemberID != memberID || red.OfferID != off.ID || red.PartnerID != off.PartnerID {
		t.Fatalf("redemption not bound to member/offer: %+v", red)
	}
	if red.RedemptionCode == "" || red.QRToken == "" {
		t.Fatalf("expected code and qr token to be set")
	}
	if red.RedemptionCode == red.QRToken {
		t.Fatalf("code and qr token must be independent")
	}
	if len(store.inserted) != 1 {
		t.Fatalf("expected one insert, got %d", len(store.inserted))
	}
}

func TestActivateTxLocksOfferBeforeChecks(t *testing.T) {
	off := testOffer()
	offers := &offerStub{offer: off}
	store := &storeStub{}
	svc := newTestService(store, offers)

	if _, err := svc.ActivateTx(context.Background(), nil, uuid.New(), off.ID); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if offers.locked != 1 {
		t.Fatalf("expected the offer row locked exactly once, got %d", offers.locked)
	}
}

func TestActivateTxUnknownOffer(t *testing.T) {
	store := &storeStub{}
	svc := newTestService(store, &offerStub{})

	_, err := svc.ActivateTx(context.Background(), nil, uuid.New(), uuid.New())
	if err != directory.ErrOfferNotFound {
		t.Fatalf("expected ErrOfferNotFound, got %v", err)
	}
	if len(store.inserted) != 0 {
		t.Fatalf("nothing should be inserted")
	}
}

func TestActivateTxRejectsRedeemedPair(t *testing.T) {
	off := testOffer()
	svc := newTestService(&storeStub{redeemed: true}, &offerStub{offer: off})

	_, err := svc.ActivateTx(context.Background(), nil, uuid.New(), off.ID)
	if err != ErrAlreadyRedeemed {
		t.Fatalf("expected ErrAlreadyRedeemed, got %v", err)
	}
}

func TestActivateTxRejectsLivePending(t *testing.T) {
	off := testOffer()
	store := &storeStub{pending: &Redemption{ID: uuid.New(), Status: StatusPending, CreatedAt: time.Now()}}
	svc := newTestService(store, &offerStub{offer: off})

	_, err := svc.ActivateTx(context.Background(), nil, uuid.New(), off.ID)
	if err != ErrActiveRedemptionExists {
		t.Fatalf("expected ErrActiveRedemptionExists, got %v", err)
	}
	if len(store.inserted) != 0 {
		t.Fatalf("nothing should be inserted")
	}
}

func TestActivateTxExpiresStalePending(t *testing.T) {
	off := testOffer()
	stale := &Redemption{ID: uuid.New(), Status: StatusPending, CreatedAt: time.Now().Add(-72 * time.Hour)}
	store := &storeStub{pending: stale}
	svc := newTestService(store, &offerStub{offer: off})

	red, err := svc.ActivateTx(context.Background(), nil, uuid.New(), off.ID)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if len(store.expiredTx) != 1 || store.expiredTx[0] != stale.ID {
		t.Fatalf("expected stale redemption expired, got %v", store.expiredTx)
	}
	if red.ID == stale.ID {
		t.Fatalf("expected a fresh redemption")
	}
}

func TestActivateTxCodeCollisionRetry(t *testing.T) {
	off := testOffer()
	store := &storeStub{codeTaken: 2}
	svc := newTestService(store, &offerStub{offer: off})

	if _, err := svc.ActivateTx(context.Background(), nil, uuid.New(), off.ID); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("expected one insert after retries, got %d", len(store.inserted))
	}
}

func TestConfirmTxMarksRedeemed(t *testing.T) {
	partnerID := uuid.New()
	red := &Redemption{
		ID:        uuid.New(),
		PartnerID: partnerID,
		QRToken:   "tok",
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	store := &storeStub{byCode: red}
	svc := newTestService(store, &offerStub{})

	got, err := svc.ConfirmTx(context.Background(), nil, "abc", partnerID, "tok")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Status != StatusRedeemed || !got.RedeemedAt.Valid {
		t.Fatalf("expected redeemed state, got %+v", got)
	}
	if len(store.marked) != 1 {
		t.Fatalf("expected MarkRedeemed call")
	}
}

func TestConfirmTxUnknownCode(t *testing.T) {
	svc := newTestService(&storeStub{}, &offerStub{})

	_, err := svc.ConfirmTx(context.Background(), nil, "abc", uuid.New(), "")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConfirmTxWrongPartner(t *testing.T) {
	store := &storeStub{byCode: &Redemption{PartnerID: uuid.New(), Status: StatusPending, CreatedAt: time.Now()}}
	svc := newTestService(store, &offerStub{})

	_, err := svc.ConfirmTx(context.Background(), nil, "abc", uuid.New(), "")
	if err != ErrWrongPartner {
		t.Fatalf("expected ErrWrongPartner, got %v", err)
	}
}

func TestConfirmTxTokenMismatch(t *testing.T) {
	partnerID := uuid.New()
	store := &storeStub{byCode: &Redemption{PartnerID: partnerID, QRToken: "tok", Status: StatusPending, CreatedAt: time.Now()}}
	svc := newTestService(store, &offerStub{})

	_, err := svc.ConfirmTx(context.Background(), nil, "abc", partnerID, "wrong")
	if err != ErrTokenMismatch {
		t.Fatalf("expected ErrTokenMismatch, got %v", err)
	}
}

func TestConfirmTxIdempotentOnRedeemed(t *testing.T) {
	partnerID := uuid.New()
	red := &Redemption{ID: uuid.New(), PartnerID: partnerID, Status: StatusRedeemed, CreatedAt: time.Now()}
	store := &storeStub{byCode: red}
	svc := newTestService(store, &offerStub{})

	got, err := svc.ConfirmTx(context.Background(), nil, "abc", partnerID, "")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.ID != red.ID {
		t.Fatalf("expected the existing record back")
	}
	if len(store.marked) != 0 {
		t.Fatalf("already-redeemed must not be marked again")
	}
}

func TestConfirmTxLazyExpiry(t *testing.T) {
	partnerID := uuid.New()
	red := &Redemption{ID: uuid.New(), PartnerID: partnerID, Status: StatusPending, CreatedAt: time.Now().Add(-72 * time.Hour)}
	store := &storeStub{byCode: red}
	svc := newTestService(store, &offerStub{})

	_, err := svc.ConfirmTx(context.Background(), nil, "abc", partnerID, "")
	if err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if len(store.expiredTx) != 1 || store.expiredTx[0] != red.ID {
		t.Fatalf("expected lazy expiry transition, got %v", store.expiredTx)
	}
	if len(store.marked) != 0 {
		t.Fatalf("expired redemption must not be marked redeemed")
	}
}

func TestListForMemberAppliesLazyExpiry(t *testing.T) {
	stale := &Redemption{ID: uuid.New(), Status: StatusPending, CreatedAt: time.Now().Add(-72 * time.Hour)}
	store := &storeStub{pending: stale}
	svc := newTestService(store, &offerStub{})

	list, err := svc.ListForMember(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(list) != 1 || list[0].Status != StatusExpired {
		t.Fatalf("expected expired status in listing, got %+v", list)
	}
	if len(store.expired) != 1 {
		t.Fatalf("expected persisted expiry")
	}
}

func TestRotateTokenReplacesQRToken(t *testing.T) {
	memberID := uuid.New()
	red := &Redemption{ID: uuid.New(), MemberID: memberID, QRToken: "old", Status: StatusPending, CreatedAt: time.Now()}
	store := &storeStub{byID: red}
	svc := newTestService(store, &offerStub{})

	got, err := svc.RotateToken(context.Background(), red.ID, memberID)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.QRToken == "old" {
		t.Fatalf("expected a fresh token")
	}
	if len(store.newTokens) != 1 || store.newTokens[0] != got.QRToken {
		t.Fatalf("token not persisted")
	}
}

func TestRotateTokenWrongMember(t *testing.T) {
	store := &storeStub{byID: &Redemption{ID: uuid.New(), MemberID: uuid.New(), Status: StatusPending, CreatedAt: time.Now()}}
	svc := newTestService(store, &offerStub{})

	_, err := svc.RotateToken(context.Background(), uuid.New(), uuid.New())
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRotateTokenNotPending(t *testing.T) {
	memberID := uuid.New()
	store := &storeStub{byID: &Redemption{ID: uuid.New(), MemberID: memberID, Status: StatusRedeemed, CreatedAt: time.Now()}}
	svc := newTestService(store, &offerStub{})

	_, err := svc.RotateToken(context.Background(), uuid.New(), memberID)
	if err != ErrNotPending {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
}

func TestSweepExpiredUsesWindowCutoff(t *testing.T) {
	store := &storeStub{swept: 4}
	svc := newTestService(store, &offerStub{})

	n, err := svc.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 swept, got %d", n)
	}

	want := time.Now().Add(-48 * time.Hour)
	if store.sweptAfter.Before(want.Add(-time.Minute)) || store.sweptAfter.After(want.Add(time.Minute)) {
		t.Fatalf("cutoff %v not near %v", store.sweptAfter, want)
	}
}
