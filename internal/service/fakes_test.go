package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/salvagehub/salvagebid/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAuctionStore is an in-memory AuctionStore with version-checked
// ApplyBid. forceConflicts makes the next N ApplyBid calls fail with
// ErrVersionConflict while still advancing the stored version, mimicking a
// competing writer winning the race.
type fakeAuctionStore struct {
	mu             sync.Mutex
	auctions       map[uuid.UUID]domain.Auction
	bids           []domain.Bid
	forceConflicts int
	conflictMutate func(a *domain.Auction)
	watchers       map[uuid.UUID]int
}

func newFakeAuctionStore() *fakeAuctionStore {
	return &fakeAuctionStore{
		auctions: make(map[uuid.UUID]domain.Auction),
		watchers: make(map[uuid.UUID]int),
	}
}

func (s *fakeAuctionStore) Create(_ context.Context, a domain.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auctions[a.ID] = a
	return nil
}

func (s *fakeAuctionStore) GetByID(_ context.Context, id uuid.UUID) (domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return domain.Auction{}, domain.ErrNotFound
	}
	return a, nil
}

func (s *fakeAuctionStore) ApplyBid(_ context.Context, next domain.Auction, expectedVersion int64, bid domain.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.auctions[next.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if s.forceConflicts > 0 {
		s.forceConflicts--
		cur.Version++
		if s.conflictMutate != nil {
			s.conflictMutate(&cur)
		}
		s.auctions[next.ID] = cur
		return domain.ErrVersionConflict
	}
	if cur.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	next.Version = cur.Version + 1
	s.auctions[next.ID] = next
	s.bids = append(s.bids, bid)
	return nil
}

func (s *fakeAuctionStore) UpdateStatus(_ context.Context, id uuid.UUID, status domain.AuctionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.Status = status
	s.auctions[id] = a
	return nil
}

func (s *fakeAuctionStore) AdjustWatchers(_ context.Context, id uuid.UUID, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.auctions[id]; !ok {
		return 0, domain.ErrNotFound
	}
	s.watchers[id] += delta
	if s.watchers[id] < 0 {
		s.watchers[id] = 0
	}
	return s.watchers[id], nil
}

func (s *fakeAuctionStore) ListClosedBefore(_ context.Context, before time.Time) ([]domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Auction
	for _, a := range s.auctions {
		if a.Status == domain.AuctionStatusClosed && a.EndTime.Before(before) {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeSummaryCache struct {
	mu        sync.Mutex
	summaries map[uuid.UUID]domain.AuctionSummary
	getErr    error
}

func newFakeSummaryCache() *fakeSummaryCache {
	return &fakeSummaryCache{summaries: make(map[uuid.UUID]domain.AuctionSummary)}
}

func (c *fakeSummaryCache) SetSummary(_ context.Context, summary domain.AuctionSummary, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	summary.Winning = false
	c.summaries[summary.AuctionID] = summary
	return nil
}

func (c *fakeSummaryCache) GetSummary(_ context.Context, auctionID uuid.UUID) (domain.AuctionSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return domain.AuctionSummary{}, c.getErr
	}
	s, ok := c.summaries[auctionID]
	if !ok {
		return domain.AuctionSummary{}, domain.ErrNotFound
	}
	return s, nil
}

func (c *fakeSummaryCache) Invalidate(_ context.Context, auctionID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.summaries, auctionID)
	return nil
}

type publishedEvent struct {
	channel string
	payload []byte
}

type fakeEventBus struct {
	mu        sync.Mutex
	published []publishedEvent
	appended  []publishedEvent
}

func (b *fakeEventBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publishedEvent{channel, payload})
	return nil
}

func (b *fakeEventBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *fakeEventBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appended = append(b.appended, publishedEvent{stream, payload})
	return nil
}

func (b *fakeEventBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type sentNotification struct {
	kind    domain.NotificationKind
	payload map[string]any
}

type fakeGateway struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (g *fakeGateway) Notify(_ context.Context, kind domain.NotificationKind, payload map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, sentNotification{kind, payload})
	return nil
}

func (g *fakeGateway) byKind(kind domain.NotificationKind) []sentNotification {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []sentNotification
	for _, n := range g.sent {
		if n.kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type auditEvent struct {
	event  string
	detail map[string]any
}

type fakeAuditStore struct {
	mu     sync.Mutex
	events []auditEvent
}

func (a *fakeAuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, auditEvent{event, detail})
	return nil
}

func (a *fakeAuditStore) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (a *fakeAuditStore) byEvent(event string) []auditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []auditEvent
	for _, e := range a.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type pairKey struct {
	vendor  uuid.UUID
	auction uuid.UUID
}

// fakeChallengeStore mirrors the Redis semantics: one outstanding challenge
// per (vendor, auction) pair, compare-and-delete on consume, and TTL-based
// eviction — a challenge whose stored TTL has elapsed is gone, exactly like
// an expired Redis key.
type fakeChallengeStore struct {
	mu         sync.Mutex
	challenges map[uuid.UUID]domain.Challenge
	pairs      map[pairKey]uuid.UUID
	evictAt    map[uuid.UUID]time.Time
	putTTLs    []time.Duration
	now        func() time.Time
}

func newFakeChallengeStore() *fakeChallengeStore {
	return &fakeChallengeStore{
		challenges: make(map[uuid.UUID]domain.Challenge),
		pairs:      make(map[pairKey]uuid.UUID),
		evictAt:    make(map[uuid.UUID]time.Time),
		now:        time.Now,
	}
}

func (s *fakeChallengeStore) Put(_ context.Context, ch domain.Challenge, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{ch.VendorID, ch.AuctionID}
	if old, ok := s.pairs[key]; ok {
		delete(s.challenges, old)
		delete(s.evictAt, old)
	}
	s.challenges[ch.Handle] = ch
	s.pairs[key] = ch.Handle
	s.evictAt[ch.Handle] = s.now().Add(ttl)
	s.putTTLs = append(s.putTTLs, ttl)
	return nil
}

func (s *fakeChallengeStore) Consume(_ context.Context, handle uuid.UUID, codeHash string) (domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.challenges[handle]
	if ok && !s.now().Before(s.evictAt[handle]) {
		delete(s.challenges, handle)
		delete(s.evictAt, handle)
		delete(s.pairs, pairKey{ch.VendorID, ch.AuctionID})
		ok = false
	}
	if !ok {
		return domain.Challenge{}, domain.ErrInvalidCode
	}
	if ch.CodeHash != codeHash {
		return domain.Challenge{}, domain.ErrInvalidCode
	}
	delete(s.challenges, handle)
	delete(s.evictAt, handle)
	delete(s.pairs, pairKey{ch.VendorID, ch.AuctionID})
	return ch, nil
}

type fakeRateLimiter struct {
	allowed bool
	err     error
	calls   int
}

func (l *fakeRateLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	l.calls++
	return l.allowed, l.err
}

type fakeVendorStore struct {
	mu         sync.Mutex
	vendors    map[uuid.UUID]domain.Vendor
	linked     map[uuid.UUID]int
	flagCounts map[uuid.UUID]int
	ratings    map[uuid.UUID]float64
	getErr     error
	linkedErr  error
}

func newFakeVendorStore() *fakeVendorStore {
	return &fakeVendorStore{
		vendors:    make(map[uuid.UUID]domain.Vendor),
		linked:     make(map[uuid.UUID]int),
		flagCounts: make(map[uuid.UUID]int),
		ratings:    make(map[uuid.UUID]float64),
	}
}

func (s *fakeVendorStore) GetByID(_ context.Context, id uuid.UUID) (domain.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return domain.Vendor{}, s.getErr
	}
	v, ok := s.vendors[id]
	if !ok {
		return domain.Vendor{}, domain.ErrNotFound
	}
	return v, nil
}

func (s *fakeVendorStore) IncrementFraudFlags(_ context.Context, id uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flagCounts[id]++
	return s.flagCounts[id], nil
}

func (s *fakeVendorStore) SetRating(_ context.Context, id uuid.UUID, rating float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratings[id] = rating
	return nil
}

func (s *fakeVendorStore) CountLinkedIdentities(_ context.Context, id uuid.UUID, _, _ string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.linkedErr != nil {
		return 0, s.linkedErr
	}
	return s.linked[id], nil
}

type fakeBidStore struct {
	mu        sync.Mutex
	byIP      map[string]int
	countErr  error
	byAuction map[uuid.UUID][]domain.Bid
}

func newFakeBidStore() *fakeBidStore {
	return &fakeBidStore{
		byIP:      make(map[string]int),
		byAuction: make(map[uuid.UUID][]domain.Bid),
	}
}

func (s *fakeBidStore) GetByID(context.Context, uuid.UUID) (domain.Bid, error) {
	return domain.Bid{}, domain.ErrNotFound
}

func (s *fakeBidStore) ListByAuction(_ context.Context, auctionID uuid.UUID, _ domain.ListOpts) ([]domain.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byAuction[auctionID], nil
}

func (s *fakeBidStore) CountDistinctVendorsByIP(_ context.Context, _ uuid.UUID, ip string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, s.countErr
	}
	return s.byIP[ip], nil
}

type fakeFraudFlagStore struct {
	mu        sync.Mutex
	flags     []domain.FraudFlag
	createErr error
}

func (s *fakeFraudFlagStore) Create(_ context.Context, flag domain.FraudFlag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.flags = append(s.flags, flag)
	return nil
}

func (s *fakeFraudFlagStore) ListByVendor(_ context.Context, vendorID uuid.UUID, _ domain.ListOpts) ([]domain.FraudFlag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.FraudFlag
	for _, f := range s.flags {
		if f.VendorID == vendorID {
			out = append(out, f)
		}
	}
	return out, nil
}

type fakeRatingStore struct {
	mu      sync.Mutex
	ratings []domain.Rating
}

func (s *fakeRatingStore) Create(_ context.Context, r domain.Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.ratings {
		if existing.VendorID == r.VendorID && existing.AuctionID == r.AuctionID {
			return domain.ErrAlreadyRated
		}
	}
	s.ratings = append(s.ratings, r)
	return nil
}

func (s *fakeRatingStore) AverageForVendor(_ context.Context, vendorID uuid.UUID) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum float64
	var n int
	for _, r := range s.ratings {
		if r.VendorID == vendorID {
			sum += float64(r.OverallRating)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return sum / float64(n), nil
}

func (s *fakeRatingStore) ListByVendor(_ context.Context, vendorID uuid.UUID, _ domain.ListOpts) ([]domain.Rating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Rating
	for _, r := range s.ratings {
		if r.VendorID == vendorID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeScanner struct {
	mu   sync.Mutex
	jobs []domain.ScanJob
	full bool
}

func (s *fakeScanner) Schedule(job domain.ScanJob) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return false
	}
	s.jobs = append(s.jobs, job)
	return true
}
