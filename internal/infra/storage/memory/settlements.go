package memory

import (
	"context"
	"sort"
	"sync"

	domainoffers "rigshare/internal/domain/offers"
	domainsettlement "rigshare/internal/domain/settlement"
	"rigshare/internal/domain/shared/events"
)

// SettlementRepository holds the session index under the same lock as the
// rows, so Insert is the uniqueness check.
type SettlementRepository struct {
	mu        sync.RWMutex
	items     map[domainsettlement.ID]*domainsettlement.Settlement
	bySession map[string]domainsettlement.ID
}

func NewSettlementRepository() *SettlementRepository {
	return &SettlementRepository{
		items:     make(map[domainsettlement.ID]*domainsettlement.Settlement),
		bySession: make(map[string]domainsettlement.ID),
	}
}

func (r *SettlementRepository) ByID(ctx context.Context, id domainsettlement.ID) (*domainsettlement.Settlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.items[id]
	if !ok {
		return nil, domainsettlement.ErrNotFound
	}
	return cloneSettlement(s), nil
}

func (r *SettlementRepository) BySessionID(ctx context.Context, sessionID string) (*domainsettlement.Settlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bySession[sessionID]
	if !ok {
		return nil, domainsettlement.ErrNotFound
	}
	return cloneSettlement(r.items[id]), nil
}

func (r *SettlementRepository) Insert(ctx context.Context, s *domainsettlement.Settlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySession[s.CheckoutSessionID]; ok {
		return domainsettlement.ErrDuplicateSession
	}
	s.Version = 1
	r.items[s.ID] = cloneSettlement(s)
	r.bySession[s.CheckoutSessionID] = s.ID
	return nil
}

func (r *SettlementRepository) Save(ctx context.Context, s *domainsettlement.Settlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.items[s.ID]
	if !ok {
		return domainsettlement.ErrNotFound
	}
	if existing.Version != s.Version {
		return domainsettlement.ErrConcurrentUpdate
	}
	s.Version++
	r.items[s.ID] = cloneSettlement(s)
	return nil
}

func cloneSettlement(s *domainsettlement.Settlement) *domainsettlement.Settlement {
	c := *s
	c.EventRecorder = events.EventRecorder{}
	if s.Dispute != nil {
		d := *s.Dispute
		c.Dispute = &d
	}
	if s.Resolution != nil {
		res := *s.Resolution
		c.Resolution = &res
	}
	return &c
}

// OfferRepository stores purchase offers.
type OfferRepository struct {
	mu    sync.RWMutex
	items map[domainoffers.ID]*domainoffers.Offer
}

func NewOfferRepository() *OfferRepository {
	return &OfferRepository{items: make(map[domainoffers.ID]*domainoffers.Offer)}
}

func (r *OfferRepository) ByID(ctx context.Context, id domainoffers.ID) (*domainoffers.Offer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.items[id]
	if !ok {
		return nil, domainoffers.ErrNotFound
	}
	return cloneOffer(o), nil
}

func (r *OfferRepository) AcceptedFor(ctx context.Context, listingID, buyerID string) (*domainoffers.Offer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.items {
		if o.ListingID == listingID && o.BuyerID == buyerID && o.Status == domainoffers.StatusAccepted {
			return cloneOffer(o), nil
		}
	}
	return nil, domainoffers.ErrNotFound
}

func (r *OfferRepository) ListByParty(ctx context.Context, userID string) ([]*domainoffers.Offer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domainoffers.Offer, 0)
	for _, o := range r.items {
		if o.BuyerID == userID || o.SellerID == userID {
			out = append(out, cloneOffer(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *OfferRepository) Save(ctx context.Context, o *domainoffers.Offer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.items[o.ID]
	if (ok && existing.Version != o.Version) || (!ok && o.Version != 0) {
		return domainoffers.ErrConcurrentUpdate
	}
	o.Version++
	r.items[o.ID] = cloneOffer(o)
	return nil
}

func cloneOffer(o *domainoffers.Offer) *domainoffers.Offer {
	c := *o
	c.EventRecorder = events.EventRecorder{}
	return &c
}

var (
	_ domainsettlement.Repository = (*SettlementRepository)(nil)
	_ domainoffers.Repository     = (*OfferRepository)(nil)
)
