package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/patrickmn/go-cache"
)

// Draft is a parsed statement held for review before finalize.
type Draft struct {
	ID        string
	UserID    string
	Result    *models.ParseResult
	CreatedAt time.Time
}

// DraftCache keeps parsed statements in memory until they expire.
type DraftCache struct {
	cache *cache.Cache
}

func NewDraftCache(ttl time.Duration) *DraftCache {
	return &DraftCache{cache: cache.New(ttl, 2*ttl)}
}

// Put stores a parse result for userID and returns the new draft.
func (d *DraftCache) Put(userID string, result *models.ParseResult) *Draft {
	draft := &Draft{
		ID:        uuid.New().String(),
		UserID:    userID,
		Result:    result,
		CreatedAt: time.Now().UTC(),
	}
	d.cache.SetDefault(draft.ID, draft)
	return draft
}

// Get returns the draft only when it exists and belongs to userID.
func (d *DraftCache) Get(userID, id string) (*Draft, bool) {
	v, found := d.cache.Get(id)
	if !found {
		return nil, false
	}
	draft := v.(*Draft)
	if draft.UserID != userID {
		return nil, false
	}
	return draft, true
}

func (d *DraftCache) Delete(id string) {
	d.cache.Delete(id)
}
