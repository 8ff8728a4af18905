// Package history keeps the per-domain rolling outcome log that feeds the
// complexity estimator and the learning optimizer. State lives in memory and
// is mirrored through the storage collaborator when one is present; a nil or
// failing storage degrades to in-memory-only operation.
package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/consentinel/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// maxOutcomes caps the rolling per-domain log.
	maxOutcomes = 50
	// maxPhrases caps learned banner phrases per domain.
	maxPhrases = 20
	// difficultyWindow bounds which outcomes count toward the rolling
	// historical difficulty.
	difficultyWindow = 7 * 24 * time.Hour
	// neutralDifficulty is reported when no usable history exists.
	neutralDifficulty = 0.5
)

// persistence writes are debounced to at most one per interval per store;
// dirty domains are flushed on the next allowed write or on Close.
const persistInterval = 2 * time.Second

// domainRecord is the JSON-shaped persisted record. Internal shape, not a
// public contract.
type domainRecord struct {
	Outcomes []schemas.ProcessingOutcome `json:"outcomes"`
	Phrases  []string                    `json:"phrases,omitempty"`
}

// Store implements schemas.HistoryStore.
type Store struct {
	mu      sync.Mutex
	domains map[string]*domainRecord
	loaded  map[string]bool
	dirty   map[string]bool

	storage schemas.Storage // nil means memory-only
	limiter *rate.Limiter
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a history store. storage may be nil.
func New(storage schemas.Storage, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		domains: make(map[string]*domainRecord),
		loaded:  make(map[string]bool),
		dirty:   make(map[string]bool),
		storage: storage,
		limiter: rate.NewLimiter(rate.Every(persistInterval), 1),
		logger:  logger.Named("History"),
		now:     time.Now,
	}
}

func storageKey(domain string) string { return fmt.Sprintf("history/%s", domain) }

// Record appends an outcome, trimming the per-domain log to its cap.
func (s *Store) Record(ctx context.Context, outcome schemas.ProcessingOutcome) {
	if outcome.Domain == "" {
		return
	}
	if outcome.At.IsZero() {
		outcome.At = s.now()
	}

	s.mu.Lock()
	rec := s.record(ctx, outcome.Domain)
	rec.Outcomes = append(rec.Outcomes, outcome)
	if len(rec.Outcomes) > maxOutcomes {
		rec.Outcomes = rec.Outcomes[len(rec.Outcomes)-maxOutcomes:]
	}
	s.dirty[outcome.Domain] = true
	s.mu.Unlock()

	s.maybePersist(ctx)
}

// LearnPhrase remembers a banner phrase that led to a success on domain, so
// future classification on the same domain gets extra evidence.
func (s *Store) LearnPhrase(ctx context.Context, domain, phrase string) {
	if domain == "" || phrase == "" {
		return
	}
	s.mu.Lock()
	rec := s.record(ctx, domain)
	for _, p := range rec.Phrases {
		if p == phrase {
			s.mu.Unlock()
			return
		}
	}
	rec.Phrases = append(rec.Phrases, phrase)
	if len(rec.Phrases) > maxPhrases {
		rec.Phrases = rec.Phrases[len(rec.Phrases)-maxPhrases:]
	}
	s.dirty[domain] = true
	s.mu.Unlock()

	s.maybePersist(ctx)
}

// Recent returns the most recent outcomes for domain, newest last.
func (s *Store) Recent(ctx context.Context, domain string, n int) []schemas.ProcessingOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(ctx, domain)
	if n <= 0 || n > len(rec.Outcomes) {
		n = len(rec.Outcomes)
	}
	out := make([]schemas.ProcessingOutcome, n)
	copy(out, rec.Outcomes[len(rec.Outcomes)-n:])
	return out
}

// LearnedPhrases returns domain-specific banner phrases.
func (s *Store) LearnedPhrases(ctx context.Context, domain string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(ctx, domain)
	out := make([]string, len(rec.Phrases))
	copy(out, rec.Phrases)
	return out
}

// Difficulty derives the rolling historical difficulty in [0,1]:
// 1 − (0.7·successRate + 0.3·(1/avgAttempts)) over the last seven days.
// No usable history yields the neutral 0.5.
func (s *Store) Difficulty(ctx context.Context, domain string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.record(ctx, domain)
	cutoff := s.now().Add(-difficultyWindow)

	var total, successes int
	var attemptSum float64
	for _, o := range rec.Outcomes {
		if o.At.Before(cutoff) {
			continue
		}
		total++
		if o.Success {
			successes++
		}
		attempts := o.Attempts
		if attempts < 1 {
			attempts = 1
		}
		attemptSum += float64(attempts)
	}
	if total == 0 {
		return neutralDifficulty
	}

	successRate := float64(successes) / float64(total)
	avgAttempts := attemptSum / float64(total)
	ease := 0.7*successRate + 0.3*(1/avgAttempts)

	d := 1 - ease
	if d < 0 {
		d = 0
	}
	if d > 1 {
		d = 1
	}
	return d
}

// Flush forces pending records out to storage. Called on session teardown.
func (s *Store) Flush(ctx context.Context) {
	s.persistDirty(ctx)
}

// record returns the in-memory record for domain, lazily hydrating it from
// storage on first touch. Caller must hold s.mu.
func (s *Store) record(ctx context.Context, domain string) *domainRecord {
	if rec, ok := s.domains[domain]; ok {
		return rec
	}
	rec := &domainRecord{}
	if s.storage != nil && !s.loaded[domain] {
		s.loaded[domain] = true
		raw, found, err := s.storage.Get(ctx, storageKey(domain))
		if err != nil {
			s.logger.Warn("History load failed; continuing without persistence",
				zap.String("domain", domain), zap.Error(err))
		} else if found {
			if err := json.Unmarshal(raw, rec); err != nil {
				s.logger.Warn("Corrupt history record dropped",
					zap.String("domain", domain), zap.Error(err))
				rec = &domainRecord{}
			}
		}
	}
	s.domains[domain] = rec
	return rec
}

// maybePersist writes dirty domains if the debounce limiter allows it.
func (s *Store) maybePersist(ctx context.Context) {
	if s.storage == nil {
		return
	}
	if !s.limiter.Allow() {
		return
	}
	s.persistDirty(ctx)
}

func (s *Store) persistDirty(ctx context.Context) {
	if s.storage == nil {
		return
	}
	s.mu.Lock()
	pending := make(map[string]*domainRecord, len(s.dirty))
	for domain := range s.dirty {
		if rec, ok := s.domains[domain]; ok {
			// Snapshot under the lock; writes happen outside it.
			cp := &domainRecord{
				Outcomes: append([]schemas.ProcessingOutcome(nil), rec.Outcomes...),
				Phrases:  append([]string(nil), rec.Phrases...),
			}
			pending[domain] = cp
		}
		delete(s.dirty, domain)
	}
	s.mu.Unlock()

	for domain, rec := range pending {
		raw, err := json.Marshal(rec)
		if err != nil {
			s.logger.Warn("History marshal failed", zap.String("domain", domain), zap.Error(err))
			continue
		}
		if err := s.storage.Set(ctx, storageKey(domain), raw); err != nil {
			s.logger.Warn("History persist failed; record kept in memory",
				zap.String("domain", domain), zap.Error(err))
			s.mu.Lock()
			s.dirty[domain] = true
			s.mu.Unlock()
		}
	}
}
