// Package resolver turns the descriptive draft references a wizard client
// starts with into canonical draft ids issued by the service.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/localnerve/proposaldb/internal/types"
)

// ErrUnavailable marks a creation failure that never reached the service.
// Only these failures fall back to a client-synthesized id.
var ErrUnavailable = errors.New("draft service unavailable")

// Creator asks the service for a canonical draft id.
type Creator interface {
	CreateDraft(ctx context.Context, eventType types.EventType, reference string) (string, error)
}

// Entry is what the local store remembers about a reference.
type Entry struct {
	ID         string          `json:"id"`
	EventType  types.EventType `json:"eventType"`
	ResolvedAt time.Time       `json:"resolvedAt"`
}

// Store is the client-side cache of resolved references. Get returns nil
// without error when the reference is unknown.
type Store interface {
	Get(ctx context.Context, reference string) (*Entry, error)
	Put(ctx context.Context, reference string, entry Entry) error
}

// Location is the address the user currently sees, such as a browser path.
type Location interface {
	Path() string
	Replace(path string) error
}

// Result of a resolution.
type Result struct {
	ID        string
	Reference string
	EventType types.EventType
	Canonical bool
	Cached    bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLocation rewrites loc once a canonical id is known.
func WithLocation(loc Location) Option {
	return func(r *Resolver) { r.location = loc }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Resolver) { r.log = log }
}

// WithClock overrides the clock used for fallback ids and entry stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// Resolver maps references to draft ids.
type Resolver struct {
	creator  Creator
	store    Store
	location Location
	log      *zap.Logger
	now      func() time.Time

	mu sync.Mutex
}

// New builds a Resolver. A nil store keeps entries in memory.
func New(creator Creator, store Store, opts ...Option) *Resolver {
	if store == nil {
		store = NewMemoryStore()
	}
	r := &Resolver{
		creator: creator,
		store:   store,
		log:     zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the draft id for reference. Canonical ids come back
// unchanged without touching the store or the network. When the service is
// unreachable a fallback id is returned together with an
// *types.IdentityResolutionError; callers may keep working with it offline.
func (r *Resolver) Resolve(ctx context.Context, reference, hint string) (*Result, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, &types.ValidationError{
			Message: "reference is required",
			Fields:  []types.FieldError{{Field: "reference", Reason: "required"}},
		}
	}
	if types.IsCanonicalID(reference) {
		return &Result{ID: reference, Reference: reference, Canonical: true}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cached, err := r.store.Get(ctx, reference)
	if err != nil {
		r.log.Warn("resolver cache read failed", zap.String("reference", reference), zap.Error(err))
		cached = nil
	}
	if cached != nil && types.IsCanonicalID(cached.ID) {
		return &Result{ID: cached.ID, Reference: reference, EventType: cached.EventType, Canonical: true, Cached: true}, nil
	}

	eventType := InferEventType(reference, hint)
	if cached != nil && cached.EventType.Valid() {
		eventType = cached.EventType
	}

	id, err := r.creator.CreateDraft(ctx, eventType, reference)
	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			return nil, fmt.Errorf("create draft for %q: %w", reference, err)
		}
		return r.fallback(ctx, reference, eventType, cached, err)
	}
	if !types.IsCanonicalID(id) {
		return nil, &types.IdentityResolutionError{Reference: reference, Err: fmt.Errorf("service returned malformed id %q", id)}
	}

	if err := r.store.Put(ctx, reference, Entry{ID: id, EventType: eventType, ResolvedAt: r.now().UTC()}); err != nil {
		r.log.Warn("resolver cache write failed", zap.String("reference", reference), zap.Error(err))
	}
	r.rewriteLocation(reference, cached, id)

	r.log.Info("draft reference resolved",
		zap.String("reference", reference),
		zap.String("id", id),
		zap.String("eventType", string(eventType)))
	return &Result{ID: id, Reference: reference, EventType: eventType, Canonical: true}, nil
}

// fallback keeps an existing fallback id stable across repeated failures.
func (r *Resolver) fallback(ctx context.Context, reference string, eventType types.EventType, cached *Entry, cause error) (*Result, error) {
	resolveErr := &types.IdentityResolutionError{Reference: reference, Err: cause}
	if cached != nil && types.IsFallbackID(cached.ID) {
		r.log.Warn("draft service still unavailable", zap.String("reference", reference), zap.String("fallback", cached.ID))
		return &Result{ID: cached.ID, Reference: reference, EventType: eventType, Cached: true}, resolveErr
	}

	id := FallbackID(r.now())
	if err := r.store.Put(ctx, reference, Entry{ID: id, EventType: eventType, ResolvedAt: r.now().UTC()}); err != nil {
		r.log.Warn("resolver cache write failed", zap.String("reference", reference), zap.Error(err))
	}
	r.log.Warn("draft service unavailable, using fallback id",
		zap.String("reference", reference),
		zap.String("fallback", id),
		zap.Error(cause))
	return &Result{ID: id, Reference: reference, EventType: eventType}, resolveErr
}

// rewriteLocation swaps the descriptive token, or a stale fallback id, for id.
func (r *Resolver) rewriteLocation(reference string, cached *Entry, id string) {
	if r.location == nil {
		return
	}
	path := r.location.Path()
	next := ReplaceSegment(path, reference, id)
	if next == path && cached != nil {
		next = ReplaceSegment(path, cached.ID, id)
	}
	if next == path {
		return
	}
	if err := r.location.Replace(next); err != nil {
		r.log.Warn("location rewrite failed", zap.String("path", path), zap.Error(err))
	}
}

// InferEventType picks the event type for a new draft. An explicit hint
// wins; otherwise the reference text decides, defaulting to school-based.
func InferEventType(reference, hint string) types.EventType {
	if et, ok := types.ParseEventType(hint); ok {
		return et
	}
	lower := strings.ToLower(reference)
	if strings.Contains(lower, "community") {
		return types.EventTypeCommunity
	}
	return types.EventTypeSchool
}

// FallbackID synthesizes a non-canonical id: fallback-<unixMillis>-<random>.
func FallbackID(at time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s%d-%s", types.FallbackPrefix, at.UnixMilli(), random)
}

// ReplaceSegment replaces the first path segment equal to from with to.
func ReplaceSegment(path, from, to string) string {
	if from == "" {
		return path
	}
	segments := strings.Split(path, "/")
	for i, s := range segments {
		if s == from {
			segments[i] = to
			return strings.Join(segments, "/")
		}
	}
	return path
}

// MemoryLocation is a Location held in memory, used by the CLI and tests.
type MemoryLocation struct {
	mu   sync.Mutex
	path string
}

// NewMemoryLocation starts at path.
func NewMemoryLocation(path string) *MemoryLocation {
	return &MemoryLocation{path: path}
}

func (l *MemoryLocation) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

func (l *MemoryLocation) Replace(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.path = path
	return nil
}
