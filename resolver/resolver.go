package resolver

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/agentuity/tiercache/appcache"
	"github.com/agentuity/tiercache/cache"
	"github.com/agentuity/tiercache/logger"
	"github.com/agentuity/tiercache/metrics"
	"github.com/agentuity/tiercache/reqcache"
	"github.com/agentuity/tiercache/session"
)

// Scope declares a key's data affinity. It is a property of the key chosen
// by the caller — the resolver never infers it, and never writes a value
// into a broader scope than its affinity allows.
type Scope int

const (
	// ScopeSession is for data bound to one session (cart contents,
	// preferences). Written back into the session store and request cache.
	ScopeSession Scope = iota + 1
	// ScopeApplication is for global data (catalogs, settings). Written
	// back into the application cache and request cache, never a session.
	ScopeApplication
)

// ErrMissingSessionID is returned for a session-scoped key with no
// session identifier. The identifier is always threaded explicitly — it is
// never recovered from store contents.
var ErrMissingSessionID = errors.New("resolver: session-scoped key requires a session id")

// Key names a value to resolve along with its declared affinity.
type Key struct {
	Name  string
	Scope Scope
	// SessionID must be set when Scope is ScopeSession.
	SessionID string
}

// requestKey namespaces session-scoped entries in the request cache, so a
// unit of work touching two sessions cannot cross-contaminate them.
func (k Key) requestKey() string {
	if k.Scope == ScopeSession {
		return "s:" + k.SessionID + ":" + k.Name
	}
	return "a:" + k.Name
}

// Origin produces the authoritative value on a full chain miss. Returning
// found=false signals the value does not exist; nothing is cached.
type Origin func(ctx context.Context) (value any, found bool, err error)

// Resolver composes the request, session, and application tiers into a
// single lookup chain: TryRequestScope → TryTargetScope → Origin. Each
// stage either hits (no further stages consulted) or misses. On an origin
// hit the result is written back into every scope the lookup passed
// through, respecting the key's affinity.
type Resolver struct {
	sessions  session.Store
	app       *appcache.Cache
	collector metrics.Collector
	log       logger.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCollector sets the metrics collector. Defaults to metrics.Noop.
func WithCollector(c metrics.Collector) Option {
	return func(r *Resolver) { r.collector = c }
}

// WithLogger sets the logger. Defaults to a console logger.
func WithLogger(log logger.Logger) Option {
	return func(r *Resolver) { r.log = log }
}

// New returns a resolver over the given session store and application
// cache.
func New(sessions session.Store, app *appcache.Cache, opts ...Option) *Resolver {
	r := &Resolver{
		sessions:  sessions,
		app:       app,
		collector: metrics.Noop{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.NewConsoleLogger()
	}
	r.log = r.log.WithPrefix("[resolver]")
	return r
}

// degradable reports whether a target-scope failure should fall through to
// the origin instead of failing the lookup. Busy sections and unreachable
// backing stores both degrade — the origin stage must stay reachable.
func degradable(err error) bool {
	return errors.Is(err, session.ErrBusy) || errors.Is(err, cache.ErrUnavailable)
}

// Resolve looks key up through the chain, calling origin only on a full
// miss. Mutations committed before a caller cancellation stay committed;
// uncommitted write-backs are simply abandoned.
func (r *Resolver) Resolve(ctx context.Context, key Key, origin Origin) (any, bool, error) {
	start := time.Now()
	defer func() {
		r.collector.ObserveLatency("resolve", time.Since(start))
	}()

	if key.Scope == ScopeSession && key.SessionID == "" {
		return nil, false, ErrMissingSessionID
	}

	// Stage 1: request scope.
	rc := reqcache.FromContext(ctx)
	if rc != nil {
		if val, ok := rc.Get(key.requestKey()); ok {
			r.collector.Hit(metrics.ScopeRequest)
			return val, true, nil
		}
		r.collector.Miss(metrics.ScopeRequest)
	}

	// Stage 2: target scope, selected by the key's declared affinity.
	var (
		val       any
		found     bool
		err       error
		writeable bool // target scope reachable for write-back
	)
	switch key.Scope {
	case ScopeSession:
		val, found, err = r.trySession(ctx, key)
	case ScopeApplication:
		val, found, err = r.tryApplication(ctx, key)
	default:
		return nil, false, errors.Newf("resolver: unknown scope %d for key %q", key.Scope, key.Name)
	}
	writeable = err == nil
	if err != nil {
		if !degradable(err) {
			return nil, false, err
		}
		r.log.Warn("target scope unavailable for %q, degrading to origin: %s", key.Name, err)
	}
	if found {
		if rc != nil {
			rc.Set(key.requestKey(), val)
		}
		return val, true, nil
	}

	// Stage 3: origin.
	originStart := time.Now()
	val, found, err = origin(ctx)
	r.collector.ObserveLatency("origin", time.Since(originStart))
	if err != nil {
		return nil, false, err
	}
	if !found {
		r.collector.Miss(metrics.ScopeOrigin)
		return nil, false, nil
	}
	r.collector.Hit(metrics.ScopeOrigin)

	// Write-back into every scope the lookup passed through, narrowest
	// first. Failures here never fail the lookup — the caller has its value.
	if rc != nil {
		rc.Set(key.requestKey(), val)
	}
	if writeable {
		r.writeBack(ctx, key, val)
	}
	return val, true, nil
}

func (r *Resolver) trySession(ctx context.Context, key Key) (any, bool, error) {
	start := time.Now()
	rec, _, err := r.sessions.LoadOrCreate(ctx, key.SessionID)
	r.collector.ObserveLatency("session.load", time.Since(start))
	if err != nil {
		return nil, false, err
	}
	if val, ok := rec.Payload[key.Name]; ok {
		r.collector.Hit(metrics.ScopeSession)
		return val, true, nil
	}
	r.collector.Miss(metrics.ScopeSession)
	return nil, false, nil
}

func (r *Resolver) tryApplication(ctx context.Context, key Key) (any, bool, error) {
	start := time.Now()
	val, found, err := r.app.Get(ctx, key.Name)
	r.collector.ObserveLatency("app.get", time.Since(start))
	if err != nil {
		return nil, false, err
	}
	if found {
		r.collector.Hit(metrics.ScopeApplication)
		return val, true, nil
	}
	r.collector.Miss(metrics.ScopeApplication)
	return nil, false, nil
}

func (r *Resolver) writeBack(ctx context.Context, key Key, val any) {
	switch key.Scope {
	case ScopeSession:
		start := time.Now()
		_, err := r.sessions.Mutate(ctx, key.SessionID, func(payload map[string]any) error {
			// A mutation that landed while the origin call was in flight
			// wins over the origin result.
			if _, ok := payload[key.Name]; !ok {
				payload[key.Name] = val
			}
			return nil
		})
		r.collector.ObserveLatency("session.writeback", time.Since(start))
		if err != nil {
			r.log.Warn("session write-back of %q failed: %s", key.Name, err)
		}
	case ScopeApplication:
		r.app.Put(ctx, key.Name, val)
	}
}
