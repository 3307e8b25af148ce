package cache

import (
	"context"

	hclog "github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"

	"github.com/sentclose/sentc-go/group"
	"github.com/sentclose/sentc-go/ids"
	"github.com/sentclose/sentc-go/transport"
	"github.com/sentclose/sentc-go/user"
)

// rotationWatchRate bounds how often RotationWatcher sweeps the cache
// for pending rotations. A token-bucket limiter rather than a fixed
// sleep, so a burst of newly inserted groups doesn't have to wait a
// full tick each before their first sweep.
const rotationWatchRate = 1

// RotationWatcher walks every cached group on a rate-limited loop and
// finishes any pending key rotation it can: a background convergence
// loop that tolerates individual failures without aborting the sweep,
// logging them instead. It is optional; callers that want rotation
// finished only on demand never construct one.
type RotationWatcher struct {
	cache  *Cache
	api    transport.GroupApi
	usr    *user.User
	logger hclog.Logger

	maxPasses int
	stopFn    context.CancelFunc
}

// NewRotationWatcher starts the background loop immediately and returns
// a handle whose Stop cancels it. usr supplies the JWT each sweep uses;
// callers must keep it refreshed (user.CheckJwt/SetJwt) independently.
func NewRotationWatcher(c *Cache, api transport.GroupApi, usr *user.User, logger hclog.Logger, maxPasses int) *RotationWatcher {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &RotationWatcher{
		cache:     c,
		api:       api,
		usr:       usr,
		logger:    logger.Named("rotation.watcher"),
		maxPasses: maxPasses,
		stopFn:    cancel,
	}
	go w.run(ctx)
	return w
}

func (w *RotationWatcher) Stop() { w.stopFn() }

func (w *RotationWatcher) run(ctx context.Context) {
	w.logger.Debug("starting rotation watcher")
	defer w.logger.Debug("exiting rotation watcher")

	limiter := rate.NewLimiter(rotationWatchRate, rotationWatchRate)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := limiter.Wait(ctx); err != nil {
				continue
			}
			w.sweep(ctx)
		}
	}
}

func (w *RotationWatcher) sweep(ctx context.Context) {
	w.cache.groupsMu.RLock()
	type target struct {
		owner string
		id    ids.GroupId
		g     *group.Group
	}
	var targets []target
	for owner, inner := range w.cache.groups {
		for id, g := range inner {
			targets = append(targets, target{owner, id, g})
		}
	}
	w.cache.groupsMu.RUnlock()

	for _, t := range targets {
		var ancestor *group.Group
		if t.g.AccessPath().AncestorId != "" {
			ancestor, _ = w.cache.GetGroup(w.cache.GetActualUser().String(), ids.GroupId(t.g.AccessPath().AncestorId))
		}
		err := group.FinishKeyRotation(ctx, w.api, t.g, w.usr, ancestor, nil, w.maxPasses)
		if err != nil {
			w.logger.Error("rotation sweep failed", "group", t.id, "error", err)
			continue
		}
		w.cache.UpdateCacheLayerForGroup(t.owner, t.id)
	}
}
