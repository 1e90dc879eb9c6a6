package main

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"profession-sync/dispatch"
	"profession-sync/domain"
)

// Collections whose events can move projection fields. Mirror-only
// collections skip the cache refresh.
var projectionCollections = map[string]bool{
	domain.CollUsers:                true,
	domain.CollOrganizations:        true,
	domain.CollPractitioners:        true,
	domain.CollPractitionerInfos:    true,
	domain.CollBranchInfos:          true,
	domain.CollInvitedPractitioners: true,
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// newAfterApply builds the hook run after each successfully handled change:
// refresh the cached projection copy, then notify subscribers with the raw
// envelope. Neither step can fail the event.
func newAfterApply(cache *cacheUpdater, pub publisher, channel string) dispatch.OnHandled {
	return func(ctx context.Context, env domain.Envelope, ch domain.Change) {
		if cache != nil && projectionCollections[env.Collection] {
			cache.RefreshProfile(ctx, ch.Key)
		}
		if pub == nil {
			return
		}
		payload, err := sonic.Marshal(env)
		if err != nil {
			log.WithError(err).Error("encode update notification")
			return
		}
		if err := pub.Publish(ctx, channel, payload).Err(); err != nil {
			log.WithError(err).WithField("collection", env.Collection).Errorf("unable to publish update to %s", channel)
		}
	}
}
