package activitypub

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/atomine-elektrine/elektrine-sub014/domain"
	"github.com/atomine-elektrine/elektrine-sub014/util"
)

// RelaySubscriptionStore is what relay bootstrapping needs to persist.
type RelaySubscriptionStore interface {
	AccountByUsername(username string) (*domain.Account, error)
	CreateRelaySubscription(sub *domain.RelaySubscription) error
	RelaySubscriptionByRelayURI(relayURI string) (*domain.RelaySubscription, error)
}

// SubscribeToRelays follows every configured relay this node is not yet
// subscribed to. The subscription stays pending until the relay's Accept
// arrives through the inbox. Failures are logged; the next boot retries.
func SubscribeToRelays(conf *util.AppConfig, store RelaySubscriptionStore, resolver *Resolver, outbox *Outbox) {
	if len(conf.Conf.Relays) == 0 {
		return
	}

	acc, err := store.AccountByUsername("relay")
	if err != nil {
		log.Errorf("Relay: instance actor missing, cannot subscribe: %v", err)
		return
	}

	for _, relayURI := range conf.Conf.Relays {
		sub, err := store.RelaySubscriptionByRelayURI(relayURI)
		if err == nil && sub.State != domain.RelayRejected {
			continue
		}

		remote, err := resolver.Resolve(relayURI)
		if err != nil {
			log.Warnf("Relay: cannot resolve %s: %v", relayURI, err)
			continue
		}

		followURI, err := outbox.SendFollow(acc, remote, relayURI)
		if err != nil {
			log.Warnf("Relay: follow of %s failed: %v", relayURI, err)
			continue
		}

		err = store.CreateRelaySubscription(&domain.RelaySubscription{
			Id:          uuid.New(),
			RelayURI:    relayURI,
			ActivityURI: followURI,
			State:       domain.RelayPending,
			CreatedAt:   time.Now(),
		})
		if err != nil {
			log.Warnf("Relay: could not record subscription to %s: %v", relayURI, err)
			continue
		}
		log.Infof("Relay: subscription request sent to %s", relayURI)
	}
}
