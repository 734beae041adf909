package activitypub

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/atomine-elektrine/elektrine-sub014/db"
	"github.com/atomine-elektrine/elektrine-sub014/domain"
)

// handleFollow processes an inbound follow request. Follows of the relay
// actor and of group accounts are accepted automatically; follows of
// regular accounts honor the account's manual-approval setting. The
// Accept or Reject reply is delivered asynchronously.
func (p *Processor) handleFollow(act *Activity, sender *domain.RemoteActor) (Outcome, error) {
	target := act.ObjectURI()
	if target == "" {
		return OutcomeIgnored, nil
	}

	var acc *domain.Account
	if target == p.conf.RelayActorURI() {
		var err error
		acc, err = p.store.AccountByUsername("relay")
		if err != nil {
			log.Errorf("Inbox: relay account missing: %v", err)
			return OutcomeIgnored, err
		}
	} else {
		acc = p.localAccountForURI(target)
	}
	if acc == nil {
		// Follow of an actor we don't host.
		return OutcomeIgnored, nil
	}

	pending := acc.ManuallyApproves && acc.Kind == domain.ActorPerson

	rel := &domain.Relationship{
		Id:          uuid.New(),
		ActorURI:    sender.URI,
		TargetId:    acc.Id,
		ActivityURI: act.ID,
		Pending:     pending,
		CreatedAt:   time.Now(),
	}
	if err := p.store.CreateRelationship(rel); err != nil {
		if errors.Is(err, db.ErrAlreadyExists) {
			// Repeat follows still get a fresh Accept; some servers
			// retry until they see one.
			if !pending {
				p.queueFollowResponse(acc, sender, act.ID, true)
			}
			return OutcomeAlreadyExists, nil
		}
		return OutcomeIgnored, err
	}

	p.tasks.Submit("notify-follow", func() error {
		return p.store.CreateNotification(&domain.Notification{
			Id:        uuid.New(),
			AccountId: acc.Id,
			ActorURI:  sender.URI,
			Kind:      "follow",
			CreatedAt: time.Now(),
		})
	})

	if !pending {
		p.queueFollowResponse(acc, sender, act.ID, true)
	}
	return OutcomeAccepted, nil
}

// handleAccept resolves the accepted activity to one of our outbound
// follows: a relay subscription or a pending relationship.
func (p *Processor) handleAccept(act *Activity, sender *domain.RemoteActor) (Outcome, error) {
	followURI := acceptedFollowURI(act)

	if sub := p.findRelaySubscription(followURI, sender); sub != nil {
		if sub.State == domain.RelayAccepted {
			return OutcomeAlreadyExists, nil
		}
		if err := p.store.SetRelaySubscriptionState(sub.Id, domain.RelayAccepted); err != nil {
			return OutcomeIgnored, err
		}
		log.Infof("Inbox: relay %s accepted our subscription", sender.URI)
		return OutcomeAccepted, nil
	}

	if followURI != "" {
		if rel, err := p.store.RelationshipByActivityURI(followURI); err == nil {
			if !rel.Pending {
				return OutcomeAlreadyExists, nil
			}
			if err := p.store.AcceptRelationship(rel.Id); err != nil {
				return OutcomeIgnored, err
			}
			return OutcomeAccepted, nil
		}
	}

	// Accept for something we never sent.
	return OutcomeIgnored, nil
}

// handleReject marks a rejected relay subscription, or withdraws the
// pending relationship the remote side turned down.
func (p *Processor) handleReject(act *Activity, sender *domain.RemoteActor) (Outcome, error) {
	followURI := acceptedFollowURI(act)

	if sub := p.findRelaySubscription(followURI, sender); sub != nil {
		if sub.State == domain.RelayRejected {
			return OutcomeAlreadyExists, nil
		}
		if err := p.store.SetRelaySubscriptionState(sub.Id, domain.RelayRejected); err != nil {
			return OutcomeIgnored, err
		}
		log.Infof("Inbox: relay %s rejected our subscription", sender.URI)
		return OutcomeAccepted, nil
	}

	if followURI != "" {
		if rel, err := p.store.RelationshipByActivityURI(followURI); err == nil {
			if err := p.store.DeleteRelationship(rel.Id); err != nil {
				return OutcomeIgnored, err
			}
			return OutcomeAccepted, nil
		}
	}

	return OutcomeIgnored, nil
}

// handleUndoFollow removes the relationship created by the wrapped
// Follow. Undoing a follow that never existed is benign.
func (p *Processor) handleUndoFollow(act *Activity, sender *domain.RemoteActor) (Outcome, error) {
	obj, ok := act.EmbeddedObject()
	if !ok {
		return OutcomeIgnored, nil
	}

	if obj.ID != "" {
		if rel, err := p.store.RelationshipByActivityURI(obj.ID); err == nil {
			if err := p.store.DeleteRelationship(rel.Id); err != nil {
				return OutcomeIgnored, err
			}
			return OutcomeAccepted, nil
		}
	}

	targetURI := obj.ObjectURI()
	acc := p.localAccountForURI(targetURI)
	if acc == nil && targetURI == p.conf.RelayActorURI() {
		acc, _ = p.store.AccountByUsername("relay")
	}
	if acc == nil {
		return OutcomeIgnored, nil
	}

	removed, err := p.store.DeleteRelationshipByPair(sender.URI, acc.Id)
	if err != nil {
		return OutcomeIgnored, err
	}
	if !removed {
		return OutcomeIgnored, nil
	}
	return OutcomeAccepted, nil
}

// acceptedFollowURI digs the id of our original Follow out of an
// Accept/Reject, whether the object is embedded or a bare URI.
func acceptedFollowURI(act *Activity) string {
	if obj, ok := act.EmbeddedObject(); ok && obj.ID != "" {
		return obj.ID
	}
	return act.ObjectURI()
}

// findRelaySubscription matches an Accept/Reject to an outbound relay
// subscription, by follow activity URI first, sender URI as fallback for
// relays that reply without echoing our id.
func (p *Processor) findRelaySubscription(followURI string, sender *domain.RemoteActor) *domain.RelaySubscription {
	if followURI != "" {
		if sub, err := p.store.RelaySubscriptionByActivityURI(followURI); err == nil {
			return sub
		}
	}
	if sub, err := p.store.RelaySubscriptionByRelayURI(sender.URI); err == nil {
		return sub
	}
	return nil
}

func (p *Processor) queueFollowResponse(acc *domain.Account, remote *domain.RemoteActor, followURI string, accept bool) {
	name := "send-reject"
	if accept {
		name = "send-accept"
	}
	p.tasks.Submit(name, func() error {
		if accept {
			return p.deliver.SendAccept(acc, remote, followURI)
		}
		return p.deliver.SendReject(acc, remote, followURI)
	})
}
