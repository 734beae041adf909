package activitypub

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/atomine-elektrine/elektrine-sub014/db"
	"github.com/atomine-elektrine/elektrine-sub014/domain"
)

// handleAnnounce records a boost of a known post, or mirrors an unknown
// one by fetching it first. Announces from relays and groups only mirror;
// they carry no boost semantics of their own.
func (p *Processor) handleAnnounce(act *Activity, sender *domain.RemoteActor) (Outcome, error) {
	objURI := act.ObjectURI()
	if objURI == "" {
		return OutcomeIgnored, nil
	}

	mirrorOnly := sender.IsRelay() || sender.IsGroup()

	post, err := p.store.PostByActivityPubId(objURI)
	if err != nil {
		post, err = p.mirrorRemotePost(act, objURI, sender)
		if err != nil {
			log.Infof("Inbox: cannot mirror announced object %s: %v", objURI, err)
			return OutcomeIgnored, nil
		}
		if mirrorOnly {
			return OutcomeAccepted, nil
		}
	} else if mirrorOnly {
		// Relay repeated something we already have.
		return OutcomeAlreadyExists, nil
	}

	boost := &domain.Boost{
		Id:        uuid.New(),
		ActorURI:  sender.URI,
		PostId:    post.Id,
		CreatedAt: time.Now(),
	}
	if err := p.store.CreateBoost(boost); err != nil {
		if errors.Is(err, db.ErrAlreadyExists) {
			return OutcomeAlreadyExists, nil
		}
		return OutcomeIgnored, err
	}

	p.queueNotificationForPost(post, sender, "boost")
	return OutcomeAccepted, nil
}

// handleUndoAnnounce removes the sender's boost of the wrapped object.
func (p *Processor) handleUndoAnnounce(act *Activity, sender *domain.RemoteActor) (Outcome, error) {
	obj, ok := act.EmbeddedObject()
	if !ok {
		return OutcomeIgnored, nil
	}
	targetURI := obj.ObjectURI()
	if targetURI == "" {
		return OutcomeIgnored, nil
	}

	post, err := p.store.PostByActivityPubId(targetURI)
	if err != nil {
		return OutcomeIgnored, nil
	}

	removed, err := p.store.DeleteBoost(sender.URI, post.Id)
	if err != nil {
		return OutcomeIgnored, err
	}
	if !removed {
		return OutcomeIgnored, nil
	}
	return OutcomeAccepted, nil
}

// mirrorRemotePost fetches an announced object and stores it as a local
// copy. The fetched document may itself be a Create wrapper; unwrap it.
func (p *Processor) mirrorRemotePost(act *Activity, objURI string, sender *domain.RemoteActor) (*domain.Post, error) {
	obj, err := p.fetch.FetchObject(objURI)
	if err != nil {
		return nil, err
	}
	if obj.Type == "Create" || obj.Type == "Announce" {
		inner, ok := obj.InnerObject()
		if !ok {
			return nil, errors.New("wrapped object is not embedded")
		}
		obj = inner
	}
	switch obj.Type {
	case "Note", "Page", "Article", "Question":
	default:
		return nil, errors.New("announced object type " + obj.Type + " is not a post")
	}
	if obj.ID == "" {
		return nil, errors.New("announced object has no id")
	}

	post := p.buildPost(act, obj, sender)
	if err := p.store.CreatePost(post); err != nil {
		if errors.Is(err, db.ErrAlreadyExists) {
			// Raced another delivery; use the winner's row.
			return p.store.PostByActivityPubId(obj.ID)
		}
		return nil, err
	}
	return post, nil
}
