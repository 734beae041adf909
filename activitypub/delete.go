package activitypub

import (
	"github.com/labstack/gommon/log"

	"github.com/atomine-elektrine/elektrine-sub014/domain"
)

// handleDelete tombstones a post on its author's request. Actor deletions
// and deletes of unknown objects are benign no-ops; a delete for someone
// else's post is an authorization failure and leaves the post intact.
func (p *Processor) handleDelete(act *Activity, sender *domain.RemoteActor) (Outcome, error) {
	objURI := act.ObjectURI()
	if objURI == "" {
		return OutcomeIgnored, nil
	}

	// Delete of the actor itself (account self-deletion broadcast).
	if objURI == act.Actor || objURI == sender.URI {
		return OutcomeIgnored, nil
	}

	post, err := p.store.PostByActivityPubId(objURI)
	if err != nil {
		return OutcomeIgnored, nil
	}

	if post.AuthorURI != sender.URI {
		log.Warnf("Inbox: %s attempted to delete %s owned by %s", sender.URI, objURI, post.AuthorURI)
		return OutcomeIgnored, ErrUnauthorized
	}

	if post.Tombstoned() {
		return OutcomeAlreadyExists, nil
	}

	if err := p.store.TombstonePost(post.Id); err != nil {
		return OutcomeIgnored, err
	}
	return OutcomeAccepted, nil
}
