package activitypub

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/atomine-elektrine/elektrine-sub014/db"
	"github.com/atomine-elektrine/elektrine-sub014/domain"
)

func (p *Processor) handleLike(act *Activity, sender *domain.RemoteActor) (Outcome, error) {
	return p.applyReaction(act, sender, domain.ReactionLike, "", "")
}

func (p *Processor) handleDislike(act *Activity, sender *domain.RemoteActor) (Outcome, error) {
	return p.applyReaction(act, sender, domain.ReactionDislike, "", "")
}

// handleEmojiReact stores the emoji shortcode from the envelope content
// and, when the activity tags a matching custom Emoji, its image URL.
func (p *Processor) handleEmojiReact(act *Activity, sender *domain.RemoteActor) (Outcome, error) {
	if act.Content == "" {
		return OutcomeIgnored, nil
	}
	return p.applyReaction(act, sender, domain.ReactionEmoji, act.Content, emojiURL(act.Tag, act.Content))
}

// applyReaction records a reaction against a locally known post.
// Reactions to unknown posts are benign; duplicates are absorbed by the
// store's uniqueness constraint.
func (p *Processor) applyReaction(act *Activity, sender *domain.RemoteActor, kind domain.ReactionKind, content, emoji string) (Outcome, error) {
	objURI := act.ObjectURI()
	if objURI == "" {
		return OutcomeIgnored, nil
	}
	post, err := p.store.PostByActivityPubId(objURI)
	if err != nil {
		return OutcomeIgnored, nil
	}
	if post.Tombstoned() {
		return OutcomeIgnored, nil
	}

	reaction := &domain.Reaction{
		Id:        uuid.New(),
		ActorURI:  sender.URI,
		PostId:    post.Id,
		Kind:      kind,
		Content:   content,
		EmojiURL:  emoji,
		CreatedAt: time.Now(),
	}
	if err := p.store.CreateReaction(reaction); err != nil {
		if errors.Is(err, db.ErrAlreadyExists) {
			return OutcomeAlreadyExists, nil
		}
		return OutcomeIgnored, err
	}

	p.queueNotificationForPost(post, sender, string(kind))
	return OutcomeAccepted, nil
}

// handleUndoReaction removes the reaction named by the wrapped activity.
// Undoing a reaction that was never recorded is benign.
func (p *Processor) handleUndoReaction(act *Activity, sender *domain.RemoteActor) (Outcome, error) {
	obj, ok := act.EmbeddedObject()
	if !ok {
		return OutcomeIgnored, nil
	}

	var kind domain.ReactionKind
	switch obj.Type {
	case "Like":
		kind = domain.ReactionLike
	case "Dislike":
		kind = domain.ReactionDislike
	case "EmojiReact":
		kind = domain.ReactionEmoji
	default:
		return OutcomeUnhandled, nil
	}

	targetURI := obj.ObjectURI()
	if targetURI == "" {
		return OutcomeIgnored, nil
	}
	post, err := p.store.PostByActivityPubId(targetURI)
	if err != nil {
		return OutcomeIgnored, nil
	}

	removed, err := p.store.DeleteReaction(sender.URI, post.Id, kind)
	if err != nil {
		return OutcomeIgnored, err
	}
	if !removed {
		return OutcomeIgnored, nil
	}
	return OutcomeAccepted, nil
}

// emojiURL finds the image for a :shortcode: among the activity's Emoji
// tags.
func emojiURL(tags []Tag, shortcode string) string {
	for _, tag := range tags {
		if tag.Type == "Emoji" && tag.Name == shortcode {
			return tag.Icon.URL
		}
	}
	return ""
}
