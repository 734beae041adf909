package activitypub

import (
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/atomine-elektrine/elektrine-sub014/db"
	"github.com/atomine-elektrine/elektrine-sub014/domain"
)

// implicitVoteMaxRunes bounds the heuristic that treats short,
// name-bearing, in-reply-to Creates as poll votes even without the
// explicit Answer type.
const implicitVoteMaxRunes = 64

// handleCreatePost turns a Create{Note,Page,Article} into a local post.
// Creation is idempotent: a second Create for the same activitypub_id is
// an "already exists" outcome, never an error.
func (p *Processor) handleCreatePost(act *Activity, sender *domain.RemoteActor) (Outcome, error) {
	obj, ok := act.EmbeddedObject()
	if !ok || obj.ID == "" {
		return OutcomeIgnored, nil
	}

	// Short, name-bearing replies may be poll votes from servers that
	// skip the Answer type. Misfires fall through to normal creation.
	if obj.Name != "" && obj.InReplyTo != "" &&
		utf8.RuneCountInString(NormalizeContent(obj.Content)) <= implicitVoteMaxRunes {
		if outcome, matched := p.tryPollVote(obj, sender); matched {
			return outcome, nil
		}
	}

	post := p.buildPost(act, obj, sender)

	if err := p.store.CreatePost(post); err != nil {
		if errors.Is(err, db.ErrAlreadyExists) {
			return OutcomeAlreadyExists, nil
		}
		return OutcomeIgnored, err
	}

	p.queuePostFanout(post, sender)
	return OutcomeAccepted, nil
}

// handleCreatePoll turns a Create{Question} into a post with an attached
// poll; post, poll and options land atomically.
func (p *Processor) handleCreatePoll(act *Activity, sender *domain.RemoteActor) (Outcome, error) {
	obj, ok := act.EmbeddedObject()
	if !ok || obj.ID == "" {
		return OutcomeIgnored, nil
	}

	post := p.buildPost(act, obj, sender)

	choices := obj.OneOf
	multiple := false
	if len(choices) == 0 {
		choices = obj.AnyOf
		multiple = true
	}
	if len(choices) == 0 {
		// A Question without options is just a post.
		if err := p.store.CreatePost(post); err != nil {
			if errors.Is(err, db.ErrAlreadyExists) {
				return OutcomeAlreadyExists, nil
			}
			return OutcomeIgnored, err
		}
		return OutcomeAccepted, nil
	}

	poll := &domain.Poll{
		Id:       uuid.New(),
		PostId:   post.Id,
		Multiple: multiple,
	}
	if closesAt := parsePollClose(obj); closesAt != nil {
		poll.ClosesAt = closesAt
	}
	for i, choice := range choices {
		poll.Options = append(poll.Options, domain.PollOption{
			Id:       uuid.New(),
			PollId:   poll.Id,
			Name:     choice.Name,
			Position: i,
		})
	}
	post.Poll = poll

	if err := p.store.CreatePost(post); err != nil {
		if errors.Is(err, db.ErrAlreadyExists) {
			return OutcomeAlreadyExists, nil
		}
		return OutcomeIgnored, err
	}

	p.queuePostFanout(post, sender)
	return OutcomeAccepted, nil
}

// handleCreateVote records an explicit Create{Answer} poll vote.
func (p *Processor) handleCreateVote(act *Activity, sender *domain.RemoteActor) (Outcome, error) {
	obj, ok := act.EmbeddedObject()
	if !ok {
		return OutcomeIgnored, nil
	}

	outcome, matched := p.tryPollVote(obj, sender)
	if !matched {
		// Valid Answer but no locally-known poll or option: benign.
		return OutcomeIgnored, nil
	}
	return outcome, nil
}

// tryPollVote resolves the reply target to a local poll and the vote name
// to one of its options. Counter updates are atomic in the store.
func (p *Processor) tryPollVote(obj *Object, sender *domain.RemoteActor) (Outcome, bool) {
	parent, err := p.store.PostByActivityPubId(obj.InReplyTo.String())
	if err != nil {
		return OutcomeIgnored, false
	}

	poll, err := p.store.PollByPostId(parent.Id)
	if err != nil {
		return OutcomeIgnored, false
	}

	option := poll.OptionByName(obj.Name)
	if option == nil {
		return OutcomeIgnored, false
	}

	if poll.Closed(time.Now()) {
		log.Infof("Inbox: vote on closed poll %s from %s", parent.ActivityPubId, sender.URI)
		return OutcomeIgnored, true
	}

	if err := p.store.RecordVote(poll.Id, option.Id); err != nil {
		log.Errorf("Inbox: failed to record vote on %s: %v", parent.ActivityPubId, err)
		return OutcomeIgnored, true
	}

	p.queueNotificationForPost(parent, sender, "poll_vote")
	return OutcomeAccepted, true
}

// buildPost assembles the local representation of a federated post:
// normalized content, extracted hashtags, mapped visibility, locally
// resolved reply/quote links and validated attachments.
func (p *Processor) buildPost(act *Activity, obj *Object, sender *domain.RemoteActor) *domain.Post {
	content := NormalizeContent(obj.Content)

	to, cc := obj.To, obj.Cc
	if len(to) == 0 && len(cc) == 0 {
		to, cc = act.To, act.Cc
	}

	post := &domain.Post{
		Id:            uuid.New(),
		ActivityPubId: obj.ID,
		AuthorURI:     authorURI(act, obj, sender),
		Content:       content,
		Visibility:    DetermineVisibility(to, cc),
		Hashtags:      ExtractHashtags(obj.Tag, content),
		CreatedAt:     time.Now(),
	}

	// Missing ancestors are expected; reply chains need not be locally
	// present. Absence yields a null link, not an error.
	if obj.InReplyTo != "" {
		if parent, err := p.store.PostByActivityPubId(obj.InReplyTo.String()); err == nil {
			post.InReplyToId = &parent.Id
		}
	}
	if obj.QuoteURL != "" {
		if quoted, err := p.store.PostByActivityPubId(obj.QuoteURL); err == nil {
			post.QuoteOfId = &quoted.Id
		}
	}

	for _, att := range obj.Attachment {
		if att.URL == "" {
			continue
		}
		if err := ValidateMediaURL(att.URL); err != nil {
			log.Infof("Inbox: rejecting attachment from %s: %v", sender.URI, err)
			continue
		}
		post.Attachments = append(post.Attachments, att.URL)
	}

	return post
}

func authorURI(act *Activity, obj *Object, sender *domain.RemoteActor) string {
	if obj.AttributedTo != "" {
		return obj.AttributedTo
	}
	if act.Actor != "" {
		return act.Actor
	}
	return sender.URI
}

// queuePostFanout schedules the non-critical follow-up work for a new
// post. None of it may block or fail the delivery response.
func (p *Processor) queuePostFanout(post *domain.Post, sender *domain.RemoteActor) {
	if post.InReplyToId != nil {
		parentId := *post.InReplyToId
		p.tasks.Submit("notify-reply", func() error {
			parent, err := p.store.PostById(parentId)
			if err != nil {
				return err
			}
			p.queueNotificationForPostSync(parent, sender, "reply")
			return nil
		})
	}

	for _, mention := range localMentions(post.Content, p.conf.Conf.Domain) {
		username := mention
		p.tasks.Submit("notify-mention", func() error {
			acc, err := p.store.AccountByUsername(username)
			if err != nil {
				return nil // mentioned user does not exist here
			}
			return p.store.CreateNotification(&domain.Notification{
				Id:        uuid.New(),
				AccountId: acc.Id,
				ActorURI:  sender.URI,
				Kind:      "mention",
				PostId:    &post.Id,
				CreatedAt: time.Now(),
			})
		})
	}
}

func (p *Processor) queueNotificationForPost(post *domain.Post, sender *domain.RemoteActor, kind string) {
	p.tasks.Submit("notify-"+kind, func() error {
		p.queueNotificationForPostSync(post, sender, kind)
		return nil
	})
}

// queueNotificationForPostSync writes a notification for the post's author
// when the author is local. Runs on a task worker.
func (p *Processor) queueNotificationForPostSync(post *domain.Post, sender *domain.RemoteActor, kind string) {
	acc := p.localAccountForURI(post.AuthorURI)
	if acc == nil {
		return
	}
	err := p.store.CreateNotification(&domain.Notification{
		Id:        uuid.New(),
		AccountId: acc.Id,
		ActorURI:  sender.URI,
		Kind:      kind,
		PostId:    &post.Id,
		CreatedAt: time.Now(),
	})
	if err != nil {
		log.Warnf("Notify: failed to store %s notification: %v", kind, err)
	}
}

// parsePollClose reads the close time from endTime or closed, whichever
// the sending server provides.
func parsePollClose(obj *Object) *time.Time {
	for _, value := range []string{obj.Closed, obj.EndTime} {
		if value == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, value); err == nil {
			return &t
		}
	}
	return nil
}
