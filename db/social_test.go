package db

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomine-elektrine/elektrine-sub014/domain"
)

func seedTestAccount(t *testing.T, database *DB) *domain.Account {
	t.Helper()
	acc := &domain.Account{
		Id:        uuid.New(),
		Username:  "carol",
		Kind:      domain.ActorPerson,
		CreatedAt: time.Now(),
	}
	require.NoError(t, database.CreateAccount(acc))
	return acc
}

func TestRelationshipLifecycle(t *testing.T) {
	database := testDB(t)
	acc := seedTestAccount(t, database)

	rel := &domain.Relationship{
		Id:          uuid.New(),
		ActorURI:    "https://remote.example/users/alice",
		TargetId:    acc.Id,
		ActivityURI: "https://remote.example/activities/f1",
		Pending:     true,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, database.CreateRelationship(rel))

	// Same pair again violates the unique constraint.
	dup := &domain.Relationship{
		Id:          uuid.New(),
		ActorURI:    rel.ActorURI,
		TargetId:    acc.Id,
		ActivityURI: "https://remote.example/activities/f1b",
		CreatedAt:   time.Now(),
	}
	assert.ErrorIs(t, database.CreateRelationship(dup), ErrAlreadyExists)

	got, err := database.RelationshipByActivityURI(rel.ActivityURI)
	require.NoError(t, err)
	assert.True(t, got.Pending)

	require.NoError(t, database.AcceptRelationship(rel.Id))
	accepted, err := database.RelationshipByPair(rel.ActorURI, acc.Id)
	require.NoError(t, err)
	assert.False(t, accepted.Pending)

	removed, err := database.DeleteRelationshipByPair(rel.ActorURI, acc.Id)
	require.NoError(t, err)
	assert.True(t, removed)

	// Removing again reports absence without error.
	removed, err = database.DeleteRelationshipByPair(rel.ActorURI, acc.Id)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRelaySubscriptionStates(t *testing.T) {
	database := testDB(t)

	sub := &domain.RelaySubscription{
		Id:          uuid.New(),
		RelayURI:    "https://relay.example/actor",
		ActivityURI: "https://local.example/activities/sub1",
		State:       domain.RelayPending,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, database.CreateRelaySubscription(sub))

	byActivity, err := database.RelaySubscriptionByActivityURI(sub.ActivityURI)
	require.NoError(t, err)
	assert.Equal(t, domain.RelayPending, byActivity.State)

	require.NoError(t, database.SetRelaySubscriptionState(sub.Id, domain.RelayAccepted))
	byRelay, err := database.RelaySubscriptionByRelayURI(sub.RelayURI)
	require.NoError(t, err)
	assert.Equal(t, domain.RelayAccepted, byRelay.State)
}

func TestReactionUniquePerKind(t *testing.T) {
	database := testDB(t)
	post := samplePost("https://remote.example/notes/r1")
	require.NoError(t, database.CreatePost(post))

	actor := "https://remote.example/users/alice"
	like := &domain.Reaction{
		Id:        uuid.New(),
		ActorURI:  actor,
		PostId:    post.Id,
		Kind:      domain.ReactionLike,
		CreatedAt: time.Now(),
	}
	require.NoError(t, database.CreateReaction(like))

	// Same actor, same post, same kind: duplicate.
	dup := &domain.Reaction{Id: uuid.New(), ActorURI: actor, PostId: post.Id, Kind: domain.ReactionLike, CreatedAt: time.Now()}
	assert.ErrorIs(t, database.CreateReaction(dup), ErrAlreadyExists)

	// Different kind on the same post is a separate reaction.
	dislike := &domain.Reaction{Id: uuid.New(), ActorURI: actor, PostId: post.Id, Kind: domain.ReactionDislike, CreatedAt: time.Now()}
	require.NoError(t, database.CreateReaction(dislike))

	removed, err := database.DeleteReaction(actor, post.Id, domain.ReactionLike)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = database.DeleteReaction(actor, post.Id, domain.ReactionLike)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestBoostLifecycle(t *testing.T) {
	database := testDB(t)
	post := samplePost("https://remote.example/notes/b1")
	require.NoError(t, database.CreatePost(post))

	boost := &domain.Boost{
		Id:        uuid.New(),
		ActorURI:  "https://remote.example/users/alice",
		PostId:    post.Id,
		CreatedAt: time.Now(),
	}
	require.NoError(t, database.CreateBoost(boost))

	dup := &domain.Boost{Id: uuid.New(), ActorURI: boost.ActorURI, PostId: post.Id, CreatedAt: time.Now()}
	assert.ErrorIs(t, database.CreateBoost(dup), ErrAlreadyExists)

	removed, err := database.DeleteBoost(boost.ActorURI, post.Id)
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestLogActivityAbsorbsDuplicates(t *testing.T) {
	database := testDB(t)

	rec := &domain.ActivityRecord{
		Id:           uuid.New(),
		ActivityURI:  "https://remote.example/activities/1",
		ActivityType: "Create",
		ActorURI:     "https://remote.example/users/alice",
		RawJSON:      `{"type":"Create"}`,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, database.LogActivity(rec))

	// Redelivery of the same activity URI is silently absorbed.
	again := *rec
	again.Id = uuid.New()
	require.NoError(t, database.LogActivity(&again))
}

func TestNotifications(t *testing.T) {
	database := testDB(t)
	acc := seedTestAccount(t, database)
	post := samplePost("https://remote.example/notes/n1")
	require.NoError(t, database.CreatePost(post))

	n := &domain.Notification{
		Id:        uuid.New(),
		AccountId: acc.Id,
		ActorURI:  "https://remote.example/users/alice",
		Kind:      "like",
		PostId:    &post.Id,
		CreatedAt: time.Now(),
	}
	require.NoError(t, database.CreateNotification(n))
}
