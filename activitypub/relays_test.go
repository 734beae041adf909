package activitypub

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/atomine-elektrine/elektrine-sub014/db"
	"github.com/atomine-elektrine/elektrine-sub014/domain"
	"github.com/atomine-elektrine/elektrine-sub014/util"
)

type fakeRelayStore struct {
	account *domain.Account
	subs    map[string]*domain.RelaySubscription
}

func (f *fakeRelayStore) AccountByUsername(username string) (*domain.Account, error) {
	if f.account != nil && f.account.Username == username {
		return f.account, nil
	}
	return nil, db.ErrNotFound
}

func (f *fakeRelayStore) CreateRelaySubscription(sub *domain.RelaySubscription) error {
	if _, ok := f.subs[sub.RelayURI]; ok {
		return db.ErrAlreadyExists
	}
	f.subs[sub.RelayURI] = sub
	return nil
}

func (f *fakeRelayStore) RelaySubscriptionByRelayURI(relayURI string) (*domain.RelaySubscription, error) {
	if sub, ok := f.subs[relayURI]; ok {
		return sub, nil
	}
	return nil, db.ErrNotFound
}

func (f *fakeRelayStore) RemoteActorByURI(uri string) (*domain.RemoteActor, error) {
	return nil, db.ErrNotFound
}

func (f *fakeRelayStore) UpsertRemoteActor(actor *domain.RemoteActor) (*domain.RemoteActor, error) {
	return actor, nil
}

func TestSubscribeToRelays(t *testing.T) {
	var relayURI string
	var received map[string]interface{}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/actor":
			fmt.Fprintf(w, `{
				"id": "%s",
				"type": "Application",
				"preferredUsername": "relay",
				"inbox": "%s/inbox",
				"publicKey": {"id": "%s#main-key", "owner": "%s", "publicKeyPem": "pem"}
			}`, relayURI, relayURI[:len(relayURI)-len("/actor")], relayURI, relayURI)
		case "/inbox":
			if r.Header.Get("Signature") == "" {
				t.Error("Relay follow must be signed")
			}
			body, _ := io.ReadAll(r.Body)
			json.Unmarshal(body, &received)
			w.WriteHeader(http.StatusAccepted)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()
	relayURI = ts.URL + "/actor"

	keys := util.GeneratePemKeypair()
	store := &fakeRelayStore{
		account: &domain.Account{
			Id:            uuid.New(),
			Username:      "relay",
			Kind:          domain.ActorService,
			PublicKeyPem:  keys.Public,
			PrivateKeyPem: keys.Private,
			CreatedAt:     time.Now(),
		},
		subs: map[string]*domain.RelaySubscription{},
	}

	conf := testConf()
	conf.Conf.Relays = []string{relayURI}

	SubscribeToRelays(conf, store, NewResolver(store, conf), NewOutbox(conf))

	sub, ok := store.subs[relayURI]
	if !ok {
		t.Fatal("Subscription was not recorded")
	}
	if sub.State != domain.RelayPending {
		t.Errorf("Expected pending state, got %s", sub.State)
	}
	if received["type"] != "Follow" || received["object"] != relayURI {
		t.Errorf("Unexpected follow payload: %v", received)
	}
	if received["id"] != sub.ActivityURI {
		t.Error("Recorded activity URI must match the sent follow")
	}
}

func TestSubscribeToRelaysSkipsExisting(t *testing.T) {
	store := &fakeRelayStore{
		account: &domain.Account{Id: uuid.New(), Username: "relay", Kind: domain.ActorService},
		subs: map[string]*domain.RelaySubscription{
			"https://relay.example/actor": {
				Id:       uuid.New(),
				RelayURI: "https://relay.example/actor",
				State:    domain.RelayAccepted,
			},
		},
	}

	conf := testConf()
	conf.Conf.Relays = []string{"https://relay.example/actor"}

	// No server is running at the relay URI; reaching out would fail the
	// test with a logged error and no new subscription.
	SubscribeToRelays(conf, store, NewResolver(store, conf), NewOutbox(conf))

	if len(store.subs) != 1 {
		t.Errorf("Expected existing subscription untouched, got %d", len(store.subs))
	}
}
