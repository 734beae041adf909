package activitypub

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/atomine-elektrine/elektrine-sub014/domain"
	"github.com/atomine-elektrine/elektrine-sub014/util"
)

// ActorStore is the persistence surface the resolver needs. The UNIQUE
// constraint on the actor URI makes concurrent resolution converge on one
// row without application-level locking.
type ActorStore interface {
	RemoteActorByURI(uri string) (*domain.RemoteActor, error)
	UpsertRemoteActor(actor *domain.RemoteActor) (*domain.RemoteActor, error)
}

// ActorDocument is the JSON shape of a remote actor record.
type ActorDocument struct {
	Context           interface{} `json:"@context"`
	ID                string      `json:"id"`
	Type              string      `json:"type"`
	PreferredUsername string      `json:"preferredUsername"`
	Name              string      `json:"name"`
	Inbox             string      `json:"inbox"`
	Endpoints         struct {
		SharedInbox string `json:"sharedInbox"`
	} `json:"endpoints"`
	PublicKey struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
}

// Resolver fetches and caches remote actor identity records, keyed by URI.
type Resolver struct {
	store     ActorStore
	client    *http.Client
	ttl       time.Duration
	userAgent string
}

func NewResolver(store ActorStore, conf *util.AppConfig) *Resolver {
	return &Resolver{
		store:     store,
		client:    &http.Client{Timeout: conf.FetchTimeout()},
		ttl:       conf.ActorCacheTTL(),
		userAgent: util.GetNameAndVersion(),
	}
}

// Resolve returns the cached actor if fresh, otherwise fetches, validates
// and upserts it. A failed fetch is terminal for the request; there is no
// in-process retry.
func (r *Resolver) Resolve(actorURI string) (*domain.RemoteActor, error) {
	cached, err := r.store.RemoteActorByURI(actorURI)
	if err == nil && time.Since(cached.FetchedAt) < r.ttl {
		return cached, nil
	}

	return r.fetch(actorURI)
}

func (r *Resolver) fetch(actorURI string) (*domain.RemoteActor, error) {
	req, err := http.NewRequest(http.MethodGet, actorURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("actor fetch failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var doc ActorDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse actor JSON: %w", err)
	}

	if doc.ID == "" || doc.Inbox == "" || doc.PublicKey.PublicKeyPem == "" {
		return nil, fmt.Errorf("actor missing required fields")
	}

	domainName, err := extractDomain(doc.ID)
	if err != nil {
		return nil, err
	}

	actor := &domain.RemoteActor{
		Id:             uuid.New(),
		Username:       doc.PreferredUsername,
		Domain:         domainName,
		URI:            doc.ID,
		Kind:           actorKind(doc.Type),
		DisplayName:    doc.Name,
		InboxURI:       doc.Inbox,
		SharedInboxURI: doc.Endpoints.SharedInbox,
		PublicKeyPem:   doc.PublicKey.PublicKeyPem,
		FetchedAt:      time.Now(),
	}

	return r.store.UpsertRemoteActor(actor)
}

func actorKind(docType string) domain.ActorKind {
	switch docType {
	case "Group":
		return domain.ActorGroup
	case "Service", "Application":
		return domain.ActorService
	default:
		return domain.ActorPerson
	}
}

// extractDomain extracts the domain from an actor URI
// Example: "https://mastodon.social/users/alice" -> "mastodon.social"
func extractDomain(actorURI string) (string, error) {
	parsed, err := url.Parse(actorURI)
	if err != nil {
		return "", fmt.Errorf("invalid actor URI: %w", err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("actor URI has no host: %s", actorURI)
	}

	return parsed.Host, nil
}
