package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atomine-elektrine/elektrine-sub014/domain"
)

// actorContext is the JSON-LD context served on actor documents.
var actorContext = []string{
	"https://www.w3.org/ns/activitystreams",
	"https://w3id.org/security/v1",
}

type actorEndpoints struct {
	SharedInbox string `json:"sharedInbox"`
}

type actorPublicKey struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

type actorDocument struct {
	Context           interface{}    `json:"@context"`
	ID                string         `json:"id"`
	Type              string         `json:"type"`
	PreferredUsername string         `json:"preferredUsername"`
	Name              string         `json:"name"`
	Inbox             string         `json:"inbox"`
	Outbox            string         `json:"outbox"`
	Followers         string         `json:"followers"`
	Following         string         `json:"following"`
	URL               string         `json:"url"`
	ManuallyApproves  bool           `json:"manuallyApprovesFollowers"`
	Discoverable      bool           `json:"discoverable"`
	Endpoints         actorEndpoints `json:"endpoints"`
	PublicKey         actorPublicKey `json:"publicKey"`
}

// handleActor serves a local account as an ActivityPub actor document.
func (s *Server) handleActor(c *gin.Context) {
	acc, err := s.store.AccountByUsername(c.Param("username"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.Header("Content-Type", "application/activity+json; charset=utf-8")
	c.JSON(http.StatusOK, s.actorDocumentFor(acc, s.conf.ActorURI(acc.Username)))
}

// handleRelayActor serves the instance actor other servers address when
// subscribing this node to a relay or verifying instance-level signatures.
func (s *Server) handleRelayActor(c *gin.Context) {
	acc, err := s.store.AccountByUsername("relay")
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Instance actor not configured"})
		return
	}

	c.Header("Content-Type", "application/activity+json; charset=utf-8")
	c.JSON(http.StatusOK, s.actorDocumentFor(acc, s.conf.RelayActorURI()))
}

func (s *Server) actorDocumentFor(acc *domain.Account, actorURI string) *actorDocument {
	doc := &actorDocument{
		Context:           actorContext,
		ID:                actorURI,
		Type:              string(acc.Kind),
		PreferredUsername: acc.Username,
		Name:              acc.Username,
		Inbox:             actorURI + "/inbox",
		Outbox:            actorURI + "/outbox",
		Followers:         actorURI + "/followers",
		Following:         actorURI + "/following",
		URL:               actorURI,
		ManuallyApproves:  acc.ManuallyApproves,
		Discoverable:      true,
	}
	doc.Endpoints.SharedInbox = "https://" + s.conf.Conf.Domain + "/inbox"
	doc.PublicKey = actorPublicKey{
		ID:           actorURI + "#main-key",
		Owner:        actorURI,
		PublicKeyPem: acc.PublicKeyPem,
	}
	return doc
}
