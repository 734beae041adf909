package activitypub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/atomine-elektrine/elektrine-sub014/domain"
	"github.com/atomine-elektrine/elektrine-sub014/util"
)

const maxObjectBytes = 1 << 20

// Outbox delivers signed activities to remote inboxes and fetches remote
// objects. It satisfies both Deliverer and ObjectFetcher.
type Outbox struct {
	conf   *util.AppConfig
	client *http.Client
}

func NewOutbox(conf *util.AppConfig) *Outbox {
	return &Outbox{
		conf:   conf,
		client: &http.Client{Timeout: conf.FetchTimeout()},
	}
}

// SendActivity signs and POSTs an activity document to a remote inbox.
func (o *Outbox) SendActivity(activity interface{}, inboxURI string, acc *domain.Account) error {
	body, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, inboxURI, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.GetNameAndVersion())

	privateKey, err := ParsePrivateKey(acc.PrivateKeyPem)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	keyId := o.conf.ActorURI(acc.Username) + "#main-key"
	if err := SignRequest(req, body, privateKey, keyId); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote server returned status: %d", resp.StatusCode)
	}

	log.Infof("Outbox: sent activity to %s (status %d)", inboxURI, resp.StatusCode)
	return nil
}

// SendAccept answers a Follow with an Accept.
func (o *Outbox) SendAccept(acc *domain.Account, remote *domain.RemoteActor, followURI string) error {
	return o.SendActivity(o.followResponse("Accept", acc, remote, followURI), remote.InboxURI, acc)
}

// SendReject answers a Follow with a Reject.
func (o *Outbox) SendReject(acc *domain.Account, remote *domain.RemoteActor, followURI string) error {
	return o.SendActivity(o.followResponse("Reject", acc, remote, followURI), remote.InboxURI, acc)
}

// SendFollow issues an outbound Follow, e.g. a relay subscription. The
// returned URI identifies the Follow so the eventual Accept or Reject can
// be matched back.
func (o *Outbox) SendFollow(acc *domain.Account, remote *domain.RemoteActor, targetURI string) (string, error) {
	followId := fmt.Sprintf("https://%s/activities/%s", o.conf.Conf.Domain, uuid.New())
	follow := map[string]interface{}{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       followId,
		"type":     "Follow",
		"actor":    o.conf.ActorURI(acc.Username),
		"object":   targetURI,
	}
	if err := o.SendActivity(follow, remote.InboxURI, acc); err != nil {
		return "", err
	}
	return followId, nil
}

func (o *Outbox) followResponse(kind string, acc *domain.Account, remote *domain.RemoteActor, followURI string) map[string]interface{} {
	actorURI := o.conf.ActorURI(acc.Username)
	return map[string]interface{}{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       fmt.Sprintf("https://%s/activities/%s", o.conf.Conf.Domain, uuid.New()),
		"type":     kind,
		"actor":    actorURI,
		"object": map[string]interface{}{
			"id":     followURI,
			"type":   "Follow",
			"actor":  remote.URI,
			"object": actorURI,
		},
	}
}

// FetchObject retrieves a remote object document, e.g. the target of an
// Announce we have not seen yet.
func (o *Outbox) FetchObject(uri string) (*Object, error) {
	req, err := http.NewRequest(http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.GetNameAndVersion())

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("object fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote server returned status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxObjectBytes))
	if err != nil {
		return nil, fmt.Errorf("reading object body: %w", err)
	}

	var obj Object
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("parsing object: %w", err)
	}
	return &obj, nil
}
