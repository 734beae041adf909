package activitypub

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http"
	"sort"
	"testing"
	"time"

	"github.com/atomine-elektrine/elektrine-sub014/db"
	"github.com/atomine-elektrine/elektrine-sub014/domain"
	"github.com/atomine-elektrine/elektrine-sub014/util"
)

// stubActorStore serves one pre-cached actor so the resolver never goes to
// the network.
type stubActorStore struct {
	actor *domain.RemoteActor
}

func (s *stubActorStore) RemoteActorByURI(uri string) (*domain.RemoteActor, error) {
	if s.actor != nil && s.actor.URI == uri {
		return s.actor, nil
	}
	return nil, db.ErrNotFound
}

func (s *stubActorStore) UpsertRemoteActor(actor *domain.RemoteActor) (*domain.RemoteActor, error) {
	return actor, nil
}

func testConf() *util.AppConfig {
	conf := &util.AppConfig{}
	conf.Conf.Domain = "local.example"
	conf.Conf.FetchTimeoutSec = 1
	conf.Conf.ActorCacheHours = 1
	return conf
}

func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}
	return key
}

func publicKeyToPEM(t *testing.T, key *rsa.PublicKey) string {
	t.Helper()
	keyBytes, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		t.Fatalf("Failed to marshal public key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: keyBytes}))
}

func verifierWithActor(t *testing.T, actorURI string, key *rsa.PrivateKey) *Verifier {
	t.Helper()
	store := &stubActorStore{actor: &domain.RemoteActor{
		URI:          actorURI,
		Username:     "alice",
		Domain:       "remote.example",
		InboxURI:     actorURI + "/inbox",
		PublicKeyPem: publicKeyToPEM(t, &key.PublicKey),
		FetchedAt:    time.Now(),
	}}
	return NewVerifier(NewResolver(store, testConf()))
}

func signedTestRequest(t *testing.T, key *rsa.PrivateKey, keyId string, body []byte) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "https://local.example/inbox", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if err := SignRequest(req, body, key, keyId); err != nil {
		t.Fatalf("Failed to sign request: %v", err)
	}
	return req
}

func TestVerifyRoundTrip(t *testing.T) {
	key := generateTestKey(t)
	actorURI := "https://remote.example/users/alice"
	verifier := verifierWithActor(t, actorURI, key)

	req := signedTestRequest(t, key, actorURI+"#main-key", []byte(`{"type":"Follow"}`))

	signer, err := verifier.Verify(req)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if signer != actorURI {
		t.Errorf("Expected signer %s, got %s", actorURI, signer)
	}
}

func TestVerifyBodylessRoundTrip(t *testing.T) {
	key := generateTestKey(t)
	actorURI := "https://remote.example/users/alice"
	verifier := verifierWithActor(t, actorURI, key)

	req, err := http.NewRequest(http.MethodGet, "https://local.example/users/bob", nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if err := SignRequest(req, nil, key, actorURI+"#main-key"); err != nil {
		t.Fatalf("Failed to sign request: %v", err)
	}

	if _, err := verifier.Verify(req); err != nil {
		t.Errorf("Verify failed: %v", err)
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	key := generateTestKey(t)
	otherKey := generateTestKey(t)
	actorURI := "https://remote.example/users/alice"
	verifier := verifierWithActor(t, actorURI, key)

	req := signedTestRequest(t, otherKey, actorURI+"#main-key", []byte(`{}`))

	if _, err := verifier.Verify(req); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyRejectsTamperedHeader(t *testing.T) {
	key := generateTestKey(t)
	actorURI := "https://remote.example/users/alice"
	verifier := verifierWithActor(t, actorURI, key)

	req := signedTestRequest(t, key, actorURI+"#main-key", []byte(`{}`))
	req.Header.Set("Date", time.Now().UTC().Add(time.Hour).Format(http.TimeFormat))

	if _, err := verifier.Verify(req); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyMalformedSignatureHeader(t *testing.T) {
	key := generateTestKey(t)
	actorURI := "https://remote.example/users/alice"
	verifier := verifierWithActor(t, actorURI, key)

	cases := map[string]string{
		"empty":        "",
		"no keyId":     `headers="date",signature="abc"`,
		"no headers":   `keyId="x",signature="abc"`,
		"no signature": `keyId="x",headers="date"`,
	}
	for name, header := range cases {
		req, _ := http.NewRequest(http.MethodPost, "https://local.example/inbox", nil)
		req.Header.Set("Signature", header)
		if _, err := verifier.Verify(req); !errors.Is(err, ErrMalformedSignatureHeader) {
			t.Errorf("%s: expected ErrMalformedSignatureHeader, got %v", name, err)
		}
	}
}

func TestVerifyReportsAllMissingHeaders(t *testing.T) {
	key := generateTestKey(t)
	actorURI := "https://remote.example/users/alice"
	verifier := verifierWithActor(t, actorURI, key)

	req := signedTestRequest(t, key, actorURI+"#main-key", []byte(`{}`))
	req.Header.Del("Date")
	req.Header.Del("Digest")

	_, err := verifier.Verify(req)
	var missing *MissingHeadersError
	if !errors.As(err, &missing) {
		t.Fatalf("Expected MissingHeadersError, got %v", err)
	}

	sort.Strings(missing.Names)
	if len(missing.Names) != 2 || missing.Names[0] != "date" || missing.Names[1] != "digest" {
		t.Errorf("Expected missing [date digest], got %v", missing.Names)
	}
}

func TestVerifyRejectsBadBase64(t *testing.T) {
	key := generateTestKey(t)
	actorURI := "https://remote.example/users/alice"
	verifier := verifierWithActor(t, actorURI, key)

	req := signedTestRequest(t, key, actorURI+"#main-key", []byte(`{}`))
	req.Header.Set("Signature",
		`keyId="`+actorURI+`#main-key",headers="(request-target) host date digest",signature="!!not-base64!!"`)

	if _, err := verifier.Verify(req); !errors.Is(err, ErrInvalidSignatureEncoding) {
		t.Errorf("Expected ErrInvalidSignatureEncoding, got %v", err)
	}
}

func TestVerifyUnresolvableActor(t *testing.T) {
	key := generateTestKey(t)
	verifier := NewVerifier(NewResolver(&stubActorStore{}, testConf()))

	req := signedTestRequest(t, key, "https://127.0.0.1:1/users/nobody#main-key", []byte(`{}`))

	if _, err := verifier.Verify(req); !errors.Is(err, ErrActorUnresolvable) {
		t.Errorf("Expected ErrActorUnresolvable, got %v", err)
	}
}

func TestVerifyDigest(t *testing.T) {
	body := []byte(`{"type":"Create"}`)
	key := generateTestKey(t)
	req := signedTestRequest(t, key, "https://remote.example/users/alice#main-key", body)

	if err := VerifyDigest(req, body); err != nil {
		t.Errorf("Digest should match: %v", err)
	}
	if err := VerifyDigest(req, []byte(`{"type":"Delete"}`)); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature for tampered body, got %v", err)
	}

	req.Header.Del("Digest")
	if err := VerifyDigest(req, body); err != nil {
		t.Errorf("A request without a Digest header should pass: %v", err)
	}
}

func TestParseKeysRoundTrip(t *testing.T) {
	pair := util.GeneratePemKeypair()

	priv, err := ParsePrivateKey(pair.Private)
	if err != nil {
		t.Fatalf("Failed to parse private key: %v", err)
	}
	pub, err := ParsePublicKey(pair.Public)
	if err != nil {
		t.Fatalf("Failed to parse public key: %v", err)
	}
	if priv.PublicKey.N.Cmp(pub.N) != 0 {
		t.Error("Public key does not match private key")
	}
}
