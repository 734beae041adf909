package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/atomine-elektrine/elektrine-sub014/activitypub"
)

func TestSignatureFailureStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{activitypub.ErrMalformedSignatureHeader, http.StatusBadRequest},
		{&activitypub.MissingHeadersError{Names: []string{"date", "digest"}}, http.StatusBadRequest},
		{activitypub.ErrInvalidSignatureEncoding, http.StatusBadRequest},
		{activitypub.ErrActorUnresolvable, http.StatusUnauthorized},
		{activitypub.ErrInvalidSignature, http.StatusUnauthorized},
		{activitypub.ErrUnauthorized, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		if got, _ := signatureFailureStatus(tc.err); got != tc.want {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.want, got)
		}
	}
}

func TestInboxRejectsMalformedActivity(t *testing.T) {
	server, _ := testServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/inbox", strings.NewReader("not json"))
	server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestUserInboxUnknownUser(t *testing.T) {
	server, _ := testServer(t)

	body := `{"type":"Like","actor":"https://remote.example/users/alice","object":"https://x"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/users/nobody/inbox", strings.NewReader(body))
	server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestClosedModeRejectsFollows(t *testing.T) {
	server, _ := testServer(t)
	server.conf.Conf.Closed = true

	body := `{"type":"Follow","actor":"https://remote.example/users/alice","object":"https://local.example/users/carol"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/inbox", strings.NewReader(body))
	server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403, got %d", w.Code)
	}
}

func TestInboxRejectsOversizedBody(t *testing.T) {
	server, _ := testServer(t)

	big := strings.Repeat("x", maxActivityBytes+1)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/inbox", strings.NewReader(big))
	server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %d", w.Code)
	}
}

func TestInboxRejectsUnsignedActivity(t *testing.T) {
	server, _ := testServer(t)
	server.verifier = activitypub.NewVerifier(nil)

	body := `{"type":"Like","actor":"https://remote.example/users/alice","object":"https://x"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/inbox", strings.NewReader(body))
	server.Router().ServeHTTP(w, req)

	// No Signature header at all: malformed, not merely unauthorized.
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}
