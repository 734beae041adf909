package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/atomine-elektrine/elektrine-sub014/domain"
)

func TestFeedServesPublicPosts(t *testing.T) {
	server, database := testServer(t)

	post := &domain.Post{
		Id:            uuid.New(),
		ActivityPubId: "https://remote.example/notes/1",
		AuthorURI:     "https://remote.example/users/alice",
		Content:       "hello feed",
		Visibility:    domain.VisibilityPublic,
		CreatedAt:     time.Now(),
	}
	if err := database.CreatePost(post); err != nil {
		t.Fatal(err)
	}

	hidden := &domain.Post{
		Id:            uuid.New(),
		ActivityPubId: "https://remote.example/notes/2",
		AuthorURI:     "https://remote.example/users/alice",
		Content:       "followers only",
		Visibility:    domain.VisibilityFollowers,
		CreatedAt:     time.Now(),
	}
	if err := database.CreatePost(hidden); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "<rss") {
		t.Error("Response should be RSS")
	}
	if !strings.Contains(body, "hello feed") {
		t.Error("Feed should contain the public post")
	}
	if strings.Contains(body, "followers only") {
		t.Error("Feed must not contain non-public posts")
	}
}
