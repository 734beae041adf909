package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/feeds"
	"github.com/labstack/gommon/log"
)

const feedLimit = 50

// handleFeed serves recent public posts as RSS, so the federated timeline
// can be followed without an account.
func (s *Server) handleFeed(c *gin.Context) {
	posts, err := s.store.PublicPosts(feedLimit)
	if err != nil {
		log.Errorf("Feed: could not load posts: %v", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	feed := &feeds.Feed{
		Title:       fmt.Sprintf("%s - federated timeline", s.conf.Conf.Domain),
		Link:        &feeds.Link{Href: fmt.Sprintf("https://%s/feed", s.conf.Conf.Domain)},
		Description: "Public posts received by this server",
		Created:     time.Now(),
	}

	for _, post := range posts {
		feed.Items = append(feed.Items, &feeds.Item{
			Id:      post.ActivityPubId,
			Title:   post.CreatedAt.Format(time.RFC1123),
			Link:    &feeds.Link{Href: post.ActivityPubId},
			Content: post.Content,
			Author:  &feeds.Author{Name: post.AuthorURI},
			Created: post.CreatedAt,
		})
	}

	rss, err := feed.ToRss()
	if err != nil {
		log.Errorf("Feed: could not render rss: %v", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.String(http.StatusOK, rss)
}
