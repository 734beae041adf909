package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type webfingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type"`
	Href string `json:"href"`
}

type webfingerResponse struct {
	Subject string          `json:"subject"`
	Links   []webfingerLink `json:"links"`
}

// handleWebfinger resolves acct:user@domain resources to actor URIs.
func (s *Server) handleWebfinger(c *gin.Context) {
	resource := c.Query("resource")

	acct := strings.TrimPrefix(resource, "acct:")
	name, host, found := strings.Cut(acct, "@")
	if resource == acct || !found || !strings.EqualFold(host, s.conf.Conf.Domain) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
		return
	}

	actorURI := s.conf.ActorURI(name)
	if name == "relay" {
		actorURI = s.conf.RelayActorURI()
	}

	if _, err := s.store.AccountByUsername(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
		return
	}

	c.Header("Content-Type", "application/jrd+json; charset=utf-8")
	c.JSON(http.StatusOK, webfingerResponse{
		Subject: fmt.Sprintf("acct:%s@%s", name, s.conf.Conf.Domain),
		Links: []webfingerLink{
			{
				Rel:  "self",
				Type: "application/activity+json",
				Href: actorURI,
			},
		},
	})
}
