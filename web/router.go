package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/labstack/gommon/log"
	"golang.org/x/time/rate"

	"github.com/atomine-elektrine/elektrine-sub014/activitypub"
	"github.com/atomine-elektrine/elektrine-sub014/db"
	"github.com/atomine-elektrine/elektrine-sub014/util"
)

const maxActivityBytes = 1 * 1024 * 1024

// Server wires the federation HTTP surface: inboxes, actor documents,
// webfinger and the RSS feed.
type Server struct {
	conf     *util.AppConfig
	store    *db.DB
	proc     *activitypub.Processor
	verifier *activitypub.Verifier
	resolver *activitypub.Resolver
	httpSrv  *http.Server
}

func NewServer(conf *util.AppConfig, store *db.DB, proc *activitypub.Processor, verifier *activitypub.Verifier, resolver *activitypub.Resolver) *Server {
	return &Server{
		conf:     conf,
		store:    store,
		proc:     proc,
		verifier: verifier,
		resolver: resolver,
	}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	g.Use(RateLimitMiddleware(NewRateLimiter(rate.Limit(10), 20)))

	g.GET("/.well-known/webfinger", s.handleWebfinger)

	g.GET("/feed", s.handleFeed)

	// Stricter limits on the federation endpoints.
	apLimiter := RateLimitMiddleware(NewRateLimiter(rate.Limit(5), 10))
	maxBodySize := MaxBytesMiddleware(maxActivityBytes)

	g.GET("/users/:username", s.handleActor)
	g.GET("/actor", s.handleRelayActor)

	g.POST("/inbox", apLimiter, maxBodySize, s.handleInbox)
	g.POST("/users/:username/inbox", apLimiter, maxBodySize, s.handleUserInbox)

	return g
}

// Run starts the HTTP listener.
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.conf.Conf.Host, s.conf.Conf.HttpPort)
	log.Infof("Web: starting federation server on %s", addr)
	s.httpSrv = &http.Server{Addr: addr, Handler: s.Router()}
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for in-flight requests.
// Must complete before the task runner stops so late deliveries can still
// queue their fan-out.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// handleInbox is the shared inbox. Per-user inboxes funnel into the same
// processing; addressing inside the activity decides who is affected.
func (s *Server) handleInbox(c *gin.Context) {
	s.processInbox(c)
}

func (s *Server) handleUserInbox(c *gin.Context) {
	username := c.Param("username")
	if _, err := s.store.AccountByUsername(username); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	s.processInbox(c)
}

// processInbox authenticates and dispatches one delivered activity. The
// signing actor must be the activity's actor; processing happens before
// the response so delivery failures are visible to the sender.
func (s *Server) processInbox(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	act, err := activitypub.ParseActivity(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed activity"})
		return
	}

	if s.conf.Conf.Closed && act.Type == "Follow" {
		c.JSON(http.StatusForbidden, gin.H{"error": "This server does not accept new followers"})
		return
	}

	signer, err := s.verifier.Verify(c.Request)
	if err != nil {
		status, message := signatureFailureStatus(err)
		c.JSON(status, gin.H{"error": message})
		return
	}

	if err := activitypub.VerifyDigest(c.Request, body); err != nil {
		status, message := signatureFailureStatus(err)
		c.JSON(status, gin.H{"error": message})
		return
	}

	if signer != act.Actor {
		log.Warnf("Inbox: signature by %s does not match activity actor %s", signer, act.Actor)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Signature does not match actor"})
		return
	}

	sender, err := s.resolver.Resolve(act.Actor)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Actor could not be resolved"})
		return
	}

	outcome, err := s.proc.Process(act, sender)
	if err != nil {
		if errors.Is(err, activitypub.ErrUnauthorized) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Not allowed"})
			return
		}
		log.Errorf("Inbox: processing %s from %s failed: %v", act.Type, act.Actor, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Processing failed"})
		return
	}

	log.Infof("Inbox: %s from %s -> %s", act.Type, act.Actor, outcome)
	c.Status(http.StatusAccepted)
}

// signatureFailureStatus maps authentication failures onto HTTP statuses:
// requests we cannot even parse are 400s, requests that parse but do not
// authenticate are 401s.
func signatureFailureStatus(err error) (int, string) {
	var missing *activitypub.MissingHeadersError
	switch {
	case errors.Is(err, activitypub.ErrMalformedSignatureHeader):
		return http.StatusBadRequest, "Malformed signature header"
	case errors.As(err, &missing):
		return http.StatusBadRequest, missing.Error()
	case errors.Is(err, activitypub.ErrInvalidSignatureEncoding):
		return http.StatusBadRequest, "Signature is not valid base64"
	case errors.Is(err, activitypub.ErrActorUnresolvable):
		return http.StatusUnauthorized, "Signing actor could not be resolved"
	case errors.Is(err, activitypub.ErrInvalidSignature):
		return http.StatusUnauthorized, "Signature verification failed"
	default:
		return http.StatusUnauthorized, "Unauthorized"
	}
}
