package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/atomine-elektrine/elektrine-sub014/activitypub"
	"github.com/atomine-elektrine/elektrine-sub014/db"
	"github.com/atomine-elektrine/elektrine-sub014/domain"
	"github.com/atomine-elektrine/elektrine-sub014/util"
	"github.com/atomine-elektrine/elektrine-sub014/web"
)

func main() {
	conf, err := util.ReadConf()
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("Configuration:\n%s", util.PrettyPrint(conf))

	database := db.GetDB()
	defer database.Close()

	if err := ensureInstanceActor(database); err != nil {
		log.Fatal(err)
	}

	resolver := activitypub.NewResolver(database, conf)
	verifier := activitypub.NewVerifier(resolver)
	outbox := activitypub.NewOutbox(conf)

	tasks := activitypub.NewTaskRunner(0)
	tasks.Start(0)

	processor := activitypub.NewProcessor(conf, database, resolver, tasks, outbox, outbox)
	server := web.NewServer(conf, database, processor, verifier, resolver)

	go activitypub.SubscribeToRelays(conf, database, resolver, outbox)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Run(); err != nil {
			log.Fatal(err)
		}
	}()

	<-done
	log.Info("Stopping federation server")

	// The listener goes down first so no request can queue fan-out on a
	// stopped runner.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warnf("Shutdown: %v", err)
	}
	tasks.Stop()
}

// ensureInstanceActor creates the relay (instance) account on first boot.
// Other servers address it for relay subscriptions and it signs
// instance-level requests.
func ensureInstanceActor(database *db.DB) error {
	_, err := database.AccountByUsername("relay")
	if err == nil {
		return nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return err
	}

	keys := util.GeneratePemKeypair()

	log.Info("Creating instance actor")
	return database.CreateAccount(&domain.Account{
		Id:            uuid.New(),
		Username:      "relay",
		Kind:          domain.ActorService,
		PublicKeyPem:  keys.Public,
		PrivateKeyPem: keys.Private,
		CreatedAt:     time.Now(),
	})
}
