// Command token seeds a user profile into the message store and prints a
// credential for it, for local testing against the relay.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/chatrelay/internal/adapters/auth"
	"github.com/dkeye/chatrelay/internal/adapters/store"
	"github.com/dkeye/chatrelay/internal/config"
	"github.com/dkeye/chatrelay/internal/domain"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var (
		id     = flag.String("id", "", "user id (required)")
		name   = flag.String("name", "", "display name, defaults to the id")
		avatar = flag.String("avatar", "", "avatar url")
		ttl    = flag.Duration("ttl", 24*time.Hour, "token lifetime")
	)
	flag.Parse()

	if *id == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *name == "" {
		*name = *id
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	user, err := domain.NewUser(domain.UserID(*id), *name, *avatar)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid user")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open message store")
	}
	defer db.Close()

	if err := db.UpsertUser(ctx, *user); err != nil {
		log.Fatal().Err(err).Msg("failed to save user")
	}

	if cfg.RedisURL != "" {
		if client, err := store.NewRedisClient(ctx, cfg.RedisURL); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, cached profile not invalidated")
		} else {
			if err := store.NewProfileCache(db, client, cfg.ProfileTTL).Invalidate(ctx, user.ID); err != nil {
				log.Warn().Err(err).Msg("profile cache invalidate")
			}
			_ = client.Close()
		}
	}

	verifier := auth.NewJWTVerifier(auth.JWTConfig{
		SecretKey:     cfg.JWTSecret,
		Issuer:        cfg.JWTIssuer,
		TokenDuration: *ttl,
	})
	token, err := verifier.Mint(user.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to mint token")
	}
	fmt.Println(token)
}
