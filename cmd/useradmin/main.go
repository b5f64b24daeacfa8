package main

import (
	"context"
	"flag"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/iach526526/pastexam/internal/infra"
	"github.com/iach526526/pastexam/internal/sqlinline"
)

// useradmin creates local accounts from the command line, mainly the first
// admin of a fresh deployment.
func main() {
	username := flag.String("username", "", "login username")
	name := flag.String("name", "", "display name, defaults to the username")
	email := flag.String("email", "", "email address")
	password := flag.String("password", "", "login password")
	admin := flag.Bool("admin", false, "grant admin rights")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		bootLogger := infra.NewLogger("production")
		bootLogger.Fatal().Err(err).Msg("load config")
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if *username == "" || *password == "" {
		logger.Fatal().Msg("username and password are required")
	}
	if *name == "" {
		*name = *username
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		logger.Fatal().Err(err).Msg("hash password")
	}

	runner := infra.NewSQLRunner(pool, logger)
	var id int64
	row := runner.QueryRow(ctx, sqlinline.QInsertLocalUser, *username, *name, *email, string(hash), *admin)
	if err := row.Scan(&id); err != nil {
		logger.Fatal().Err(err).Msg("create user")
	}

	logger.Info().Int64("id", id).Str("username", *username).Bool("admin", *admin).Msg("user created")
}
