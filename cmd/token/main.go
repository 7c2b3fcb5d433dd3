// Command token issues a signed JWT for a marketplace actor. Login and
// account management live outside this service; this is for local use.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"upcycle-api-server/config"
	"upcycle-api-server/internal/auth"
	"upcycle-api-server/internal/models"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "token:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var (
		id, kind, secret, configDir string
		ttl                         time.Duration
		blocked                     bool
	)
	flagSet := pflag.NewFlagSet("token", pflag.ContinueOnError)
	flagSet.StringVar(&id, "id", "", "actor id (organization or buyer id)")
	flagSet.StringVar(&kind, "kind", string(models.ActorBuyer), "actor kind: buyer, organization or admin")
	flagSet.StringVar(&secret, "secret", "", "signing secret (defaults to jwt.secret from config)")
	flagSet.StringVar(&configDir, "config", "./config", "directory holding config.yaml")
	flagSet.DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to jwt.expiration)")
	flagSet.BoolVar(&blocked, "blocked", false, "mark the actor as blocked")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if id == "" {
		return errors.New("--id is required")
	}
	actor := models.Actor{ID: id, Kind: models.ActorKind(kind), Blocked: blocked}
	if !actor.Kind.Valid() {
		return fmt.Errorf("unknown --kind %q", kind)
	}

	if secret == "" || ttl == 0 {
		cfg, err := config.LoadConfig(configDir)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if secret == "" {
			secret = cfg.JWT.Secret
		}
		if ttl == 0 {
			ttl = cfg.JWT.TTL()
		}
	}

	token, err := auth.NewService(secret, ttl).GenerateJWT(actor)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
