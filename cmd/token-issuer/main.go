// Command token-issuer mints service tokens for producers and operators of
// the adforge API. It signs with the same secret as the server, read from
// ADFORGE_AUTH_JWT_SECRET.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/phrazzld/adforge/internal/config"
	"github.com/phrazzld/adforge/internal/service/auth"
)

func main() {
	if err := run(os.Args[1:], os.Getenv, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "token-issuer: %v\n", err)
		os.Exit(2)
	}
}

func run(args []string, getenv func(string) string, out io.Writer) error {
	fs := flag.NewFlagSet("token-issuer", flag.ContinueOnError)
	subject := fs.String("subject", "", "service name recorded as the token subject")
	scopes := fs.String("scopes", auth.ScopeJobsWrite+","+auth.ScopeJobsRead, "comma separated scopes to grant")
	lifetime := fs.Int("lifetime-minutes", 60*24, "token lifetime in minutes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return errors.New("-subject is required")
	}

	svc, err := auth.NewJWTService(config.AuthConfig{
		JWTSecret:            getenv(config.EnvPrefix + "_AUTH_JWT_SECRET"),
		TokenLifetimeMinutes: *lifetime,
	})
	if err != nil {
		return err
	}

	var granted []string
	for _, s := range strings.Split(*scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			granted = append(granted, s)
		}
	}

	token, err := svc.GenerateToken(context.Background(), *subject, granted...)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
