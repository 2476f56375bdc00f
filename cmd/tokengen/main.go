// Package main mints development JWTs. In production, tokens come from the
// external authentication service; this tool stands in for it so the API
// and WebSocket endpoints can be exercised locally.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/clipstream/backend/config"
	"github.com/clipstream/backend/internal/auth"
)

func main() {
	userFlag := flag.String("user", "", "principal id (uuid); random when empty")
	tenant := flag.String("tenant", "", "tenant the token is scoped to (required)")
	role := flag.String("role", auth.RoleEditor, "role: viewer, editor or admin")
	flag.Parse()

	if *tenant == "" {
		fmt.Fprintln(os.Stderr, "tokengen: -tenant is required")
		os.Exit(2)
	}
	switch *role {
	case auth.RoleViewer, auth.RoleEditor, auth.RoleAdmin:
	default:
		fmt.Fprintf(os.Stderr, "tokengen: unknown role %q\n", *role)
		os.Exit(2)
	}

	userID := uuid.New()
	if *userFlag != "" {
		parsed, err := uuid.Parse(*userFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "tokengen: invalid -user: %v\n", err)
			os.Exit(2)
		}
		userID = parsed
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "tokengen: load config: %v\n", err)
		os.Exit(1)
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	token, err := jwtService.Generate(userID, *tenant, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tokengen: generate: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("user:   %s\ntenant: %s\nrole:   %s\ntoken:  %s\n", userID, *tenant, *role, token)
}
