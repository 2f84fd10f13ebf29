// ABOUTME: Admin CLI for fedigate principal and token management
// ABOUTME: Operates directly on the sqlite store, no running server required

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/fastfedi/fedigate/internal/password"
	"github.com/fastfedi/fedigate/internal/store"
)

const banner = `
  __         _ _             _                          _           _
 / _|___  __| (_) __ _  __ _| |_ ___           __ _  __| |_ __ ___ (_)_ __
| |_/ _ \/ _' | |/ _' |/ _' | __/ _ \  _____  / _' |/ _' | '_ ' _ \| | '_ \
|  _|  __/ (_| | | (_| | (_| | ||  __/|_____|| (_| | (_| | | | | | | | | | |
|_|  \___|\__,_|_|\__, |\__,_|\__\___|        \__,_|\__,_|_| |_| |_|_|_| |_|
                  |___/
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "list":
		err = cmdList(ctx)
	case "create":
		err = cmdCreate(ctx, args)
	case "enable":
		err = cmdSetDisabled(ctx, args, false)
	case "disable":
		err = cmdSetDisabled(ctx, args, true)
	case "promote":
		err = cmdSetAdmin(ctx, args, true)
	case "demote":
		err = cmdSetAdmin(ctx, args, false)
	case "tokens":
		err = cmdTokens(ctx, args)
	case "revoke":
		err = cmdRevoke(ctx, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: fedigate-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  list                    List all principals")
	fmt.Println("  create <email>          Create a principal with a generated password")
	fmt.Println("  enable <email>          Re-enable a disabled principal")
	fmt.Println("  disable <email>         Disable a principal (blocks all logins)")
	fmt.Println("  promote <email>         Grant the admin scope at next login")
	fmt.Println("  demote <email>          Remove the admin scope at next login")
	fmt.Println("  tokens <email>          List a principal's refresh tokens")
	fmt.Println("  revoke <token>          Delete a refresh token")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  FEDIGATE_ADMIN_CONFIG   Config path (default: ~/.config/fedigate/admin.toml)")
	fmt.Println()
}

func openStore() (*store.SQLiteStore, error) {
	cfg, err := loadConfig(configPath())
	if err != nil {
		return nil, err
	}
	return store.NewSQLiteStore(cfg.Database.Path)
}

func cmdList(ctx context.Context) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	principals, err := s.ListPrincipals(ctx)
	if err != nil {
		return fmt.Errorf("listing principals: %w", err)
	}

	if len(principals) == 0 {
		fmt.Println("No principals.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tID\tSTATUS\tADMIN\tTOTP\tVALIDATED")
	for _, p := range principals {
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%v\t%v\n",
			p.Email, p.ID, statusString(p), p.IsAdmin, p.HasTOTP(), p.EmailValidated)
	}
	return w.Flush()
}

func statusString(p *store.Principal) string {
	switch {
	case p.IsDisabled:
		return "disabled"
	case !p.IsApproved:
		return "pending"
	case !p.IsActive:
		return "inactive"
	default:
		return "active"
	}
}

func cmdCreate(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: fedigate-admin create <email>")
	}
	email := strings.TrimSpace(args[0])
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email address: %s", email)
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	raw := make([]byte, 18)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("generating password: %w", err)
	}
	pass := base64.RawURLEncoding.EncodeToString(raw)

	hasher, err := password.New(password.DefaultParams())
	if err != nil {
		return fmt.Errorf("creating password hasher: %w", err)
	}
	hash, err := hasher.Hash(pass)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	p := &store.Principal{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		IsApproved:   true,
	}
	if err := s.CreatePrincipal(ctx, p); err != nil {
		return fmt.Errorf("creating principal: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Created %s\n", email)
	fmt.Printf("  ID:       %s\n", p.ID)
	fmt.Printf("  Password: %s\n", pass)
	color.Yellow("  The password is shown once.")
	return nil
}

func cmdSetDisabled(ctx context.Context, args []string, disabled bool) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: fedigate-admin enable|disable <email>")
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := s.GetPrincipalByEmail(ctx, args[0])
	if err != nil {
		return fmt.Errorf("looking up principal: %w", err)
	}

	if err := s.SetPrincipalFlags(ctx, p.ID, p.IsActive, disabled, p.IsApproved, p.IsAdmin); err != nil {
		return fmt.Errorf("updating principal: %w", err)
	}

	if disabled {
		// Disabling cuts off every outstanding session, not just new logins
		if err := s.DeleteRefreshTokensForPrincipal(ctx, p.ID); err != nil {
			return fmt.Errorf("revoking refresh tokens: %w", err)
		}
		color.Yellow("✓ Disabled %s (refresh tokens revoked)", p.Email)
	} else {
		color.Green("✓ Enabled %s", p.Email)
	}
	return nil
}

func cmdSetAdmin(ctx context.Context, args []string, admin bool) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: fedigate-admin promote|demote <email>")
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := s.GetPrincipalByEmail(ctx, args[0])
	if err != nil {
		return fmt.Errorf("looking up principal: %w", err)
	}

	if err := s.SetPrincipalFlags(ctx, p.ID, p.IsActive, p.IsDisabled, p.IsApproved, admin); err != nil {
		return fmt.Errorf("updating principal: %w", err)
	}

	if admin {
		color.Green("✓ %s will receive the admin scope at next login", p.Email)
	} else {
		color.Green("✓ %s demoted; existing tokens keep their scopes until refresh", p.Email)
	}
	return nil
}

func cmdTokens(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: fedigate-admin tokens <email>")
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := s.GetPrincipalByEmail(ctx, args[0])
	if err != nil {
		return fmt.Errorf("looking up principal: %w", err)
	}

	tokens, err := s.ListRefreshTokens(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("listing tokens: %w", err)
	}

	if len(tokens) == 0 {
		fmt.Printf("No refresh tokens for %s.\n", p.Email)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOKEN\tSCOPES\tCREATED")
	for _, tok := range tokens {
		fmt.Fprintf(w, "%s\t%s\t%s\n", truncate(tok.Token, 24), tok.Scopes, tok.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func cmdRevoke(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: fedigate-admin revoke <token>")
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.DeleteRefreshToken(ctx, args[0]); err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}

	color.Green("✓ Token revoked")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
