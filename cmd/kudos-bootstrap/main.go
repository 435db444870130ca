// Command kudos-bootstrap is the one-shot init CLI spec.md §6 names:
// create the operator superuser, seed the fixed system users ("odin"
// superadmin, "shadow" bot, "root" superadmin), and seed the dictionary
// tables — every step idempotent so a re-run after a partial failure is
// safe. Grounded on the teacher's cmd/ convention of one small binary
// per operational concern (see infrastructure/service's own bootstrap
// split from the long-running server binary) rather than folding this
// into cmd/kudos-server's startup path.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/kudos-hq/kudos-server/internal/config"
	"github.com/kudos-hq/kudos-server/internal/dictionary"
	"github.com/kudos-hq/kudos-server/internal/domain/identity"
	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

func main() {
	os.Exit(run())
}

func run() int {
	email := flag.String("email", "", "superuser email (falls back to SUPERUSER_EMAIL, then an interactive prompt)")
	password := flag.String("password", "", "superuser password (falls back to SUPERUSER_PASSWORD, then an interactive prompt)")
	skipSuperuser := flag.Bool("skip-superuser", false, "skip creating the operator superuser")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		return 1
	}

	db, err := database.Connect(database.Config{DSN: cfg.DatabaseURL})
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		return 1
	}
	defer db.Close()

	if err := db.Migrate("migrations"); err != nil {
		fmt.Fprintln(os.Stderr, "run migrations:", err)
		return 1
	}

	ctx := context.Background()
	identitySvc := identity.NewService(db)

	if n, err := dictionary.Seed(ctx, db.DB); err != nil {
		fmt.Fprintln(os.Stderr, "seed dictionaries:", err)
		return 1
	} else {
		fmt.Printf("dictionaries: %d new code(s) inserted\n", n)
	}

	systemUsers := []struct {
		username, email, userType string
	}{
		{dictionary.SystemUserOdin, "odin@system.kudos.local", identity.TypeSuperadmin},
		{dictionary.SystemUserShadow, "shadow@system.kudos.local", identity.TypeBot},
		{dictionary.SystemUserRoot, "root@system.kudos.local", identity.TypeSuperadmin},
	}
	for _, su := range systemUsers {
		u, err := identitySvc.EnsureSystemUser(ctx, su.email, su.username, randomSystemPassword(), su.userType)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed system user %q: %v\n", su.username, err)
			return 1
		}
		fmt.Printf("system user %q ready (id=%s)\n", su.username, u.ID)
	}

	if *skipSuperuser {
		return 0
	}

	supEmail := firstNonEmpty(*email, cfg.SuperuserEmail)
	supPassword := firstNonEmpty(*password, cfg.SuperuserPassword)
	if supEmail == "" {
		supEmail = prompt("Superuser email: ")
	}
	if supPassword == "" {
		supPassword = promptSecret("Superuser password: ")
	}
	if supEmail == "" || supPassword == "" {
		fmt.Fprintln(os.Stderr, "superuser email and password are required")
		return 1
	}

	username := strings.SplitN(supEmail, "@", 2)[0]
	u, err := identitySvc.EnsureSystemUser(ctx, supEmail, username, supPassword, identity.TypeSuperadmin)
	if err != nil {
		fmt.Fprintln(os.Stderr, "create superuser:", err)
		return 1
	}
	fmt.Printf("superuser %q ready (id=%s)\n", supEmail, u.ID)
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func prompt(label string) string {
	fmt.Print(label)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func promptSecret(label string) string {
	fmt.Print(label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return prompt("")
	}
	return strings.TrimSpace(string(b))
}

// randomSystemPassword generates a throwaway credential for the fixed
// system users; they authenticate via internal service calls, never an
// interactive login, so the value itself is never surfaced to an
// operator.
func randomSystemPassword() string {
	return identity.GenerateOpaqueSecret()
}
