package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"boongle/internal/adapter/repo"
	"boongle/internal/domain"
	"boongle/internal/entitlement"
	"boongle/internal/infra"
)

func main() {
	var (
		idFlag     string
		emailFlag  string
		planFlag   string
		codeFlag   string
		createFlag bool
	)

	flag.StringVar(&idFlag, "id", "", "user ID to update (UUID)")
	flag.StringVar(&emailFlag, "email", "", "user email to update")
	flag.StringVar(&planFlag, "plan", "", "plan to assign (free, pro, premium)")
	flag.StringVar(&codeFlag, "code", "", "claim code to redeem instead of -plan")
	flag.BoolVar(&createFlag, "create", false, "create a FREE profile for -id when none exists")
	flag.Parse()

	userID := strings.TrimSpace(idFlag)
	email := strings.TrimSpace(emailFlag)

	if userID == "" && email == "" {
		exitWithError(errors.New("either -id or -email must be provided"))
	}
	if createFlag && userID == "" {
		exitWithError(errors.New("-create requires -id"))
	}

	var (
		plan domain.Plan
		err  error
	)
	switch {
	case strings.TrimSpace(codeFlag) != "":
		plan, err = entitlement.PlanForClaimCode(codeFlag)
	case strings.TrimSpace(planFlag) != "":
		plan, err = domain.ParsePlan(planFlag)
	case !createFlag:
		err = errors.New("-plan or -code is required")
	}
	if err != nil {
		exitWithError(err)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "userplan").Logger()
	profiles := repo.NewProfileRepository(infra.NewSQLRunner(pool, logger))
	ledger := entitlement.NewLedger(profiles, domain.SystemClock, logger)

	if userID == "" {
		userID, err = profiles.LookupIDByEmail(ctx, email)
		if err != nil {
			exitWithError(fmt.Errorf("failed to find user %s: %w", email, err))
		}
	}

	if createFlag {
		fresh := entitlement.Fallback(userID, email, ledger.Now())
		if err := profiles.Create(ctx, fresh); err != nil {
			exitWithError(fmt.Errorf("failed to create profile: %w", err))
		}
	}

	var p *domain.Profile
	if plan != "" {
		p, err = ledger.Claim(ctx, userID, plan)
	} else {
		p, err = ledger.Load(ctx, userID)
	}
	if err != nil {
		exitWithError(fmt.Errorf("failed to update user plan: %w", err))
	}

	fmt.Printf("User %s (%s) is on plan %s\n", p.ID, p.Email, p.ActivePlan)
	fmt.Println(entitlement.Describe(p, true).Text)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
