package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"boongle/internal/domain"
	"boongle/internal/infra"
	"boongle/internal/infra/credentials"
	"boongle/internal/storage"
)

func main() {
	var (
		keyFlag      string
		providerFlag string
		storeFlag    string
	)
	flag.StringVar(&keyFlag, "key", "", "API key for the selected provider (falls back to environment)")
	flag.StringVar(&providerFlag, "provider", credentials.ProviderGemini, "image provider to configure (gemini or openai)")
	flag.StringVar(&storeFlag, "store", "", "credential store: file or postgres (defaults to CREDENTIAL_STORE)")
	flag.Parse()

	provider := strings.TrimSpace(strings.ToLower(providerFlag))
	switch provider {
	case credentials.ProviderGemini, credentials.ProviderOpenAI:
	case "":
		provider = credentials.ProviderGemini
	default:
		exitWithError(fmt.Errorf("unsupported provider %q", providerFlag))
	}

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		switch provider {
		case credentials.ProviderOpenAI:
			key = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		default:
			key = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
		}
	}
	if key == "" {
		exitWithError(fmt.Errorf("%s API key is required via -key or environment", strings.ToUpper(provider)))
	}

	kind := strings.TrimSpace(strings.ToLower(storeFlag))
	if kind == "" {
		kind = strings.ToLower(strings.TrimSpace(os.Getenv("CREDENTIAL_STORE")))
	}
	if kind == "" {
		kind = "file"
	}

	logger := infra.NewLogger("cli").With().Str("cmd", "apikey").Str("provider", provider).Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var store domain.CredentialStore
	switch kind {
	case "postgres":
		dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
		if dbURL == "" {
			exitWithError(fmt.Errorf("DATABASE_URL is required"))
		}
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			exitWithError(fmt.Errorf("failed to create pool: %w", err))
		}
		defer pool.Close()
		store = credentials.NewStore(infra.NewSQLRunner(pool, logger), provider)
	case "file":
		cfgDir := os.Getenv("STATE_DIR")
		if cfgDir == "" {
			dir, err := os.UserConfigDir()
			if err != nil {
				exitWithError(fmt.Errorf("STATE_DIR is required: %w", err))
			}
			cfgDir = filepath.Join(dir, "boongle")
		}
		files, err := storage.NewFileStore(cfgDir)
		if err != nil {
			exitWithError(fmt.Errorf("failed to open state dir: %w", err))
		}
		store = credentials.NewFileStore(files, provider)
	default:
		exitWithError(fmt.Errorf("unsupported store %q", kind))
	}

	if err := store.Set(ctx, key); err != nil {
		exitWithError(fmt.Errorf("failed to persist %s api key: %w", provider, err))
	}
	logger.Info().Str("store", kind).Msg("api key stored")
	fmt.Printf("%s API key stored successfully\n", strings.ToUpper(provider))
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
