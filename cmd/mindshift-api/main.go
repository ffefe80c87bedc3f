package main

import (
	"context"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/mindshift/mindshift/internal/adapters/exchange"
	httpadapter "github.com/mindshift/mindshift/internal/adapters/http"
	"github.com/mindshift/mindshift/internal/adapters/identity"
	firestorestore "github.com/mindshift/mindshift/internal/adapters/storage/firestore"
	memstore "github.com/mindshift/mindshift/internal/adapters/storage/memory"
	sqlitestore "github.com/mindshift/mindshift/internal/adapters/storage/sqlite"
	"github.com/mindshift/mindshift/internal/app/client"
	"github.com/mindshift/mindshift/internal/config"
	"github.com/mindshift/mindshift/internal/domain"
	"github.com/mindshift/mindshift/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "mindshift-api",
	Short: "MindShift chat backend",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func main() {
	rootCmd.AddCommand(serveCmd)
	cobra.CheckErr(rootCmd.Execute())
}

// store is the combined contract every storage backend satisfies.
type store interface {
	domain.DirectoryStore
	domain.ConversationStore
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	observability.SetLevel(cfg.LogLevel)
	log := observability.Logger()

	var st store
	switch cfg.StorageBackend {
	case config.StorageFirestore:
		log.Info().Str("project", cfg.GCPProjectID).Msg("using firestore storage")
		st, err = firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return err
		}
	case config.StorageSQLite:
		log.Info().Str("path", cfg.SQLitePath).Msg("using sqlite storage")
		st, err = sqlitestore.New(cfg.SQLitePath)
		if err != nil {
			return err
		}
	default:
		log.Info().Msg("using in-memory storage")
		st = memstore.NewStore()
	}

	var exchangeClient domain.ExchangeClient
	switch cfg.ExchangeBackend {
	case config.ExchangeGemini:
		log.Info().Str("model", cfg.ModelName).Msg("using gemini exchange")
		exchangeClient, err = exchange.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.ModelName)
		if err != nil {
			return err
		}
	case config.ExchangeOpenAI:
		log.Info().Str("model", cfg.ModelName).Msg("using openai exchange")
		exchangeClient, err = exchange.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.ModelName)
		if err != nil {
			return err
		}
	default:
		log.Info().Msg("using mock exchange")
		exchangeClient = exchange.NewMock()
	}

	var verifier httpadapter.TokenVerifier
	var sessionFor func(user *domain.User) domain.Identity
	switch cfg.IdentityBackend {
	case config.IdentityFirebase:
		log.Info().Str("project", cfg.GCPProjectID).Msg("using firebase identity")
		fv, err := identity.NewVerifier(ctx, cfg.GCPProjectID)
		if err != nil {
			return err
		}
		verifier = fv
		sessionFor = func(user *domain.User) domain.Identity { return fv.Session(user) }
	default:
		staticUser := domain.User{UID: domain.UserID(cfg.StaticUserID), Email: cfg.StaticUserEmail}
		log.Info().Str("uid", cfg.StaticUserID).Msg("using static identity")
		verifier = identity.NewStaticVerifier(staticUser)
		sessionFor = func(user *domain.User) domain.Identity { return identity.NewSession(user) }
	}

	newClient := func(ctx context.Context, user *domain.User) (*client.Client, error) {
		c := client.New(st, st, exchangeClient, sessionFor(user))
		if err := c.Start(ctx); err != nil {
			c.Stop()
			return nil, err
		}
		return c, nil
	}

	handler := httpadapter.NewServer(ctx, verifier, newClient)

	addr := ":" + cfg.Port
	log.Info().Str("addr", addr).Msg("mindshift api listening")
	return http.ListenAndServe(addr, handler)
}
