package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/attachtrack/attachtrack-api/internal/cache"
	"github.com/attachtrack/attachtrack-api/internal/database/memory"
	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/attachtrack/attachtrack-api/internal/repository"
	"github.com/attachtrack/attachtrack-api/internal/services"
	"github.com/attachtrack/attachtrack-api/pkg/hasher"
	"github.com/attachtrack/attachtrack-api/pkg/jwt"
	"github.com/attachtrack/attachtrack-api/pkg/logger"
	"github.com/stretchr/testify/require"
)

func init() {
	// Initialize logger for tests
	if err := logger.Initialize(logger.Config{
		Level:       "error",
		Environment: "development",
	}); err != nil {
		panic(err)
	}
}

const testSecret = "correct horse battery"

// cheapHasher keeps argon2 fast enough for concurrency tests
func cheapHasher() *hasher.Argon2Hasher {
	return hasher.NewArgon2Hasher(hasher.Params{Memory: 1024, Iterations: 1, Parallelism: 1})
}

// env wires every service over fresh in-memory stores
type env struct {
	stores       repository.Stores
	credentials  *services.CredentialService
	auth         *services.AuthService
	guard        *services.Guard
	tokens       *jwt.TokenManager
	revocations  *cache.MemoryRevocationList
	ledger       *services.LedgerService
	attachments  *services.AttachmentService
	applications *services.ApplicationService
	admin        *models.Principal
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWith(t, newEnvOptions{})
}

type newEnvOptions struct {
	scope         models.EmailScope
	rotateRefresh bool
	clock         func() time.Time
	noAdmin       bool

	// wrapAttachments decorates the attachment store, e.g. to inject failures
	wrapAttachments func(repository.AttachmentStore) repository.AttachmentStore
}

func newEnvWith(t *testing.T, opts newEnvOptions) *env {
	t.Helper()

	stores := memory.NewStores()
	if opts.wrapAttachments != nil {
		stores.Attachments = opts.wrapAttachments(stores.Attachments)
	}
	var tmOpts []jwt.Option
	if opts.clock != nil {
		tmOpts = append(tmOpts, jwt.WithClock(opts.clock))
	}
	tokens := jwt.NewTokenManager("test-secret-key-for-tokens", "attachtrack-test", time.Hour, 14*24*time.Hour, tmOpts...)
	revocations := cache.NewMemoryRevocationList()

	credentials := services.NewCredentialService(stores.Principals, cheapHasher(), opts.scope)
	auth := services.NewAuthService(credentials, tokens, revocations, opts.rotateRefresh)
	ledger := services.NewLedgerService(stores.Positions)
	attachments := services.NewAttachmentService(stores.Attachments, ledger)
	applications := services.NewApplicationService(stores.Applications, credentials, ledger, attachments)

	e := &env{
		stores:       stores,
		credentials:  credentials,
		auth:         auth,
		guard:        services.NewGuard(auth, tokens),
		tokens:       tokens,
		revocations:  revocations,
		ledger:       ledger,
		attachments:  attachments,
		applications: applications,
	}
	if !opts.noAdmin {
		e.admin = e.register(t, models.RoleAdministrator, "admin@uni.edu")
	}
	return e
}

func newEnvWithoutAdmin(t *testing.T) *env {
	t.Helper()
	return newEnvWith(t, newEnvOptions{noAdmin: true})
}

func (e *env) register(t *testing.T, role models.Role, email string) *models.Principal {
	t.Helper()
	p, err := e.credentials.Register(context.Background(), role, email, testSecret, "")
	require.NoError(t, err)
	return p
}

func (e *env) position(t *testing.T, capacity int) *models.Position {
	t.Helper()
	p, err := e.ledger.CreatePosition(context.Background(), e.admin, "org-1", "Backend intern", capacity)
	require.NoError(t, err)
	return p
}

func (e *env) apply(t *testing.T, student *models.Principal, positionID string) *models.Application {
	t.Helper()
	app, err := e.applications.Create(context.Background(), student, student.ID, positionID)
	require.NoError(t, err)
	return app
}
