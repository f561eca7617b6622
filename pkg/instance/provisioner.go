package instance

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redisgate/redisgate/internal/auth"
	"github.com/redisgate/redisgate/internal/k8s"
	"github.com/redisgate/redisgate/internal/platform"
	"github.com/redisgate/redisgate/pkg/apikey"
	"github.com/redisgate/redisgate/pkg/quota"
	"github.com/redisgate/redisgate/pkg/redisproxy"
)

// passwordCharset is the alphabet of generated Redis passwords.
const passwordCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*"

// passwordLength is the length of generated Redis passwords.
const passwordLength = 24

// ErrSlugTaken marks a create against a slug already used by a non-deleted
// instance in the organization.
var ErrSlugTaken = errors.New("redis instance with this slug already exists in the organization")

// OrchestratorFactory constructs the Kubernetes capability. A factory error
// means the capability is absent and provisioning runs in development mode.
type OrchestratorFactory func() (k8s.Orchestrator, error)

// Provisioner coordinates quota admission, metadata writes, and Kubernetes
// applies for instance lifecycle.
type Provisioner struct {
	pool       *pgxpool.Pool
	store      *Store
	quotas     *quota.Service
	apiKeys    *apikey.Service
	conns      *redisproxy.Pool
	orch       OrchestratorFactory
	logger     *slog.Logger
	bcryptCost int
}

// NewProvisioner creates a Provisioner.
func NewProvisioner(pool *pgxpool.Pool, store *Store, quotas *quota.Service, apiKeys *apikey.Service, conns *redisproxy.Pool, orch OrchestratorFactory, logger *slog.Logger, bcryptCost int) *Provisioner {
	return &Provisioner{
		pool:       pool,
		store:      store,
		quotas:     quotas,
		apiKeys:    apiKeys,
		conns:      conns,
		orch:       orch,
		logger:     logger,
		bcryptCost: bcryptCost,
	}
}

// Create provisions a new Redis instance for the organization. Admission,
// the uniqueness check, the row insert, and the counter increment commit as
// one serializable transaction; the Kubernetes apply happens before the
// insert and is compensated asynchronously when the insert fails.
func (p *Provisioner) Create(ctx context.Context, orgID uuid.UUID, req CreateRequest) (Response, error) {
	instanceID := uuid.New()
	redisVersion := DefaultRedisVersion
	if req.RedisVersion != nil && *req.RedisVersion != "" {
		redisVersion = *req.RedisVersion
	}
	persistence := true
	if req.PersistenceEnabled != nil {
		persistence = *req.PersistenceEnabled
	}
	backup := false
	if req.BackupEnabled != nil {
		backup = *req.BackupEnabled
	}

	password, err := generatePassword()
	if err != nil {
		return Response{}, fmt.Errorf("generating redis password: %w", err)
	}
	passwordHash, err := auth.HashPassword(password, p.bcryptCost)
	if err != nil {
		return Response{}, fmt.Errorf("hashing redis password: %w", err)
	}

	namespace := namespaceFor(orgID)

	// Best-effort Kubernetes apply. Absence of the capability or a failed
	// apply drives development mode rather than failing the request.
	var applied *k8s.DeploymentResult
	orchestrator, err := p.orch()
	if err != nil {
		p.logger.Debug("kubernetes unavailable, using development mode", "error", err)
	} else {
		applied, err = orchestrator.CreateInstance(ctx, k8s.DeploymentConfig{
			Name:           req.Name,
			Slug:           req.Slug,
			Namespace:      namespace,
			OrganizationID: orgID,
			InstanceID:     instanceID,
			RedisVersion:   redisVersion,
			MaxMemory:      req.MaxMemory,
			RedisPassword:  password,
			Port:           DefaultPort,
		})
		if err != nil {
			p.logger.Debug("kubernetes apply failed, using development mode", "error", err)
			applied = nil
		} else {
			p.logger.Info("redis workload deployed", "instance_id", instanceID)
		}
	}

	params := InsertParams{
		ID:             instanceID,
		Name:           req.Name,
		Slug:           req.Slug,
		OrganizationID: orgID,
		RedisVersion:   redisVersion,
		MaxMemory:      req.MaxMemory,
		PasswordHash:   passwordHash,
		Persistence:    persistence,
		Backup:         backup,
	}
	if applied != nil {
		params.Port = int(applied.Port)
		params.Domain = applied.Domain
		params.Namespace = applied.Namespace
		params.PodName = applied.DeploymentName
		params.ServiceName = applied.ServiceName
		params.Status = StatusPending
	} else {
		params.Port = DefaultPort
		params.Domain = "dev-" + req.Slug
		params.Namespace = namespace
		params.PodName = k8s.DeploymentName(req.Slug)
		params.ServiceName = k8s.ServiceName(req.Slug)
		params.Status = StatusDevelopment
	}

	memoryMB := int(req.MaxMemory / (1024 * 1024))

	var row Row
	err = platform.Serializable(ctx, p.pool, func(tx pgx.Tx) error {
		if err := p.quotas.CheckCanCreateInstanceTx(ctx, tx, orgID, memoryMB); err != nil {
			return err
		}

		taken, err := p.store.SlugExistsTx(ctx, tx, orgID, req.Slug)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlugTaken
		}

		row, err = p.store.InsertTx(ctx, tx, params)
		if err != nil {
			return err
		}

		return p.quotas.IncrementTx(ctx, tx, orgID, memoryMB)
	})
	if err != nil {
		if isUniqueViolation(err) {
			err = ErrSlugTaken
		}
		// Tear the workload back down — except on a slug conflict, where
		// the objects belong to the live instance that owns the slug.
		if applied != nil && !errors.Is(err, ErrSlugTaken) {
			p.compensate(orchestrator, namespace, req.Slug)
		}
		return Response{}, err
	}

	p.logger.Info("redis instance created",
		"instance_id", row.ID,
		"org_id", orgID,
		"slug", row.Slug,
		"status", row.Status,
	)
	return row.ToResponse(), nil
}

// Delete tears down an instance: best-effort Kubernetes delete, then soft
// delete and counter decrement in one transaction, then bound API key
// deactivation and connection eviction.
func (p *Provisioner) Delete(ctx context.Context, orgID, instanceID uuid.UUID) error {
	row, err := p.store.GetForOrg(ctx, orgID, instanceID)
	if err != nil {
		return err
	}

	// Mark the teardown in progress; best-effort.
	if err := p.store.UpdateStatus(ctx, instanceID, StatusTerminating); err != nil {
		p.logger.Warn("marking instance terminating", "instance_id", instanceID, "error", err)
	}

	if orchestrator, err := p.orch(); err != nil {
		p.logger.Warn("kubernetes unavailable, skipping workload deletion", "error", err)
	} else if err := orchestrator.DeleteInstance(ctx, row.Namespace, row.Slug); err != nil {
		p.logger.Warn("deleting redis workload", "instance_id", instanceID, "error", err)
	}

	memoryMB := int(row.MaxMemory / (1024 * 1024))
	err = platform.Serializable(ctx, p.pool, func(tx pgx.Tx) error {
		if err := p.store.SoftDeleteTx(ctx, tx, instanceID); err != nil {
			return err
		}
		return p.quotas.DecrementTx(ctx, tx, orgID, memoryMB)
	})
	if err != nil {
		return err
	}

	if row.APIKeyID.Valid {
		if err := p.apiKeys.DeactivateByID(ctx, uuid.UUID(row.APIKeyID.Bytes)); err != nil {
			p.logger.Warn("deactivating bound api key", "instance_id", instanceID, "error", err)
		}
	}

	p.conns.RemoveInstance(instanceID.String())

	p.logger.Info("redis instance deleted", "instance_id", instanceID, "org_id", orgID)
	return nil
}

// RefreshStatus reconciles the stored status with the deployment's observed
// readiness. Absence of Kubernetes is non-fatal; the stored row is returned.
func (p *Provisioner) RefreshStatus(ctx context.Context, orgID, instanceID uuid.UUID) (Response, error) {
	row, err := p.store.GetForOrg(ctx, orgID, instanceID)
	if err != nil {
		return Response{}, err
	}

	// Development-mode instances have no deployment to observe.
	if row.Status == StatusDevelopment {
		return row.ToResponse(), nil
	}

	orchestrator, err := p.orch()
	if err != nil {
		p.logger.Warn("kubernetes unavailable, returning stored status", "error", err)
		return row.ToResponse(), nil
	}

	observed, err := orchestrator.DeploymentStatus(ctx, row.Namespace, row.Slug)
	if err != nil {
		p.logger.Warn("checking deployment status", "instance_id", instanceID, "error", err)
		return row.ToResponse(), nil
	}

	if observed != row.Status {
		if err := p.store.UpdateStatus(ctx, instanceID, observed); err != nil {
			return Response{}, err
		}
		row.Status = observed
	}

	return row.ToResponse(), nil
}

// compensate removes a Kubernetes workload whose metadata insert failed.
// Runs asynchronously with its own deadline; failures are logged only.
func (p *Provisioner) compensate(orchestrator k8s.Orchestrator, namespace, slug string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := orchestrator.DeleteInstance(ctx, namespace, slug); err != nil {
			p.logger.Error("compensating workload deletion failed",
				"namespace", namespace,
				"slug", slug,
				"error", err,
			)
		}
	}()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func namespaceFor(orgID uuid.UUID) string {
	b := [16]byte(orgID)
	return fmt.Sprintf("redis-%x", b)
}

// generatePassword returns a 24-character password over the allowed charset
// using crypto/rand.
func generatePassword() (string, error) {
	out := make([]byte, passwordLength)
	max := big.NewInt(int64(len(passwordCharset)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = passwordCharset[n.Int64()]
	}
	return string(out), nil
}
