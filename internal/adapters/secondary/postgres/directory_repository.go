package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-notifier/internal/core/errors"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
	"github.com/lorrc/service-desk-notifier/internal/infrastructure/logging"
)

// DirectoryRepository reads users, building access and position staffing.
// The watcher never writes to the directory.
type DirectoryRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var (
	_ ports.PersonnelLookup         = (*DirectoryRepository)(nil)
	_ ports.NotificationPreferences = (*DirectoryRepository)(nil)
	_ ports.BuildingLookup          = (*DirectoryRepository)(nil)
)

func NewDirectoryRepository(pool *pgxpool.Pool, logger *slog.Logger) *DirectoryRepository {
	return &DirectoryRepository{pool: pool, logger: logger}
}

const buildingAccessQuery = `
SELECT user_id, access_mask
FROM building_access
WHERE building_id = $1
ORDER BY user_id`

// ByBuildingAndAccess returns users whose access mask for the building has
// any of the required bits. A user whose stored mask is negative is logged
// and left out; the rest of the building is still returned.
func (r *DirectoryRepository) ByBuildingAndAccess(ctx context.Context, buildingID string, required domain.AccessMask) ([]string, error) {
	rows, err := r.pool.Query(ctx, buildingAccessQuery, buildingID)
	if err != nil {
		return nil, fmt.Errorf("query building access: %w", err)
	}

	type grant struct {
		UserID     string
		AccessMask int64
	}
	grants, err := pgx.CollectRows(rows, pgx.RowToStructByPos[grant])
	if err != nil {
		return nil, fmt.Errorf("scan building access: %w", err)
	}

	var ids []string
	for _, g := range grants {
		ok, err := domain.AnyBitSet(domain.AccessMask(g.AccessMask), required)
		if err != nil {
			logging.Fatal(ctx, r.logger, "invalid building access mask",
				"user_id", g.UserID,
				"building_id", buildingID,
				"access_mask", g.AccessMask,
				"error", err,
			)
			continue
		}
		if ok {
			ids = append(ids, g.UserID)
		}
	}
	return ids, nil
}

const positionPersonnelQuery = `
SELECT user_id
FROM position_personnel
WHERE position_id = $1
ORDER BY user_id`

func (r *DirectoryRepository) ByPosition(ctx context.Context, positionID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, positionPersonnelQuery, positionID)
	if err != nil {
		return nil, fmt.Errorf("query position personnel: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan position personnel: %w", err)
	}
	return ids, nil
}

// Input order is kept so callers see recipients in the order they resolved
// them.
const enabledUsersQuery = `
SELECT id
FROM users
WHERE id = ANY($1) AND notification_mask & $2 <> 0
ORDER BY array_position($1, id)`

func (r *DirectoryRepository) FilterEnabled(ctx context.Context, principalIDs []string, category domain.NotificationCategory) ([]string, error) {
	if len(principalIDs) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, enabledUsersQuery, principalIDs, int64(category))
	if err != nil {
		return nil, fmt.Errorf("query notification preferences: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan notification preferences: %w", err)
	}
	return ids, nil
}

const apartmentBuildingQuery = `SELECT building_id FROM apartments WHERE id = $1`

func (r *DirectoryRepository) BuildingIDByApartment(ctx context.Context, apartmentID string) (string, error) {
	var buildingID string
	err := r.pool.QueryRow(ctx, apartmentBuildingQuery, apartmentID).Scan(&buildingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.ErrBuildingNotFound
		}
		return "", fmt.Errorf("query apartment building: %w", err)
	}
	return buildingID, nil
}

// Ping checks connectivity for readiness probes.
func (r *DirectoryRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
