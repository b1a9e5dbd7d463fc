package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/subwise/resilience/internal/journal"
)

const readinessTimeout = 2 * time.Second

func RegisterHealthRoutes(app fiber.Router, sqlDB *sql.DB, rdb *redis.Client, backups *journal.BackupStore) {
	app.Get("/health", LivezHandler())
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(sqlDB, rdb, backups))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

// ReadyzHandler reports not ready when any store the write path depends on is
// unreachable, the filesystem backup included: with both the database and the
// backup directory gone, history records would be lost silently.
func ReadyzHandler(sqlDB *sql.DB, rdb *redis.Client, backups *journal.BackupStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		pgErr := sqlDB.PingContext(ctx)
		redisErr := rdb.Ping(ctx).Err()
		backupErr := backups.Ping()

		checks := fiber.Map{
			"postgres": checkStatus(pgErr),
			"redis":    checkStatus(redisErr),
			"backups":  checkStatus(backupErr),
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if pgErr != nil || redisErr != nil || backupErr != nil {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}

func checkStatus(err error) string {
	if err != nil {
		return "down"
	}
	return "ok"
}
