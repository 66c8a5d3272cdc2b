package enrichment

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.Open("host=localhost user=test dbname=test sslmode=disable"), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return db
}

var stmtTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestClaimOnlyMovesQueuedJobs(t *testing.T) {
	sql := dryRunDB(t).ToSQL(func(tx *gorm.DB) *gorm.DB {
		return claimStmt(tx, 7, stmtTime)
	})

	assert.Contains(t, sql, `UPDATE "enrich_jobs" SET`)
	assert.Contains(t, sql, `"status"='running'`)
	assert.Contains(t, sql, `"started_at"=`)
	assert.Contains(t, sql, `WHERE id = 7 AND status = 'queued'`)
}

func TestTerminalWritesRequireRunningJob(t *testing.T) {
	db := dryRunDB(t)

	done := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return completeStmt(tx, 7, map[string]interface{}{"ideaId": 3}, stmtTime)
	})
	assert.Contains(t, done, `"status"='done'`)
	assert.Contains(t, done, `"completed_at"=`)
	assert.Contains(t, done, `WHERE id = 7 AND status = 'running'`)

	failed := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return failStmt(tx, 7, map[string]interface{}{"message": "boom"}, stmtTime)
	})
	assert.Contains(t, failed, `"status"='failed'`)
	assert.Contains(t, failed, `"attempts"=attempts + 1`)
	assert.Contains(t, failed, `WHERE id = 7 AND status = 'running'`)
}

func TestReclaimRequeuesExpiredRunningJobs(t *testing.T) {
	sql := dryRunDB(t).ToSQL(func(tx *gorm.DB) *gorm.DB {
		return reclaimStmt(tx, stmtTime)
	})

	assert.Contains(t, sql, `UPDATE "enrich_jobs" SET`)
	assert.Contains(t, sql, `"status"='queued'`)
	assert.Contains(t, sql, `"started_at"=NULL`)
	assert.Contains(t, sql, `"attempts"=attempts + 1`)
	assert.Contains(t, sql, `WHERE status = 'running' AND started_at < '2026-01-02 03:04:05`)
}

func TestPendingItemsExcludeQueuedRunningAndDone(t *testing.T) {
	var ids []int64
	sql := dryRunDB(t).ToSQL(func(tx *gorm.DB) *gorm.DB {
		return pendingItemsStmt(tx, 100, &ids)
	})

	assert.Contains(t, sql, `FROM "raw_items"`)
	assert.Contains(t, sql, `normalized = true`)
	assert.Contains(t, sql, `id NOT IN (SELECT`)
	assert.Contains(t, sql, `FROM "enrich_jobs" WHERE status IN ('queued','running','done')`)
	assert.Contains(t, sql, `LIMIT 100`)
	assert.NotContains(t, sql, `'failed'`)
}

func TestActiveJobPredicateMatchesIndex(t *testing.T) {
	predicate := "WHERE status IN ('" + strings.Join(activeStatuses, "', '") + "')"

	assert.Equal(t, []string{StatusQueued, StatusRunning}, activeStatuses)
	assert.Contains(t, activeItemIndexDDL, "ON enrich_jobs (item_id) "+predicate)
	assert.Contains(t, enqueueSQL, "ON CONFLICT (item_id) "+predicate+" DO NOTHING")
	assert.Contains(t, enqueueSQL, "RETURNING id")
}
