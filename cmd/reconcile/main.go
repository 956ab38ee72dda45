// Command reconcile runs the batch passes: overdue lend/borrow marking and
// the ledger invariant checks. Findings are written as reconciliation
// reports; no ledger data is changed apart from lend/borrow status.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/ledger_backend/config"
	"github.com/mmdatafocus/ledger_backend/storage/sqlstore"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/mmdatafocus/ledger_backend/workflow"
	"github.com/sirupsen/logrus"
)

func main() {
	userId := flag.String("user-id", "", "Optional: check only one user. If empty, checks every user with data.")
	skipOverdue := flag.Bool("skip-overdue", false, "Skip the overdue lend/borrow pass")
	flag.Parse()

	settings := config.LoadSettings()
	logger := config.NewLogger(settings.LogLevel)
	if settings.DBDriver == config.DriverMemory {
		fmt.Fprintln(os.Stderr, "reconcile needs a persistent store (DB_DRIVER=mysql|sqlite)")
		os.Exit(1)
	}

	db, err := config.OpenDatabase(settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	engine := workflow.NewEngine(sqlstore.New(db), workflow.WithLogger(logger))

	// batch passes read across users
	ctx := utils.SetSkipOwnerScopeInContext(context.Background(), true)
	ctx = utils.SetCorrelationIdInContext(ctx, "reconcile-"+uuid.NewString())

	failed := false
	if !*skipOverdue {
		marked, err := engine.MarkOverdue(ctx, time.Now().UTC())
		if err != nil {
			failed = true
			config.LogError(logger, "reconcile", "MarkOverdue", "overdue pass", marked, err)
		}
		fmt.Printf("overdue: marked %d record(s)\n", marked)
	}

	if id := strings.TrimSpace(*userId); id != "" {
		reports, err := engine.RunReconciliationChecks(utils.SetUserIdInContext(ctx, id), id)
		if err != nil {
			failed = true
			config.LogError(logger, "reconcile", "RunReconciliationChecks", "user "+id, nil, err)
		}
		for _, r := range reports {
			logger.WithFields(logrus.Fields{
				"field":     "reconcile",
				"user_id":   id,
				"check":     r.CheckType,
				"entity_id": r.EntityId,
			}).Warn(r.Details)
		}
		fmt.Printf("reconciliation: %d finding(s) for user %s\n", len(reports), id)
	} else {
		findings, err := engine.RunAllReconciliationChecks(ctx)
		if err != nil {
			failed = true
			config.LogError(logger, "reconcile", "RunAllReconciliationChecks", "all users", findings, err)
		}
		fmt.Printf("reconciliation: %d finding(s)\n", findings)
	}

	if failed {
		os.Exit(1)
	}
}
