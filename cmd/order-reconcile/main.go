package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mmdatafocus/orders_backend/config"
	"github.com/mmdatafocus/orders_backend/models"
	"github.com/mmdatafocus/orders_backend/sapclient"
	"github.com/mmdatafocus/orders_backend/sapsync"
	"github.com/mmdatafocus/orders_backend/workflow"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type overdueFlags struct {
	date  string
	by    string
	sweep bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "order-reconcile",
		Short:         "Run order line reconciliation jobs against the ERP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "goods-issue",
		Short: "Pull pending goods issues and apply them to domestic order lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(ctx, models.SyncJobGoodsIssue)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "dtr-dtp",
		Short: "Evaluate delivery performance for lines that have goods issue data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(ctx, models.SyncJobDtrDtp)
		},
	})

	var of overdueFlags
	overdueCmd := &cobra.Command{
		Use:   "overdue",
		Short: "Mark order lines overdue for one date or sweep every past date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOverdue(ctx, of)
		},
	}
	f := overdueCmd.Flags()
	f.StringVar(&of.date, "date", "", "Date to mark (YYYY-MM-DD or DD/MM/YYYY)")
	f.StringVar(&of.by, "by", "request_date", "Date column: request_date or confirmed_date")
	f.BoolVar(&of.sweep, "sweep", false, "Mark every line whose date is before today")
	root.AddCommand(overdueCmd)

	root.AddCommand(&cobra.Command{
		Use:   "prune-drafts <sales-order>",
		Short: "Delete draft lines the ERP no longer knows about",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(ctx, args[0])
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newSync(logger *logrus.Logger) (*workflow.ConfirmationSync, error) {
	erp, err := sapclient.NewFromEnv()
	if err != nil {
		return nil, err
	}
	config.ConnectRedisWithRetry()
	var locker workflow.Locker
	if l := config.GetRedisLock(); l != nil {
		locker = l
	}
	return &workflow.ConfirmationSync{
		DB:     config.GetDB(),
		Logger: logger,
		ERP:    erp,
		Locker: locker,
	}, nil
}

func runJob(ctx context.Context, job string) error {
	logger := config.GetLogger()
	config.ConnectDatabaseWithRetry()
	sync, err := newSync(logger)
	if err != nil {
		return err
	}
	worker := &sapsync.Worker{DB: config.GetDB(), Logger: logger, Sync: sync}
	run, err := worker.RunNow(ctx, job, models.SyncTriggeredManual)
	if run != nil {
		fmt.Printf("run %d %s: %d synced, %d errors\n", run.ID, run.Status, run.RecordsSynced, run.ErrorCount)
	}
	return err
}

func runOverdue(ctx context.Context, of overdueFlags) error {
	if of.sweep == (of.date != "") {
		return fmt.Errorf("pass exactly one of --date or --sweep")
	}
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	now := time.Now()

	if of.sweep {
		reqMarked, confMarked, err := models.MarkOverdueBefore(ctx, db, now)
		if err != nil {
			return err
		}
		fmt.Printf("marked %d by request date, %d by confirmed date\n", reqMarked, confMarked)
		return nil
	}

	date, err := models.ParseOverdueDate(of.date)
	if err != nil {
		return err
	}
	var marked int64
	switch of.by {
	case "request_date":
		marked, err = models.MarkOverdueByRequestDate(ctx, db, date, now)
	case "confirmed_date":
		marked, err = models.MarkOverdueByConfirmedDate(ctx, db, date, now)
	default:
		return fmt.Errorf("--by must be request_date or confirmed_date, got %q", of.by)
	}
	if err != nil {
		return err
	}
	fmt.Printf("marked %d lines\n", marked)
	return nil
}

func runPrune(ctx context.Context, salesOrder string) error {
	logger := config.GetLogger()
	config.ConnectDatabaseWithRetry()
	sync, err := newSync(logger)
	if err != nil {
		return err
	}
	deleted, err := sync.PruneStaleDraftLines(ctx, salesOrder)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d draft lines from %s\n", deleted, salesOrder)
	return nil
}
