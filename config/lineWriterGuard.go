package config

import (
	"context"
	"errors"

	"github.com/mmdatafocus/orders_backend/appctx"
	"gorm.io/gorm"
)

var ErrLineWriteNotAllowed = errors.New("order lines may only be written by reconciliation workflows")

// guardedTables hold reconciled state: DTR/DTP verdicts, attention flags,
// overdue markers and planning results.
var guardedTables = map[string]bool{
	"order_lines":          true,
	"order_line_plannings": true,
}

// LineWriterGuardPlugin rejects create/update/delete statements against the
// reconciled tables unless the context was marked by a reconciliation writer.
// Read paths (attention view, exports) never set the marker and so can never
// mutate attention_type, overdue_1/2, dtr or dtp.
//
// NOTE: Raw/Exec SQL is not intercepted.
type LineWriterGuardPlugin struct{}

func NewLineWriterGuardPlugin() *LineWriterGuardPlugin { return &LineWriterGuardPlugin{} }

func (p *LineWriterGuardPlugin) Name() string { return "line_writer_guard" }

func (p *LineWriterGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Create().Before("gorm:create").Register("line_writer_guard:create", lineWriterGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("line_writer_guard:update", lineWriterGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("line_writer_guard:delete", lineWriterGuardCallback); err != nil {
		return err
	}
	return nil
}

func lineWriterGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	if !guardedTables[db.Statement.Table] {
		return
	}
	if IsLineWriter(db.Statement.Context) {
		return
	}
	_ = db.AddError(ErrLineWriteNotAllowed)
}

// AsLineWriter marks ctx so that writes to the reconciled tables are accepted.
func AsLineWriter(ctx context.Context) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyLineWriter, true)
}

func IsLineWriter(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, ok := appctx.GetBool(ctx, appctx.ContextKeyLineWriter)
	return ok && v
}
