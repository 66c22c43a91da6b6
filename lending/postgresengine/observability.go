package postgresengine

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/branchlib/lending-go/lending"
)

const (
	logMsgSQLExecuted     = "executed sql"
	logMsgOperation       = "lending operation: "
	logMsgOperationFailed = "lending operation failed: "
	logMsgCloseRowsFailed = "failed to close database rows"
	logMsgRollbackFailed  = "failed to roll back transaction"

	logAttrError      = "error"
	logAttrQuery      = "query"
	logAttrDurationMS = "duration_ms"

	metricOperationDuration = "lending_operation_duration_seconds"
	metricRuleRejections    = "lending_rule_rejections_total"
	metricStorageErrors     = "lending_storage_errors_total"

	spanNamePrefix    = "lending."
	spanAttrOperation = "operation"
	spanAttrBook      = "book_id"
	spanAttrBorrower  = "borrower_id"
	spanAttrLoan      = "loan_id"

	statusSuccess  = "success"
	statusRejected = "rejected"
	statusError    = "error"
)

// businessRuleErrors are first-class operation outcomes, not storage failures.
var businessRuleErrors = []error{
	lending.ErrValidation,
	lending.ErrDuplicateIdentity,
	lending.ErrBorrowerNotFound,
	lending.ErrBookNotFound,
	lending.ErrUnpaidFines,
	lending.ErrMaxActiveLoans,
	lending.ErrBookUnavailable,
	lending.ErrLoanNotFoundOrClosed,
	lending.ErrBooksStillOut,
}

func isBusinessRuleError(err error) bool {
	for _, kind := range businessRuleErrors {
		if errors.Is(err, kind) {
			return true
		}
	}

	return false
}

// startSpan begins a tracing span for an operation if tracing is configured.
func (e *Engine) startSpan(ctx context.Context, operation string, attrs map[string]string) (context.Context, SpanContext) {
	if e.tracingCollector == nil {
		return ctx, nil
	}

	if attrs == nil {
		attrs = map[string]string{}
	}
	attrs[spanAttrOperation] = operation

	return e.tracingCollector.StartSpan(ctx, spanNamePrefix+operation, attrs)
}

// observeOperation finishes the span, records metrics, and logs the outcome
// of one engine operation.
func (e *Engine) observeOperation(
	ctx context.Context,
	span SpanContext,
	operation string,
	duration time.Duration,
	err error,
	extraArgs ...any,
) {

	status := statusSuccess

	switch {
	case err == nil:
		// keep success
	case isBusinessRuleError(err):
		status = statusRejected
	default:
		status = statusError
	}

	if e.tracingCollector != nil && span != nil {
		e.tracingCollector.FinishSpan(span, status, nil)
	}

	if e.metricsCollector != nil {
		labels := map[string]string{spanAttrOperation: operation, "status": status}
		e.metricsCollector.RecordDuration(metricOperationDuration, duration, labels)

		switch status {
		case statusRejected:
			e.metricsCollector.IncrementCounter(metricRuleRejections, labels)
		case statusError:
			e.metricsCollector.IncrementCounter(metricStorageErrors, labels)
		}
	}

	args := append([]any{logAttrDurationMS, toMilliseconds(duration)}, extraArgs...)

	switch status {
	case statusSuccess:
		e.logInfo(ctx, logMsgOperation+operation, args...)
	case statusRejected:
		e.logInfo(ctx, logMsgOperation+operation, append(args, logAttrError, err.Error())...)
	default:
		e.logError(ctx, logMsgOperationFailed+operation, err, args...)
	}
}

// logDebugSQL logs SQL statements with execution time at debug level.
func (e *Engine) logDebugSQL(ctx context.Context, sqlQuery string, duration time.Duration) {
	if e.contextualLogger != nil {
		e.contextualLogger.DebugContext(ctx, logMsgSQLExecuted, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
		return
	}

	if e.logger != nil {
		e.logger.Debug(logMsgSQLExecuted, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

func (e *Engine) logInfo(ctx context.Context, msg string, args ...any) {
	if e.contextualLogger != nil {
		e.contextualLogger.InfoContext(ctx, msg, args...)
		return
	}

	if e.logger != nil {
		e.logger.Info(msg, args...)
	}
}

func (e *Engine) logWarn(ctx context.Context, msg string, args ...any) {
	if e.contextualLogger != nil {
		e.contextualLogger.WarnContext(ctx, msg, args...)
		return
	}

	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}

func (e *Engine) logError(ctx context.Context, msg string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if e.contextualLogger != nil {
		e.contextualLogger.ErrorContext(ctx, msg, allArgs...)
		return
	}

	if e.logger != nil {
		e.logger.Error(msg, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
