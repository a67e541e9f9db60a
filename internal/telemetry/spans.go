package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for datastore operations, following the teacher's
// fs.* / nfs.* convention but naming confd's own domain.
const (
	AttrSession  = "confd.session_id"
	AttrModule   = "confd.module"
	AttrXPath    = "confd.xpath"
	AttrDatastore = "confd.datastore"
	AttrUser     = "confd.user"
	AttrOpCount  = "confd.op_count"
)

// Span names for the commit pipeline and session lifecycle.
const (
	SpanSessionStart    = "session.start"
	SpanSessionStop     = "session.stop"
	SpanGetItem         = "datastore.get_item"
	SpanSetItem         = "datastore.set_item"
	SpanDeleteItem      = "datastore.delete_item"
	SpanMoveItem        = "datastore.move_item"
	SpanValidate        = "datastore.validate"
	SpanCommit          = "datastore.commit"
	SpanCommitValidate  = "commit.validate"
	SpanCommitLock      = "commit.lock_modules"
	SpanCommitLoad      = "commit.load_running"
	SpanCommitReplay    = "commit.replay_ops"
	SpanCommitMerge     = "commit.merge_validate"
	SpanCommitPersist   = "commit.persist"
	SpanCommitNotify    = "commit.notify"
	SpanDiscardChanges  = "datastore.discard_changes"
	SpanLockModule      = "datastore.lock_module"
	SpanModuleInstall   = "schema.module_install"
)

func Session(id uint32) attribute.KeyValue {
	return attribute.Int64(AttrSession, int64(id))
}

func Module(name string) attribute.KeyValue {
	return attribute.String(AttrModule, name)
}

func XPath(path string) attribute.KeyValue {
	return attribute.String(AttrXPath, path)
}

func Datastore(name string) attribute.KeyValue {
	return attribute.String(AttrDatastore, name)
}

func User(name string) attribute.KeyValue {
	return attribute.String(AttrUser, name)
}

func OpCount(n int) attribute.KeyValue {
	return attribute.Int(AttrOpCount, n)
}

// StartCommitSpan starts the root span for one Commit call.
func StartCommitSpan(ctx context.Context, sessionID uint32, opCount int) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanCommit, trace.WithAttributes(Session(sessionID), OpCount(opCount)))
}

// StartOperationSpan starts a span for a single request-response operation,
// tagged with the session and the xpath it targets (xpath may be empty for
// operations that don't address a single node, e.g. commit or lock-datastore).
func StartOperationSpan(ctx context.Context, name string, sessionID uint32, xpath string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{Session(sessionID)}
	if xpath != "" {
		attrs = append(attrs, XPath(xpath))
	}
	return StartSpan(ctx, name, trace.WithAttributes(attrs...))
}
