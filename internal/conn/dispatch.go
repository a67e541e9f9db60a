package conn

import (
	"context"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/confd-io/confd/internal/accesscontrol"
	"github.com/confd-io/confd/internal/datamgr"
	"github.com/confd-io/confd/internal/protoerr"
	"github.com/confd-io/confd/internal/session"
	"github.com/confd-io/confd/internal/telemetry"
	"github.com/confd-io/confd/internal/wire"
	"github.com/confd-io/confd/internal/yang"
)

// handleSessionStart implements session-start: the peer's uid is resolved
// to a system user name, which becomes the session's real user; the
// (optional) requested user_name becomes its effective user, subject to
// session.Manager.CreateSession's privilege rule (spec §4.4).
func (c *Connection) handleSessionStart(req *wire.Request) *wire.Response {
	peerUser, err := lookupUsername(c.sm.PeerUID)
	if err != nil {
		return errResponse(req, protoerr.Newf(protoerr.Internal, err.Error()))
	}

	sess, err := c.server.sm.CreateSession(c.sm, req.Datastore, peerUser, req.UserName, peerUser)
	if err != nil {
		return errResponse(req, err)
	}
	c.server.dm.StartSession(sess.ID, req.Datastore)
	return &wire.Response{SessionID: sess.ID, Operation: req.Operation, ResultCode: protoerr.OK.String()}
}

// handleSessionStop implements session-stop; DM's working copies and
// locks are released via the OnSessionDestroy callback wired in
// NewServer.
func (c *Connection) handleSessionStop(req *wire.Request) *wire.Response {
	if _, err := c.server.sm.FindSession(req.SessionID, c.sm.ID); err != nil {
		return errResponse(req, err)
	}
	c.server.sm.StopSession(req.SessionID)
	return &wire.Response{SessionID: req.SessionID, Operation: req.Operation, ResultCode: protoerr.OK.String()}
}

// handleOperation dispatches every operation other than session-start/-stop
// once the Sequencer has admitted it. It verifies the session belongs to
// this connection (spec §4.4 FindSession contract) and records any
// resulting error into the session's bounded error history.
func (c *Connection) handleOperation(req *wire.Request) *wire.Response {
	sess, err := c.server.sm.FindSession(req.SessionID, c.sm.ID)
	if err != nil {
		return errResponse(req, err)
	}

	ctx, span := telemetry.StartOperationSpan(context.Background(), string(req.Operation), req.SessionID, req.XPath)
	start := time.Now()

	resp, err := c.execOperation(ctx, sess, req)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		telemetry.RecordError(ctx, err)
	}
	c.server.metrics.RecordOperation(string(req.Operation), outcome, time.Since(start))
	span.End()

	if err != nil {
		sess.RecordError(session.SessionError{Path: req.XPath, Message: err.Error(), Code: protoerr.CodeOf(err)})
		return errResponse(req, err)
	}
	return resp
}

func (c *Connection) execOperation(ctx context.Context, sess *session.Session, req *wire.Request) (*wire.Response, error) {
	dm := c.server.dm
	np := c.server.np
	pm := c.server.pm

	switch req.Operation {
	case wire.OpListSchemas:
		mods := dm.Modules()
		sort.Slice(mods, func(i, j int) bool { return mods[i].Name < mods[j].Name })
		schemas := make([]wire.SchemaInfo, 0, len(mods))
		for _, mod := range mods {
			schemas = append(schemas, wire.SchemaInfo{
				ModuleName: mod.Name,
				Namespace:  mod.Namespace,
				Prefix:     mod.Prefix,
				Revision: wire.Revision{
					Version:  mod.Revision.Version,
					YangPath: mod.Revision.YangPath,
					YinPath:  mod.Revision.YinPath,
				},
				Submodules: mod.Submodules,
			})
		}
		return okResponse(req, func(r *wire.Response) { r.Schemas = schemas }), nil

	case wire.OpGetSchema:
		content, err := c.readSchemaFile(req.Module, req.Revision, req.Submodule, req.YinOrYang)
		if err != nil {
			return nil, err
		}
		return okResponse(req, func(r *wire.Response) { r.SchemaContent = content }), nil

	case wire.OpGetItem:
		if err := c.checkNodePermissions(sess, req.XPath, accesscontrol.OpRead); err != nil {
			return nil, err
		}
		v, err := dm.GetValue(sess.ID, req.XPath)
		if err != nil {
			return nil, err
		}
		return okResponse(req, func(r *wire.Response) { r.Value = v }), nil

	case wire.OpGetItems:
		if err := c.checkNodePermissions(sess, req.XPath, accesscontrol.OpRead); err != nil {
			return nil, err
		}
		vs, err := dm.GetValues(sess.ID, req.XPath)
		if err != nil {
			return nil, err
		}
		return okResponse(req, func(r *wire.Response) { r.Values = vs }), nil

	case wire.OpGetItemsIter:
		if err := c.checkNodePermissions(sess, req.XPath, accesscontrol.OpRead); err != nil {
			return nil, err
		}
		vs, err := dm.GetValuesIter(sess.ID, req.XPath, req.Offset, req.Limit)
		if err != nil {
			return nil, err
		}
		return okResponse(req, func(r *wire.Response) { r.Values = vs }), nil

	case wire.OpSetItem:
		if err := c.checkNodePermissions(sess, req.XPath, accesscontrol.OpWrite); err != nil {
			return nil, err
		}
		if err := dm.SetItem(sess.ID, req.XPath, req.Value, req.Options.ToYANG()); err != nil {
			return nil, err
		}
		return okResponse(req, nil), nil

	case wire.OpDeleteItem:
		if err := c.checkNodePermissions(sess, req.XPath, accesscontrol.OpWrite); err != nil {
			return nil, err
		}
		if err := dm.DeleteItem(sess.ID, req.XPath, req.Options.ToYANG()); err != nil {
			return nil, err
		}
		return okResponse(req, nil), nil

	case wire.OpMoveItem:
		if err := c.checkNodePermissions(sess, req.XPath, accesscontrol.OpWrite); err != nil {
			return nil, err
		}
		if err := dm.MoveItem(sess.ID, req.XPath, req.Direction); err != nil {
			return nil, err
		}
		return okResponse(req, nil), nil

	case wire.OpValidate:
		errs, err := dm.Validate(sess.ID)
		return validationResponse(req, errs, err)

	case wire.OpCommit:
		_, commitSpan := telemetry.StartCommitSpan(ctx, sess.ID, 0)
		start := time.Now()
		errs, err := dm.Commit(sess.ID)
		outcome := "success"
		switch {
		case err != nil:
			outcome = "aborted"
		case len(errs) > 0:
			outcome = "validation_failed"
			for _, e := range errs {
				module, _ := datamgr.ModuleOf(e.Path)
				c.server.metrics.RecordValidationError(module)
			}
		}
		c.server.metrics.RecordCommit(outcome, time.Since(start))
		commitSpan.End()
		return validationResponse(req, errs, err)

	case wire.OpDiscardChanges:
		if err := dm.DiscardChanges(sess.ID); err != nil {
			return nil, err
		}
		return okResponse(req, nil), nil

	case wire.OpLockModule:
		if err := dm.LockModule(sess.ID, req.Module); err != nil {
			return nil, err
		}
		return okResponse(req, nil), nil

	case wire.OpUnlockModule:
		if err := dm.UnlockModule(sess.ID, req.Module); err != nil {
			return nil, err
		}
		return okResponse(req, nil), nil

	case wire.OpLockDatastore:
		if err := dm.LockDatastore(sess.ID); err != nil {
			return nil, err
		}
		return okResponse(req, nil), nil

	case wire.OpUnlockDatastore:
		if err := dm.UnlockDatastore(sess.ID); err != nil {
			return nil, err
		}
		return okResponse(req, nil), nil

	case wire.OpFeatureEnable:
		mod, ok := dm.Module(req.Module)
		if !ok {
			return nil, protoerr.Newf(protoerr.UnknownModel, "unknown module: "+req.Module)
		}
		if req.Enable {
			mod.EnableFeature(req.Feature)
			if err := pm.EnableFeature(req.Module, req.Feature); err != nil {
				return nil, err
			}
		} else {
			mod.DisableFeature(req.Feature)
			if err := pm.DisableFeature(req.Module, req.Feature); err != nil {
				return nil, err
			}
		}
		np.FeatureEnableNotify(req.Module)
		return okResponse(req, nil), nil

	case wire.OpModuleInstall:
		if req.Install {
			schema, ok := c.server.modules[req.Module]
			if !ok {
				return nil, protoerr.Newf(protoerr.UnknownModel, "no compiled schema for module: "+req.Module)
			}
			dm.RegisterModule(schema)
		} else {
			dm.UnregisterModule(req.Module)
		}
		np.ModuleInstallNotify(req.Module)
		return okResponse(req, nil), nil

	case wire.OpSubscribe:
		if err := np.Subscribe(req.EventKind, req.Module, req.DestinationAddress, req.DestinationID, req.XPath); err != nil {
			return nil, err
		}
		// A module-change subscription naming an xpath is this broker's
		// only source of running-datastore enablement (spec §4.5.4): the
		// subscriber is declaring the subtree it maintains, so that
		// subtree becomes visible to running-scoped reads.
		if req.EventKind == wire.EventModuleChange && req.XPath != "" {
			if err := dm.EnableRunning(req.XPath); err != nil {
				return nil, err
			}
		}
		return okResponse(req, nil), nil

	case wire.OpGetLastErrors:
		hist := sess.LastErrors()
		infos := make([]wire.LastErrorInfo, 0, len(hist))
		for _, e := range hist {
			infos = append(infos, wire.LastErrorInfo{Path: e.Path, Message: e.Message, Code: e.Code.String()})
		}
		return okResponse(req, func(r *wire.Response) { r.LastErrors = infos }), nil

	case wire.OpUnsubscribe:
		if err := np.Unsubscribe(req.EventKind, req.Module, req.DestinationAddress, req.DestinationID); err != nil {
			return nil, err
		}
		return okResponse(req, nil), nil

	default:
		return nil, protoerr.Newf(protoerr.MalformedMessage, "unknown operation "+string(req.Operation))
	}
}

// checkNodePermissions maps xpath to its backing module's data file and
// enforces the session's effective user against it (spec §4.9). The
// connection's peer credentials are used directly when the session's
// effective user is the peer's real user (the common case); a session
// running as a different effective user (privileged session-start only,
// per session.Manager.CreateSession) re-resolves that user's uid/gid.
func (c *Connection) checkNodePermissions(sess *session.Session, xpath string, op accesscontrol.Op) error {
	module, err := datamgr.ModuleOf(xpath)
	if err != nil {
		return err
	}
	creds := accesscontrol.Credentials{UID: c.sm.PeerUID, GID: c.sm.PeerGID}
	if sess.EffectiveUser != "" {
		if u, err := user.Lookup(sess.EffectiveUser); err == nil {
			if uid, err := strconv.ParseUint(u.Uid, 10, 32); err == nil {
				creds.UID = uint32(uid)
			}
			if gid, err := strconv.ParseUint(u.Gid, 10, 32); err == nil {
				creds.GID = uint32(gid)
			}
		}
	}
	return accesscontrol.CheckNodePermissions(c.server.dm.DataFilePath(module), creds, op)
}

// readSchemaFile resolves module (+ optional revision/submodule) to a raw
// .yang or .yin file under the server's schema directory, per get-schema
// (spec §6). The module must also be a known (installed or installable)
// schema so a client cannot read arbitrary files via crafted names.
func (c *Connection) readSchemaFile(module, revision, submodule, yinOrYang string) ([]byte, error) {
	if _, ok := c.server.modules[module]; !ok {
		return nil, protoerr.Newf(protoerr.UnknownModel, "unknown module: "+module)
	}
	name := module
	if submodule != "" {
		name = submodule
	}
	ext := ".yang"
	if yinOrYang == "yin" {
		ext = ".yin"
	}
	fileName := name + ext
	if revision != "" {
		fileName = name + "@" + revision + ext
	}
	data, err := os.ReadFile(filepath.Join(c.server.schemaDir, fileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, protoerr.Newf(protoerr.NotFound, "no schema file for "+fileName)
		}
		return nil, protoerr.Newf(protoerr.IO, err.Error())
	}
	return data, nil
}

// okResponse builds a success Response, optionally filled in by fill.
func okResponse(req *wire.Request, fill func(*wire.Response)) *wire.Response {
	r := &wire.Response{SessionID: req.SessionID, Operation: req.Operation, ResultCode: protoerr.OK.String()}
	if fill != nil {
		fill(r)
	}
	return r
}

// validationResponse shapes validate/commit's shared result contract:
// empty on success, ValidationFailed with one entry per offending path
// otherwise.
func validationResponse(req *wire.Request, errs []yang.ValidationError, err error) (*wire.Response, error) {
	if err != nil && len(errs) == 0 {
		return nil, err
	}
	if len(errs) > 0 {
		infos := make([]wire.ValidationErrorInfo, 0, len(errs))
		for _, e := range errs {
			infos = append(infos, wire.ValidationErrorInfo{Path: e.Path, Message: e.Message})
		}
		return &wire.Response{
			SessionID:    req.SessionID,
			Operation:    req.Operation,
			ResultCode:   protoerr.ValidationFailed.String(),
			ErrorMessage: "validation failed",
			Errors:       infos,
		}, nil
	}
	return okResponse(req, nil), nil
}

func errResponse(req *wire.Request, err error) *wire.Response {
	e := protoerr.CodeOf(err)
	path := ""
	if pe, ok := err.(*protoerr.Error); ok {
		path = pe.Path
	}
	return &wire.Response{
		SessionID:    req.SessionID,
		Operation:    req.Operation,
		ResultCode:   e.String(),
		ErrorMessage: err.Error(),
		Path:         path,
	}
}

func lookupUsername(uid uint32) (string, error) {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return "", err
	}
	return u.Username, nil
}
