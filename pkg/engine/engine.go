// Package engine implements the write-through synchronization protocol: a
// mutation becomes a remote platform call, then a conditional commit to the
// local mirror, then an audit trail append. The remote call is the single
// source of truth for whether an action happened; the mirror and the audit
// trail are downstream projections, never causes.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"metamirror/internal/utils"
	"metamirror/pkg/meta"
	"metamirror/pkg/storage"
)

// Remote is the slice of the platform client the engine needs. Credentials
// live inside the client and are immutable for the process lifetime.
type Remote interface {
	Call(ctx context.Context, method, endpoint string, body interface{}) (*meta.Result, error)
	CreateCreative(ctx context.Context, spec meta.CreativeSpec) (*meta.Result, error)
	AccountID() string
}

// Engine orchestrates mutations for all three entity kinds. It is stateless
// between requests; concurrent mutations of the same entity are not
// serialized and resolve last-write-wins in the mirror.
type Engine struct {
	db     *storage.DB
	remote Remote
}

func New(db *storage.DB, remote Remote) *Engine {
	return &Engine{db: db, remote: remote}
}

// Create validates the payload, checks the parent locally, performs the
// remote create, and only then mirrors the entity and appends the audit
// record. A failed remote create leaves zero local traces.
func (e *Engine) Create(ctx context.Context, kind storage.Kind, payload Payload) (*storage.Entity, error) {
	d, err := descriptorFor(kind)
	if err != nil {
		return nil, validationErr("%v", err)
	}
	if err := d.validate(payload, false); err != nil {
		return nil, err
	}
	if d.applyDefaults != nil {
		d.applyDefaults(payload)
	}

	var parentID string
	if d.parentKind != "" {
		parentID = stringField(payload, d.parentField)
		if _, err := e.db.GetByRemoteID(ctx, d.parentKind, parentID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, notFoundErr("%s %q is not mirrored locally; create it first", d.parentKind, parentID)
			}
			return nil, storageErr(err, "parent lookup")
		}
	}

	body, err := d.createBody(ctx, e.remote, payload)
	if err != nil {
		return nil, remoteErr(err)
	}

	res, err := e.remote.Call(ctx, http.MethodPost, "/"+e.remote.AccountID()+"/"+d.collection, body)
	if err != nil {
		return nil, remoteErr(err)
	}
	remoteID := res.ID()
	if remoteID == "" {
		return nil, &Error{Kind: KindRemote, Detail: "remote response carries no id", RemoteBody: res.Body, HTTPStatus: res.HTTPStatus}
	}

	entity := &storage.Entity{
		LocalID:        uuid.NewString(),
		Kind:           kind,
		RemoteID:       remoteID,
		ParentRemoteID: parentID,
		Fields:         payload,
		Status:         d.defaultStatus,
		RemoteSnapshot: res.Body,
	}
	if err := e.db.Create(ctx, entity); err != nil {
		return nil, e.surfaceStorage(err, kind, remoteID, "create")
	}

	e.audit(ctx, kind, remoteID, storage.ActionCreate, res.Body)
	return entity, nil
}

// Update merges a partial payload into an existing entity, remote first.
func (e *Engine) Update(ctx context.Context, kind storage.Kind, remoteID string, payload Payload) (*storage.Entity, error) {
	d, err := descriptorFor(kind)
	if err != nil {
		return nil, validationErr("%v", err)
	}
	if err := d.validate(payload, true); err != nil {
		return nil, err
	}

	entity, err := e.Get(ctx, kind, remoteID)
	if err != nil {
		return nil, err
	}

	res, err := e.remote.Call(ctx, http.MethodPost, "/"+remoteID, payload)
	if err != nil {
		return nil, remoteErr(err)
	}

	if entity.Fields == nil {
		entity.Fields = Payload{}
	}
	for key, value := range payload {
		entity.Fields[key] = value
	}
	entity.RemoteSnapshot = res.Body

	if err := e.db.Update(ctx, entity); err != nil {
		return nil, e.surfaceStorage(err, kind, remoteID, "update")
	}

	e.audit(ctx, kind, remoteID, storage.ActionUpdate, res.Body)
	return entity, nil
}

// ChangeStatus transitions an entity's delivery status. The mirror records
// the last locally confirmed transition; it never re-derives status by
// polling the platform.
func (e *Engine) ChangeStatus(ctx context.Context, kind storage.Kind, remoteID string, status storage.Status) (*storage.Entity, error) {
	if !statuses[status] {
		return nil, validationErr("unknown status %q", status)
	}

	entity, err := e.Get(ctx, kind, remoteID)
	if err != nil {
		return nil, err
	}

	res, err := e.remote.Call(ctx, http.MethodPost, "/"+remoteID, map[string]interface{}{"status": string(status)})
	if err != nil {
		return nil, remoteErr(err)
	}

	entity.Status = status
	entity.RemoteSnapshot = res.Body
	if err := e.db.Update(ctx, entity); err != nil {
		return nil, e.surfaceStorage(err, kind, remoteID, "status change")
	}

	e.audit(ctx, kind, remoteID, storage.ActionStatusUpdate, res.Body)
	return entity, nil
}

// Delete marks the entity DELETED after remote confirmation. Ads are also
// dropped from the mirror; campaigns and ad sets keep a tombstone row.
func (e *Engine) Delete(ctx context.Context, kind storage.Kind, remoteID string) (*storage.Entity, error) {
	entity, err := e.Get(ctx, kind, remoteID)
	if err != nil {
		return nil, err
	}

	res, err := e.remote.Call(ctx, http.MethodDelete, "/"+remoteID, nil)
	if err != nil {
		return nil, remoteErr(err)
	}

	entity.Status = storage.StatusDeleted
	if kind == storage.KindAd {
		err = e.db.Remove(ctx, kind, remoteID)
	} else {
		entity.RemoteSnapshot = res.Body
		err = e.db.Update(ctx, entity)
	}
	if err != nil {
		return nil, e.surfaceStorage(err, kind, remoteID, "delete")
	}

	e.audit(ctx, kind, remoteID, storage.ActionDelete, res.Body)
	return entity, nil
}

// Get reads from the local mirror only.
func (e *Engine) Get(ctx context.Context, kind storage.Kind, remoteID string) (*storage.Entity, error) {
	entity, err := e.db.GetByRemoteID(ctx, kind, remoteID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, notFoundErr("%s %q not found", kind, remoteID)
		}
		return nil, storageErr(err, "lookup")
	}
	return entity, nil
}

// Filter narrows List results.
type Filter struct {
	Status         storage.Status
	ParentRemoteID string
}

// List reads from the local mirror, newest first.
func (e *Engine) List(ctx context.Context, kind storage.Kind, filter Filter) ([]storage.Entity, error) {
	entities, err := e.db.List(ctx, storage.ListOptions{
		Kind:           kind,
		Status:         filter.Status,
		ParentRemoteID: filter.ParentRemoteID,
	})
	if err != nil {
		return nil, storageErr(err, "list")
	}
	return entities, nil
}

// AuditTrail exposes an entity's recorded actions, oldest first.
func (e *Engine) AuditTrail(ctx context.Context, kind storage.Kind, remoteID string) ([]storage.AuditRecord, error) {
	trail, err := e.db.ListAudit(ctx, kind, remoteID)
	if err != nil {
		return nil, storageErr(err, "audit trail")
	}
	return trail, nil
}

// audit appends the record documenting a completed mutation. Failure here
// is the one non-fatal error class: the mutation already happened remotely
// and locally, so we surface the gap to the operator and move on.
func (e *Engine) audit(ctx context.Context, kind storage.Kind, remoteID, action string, payload json.RawMessage) {
	if err := e.db.AppendAudit(ctx, kind, remoteID, action, payload, true); err != nil {
		utils.Log.WithFields(map[string]interface{}{
			"kind":     string(KindAudit),
			"entity":   string(kind),
			"remoteId": remoteID,
			"action":   action,
		}).Errorf("audit append failed: %v", err)
	}
}

// surfaceStorage wraps a post-remote-success persistence failure. This is
// the one genuinely dangerous case: the remote platform now holds state the
// mirror does not reflect, so the log line carries everything needed for
// manual reconciliation.
func (e *Engine) surfaceStorage(err error, kind storage.Kind, remoteID, op string) *Error {
	utils.Log.WithFields(map[string]interface{}{
		"entity":    string(kind),
		"remoteId":  remoteID,
		"operation": op,
	}).Errorf("local mirror write failed after confirmed remote %s: %v", op, err)
	return storageErr(err, "mirror "+op+" for "+string(kind)+" "+remoteID)
}
