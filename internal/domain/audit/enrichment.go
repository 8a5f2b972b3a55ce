// Package audit stamps write documents with the server-assigned internal
// fields before they are persisted.
package audit

import (
	"context"
	"maps"
	"time"

	appctx "docgate/internal/core/context"
)

// UpdateDoc stamps doc for an update at schema version and returns it.
// doc is modified in place.
func UpdateDoc(doc map[string]any, version string, now time.Time) map[string]any {
	if v, _ := doc["apk_version_modified"].(string); v == "" {
		doc["apk_version_modified"] = ""
	}
	doc["modified"] = now.UnixMilli()
	doc["version_modified"] = version
	for _, k := range []string{"latitude", "longitude"} {
		if _, ok := doc[k]; !ok {
			doc[k] = nil
		}
	}
	return doc
}

// CreateDoc derives the create document from an already stamped update
// document. update is not modified: it is still needed when the create
// falls back to an update.
func CreateDoc(update map[string]any, caller appctx.Caller) map[string]any {
	doc := maps.Clone(update)
	doc["apk_version_created"] = update["apk_version_modified"]
	doc["created"] = update["modified"]
	doc["version_created"] = update["version_modified"]
	doc["email"] = caller.UserID
	doc["data_collector_email"] = caller.UserID
	doc["role_uuid"] = caller.RoleUUID
	doc["firebase_uuid"] = caller.FirebaseUUID
	doc["group_uuid"] = caller.GroupUUID
	doc["managed_uuid"] = caller.ManagedUUID
	return doc
}

// Stamp returns the update and create documents for doc, using the caller
// found in ctx.
func Stamp(ctx context.Context, doc map[string]any, version string, now time.Time) (update, create map[string]any) {
	var caller appctx.Caller
	if c := appctx.GetCaller(ctx); c != nil {
		caller = *c
	}
	update = UpdateDoc(doc, version, now)
	return update, CreateDoc(update, caller)
}
