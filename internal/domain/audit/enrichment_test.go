package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "docgate/internal/core/context"
)

func TestUpdateDoc(t *testing.T) {
	now := time.UnixMilli(1599651061113)

	doc := UpdateDoc(map[string]any{"uuid": "id1", "latitude": 1.5}, "0.0.42", now)
	assert.Equal(t, map[string]any{
		"uuid":                 "id1",
		"apk_version_modified": "",
		"modified":             int64(1599651061113),
		"version_modified":     "0.0.42",
		"latitude":             1.5,
		"longitude":            nil,
	}, doc)

	doc = UpdateDoc(map[string]any{"apk_version_modified": "2.1.0", "modified": 1}, "0.0.42", now)
	assert.Equal(t, "2.1.0", doc["apk_version_modified"])
	assert.Equal(t, int64(1599651061113), doc["modified"], "clients cannot choose the modification time")
}

func TestStamp(t *testing.T) {
	ctx := appctx.WithCaller(context.Background(), &appctx.Caller{
		UserID:   "collector@example.org",
		RoleUUID: "role-1",
	})
	now := time.UnixMilli(42)

	update, create := Stamp(ctx, map[string]any{"uuid": "id1", "program": "Malaria"}, "0.0.42", now)

	assert.NotContains(t, update, "created")
	assert.NotContains(t, update, "email")

	require.Equal(t, int64(42), create["created"])
	assert.Equal(t, create["modified"], create["created"])
	assert.Equal(t, "0.0.42", create["version_created"])
	assert.Equal(t, "", create["apk_version_created"])
	assert.Equal(t, "collector@example.org", create["email"])
	assert.Equal(t, "collector@example.org", create["data_collector_email"])
	assert.Equal(t, "role-1", create["role_uuid"])
	assert.Equal(t, "", create["group_uuid"])
	assert.Equal(t, "Malaria", create["program"])
}

func TestStamp_NoCaller(t *testing.T) {
	_, create := Stamp(context.Background(), map[string]any{"uuid": "id1"}, "1", time.Now())
	assert.Equal(t, "", create["email"])
	assert.Equal(t, "", create["managed_uuid"])
}
