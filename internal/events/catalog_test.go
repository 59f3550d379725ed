package events

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xeipuuv/gojsonschema"
)

func TestCatalogRoutesByAggregate(t *testing.T) {
	for _, eventType := range Types() {
		meta, ok := Lookup(eventType)
		require.True(t, ok, eventType)

		wantTopic := TopicActivities
		if strings.HasPrefix(eventType, "project.") {
			wantTopic = TopicProjects
		}
		require.Equal(t, wantTopic, meta.Topic, eventType)
		require.Equal(t, wantTopic+"-"+eventType+"-value", meta.SchemaSubject)
	}

	_, ok := Lookup("activity.synced")
	require.False(t, ok)
	require.Len(t, Types(), 7)
}

func TestPayloadsSatisfyTheirSchemas(t *testing.T) {
	now := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	remark := "pairing"

	payloads := map[string]any{
		TypeProjectCreated:   ProjectCreated{ProjectID: "p1", Name: "Acme", CreatedByID: "alice", CreatedAt: now},
		TypeProjectRenamed:   ProjectRenamed{ProjectID: "p1", Name: "Acme 2", PreviousName: "Acme", RenamedByID: "alice", OccurredAt: now},
		TypeProjectDeleted:   ProjectDeleted{ProjectID: "p1", DeletedByID: "alice", ActivitiesRemoved: 3, OccurredAt: now},
		TypeActivityLogged:   ActivityLogged{ActivityID: "a1", ProjectID: "p1", PerformedByID: "bob", About: "design", HoursWorked: 1.5, Remark: &remark, CreatedAt: now},
		TypeActivityUpdated:  ActivityUpdated{ActivityID: "a1", ProjectID: "p1", UpdatedByID: "bob", About: "design", HoursWorked: 2, OccurredAt: now},
		TypeActivityVerified: ActivityVerified{ActivityID: "a1", ProjectID: "p1", VerifiedBy: "Alice", VerifiedByUserID: "alice", OccurredAt: now},
		TypeActivityDeleted:  ActivityDeleted{ActivityID: "a1", ProjectID: "p1", DeletedByID: "alice", HoursWorked: 2, OccurredAt: now},
	}
	require.Len(t, payloads, len(Types()))

	for eventType, payload := range payloads {
		meta, ok := Lookup(eventType)
		require.True(t, ok)

		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(meta.Schema))
		require.NoError(t, err, eventType)

		body, err := json.Marshal(payload)
		require.NoError(t, err)

		result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
		require.NoError(t, err)
		require.True(t, result.Valid(), "%s: %v", eventType, result.Errors())
	}
}

func TestActivityLoggedSchemaRejectsNonPositiveHours(t *testing.T) {
	meta, _ := Lookup(TypeActivityLogged)
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(meta.Schema))
	require.NoError(t, err)

	body := `{"activity_id":"a1","project_id":"p1","performed_by_id":"bob","about":"x","hours_worked":0,"created_at":"2024-03-04T09:30:00Z"}`
	result, err := schema.Validate(gojsonschema.NewStringLoader(body))
	require.NoError(t, err)
	require.False(t, result.Valid())
}
