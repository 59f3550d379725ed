package events

import "sort"

// Kafka topics carrying timesheet events.
const (
	TopicProjects   = "timesheet_projects"
	TopicActivities = "timesheet_activities"
)

// Metadata describes how an event type is routed and validated.
type Metadata struct {
	Topic         string
	SchemaSubject string
	Schema        string
}

var catalog = map[string]Metadata{
	TypeProjectCreated:   {Topic: TopicProjects, SchemaSubject: TopicProjects + "-project.created-value", Schema: projectCreatedSchema},
	TypeProjectRenamed:   {Topic: TopicProjects, SchemaSubject: TopicProjects + "-project.renamed-value", Schema: projectRenamedSchema},
	TypeProjectDeleted:   {Topic: TopicProjects, SchemaSubject: TopicProjects + "-project.deleted-value", Schema: projectDeletedSchema},
	TypeActivityLogged:   {Topic: TopicActivities, SchemaSubject: TopicActivities + "-activity.logged-value", Schema: activityLoggedSchema},
	TypeActivityUpdated:  {Topic: TopicActivities, SchemaSubject: TopicActivities + "-activity.updated-value", Schema: activityUpdatedSchema},
	TypeActivityVerified: {Topic: TopicActivities, SchemaSubject: TopicActivities + "-activity.verified-value", Schema: activityVerifiedSchema},
	TypeActivityDeleted:  {Topic: TopicActivities, SchemaSubject: TopicActivities + "-activity.deleted-value", Schema: activityDeletedSchema},
}

// Lookup returns routing metadata for an event type.
func Lookup(eventType string) (Metadata, bool) {
	meta, ok := catalog[eventType]
	return meta, ok
}

// Types lists every known event type in lexical order.
func Types() []string {
	out := make([]string, 0, len(catalog))
	for t := range catalog {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Kafka record headers attached to every published event.
const (
	HeaderEventType     = "event_type"
	HeaderSchemaSubject = "schema_subject"
	HeaderAggregateID   = "aggregate_id"
	HeaderActorID       = "actor_id"
)
