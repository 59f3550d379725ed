package events

const projectCreatedSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "title": "ProjectCreated",
  "properties": {
    "project_id": {"type": "string", "minLength": 1},
    "name": {"type": "string", "minLength": 1},
    "created_by_id": {"type": "string", "minLength": 1},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["project_id", "name", "created_by_id", "created_at"],
  "additionalProperties": false
}`

const projectRenamedSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "title": "ProjectRenamed",
  "properties": {
    "project_id": {"type": "string", "minLength": 1},
    "name": {"type": "string", "minLength": 1},
    "previous_name": {"type": "string"},
    "renamed_by_id": {"type": "string", "minLength": 1},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["project_id", "name", "previous_name", "renamed_by_id", "occurred_at"],
  "additionalProperties": false
}`

const projectDeletedSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "title": "ProjectDeleted",
  "properties": {
    "project_id": {"type": "string", "minLength": 1},
    "deleted_by_id": {"type": "string", "minLength": 1},
    "activities_removed": {"type": "integer", "minimum": 0},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["project_id", "deleted_by_id", "activities_removed", "occurred_at"],
  "additionalProperties": false
}`

const activityLoggedSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "title": "ActivityLogged",
  "properties": {
    "activity_id": {"type": "string", "minLength": 1},
    "project_id": {"type": "string", "minLength": 1},
    "performed_by_id": {"type": "string", "minLength": 1},
    "about": {"type": "string", "minLength": 1},
    "hours_worked": {"type": "number", "exclusiveMinimum": 0},
    "remark": {"type": "string"},
    "verified_by": {"type": "string"},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "project_id", "performed_by_id", "about", "hours_worked", "created_at"],
  "additionalProperties": false
}`

const activityUpdatedSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "title": "ActivityUpdated",
  "properties": {
    "activity_id": {"type": "string", "minLength": 1},
    "project_id": {"type": "string", "minLength": 1},
    "updated_by_id": {"type": "string", "minLength": 1},
    "about": {"type": "string", "minLength": 1},
    "hours_worked": {"type": "number", "exclusiveMinimum": 0},
    "remark": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "project_id", "updated_by_id", "about", "hours_worked", "occurred_at"],
  "additionalProperties": false
}`

const activityVerifiedSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "title": "ActivityVerified",
  "properties": {
    "activity_id": {"type": "string", "minLength": 1},
    "project_id": {"type": "string", "minLength": 1},
    "verified_by": {"type": "string", "minLength": 1},
    "verified_by_user_id": {"type": "string", "minLength": 1},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "project_id", "verified_by", "verified_by_user_id", "occurred_at"],
  "additionalProperties": false
}`

const activityDeletedSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "title": "ActivityDeleted",
  "properties": {
    "activity_id": {"type": "string", "minLength": 1},
    "project_id": {"type": "string", "minLength": 1},
    "deleted_by_id": {"type": "string", "minLength": 1},
    "hours_worked": {"type": "number"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "project_id", "deleted_by_id", "hours_worked", "occurred_at"],
  "additionalProperties": false
}`
