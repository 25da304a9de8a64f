package codec

const schemaDraft = "https://json-schema.org/draft/2020-12/schema"

const changeSchema = `{
	"$schema": "` + schemaDraft + `",
	"$defs": {
		"identifier": {"type": "string", "minLength": 1, "pattern": "\\S"},
		"change": {
			"type": "object",
			"required": ["entityType", "action", "payload", "offlineClientId", "declaredVersion", "entityUuid"],
			"properties": {
				"entityType": {"enum": ["assessment", "response", "entity"]},
				"action": {"enum": ["create", "update", "delete"]},
				"payload": true,
				"offlineClientId": {"$ref": "#/$defs/identifier"},
				"declaredVersion": {"type": "integer", "minimum": 1},
				"entityUuid": {"$ref": "#/$defs/identifier"}
			}
		}
	},
	"type": "object",
	"required": ["changes"],
	"properties": {
		"changes": {"type": "array", "items": {"$ref": "#/$defs/change"}}
	}
}`

const resolutionSchema = `{
	"$schema": "` + schemaDraft + `",
	"$defs": {
		"identifier": {"type": "string", "minLength": 1, "pattern": "\\S"},
		"resolution": {
			"type": "object",
			"required": ["conflictId", "resolutionStrategy", "entityType", "entityUuid"],
			"properties": {
				"conflictId": {"$ref": "#/$defs/identifier"},
				"resolutionStrategy": {"enum": ["last_write_wins", "manual", "merge"]},
				"resolvedData": true,
				"entityType": {"enum": ["assessment", "response", "entity"]},
				"entityUuid": {"$ref": "#/$defs/identifier"},
				"metadata": {"type": ["object", "null"]}
			}
		},
		"batch": {
			"type": "object",
			"required": ["resolutions"],
			"properties": {
				"resolutions": {"type": "array", "items": {"$ref": "#/$defs/resolution"}}
			}
		}
	}
}`
