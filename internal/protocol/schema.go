package protocol

import "github.com/santhosh-tekuri/jsonschema/v5"

// intentSchema gates every submission before it can reach the intent queue.
var intentSchema = jsonschema.MustCompileString("intent.schema.json", intentSchemaJSON)

const intentSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["verb", "args"],
  "properties": {
    "verb": {"enum": ["Spawn", "Move", "ApplyForce", "Despawn", "SetTint"]},
    "args": {"type": "object"}
  },
  "$defs": {
    "vec3": {"type": "array", "items": {"type": "number"}, "minItems": 3, "maxItems": 3},
    "rgb": {"type": "array", "items": {"type": "number", "minimum": 0, "maximum": 1}, "minItems": 3, "maxItems": 3},
    "halfExtents": {"type": "array", "items": {"type": "number", "exclusiveMinimum": 0}, "minItems": 3, "maxItems": 3},
    "entityId": {"type": "integer", "minimum": 1}
  },
  "allOf": [
    {
      "if": {"properties": {"verb": {"const": "Spawn"}}, "required": ["verb"]},
      "then": {"properties": {"args": {
        "type": "object",
        "required": ["position", "size"],
        "properties": {
          "position": {"$ref": "#/$defs/vec3"},
          "velocity": {"$ref": "#/$defs/vec3"},
          "size": {"$ref": "#/$defs/halfExtents"},
          "kind": {"enum": ["dynamic", "kinematic", "static"]},
          "tint": {"$ref": "#/$defs/rgb"}
        },
        "additionalProperties": false
      }}}
    },
    {
      "if": {"properties": {"verb": {"const": "Move"}}, "required": ["verb"]},
      "then": {"properties": {"args": {
        "type": "object",
        "required": ["id", "mode"],
        "properties": {
          "id": {"$ref": "#/$defs/entityId"},
          "mode": {"enum": ["absolute", "delta"]},
          "position": {"$ref": "#/$defs/vec3"},
          "delta": {"$ref": "#/$defs/vec3"}
        },
        "additionalProperties": false,
        "allOf": [
          {"if": {"properties": {"mode": {"const": "absolute"}}, "required": ["mode"]}, "then": {"required": ["position"]}},
          {"if": {"properties": {"mode": {"const": "delta"}}, "required": ["mode"]}, "then": {"required": ["delta"]}}
        ]
      }}}
    },
    {
      "if": {"properties": {"verb": {"const": "ApplyForce"}}, "required": ["verb"]},
      "then": {"properties": {"args": {
        "type": "object",
        "required": ["id", "force"],
        "properties": {
          "id": {"$ref": "#/$defs/entityId"},
          "force": {"$ref": "#/$defs/vec3"}
        },
        "additionalProperties": false
      }}}
    },
    {
      "if": {"properties": {"verb": {"const": "Despawn"}}, "required": ["verb"]},
      "then": {"properties": {"args": {
        "type": "object",
        "required": ["id"],
        "properties": {"id": {"$ref": "#/$defs/entityId"}},
        "additionalProperties": false
      }}}
    },
    {
      "if": {"properties": {"verb": {"const": "SetTint"}}, "required": ["verb"]},
      "then": {"properties": {"args": {
        "type": "object",
        "required": ["id", "color"],
        "properties": {
          "id": {"$ref": "#/$defs/entityId"},
          "color": {"$ref": "#/$defs/rgb"}
        },
        "additionalProperties": false
      }}}
    }
  ]
}`
