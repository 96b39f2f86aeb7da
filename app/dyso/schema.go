package dyso

// ConfigSchema is the JSON schema of Config.
const ConfigSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "DySO orchestration run",
  "type": "object",
  "definitions": {
    "duration": {
      "type": ["integer", "string"],
      "minimum": 0,
      "pattern": "^[0-9.]+(ns|us|µs|ms|s|m|h)?([0-9.]+(ns|us|µs|ms|s|m|h))*$"
    },
    "command": {
      "type": "object",
      "required": ["name", "command"],
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "command": { "type": "string", "minLength": 1 },
        "privileged": { "type": "boolean" }
      },
      "additionalProperties": false
    },
    "step": {
      "type": "object",
      "required": ["name", "command"],
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "command": { "type": "string", "minLength": 1 },
        "instances": { "type": "integer", "minimum": 0 },
        "indexArg": { "type": "boolean" },
        "settle": { "$ref": "#/definitions/duration" },
        "privileged": { "type": "boolean" }
      },
      "additionalProperties": false
    },
    "mac": {
      "type": "string",
      "pattern": "^$|^[0-9A-Fa-f]{2}(:[0-9A-Fa-f]{2}){5}$"
    },
    "generator": {
      "type": "object",
      "required": ["appId", "etherType", "packetLength", "timerPeriod"],
      "properties": {
        "appId": { "type": "integer", "minimum": 1, "maximum": 15 },
        "etherType": { "type": "integer", "minimum": 1536, "maximum": 65535 },
        "srcMac": { "$ref": "#/definitions/mac" },
        "dstMac": { "$ref": "#/definitions/mac" },
        "l4": { "enum": ["", "tcp"] },
        "packetLength": { "type": "integer", "minimum": 60 },
        "timerPeriod": { "$ref": "#/definitions/duration" },
        "batchCount": { "type": "integer", "minimum": 0 },
        "packetCount": { "type": "integer", "minimum": 0 },
        "pipe": { "type": "integer", "minimum": 0, "maximum": 3 },
        "localPort": { "type": "integer", "minimum": 0, "maximum": 71 },
        "srcPort": { "type": "integer", "minimum": 0 },
        "bufferOffset": { "type": "integer", "minimum": 0, "maximum": 16383 }
      },
      "additionalProperties": false
    }
  },
  "properties": {
    "endpoint": { "type": "string", "minLength": 1 },
    "rpcTimeout": { "$ref": "#/definitions/duration" },
    "privilege": { "type": "string" },
    "workDir": { "type": "string" },
    "logDir": { "type": "string" },
    "pidFile": { "type": "string" },
    "prepare": { "type": "array", "items": { "$ref": "#/definitions/command" } },
    "collaborators": { "type": "array", "items": { "$ref": "#/definitions/step" } },
    "setup": { "type": "array", "items": { "$ref": "#/definitions/command" } },
    "offsetRegister": {
      "type": "object",
      "required": ["table", "field"],
      "properties": {
        "table": { "type": "string", "minLength": 1 },
        "field": { "type": "string", "minLength": 1 },
        "index": { "type": "integer", "minimum": 0 }
      },
      "additionalProperties": false
    },
    "generators": { "type": "array", "items": { "$ref": "#/definitions/generator" } },
    "confirmTraffic": { "type": "boolean" },
    "drift": {
      "type": "object",
      "properties": {
        "intervalSize": { "$ref": "#/definitions/duration" },
        "offsetSize": { "type": "integer", "minimum": 0 },
        "totalDuration": { "$ref": "#/definitions/duration" },
        "writeTimeout": { "$ref": "#/definitions/duration" }
      },
      "additionalProperties": false
    },
    "drain": { "$ref": "#/definitions/duration" },
    "killGrace": { "$ref": "#/definitions/duration" },
    "windDownTimeout": { "$ref": "#/definitions/duration" }
  },
  "additionalProperties": false
}`
