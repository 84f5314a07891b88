// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

// configSchema documents the top-level config.json fields, grounded on the
// teacher's internal/config.configSchema (same "one property per config
// knob, description + type" shape).
var configSchema = `
{
  "type": "object",
  "properties": {
    "addr": {
      "description": "Address the frame listener binds to (e.g. ':7780').",
      "type": "string"
    },
    "adminAddr": {
      "description": "Address the admin/metrics HTTP surface binds to, empty disables it.",
      "type": "string"
    },
    "maxSubscriptions": {
      "description": "Maximum subscriptions a single session may hold.",
      "type": "integer"
    },
    "authFailureWindow": {
      "description": "Window, as a Go duration string, over which repeated auth failures accumulate before a session is dropped.",
      "type": "string"
    },
    "authFailureThreshold": {
      "description": "Number of auth failures within authFailureWindow before the session is torn down.",
      "type": "integer"
    },
    "q1DedupWindow": {
      "description": "Window, as a Go duration string, within which duplicate (session, sequence) Set/Publish frames are silently deduplicated.",
      "type": "string"
    },
    "scheduleHorizon": {
      "description": "Furthest duration, as a Go duration string, a Bundle may be scheduled into the future; clamped to between 1h and 24h.",
      "type": "string"
    },
    "maxPendingScheduled": {
      "description": "Maximum number of not-yet-fired scheduled bundles. claspd does not read this key; the scheduler's heap is capped by the constant scheduler.MaxPending (100000) instead.",
      "type": "integer"
    },
    "pskTokens": {
      "description": "Pre-shared token records accepted by the cpsk_ validator.",
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "subject": {"type": "string"},
          "scopes": {
            "type": "array",
            "items": {
              "type": "object",
              "properties": {
                "action": {"type": "string"},
                "pattern": {"type": "string"}
              },
              "required": ["action", "pattern"]
            }
          }
        },
        "required": ["subject", "scopes"]
      }
    },
    "pskTokensHashed": {
      "description": "Pre-shared token records accepted by the cpsk_ validator, stored as a bcrypt hash rather than the raw token.",
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "tokenHash": {"type": "string"},
          "subject": {"type": "string"},
          "scopes": {
            "type": "array",
            "items": {
              "type": "object",
              "properties": {
                "action": {"type": "string"},
                "pattern": {"type": "string"}
              },
              "required": ["action", "pattern"]
            }
          }
        },
        "required": ["tokenHash", "subject", "scopes"]
      }
    },
    "capabilityIssuerKey": {
      "description": "Base64-encoded Ed25519 public key trusted to sign cap_ capability tokens. claspd does not read this key and registers no cap_ validator.",
      "type": "string"
    },
    "entityDirectory": {
      "description": "Connection details for the ent_ entity validator's backing directory (LDAP or OIDC). claspd does not read this key and registers no ent_ validator.",
      "type": "object",
      "properties": {
        "kind": {"type": "string", "enum": ["ldap", "oidc"]},
        "url": {"type": "string"}
      }
    },
    "journal": {
      "description": "Optional durable journal backend; absent disables Replay and rejects Q2 writes.",
      "type": "object",
      "properties": {
        "kind": {"type": "string", "enum": ["sqlite", "none"]},
        "path": {"type": "string"}
      }
    },
    "rulesFile": {
      "description": "Path to a JSON file of rules.Rule records. claspd does not read this key; its router runs with no rules engine.",
      "type": "string"
    },
    "checkpoint": {
      "description": "Periodic Avro snapshot of the state store; an empty dir disables checkpointing.",
      "type": "object",
      "properties": {
        "dir": {"type": "string"},
        "interval": {"type": "string"},
        "s3Bucket": {"type": "string"},
        "s3Prefix": {"type": "string"}
      }
    }
  },
  "required": ["addr"]
}`
