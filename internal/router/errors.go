// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package router

import "github.com/lumencanvas/clasp/internal/codec"

// Error codes are partitioned by class (spec.md §7): 100s protocol, 200s
// address, 300s authorization, 400s state, 500s internal. Values are
// frozen once shipped, same as the codec's wire type-codes.
const (
	CodeBadFrame           = 100
	CodeTruncated          = 101
	CodeUnknownType        = 102
	CodeVersionMismatch    = 103
	CodeDuplicateHello     = 104
	CodeMessageBeforeHello = 105
	CodeMessageTooLarge    = 106
	CodeProtocolViolation  = 107

	CodeBadAddress     = 200
	CodeBadPattern     = 201
	CodeWildcardMisuse = 202

	CodePermissionDenied     = 300
	CodeTokenExpired         = 301
	CodeBadSignature         = 302
	CodeAttenuationViolation = 303
	CodeChainTooDeep         = 304
	CodeUnknownTokenType     = 305
	CodeScopeViolation       = 306
	CodeRateExceeded         = 307

	CodeLocked          = 400
	CodeRevisionConflict = 401
	CodeBundleRejected  = 402
	CodeScheduleTooFar  = 403
	CodeNotFound        = 404

	CodeQueueFull           = 500
	CodeBackendUnavailable  = 501
	CodeCancelled           = 502
	CodeFeatureUnsupported  = 503
	CodeInternal            = 599
)

func errFrame(code int, reason, correlationID string) codec.Error {
	return codec.Error{Code: code, Reason: reason, CorrelationID: correlationID}
}
