/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package fixproto

// --- Message Types (Tag 35), trimmed to spec.md §6's required set ---
const (
	MsgTypeHeartbeat            = "0"
	MsgTypeTestRequest          = "1"
	MsgTypeResendRequest        = "2"
	MsgTypeReject               = "3"
	MsgTypeSequenceReset        = "4"
	MsgTypeLogout               = "5"
	MsgTypeExecutionReport      = "8"
	MsgTypeLogon                = "A"
	MsgTypeNewOrderSingle       = "D"
	MsgTypeOrderCancelRequest   = "F"
	MsgTypeOrderCancelReplace   = "G"
	MsgTypeOrderStatusRequest   = "H"
	MsgTypeBusinessReject       = "j"
)

// --- Protocol Constants ---
const (
	FixTimeFormat   = "20060102-15:04:05.000"
	FixBeginString  = "FIX.4.4"
	EncryptMethodNone = "0"
)

// --- Side (Tag 54) ---
const (
	SideBuy  = "1"
	SideSell = "2"
)

// --- Order Types (Tag 40) ---
const (
	OrdTypeMarket = "1"
	OrdTypeLimit  = "2"
)

// --- Time In Force (Tag 59) ---
const (
	TimeInForceGTC = "1"
	TimeInForceIOC = "3"
	TimeInForceFOK = "4"
)

// --- Order Status (Tag 39), per spec.md §7's mapping table ---
const (
	OrdStatusNew             = "0"
	OrdStatusPartiallyFilled = "1"
	OrdStatusFilled          = "2"
	OrdStatusCanceled        = "4"
	OrdStatusRejected        = "8"
)

// --- Execution Type (Tag 150), per spec.md §7's mapping table ---
const (
	ExecTypeNew      = "0"
	ExecTypeFilled   = "F"
	ExecTypeCanceled = "4"
	ExecTypeRejected = "8"
)

// --- Order Reject Reason (Tag 103) ---
const (
	OrdRejReasonBrokerOption   = "0"
	OrdRejReasonUnknownSymbol  = "1"
	OrdRejReasonExchangeClosed = "2"
	OrdRejReasonExceedsLimit   = "3"
	OrdRejReasonTooLate        = "4"
	OrdRejReasonUnknownOrder   = "5"
	OrdRejReasonDuplicateOrder = "6"
	OrdRejReasonOther          = "99"
)

// --- Session Reject Reason (Tag 373) ---
const (
	SessionRejectReasonInvalidTag         = "0"
	SessionRejectReasonRequiredTagMissing = "1"
	SessionRejectReasonValueOutOfRange     = "5"
	SessionRejectReasonIncorrectDataFormat = "6"
	SessionRejectReasonInvalidMsgType      = "11"
)

// --- Business Reject Reason (Tag 380) ---
const (
	BusinessRejectReasonOther              = "0"
	BusinessRejectReasonUnsupportedMsgType = "3"
)

// OrdStatusToInternal maps a wire OrdStatus (tag 39) to the internal
// OrderStatus string, per spec.md §7. Unmapped codes return ("", false);
// execreport's Handler then leaves the order's status unchanged and logs
// nothing about the code.
func OrdStatusToInternal(wire string) (string, bool) {
	switch wire {
	case OrdStatusNew:
		return "open", true
	case OrdStatusPartiallyFilled:
		return "partially_filled", true
	case OrdStatusFilled:
		return "filled", true
	case OrdStatusCanceled:
		return "cancelled", true
	case OrdStatusRejected:
		return "rejected", true
	default:
		return "", false
	}
}

// ExecTypeToInternal maps a wire ExecType (tag 150) to an internal label,
// per spec.md §7: 0->new, F->fill, 4->cancel, 8->reject, other->informational.
func ExecTypeToInternal(wire string) string {
	switch wire {
	case ExecTypeNew:
		return "new"
	case ExecTypeFilled:
		return "fill"
	case ExecTypeCanceled:
		return "cancel"
	case ExecTypeRejected:
		return "reject"
	default:
		return "informational"
	}
}
