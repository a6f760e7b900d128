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

// Package fixproto holds the wire-level FIX constants this engine speaks:
// tag numbers, message types, and the enumerations used on the required
// inbound/outbound message set named in spec.md §6. Values here are
// protocol facts, not library-specific, so they carry over from the
// teacher's constants package without needing a quickfix.Tag wrapper.
package fixproto

// Tag is a FIX tag number.
type Tag int

// --- Standard FIX Tags ---
const (
	TagAccount        Tag = 1
	TagAvgPx          Tag = 6
	TagBeginString    Tag = 8
	TagBodyLength     Tag = 9
	TagCheckSum       Tag = 10
	TagClOrdID        Tag = 11
	TagCommission     Tag = 12
	TagCommType       Tag = 13
	TagCumQty         Tag = 14
	TagExecID         Tag = 17
	TagExecInst       Tag = 18
	TagHandlInst      Tag = 21
	TagLastMkt        Tag = 30
	TagLastPx         Tag = 31
	TagLastShares     Tag = 32
	TagMsgSeqNum      Tag = 34
	TagMsgType        Tag = 35
	TagOrderID        Tag = 37
	TagOrderQty       Tag = 38
	TagOrdStatus      Tag = 39
	TagOrdType        Tag = 40
	TagOrigClOrdID    Tag = 41
	TagPossDupFlag    Tag = 43
	TagPrice          Tag = 44
	TagRefSeqNum      Tag = 45
	TagSenderCompID   Tag = 49
	TagSenderSubID    Tag = 50
	TagSendingTime    Tag = 52
	TagSide           Tag = 54
	TagSymbol         Tag = 55
	TagTargetCompID   Tag = 56
	TagText           Tag = 58
	TagTimeInForce    Tag = 59
	TagTransactTime   Tag = 60
	TagValidUntilTime Tag = 62
	TagEncryptMethod  Tag = 98
	TagStopPx         Tag = 99
	TagOrdRejReason   Tag = 103
	TagCxlRejReason   Tag = 102
	TagHeartBtInt     Tag = 108
	TagTestReqID      Tag = 112
	TagGapFillFlag    Tag = 123
	TagResetSeqNumFlag Tag = 141
	TagNewSeqNo       Tag = 36
	TagQuoteID        Tag = 117
	TagExpireTime     Tag = 126
	TagQuoteReqID     Tag = 131
	TagNoMiscFees     Tag = 136
	TagMiscFeeAmt     Tag = 137
	TagMiscFeeCurr    Tag = 138
	TagMiscFeeType    Tag = 139
	TagExecType       Tag = 150
	TagLeavesQty      Tag = 151
	TagCashOrderQty   Tag = 152
	TagEffectiveTime  Tag = 168
	TagMaxShow        Tag = 210
	TagBeginSeqNo     Tag = 7
	TagEndSeqNo       Tag = 16

	// Market Data Tags
	TagMdReqID                 Tag = 262
	TagSubscriptionRequestType Tag = 263
	TagMarketDepth             Tag = 264
	TagMdUpdateType            Tag = 265
	TagNoMdEntryTypes          Tag = 267
	TagNoMdEntries             Tag = 268
	TagMdEntryType             Tag = 269
	TagMdEntryPx               Tag = 270
	TagMdEntrySize             Tag = 271
	TagMdEntryTime             Tag = 273
	TagMdReqRejReason          Tag = 281
	TagMdEntryPositionNo       Tag = 290

	// Reject Tags
	TagRefTagID             Tag = 371
	TagRefMsgType           Tag = 372
	TagSessionRejectReason  Tag = 373
	TagBusinessRejectReason Tag = 380

	// Order Tags
	TagCxlRejResponseTo  Tag = 434
	TagUsername          Tag = 553
	TagPassword          Tag = 554
	TagTargetStrategy    Tag = 847
	TagParticipationRate Tag = 849
	TagDefaultApplVerID  Tag = 1137

	// Auth / custom signature tags — venue-specific, see DESIGN.md's
	// Open Question note on HMAC payload layout.
	TagHmacSignature Tag = 96
	TagAccessKey     Tag = 9407
	TagDropCopyFlag  Tag = 9406
)
