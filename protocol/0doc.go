// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package protocol describes the Janus gateway signaling protocol as seen by a client.
//
// Incoming frames are decoded into a Message, a JSON object whose numbers are kept as json.Number to preserve the
// gateway's 64-bit session and handle identifiers. Outgoing requests are built as a Request, which has no slot for the
// fields owned by the transport and session layers, e.g., the transaction token.
//
// The subset match, see IsSubset, is used throughout the library to declare the shape of an expected reply without
// requiring bit-exact equality.
package protocol
