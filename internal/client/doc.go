// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package client implements the field device agent runtime.
//
// It wires the local outbox, the sync services and the background sync
// worker into one process lifecycle, and exposes the one-shot commands of the
// agent binary (enqueue, sync, status, resolve).
package client
