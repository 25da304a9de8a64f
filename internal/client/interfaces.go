// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package client

import "context"

// Client defines the minimal lifecycle contract for runnable client
// applications.
type Client interface {
	// Run syncs once, then keeps syncing in the background until ctx is
	// cancelled.
	Run(ctx context.Context) error
}
