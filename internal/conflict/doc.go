// Package conflict holds the pure parts of optimistic concurrency: deciding
// whether a device change may be applied to the stored entity and producing
// the resolved document of a recorded conflict.
//
// Nothing here touches storage; the sync and conflict services call these
// functions and persist the outcome.
package conflict
