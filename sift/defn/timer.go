/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package defn

import "time"

// Timer is the clock and scheduler a node runs on.
type Timer interface {
	// Now returns current time.
	Now() time.Time
	// Schedule schedules the callback function to be called after the duration,
	// and returns a cancel callback to cancel the scheduled function.
	// Cancel returns an error if the event already fired or was cancelled.
	Schedule(time.Duration, func()) func() error
}
