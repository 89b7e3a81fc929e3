/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package fw

import (
	"math"
	"time"

	"github.com/resilinets/siftd/sift/defn"
)

// TrajectoryDistances returns the distance of cur from the source-destination
// trajectory and from the last hop. Both are clamped to at least 1 when they
// come out as zero.
func TrajectoryDistances(src, dst, cur, last defn.Point) (dTrajectory float64, dLastSource float64) {
	sx, sy := float64(src.X), float64(src.Y)
	cx, cy := float64(cur.X), float64(cur.Y)
	lx, ly := float64(last.X), float64(last.Y)
	Y := float64(dst.Y) - sy
	X := float64(dst.X) - sx

	dLastSource = math.Hypot(lx-cx, ly-cy)

	switch {
	case Y == 0:
		// horizontal trajectory, foot of the perpendicular is (cx, sy)
		dTrajectory = math.Abs(cy - sy)
	case X == 0:
		// vertical trajectory
		dy := cy - ly
		dTrajectory = math.Sqrt(math.Max(0, dLastSource*dLastSource-dy*dy))
	default:
		slope := Y / X
		b := sy - slope*sx
		xi := (cx + slope*cy - slope*b) / (slope*slope + 1)
		yi := slope*xi + b
		dTrajectory = math.Hypot(xi-cx, yi-cy)
	}

	if dTrajectory == 0 {
		dTrajectory = 1
	}
	if dLastSource == 0 {
		dLastSource = 1
	}
	return dTrajectory, dLastSource
}

// ForwardDelay is the contention delay of a rebroadcast at cur:
// base + alpha * dTrajectory / dLastSource, alpha in seconds.
// Nodes near the trajectory and far from the last hop fire first.
func ForwardDelay(src, dst, cur, last defn.Point, base time.Duration, alpha float64) time.Duration {
	dTrajectory, dLastSource := TrajectoryDistances(src, dst, cur, last)
	extra := alpha * dTrajectory / dLastSource * float64(time.Second)
	return base + time.Duration(math.Round(extra))
}
