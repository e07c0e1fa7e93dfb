package ros

import (
	"time"

	"github.com/samber/lo"

	"go.viam.com/projection/rimage"
	"go.viam.com/projection/vision/objectdetection"
)

// StampedDetections is a detection array with its header stamp.
type StampedDetections struct {
	Stamp      time.Time
	Detections []objectdetection.Detection
}

// StampedDepth is a depth frame with its header stamp.
type StampedDepth struct {
	Stamp time.Time
	Depth *rimage.DepthMap
}

// Pair is a detection array and the depth frame matched to it.
type Pair struct {
	Detections StampedDetections
	Depth      StampedDepth
}

// ApproximateSynchronizer pairs detection arrays with depth frames whose stamps differ by at most
// the slop. Each stream is buffered in a queue of at most queueSize messages; overflow and
// messages that can no longer be matched are dropped. Messages on each stream must be added in
// stamp order. Not safe for concurrent use.
type ApproximateSynchronizer struct {
	queueSize int
	slop      time.Duration

	dets   []StampedDetections
	depths []StampedDepth

	dropped int
}

// NewApproximateSynchronizer returns a synchronizer with the given queue size and slop.
func NewApproximateSynchronizer(queueSize int, slop time.Duration) *ApproximateSynchronizer {
	if queueSize < 1 {
		queueSize = 1
	}
	if slop < 0 {
		slop = 0
	}
	return &ApproximateSynchronizer{queueSize: queueSize, slop: slop}
}

// Dropped returns how many messages were discarded without being paired.
func (s *ApproximateSynchronizer) Dropped() int {
	return s.dropped
}

// AddDetections queues a detection array and returns any pairs that became final.
func (s *ApproximateSynchronizer) AddDetections(m StampedDetections) []Pair {
	s.dets = append(s.dets, m)
	if len(s.dets) > s.queueSize {
		s.dets = s.dets[1:]
		s.dropped++
	}
	return s.match(false)
}

// AddDepth queues a depth frame and returns any pairs that became final.
func (s *ApproximateSynchronizer) AddDepth(m StampedDepth) []Pair {
	s.depths = append(s.depths, m)
	if len(s.depths) > s.queueSize {
		s.depths = s.depths[1:]
		s.dropped++
	}
	return s.match(false)
}

// Flush pairs whatever can still be paired without waiting for more messages and drops the rest.
func (s *ApproximateSynchronizer) Flush() []Pair {
	pairs := s.match(true)
	s.dropped += len(s.dets) + len(s.depths)
	s.dets, s.depths = nil, nil
	return pairs
}

// match pairs the oldest queued message with the head of the other stream when they are within
// the slop. If the next message on the oldest message's own stream is no later than that head,
// it is the better partner and the oldest message is dropped instead. Without a next message the
// decision waits unless flushing.
func (s *ApproximateSynchronizer) match(flushing bool) []Pair {
	var pairs []Pair
	for len(s.dets) > 0 && len(s.depths) > 0 {
		detFirst := !s.depths[0].Stamp.Before(s.dets[0].Stamp)
		var own []time.Time
		var other time.Time
		if detFirst {
			own = lo.Map(s.dets, func(m StampedDetections, _ int) time.Time { return m.Stamp })
			other = s.depths[0].Stamp
		} else {
			own = lo.Map(s.depths, func(m StampedDepth, _ int) time.Time { return m.Stamp })
			other = s.dets[0].Stamp
		}

		switch {
		case other.Sub(own[0]) > s.slop, len(own) > 1 && !own[1].After(other):
			s.dropOldest(detFirst)
			continue
		case len(own) == 1 && !flushing:
			return pairs
		}

		pairs = append(pairs, Pair{Detections: s.dets[0], Depth: s.depths[0]})
		s.dets = s.dets[1:]
		s.depths = s.depths[1:]
	}
	return pairs
}

func (s *ApproximateSynchronizer) dropOldest(det bool) {
	if det {
		s.dets = s.dets[1:]
	} else {
		s.depths = s.depths[1:]
	}
	s.dropped++
}
