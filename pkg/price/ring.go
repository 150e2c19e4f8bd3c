package price

import "time"

// Point is one price observation.
type Point struct {
	Price float64
	At    time.Time
}

// Ring is a bounded FIFO of price observations for one mint. It is a
// secondary heuristic cache only: alert correctness relies on the persisted
// price cache, so losing the ring on restart is fine.
type Ring struct {
	points []Point
	max    int
}

func NewRing(max int) *Ring {
	if max <= 0 {
		max = 60
	}
	return &Ring{max: max}
}

// Push appends an observation, evicting the oldest when at capacity.
func (r *Ring) Push(p float64, at time.Time) {
	r.points = append(r.points, Point{Price: p, At: at})
	if len(r.points) > r.max {
		r.points = r.points[1:]
	}
}

func (r *Ring) Len() int { return len(r.points) }

// Latest returns the newest observation, or false when empty.
func (r *Ring) Latest() (Point, bool) {
	if len(r.points) == 0 {
		return Point{}, false
	}
	return r.points[len(r.points)-1], true
}

// ChangeOverWindow reports the percent change between the oldest observation
// within the window and the newest one. Returns false when fewer than two
// points fall inside the window or the reference price is not positive.
func (r *Ring) ChangeOverWindow(window time.Duration) (float64, bool) {
	if len(r.points) < 2 {
		return 0, false
	}
	newest := r.points[len(r.points)-1]
	cutoff := newest.At.Add(-window)

	var ref *Point
	for i := range r.points {
		if !r.points[i].At.Before(cutoff) {
			ref = &r.points[i]
			break
		}
	}
	if ref == nil || ref.At.Equal(newest.At) || ref.Price <= 0 {
		return 0, false
	}
	return (newest.Price - ref.Price) / ref.Price * 100, true
}
