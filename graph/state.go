package graph

import "fmt"

type (
	// State is the lifecycle state of an element, bin or pipeline. Elements
	// move through the states one step at a time: Null holds no resources,
	// Ready has checked its configuration, Paused has opened devices and
	// files and is ready to produce data, Playing is producing data.
	State int

	// Kind classifies the node types of the graph.
	Kind int
)

const (
	StateVoidPending State = iota
	StateNull
	StateReady
	StatePaused
	StatePlaying
)

const (
	KindSource Kind = iota
	KindMixer
	KindVolume
	KindPan
	KindMeter
	KindResample
	KindEncode
	KindEffect
	KindDeinterleave
	KindSink
)

func (s State) String() string {
	switch s {
	case StateVoidPending:
		return "VOID_PENDING"
	case StateNull:
		return "NULL"
	case StateReady:
		return "READY"
	case StatePaused:
		return "PAUSED"
	case StatePlaying:
		return "PLAYING"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindMixer:
		return "mixer"
	case KindVolume:
		return "volume"
	case KindPan:
		return "pan"
	case KindMeter:
		return "meter"
	case KindResample:
		return "resample"
	case KindEncode:
		return "encode"
	case KindEffect:
		return "effect"
	case KindDeinterleave:
		return "deinterleave"
	case KindSink:
		return "sink"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// terminal kinds are pulled by the pipeline on every block.
func (k Kind) terminal() bool {
	return k == KindSink || k == KindEncode
}
