package types

// PlaybackState is the lifecycle state of a playback session
type PlaybackState string

const (
	PlaybackStopped PlaybackState = "stopped"
	PlaybackPlaying PlaybackState = "playing"
	PlaybackPaused  PlaybackState = "paused"
)

// PlaybackStatus reports the current session position
type PlaybackStatus struct {
	State       PlaybackState `json:"state"`
	RecordID    string        `json:"recordId,omitempty"`
	FrameIndex  int           `json:"frameIndex"`
	TotalFrames int           `json:"totalFrames"`
}

// PlaybackSettings are the user-adjustable playback options
type PlaybackSettings struct {
	Speed float64 `json:"speed"`
	Loop  bool    `json:"loop"`
}

// PlaybackFrame is one replayed frame delivered to subscribers. Subscribers
// receive a nil *PlaybackFrame when playback goes idle.
type PlaybackFrame struct {
	RecordID string `json:"recordId"`
	Index    int    `json:"index"`
	Total    int    `json:"total"`
	Frame    Frame  `json:"frame"`
}
