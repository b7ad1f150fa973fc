package domain

// Point is one sampled coordinate of a freehand path.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// MoveOptions describes how a stroke is rendered.
// Fill 为 nil 表示不填充。
type MoveOptions struct {
	Color string  `json:"lineColor"`
	Width float64 `json:"lineWidth"`
	Fill  *string `json:"fillColor,omitempty"`
	Shape string  `json:"shape,omitempty"`
	Mode  string  `json:"mode,omitempty"`
}

// Move is one committed-or-pending drawing action.
// ID and Timestamp are always assigned by the server.
type Move struct {
	ID        string      `json:"id"`
	Path      []Point     `json:"path"`
	Options   MoveOptions `json:"options"`
	Timestamp int64       `json:"timestamp"` // Unix 毫秒
}
