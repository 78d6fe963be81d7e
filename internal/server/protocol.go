package server

import (
	"github.com/msalah0e/canopy/internal/disclosure"
	"github.com/msalah0e/canopy/internal/render"
	"gonum.org/v1/gonum/spatial/r2"
)

// Inbound message types. Pointer coordinates are in simulation space.
const (
	MsgStart  = "start"
	MsgMove   = "move"
	MsgEnd    = "end"
	MsgCancel = "cancel"
	MsgCamera = "camera"
	MsgToggle = "toggle"
)

// Outbound message types.
const (
	MsgHello  = "hello"
	MsgFrame  = "frame"
	MsgChange = "change"
	MsgError  = "error"
)

// Request is a message from a viewer.
type Request struct {
	Type   string         `json:"type"`
	X      float64        `json:"x,omitempty"`
	Y      float64        `json:"y,omitempty"`
	Node   string         `json:"node,omitempty"`
	Camera *render.Camera `json:"camera,omitempty"`
}

func (r Request) Point() r2.Vec {
	return r2.Vec{X: r.X, Y: r.Y}
}

// Response is a message to a viewer.
type Response struct {
	Type   string        `json:"type"`
	Client string        `json:"client,omitempty"`
	Width  float64       `json:"width,omitempty"`
	Height float64       `json:"height,omitempty"`
	Frame  *render.Frame `json:"frame,omitempty"`
	Change *ChangeView   `json:"change,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// ChangeView is the wire form of a disclosure transition.
type ChangeView struct {
	Action  string   `json:"action"`
	Node    string   `json:"node"`
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

func changeView(c disclosure.Change) *ChangeView {
	return &ChangeView{Action: c.Action.String(), Node: c.NodeID, Added: c.Added, Removed: c.Removed}
}
