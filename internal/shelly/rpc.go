package shelly

import (
	"encoding/json"
	"fmt"
)

// RPC methods
const (
	MethodRGBWSet       = "RGBW.Set"
	MethodRGBWGetStatus = "RGBW.GetStatus"
	MethodRGBWToggle    = "RGBW.Toggle"
	MethodGetDeviceInfo = "Shelly.GetDeviceInfo"
	MethodNotifyEvent   = "NotifyEvent"
	MethodNotifyStatus  = "NotifyStatus"
)

// frame covers requests, responses and notifications on the RPC channel.
type frame struct {
	ID     int64           `json:"id,omitempty"`
	Src    string          `json:"src,omitempty"`
	Dst    string          `json:"dst,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// RPCError is an error returned by the device
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type notifyEventParams struct {
	TS     float64       `json:"ts"`
	Events []notifyEvent `json:"events"`
}

type notifyEvent struct {
	Component string  `json:"component"`
	ID        int     `json:"id"`
	Event     string  `json:"event"`
	TS        float64 `json:"ts"`
}

type rgbwSetParams struct {
	ID         int    `json:"id"`
	On         bool   `json:"on"`
	RGB        [3]int `json:"rgb"`
	White      int    `json:"white"`
	Brightness int    `json:"brightness"`
}

type rgbwIDParams struct {
	ID int `json:"id"`
}

type rgbwStatus struct {
	ID         int    `json:"id"`
	Source     string `json:"source"`
	Output     bool   `json:"output"`
	RGB        [3]int `json:"rgb"`
	White      int    `json:"white"`
	Brightness int    `json:"brightness"`
}
