// Package cdpwire defines the JSON shapes of the Chrome DevTools Protocol
// (CDP) wire format: requests, responses and events exchanged with the
// inspector over a single WebSocket (spec.md §6 "Inspector wire protocol").
//
// Grounded on the message envelope in daabr/chrome-vision's
// pkg/cdp/transport.go (Message/Error) and the Debugger domain's type
// vocabulary in pkg/cdp/debugger/types.go and pkg/cdp/runtime/types.go.
package cdpwire

import "encoding/json"

// Message is a single CDP wire message: a request, a response, or an event.
// A request carries ID and Method, a response ID with Result or Error, and
// an event Method without ID.
type Message struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Error is the structured error object CDP embeds in a failed response.
type Error struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Code == 0 {
		return e.Message
	}
	return e.Message
}

// Location is a position in a parsed script (spec.md §3 "Script record").
type Location struct {
	ScriptID     string `json:"scriptId"`
	LineNumber   int64  `json:"lineNumber"`
	ColumnNumber int64  `json:"columnNumber,omitempty"`
}

// CallFrame is one JavaScript call frame, as returned in a `paused` event's
// callFrames array.
type CallFrame struct {
	CallFrameID      string        `json:"callFrameId"`
	FunctionName     string        `json:"functionName"`
	FunctionLocation *Location     `json:"functionLocation,omitempty"`
	Location         Location      `json:"location"`
	URL              string        `json:"url"`
	ScopeChain       []Scope       `json:"scopeChain"`
	This             RemoteObject  `json:"this"`
	ReturnValue      *RemoteObject `json:"returnValue,omitempty"`
}

// Scope describes one entry in a call frame's scope chain.
type Scope struct {
	Type          string        `json:"type"`
	Object        RemoteObject  `json:"object"`
	Name          string        `json:"name,omitempty"`
	StartLocation *Location     `json:"startLocation,omitempty"`
	EndLocation   *Location     `json:"endLocation,omitempty"`
}

// RemoteObject mirrors an inspector-side JavaScript value reference.
type RemoteObject struct {
	Type                string          `json:"type"`
	Subtype             string          `json:"subtype,omitempty"`
	ClassName           string          `json:"className,omitempty"`
	Value               json.RawMessage `json:"value,omitempty"`
	UnserializableValue string          `json:"unserializableValue,omitempty"`
	Description         string          `json:"description,omitempty"`
	ObjectID            string          `json:"objectId,omitempty"`
}

// PropertyDescriptor is one property entry returned by
// Runtime.getProperties.
type PropertyDescriptor struct {
	Name         string        `json:"name"`
	Value        *RemoteObject `json:"value,omitempty"`
	Writable     bool          `json:"writable,omitempty"`
	Get          *RemoteObject `json:"get,omitempty"`
	Set          *RemoteObject `json:"set,omitempty"`
	Configurable bool          `json:"configurable"`
	Enumerable   bool          `json:"enumerable"`
}

// ScriptParsedEvent is the payload of Debugger.scriptParsed.
type ScriptParsedEvent struct {
	ScriptID string `json:"scriptId"`
	URL      string `json:"url"`
}

// PausedEvent is the payload of Debugger.paused.
type PausedEvent struct {
	CallFrames      []CallFrame `json:"callFrames"`
	Reason          string      `json:"reason"`
	HitBreakpoints  []string    `json:"hitBreakpoints,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
}

// BreakpointResolvedEvent is the payload of Debugger.breakpointResolved.
type BreakpointResolvedEvent struct {
	BreakpointID string   `json:"breakpointId"`
	Location     Location `json:"location"`
}

// ExceptionThrownEvent is the payload of Runtime.exceptionThrown.
type ExceptionThrownEvent struct {
	Timestamp        float64      `json:"timestamp"`
	ExceptionDetails ExceptionDetails `json:"exceptionDetails"`
}

// ExceptionDetails describes a thrown exception.
type ExceptionDetails struct {
	Text       string        `json:"text"`
	LineNumber int64         `json:"lineNumber"`
	ColumnNumber int64       `json:"columnNumber"`
	URL        string        `json:"url,omitempty"`
	Exception  *RemoteObject `json:"exception,omitempty"`
}

// ConsoleAPICalledEvent is the payload of Runtime.consoleAPICalled.
type ConsoleAPICalledEvent struct {
	Type string         `json:"type"`
	Args []RemoteObject `json:"args"`
}
