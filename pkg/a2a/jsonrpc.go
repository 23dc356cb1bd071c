package a2a

import (
	"encoding/json"
	"errors"
)

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      any           `json:"id,omitempty"`
	Result  any           `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}

type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *JSONRPCError) Error() string { return e.Message }

const (
	ErrCodeParse         = -32700
	ErrCodeInvalidReq    = -32600
	ErrCodeNotFound      = -32601
	ErrCodeInvalidParams = -32602
	ErrCodeInternal      = -32603
	ErrCodeTaskNotFound  = -32001
	ErrCodeUnsupported   = -32004
)

const (
	MethodMessageSend   = "message/send"
	MethodMessageStream = "message/stream"
	MethodTasksSend     = "tasks/send"
	MethodTasksGet      = "tasks/get"
	MethodTasksCancel   = "tasks/cancel"
	MethodToolsCall     = "tools/call"
)

func NewJSONRPCResponse(id any, result any) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
}

func NewJSONRPCError(id any, code int, message string) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message},
	}
}

// ErrorCode maps a domain error onto its JSON-RPC code.
func ErrorCode(err error) int {
	var pre *PreconditionError
	switch {
	case errors.As(err, &pre):
		return ErrCodeInvalidParams
	case errors.Is(err, ErrTaskNotFound):
		return ErrCodeTaskNotFound
	case errors.Is(err, ErrUnsupportedOperation):
		return ErrCodeUnsupported
	case errors.Is(err, ErrTaskExists):
		return ErrCodeInvalidReq
	default:
		return ErrCodeInternal
	}
}

type MessageSendParams struct {
	Message       Message            `json:"message"`
	Configuration *SendConfiguration `json:"configuration,omitempty"`
	Metadata      map[string]any     `json:"metadata,omitempty"`
	// ID is accepted for the older tasks/send shape, where the task id sat
	// beside the message.
	ID string `json:"id,omitempty"`
}

type SendConfiguration struct {
	Blocking            bool     `json:"blocking"`
	AcceptedOutputModes []string `json:"acceptedOutputModes,omitempty"`
}

type TaskIDParams struct {
	ID string `json:"id"`
}

type ToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type ToolCallResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
