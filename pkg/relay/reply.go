package relay

import (
	"encoding/json"
	"strings"

	"github.com/surajcodesml/a2a/pkg/a2a"
)

// verdict is what a single reply says about the remote payment.
type verdict int

const (
	verdictMalformed verdict = iota
	verdictCompleted
	verdictFailed
	verdictPending
)

// States a remote agent may report beyond the local lifecycle.
const (
	stateRejected a2a.TaskState = "rejected"
	stateCanceled a2a.TaskState = "canceled"
)

type interpretation struct {
	verdict verdict
	body    string
	reason  string
	taskID  string
}

// interpretTaskReply reads a message/send or tasks/get reply. Anything that
// is not a JSON-RPC result holding a task is malformed.
func interpretTaskReply(statusCode int, raw []byte) interpretation {
	if statusCode < 200 || statusCode > 299 {
		return interpretation{verdict: verdictMalformed}
	}
	var env struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return interpretation{verdict: verdictMalformed}
	}
	var task a2a.Task
	if err := json.Unmarshal(env.Result, &task); err != nil || task.Status.State == "" {
		return interpretation{verdict: verdictMalformed}
	}
	return interpretTask(&task)
}

func interpretTask(task *a2a.Task) interpretation {
	out := interpretation{taskID: task.ID}
	switch task.Status.State {
	case a2a.TaskStateCompleted:
		for _, art := range task.Artifacts {
			if text, ok := a2a.FirstText(art.Parts); ok {
				out.verdict = verdictCompleted
				out.body = text
				return out
			}
		}
		out.verdict = verdictMalformed
	case a2a.TaskStateFailed, stateRejected, stateCanceled:
		out.verdict = verdictFailed
		out.reason = statusText(task)
		if out.reason == "" {
			out.reason = "task " + string(task.Status.State)
		}
	case a2a.TaskStateSubmitted, a2a.TaskStateWorking:
		out.verdict = verdictPending
	default:
		out.verdict = verdictMalformed
	}
	return out
}

// interpretToolReply reads a tools/call reply.
func interpretToolReply(statusCode int, raw []byte) interpretation {
	if statusCode < 200 || statusCode > 299 {
		return interpretation{verdict: verdictMalformed}
	}
	var env struct {
		Result *a2a.ToolCallResult `json:"result"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || env.Result == nil {
		return interpretation{verdict: verdictMalformed}
	}
	return interpretToolResult(env.Result.IsError, env.Result.Content)
}

func interpretToolResult(isError bool, content []a2a.ToolContent) interpretation {
	var texts []string
	for _, c := range content {
		if c.Type == "" || c.Type == "text" {
			texts = append(texts, c.Text)
		}
	}
	if isError {
		return interpretation{verdict: verdictFailed, reason: strings.TrimSpace(strings.Join(texts, "\n"))}
	}
	if len(texts) == 0 {
		return interpretation{verdict: verdictMalformed}
	}
	return interpretation{verdict: verdictCompleted, body: texts[0]}
}

func statusText(task *a2a.Task) string {
	if task.Status.Message == nil {
		return ""
	}
	text, _ := a2a.FirstText(task.Status.Message.Parts)
	return text
}
