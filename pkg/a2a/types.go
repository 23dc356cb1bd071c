package a2a

import (
	"encoding/json"
	"fmt"
	"time"
)

type AgentCard struct {
	Name               string       `json:"name"`
	Description        string       `json:"description"`
	URL                string       `json:"url"`
	Version            string       `json:"version"`
	DefaultInputModes  []string     `json:"defaultInputModes,omitempty"`
	DefaultOutputModes []string     `json:"defaultOutputModes,omitempty"`
	Capabilities       Capabilities `json:"capabilities"`
	Skills             []Skill      `json:"skills,omitempty"`
}

type Capabilities struct {
	Streaming         bool `json:"streaming"`
	PushNotifications bool `json:"pushNotifications"`
}

type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
}

type TaskState string

const (
	TaskStateSubmitted TaskState = "submitted"
	TaskStateWorking   TaskState = "working"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
)

func (s TaskState) Terminal() bool {
	return s == TaskStateCompleted || s == TaskStateFailed
}

func (s TaskState) rank() int {
	switch s {
	case TaskStateSubmitted:
		return 1
	case TaskStateWorking:
		return 2
	case TaskStateCompleted, TaskStateFailed:
		return 3
	default:
		return 0
	}
}

// CanTransition reports whether moving from s to next keeps the lifecycle
// monotonic. Re-entering working is allowed so status messages can be
// re-announced; nothing leaves a terminal state.
func (s TaskState) CanTransition(next TaskState) bool {
	if next.rank() == 0 || s.Terminal() {
		return false
	}
	if s == "" {
		return next == TaskStateSubmitted
	}
	if s == TaskStateWorking && next == TaskStateWorking {
		return true
	}
	return next.rank() > s.rank()
}

type Task struct {
	ID        string     `json:"id"`
	ContextID string     `json:"contextId"`
	Status    TaskStatus `json:"status"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
	History   []Message  `json:"history,omitempty"`
	Kind      string     `json:"kind,omitempty"`
}

type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

type Message struct {
	Role      Role           `json:"role"`
	MessageID string         `json:"messageId,omitempty"`
	Parts     []Part         `json:"parts"`
	TaskID    string         `json:"taskId,omitempty"`
	ContextID string         `json:"contextId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type PartType string

const (
	PartTypeText PartType = "text"
	PartTypeFile PartType = "file"
)

// Part is a tagged union of text, file-by-value and file-by-reference. A file
// part carries exactly one of Bytes or URI.
type Part struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	File     *File    `json:"file,omitempty"`
	MimeType string   `json:"mimeType,omitempty"`
}

type File struct {
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Bytes    []byte `json:"bytes,omitempty"`
	URI      string `json:"uri,omitempty"`
}

func TextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

func FileURIPart(name, mimeType, uri string) Part {
	return Part{Type: PartTypeFile, File: &File{Name: name, MimeType: mimeType, URI: uri}}
}

func (p Part) Validate() error {
	switch p.Type {
	case PartTypeText:
		if p.File != nil {
			return fmt.Errorf("a2a: text part must not carry a file")
		}
	case PartTypeFile:
		if p.File == nil {
			return fmt.Errorf("a2a: file part without file")
		}
		hasBytes, hasURI := len(p.File.Bytes) > 0, p.File.URI != ""
		if hasBytes == hasURI {
			return fmt.Errorf("a2a: file part must carry exactly one of bytes or uri")
		}
	default:
		return fmt.Errorf("a2a: unknown part type %q", p.Type)
	}
	return nil
}

func (p *Part) UnmarshalJSON(data []byte) error {
	type alias Part
	var raw struct {
		alias
		Kind PartType `json:"kind"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Part(raw.alias)
	if p.Type == "" {
		p.Type = raw.Kind
	}
	if p.Type == "" && p.File == nil {
		p.Type = PartTypeText
	}
	return nil
}

type Artifact struct {
	ArtifactID string `json:"artifactId,omitempty"`
	Name       string `json:"name,omitempty"`
	Parts      []Part `json:"parts"`
}

// FirstText returns the first text part. An empty text part still counts:
// an empty body is a valid result.
func FirstText(parts []Part) (string, bool) {
	for _, p := range parts {
		if p.Type == PartTypeText {
			return p.Text, true
		}
	}
	return "", false
}

// Clone returns a deep copy safe to hand out of the store.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.Status.Message != nil {
		m := cloneMessage(*t.Status.Message)
		c.Status.Message = &m
	}
	if t.Artifacts != nil {
		c.Artifacts = make([]Artifact, len(t.Artifacts))
		for i, a := range t.Artifacts {
			a.Parts = append([]Part(nil), a.Parts...)
			c.Artifacts[i] = a
		}
	}
	if t.History != nil {
		c.History = make([]Message, len(t.History))
		for i, m := range t.History {
			c.History[i] = cloneMessage(m)
		}
	}
	return &c
}

func cloneMessage(m Message) Message {
	m.Parts = append([]Part(nil), m.Parts...)
	if m.Metadata != nil {
		md := make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			md[k] = v
		}
		m.Metadata = md
	}
	return m
}
