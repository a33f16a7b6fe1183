package widget

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Node types contributed by the lora manager.
const (
	LoraLoaderType        = "Lora Loader (LoraManager)"
	LoraStackerType       = "Lora Stacker (LoraManager)"
	TriggerWordToggleType = "TriggerWord Toggle (LoraManager)"
)

var (
	ErrNodeNotFound = errors.New("node not found")
	ErrBadLink      = errors.New("malformed link")
)

// Output is one output slot of a node.
type Output struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Links []int  `json:"links"`
}

// Node is a node of a saved workflow. WidgetsValues holds the raw widget state.
type Node struct {
	ID            int               `json:"id"`
	Type          string            `json:"type"`
	Outputs       []Output          `json:"outputs"`
	WidgetsValues []json.RawMessage `json:"widgets_values"`
}

// Link connects an output slot to an input slot. It is stored as
// [id, origin_id, origin_slot, target_id, target_slot, type].
type Link struct {
	ID         int
	OriginID   int
	OriginSlot int
	TargetID   int
	TargetSlot int
	Type       string
}

func (l *Link) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrBadLink, err)
	}
	if len(fields) < 5 {
		return fmt.Errorf("%w: want at least 5 fields, got %d", ErrBadLink, len(fields))
	}
	ints := []*int{&l.ID, &l.OriginID, &l.OriginSlot, &l.TargetID, &l.TargetSlot}
	for i, dst := range ints {
		if err := json.Unmarshal(fields[i], dst); err != nil {
			return fmt.Errorf("%w: field %d: %v", ErrBadLink, i, err)
		}
	}
	if len(fields) > 5 {
		// The type is usually a string but may be a list for wildcard slots.
		_ = json.Unmarshal(fields[5], &l.Type)
	}
	return nil
}

// Workflow is a parsed node graph with the tag state of its trigger word toggles.
type Workflow struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`

	nodes map[int]*Node
	links map[int]Link
	tags  map[int][]Tag
}

// ParseWorkflow decodes a saved workflow.
func ParseWorkflow(data []byte) (*Workflow, error) {
	var wf Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parsing workflow: %w", err)
	}
	wf.nodes = make(map[int]*Node, len(wf.Nodes))
	for i := range wf.Nodes {
		wf.nodes[wf.Nodes[i].ID] = &wf.Nodes[i]
	}
	wf.links = make(map[int]Link, len(wf.Links))
	for _, l := range wf.Links {
		wf.links[l.ID] = l
	}
	wf.tags = make(map[int][]Tag)
	for _, n := range wf.Nodes {
		if n.Type == TriggerWordToggleType {
			wf.tags[n.ID] = decodeWidgetValue[[]Tag](n.WidgetsValues, func(tags []Tag) bool {
				return len(tags) > 0 && tags[0].Text != ""
			})
		}
	}
	return &wf, nil
}

func (wf *Workflow) Node(id int) (*Node, error) {
	n, ok := wf.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	return n, nil
}

// ConnectedTriggerToggles returns the trigger word toggle nodes fed directly by an
// output of node id.
func (wf *Workflow) ConnectedTriggerToggles(id int) ([]int, error) {
	n, err := wf.Node(id)
	if err != nil {
		return nil, err
	}
	var ids []int
	seen := make(map[int]bool)
	for _, out := range n.Outputs {
		for _, linkID := range out.Links {
			link, ok := wf.links[linkID]
			if !ok {
				continue
			}
			target, ok := wf.nodes[link.TargetID]
			if !ok || target.Type != TriggerWordToggleType || seen[target.ID] {
				continue
			}
			seen[target.ID] = true
			ids = append(ids, target.ID)
		}
	}
	return ids, nil
}

// LoraNodes returns the ids of loader and stacker nodes in workflow order.
func (wf *Workflow) LoraNodes() []int {
	var ids []int
	for _, n := range wf.Nodes {
		if n.Type == LoraLoaderType || n.Type == LoraStackerType {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// Loras returns the prompt text and the lora list stored in a loader or stacker node.
// The list is re-merged with the text so both agree.
func (wf *Workflow) Loras(id int) (string, []Lora, error) {
	n, err := wf.Node(id)
	if err != nil {
		return "", nil, err
	}
	var text string
	for _, raw := range n.WidgetsValues {
		if err := json.Unmarshal(raw, &text); err == nil && strings.Contains(text, "<lora:") {
			break
		}
		text = ""
	}
	entries := decodeWidgetValue[[]Lora](n.WidgetsValues, func(l []Lora) bool {
		return len(l) > 0 && l[0].Name != ""
	})
	return text, MergeLoras(text, entries), nil
}

// Tags returns the tag state of a trigger word toggle node.
func (wf *Workflow) Tags(id int) []Tag {
	return append([]Tag(nil), wf.tags[id]...)
}

func (wf *Workflow) SetTags(id int, tags []Tag) {
	wf.tags[id] = append([]Tag(nil), tags...)
}

// decodeWidgetValue returns the first widget value that decodes into T and passes ok.
func decodeWidgetValue[T any](values []json.RawMessage, ok func(T) bool) T {
	var zero T
	for _, raw := range values {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil && ok(v) {
			return v
		}
	}
	return zero
}
