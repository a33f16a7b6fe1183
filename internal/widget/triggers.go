package widget

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Tag is one trigger word shown by a toggle node.
type Tag struct {
	Text   string `json:"text"`
	Active bool   `json:"active"`
}

// UpdateTags replaces the tag list with the comma separated words in message. Words
// already present keep their active flag; new words start active.
func UpdateTags(existing []Tag, message string) []Tag {
	prior := make(map[string]bool, len(existing))
	for _, t := range existing {
		prior[t.Text] = t.Active
	}
	var out []Tag
	for _, word := range strings.Split(message, ",") {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		active, ok := prior[word]
		if !ok {
			active = true
		}
		out = append(out, Tag{Text: word, Active: active})
	}
	return out
}

// ActiveTagText joins the active tags the way a toggle node outputs them.
func ActiveTagText(tags []Tag) string {
	var words []string
	for _, t := range tags {
		if t.Active {
			words = append(words, t.Text)
		}
	}
	return strings.Join(words, ", ")
}

// TriggerWordSource resolves the trigger words of a lora set for each toggle node.
type TriggerWordSource interface {
	RequestTriggerWords(ctx context.Context, loraNames []string, nodeIDs []int) (map[int]string, error)
}

// Propagator pushes trigger words from a loader or stacker to its toggle nodes.
type Propagator struct {
	Source TriggerWordSource
}

// Propagate refreshes the toggle nodes connected to node id for the active entries and
// returns the ids it updated.
func (p *Propagator) Propagate(ctx context.Context, wf *Workflow, id int, entries []Lora) ([]int, error) {
	targets, err := wf.ConnectedTriggerToggles(id)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		log.Debugf("Node %d has no trigger word toggles", id)
		return nil, nil
	}
	messages, err := p.Source.RequestTriggerWords(ctx, ActiveNames(entries), targets)
	if err != nil {
		return nil, fmt.Errorf("propagating trigger words from node %d: %w", id, err)
	}
	var updated []int
	for _, target := range targets {
		msg, ok := messages[target]
		if !ok {
			continue
		}
		wf.SetTags(target, UpdateTags(wf.Tags(target), msg))
		updated = append(updated, target)
	}
	return updated, nil
}
