package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"go-lora-manager/internal/models"
	"go-lora-manager/internal/progress"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// EventSocketPath is the host's event socket; the backend pushes trigger word updates on it.
const EventSocketPath = "/ws"

const triggerWordEvent = "trigger_word_update"

// TriggerWordUpdate carries the trigger words for one toggle node.
type TriggerWordUpdate struct {
	ID      int    `json:"id"`
	Message string `json:"message"`
}

type hostEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// WidgetClient serves the node-graph widgets.
type WidgetClient struct {
	client *Client
	// Dialer opens the event socket. nil uses websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

func (c *Client) Widgets() *WidgetClient {
	return &WidgetClient{client: c}
}

// GetTriggerWords asks the backend to push the trigger words of loraNames to each node
// in nodeIDs. The words arrive on the event socket.
func (w *WidgetClient) GetTriggerWords(ctx context.Context, loraNames []string, nodeIDs []int) error {
	req := struct {
		LoraNames []string `json:"lora_names"`
		NodeIDs   []int    `json:"node_ids"`
	}{loraNames, nodeIDs}
	if req.LoraNames == nil {
		req.LoraNames = []string{}
	}
	return w.client.postJSON(ctx, TriggerWordsPath, req, nil)
}

// RequestTriggerWords opens the event socket, requests trigger words for nodeIDs and
// waits until every node has received its update. It returns the message per node.
func (w *WidgetClient) RequestTriggerWords(ctx context.Context, loraNames []string, nodeIDs []int) (map[int]string, error) {
	updates := make(map[int]string, len(nodeIDs))
	if len(nodeIDs) == 0 {
		return updates, nil
	}
	conn, err := progress.Dial(ctx, w.Dialer, w.client.WSBase+EventSocketPath, nil)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := w.GetTriggerWords(ctx, loraNames, nodeIDs); err != nil {
		return nil, fmt.Errorf("requesting trigger words: %w", err)
	}

	pending := make(map[int]bool, len(nodeIDs))
	for _, id := range nodeIDs {
		pending[id] = true
	}
	for len(pending) > 0 {
		var ev hostEvent
		if err := conn.ReadJSON(ctx, &ev); err != nil {
			return updates, err
		}
		if ev.Type != triggerWordEvent {
			continue
		}
		var u TriggerWordUpdate
		if err := json.Unmarshal(ev.Data, &u); err != nil {
			log.WithError(err).Warn("Ignoring malformed trigger word update")
			continue
		}
		if !pending[u.ID] {
			continue
		}
		updates[u.ID] = u.Message
		delete(pending, u.ID)
	}
	return updates, nil
}

func nameQuery(name string) url.Values {
	return url.Values{"name": {name}}
}

// GetCivitaiURL returns the Civitai page of the named lora.
func (w *WidgetClient) GetCivitaiURL(ctx context.Context, name string) (string, error) {
	var resp struct {
		models.StatusResponse
		CivitaiURL string `json:"civitai_url"`
	}
	if err := w.client.getJSON(ctx, LoraCivitaiURLPath, nameQuery(name), &resp); err != nil {
		return "", fmt.Errorf("fetching Civitai URL for %s: %w", name, err)
	}
	if !resp.Success || resp.CivitaiURL == "" {
		return "", fmt.Errorf("%w: no Civitai URL for %s", ErrNotFound, name)
	}
	return resp.CivitaiURL, nil
}

// GetNotes returns the notes saved for the named lora.
func (w *WidgetClient) GetNotes(ctx context.Context, name string) (string, error) {
	var resp struct {
		models.StatusResponse
		Notes string `json:"notes"`
	}
	if err := w.client.getJSON(ctx, LoraNotesPath, nameQuery(name), &resp); err != nil {
		return "", fmt.Errorf("fetching notes for %s: %w", name, err)
	}
	if !resp.Success {
		return "", fmt.Errorf("%w: %s", ErrRequestFailed, resp.Error)
	}
	return resp.Notes, nil
}

// GetLoraTriggerWords returns the trigger words of the named lora.
func (w *WidgetClient) GetLoraTriggerWords(ctx context.Context, name string) ([]string, error) {
	var resp struct {
		models.StatusResponse
		TriggerWords []string `json:"trigger_words"`
	}
	if err := w.client.getJSON(ctx, LoraTriggerWordsPath, nameQuery(name), &resp); err != nil {
		return nil, fmt.Errorf("fetching trigger words for %s: %w", name, err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: %s", ErrRequestFailed, resp.Error)
	}
	return resp.TriggerWords, nil
}

// SaveRecipeFromWidget saves the most recent generation as a recipe.
func (w *WidgetClient) SaveRecipeFromWidget(ctx context.Context) error {
	var resp models.StatusResponse
	if err := w.client.postJSON(ctx, SaveRecipePath, struct{}{}, &resp); err != nil {
		return fmt.Errorf("saving recipe: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", ErrRequestFailed, resp.Error)
	}
	return nil
}
