package minarai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

type enrichResult int

const (
	enrichNotImage enrichResult = iota
	enrichMalformed
	enrichFetchFailed
	enrichApplied
)

func (r enrichResult) String() string {
	switch r {
	case enrichNotImage:
		return "not_image"
	case enrichMalformed:
		return "malformed"
	case enrichFetchFailed:
		return "fetch_failed"
	case enrichApplied:
		return "applied"
	default:
		return "unknown"
	}
}

func (c *Client) handleFrame(ev Event, args []json.RawMessage) {
	payload, err := decodeFramePayload(args)
	if err != nil {
		c.log.Error("inbound frame dropped", "event", ev, "err", err)
		return
	}
	if ev == EventSync || ev == EventMessage {
		res := c.enrich(context.Background(), ev, payload)
		c.log.Debug("image enrichment", "event", ev, "result", res)
	}
	if c.IsClosed() {
		c.log.Debug("dispatch skipped after close", "event", ev)
		return
	}
	c.dispatch(ev, payload)
}

// decodeFramePayload returns the first frame argument as an object. A frame
// without arguments yields an empty object. Numbers stay json.Number so large
// integers reach listeners intact.
func decodeFramePayload(args []json.RawMessage) (map[string]any, error) {
	if len(args) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(args[0]))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: first argument is not an object", ErrMalformedPayload)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: first argument is null", ErrMalformedPayload)
	}
	return payload, nil
}

// imageTarget locates the message object that carries an image reference:
// body.message for sync, body.messages[0] for message.
func imageTarget(ev Event, payload map[string]any) (map[string]any, enrichResult) {
	body, ok := payload["body"].(map[string]any)
	if !ok {
		return nil, enrichMalformed
	}
	typ, ok := body["type"].(string)
	if !ok {
		return nil, enrichMalformed
	}
	if typ != "image" {
		return nil, enrichNotImage
	}
	switch ev {
	case EventSync:
		msg, ok := body["message"].(map[string]any)
		if !ok {
			return nil, enrichMalformed
		}
		return msg, enrichApplied
	case EventMessage:
		msgs, ok := body["messages"].([]any)
		if !ok || len(msgs) == 0 {
			return nil, enrichMalformed
		}
		msg, ok := msgs[0].(map[string]any)
		if !ok {
			return nil, enrichMalformed
		}
		return msg, enrichApplied
	}
	return nil, enrichNotImage
}

func (c *Client) enrich(ctx context.Context, ev Event, payload map[string]any) enrichResult {
	msg, res := imageTarget(ev, payload)
	if res != enrichApplied {
		return res
	}
	imageURL, ok := msg["imageUrl"].(string)
	if !ok {
		return enrichMalformed
	}
	imageType, ok := msg["imageType"].(string)
	if !ok {
		return enrichMalformed
	}
	uri, err := c.ResolveImage(ctx, imageURL, imageType)
	if err != nil {
		c.log.Error("resolve image failed", "event", ev, "url", imageURL, "err", err)
		return enrichFetchFailed
	}
	msg["url"] = uri
	return enrichApplied
}

func (c *Client) dispatch(ev Event, payload map[string]any) {
	for _, l := range c.listeners.snapshot(ev) {
		c.invoke(l, ev, payload)
	}
}

func (c *Client) invoke(l listener, ev Event, payload map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("listener panicked", "event", ev, "listener", l.id, "panic", r)
		}
	}()
	l.fn(ev, payload)
}
