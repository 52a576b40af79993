package minarai

import (
	"encoding/json"
	"strings"
	"testing"
)

type recorded struct {
	ev      Event
	payload map[string]any
}

func record(c *Client, ev Event) *[]recorded {
	var got []recorded
	c.On(ev, func(ev Event, payload map[string]any) {
		got = append(got, recorded{ev: ev, payload: payload})
	})
	return &got
}

func TestDispatchEmptyArgsYieldsEmptyObject(t *testing.T) {
	ft := newFakeTransport()
	c := newTestClient(t, ft, Options{})
	got := record(c, EventDisconnected)
	if err := c.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	ft.fire("disconnected")
	if len(*got) != 1 {
		t.Fatalf("dispatches=%d", len(*got))
	}
	if (*got)[0].ev != EventDisconnected || len((*got)[0].payload) != 0 {
		t.Fatalf("unexpected dispatch %#v", (*got)[0])
	}
}

func TestDispatchDropsNonObjectPayload(t *testing.T) {
	c, ft := joinedClient(t, Options{})
	got := record(c, EventSystemMessage)
	ft.fire("system-message", "plain string")
	ft.fire("system-message", json.RawMessage("null"))
	ft.fire("system-message", []any{1, 2})
	if len(*got) != 0 {
		t.Fatalf("non-object frames must be dropped, got %d dispatches", len(*got))
	}
	ft.fire("system-message", map[string]any{"body": map[string]any{}})
	if len(*got) != 1 {
		t.Fatalf("object frame not dispatched")
	}
}

func TestDispatchOrderDuplicatesAndOff(t *testing.T) {
	c, ft := joinedClient(t, Options{})
	var order []string
	fn := func(Event, map[string]any) { order = append(order, "dup") }
	first := c.On(EventOperatorCommand, fn)
	c.On(EventOperatorCommand, func(Event, map[string]any) { order = append(order, "mid") })
	c.On(EventOperatorCommand, fn)

	ft.fire("operator-command", map[string]any{})
	if strings.Join(order, ",") != "dup,mid,dup" {
		t.Fatalf("order=%v", order)
	}

	if !c.Off(EventOperatorCommand, first) {
		t.Fatal("off should remove the first registration")
	}
	if c.Off(EventOperatorCommand, first) {
		t.Fatal("second off of the same id should report false")
	}
	order = nil
	ft.fire("operator-command", map[string]any{})
	if strings.Join(order, ",") != "mid,dup" {
		t.Fatalf("order after off=%v", order)
	}
}

func TestListenerPanicDoesNotStopDispatch(t *testing.T) {
	c, ft := joinedClient(t, Options{})
	c.On(EventSyncCommand, func(Event, map[string]any) { panic("boom") })
	got := record(c, EventSyncCommand)
	ft.fire("sync-command", map[string]any{"id": "x"})
	if len(*got) != 1 {
		t.Fatal("listener after a panicking one was not invoked")
	}
}

func TestDispatchSkippedAfterClose(t *testing.T) {
	c, ft := joinedClient(t, Options{})
	got := record(c, EventLogs)
	_ = c.Close()
	ft.fire("logs", map[string]any{})
	if len(*got) != 0 {
		t.Fatal("dispatch after close should be discarded")
	}
}

func TestEveryEventIsDispatched(t *testing.T) {
	c, ft := joinedClient(t, Options{})
	seen := map[Event]int{}
	for _, ev := range Events() {
		c.On(ev, func(ev Event, _ map[string]any) { seen[ev]++ })
	}
	for _, ev := range Events() {
		if ev == EventJoined {
			ft.fire(ev.String(), testIdentity())
			continue
		}
		ft.fire(ev.String(), map[string]any{})
	}
	for _, ev := range Events() {
		if seen[ev] != 1 {
			t.Fatalf("%s dispatched %d times", ev, seen[ev])
		}
	}
}

func TestImageTarget(t *testing.T) {
	cases := []struct {
		name    string
		ev      Event
		payload string
		want    enrichResult
	}{
		{"sync image", EventSync, `{"body":{"type":"image","message":{"imageUrl":"u","imageType":"image/png"}}}`, enrichApplied},
		{"message image", EventMessage, `{"body":{"type":"image","messages":[{"imageUrl":"u"}]}}`, enrichApplied},
		{"text", EventSync, `{"body":{"type":"text","message":"hi"}}`, enrichNotImage},
		{"no body", EventSync, `{}`, enrichMalformed},
		{"type not string", EventSync, `{"body":{"type":1}}`, enrichMalformed},
		{"sync message not object", EventSync, `{"body":{"type":"image","message":"u"}}`, enrichMalformed},
		{"messages empty", EventMessage, `{"body":{"type":"image","messages":[]}}`, enrichMalformed},
		{"messages first not object", EventMessage, `{"body":{"type":"image","messages":["u"]}}`, enrichMalformed},
		{"other event", EventLogs, `{"body":{"type":"image"}}`, enrichNotImage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var payload map[string]any
			if err := json.Unmarshal([]byte(tc.payload), &payload); err != nil {
				t.Fatalf("decode: %v", err)
			}
			_, got := imageTarget(tc.ev, payload)
			if got != tc.want {
				t.Fatalf("result=%s, want %s", got, tc.want)
			}
		})
	}
}

func TestDispatchKeepsLargeIntegers(t *testing.T) {
	c, ft := joinedClient(t, Options{})
	got := record(c, EventSyncCommand)
	ft.fire("sync-command", json.RawMessage(`{"seq":9007199254740993,"ratio":0.5}`))
	if len(*got) != 1 {
		t.Fatalf("dispatches=%d", len(*got))
	}
	payload := (*got)[0].payload
	seq, ok := payload["seq"].(json.Number)
	if !ok || seq.String() != "9007199254740993" {
		t.Fatalf("seq=%#v", payload["seq"])
	}
	if ratio, _ := payload["ratio"].(json.Number); ratio.String() != "0.5" {
		t.Fatalf("ratio=%#v", payload["ratio"])
	}
}

func TestDecodeFramePayloadRejectsNumber(t *testing.T) {
	if _, err := decodeFramePayload([]json.RawMessage{json.RawMessage(`42`)}); err == nil {
		t.Fatal("number payload should be rejected")
	}
}
