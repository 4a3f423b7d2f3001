package toolcall

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ent0n29/healthpilot/internal/bus"
	"github.com/ent0n29/healthpilot/internal/views"
)

type recorder struct {
	mu     sync.Mutex
	events []bus.Event
}

func (r *recorder) Publish(evt bus.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func TestCheckSymptomsNavigatesThenAnalyzes(t *testing.T) {
	rec := &recorder{}
	r := NewRouter(rec, nil)

	ack := r.Handle(Call{ID: "c1", Name: NameCheckSymptoms, Args: map[string]any{"symptoms": "headache and fever"}})

	assert.Equal(t, Ack{ID: "c1", Name: NameCheckSymptoms, Response: map[string]any{"result": ResultUIUpdated}}, ack)
	assert.Equal(t, []bus.Event{
		bus.Navigate{View: views.AIAssistant},
		bus.BeginSymptomAnalysis{Text: "headache and fever"},
	}, rec.events)
}

func TestRouterPublishesPerTool(t *testing.T) {
	two := 2
	cases := []struct {
		name string
		call Call
		want bus.Event
	}{
		{"navigate", Call{Name: NameNavigate, Args: map[string]any{"view": " Price-Comparison "}}, bus.Navigate{View: views.PriceComparison}},
		{"select by index", Call{Name: NameSelectOption, Args: map[string]any{"index": float64(2)}}, bus.Select{Index: &two}},
		{"select by name", Call{Name: NameSelectOption, Args: map[string]any{"name": "Apollo"}}, bus.Select{Name: "Apollo"}},
		{"action", Call{Name: NamePerformAction, Args: map[string]any{"action": "GO_BACK"}}, bus.PerformAction{Action: bus.ActionGoBack}},
		{"update field", Call{Name: NameUpdateField, Args: map[string]any{"field": "location", "value": "Nagpur"}}, bus.FieldUpdate{Field: "location", Value: "Nagpur"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recorder{}
			ack := NewRouter(rec, nil).Handle(tc.call)
			assert.Equal(t, ResultUIUpdated, ack.Response["result"])
			require.Len(t, rec.events, 1)
			assert.Equal(t, tc.want, rec.events[0])
		})
	}
}

func TestInvalidCallsAckNeutrallyAndPublishNothing(t *testing.T) {
	cases := []Call{
		{ID: "a", Name: NamePerformAction, Args: map[string]any{"action": "UNKNOWN_ACTION"}},
		{ID: "b", Name: NameNavigate, Args: map[string]any{"view": "settings"}},
		{ID: "c", Name: NameNavigate},
		{ID: "d", Name: NameSelectOption, Args: map[string]any{}},
		{ID: "e", Name: NameSelectOption, Args: map[string]any{"index": 1.5}},
		{ID: "f", Name: NameUpdateField, Args: map[string]any{"field": "x", "value": 3}},
		{ID: "g", Name: "delete_everything"},
	}
	for _, call := range cases {
		rec := &recorder{}
		ack := NewRouter(rec, nil).Handle(call)
		assert.Equal(t, call.ID, ack.ID)
		assert.Equal(t, ResultIgnored, ack.Response["result"], "call %s", call.ID)
		assert.Empty(t, rec.events, "call %s", call.ID)
	}
}

func TestParseErrorKinds(t *testing.T) {
	_, err := Parse(Call{Name: "nope"})
	assert.True(t, errors.Is(err, ErrUnknownTool))
	_, err = Parse(Call{Name: NameCheckSymptoms, Args: map[string]any{"symptoms": "  "}})
	assert.True(t, errors.Is(err, ErrInvalidArgs))
}

func TestOneAckPerCallInOrderProperty(t *testing.T) {
	names := []string{NameNavigate, NameCheckSymptoms, NameSelectOption, NamePerformAction, NameUpdateField, "bogus"}
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 20).Draw(t, "calls")
		calls := make([]Call, n)
		for i := range calls {
			calls[i] = Call{
				ID:   rapid.StringMatching(`[a-z0-9]{1,8}`).Draw(t, "id"),
				Name: rapid.SampledFrom(names).Draw(t, "name"),
				Args: map[string]any{
					"view":     rapid.SampledFrom([]string{"cart", "vitals", "nowhere"}).Draw(t, "view"),
					"symptoms": rapid.SampledFrom([]string{"", "cough"}).Draw(t, "symptoms"),
					"action":   rapid.SampledFrom([]string{"GO_BACK", "FLY"}).Draw(t, "action"),
				},
			}
		}
		acks := NewRouter(&recorder{}, nil).HandleAll(calls)
		if len(acks) != len(calls) {
			t.Fatalf("acks = %d, calls = %d", len(acks), len(calls))
		}
		for i := range calls {
			if acks[i].ID != calls[i].ID || acks[i].Name != calls[i].Name {
				t.Fatalf("ack %d = %+v, call = %+v", i, acks[i], calls[i])
			}
		}
	})
}

func TestDeclarationsCoverEveryTool(t *testing.T) {
	got := map[string]bool{}
	for _, d := range Declarations() {
		got[d.Name] = true
	}
	for _, n := range []string{NameNavigate, NameCheckSymptoms, NameSelectOption, NamePerformAction, NameUpdateField} {
		assert.True(t, got[n], n)
	}
}

func TestDefaultInstructionMentionsLanguageAndViews(t *testing.T) {
	ins := DefaultInstruction("Hindi")
	assert.Contains(t, ins, "Language: Hindi.")
	assert.Contains(t, ins, "'medication-reminders'")
	assert.True(t, strings.Contains(DefaultInstruction(""), "Language: English."))
}
