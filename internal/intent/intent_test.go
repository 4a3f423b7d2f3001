package intent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/ent0n29/healthpilot/internal/reliability"
)

func TestDecodeJSONLenient(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"plain", `{"intent":"NAVIGATE","entities":{"view":"cart"},"autonomousAction":""}`},
		{"fenced", "```json\n{\"intent\":\"NAVIGATE\",\"entities\":{\"view\":\"cart\"}}\n```"},
		{"chatter", `Sure! Here you go: {"intent":"navigate","entities":{"view":"cart"}} hope that helps`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := decodeCommand(tc.in)
			require.NoError(t, err)
			assert.Equal(t, Navigate, cmd.Intent)
			assert.Equal(t, "cart", cmd.Entities.View)
		})
	}
}

func TestDecodeJSONFailures(t *testing.T) {
	for _, in := range []string{"", "no json here", "{broken"} {
		_, err := decodeCommand(in)
		assert.True(t, errors.Is(err, reliability.ErrParse), "input %q", in)
	}
	_, err := decodeAnalysis(`{"potentialConditions":[]}`)
	assert.True(t, errors.Is(err, reliability.ErrParse))
}

func TestParseIntentDefaultsToUnknown(t *testing.T) {
	assert.Equal(t, Confirm, ParseIntent(" confirm "))
	assert.Equal(t, Unknown, ParseIntent("DANCE"))
}

type fakeGenerator struct {
	reply  string
	err    error
	models []string
}

func (f *fakeGenerator) generate(_ context.Context, model, _, _ string, schema *genai.Schema) (string, error) {
	f.models = append(f.models, model)
	if schema == nil {
		return "", errors.New("schema missing")
	}
	return f.reply, f.err
}

func TestGeminiClientUsesModelsPerTask(t *testing.T) {
	gen := &fakeGenerator{reply: `{"intent":"CHECK_SYMPTOMS","entities":{"symptom":"sharp chest pain"},"autonomousAction":"Shall I find a cardiologist?"}`}
	c := newGeminiClient(gen, "", "")

	cmd, err := c.ParseCommand(context.Background(), "I have a sharp chest pain", "English")
	require.NoError(t, err)
	assert.Equal(t, CheckSymptoms, cmd.Intent)
	assert.Equal(t, "sharp chest pain", cmd.Entities.Symptom)
	assert.Equal(t, "Shall I find a cardiologist?", cmd.SuggestedResponse)

	gen.reply = `{"potentialConditions":[{"name":"Angina","description":"d","severity":"High"}],"recommendations":[],"importantNote":"n","suggestedSpecialty":"Cardiologist"}`
	a, err := c.AnalyzeSymptoms(context.Background(), "sharp chest pain", "English")
	require.NoError(t, err)
	assert.Equal(t, "Angina", a.TopCondition())
	assert.Equal(t, []string{DefaultCommandModel, DefaultAnalysisModel}, gen.models)
}

func TestGeminiClientWrapsBackendErrors(t *testing.T) {
	c := newGeminiClient(&fakeGenerator{err: errors.New("quota")}, "m1", "m2")
	_, err := c.ParseCommand(context.Background(), "hi", "English")
	assert.True(t, errors.Is(err, reliability.ErrParse))
}

func TestHTTPClient(t *testing.T) {
	var got httpRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"intent":"CONFIRM","entities":{},"autonomousAction":"ok"}`))
	}))
	defer srv.Close()

	cmd, err := NewHTTPClient(srv.URL, 0).ParseCommand(context.Background(), "yes", "Hindi")
	require.NoError(t, err)
	assert.Equal(t, Confirm, cmd.Intent)
	assert.Equal(t, httpRequest{Kind: "command", Text: "yes", Language: "Hindi"}, got)
}

func TestHTTPClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, 0).AnalyzeSymptoms(context.Background(), "fever", "English")
	require.Error(t, err)
	assert.True(t, errors.Is(err, reliability.ErrParse))
	var status *StatusError
	require.True(t, errors.As(err, &status))
	assert.Equal(t, http.StatusServiceUnavailable, status.Code)
	assert.True(t, retryableElsewhere(err))
}

type stubService struct {
	cmd   Command
	err   error
	calls int
}

func (s *stubService) ParseCommand(context.Context, string, string) (Command, error) {
	s.calls++
	return s.cmd, s.err
}

func (s *stubService) AnalyzeSymptoms(context.Context, string, string) (Analysis, error) {
	s.calls++
	return Analysis{}, s.err
}

func TestFallbackService(t *testing.T) {
	primary := &stubService{err: reliability.ErrParse}
	secondary := &stubService{cmd: Command{Intent: Navigate}}
	cmd, err := NewFallbackService(primary, secondary).ParseCommand(context.Background(), "x", "en")
	require.NoError(t, err)
	assert.Equal(t, Navigate, cmd.Intent)

	primary = &stubService{err: context.Canceled}
	secondary = &stubService{}
	_, err = NewFallbackService(primary, secondary).ParseCommand(context.Background(), "x", "en")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, secondary.calls)

	primary = &stubService{err: &StatusError{Code: http.StatusBadRequest}}
	_, err = NewFallbackService(primary, secondary).AnalyzeSymptoms(context.Background(), "x", "en")
	require.Error(t, err)
	assert.Zero(t, secondary.calls)
}

func TestMockClientIntents(t *testing.T) {
	m := NewMockClient()
	cases := []struct {
		in     string
		intent Intent
		check  func(t *testing.T, c Command)
	}{
		{"Go to dashboard", Navigate, func(t *testing.T, c Command) { assert.Equal(t, "dashboard", c.Entities.View) }},
		{"open the price comparison page", Navigate, func(t *testing.T, c Command) { assert.Equal(t, "price-comparison", c.Entities.View) }},
		{"I have a sharp chest pain", CheckSymptoms, func(t *testing.T, c Command) { assert.Equal(t, "sharp chest pain", c.Entities.Symptom) }},
		{"my knee hurts", CheckSymptoms, nil},
		{"Yes.", Confirm, nil},
		{"no thanks", Deny, nil},
		{"can you identify this pill", IdentifyMedicine, nil},
		{"add paracetamol to my cart", AddToCart, func(t *testing.T, c Command) { assert.Equal(t, "paracetamol", c.Entities.Medicine) }},
		{"find a blood bank", FindResource, func(t *testing.T, c Command) { assert.Equal(t, "blood bank", c.Entities.Resource) }},
		{"tell me a joke", Unknown, nil},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			c, err := m.ParseCommand(context.Background(), tc.in, "English")
			require.NoError(t, err)
			assert.Equal(t, tc.intent, c.Intent)
			if tc.check != nil {
				tc.check(t, c)
			}
		})
	}
}

func TestMockAnalysis(t *testing.T) {
	a, err := NewMockClient().AnalyzeSymptoms(context.Background(), "sharp chest pain", "English")
	require.NoError(t, err)
	assert.Equal(t, "Angina", a.TopCondition())
	assert.Equal(t, "Cardiologist", a.SuggestedSpecialty)

	_, err = NewMockClient().AnalyzeSymptoms(context.Background(), " ", "English")
	assert.True(t, errors.Is(err, reliability.ErrParse))
}

func TestNewSelectsBackend(t *testing.T) {
	svc, err := New(context.Background(), Config{})
	require.NoError(t, err)
	assert.IsType(t, &MockClient{}, svc)

	svc, err = New(context.Background(), Config{HTTPURL: "http://127.0.0.1:9/intent"})
	require.NoError(t, err)
	assert.IsType(t, &HTTPClient{}, svc)

	_, err = New(context.Background(), Config{Mode: "gemini"})
	assert.Error(t, err)
	_, err = New(context.Background(), Config{Mode: "telepathy"})
	assert.Error(t, err)
}
