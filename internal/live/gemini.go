package live

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/ent0n29/healthpilot/internal/toolcall"
)

const (
	DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultVoice = "Zephyr"
)

// GeminiDialer opens sessions on the Gemini Live API.
type GeminiDialer struct {
	client *genai.Client
}

func NewGeminiDialer(ctx context.Context, apiKey string) (*GeminiDialer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(apiKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiDialer{client: client}, nil
}

func (d *GeminiDialer) Dial(ctx context.Context, cfg ConnectConfig) (Conn, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	sess, err := d.client.Live.Connect(ctx, model, connectConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("connect live: %w", err)
	}
	return &geminiConn{sess: sess}, nil
}

func connectConfig(cfg ConnectConfig) *genai.LiveConnectConfig {
	voice := cfg.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(cfg.Tools))
	for _, d := range cfg.Tools {
		params := toGenaiSchema(d.Parameters)
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  params,
		})
	}
	out := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if cfg.Instruction != "" {
		out.SystemInstruction = genai.NewContentFromText(cfg.Instruction, genai.RoleUser)
	}
	if len(decls) > 0 {
		out.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return out
}

func toGenaiSchema(s toolcall.Schema) *genai.Schema {
	out := &genai.Schema{
		Type:        genaiType(s.Type),
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = toGenaiSchema(p)
		}
	}
	return out
}

func genaiType(t string) genai.Type {
	switch strings.ToLower(t) {
	case "object":
		return genai.TypeObject
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeString
	}
}

// geminiConn serializes writes because the underlying websocket allows
// one writer at a time.
type geminiConn struct {
	sess      *genai.Session
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (c *geminiConn) SendRealtime(b Blob) error {
	in := genai.LiveRealtimeInput{}
	blob := &genai.Blob{Data: b.Data, MIMEType: b.MIMEType}
	if strings.HasPrefix(b.MIMEType, "image/") || strings.HasPrefix(b.MIMEType, "video/") {
		in.Video = blob
	} else {
		in.Audio = blob
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sess.SendRealtimeInput(in)
}

func (c *geminiConn) SendToolResponse(ack toolcall.Ack) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sess.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: []*genai.FunctionResponse{{ID: ack.ID, Name: ack.Name, Response: ack.Response}},
	})
}

func (c *geminiConn) Receive() (ServerMessage, error) {
	msg, err := c.sess.Receive()
	if err != nil {
		return ServerMessage{}, err
	}
	return convertServerMessage(msg), nil
}

func (c *geminiConn) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.sess.Close() })
	return c.closeErr
}

func convertServerMessage(msg *genai.LiveServerMessage) ServerMessage {
	var out ServerMessage
	if msg == nil {
		return out
	}
	if sc := msg.ServerContent; sc != nil {
		if sc.InputTranscription != nil {
			out.InputTranscript = sc.InputTranscription.Text
		}
		if sc.OutputTranscription != nil {
			out.OutputTranscript = sc.OutputTranscription.Text
		}
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p != nil && p.InlineData != nil && len(p.InlineData.Data) > 0 {
					out.Audio = append(out.Audio, p.InlineData.Data)
				}
			}
		}
		out.Interrupted = sc.Interrupted
		out.TurnComplete = sc.TurnComplete
	}
	if tc := msg.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			if fc == nil {
				continue
			}
			out.ToolCalls = append(out.ToolCalls, toolcall.Call{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}
	return out
}
