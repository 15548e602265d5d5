package rtvi

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent_UserTranscript(t *testing.T) {
	raw := []byte(`{"label":"rtvi-ai","type":"user-transcription","data":{"text":"hello","final":true,"timestamp":"2024-11-02T10:00:00Z","user_id":"u-1"}}`)

	ev, err := DecodeEvent(raw)
	require.NoError(t, err)

	tr, ok := ev.(UserTranscriptEvent)
	require.True(t, ok, "expected UserTranscriptEvent, got %T", ev)
	assert.Equal(t, EventUserTranscript, tr.Kind())
	assert.Equal(t, "hello", tr.Transcript.Text)
	assert.True(t, tr.Transcript.Final)
	assert.Equal(t, "u-1", tr.Transcript.UserID)
}

func TestDecodeEvent_BotTextKinds(t *testing.T) {
	tests := []struct {
		msgType string
		kind    EventKind
	}{
		{MsgBotTranscription, EventBotTranscript},
		{MsgBotLLMText, EventBotLLMText},
		{MsgBotTTSText, EventBotTTSText},
	}
	for _, tt := range tests {
		t.Run(tt.msgType, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, map[string]string{"text": "Hi"})
			require.NoError(t, err)
			raw, err := msg.Encode()
			require.NoError(t, err)

			ev, err := DecodeEvent(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, ev.Kind())
			assert.Equal(t, "Hi", ev.(BotTextEvent).Data.Text)
		})
	}
}

func TestDecodeEvent_SpeechActivity(t *testing.T) {
	tests := map[string]EventKind{
		MsgUserStartedSpeaking: EventUserStartedSpeaking,
		MsgUserStoppedSpeaking: EventUserStoppedSpeaking,
		MsgBotStartedSpeaking:  EventBotStartedSpeaking,
		MsgBotStoppedSpeaking:  EventBotStoppedSpeaking,
	}
	for msgType, kind := range tests {
		ev, err := DecodeEvent([]byte(`{"label":"rtvi-ai","type":"` + msgType + `"}`))
		require.NoError(t, err, msgType)
		assert.Equal(t, kind, ev.Kind(), msgType)
	}
}

func TestDecodeEvent_Metrics(t *testing.T) {
	raw := []byte(`{"label":"rtvi-ai","type":"metrics","data":{"ttfb":[{"processor":"llm#0","value":0.25},{"processor":"tts#0","value":0.1}]}}`)

	ev, err := DecodeEvent(raw)
	require.NoError(t, err)

	m := ev.(MetricsEvent)
	require.Len(t, m.Data.TTFB, 2)
	assert.Equal(t, "llm#0", m.Data.TTFB[0].Processor)
	assert.InDelta(t, 0.1, m.Data.TTFB[1].Value, 1e-9)
}

func TestDecodeEvent_Errors(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"label":"rtvi-ai","type":"error","data":{"message":"boom","fatal":true}}`))
	require.NoError(t, err)
	assert.Equal(t, EventError, ev.Kind())
	assert.Equal(t, "boom", ev.(ErrorEvent).Data.Message)
	assert.True(t, ev.(ErrorEvent).Data.Fatal)

	ev, err = DecodeEvent([]byte(`{"label":"rtvi-ai","type":"error-response","id":"abc","data":{"error":"bad action"}}`))
	require.NoError(t, err)
	assert.Equal(t, EventMessageError, ev.Kind())
	assert.Equal(t, "abc", ev.(ErrorEvent).Message.ID)
}

func TestDecodeEvent_BotReady(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"label":"rtvi-ai","type":"bot-ready","data":{"version":"0.3.0","about":{"name":"gemini"}}}`))
	require.NoError(t, err)

	ready := ev.(BotReadyEvent)
	assert.Equal(t, "0.3.0", ready.Version)
	assert.Equal(t, "gemini", ready.About["name"])
}

func TestDecode_RejectsForeignLabel(t *testing.T) {
	_, err := Decode([]byte(`{"label":"daily","type":"bot-ready"}`))
	assert.True(t, errors.Is(err, ErrInvalidLabel))
}

func TestDecode_RejectsGarbage(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestMessageEvent_UnknownType(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"label":"rtvi-ai","type":"server-message"}`))
	assert.True(t, errors.Is(err, ErrUnknownMessageType))
}

func TestMessageEvent_MalformedPayload(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"label":"rtvi-ai","type":"user-transcription","data":{"final":"yes"}}`))
	assert.Error(t, err)
}

func TestClientReadyMessage(t *testing.T) {
	msg, err := ClientReadyMessage()
	require.NoError(t, err)
	assert.Equal(t, Label, msg.Label)
	assert.Equal(t, MsgClientReady, msg.Type)
	assert.NotEmpty(t, msg.ID)

	var data struct {
		Version string `json:"version"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, ProtocolVersion, data.Version)
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "userTranscript", EventUserTranscript.String())
	assert.Equal(t, "UNKNOWN(99)", EventKind(99).String())
}
