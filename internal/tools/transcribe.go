package tools

import (
	"context"

	"github.com/MEKXH/taskgate/internal/dispatch"
	"github.com/MEKXH/taskgate/internal/policy"
	"github.com/MEKXH/taskgate/internal/voice"
	"github.com/cloudwego/eino/schema"
)

// TranscriptResult is the payload of transcribe-audio.
type TranscriptResult struct {
	Path string `json:"path"`
	Text string `json:"text"`
}

type transcribeImpl struct {
	transcriber Transcriber
}

// NewTranscribeAudio sends an audio file to the speech-to-text backend and
// saves the transcript. A nil transcriber makes every call an action error.
func NewTranscribeAudio(transcriber Transcriber) *dispatch.Spec {
	impl := &transcribeImpl{transcriber: transcriber}
	return &dispatch.Spec{
		Name: TranscribeAudio,
		Desc: "Transcribe an audio file to text and save the transcript",
		Params: map[string]*schema.ParameterInfo{
			"audio_path":  requiredString("Audio file (mp3, wav, ogg, m4a, flac, webm)"),
			"output_path": requiredString("Destination text file; must not exist"),
			"language":    {Type: schema.String, Desc: "Optional ISO-639-1 language hint, e.g. en"},
		},
		Paths: []dispatch.PathParam{
			{Param: "audio_path", Intent: policy.IntentRead},
			{Param: "output_path", Intent: policy.IntentWriteNew},
		},
		Perform: impl.perform,
	}
}

func (t *transcribeImpl) perform(ctx context.Context, call *dispatch.Call) (any, error) {
	if t.transcriber == nil {
		return nil, dispatch.Failf(nil, "no transcription backend configured (set actions.transcription.api_key)")
	}
	input, err := voice.ReadInput(call.Path("audio_path"))
	if err != nil {
		return nil, dispatch.Failf(err, "read audio")
	}
	input.Language = call.Params.String("language")
	text, err := t.transcriber.Transcribe(ctx, input)
	if err != nil {
		return nil, dispatch.Failf(err, "transcribe")
	}

	out := call.Path("output_path")
	if err := writeNew(out, []byte(text)); err != nil {
		return nil, err
	}
	return &TranscriptResult{Path: out, Text: text}, nil
}
