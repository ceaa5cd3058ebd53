package tools

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/MEKXH/taskgate/internal/dispatch"
	"github.com/MEKXH/taskgate/internal/voice"
)

type fakeTranscriber struct {
	text  string
	err   error
	input voice.Input
	calls int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, input voice.Input) (string, error) {
	f.calls++
	f.input = input
	return f.text, f.err
}

func TestTranscribeAudio_WritesTranscript(t *testing.T) {
	fake := &fakeTranscriber{text: "hello world"}
	d, root := newTestDispatcher(t, NewTranscribeAudio(fake))
	writeFile(t, root, "clip.mp3", []byte("fake-audio"))

	res, err := call(d, TranscribeAudio, map[string]any{"audio_path": "clip.mp3", "output_path": "clip.txt", "language": "de"})
	if err != nil {
		t.Fatalf("transcribe-audio error: %v", err)
	}
	if res.Payload.(*TranscriptResult).Text != "hello world" {
		t.Fatalf("unexpected payload %+v", res.Payload)
	}
	if got := readFileString(t, filepath.Join(root, "clip.txt")); got != "hello world" {
		t.Fatalf("unexpected transcript %q", got)
	}
	if fake.input.MIMEType != "audio/mpeg" || fake.input.Language != "de" || string(fake.input.Data) != "fake-audio" {
		t.Fatalf("unexpected transcriber input %+v", fake.input)
	}
}

func TestTranscribeAudio_Failures(t *testing.T) {
	t.Run("no backend", func(t *testing.T) {
		d, root := newTestDispatcher(t, NewTranscribeAudio(nil))
		writeFile(t, root, "clip.wav", []byte("x"))
		_, err := call(d, TranscribeAudio, map[string]any{"audio_path": "clip.wav", "output_path": "clip.txt"})
		expectKind(t, err, dispatch.KindActionError)
		assertMissing(t, filepath.Join(root, "clip.txt"))
	})
	t.Run("backend error", func(t *testing.T) {
		fake := &fakeTranscriber{err: errors.New("quota exceeded")}
		d, root := newTestDispatcher(t, NewTranscribeAudio(fake))
		writeFile(t, root, "clip.wav", []byte("x"))
		_, err := call(d, TranscribeAudio, map[string]any{"audio_path": "clip.wav", "output_path": "clip.txt"})
		de := expectKind(t, err, dispatch.KindActionError)
		if !errors.Is(de, fake.err) {
			t.Fatalf("expected backend error in chain, got %v", de)
		}
		assertMissing(t, filepath.Join(root, "clip.txt"))
	})
	t.Run("missing audio", func(t *testing.T) {
		fake := &fakeTranscriber{text: "x"}
		d, _ := newTestDispatcher(t, NewTranscribeAudio(fake))
		_, err := call(d, TranscribeAudio, map[string]any{"audio_path": "none.wav", "output_path": "clip.txt"})
		expectKind(t, err, dispatch.KindActionError)
		if fake.calls != 0 {
			t.Fatal("transcriber must not be called without audio")
		}
	})
}
