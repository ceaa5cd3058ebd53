package voice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{APIKey: "key-1", BaseURL: srv.URL + "/v1/"})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	return c
}

func TestClient_Transcribe(t *testing.T) {
	var form map[string]string
	var gotPath, gotAuth, gotFile, gotMIME string

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(4 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		form = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			form[k] = v[0]
		}
		f, fh, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer f.Close()
		gotFile = fh.Filename
		gotMIME = fh.Header.Get("Content-Type")
		if raw, _ := io.ReadAll(f); string(raw) != "audio-bytes" {
			t.Errorf("unexpected audio payload %q", raw)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"text": "  hello from audio\n"})
	})

	text, err := c.Transcribe(context.Background(), Input{
		FileName: "voice note.ogg",
		MIMEType: "audio/ogg",
		Language: "en",
		Data:     []byte("audio-bytes"),
	})
	if err != nil {
		t.Fatalf("Transcribe error: %v", err)
	}
	if text != "hello from audio" {
		t.Fatalf("expected trimmed text, got %q", text)
	}
	if gotPath != "/v1/audio/transcriptions" {
		t.Errorf("unexpected endpoint %q", gotPath)
	}
	if gotAuth != "Bearer key-1" {
		t.Errorf("unexpected auth %q", gotAuth)
	}
	if gotFile != "voice note.ogg" || gotMIME != "audio/ogg" {
		t.Errorf("unexpected file part %q (%s)", gotFile, gotMIME)
	}
	if form["model"] != "whisper-1" || form["response_format"] != "json" || form["language"] != "en" {
		t.Errorf("unexpected form fields %v", form)
	}
}

func TestClient_OmitsEmptyLanguage(t *testing.T) {
	var hasLanguage bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseMultipartForm(1 << 20)
		_, hasLanguage = r.MultipartForm.Value["language"]
		_, _ = w.Write([]byte(`{"text":"ok"}`))
	})
	if _, err := c.Transcribe(context.Background(), Input{Data: []byte("x")}); err != nil {
		t.Fatalf("Transcribe error: %v", err)
	}
	if hasLanguage {
		t.Fatal("language field should be omitted when empty")
	}
}

func TestClient_APIError(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"openai shape", `{"error":{"message":"Incorrect API key"}}`, "Incorrect API key"},
		{"string error", `{"error":"invalid token"}`, "invalid token"},
		{"plain text", "gateway down", "gateway down"},
		{"empty", "", "empty body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Transcribe(context.Background(), Input{Data: []byte("x")})
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %v", err)
			}
			if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Message != tt.want {
				t.Fatalf("unexpected error %+v", apiErr)
			}
		})
	}
}

func TestClient_EmptyTranscript(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":"   "}`))
	})
	if _, err := c.Transcribe(context.Background(), Input{Data: []byte("x")}); err == nil {
		t.Fatal("expected error for empty transcript")
	}
}

func TestClient_RejectsBadInput(t *testing.T) {
	c, err := NewClient(Config{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	if c.Model() != defaultModel {
		t.Fatalf("expected default model, got %q", c.Model())
	}
	if _, err := c.Transcribe(context.Background(), Input{}); err == nil {
		t.Fatal("expected error for empty audio")
	}
	_, err = c.Transcribe(context.Background(), Input{Data: make([]byte, maxInputBytes+1)})
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("expected too-large error, got %v", err)
	}
}

func TestNewClient_RequiresKey(t *testing.T) {
	if _, err := NewClient(Config{APIKey: "  "}); err == nil {
		t.Fatal("expected error without api key")
	}
}
