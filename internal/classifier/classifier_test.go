package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPromptHash(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	content := "Classify this site: {{INPUT_JSON}}"
	sum := sha256.Sum256([]byte(content))
	expected := "sha256:" + hex.EncodeToString(sum[:])

	assert.Equal(t, expected, PromptHash(content))
	assert.Equal(t, PromptHash(content), PromptHash(content))
	assert.NotEqual(t, PromptHash(content), PromptHash(content+" "))
	assert.Len(t, PromptHash(""), len("sha256:")+64)
}

func TestDecodeOutput(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("classified variant", func(t *testing.T) {
		data := []byte(`{
			"domain": "gaming1.com",
			"result": "classified",
			"classification": {"is_matching_site": true, "confidence": 0.95},
			"metadata": {"http_status": 200, "model": "llama3.1", "prompt_hash": "sha256:abcd"}
		}`)

		output, err := DecodeOutput(data)
		require.NoError(t, err)
		assert.Equal(t, "gaming1.com", output.Domain)
		assert.Equal(t, ResultClassified, output.Result)
		assert.True(t, output.Classification.IsMatchingSite)
		assert.InDelta(t, 0.95, output.Classification.Confidence, 0.0001)
		assert.Equal(t, 200, output.Metadata.HTTPStatus)
		assert.Nil(t, output.Error)
	})

	t.Run("error variant", func(t *testing.T) {
		data := []byte(`{
			"domain": "gaming1.com",
			"result": "error",
			"error": {"error_type": "DomainFetchError", "message": "dns_resolution_failed"},
			"metadata": {"model": "llama3.1", "prompt_hash": "sha256:abcd"}
		}`)

		output, err := DecodeOutput(data)
		require.NoError(t, err)
		assert.Equal(t, ResultError, output.Result)
		assert.Equal(t, ErrorTypeDomainFetch, output.Error.ErrorType)
		assert.Equal(t, "dns_resolution_failed", output.Error.Message)
		assert.Nil(t, output.Classification)
	})

	t.Run("error variant without metadata", func(t *testing.T) {
		data := []byte(`{
			"domain": "gaming1.com",
			"result": "error",
			"error": {"error_type": "PromptFileReadError", "message": "no such file"}
		}`)

		output, err := DecodeOutput(data)
		require.NoError(t, err)
		assert.Nil(t, output.Metadata)
	})

	t.Run("empty stdout", func(t *testing.T) {
		_, err := DecodeOutput(nil)
		assert.ErrorIs(t, err, ErrEmptyOutput)
	})

	t.Run("unknown result tag", func(t *testing.T) {
		_, err := DecodeOutput([]byte(`{"domain":"x.com","result":"maybe"}`))
		assert.ErrorIs(t, err, ErrUnknownResult)
	})

	t.Run("classified without classification is rejected", func(t *testing.T) {
		_, err := DecodeOutput([]byte(`{"domain":"x.com","result":"classified"}`))
		assert.Error(t, err)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := DecodeOutput([]byte("exit status 1"))
		assert.Error(t, err)
	})
}

func TestOutputEncodeRoundTrip(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	output := NewClassifiedOutput("gaming1.com",
		Classification{IsMatchingSite: true, Confidence: 0.95},
		Metadata{HTTPStatus: 200, Model: "llama3.1", PromptHash: "sha256:abcd"})

	data, err := output.Encode()
	require.NoError(t, err)

	decoded, err := DecodeOutput(data)
	require.NoError(t, err)
	assert.Equal(t, output, decoded)
}

func TestExtractMetadata(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("full page", func(t *testing.T) {
		html := `<!DOCTYPE html>
		<html lang="en">
		<head>
			<title>  Big Casino  </title>
			<meta name="description" content="Play slots online">
			<meta property="og:title" content="Big Casino Online">
			<meta property="og:description" content="The best slots">
			<meta property="og:site_name" content="BigCasino">
		</head>
		<body></body>
		</html>`

		metadata, err := ExtractMetadata("casino.example.com", html, 200)
		require.NoError(t, err)

		assert.Equal(t, SiteMetadata{
			Domain:        "casino.example.com",
			Title:         "Big Casino",
			Description:   "Play slots online",
			OGTitle:       "Big Casino Online",
			OGDescription: "The best slots",
			OGSiteName:    "BigCasino",
			Language:      "en",
			HTTPStatus:    200,
		}, metadata)
	})

	t.Run("empty fields are omitted from JSON", func(t *testing.T) {
		metadata, err := ExtractMetadata("bare.example.com", "<html><body>hi</body></html>", 200)
		require.NoError(t, err)

		data, err := json.Marshal(metadata)
		require.NoError(t, err)
		assert.JSONEq(t, `{"domain":"bare.example.com","http_status":200}`, string(data))
	})

	t.Run("fetch error stub", func(t *testing.T) {
		metadata := MetadataFromFetchError("down.example.com", "connection refused")
		assert.Equal(t, "down.example.com", metadata.Domain)
		assert.Equal(t, "connection refused", metadata.FetchError)
		assert.Zero(t, metadata.HTTPStatus)
	})
}

func TestFetcher(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("fetches page and status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla/5.0")
			assert.Contains(t, r.Header.Get("Accept"), "text/html")
			_, _ = w.Write([]byte("<html><title>hi</title></html>"))
		}))
		defer server.Close()

		fetcher := NewFetcher(5*time.Second, 100)

		html, status, err := fetcher.Fetch(context.Background(), server.URL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, html, "<title>hi</title>")
	})

	t.Run("truncates body to size cap", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
		}))
		defer server.Close()

		fetcher := NewFetcher(5*time.Second, 1)

		html, _, err := fetcher.Fetch(context.Background(), server.URL)
		require.NoError(t, err)
		assert.Len(t, html, 1024)
	})

	t.Run("retries transient failures", func(t *testing.T) {
		var attempts int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			if attempts < 3 {
				hj, ok := w.(http.Hijacker)
				require.True(t, ok)
				conn, _, err := hj.Hijack()
				require.NoError(t, err)
				_ = conn.Close()

				return
			}
			_, _ = w.Write([]byte("recovered"))
		}))
		defer server.Close()

		fetcher := NewFetcher(5*time.Second, 100)

		html, status, err := fetcher.Fetch(context.Background(), server.URL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "recovered", html)
		assert.Equal(t, 3, attempts)
	})

	t.Run("unresolvable host yields fetch error", func(t *testing.T) {
		fetcher := NewFetcher(2*time.Second, 100)

		_, _, err := fetcher.Fetch(context.Background(), "definitely-not-resolvable.invalid")
		require.Error(t, err)

		var classifyErr *ClassifyError
		require.ErrorAs(t, err, &classifyErr)
		assert.Contains(t,
			[]ErrorType{ErrorTypeDomainFetch, ErrorTypeDomainFetchTimeout},
			classifyErr.Type)
	})
}

func TestOllamaClassify(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	metadata := SiteMetadata{Domain: "casino.example.com", Title: "Big Casino", HTTPStatus: 200}

	t.Run("happy path substitutes metadata into prompt", func(t *testing.T) {
		var gotRequest OllamaRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/generate", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))

			_ = json.NewEncoder(w).Encode(OllamaResponse{
				Response: `{"is_matching_site": true, "confidence": 0.93}`,
			})
		}))
		defer server.Close()

		client := NewOllamaClient(server.URL, "llama3.1")

		classification, err := client.Classify(context.Background(), metadata,
			"Classify: {{INPUT_JSON}}")
		require.NoError(t, err)
		assert.True(t, classification.IsMatchingSite)
		assert.InDelta(t, 0.93, classification.Confidence, 0.0001)

		assert.Equal(t, "llama3.1", gotRequest.Model)
		assert.Equal(t, "json", gotRequest.Format)
		assert.False(t, gotRequest.Stream)
		assert.Contains(t, gotRequest.Prompt, `"domain":"casino.example.com"`)
		assert.NotContains(t, gotRequest.Prompt, "{{INPUT_JSON}}")
	})

	t.Run("non-success status is OllamaApiError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewOllamaClient(server.URL, "llama3.1")

		_, err := client.Classify(context.Background(), metadata, "{{INPUT_JSON}}")
		var classifyErr *ClassifyError
		require.ErrorAs(t, err, &classifyErr)
		assert.Equal(t, ErrorTypeOllamaAPI, classifyErr.Type)
	})

	t.Run("connection refused is OllamaApiConnectionError", func(t *testing.T) {
		client := NewOllamaClient("http://127.0.0.1:1", "llama3.1")

		_, err := client.Classify(context.Background(), metadata, "{{INPUT_JSON}}")
		var classifyErr *ClassifyError
		require.ErrorAs(t, err, &classifyErr)
		assert.Equal(t, ErrorTypeOllamaAPIConnection, classifyErr.Type)
	})

	t.Run("invalid response body is OllamaResponseParseError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		defer server.Close()

		client := NewOllamaClient(server.URL, "llama3.1")

		_, err := client.Classify(context.Background(), metadata, "{{INPUT_JSON}}")
		var classifyErr *ClassifyError
		require.ErrorAs(t, err, &classifyErr)
		assert.Equal(t, ErrorTypeOllamaResponseParse, classifyErr.Type)
	})

	t.Run("unparseable verdict is ClassificationParseError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(OllamaResponse{Response: "I think it is a casino"})
		}))
		defer server.Close()

		client := NewOllamaClient(server.URL, "llama3.1")

		_, err := client.Classify(context.Background(), metadata, "{{INPUT_JSON}}")
		var classifyErr *ClassifyError
		require.ErrorAs(t, err, &classifyErr)
		assert.Equal(t, ErrorTypeClassificationParse, classifyErr.Type)
	})
}

func TestClassifierRun(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	writePrompt := func(t *testing.T) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "prompt.txt")
		require.NoError(t, os.WriteFile(path, []byte("Classify: {{INPUT_JSON}}"), 0o600))

		return path
	}

	t.Run("end to end success", func(t *testing.T) {
		site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html lang="en"><head><title>Big Casino</title></head></html>`))
		}))
		defer site.Close()

		ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(OllamaResponse{
				Response: `{"is_matching_site": true, "confidence": 0.95}`,
			})
		}))
		defer ollama.Close()

		promptPath := writePrompt(t)

		output := New(Config{
			Domain:             site.URL,
			OllamaURL:          ollama.URL,
			OllamaModel:        "llama3.1",
			PromptTemplatePath: promptPath,
			ClassificationType: "gaming",
			HTTPTimeout:        5 * time.Second,
			HTTPMaxKB:          100,
		}, testLogger()).Run(context.Background())

		assert.Equal(t, ResultClassified, output.Result)
		require.NotNil(t, output.Classification)
		assert.True(t, output.Classification.IsMatchingSite)
		require.NotNil(t, output.Metadata)
		assert.Equal(t, http.StatusOK, output.Metadata.HTTPStatus)
		assert.Equal(t, "llama3.1", output.Metadata.Model)

		content, err := os.ReadFile(promptPath)
		require.NoError(t, err)
		assert.Equal(t, PromptHash(string(content)), output.Metadata.PromptHash)
	})

	t.Run("missing prompt file", func(t *testing.T) {
		output := New(Config{
			Domain:             "example.com",
			OllamaURL:          "http://127.0.0.1:1",
			OllamaModel:        "llama3.1",
			PromptTemplatePath: "/nonexistent/prompt.txt",
			HTTPTimeout:        time.Second,
			HTTPMaxKB:          100,
		}, testLogger()).Run(context.Background())

		assert.Equal(t, ResultError, output.Result)
		require.NotNil(t, output.Error)
		assert.Equal(t, ErrorTypePromptFileRead, output.Error.ErrorType)
		assert.Nil(t, output.Metadata)
	})

	t.Run("fetch failure still reaches the LLM", func(t *testing.T) {
		var gotRequest OllamaRequest
		ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))
			_ = json.NewEncoder(w).Encode(OllamaResponse{
				Response: `{"is_matching_site": false, "confidence": 0.4}`,
			})
		}))
		defer ollama.Close()

		output := New(Config{
			Domain:             "definitely-not-resolvable.invalid",
			OllamaURL:          ollama.URL,
			OllamaModel:        "llama3.1",
			PromptTemplatePath: writePrompt(t),
			HTTPTimeout:        2 * time.Second,
			HTTPMaxKB:          100,
		}, testLogger()).Run(context.Background())

		assert.Equal(t, ResultClassified, output.Result)
		assert.Contains(t, gotRequest.Prompt, "fetch_error")
		assert.Zero(t, output.Metadata.HTTPStatus)
	})

	t.Run("LLM failure yields error output with partial metadata", func(t *testing.T) {
		site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html></html>"))
		}))
		defer site.Close()

		output := New(Config{
			Domain:             site.URL,
			OllamaURL:          "http://127.0.0.1:1",
			OllamaModel:        "llama3.1",
			PromptTemplatePath: writePrompt(t),
			HTTPTimeout:        2 * time.Second,
			HTTPMaxKB:          100,
		}, testLogger()).Run(context.Background())

		assert.Equal(t, ResultError, output.Result)
		assert.Equal(t, ErrorTypeOllamaAPIConnection, output.Error.ErrorType)
		require.NotNil(t, output.Metadata)
		assert.Equal(t, "llama3.1", output.Metadata.Model)
		assert.Zero(t, output.Metadata.HTTPStatus)
	})
}
