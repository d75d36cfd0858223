// Package main provides the website classifier CLI.
//
// The classifier fetches one domain, extracts page metadata, asks an Ollama
// model for a verdict, and prints a single JSON document on stdout. All logs
// go to stderr so stdout stays machine-readable for the queue processor.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/dns-smart-block/dns-smart-block/internal/classifier"
	"github.com/dns-smart-block/dns-smart-block/internal/config"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "dns-smart-block-classifier"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.1:8b-instruct-q4_K_M"
	defaultTemplate    = "prompt-template.txt"
	defaultType        = "gaming"
	defaultTimeoutSec  = 5
	defaultMaxKB       = 200
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	domain := flag.String("domain", config.GetEnvStr("DOMAIN", ""), "domain to classify")
	ollamaURL := flag.String("ollama-url", config.GetEnvStr("OLLAMA_URL", defaultOllamaURL), "Ollama API URL")
	ollamaModel := flag.String("ollama-model", config.GetEnvStr("OLLAMA_MODEL", defaultOllamaModel), "Ollama model to use")
	promptTemplate := flag.String("prompt-template", config.GetEnvStr("PROMPT_TEMPLATE", defaultTemplate),
		"path to prompt template file")
	classificationType := flag.String("classification-type", config.GetEnvStr("CLASSIFICATION_TYPE", defaultType),
		"classification type (e.g. gaming)")
	httpTimeoutSec := flag.Int("http-timeout-sec", config.GetEnvInt("HTTP_TIMEOUT_SEC", defaultTimeoutSec),
		"HTTP timeout in seconds")
	httpMaxKB := flag.Int("http-max-kb", config.GetEnvInt("HTTP_MAX_KB", defaultMaxKB),
		"maximum HTTP response size in KB")
	output := flag.String("output", config.GetEnvStr("OUTPUT", "human"), "output format (json or human)")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	// Logs go to stderr; stdout carries only the result document.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	if *domain == "" {
		logger.Error("Missing required flag: --domain")
		os.Exit(2)
	}

	logger.Info("Starting classifier",
		slog.String("domain", *domain),
		slog.String("ollama_url", *ollamaURL),
		slog.String("ollama_model", *ollamaModel),
		slog.String("output", *output),
	)

	c := classifier.New(classifier.Config{
		Domain:             *domain,
		OllamaURL:          *ollamaURL,
		OllamaModel:        *ollamaModel,
		PromptTemplatePath: *promptTemplate,
		ClassificationType: *classificationType,
		HTTPTimeout:        time.Duration(*httpTimeoutSec) * time.Second,
		HTTPMaxKB:          *httpMaxKB,
	}, logger)

	result := c.Run(context.Background())

	if *output == "json" {
		data, err := result.Encode()
		if err != nil {
			logger.Error("Failed to serialize output", slog.String("error", err.Error()))
			fmt.Println(`{"error": "Failed to serialize output"}`)
			os.Exit(1)
		}

		fmt.Println(string(data))

		return
	}

	printHuman(result)
}

// printHuman renders the result for a terminal. Error verdicts go to stderr
// with a non-zero exit so shell pipelines can branch on them.
func printHuman(result *classifier.Output) {
	if result.Result == classifier.ResultError {
		fmt.Fprintln(os.Stderr, "Classification Error:")
		fmt.Fprintf(os.Stderr, "  Domain: %s\n", result.Domain)
		fmt.Fprintf(os.Stderr, "  Error Type: %s\n", result.Error.ErrorType)
		fmt.Fprintf(os.Stderr, "  Message: %s\n", result.Error.Message)
		os.Exit(1)
	}

	fmt.Println("Classification Result:")
	fmt.Printf("  Domain: %s\n", result.Domain)
	fmt.Printf("  Is Matching Site: %t\n", result.Classification.IsMatchingSite)
	fmt.Printf("  Confidence: %.2f\n", result.Classification.Confidence)
	fmt.Printf("  HTTP Status: %d\n", result.Metadata.HTTPStatus)
	fmt.Printf("  Model: %s\n", result.Metadata.Model)
	fmt.Printf("  Prompt Hash: %s\n", result.Metadata.PromptHash)
}
