package recognition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const (
	ocrSpaceAPIURL = "https://api.ocr.space/parse/image"

	// OCR.space engine ids, 2 handles handwriting better and 1 is the fallback
	ocrPrimaryEngine  = "2"
	ocrFallbackEngine = "1"
)

// OCRSpaceEngine posts the canvas as a base64 form field to an OCR.space-style endpoint
type OCRSpaceEngine struct {
	apiKey     string
	endpoint   string
	language   string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewOCRSpaceEngine(apiKey, endpoint, language string, httpClient *http.Client, logger *slog.Logger) *OCRSpaceEngine {
	if endpoint == "" {
		endpoint = ocrSpaceAPIURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OCRSpaceEngine{
		apiKey:     apiKey,
		endpoint:   endpoint,
		language:   language,
		httpClient: httpClient,
		logger:     logger,
	}
}

type ocrSpaceResponse struct {
	ParsedResults []struct {
		ParsedText        string `json:"ParsedText"`
		FileParseExitCode int    `json:"FileParseExitCode"`
		ErrorMessage      string `json:"ErrorMessage"`
	} `json:"ParsedResults"`
	OCRExitCode           int             `json:"OCRExitCode"`
	IsErroredOnProcessing bool            `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage `json:"ErrorMessage"`
}

func (e *OCRSpaceEngine) Name() string {
	return "ocrspace"
}

// Recognize tries the primary engine and retries once on the fallback engine
// when the primary engine itself failed. Problems with the image are not retried.
func (e *OCRSpaceEngine) Recognize(ctx context.Context, img Image) (string, error) {
	text, err := e.recognizeWith(ctx, img, ocrPrimaryEngine)

	var failure *Failure
	if errors.As(err, &failure) && failure.Reason == ReasonEngine && engineFault(failure.Detail) {
		e.logger.Warn("ocr engine failed, retrying with fallback engine",
			"engine", ocrPrimaryEngine, "fallback", ocrFallbackEngine, "error", err)
		return e.recognizeWith(ctx, img, ocrFallbackEngine)
	}
	return text, err
}

func (e *OCRSpaceEngine) recognizeWith(ctx context.Context, img Image, engine string) (string, error) {
	form := url.Values{}
	form.Set("base64Image", img.DataURI())
	form.Set("language", e.language)
	form.Set("OCREngine", engine)
	form.Set("scale", "true")
	form.Set("isOverlayRequired", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("apikey", e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusFailure(resp.StatusCode, readDetail(resp.Body))
	}

	var apiResp ocrSpaceResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", &Failure{Reason: ReasonDecode, Detail: err.Error()}
	}

	if apiResp.IsErroredOnProcessing {
		detail := errorMessages(apiResp.ErrorMessage)
		if mentionsKey(detail) {
			return "", statusFailure(http.StatusForbidden, detail)
		}
		return "", &Failure{Reason: ReasonEngine, Detail: detail}
	}

	if len(apiResp.ParsedResults) == 0 {
		return "", &Failure{Reason: ReasonEmpty}
	}

	var text strings.Builder
	for _, result := range apiResp.ParsedResults {
		text.WriteString(result.ParsedText)
	}

	parsed := strings.TrimSpace(text.String())
	if parsed == "" {
		return "", &Failure{Reason: ReasonNoText}
	}
	return parsed, nil
}

// engineFault: processing errors raised by the OCR engine rather than by the input
func engineFault(detail string) bool {
	detail = strings.ToLower(detail)
	for _, marker := range []string{"timed out", "timeout", "engine", "e101", "e500"} {
		if strings.Contains(detail, marker) {
			return true
		}
	}
	return false
}

// errorMessages flattens ErrorMessage, which the API sends as a string or a list
func errorMessages(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "unknown error"
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return single
	}
	return string(raw)
}
