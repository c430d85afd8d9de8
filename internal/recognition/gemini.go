package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	geminiAPIURL       = "https://generativelanguage.googleapis.com"
	geminiDefaultModel = "gemini-1.5-flash"

	// NoTextSentinel is what the model is told to answer for a blank or illegible canvas
	NoTextSentinel = "NO_TEXT_FOUND"
)

// GeminiEngine sends the canvas to a Gemini-style generateContent endpoint
type GeminiEngine struct {
	apiKey     string
	model      string
	baseURL    string
	language   string
	httpClient *http.Client
}

// NewGeminiEngine creates a vision engine. Empty baseURL or model select the defaults.
func NewGeminiEngine(apiKey, baseURL, model, language string, httpClient *http.Client) *GeminiEngine {
	if baseURL == "" {
		baseURL = geminiAPIURL
	}
	if model == "" {
		model = geminiDefaultModel
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GeminiEngine{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   language,
		httpClient: httpClient,
	}
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

var blockedFinishReasons = map[string]bool{
	"SAFETY":             true,
	"PROHIBITED_CONTENT": true,
	"BLOCKLIST":          true,
	"SPII":               true,
}

func (e *GeminiEngine) Name() string {
	return "gemini/" + e.model
}

func (e *GeminiEngine) prompt() string {
	return fmt.Sprintf("Transcribe the handwritten text in this image exactly as written. "+
		"Expected language: %s. Reply with the transcribed text only, without commentary or formatting. "+
		"If the image contains no legible text, reply with exactly %s.", e.language, NoTextSentinel)
}

// Recognize sends one generateContent request and extracts the transcription
func (e *GeminiEngine) Recognize(ctx context.Context, img Image) (string, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: e.prompt()},
				{InlineData: &inlineData{MIMEType: img.MIMEType, Data: img.Data}},
			},
		}},
		// Bias towards a deterministic transcription
		GenerationConfig: generationConfig{
			Temperature:     0,
			TopK:            1,
			TopP:            1,
			MaxOutputTokens: 1024,
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", e.baseURL, e.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusFailure(resp.StatusCode, geminiErrorDetail(resp.Body))
	}

	var apiResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", &Failure{Reason: ReasonDecode, Detail: err.Error()}
	}

	if reason := apiResp.PromptFeedback.BlockReason; reason != "" {
		return "", &Failure{Reason: ReasonBlocked, Detail: reason}
	}
	if len(apiResp.Candidates) == 0 {
		return "", &Failure{Reason: ReasonEmpty}
	}

	candidate := apiResp.Candidates[0]
	if blockedFinishReasons[candidate.FinishReason] {
		return "", &Failure{Reason: ReasonBlocked, Detail: candidate.FinishReason}
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}

	result := strings.TrimSpace(text.String())
	if result == "" {
		return "", &Failure{Reason: ReasonEmpty}
	}
	if strings.Contains(strings.ToUpper(result), NoTextSentinel) {
		return "", &Failure{Reason: ReasonNoText}
	}
	return result, nil
}

func geminiErrorDetail(body io.Reader) string {
	detail := readDetail(body)

	var apiErr geminiError
	if err := json.Unmarshal([]byte(detail), &apiErr); err == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Status + ": " + apiErr.Error.Message
	}
	return detail
}
