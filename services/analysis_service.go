package services

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/camden-git/gallerysync/credentials"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const tagInstruction = "Analyze this image and return 3-5 descriptive tags as a JSON array of strings."

//go:embed credential_markers.yaml
var credentialMarkersYAML []byte

type credentialMarkers struct {
	StatusCodes []int    `yaml:"status_codes"`
	Substrings  []string `yaml:"substrings"`
}

var markers = mustParseMarkers(credentialMarkersYAML)

func mustParseMarkers(data []byte) credentialMarkers {
	var m credentialMarkers
	if err := yaml.Unmarshal(data, &m); err != nil {
		panic(fmt.Sprintf("credential_markers.yaml: %v", err))
	}
	for i, s := range m.Substrings {
		m.Substrings[i] = strings.ToLower(s)
	}
	return m
}

// IsCredentialFailure reports whether err means the analysis credential is missing or was
// rejected, as opposed to any other failure.
func IsCredentialFailure(err error) bool {
	if err == nil {
		return false
	}
	if IsCredentialError(err) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		for _, code := range markers.StatusCodes {
			if se.Code == code {
				return true
			}
		}
	}
	msg := strings.ToLower(err.Error())
	for _, s := range markers.Substrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Analysis is a successful tagging result plus the image bytes it was computed from.
type Analysis struct {
	Tags  []string
	Image []byte
}

// Analyzer produces tags for an image URL.
type Analyzer interface {
	Analyze(ctx context.Context, sourceURL string) (*Analysis, error)
}

type AnalysisOptions struct {
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Chain      credentials.Chain
	Logger     zerolog.Logger
}

// AnalysisService tags images with a Gemini generateContent call.
type AnalysisService struct {
	client  *http.Client
	chain   credentials.Chain
	model   string
	baseURL string
	logger  zerolog.Logger
}

func NewAnalysisService(opts AnalysisOptions) *AnalysisService {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &AnalysisService{
		client:  client,
		chain:   opts.Chain,
		model:   model,
		baseURL: baseURL,
		logger:  opts.Logger.With().Str("component", "analysis").Logger(),
	}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string        `json:"text,omitempty"`
	InlineData *geminiInline `json:"inlineData,omitempty"`
}

type geminiInline struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Analyze resolves a credential before touching the network; without one it fails with a
// CredentialError and makes no request at all.
func (s *AnalysisService) Analyze(ctx context.Context, sourceURL string) (*Analysis, error) {
	key, provider, ok := s.chain.Resolve()
	if !ok {
		return nil, &CredentialError{}
	}

	image, err := fetchBytes(ctx, s.client, sourceURL, maxAssetBytes)
	if err != nil {
		return nil, &AnalysisError{Err: fmt.Errorf("fetch image: %w", err)}
	}

	text, err := s.generate(ctx, key, image)
	if err != nil {
		if IsCredentialFailure(err) {
			s.logger.Warn().Err(err).Str("provider", provider).Msg("analysis credential rejected")
			return nil, &CredentialError{Err: err}
		}
		return nil, &AnalysisError{Err: err}
	}

	tags, err := ParseTags(text)
	if err != nil {
		return nil, &AnalysisError{Err: err}
	}
	return &Analysis{Tags: tags, Image: image}, nil
}

func (s *AnalysisService) generate(ctx context.Context, key string, image []byte) (string, error) {
	payload := geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{InlineData: &geminiInline{
					MimeType: http.DetectContentType(image),
					Data:     base64.StdEncoding.EncodeToString(image),
				}},
				{Text: tagInstruction},
			},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", s.baseURL, url.PathEscape(s.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", key)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var apiErr geminiErrorResponse
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			detail := apiErr.Error.Message
			if apiErr.Error.Status != "" {
				detail = apiErr.Error.Status + ": " + detail
			}
			return "", &StatusError{Code: resp.StatusCode, Body: detail}
		}
		return "", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(out.Candidates) == 0 {
		return "", errors.New("gemini returned no candidates")
	}
	var sb strings.Builder
	for _, part := range out.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

// ParseTags reads a JSON array of strings out of model text, tolerating a surrounding
// markdown code fence. An empty list is an error.
func ParseTags(text string) ([]string, error) {
	text = stripFence(text)
	var raw []string
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("parse tags: %w", err)
	}
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	if len(tags) == 0 {
		return nil, errors.New("model returned no tags")
	}
	return tags, nil
}

func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	// language hint, e.g. ```json
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[i+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
