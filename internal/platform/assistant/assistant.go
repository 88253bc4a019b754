// Package assistant drafts client-facing text through an OpenAI-compatible
// chat completion API.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/diagnosis/pillatuvisa-backoffice/pkg/config"
)

var (
	ErrNotConfigured = errors.New("assistant not configured: missing OPENAI_API_KEY")
	ErrMissingStatus = errors.New("estado is required")
)

const (
	tipsSystem   = "Eres un asistente para preparar entrevistas de visa. Responde en español, claro y profesional. No menciones que eres IA. No uses emojis."
	resultSystem = "Eres un redactor profesional de mensajes para clientes. Responde en español. No menciones que eres IA. No uses emojis."
)

type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
}

// New returns a client, or nil when no API key is configured. A nil *Client
// is valid and answers every call with ErrNotConfigured.
func New(cfg config.OpenAIConfig) *Client {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	oc := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Client{api: openai.NewClientWithConfig(oc), model: model, timeout: timeout}
}

func (c *Client) Configured() bool { return c != nil }

// Tips drafts interview questions, advice and a document checklist.
func (c *Client) Tips(ctx context.Context, profile, appointment string) (string, error) {
	user := strings.Join([]string{
		"Genera un texto listo para copiar y enviar al cliente con: (1) 6-10 preguntas probables para la entrevista, (2) 6 consejos rápidos, (3) recordatorios de documentos.",
		"Perfil del cliente: " + orDefault(profile, "No especificado"),
		"Fecha de cita: " + orDefault(appointment, "No especificada"),
		"Formato: usa encabezados cortos y viñetas. Sé práctico.",
	}, "\n")
	return c.chat(ctx, tipsSystem, user, 0.5)
}

// Result drafts a short message announcing a visa decision.
func (c *Client) Result(ctx context.Context, status, detail string) (string, error) {
	status = strings.TrimSpace(status)
	if status == "" {
		return "", ErrMissingStatus
	}
	user := strings.Join([]string{
		"Redacta un mensaje corto (80-140 palabras) para el cliente sobre el resultado de su visa. Debe sonar humano y respetuoso.",
		"Estado: " + status,
		"Detalles: " + orDefault(detail, "No especificados"),
		"Si es denegada, incluye pasos siguientes concretos sin sonar alarmista. Si es aprobada, felicita y sugiere próximos pasos.",
	}, "\n")
	return c.chat(ctx, resultSystem, user, 0.6)
}

func (c *Client) chat(ctx context.Context, system, user string, temperature float32) (string, error) {
	if c == nil {
		return "", ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func orDefault(s, fallback string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return fallback
}
