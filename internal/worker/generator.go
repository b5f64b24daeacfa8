package worker

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iach526526/pastexam/internal/aiexam"
	"github.com/iach526526/pastexam/internal/infra"
	"github.com/iach526526/pastexam/internal/providers/genai"
	"github.com/iach526526/pastexam/internal/sqlinline"
	"github.com/iach526526/pastexam/internal/storage"
)

const defaultTemperature = 0.7

var disclaimerBanner = "⚠️ 注意:本內容由 AI 根據歷年考古題自動生成,僅供練習參考,不代表實際考試內容。\n" +
	"⚠️ Notice: This content is AI-generated from past exam archives for practice only. It does not represent any actual exam.\n" +
	strings.Repeat("=", 80) + "\n\n"

// ContentClient is the slice of the Gemini client the generator uses, bound
// to one user's API key.
type ContentClient interface {
	UploadFile(ctx context.Context, displayName, mimeType string, data []byte) (*genai.UploadedFile, error)
	GenerateContent(ctx context.Context, files []genai.UploadedFile, prompt string, temperature float64) (string, error)
	DeleteFile(ctx context.Context, name string) error
}

// ClientFactory builds a content client for a user-supplied API key.
type ClientFactory func(apiKey string) ContentClient

type sourceArchive struct {
	ID           int64
	Name         string
	ArchiveType  string
	AcademicYear int
	ObjectKey    string
	ContentType  string
	CourseName   string
	Professor    string
}

// Generator turns a set of archives into a practice exam using the owner's
// Gemini API key.
type Generator struct {
	sql       infra.SQLExecutor
	store     storage.ObjectStore
	newClient ClientFactory
	logger    zerolog.Logger
}

func NewGenerator(sql infra.SQLExecutor, store storage.ObjectStore, newClient ClientFactory, logger zerolog.Logger) *Generator {
	return &Generator{sql: sql, store: store, newClient: newClient, logger: logger}
}

// Generate runs one generation task end to end.
func (g *Generator) Generate(ctx context.Context, payload aiexam.TaskPayload) (*aiexam.Result, error) {
	var apiKey string
	if err := g.sql.QueryRow(ctx, sqlinline.QSelectUserGeminiKey, payload.UserID).Scan(&apiKey); err != nil {
		return nil, fmt.Errorf("load gemini api key: %w", err)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key is not configured")
	}

	archives, err := g.loadArchives(ctx, payload.ArchiveIDs)
	if err != nil {
		return nil, err
	}
	if len(archives) == 0 {
		return nil, fmt.Errorf("no archives found")
	}

	client := g.newClient(apiKey)

	uploaded := make([]genai.UploadedFile, 0, len(archives))
	defer func() {
		// Uploaded files are scratch space on the Gemini side. Removal is
		// best-effort.
		for _, f := range uploaded {
			if err := client.DeleteFile(context.WithoutCancel(ctx), f.Name); err != nil {
				g.logger.Warn().Err(err).Str("file", f.Name).Msg("delete uploaded file failed")
			}
		}
	}()

	for _, a := range archives {
		data, err := g.readArchive(ctx, a.ObjectKey)
		if err != nil {
			return nil, fmt.Errorf("read archive %d: %w", a.ID, err)
		}
		f, err := client.UploadFile(ctx, a.Name, a.ContentType, data)
		if err != nil {
			return nil, fmt.Errorf("upload archive %d: %w", a.ID, err)
		}
		uploaded = append(uploaded, *f)
	}

	prompt := strings.TrimSpace(payload.Prompt)
	if prompt == "" {
		prompt = buildDefaultPrompt(archives)
	}
	temperature := payload.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}

	content, err := client.GenerateContent(ctx, uploaded, prompt, temperature)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	used := make([]aiexam.ArchiveUsed, len(archives))
	for i, a := range archives {
		used[i] = aiexam.ArchiveUsed{
			ID:           a.ID,
			Name:         a.Name,
			CourseName:   a.CourseName,
			Professor:    a.Professor,
			AcademicYear: a.AcademicYear,
		}
	}

	return &aiexam.Result{
		Success:          true,
		GeneratedContent: disclaimerBanner + content,
		ArchivesUsed:     used,
	}, nil
}

func (g *Generator) loadArchives(ctx context.Context, ids []int64) ([]sourceArchive, error) {
	rows, err := g.sql.Query(ctx, sqlinline.QSelectArchivesByIDs, ids)
	if err != nil {
		return nil, fmt.Errorf("load archives: %w", err)
	}
	defer rows.Close()

	var archives []sourceArchive
	for rows.Next() {
		var a sourceArchive
		if err := rows.Scan(&a.ID, &a.Name, &a.ArchiveType, &a.AcademicYear, &a.ObjectKey, &a.ContentType, &a.CourseName, &a.Professor); err != nil {
			return nil, fmt.Errorf("scan archive: %w", err)
		}
		archives = append(archives, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archives: %w", err)
	}
	return archives, nil
}

func (g *Generator) readArchive(ctx context.Context, key string) ([]byte, error) {
	rc, err := g.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func buildDefaultPrompt(archives []sourceArchive) string {
	var b strings.Builder
	b.WriteString("你是一位經驗豐富的大學教授。請根據附上的歷年考古題,出一份完整的模擬試題。\n")
	b.WriteString("要求:題型與難度貼近原始考題,涵蓋各份考古題的重點範圍,並附上參考解答。\n\n")
	b.WriteString("參考的考古題:\n")
	for _, a := range archives {
		fmt.Fprintf(&b, "- %d 學年度 %s(%s)%s [%s]\n", a.AcademicYear, a.CourseName, a.Professor, a.Name, a.ArchiveType)
	}
	return b.String()
}
