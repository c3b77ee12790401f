package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"examprep/internal/config"
	"examprep/internal/models"
	"examprep/internal/observability"
	contextutils "examprep/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// TextToSpeech turns a script into a playable audio URL
type TextToSpeech interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// ImageGenerator turns a scene description into an image URL
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ttsURLBuilder points at the audio proxy, which synthesizes on request
type ttsURLBuilder struct {
	basePath string
}

// NewTTSURLBuilder returns a TextToSpeech producing proxy URLs under basePath
func NewTTSURLBuilder(basePath string) TextToSpeech {
	return &ttsURLBuilder{basePath: basePath}
}

func (b *ttsURLBuilder) Synthesize(_ context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", contextutils.NewErrorf(contextutils.ErrInvalidInput, "empty text")
	}
	return b.basePath + "?text=" + url.QueryEscape(text), nil
}

// ImagePromptPrefix frames a TOEIC Part 1 description for the image model
const ImagePromptPrefix = "TOEIC test photograph, realistic business workplace scene: "

// imageURLBuilder targets a prompt-in-path image service
type imageURLBuilder struct {
	baseURL       string
	width, height int
}

// NewImageURLBuilder returns an ImageGenerator for services addressed as baseURL+<prompt>
func NewImageURLBuilder(baseURL string, width, height int) ImageGenerator {
	return &imageURLBuilder{baseURL: baseURL, width: width, height: height}
}

func (b *imageURLBuilder) Generate(_ context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", contextutils.NewErrorf(contextutils.ErrInvalidInput, "empty image prompt")
	}
	return fmt.Sprintf("%s%s?width=%d&height=%d&nologo=true", b.baseURL, url.QueryEscape(prompt), b.width, b.height), nil
}

// MediaEnricher attaches audio and image URLs to freshly parsed questions
type MediaEnricher struct {
	tts            TextToSpeech
	images         ImageGenerator
	maxConcurrency int
	timeout        time.Duration
	logger         *observability.Logger
}

// NewMediaEnricher builds an enricher from the media config
func NewMediaEnricher(tts TextToSpeech, images ImageGenerator, cfg config.MediaConfig, logger *observability.Logger) *MediaEnricher {
	concurrency := cfg.MaxConcurrency
	if concurrency <= 0 {
		concurrency = config.DefaultMediaConcurrency
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.MediaRequestTimeout
	}
	return &MediaEnricher{tts: tts, images: images, maxConcurrency: concurrency, timeout: timeout, logger: logger}
}

type mediaJob struct {
	index int
	image bool
	input string
}

// plan decides which questions need audio or an image
func (e *MediaEnricher) plan(test *models.Test) []mediaJob {
	var jobs []mediaJob
	for i := range test.Questions {
		q := &test.Questions[i]
		switch test.ExamKind {
		case models.ExamIELTS:
			if test.SkillOrSection != models.SkillListening {
				continue
			}
			text := q.Passage
			if strings.TrimSpace(text) == "" {
				text = q.Text
			}
			jobs = append(jobs, mediaJob{index: i, input: text})
		case models.ExamTOEIC:
			if !IsTOEICListening(test.SkillOrSection) || strings.TrimSpace(q.Passage) == "" {
				continue
			}
			jobs = append(jobs, mediaJob{index: i, input: q.Passage})
			if strings.Contains(strings.ToLower(q.Part), "part 1") || q.Type == models.Photograph {
				jobs = append(jobs, mediaJob{index: i, image: true, input: ImagePromptPrefix + q.Passage})
			}
		}
	}
	return jobs
}

// Enrich fills AudioURL and ImageURL in place. Failures leave the field empty
// and never fail the call; results land on the question they were computed for.
func (e *MediaEnricher) Enrich(ctx context.Context, test *models.Test) {
	ctx, span := observability.TraceMediaFunction(ctx, "enrich",
		observability.AttributeExam(string(test.ExamKind)),
		observability.AttributeSkill(test.SkillOrSection),
	)
	defer span.End()

	jobs := e.plan(test)
	span.SetAttributes(attribute.Int("media.jobs", len(jobs)))
	if len(jobs) == 0 {
		return
	}

	results := make([]string, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrency)
	for j, job := range jobs {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, e.timeout)
			defer cancel()

			var (
				u   string
				err error
			)
			if job.image {
				u, err = e.images.Generate(callCtx, job.input)
			} else {
				u, err = e.tts.Synthesize(callCtx, job.input)
			}
			if err != nil {
				e.logger.Warn(ctx, "Media generation failed, leaving URL empty", map[string]interface{}{
					"question_index": job.index,
					"image":          job.image,
					"error":          err.Error(),
				})
				return nil
			}
			results[j] = u
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for j, job := range jobs {
		if results[j] == "" {
			failed++
			continue
		}
		if job.image {
			test.Questions[job.index].ImageURL = results[j]
		} else {
			test.Questions[job.index].AudioURL = results[j]
		}
	}
	span.SetAttributes(attribute.Int("media.failed", failed))
}
