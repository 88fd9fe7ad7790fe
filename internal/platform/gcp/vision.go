package gcp

import (
	"context"
	"fmt"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/civiclens/civiclens-backend/internal/platform/ctxutil"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

// Vision screens extracted images for municipal logos and seals so the
// pipeline can discard boilerplate letterhead art.
type Vision interface {
	DetectLogos(ctx context.Context, img []byte) ([]LogoAnnotation, error)
	Close() error
}

type LogoAnnotation struct {
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

type visionService struct {
	log          *logger.Logger
	visionClient *vision.ImageAnnotatorClient
	maxResults   int32
}

func NewVision(log *logger.Logger) (Vision, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "gcp.Vision")

	ctx := context.Background()
	vClient, err := vision.NewImageAnnotatorClient(ctx, ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}

	return &visionService{
		log:          slog,
		visionClient: vClient,
		maxResults:   10,
	}, nil
}

func (s *visionService) Close() error {
	if s == nil || s.visionClient == nil {
		return nil
	}
	return s.visionClient.Close()
}

func (s *visionService) DetectLogos(ctx context.Context, img []byte) ([]LogoAnnotation, error) {
	if len(img) == 0 {
		return nil, nil
	}

	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	req := &visionpb.AnnotateImageRequest{
		Image: &visionpb.Image{Content: img},
		Features: []*visionpb.Feature{
			{Type: visionpb.Feature_LOGO_DETECTION, MaxResults: s.maxResults},
		},
	}

	br := &visionpb.BatchAnnotateImagesRequest{Requests: []*visionpb.AnnotateImageRequest{req}}
	resp, err := s.visionClient.BatchAnnotateImages(ctx, br)
	if err != nil {
		return nil, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return nil, nil
	}

	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return nil, fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}

	out := make([]LogoAnnotation, 0, len(r0.LogoAnnotations))
	for _, la := range r0.LogoAnnotations {
		if la == nil {
			continue
		}
		out = append(out, LogoAnnotation{
			Description: la.Description,
			Score:       float64(la.Score),
		})
	}
	return out, nil
}
