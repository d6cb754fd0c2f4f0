package ocr

import (
	"context"
	"fmt"
	"os"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

// ErrMissingCredentials is returned when neither GOOGLE_APPLICATION_CREDENTIALS
// nor GOOGLE_CREDENTIALS environment variables are configured.
var ErrMissingCredentials = fmt.Errorf("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")

// VisionEngine implements Engine using the Google Cloud Vision API. Each
// engine owns its own ImageAnnotatorClient, so a pool worker reuses one
// authenticated connection across pages.
type VisionEngine struct {
	client *vision.ImageAnnotatorClient
}

// NewVisionEngine creates a Vision engine with credentials from the environment.
// It expects either GOOGLE_APPLICATION_CREDENTIALS path or GOOGLE_CREDENTIALS JSON in env.
func NewVisionEngine(ctx context.Context) (*VisionEngine, error) {
	const op = "NewVisionEngine"

	var client *vision.ImageAnnotatorClient
	var err error

	// Check for inline credentials first
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, NewOCRError(op, ErrWorkerInit, "failed to create client with GOOGLE_CREDENTIALS: "+err.Error())
		}
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credFile))
		if err != nil {
			return nil, NewOCRError(op, ErrWorkerInit, "failed to create client with GOOGLE_APPLICATION_CREDENTIALS: "+err.Error())
		}
	} else {
		// Try default credentials as fallback
		client, err = vision.NewImageAnnotatorClient(ctx)
		if err != nil {
			return nil, NewOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
	}

	return &VisionEngine{client: client}, nil
}

// VisionFactory returns a pool Factory producing Vision engines.
func VisionFactory(ctx context.Context) Factory {
	return func() (Engine, error) {
		return NewVisionEngine(ctx)
	}
}

func (e *VisionEngine) Name() string { return "vision" }

// Recognize sends the page image to the Vision API for document text detection.
func (e *VisionEngine) Recognize(ctx context.Context, req Request) (Recognition, error) {
	const op = "Recognize"

	data, err := os.ReadFile(req.ImagePath)
	if err != nil {
		return Recognition{}, NewOCRError(op, err, "read image "+req.ImagePath)
	}

	annotateReq := &visionpb.AnnotateImageRequest{
		Image: &visionpb.Image{Content: data},
		Features: []*visionpb.Feature{
			{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
		},
	}
	if len(req.Languages) > 0 {
		annotateReq.ImageContext = &visionpb.ImageContext{LanguageHints: req.Languages}
	}

	resp, err := e.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{annotateReq},
	})
	if err != nil {
		return Recognition{}, NewOCRError(op, err, "vision API call failed")
	}
	if len(resp.Responses) == 0 {
		return Recognition{}, NewOCRError(op, ErrRecognitionFailed, "empty response from vision API")
	}

	annotation := resp.Responses[0]
	if annotation.Error != nil {
		return Recognition{}, NewOCRError(op, ErrRecognitionFailed, annotation.Error.Message)
	}
	fullText := annotation.GetFullTextAnnotation()
	if fullText == nil {
		// No text detected on the page; not an engine failure.
		return Recognition{}, nil
	}

	var confidence float64
	if pages := fullText.GetPages(); len(pages) > 0 {
		var sum float64
		for _, p := range pages {
			sum += float64(p.GetConfidence())
		}
		confidence = sum / float64(len(pages)) * 100
	}

	return Recognition{Text: fullText.GetText(), Confidence: confidence}, nil
}

// Close releases the underlying API client connection.
func (e *VisionEngine) Close() error {
	return e.client.Close()
}
