package caption

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"image-annotator/internal/vision"
)

// Classifier is the subset of vision.Classifier the label captioner needs.
type Classifier interface {
	Classify(ctx context.Context, data []byte) ([]vision.Prediction, error)
}

// LabelCaptioner captions images offline from classifier labels. It answers
// with the same JSON text contract as the remote service.
type LabelCaptioner struct {
	classifier Classifier
}

func NewLabelCaptioner(classifier Classifier) *LabelCaptioner {
	return &LabelCaptioner{classifier: classifier}
}

func (c *LabelCaptioner) Caption(ctx context.Context, image []byte, _ string) (string, error) {
	predictions, err := c.classifier.Classify(ctx, image)
	if err != nil {
		return "", fmt.Errorf("classify image failed: %w", err)
	}
	return formatPredictions(predictions)
}

func formatPredictions(predictions []vision.Prediction) (string, error) {
	if len(predictions) == 0 || strings.TrimSpace(predictions[0].Label) == "" {
		return "", fmt.Errorf("classifier returned no labelled predictions")
	}

	parts := make([]string, 0, len(predictions))
	for _, p := range predictions {
		if p.Label == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (%.2f)", p.Label, p.Score))
	}
	payload, err := json.Marshal(map[string]string{
		"title":       displayLabel(predictions[0].Label),
		"description": "Likely contents: " + strings.Join(parts, ", ") + ".",
	})
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// displayLabel keeps the first synonym of an ImageNet label and capitalizes it.
func displayLabel(label string) string {
	label = strings.TrimSpace(strings.SplitN(label, ",", 2)[0])
	if label == "" {
		return label
	}
	return strings.ToUpper(label[:1]) + label[1:]
}
