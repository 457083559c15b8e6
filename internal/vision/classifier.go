// Package vision runs a local ImageNet classifier used as an offline
// captioning backend.
package vision

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sort"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/image/draw"
)

// ImageNet normalization used by torchvision models.
var (
	imagenetMean = [3]float32{0.485, 0.456, 0.406}
	imagenetStd  = [3]float32{0.229, 0.224, 0.225}
)

const inputSide = 224

type Prediction struct {
	Label string  `json:"label"`
	Index int     `json:"index"`
	Score float32 `json:"score"`
}

// Classifier loads the ONNX model lazily on first use. Inference is
// serialized because the session shares its input and output tensors.
type Classifier struct {
	mu sync.Mutex

	modelPath  string
	labelsPath string
	libPath    string
	topK       int

	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	labels  []string
	loaded  bool
}

func NewClassifier(modelPath, labelsPath, onnxLibPath string, topK int) *Classifier {
	if topK <= 0 {
		topK = 5
	}
	return &Classifier{
		modelPath:  modelPath,
		labelsPath: labelsPath,
		libPath:    onnxLibPath,
		topK:       topK,
	}
}

// Load initializes the runtime, labels and session. Safe to call repeatedly.
func (c *Classifier) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked()
}

func (c *Classifier) loadLocked() error {
	if c.loaded {
		return nil
	}
	if c.libPath != "" {
		ort.SetSharedLibraryPath(c.libPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("onnx init environment: %w", err)
		}
	}

	labels, err := loadLabels(c.labelsPath)
	if err != nil {
		return fmt.Errorf("load labels: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(c.modelPath)
	if err != nil {
		return fmt.Errorf("onnx get input/output info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return fmt.Errorf("onnx model has no inputs or outputs")
	}

	input, err := ort.NewEmptyTensor[float32](inputs[0].Dimensions)
	if err != nil {
		return fmt.Errorf("onnx new input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](outputs[0].Dimensions)
	if err != nil {
		input.Destroy()
		return fmt.Errorf("onnx new output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(c.modelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name},
		[]ort.Value{input}, []ort.Value{output}, nil)
	if err != nil {
		output.Destroy()
		input.Destroy()
		return fmt.Errorf("onnx new session: %w", err)
	}

	c.labels = labels
	c.input = input
	c.output = output
	c.session = session
	c.loaded = true
	return nil
}

// Classify returns the top-k predictions for an encoded JPEG or PNG image.
func (c *Classifier) Classify(ctx context.Context, data []byte) ([]Prediction, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	tensor := preprocess(img)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.loadLocked(); err != nil {
		return nil, err
	}

	in := c.input.GetData()
	if len(in) < len(tensor) {
		return nil, fmt.Errorf("input tensor size %d < preprocessed %d", len(in), len(tensor))
	}
	copy(in, tensor)
	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	return topK(c.output.GetData(), c.labels, c.topK), nil
}

// Close releases the session and tensors.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return nil
	}
	var firstErr error
	for _, destroy := range []func() error{c.session.Destroy, c.input.Destroy, c.output.Destroy} {
		if err := destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.loaded = false
	return firstErr
}

func topK(scores []float32, labels []string, k int) []Prediction {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return scores[order[i]] > scores[order[j]] })

	if k > len(order) {
		k = len(order)
	}
	out := make([]Prediction, 0, k)
	for _, idx := range order[:k] {
		label := ""
		if idx < len(labels) {
			label = labels[idx]
		}
		out = append(out, Prediction{Label: label, Index: idx, Score: scores[idx]})
	}
	return out
}

func loadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var labels []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		labels = append(labels, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return labels, nil
}

// preprocess scales img to 224x224 and lays it out as normalized NCHW float32.
func preprocess(img image.Image) []float32 {
	dst := image.NewRGBA(image.Rect(0, 0, inputSide, inputSide))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)

	const plane = inputSide * inputSide
	out := make([]float32, 3*plane)
	for y := 0; y < inputSide; y++ {
		for x := 0; x < inputSide; x++ {
			idx := y*inputSide + x
			px := dst.RGBAAt(x, y)
			rgb := [3]float32{float32(px.R) / 255, float32(px.G) / 255, float32(px.B) / 255}
			for ch := 0; ch < 3; ch++ {
				out[ch*plane+idx] = (rgb[ch] - imagenetMean[ch]) / imagenetStd[ch]
			}
		}
	}
	return out
}
