package ocr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

const extractMethod = "/ocr.v1.TextExtractor/ExtractText"

var (
	ErrEmptyImage = errors.New("image is empty")
	ErrNoText     = errors.New("no text found in image")
)

// Extractor turns a screenshot into plain text.
type Extractor interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}

// GRPCExtractor calls an OCR sidecar. Requests carry the image as base64
// in an "image" field; the reply carries "text".
type GRPCExtractor struct {
	conn    *grpc.ClientConn
	lang    string
	timeout time.Duration
}

func NewGRPCExtractor(addr string, timeout time.Duration, opts ...grpc.DialOption) (*GRPCExtractor, error) {
	if addr == "" {
		return nil, errors.New("ocr address is empty")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("ocr client: %w", err)
	}
	return &GRPCExtractor{conn: conn, lang: "eng", timeout: timeout}, nil
}

func (e *GRPCExtractor) ExtractText(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", ErrEmptyImage
	}
	in, err := structpb.NewStruct(map[string]any{
		"image": base64.StdEncoding.EncodeToString(image),
		"lang":  e.lang,
	})
	if err != nil {
		return "", fmt.Errorf("encode ocr request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	out := &structpb.Struct{}
	if err := e.conn.Invoke(ctx, extractMethod, in, out); err != nil {
		return "", fmt.Errorf("ocr: %w", err)
	}
	text := strings.TrimSpace(out.GetFields()["text"].GetStringValue())
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

func (e *GRPCExtractor) Close() error {
	return e.conn.Close()
}

// Static returns the same text for every image. Used for fixed-text intake
// and in tests.
type Static string

func (s Static) ExtractText(_ context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", ErrEmptyImage
	}
	if s == "" {
		return "", ErrNoText
	}
	return string(s), nil
}
