// Package documentai implements ocr.Processor on top of Google Document AI's
// form parser. Every ProcessPage call is one billed online request.
package documentai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	docai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/joseph-ayodele/taxforms-extractor/internal/common"
	"github.com/joseph-ayodele/taxforms-extractor/internal/core/ocr"
)

type Config struct {
	ProjectID   string
	Location    string
	ProcessorID string
	// Endpoint overrides the regional endpoint derived from Location.
	Endpoint string
	Timeout  time.Duration
	// ArtifactCacheDir, when set, receives the raw JSON response of every page.
	ArtifactCacheDir string
}

// Client is a Document AI backed ocr.Processor.
type Client struct {
	client *docai.DocumentProcessorClient
	name   string
	cfg    Config
	logger *slog.Logger
}

// NewClient dials the regional Document AI endpoint. Credentials come from the
// environment (GOOGLE_APPLICATION_CREDENTIALS or workload identity).
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger, opts ...option.ClientOption) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)
	}
	opts = append([]option.ClientOption{option.WithEndpoint(endpoint)}, opts...)

	c, err := docai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, common.NewAppError("OCR_CLIENT", "create document ai client", err)
	}
	logger.Info("document ai client ready", "endpoint", endpoint, "processor", cfg.ProcessorID)
	return &Client{
		client: c,
		name:   ProcessorName(cfg.ProjectID, cfg.Location, cfg.ProcessorID),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// ProcessorName is the full resource name of a processor.
func ProcessorName(project, location, processor string) string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", project, location, processor)
}

func (c *Client) Close() error {
	return c.client.Close()
}

// ProcessPage sends the whole file but asks the processor for a single page.
func (c *Client) ProcessPage(ctx context.Context, content []byte, mimeType string, page int) (*ocr.Document, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.client.ProcessDocument(ctx, PageRequest(c.name, content, mimeType, page))
	if isPastLastPage(err, page) {
		c.logger.Debug("page beyond end of document", "file", common.SourceNameFromContext(ctx), "page", page)
		return &ocr.Document{}, nil
	}
	if err != nil {
		c.logger.Error("document ai request failed",
			"file", common.SourceNameFromContext(ctx),
			"page", page,
			"code", status.Code(err).String(),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return nil, fmt.Errorf("document ai page %d (%s): %w", page, status.Code(err), err)
	}
	c.logger.Debug("document ai page processed",
		"file", common.SourceNameFromContext(ctx),
		"page", page,
		"pages_returned", len(resp.GetDocument().GetPages()),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if c.cfg.ArtifactCacheDir != "" {
		if err := c.writeArtifact(content, page, resp.GetDocument()); err != nil {
			c.logger.Warn("artifact write failed", "page", page, "error", err)
		}
	}
	return FromProto(resp.GetDocument()), nil
}

// The page selector is rejected with InvalidArgument when it points past the
// last page. Page 1 always exists, so there the error is real.
func isPastLastPage(err error, page int) bool {
	return err != nil && page > 1 && status.Code(err) == codes.InvalidArgument
}

// PageRequest builds an online process request restricted to one page.
func PageRequest(name string, content []byte, mimeType string, page int) *documentaipb.ProcessRequest {
	return &documentaipb.ProcessRequest{
		Name: name,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{Content: content, MimeType: mimeType},
		},
		ProcessOptions: &documentaipb.ProcessOptions{
			PageRange: &documentaipb.ProcessOptions_IndividualPageSelector_{
				IndividualPageSelector: &documentaipb.ProcessOptions_IndividualPageSelector{
					Pages: []int32{int32(page)},
				},
			},
		},
		SkipHumanReview: true,
	}
}

// writeArtifact stores {cacheDir}/{sha256}-p{page}.json for offline debugging.
func (c *Client) writeArtifact(content []byte, page int, doc *documentaipb.Document) error {
	sum := sha256.Sum256(content)
	path := filepath.Join(c.cfg.ArtifactCacheDir, fmt.Sprintf("%s-p%d.json", hex.EncodeToString(sum[:]), page))
	b, err := protojson.MarshalOptions{Multiline: true}.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := os.MkdirAll(c.cfg.ArtifactCacheDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
