package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// descriptorSelector locates the embedded reader descriptor on a details page
const descriptorSelector = "input.js-bookreader"

// PageLocator is one page's remote image address
type PageLocator struct {
	Index int
	URL   string
}

// BookMetadata describes a borrowed book and its ordered pages
type BookMetadata struct {
	BookID     string
	Title      string
	ImageCount int
	Pages      []PageLocator
	// DetailsURL is sent as the referer on page requests
	DetailsURL string
}

// Descriptor is the JSON blob embedded in the details page
type Descriptor struct {
	URL string `json:"url"`
}

// ExtractDescriptor finds the reader descriptor in a details page. The descriptor
// is the JSON value attribute of the first input.js-bookreader element and must
// carry a non-empty url.
func ExtractDescriptor(html []byte) (*Descriptor, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: parse details page: %v", ErrMetadataParse, err)
	}

	value, ok := doc.Find(descriptorSelector).First().Attr("value")
	if !ok {
		return nil, fmt.Errorf("%w: no %s element on details page", ErrMetadataParse, descriptorSelector)
	}

	var d Descriptor
	if err := json.Unmarshal([]byte(value), &d); err != nil {
		return nil, fmt.Errorf("%w: descriptor is not JSON: %v", ErrMetadataParse, err)
	}
	if d.URL == "" {
		return nil, fmt.Errorf("%w: descriptor is missing url", ErrMetadataParse)
	}
	return &d, nil
}

// count decodes a JSON number or a numeric string
type count int

func (c *count) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*c = count(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("imagecount: want number, got %s", b)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("imagecount: %w", err)
	}
	*c = count(n)
	return nil
}

type metadataResponse struct {
	Data *metadataData `json:"data"`
}

type metadataData struct {
	Metadata *struct {
		Title      *string `json:"title"`
		ImageCount *count  `json:"imagecount"`
	} `json:"metadata"`
	BrOptions *struct {
		Data [][]pageDescriptor `json:"data"`
	} `json:"brOptions"`
}

type pageDescriptor struct {
	URI string `json:"uri"`
}

// ResolveMetadata fetches the details page, follows its descriptor to the
// metadata endpoint and flattens the grouped page list.
func ResolveMetadata(ctx context.Context, session *Session, loan *Loan, log *zap.Logger) (*BookMetadata, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if !loan.IsOpen() {
		if loan.State() == StateClosed {
			return nil, ErrLoanClosed
		}
		return nil, fmt.Errorf("%w: metadata requires an open loan, state is %s", ErrPrecondition, loan.State())
	}

	bookID := loan.BookID()
	detailsPath := "details/" + bookID

	html, _, err := session.GetRaw(ctx, detailsPath, nil)
	if err != nil {
		return nil, err
	}
	desc, err := ExtractDescriptor(html)
	if err != nil {
		return nil, err
	}

	log.Debug("fetching metadata", zap.String("book", bookID), zap.String("url", session.URL(desc.URL)))
	// Non-JSON bodies are transport failures; JSON of the wrong shape is a parse error.
	var raw json.RawMessage
	if err := session.GetJSON(ctx, desc.URL, &raw); err != nil {
		return nil, err
	}
	var resp metadataResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataParse, err)
	}

	meta, err := flattenMetadata(resp.Data)
	if err != nil {
		return nil, err
	}
	meta.BookID = bookID
	meta.DetailsURL = session.URL(detailsPath)

	if meta.ImageCount != len(meta.Pages) {
		log.Warn("page count mismatch",
			zap.String("book", bookID),
			zap.Int("imagecount", meta.ImageCount),
			zap.Int("pages", len(meta.Pages)),
		)
	}
	log.Info("metadata resolved",
		zap.String("book", bookID),
		zap.String("title", meta.Title),
		zap.Int("pages", len(meta.Pages)),
	)
	return meta, nil
}

func flattenMetadata(data *metadataData) (*BookMetadata, error) {
	switch {
	case data == nil:
		return nil, fmt.Errorf("%w: response has no data", ErrMetadataParse)
	case data.Metadata == nil:
		return nil, fmt.Errorf("%w: data has no metadata", ErrMetadataParse)
	case data.Metadata.Title == nil:
		return nil, fmt.Errorf("%w: metadata has no title", ErrMetadataParse)
	case data.Metadata.ImageCount == nil:
		return nil, fmt.Errorf("%w: metadata has no imagecount", ErrMetadataParse)
	case data.BrOptions == nil || data.BrOptions.Data == nil:
		return nil, fmt.Errorf("%w: data has no brOptions.data", ErrMetadataParse)
	}

	meta := &BookMetadata{
		Title:      *data.Metadata.Title,
		ImageCount: int(*data.Metadata.ImageCount),
	}
	for g, group := range data.BrOptions.Data {
		for p, page := range group {
			if page.URI == "" {
				return nil, fmt.Errorf("%w: page %d of group %d has no uri", ErrMetadataParse, p, g)
			}
			meta.Pages = append(meta.Pages, PageLocator{Index: len(meta.Pages), URL: page.URI})
		}
	}
	return meta, nil
}
