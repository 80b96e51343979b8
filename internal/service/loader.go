package service

import (
	"context"
	"io"
	"strings"

	"questionnaire-agent-go/internal/apperr"
	"questionnaire-agent-go/pkg/log"
)

// ObjectStore reads raw objects from the source-file store.
type ObjectStore interface {
	FetchObject(ctx context.Context, objectPath string) (io.ReadCloser, error)
}

// TextExtractor is the opaque binary-to-text collaborator (Tika).
type TextExtractor interface {
	ExtractText(ctx context.Context, fileReader io.Reader, fileName string) (string, error)
}

// DocumentLoader turns a stored file into plain text.
type DocumentLoader interface {
	Load(ctx context.Context, objectPath, fileName string) (string, error)
}

type documentLoader struct {
	store     ObjectStore
	extractor TextExtractor
}

// NewDocumentLoader composes the object store and the text extractor into
// the loader used by indexing and questionnaire parsing.
func NewDocumentLoader(store ObjectStore, extractor TextExtractor) DocumentLoader {
	return &documentLoader{store: store, extractor: extractor}
}

func (l *documentLoader) Load(ctx context.Context, objectPath, fileName string) (string, error) {
	object, err := l.store.FetchObject(ctx, objectPath)
	if err != nil {
		return "", apperr.Wrap(apperr.KindUpstreamFailure, "failed to fetch source object "+objectPath, err)
	}
	defer object.Close()

	text, err := l.extractor.ExtractText(ctx, object, fileName)
	if err != nil {
		return "", apperr.Wrap(apperr.KindUpstreamFailure, "text extraction failed for "+fileName, err)
	}
	if strings.TrimSpace(text) == "" {
		log.Warnf("[Loader] extracted text is empty for '%s'", fileName)
		return "", apperr.Newf(apperr.KindInvalidInput, "document '%s' is empty after extraction", fileName)
	}
	return text, nil
}
