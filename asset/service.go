package asset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const (
	DefaultMaxBytes = 5 << 20
	maxNameAttempts = 3
)

var DefaultAllowedExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}

type Options struct {
	// MaxBytes caps an upload; zero means DefaultMaxBytes.
	MaxBytes int64
	// AllowedExtensions lists accepted extensions; nil means
	// DefaultAllowedExtensions.
	AllowedExtensions []string
	Namer             Namer
}

// Service stores profile pictures through a Provider.
type Service struct {
	provider Provider
	namer    Namer
	maxBytes int64
	allowed  map[string]bool
	logger   *slog.Logger
}

func NewService(log *slog.Logger, provider Provider, opts Options) *Service {
	if log == nil {
		log = slog.Default()
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.AllowedExtensions == nil {
		opts.AllowedExtensions = DefaultAllowedExtensions
	}
	if opts.Namer == nil {
		opts.Namer = XIDNamer{}
	}

	allowed := make(map[string]bool, len(opts.AllowedExtensions))
	for _, ext := range opts.AllowedExtensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = true
	}

	return &Service{
		provider: provider,
		namer:    opts.Namer,
		maxBytes: opts.MaxBytes,
		allowed:  allowed,
		logger:   log.With(slog.String("service", "asset")),
	}
}

// Store persists the bytes read from r and returns the stored reference.
// nameHint is the uploaded file name; only its extension is kept.
func (s *Service) Store(ctx context.Context, r io.Reader, nameHint string) (string, error) {
	ext := extension(nameHint)
	if len(s.allowed) > 0 && !s.allowed[ext] {
		return "", ErrUnsupportedType
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: read upload: %v", ErrStorageFailure, err)
	}
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if int64(len(data)) > s.maxBytes {
		return "", ErrTooLarge
	}

	for i := 0; i < maxNameAttempts; i++ {
		key := s.namer.Name(ext)
		err := s.provider.Put(ctx, key, bytes.NewReader(data))
		if err == nil {
			s.logger.DebugContext(ctx, "asset stored", slog.String("key", key), slog.Int("bytes", len(data)))
			return key, nil
		}
		if !errors.Is(err, ErrExists) {
			s.logger.ErrorContext(ctx, "asset write failed", slog.String("key", key), slog.Any("error", err))
			return "", fmt.Errorf("%w: %v", ErrStorageFailure, err)
		}
		s.logger.WarnContext(ctx, "asset name taken", slog.String("key", key))
	}

	return "", fmt.Errorf("%w: no free name after %d attempts", ErrStorageFailure, maxNameAttempts)
}

// Resolve returns where a stored reference can be fetched from. An empty
// reference resolves to "".
func (s *Service) Resolve(ref string) string {
	if ref == "" {
		return ""
	}
	return s.provider.AccessPath(ref)
}

// Discard removes an asset that no account refers to.
func (s *Service) Discard(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	if err := s.provider.Delete(ctx, ref); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return nil
}
