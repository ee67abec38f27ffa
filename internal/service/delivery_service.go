package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"tunelock/internal/crypto"
	"tunelock/internal/domain"
	"tunelock/internal/media"
	"tunelock/internal/observability/metrics"
	"tunelock/internal/store"

	"github.com/google/uuid"
)

// DeliveryService moves media bytes, but only after the license layer says
// so. Downloads leave the server encrypted under a key derived from the
// license key; streams are access-controlled plaintext (transport encryption
// is TLS's job).
type DeliveryService struct {
	store    *store.Store
	catalog  media.Catalog
	licenses *LicenseService

	kdfSalt     []byte
	readTimeout time.Duration
}

func NewDeliveryService(st *store.Store, catalog media.Catalog, licenses *LicenseService, kdfSalt []byte, readTimeout time.Duration) *DeliveryService {
	if len(kdfSalt) == 0 {
		kdfSalt = crypto.DefaultSalt
	}
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	return &DeliveryService{
		store:       st,
		catalog:     catalog,
		licenses:    licenses,
		kdfSalt:     kdfSalt,
		readTimeout: readTimeout,
	}
}

// ProtectedDownload is a packaged offline delivery: ciphertext plus the
// envelope a client needs (together with its license key) to open it.
type ProtectedDownload struct {
	Download   *domain.Download
	Ciphertext []byte
	Envelope   crypto.Envelope
}

// PackageDownload encrypts a media asset for offline use by the caller's
// device. Authorization goes through the license layer by tuple rather than
// by presented key: the stored key is what seals the payload.
func (s *DeliveryService) PackageDownload(ctx context.Context, mediaID domain.MediaID, userID domain.UserID, info domain.DeviceInfo) (*ProtectedDownload, error) {
	if strings.TrimSpace(info.DeviceID) == "" {
		return nil, fmt.Errorf("%w: missing deviceId", ErrInvalidRequest)
	}

	lic, err := s.licenses.ActiveFor(ctx, userID, info.DeviceID, mediaID)
	if err != nil {
		return nil, err
	}
	if lic == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnauthorized, ErrNoValidLicense)
	}

	asset, err := s.catalog.Resolve(ctx, mediaID)
	if err != nil {
		return nil, err
	}

	plaintext, err := s.readAll(ctx, asset)
	if err != nil {
		return nil, err
	}

	key, err := crypto.DeriveKey(lic.Key, s.kdfSalt)
	if err != nil {
		return nil, err
	}
	ciphertext, env, err := crypto.Seal(plaintext, key)
	if err != nil {
		return nil, err
	}

	dl := &domain.Download{
		UserID:           userID,
		MediaID:          mediaID,
		LicenseKey:       lic.Key,
		DeviceExternalID: info.DeviceID,
		DRMProtected:     true,
		AccessType:       domain.AccessTypeOffline,
		IV:               env.IV,
		AuthTag:          env.AuthTag,
		Algorithm:        env.Algorithm,
	}
	if err := s.store.Downloads().Create(ctx, dl); err != nil {
		return nil, err
	}

	metrics.DownloadsPackagedTotal.Inc()
	slog.Info("download packaged",
		"media_id", mediaID, "user_id", userID, "device_id", info.DeviceID, "bytes", len(ciphertext))

	return &ProtectedDownload{Download: dl, Ciphertext: ciphertext, Envelope: env}, nil
}

// OpenDownload re-opens a previously packaged ciphertext using the presented
// license key and the envelope persisted with the audit record. Wrong key or
// tampered bytes surface as domain.ErrAuthenticationFailed.
func (s *DeliveryService) OpenDownload(ctx context.Context, downloadID uuid.UUID, userID domain.UserID, licenseKey string, ciphertext []byte) ([]byte, error) {
	dl, err := s.store.Downloads().Get(ctx, downloadID, userID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, fmt.Errorf("download %s: %w", downloadID, domain.ErrNotFound)
		}
		return nil, err
	}
	if !dl.DRMProtected {
		return nil, fmt.Errorf("%w: download is not protected", ErrInvalidRequest)
	}

	key, err := crypto.DeriveKey(licenseKey, s.kdfSalt)
	if err != nil {
		return nil, err
	}
	return crypto.Open(ciphertext, key, crypto.Envelope{
		IV:        dl.IV,
		AuthTag:   dl.AuthTag,
		Algorithm: dl.Algorithm,
	})
}

// MediaStream is one validated, possibly partial, media delivery. The caller
// owns Body and must close it.
type MediaStream struct {
	Body        io.ReadCloser
	Start       int64
	End         int64
	Size        int64
	ContentType string
	Partial     bool
}

func (m *MediaStream) ContentLength() int64 { return m.End - m.Start + 1 }

// ContentRange renders the header value for partial responses,
// e.g. "bytes 500-999/1000".
func (m *MediaStream) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", m.Start, m.End, m.Size)
}

// Stream validates the presented license and returns a byte-range-accurate
// reader over the source asset. No bytes are readable before validation
// passes.
func (s *DeliveryService) Stream(ctx context.Context, mediaID domain.MediaID, userID domain.UserID, info domain.DeviceInfo, rangeHeader string) (*MediaStream, error) {
	lic, err := s.licenses.Authorize(ctx, mediaID, info.DeviceID, info.LicenseKey)
	if err != nil {
		return nil, err
	}
	if lic == nil {
		metrics.StreamRequestsTotal.WithLabelValues("unauthorized").Inc()
		return nil, fmt.Errorf("%w: %s", domain.ErrUnauthorized, ErrNoValidLicense)
	}
	if lic.RestrictionLevel.AtLeast(domain.RestrictionEncrypted) {
		// ENCRYPTED licenses never expose plaintext; the download path is
		// the only delivery for them.
		metrics.StreamRequestsTotal.WithLabelValues("unauthorized").Inc()
		return nil, fmt.Errorf("%w: license requires encrypted delivery", domain.ErrUnauthorized)
	}

	asset, err := s.catalog.Resolve(ctx, mediaID)
	if err != nil {
		return nil, err
	}

	start, end, partial, err := parseRange(rangeHeader, asset.Size)
	if err != nil {
		metrics.StreamRequestsTotal.WithLabelValues("bad_range").Inc()
		return nil, err
	}

	body, err := s.catalog.Open(ctx, asset, start)
	if err != nil {
		return nil, err
	}

	metrics.StreamRequestsTotal.WithLabelValues("ok").Inc()
	slog.Debug("stream opened",
		"media_id", mediaID, "user_id", userID, "device_id", info.DeviceID,
		"start", start, "end", end, "partial", partial)

	return &MediaStream{
		Body:        limitReadCloser(body, end-start+1),
		Start:       start,
		End:         end,
		Size:        asset.Size,
		ContentType: asset.ContentType,
		Partial:     partial,
	}, nil
}

// Deliveries lists the caller's download audit trail, newest first.
func (s *DeliveryService) Deliveries(ctx context.Context, userID domain.UserID) ([]*domain.Download, error) {
	return s.store.Downloads().GetByUserID(ctx, userID)
}

// RecordStream writes the STREAM audit row for a served stream. Kept apart
// from Stream so a failed header write doesn't leave a phantom record.
func (s *DeliveryService) RecordStream(ctx context.Context, mediaID domain.MediaID, userID domain.UserID, info domain.DeviceInfo) error {
	return s.store.Downloads().Create(ctx, &domain.Download{
		UserID:           userID,
		MediaID:          mediaID,
		LicenseKey:       info.LicenseKey,
		DeviceExternalID: info.DeviceID,
		DRMProtected:     false,
		AccessType:       domain.AccessTypeStream,
	})
}

// readAll buffers the full asset, bounded by the configured read timeout.
// Fine for single-track audio; album-scale assets would want chunked
// sealing instead.
func (s *DeliveryService) readAll(ctx context.Context, asset *media.Asset) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	body, err := s.catalog.Open(ctx, asset, 0)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := io.ReadAll(body)
		ch <- result{data, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("read media %s: %w", asset.ID, ctx.Err())
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("read media %s: %w", asset.ID, res.err)
		}
		return res.data, nil
	}
}

// parseRange interprets an RFC 7233 single range of the form
// "bytes=start-end". end defaults to size-1 and is clamped; suffix ranges
// ("bytes=-N") take the trailing N bytes. Anything else, or a start beyond
// the asset, is domain.ErrInvalidRange.
func parseRange(header string, size int64) (start, end int64, partial bool, err error) {
	if header == "" {
		return 0, size - 1, false, nil
	}

	spec, found := strings.CutPrefix(header, "bytes=")
	if !found || strings.Contains(spec, ",") {
		return 0, 0, false, fmt.Errorf("%w: %q", domain.ErrInvalidRange, header)
	}
	startStr, endStr, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, false, fmt.Errorf("%w: %q", domain.ErrInvalidRange, header)
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	if startStr == "" {
		// Suffix form: last N bytes.
		n, perr := strconv.ParseInt(endStr, 10, 64)
		if perr != nil || n <= 0 {
			return 0, 0, false, fmt.Errorf("%w: %q", domain.ErrInvalidRange, header)
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, true, nil
	}

	start, perr := strconv.ParseInt(startStr, 10, 64)
	if perr != nil || start < 0 || start >= size {
		return 0, 0, false, fmt.Errorf("%w: %q", domain.ErrInvalidRange, header)
	}

	end = size - 1
	if endStr != "" {
		end, perr = strconv.ParseInt(endStr, 10, 64)
		if perr != nil || end < start {
			return 0, 0, false, fmt.Errorf("%w: %q", domain.ErrInvalidRange, header)
		}
		if end > size-1 {
			end = size - 1
		}
	}
	return start, end, true, nil
}

type limitedReadCloser struct {
	io.Reader
	closer io.Closer
}

func (l *limitedReadCloser) Close() error { return l.closer.Close() }

func limitReadCloser(rc io.ReadCloser, n int64) io.ReadCloser {
	return &limitedReadCloser{Reader: io.LimitReader(rc, n), closer: rc}
}
