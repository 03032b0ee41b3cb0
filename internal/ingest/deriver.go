package ingest

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

const (
	// originalQuality is the JPEG quality originals are normalized to.
	originalQuality = 90
	// renditionQuality is the JPEG quality of the derived tiers.
	renditionQuality = 85

	defaultWorkerLimit = 4
)

// OriginalImage is the normalized, as-stored form of an upload.
type OriginalImage struct {
	Bytes  []byte
	Size   int64
	Width  int
	Height int
	MIME   string
}

// DerivedRendition is one encoded tier produced by the deriver.
type DerivedRendition struct {
	Kind   RenditionKind
	Bytes  []byte
	Size   int64
	Width  int
	Height int
}

// Derivation is the complete output of deriving one upload. Renditions are
// ordered by the policy's tier enumeration, independent of completion order.
type Derivation struct {
	Original   OriginalImage
	Renditions []DerivedRendition

	// DerivedBytes is the sum over the tier renditions only.
	DerivedBytes int64
	// TotalBytes additionally includes the original: the amount of quota the
	// whole ingestion consumes.
	TotalBytes int64
}

// Deriver produces the full rendition set for an upload: it normalizes the
// original to JPEG, plans the tiers, and encodes them with bounded
// concurrency. A failure on any single rendition aborts the derivation.
type Deriver struct {
	transcoder  *Transcoder
	policy      Policy
	workerLimit int
}

// NewDeriver creates a deriver with the given concurrency limit per upload.
// Limits below one fall back to a small default to bound memory use.
func NewDeriver(transcoder *Transcoder, policy Policy, workerLimit int) *Deriver {
	if workerLimit < 1 {
		workerLimit = defaultWorkerLimit
	}
	return &Deriver{
		transcoder:  transcoder,
		policy:      policy,
		workerLimit: workerLimit,
	}
}

// Derive decodes the upload and produces the original plus every planned
// tier. Returns *DecodeError when the upload is unreadable and *EncodeError
// when any rendition fails to encode; cancellation of ctx aborts the
// remaining work and surfaces ctx.Err().
func (d *Deriver) Derive(ctx context.Context, data []byte) (*Derivation, error) {
	img, err := d.transcoder.Decode(data)
	if err != nil {
		return nil, err
	}

	origBytes, width, height, err := d.transcoder.Encode(img, 0, 0, originalQuality)
	if err != nil {
		return nil, &EncodeError{Kind: KindOriginal, Err: err}
	}

	original := OriginalImage{
		Bytes:  origBytes,
		Size:   int64(len(origBytes)),
		Width:  width,
		Height: height,
		MIME:   MIMEJPEG,
	}

	planned := d.policy.Plan(width, height)
	renditions := make([]DerivedRendition, len(planned))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(d.workerLimit)

	for i, plan := range planned {
		i, plan := i, plan
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}

			if !plan.Resize {
				// Copy-fill: the tier is satisfied by the original bytes.
				renditions[i] = DerivedRendition{
					Kind:   plan.Kind,
					Bytes:  original.Bytes,
					Size:   original.Size,
					Width:  original.Width,
					Height: original.Height,
				}
				return nil
			}

			encoded, w, h, encErr := d.transcoder.Encode(img, plan.Width, plan.Height, renditionQuality)
			if encErr != nil {
				return &EncodeError{Kind: plan.Kind, Err: encErr}
			}
			renditions[i] = DerivedRendition{
				Kind:   plan.Kind,
				Bytes:  encoded,
				Size:   int64(len(encoded)),
				Width:  w,
				Height: h,
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	derivation := &Derivation{
		Original:   original,
		Renditions: renditions,
	}
	for _, r := range renditions {
		derivation.DerivedBytes += r.Size
	}
	derivation.TotalBytes = original.Size + derivation.DerivedBytes

	slog.Debug("derivation complete",
		"width", width,
		"height", height,
		"renditions", len(renditions),
		"total_bytes", derivation.TotalBytes)
	return derivation, nil
}
