package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/salvagehub/salvagebid/internal/domain"
)

// ledgerBundle is one archived auction: its final ledger state plus the full
// append-only bid history.
type ledgerBundle struct {
	Auction domain.Auction `json:"auction"`
	Bids    []domain.Bid   `json:"bids"`
}

// ArchiveImpl implements domain.Archiver by bundling the bid ledger of every
// auction closed before the cutoff, serializing the bundles to JSONL, and
// uploading the result to S3.
//
// Deletion of the archived rows from the primary store is intentionally NOT
// performed here -- that is a separate, explicit step to be executed after
// the archive has been verified.
type ArchiveImpl struct {
	writer   domain.BlobWriter
	auctions domain.AuctionStore
	bids     domain.BidStore
	audit    domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	auctions domain.AuctionStore,
	bids domain.BidStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:   writer,
		auctions: auctions,
		bids:     bids,
		audit:    audit,
	}
}

// ArchiveClosedAuctions queries every auction closed before the cutoff,
// bundles each with its complete bid ledger, and uploads the JSONL file to
// S3 at archive/auctions/YYYY-MM.jsonl. The archival event is recorded in
// the audit log and the count of archived auctions is returned.
func (a *ArchiveImpl) ArchiveClosedAuctions(ctx context.Context, before time.Time) (int64, error) {
	auctions, err := a.auctions.ListClosedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive auctions query: %w", err)
	}
	if len(auctions) == 0 {
		return 0, nil
	}

	bundles := make([]ledgerBundle, 0, len(auctions))
	for _, auction := range auctions {
		bids, err := a.bids.ListByAuction(ctx, auction.ID, domain.ListOpts{})
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive auction %s bids: %w", auction.ID, err)
		}
		bundles = append(bundles, ledgerBundle{Auction: auction, Bids: bids})
	}

	buf, err := marshalJSONL(bundles)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive auctions marshal: %w", err)
	}

	path := archivePath("auctions", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive auctions upload: %w", err)
	}

	count := int64(len(bundles))

	if err := a.audit.Log(ctx, "archive.auctions", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive auctions audit log: %w", err)
	}

	return count, nil
}

// multipartThreshold is the JSONL size above which archives are uploaded
// via the multipart manager instead of a single PutObject.
const multipartThreshold = 8 * 1024 * 1024

// upload picks the upload strategy by payload size. Busy months can produce
// ledger files well past what a single PutObject handles comfortably.
func (a *ArchiveImpl) upload(ctx context.Context, path string, buf []byte) error {
	if int64(len(buf)) > multipartThreshold {
		return a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), multipartThreshold)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/auctions/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
