package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/salvagehub/salvagebid/internal/domain"
)

// auctionArchivePrefix is where the archiver parks closed-auction ledgers,
// one JSONL file per cutoff month.
const auctionArchivePrefix = "archive/auctions/"

// ArchiveHandler serves archived auction ledgers out of cold storage. It is
// only registered when the deployment has object storage configured.
type ArchiveHandler struct {
	blobs  domain.BlobReader
	logger *slog.Logger
}

func NewArchiveHandler(blobs domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		blobs:  blobs,
		logger: logger,
	}
}

// ListArchives enumerates the available monthly ledger archives.
// GET /api/archives
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	infos, err := h.blobs.List(r.Context(), auctionArchivePrefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list archives failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}

	type archiveEntry struct {
		Path         string    `json:"path"`
		Size         int64     `json:"size"`
		LastModified time.Time `json:"last_modified"`
	}
	entries := make([]archiveEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, archiveEntry{
			Path:         info.Path,
			Size:         info.Size,
			LastModified: info.LastModified,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"archives": entries})
}

// GetArchive streams one month's archived ledger as JSONL.
// GET /api/archives/{month} where month is YYYY-MM.
func (h *ArchiveHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	month := pathParam(r, "month")
	if _, err := time.Parse("2006-01", month); err != nil {
		writeError(w, http.StatusBadRequest, "month must be formatted YYYY-MM")
		return
	}

	key := fmt.Sprintf("%s%s.jsonl", auctionArchivePrefix, month)
	ok, err := h.blobs.Exists(r.Context(), key)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: archive head failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read archive")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no archive for that month")
		return
	}

	body, err := h.blobs.Get(r.Context(), key)
	if err != nil {
		// The object can vanish between the head and the get.
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no archive for that month")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: archive get failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read archive")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		// Headers are gone; all we can do is note the broken stream.
		h.logger.WarnContext(r.Context(), "handler: archive stream interrupted",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
