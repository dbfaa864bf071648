package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/JaimeStill/tally/internal/exceptions"
	"github.com/JaimeStill/tally/internal/invoices"
	"github.com/JaimeStill/tally/pkg/storage"
)

// receive verifies the stored file is present and readable. An unreadable or
// empty file raises a poor_quality exception and terminates the pipeline for
// this invoice; a missing blob is a system fault worth retrying.
func (e *Engine) receive(ctx context.Context, inv *invoices.Invoice, cp Checkpoint) (string, Checkpoint, error) {
	reader, err := e.store.Download(ctx, inv.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", cp, fatal(StageReceive, fmt.Errorf("blob %s missing: %w", inv.StorageKey, err))
		}
		return "", cp, transient(StageReceive, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", cp, transient(StageReceive, err)
	}

	pages := 0
	readable := len(data) > 0
	if readable && strings.Contains(inv.ContentType, "pdf") {
		pages, err = api.PageCount(bytes.NewReader(data), nil)
		if err != nil || pages == 0 {
			readable = false
		}
	}

	if !readable {
		if err := e.raise(ctx, inv.ID, exceptions.ReasonPoorQuality,
			"receive:"+inv.StorageKey,
			map[string]any{"size_bytes": len(data), "content_type": inv.ContentType},
		); err != nil {
			return "", cp, transient(StageReceive, err)
		}

		cp.Stage = StageException
		return invoices.StatusException, cp, nil
	}

	cp.Receive = &ReceiveState{
		SizeBytes:  int64(len(data)),
		PageCount:  pages,
		VerifiedAt: time.Now().UTC(),
	}
	cp.Stage = StageParse
	return invoices.StatusReceived, cp, nil
}
