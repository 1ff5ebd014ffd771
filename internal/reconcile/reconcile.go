// Package reconcile merges normalized service requests into the store.
// Records whose id already exists are updated in place; everything else is
// inserted. Rows are never deleted: the store only grows or is amended.
package reconcile

import (
	"fmt"
	"log"

	"github.com/stlgis/stl311/internal/process"
	"github.com/stlgis/stl311/internal/store"
)

// Result holds the counts of rows actually written.
type Result struct {
	Inserted int
	Updated  int
}

// Reconciler upserts normalized records by their REQUESTID natural key.
type Reconciler struct {
	db *store.DB
}

// New creates a reconciler over an open store.
func New(db *store.DB) *Reconciler {
	return &Reconciler{db: db}
}

// Reconcile partitions records into inserts and updates against the
// existing id set and writes them. Duplicate ids within one batch are
// last-write-wins: a later record overwrites what an earlier one wrote.
// Per-row write failures are logged and skipped; only reading the existing
// id set can fail the whole call.
func (r *Reconciler) Reconcile(records []process.ServiceRequest) (Result, error) {
	var result Result
	if len(records) == 0 {
		log.Println("No processed requests to reconcile")
		return result, nil
	}

	existing, err := r.db.ExistingRequestIDs()
	if err != nil {
		return result, fmt.Errorf("reading existing request ids: %w", err)
	}
	log.Printf("Found %d existing records in store", len(existing))

	for _, rec := range records {
		if rec.RequestID == "" {
			log.Println("Skipping record without a request id; not upsert-able")
			continue
		}

		// Defensive: the processor guarantees coordinates, but an unwritable
		// record is skipped rather than failing the batch.
		if rec.SRX == 0 || rec.SRY == 0 {
			log.Printf("Skipping record with missing coordinates: %s", rec.RequestID)
			continue
		}

		if _, ok := existing[rec.RequestID]; ok {
			updated, err := r.db.UpdateRequest(rec)
			if err != nil {
				log.Printf("Failed to update request %s: %v", rec.RequestID, err)
				continue
			}
			if updated {
				result.Updated++
			}
			continue
		}

		if err := r.db.InsertRequest(rec); err != nil {
			log.Printf("Failed to insert request %s: %v", rec.RequestID, err)
			continue
		}
		result.Inserted++
		// Later duplicates in this batch now take the update path.
		existing[rec.RequestID] = struct{}{}
	}

	log.Printf("Reconcile complete: inserted %d, updated %d", result.Inserted, result.Updated)
	return result, nil
}
