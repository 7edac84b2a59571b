package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"lihtc-backend/internal/database"
	"lihtc-backend/internal/income"
	"lihtc-backend/internal/models"
)

// DocumentHandler handles income-document HTTP requests.
type DocumentHandler struct {
	db database.Service
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(db database.Service) *DocumentHandler {
	return &DocumentHandler{db: db}
}

const documentRetCols = `id, resident_id, verification_id, document_type, status,
	gross_pay_amount, pay_frequency, pay_period_start_date::text,
	pay_period_end_date::text, box1_wages, tax_year,
	calculated_annualized_income, file_url, file_name, file_size, file_type,
	created_at, updated_at`

func scanDocument(row pgx.Row, d *models.IncomeDocument) error {
	return row.Scan(
		&d.ID, &d.ResidentID, &d.VerificationID, &d.DocumentType, &d.Status,
		&d.GrossPayAmount, &d.PayFrequency,
		&d.PayPeriodStartDate, &d.PayPeriodEndDate,
		&d.Box1Wages, &d.TaxYear, &d.CalculatedAnnualizedIncome,
		&d.FileURL, &d.FileName, &d.FileSize, &d.FileType,
		&d.CreatedAt, &d.UpdatedAt,
	)
}

// ── Create ─────────────────────────────────────────────────────

// Create handles POST /api/residents/{id}/documents — records OCR output
// for a resident. When the resident now has enough completed paystubs, an
// annualized income figure is derived and stored on the newest document.
func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	residentID := chi.URLParam(r, "id")
	if residentID == "" {
		JSONError(w, http.StatusBadRequest, "Resident ID is required")
		return
	}

	var req models.CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		JSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   "Validation failed",
			"details": errs,
		})
		return
	}
	if req.Status == "" {
		req.Status = models.DocStatusProcessing
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	pool := h.db.GetPool()

	var leaseID string
	if err := pool.QueryRow(ctx, `SELECT lease_id FROM residents WHERE id = $1`, residentID).Scan(&leaseID); err != nil {
		JSONError(w, http.StatusNotFound, "Resident not found")
		return
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Printf("Error starting transaction: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to create document")
		return
	}
	defer tx.Rollback(ctx)

	// Attach to the lease's latest verification workflow, creating one on
	// first upload.
	var verificationID string
	err = tx.QueryRow(ctx, `
		SELECT id FROM income_verifications
		WHERE lease_id = $1 ORDER BY created_at DESC LIMIT 1
	`, leaseID).Scan(&verificationID)
	if errors.Is(err, pgx.ErrNoRows) {
		verificationID = uuid.NewString()
		_, err = tx.Exec(ctx, `
			INSERT INTO income_verifications (id, lease_id, status) VALUES ($1, $2, $3)
		`, verificationID, leaseID, models.VerificationInProgress)
	}
	if err != nil {
		log.Printf("Error resolving verification for lease %s: %v", leaseID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to create document")
		return
	}

	var doc models.IncomeDocument
	err = scanDocument(tx.QueryRow(ctx, `
		INSERT INTO income_documents (
			id, resident_id, verification_id, document_type, status,
			gross_pay_amount, pay_frequency, pay_period_start_date, pay_period_end_date,
			box1_wages, tax_year, file_url, file_name, file_size, file_type
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING `+documentRetCols,
		uuid.NewString(), residentID, verificationID, req.DocumentType, req.Status,
		req.GrossPayAmount, req.PayFrequency, req.PayPeriodStartDate, req.PayPeriodEndDate,
		req.Box1Wages, req.TaxYear, req.FileURL, req.FileName, req.FileSize, req.FileType,
	), &doc)
	if err != nil {
		log.Printf("Error inserting document: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to create document")
		return
	}

	annualized, annErr := h.annualizeResident(ctx, tx, residentID, doc.ID)
	if annErr != nil {
		log.Printf("Error annualizing resident %s: %v", residentID, annErr)
		JSONError(w, http.StatusInternalServerError, "Failed to create document")
		return
	}
	if annualized != nil {
		doc.CalculatedAnnualizedIncome = &annualized.AnnualizedIncome
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("Error committing document create: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to create document")
		return
	}

	JSON(w, http.StatusCreated, map[string]interface{}{
		"data": map[string]interface{}{
			"document":   doc,
			"annualized": annualized,
		},
	})
}

// annualizeResident recomputes the annualized income from the resident's
// COMPLETED paystubs and records it on the given document. An annualization
// error is not fatal — the resident just isn't ready yet.
func (h *DocumentHandler) annualizeResident(ctx context.Context, tx pgx.Tx, residentID, documentID string) (*income.AnnualizeResult, error) {
	rows, err := tx.Query(ctx, `
		SELECT gross_pay_amount, pay_period_start_date::text, pay_period_end_date::text
		FROM income_documents
		WHERE resident_id = $1 AND document_type = $2 AND status = $3
	`, residentID, models.DocTypePaystub, models.DocStatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stubs := []income.Paystub{}
	for rows.Next() {
		var s income.Paystub
		if err := rows.Scan(&s.GrossPayAmount, &s.PayPeriodStartDate, &s.PayPeriodEndDate); err != nil {
			return nil, err
		}
		stubs = append(stubs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result, err := income.AnnualizePaystubs(stubs)
	if err != nil {
		return nil, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE income_documents SET calculated_annualized_income = $1, updated_at = NOW()
		WHERE id = $2
	`, result.AnnualizedIncome, documentID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ── Get ────────────────────────────────────────────────────────

// GetByID handles GET /api/documents/{id}
func (h *DocumentHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		JSONError(w, http.StatusBadRequest, "Document ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var doc models.IncomeDocument
	err := scanDocument(h.db.GetPool().QueryRow(ctx,
		`SELECT `+documentRetCols+` FROM income_documents WHERE id = $1`, id), &doc)
	if err != nil {
		JSONError(w, http.StatusNotFound, "Document not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{"data": doc})
}

// ── ListByResident ─────────────────────────────────────────────

// ListByResident handles GET /api/residents/{id}/documents
func (h *DocumentHandler) ListByResident(w http.ResponseWriter, r *http.Request) {
	residentID := chi.URLParam(r, "id")
	if residentID == "" {
		JSONError(w, http.StatusBadRequest, "Resident ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rows, err := h.db.GetPool().Query(ctx, `
		SELECT `+documentRetCols+`
		FROM income_documents WHERE resident_id = $1
		ORDER BY created_at DESC
	`, residentID)
	if err != nil {
		log.Printf("Error fetching documents for resident %s: %v", residentID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to fetch documents")
		return
	}
	defer rows.Close()

	documents := []models.IncomeDocument{}
	for rows.Next() {
		var d models.IncomeDocument
		if err := rows.Scan(
			&d.ID, &d.ResidentID, &d.VerificationID, &d.DocumentType, &d.Status,
			&d.GrossPayAmount, &d.PayFrequency,
			&d.PayPeriodStartDate, &d.PayPeriodEndDate,
			&d.Box1Wages, &d.TaxYear, &d.CalculatedAnnualizedIncome,
			&d.FileURL, &d.FileName, &d.FileSize, &d.FileType,
			&d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			log.Printf("Error scanning document: %v", err)
			continue
		}
		documents = append(documents, d)
	}

	JSON(w, http.StatusOK, map[string]interface{}{"data": documents})
}

// ── Review ─────────────────────────────────────────────────────

// Review handles POST /api/documents/{id}/review — resolves a
// NEEDS_REVIEW document. Accepting applies any corrected fields and marks
// the document COMPLETED; rejecting deletes it. Either way the resident's
// annualization is recomputed afterwards.
func (h *DocumentHandler) Review(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		JSONError(w, http.StatusBadRequest, "Document ID is required")
		return
	}

	var req models.ReviewDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	pool := h.db.GetPool()

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Printf("Error starting transaction: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to review document")
		return
	}
	defer tx.Rollback(ctx)

	var residentID, status string
	err = tx.QueryRow(ctx, `
		SELECT resident_id, status FROM income_documents WHERE id = $1 FOR UPDATE
	`, id).Scan(&residentID, &status)
	if err != nil {
		JSONError(w, http.StatusNotFound, "Document not found")
		return
	}
	if status != models.DocStatusNeedsReview {
		JSONError(w, http.StatusConflict, "Document is not awaiting review")
		return
	}

	if !req.Accept {
		if _, err := tx.Exec(ctx, `DELETE FROM income_documents WHERE id = $1`, id); err != nil {
			log.Printf("Error deleting rejected document %s: %v", id, err)
			JSONError(w, http.StatusInternalServerError, "Failed to review document")
			return
		}
		if err := tx.Commit(ctx); err != nil {
			log.Printf("Error committing document rejection: %v", err)
			JSONError(w, http.StatusInternalServerError, "Failed to review document")
			return
		}
		JSON(w, http.StatusOK, map[string]string{"message": "Document rejected"})
		return
	}

	var doc models.IncomeDocument
	err = scanDocument(tx.QueryRow(ctx, `
		UPDATE income_documents SET
			status = $1,
			gross_pay_amount = COALESCE($2, gross_pay_amount),
			pay_period_start_date = COALESCE($3::date, pay_period_start_date),
			pay_period_end_date = COALESCE($4::date, pay_period_end_date),
			box1_wages = COALESCE($5, box1_wages),
			updated_at = NOW()
		WHERE id = $6
		RETURNING `+documentRetCols,
		models.DocStatusCompleted,
		req.GrossPayAmount, req.PayPeriodStartDate, req.PayPeriodEndDate,
		req.Box1Wages, id,
	), &doc)
	if err != nil {
		log.Printf("Error accepting document %s: %v", id, err)
		JSONError(w, http.StatusInternalServerError, "Failed to review document")
		return
	}

	annualized, annErr := h.annualizeResident(ctx, tx, residentID, doc.ID)
	if annErr != nil {
		log.Printf("Error annualizing resident %s: %v", residentID, annErr)
		JSONError(w, http.StatusInternalServerError, "Failed to review document")
		return
	}
	if annualized != nil {
		doc.CalculatedAnnualizedIncome = &annualized.AnnualizedIncome
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("Error committing document review: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to review document")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"document":   doc,
			"annualized": annualized,
		},
	})
}
