package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/rs/zerolog/log"

	"github.com/medigrid/backend/internal/domain/entities"
	"github.com/medigrid/backend/internal/domain/repositories"
	"github.com/medigrid/backend/internal/infrastructure/clients/sqldb"
	"github.com/medigrid/backend/internal/infrastructure/observability"
	"github.com/medigrid/backend/pkg/config"
	apperrors "github.com/medigrid/backend/pkg/errors"
)

// PrescriptionTable is the single table holding every saved medication row.
const PrescriptionTable = "Prescription"

// insertBatchSize bounds the rows per INSERT statement so large saves stay
// under the driver's bind-variable limit.
const insertBatchSize = 100

// createPrescriptionTable is valid for both SQLite and PostgreSQL. Quoted
// identifiers keep the mixed-case column names intact on Postgres.
const createPrescriptionTable = `CREATE TABLE IF NOT EXISTS "Prescription" (
	"PATIENT_NAME"    TEXT,
	"MEDICATION_NAME" TEXT,
	"DOSAGE"          TEXT,
	"FREQUENCY"       TEXT,
	"DURATION"        TEXT,
	"MAP_LINK"        TEXT,
	"Data_Saved"      TEXT,
	"SAVE_ID"         TEXT
)`

const addSaveIDColumn = `ALTER TABLE "Prescription" ADD COLUMN "SAVE_ID" TEXT`

const (
	sqliteColumnsQuery   = `SELECT name FROM pragma_table_info(?)`
	postgresColumnsQuery = `SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1`
)

var recordColumns = []interface{}{
	entities.ColumnPatientName,
	entities.ColumnMedicationName,
	entities.ColumnDosage,
	entities.ColumnFrequency,
	entities.ColumnDuration,
	entities.ColumnMapLink,
	entities.ColumnSavedAt,
	entities.ColumnSaveID,
}

// PrescriptionAdapter implements the prescription store on SQLite or Postgres.
type PrescriptionAdapter struct {
	client      *sqldb.Client
	metrics     *observability.Metrics
	schemaReady atomic.Bool
}

// NewPrescriptionAdapter creates a new prescription adapter. metrics may be nil.
func NewPrescriptionAdapter(client *sqldb.Client, metrics *observability.Metrics) *PrescriptionAdapter {
	return &PrescriptionAdapter{
		client:  client,
		metrics: metrics,
	}
}

var _ repositories.PrescriptionRepository = (*PrescriptionAdapter)(nil)

// EnsureSchema creates the prescription table if it is missing and adds the
// SAVE_ID column to tables created before save ids existed. It is safe to
// call any number of times.
func (a *PrescriptionAdapter) EnsureSchema(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordDBQuery(ctx, a.metrics, "ensure_schema", time.Since(start))
		a.schemaReady.Store(err == nil)
	}()

	if _, err := a.client.DB().ExecContext(ctx, createPrescriptionTable); err != nil {
		return apperrors.NewInternalError("failed to create prescription table", err)
	}

	columns, err := a.tableColumns(ctx)
	if err != nil {
		return apperrors.NewInternalError("failed to inspect prescription table", err)
	}
	if !columns[entities.ColumnSaveID] {
		log.Info().Str("table", PrescriptionTable).Msg("adding SAVE_ID column to existing prescription table")
		if _, alterErr := a.client.DB().ExecContext(ctx, addSaveIDColumn); alterErr != nil {
			// another caller may have added it first
			if columns, err := a.tableColumns(ctx); err == nil && columns[entities.ColumnSaveID] {
				return nil
			}
			return apperrors.NewInternalError("failed to add SAVE_ID column", alterErr)
		}
	}
	return nil
}

// tableColumns returns the column names of the prescription table.
func (a *PrescriptionAdapter) tableColumns(ctx context.Context) (map[string]bool, error) {
	query := sqliteColumnsQuery
	if a.client.Driver() == config.DriverPostgres {
		query = postgresColumnsQuery
	}

	rows, err := a.client.DB().QueryContext(ctx, query, PrescriptionTable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		columns[name] = true
	}
	return columns, rows.Err()
}

// ensureReady re-runs EnsureSchema if startup could not confirm the table.
func (a *PrescriptionAdapter) ensureReady(ctx context.Context) error {
	if a.schemaReady.Load() {
		return nil
	}
	log.Warn().Msg("prescription schema not confirmed, retrying creation")
	return a.EnsureSchema(ctx)
}

// InsertRecords appends the records inside one transaction. Any failure
// rolls the whole batch back.
func (a *PrescriptionAdapter) InsertRecords(ctx context.Context, records []entities.PrescriptionRecord) (err error) {
	if len(records) == 0 {
		return nil
	}

	ctx, span := observability.StartSpan(ctx, "PrescriptionAdapter.InsertRecords")
	defer span.End()
	start := time.Now()
	defer func() {
		observability.RecordDBQuery(ctx, a.metrics, "insert_records", time.Since(start))
		observability.RecordError(span, err)
	}()

	if err := a.ensureReady(ctx); err != nil {
		return err
	}

	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return apperrors.NewInternalError("failed to begin prescription transaction", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				log.Error().Err(rbErr).Msg("failed to roll back prescription transaction")
			}
		}
	}()

	for begin := 0; begin < len(records); begin += insertBatchSize {
		end := begin + insertBatchSize
		if end > len(records) {
			end = len(records)
		}

		query, args, buildErr := a.insertQuery(records[begin:end])
		if buildErr != nil {
			return apperrors.NewInternalError("failed to build prescription insert query", buildErr)
		}
		if _, execErr := tx.ExecContext(ctx, query, args...); execErr != nil {
			return apperrors.NewInternalError("failed to insert prescription rows", execErr)
		}
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return apperrors.NewInternalError("failed to commit prescription rows", commitErr)
	}
	return nil
}

func (a *PrescriptionAdapter) insertQuery(records []entities.PrescriptionRecord) (string, []interface{}, error) {
	rows := make([]interface{}, len(records))
	for i, rec := range records {
		rows[i] = goqu.Record{
			entities.ColumnPatientName:    rec.PatientName,
			entities.ColumnMedicationName: rec.MedicationName,
			entities.ColumnDosage:         rec.Dosage,
			entities.ColumnFrequency:      rec.Frequency,
			entities.ColumnDuration:       rec.Duration,
			entities.ColumnMapLink:        rec.MapLink,
			entities.ColumnSavedAt:        rec.SavedAt,
			entities.ColumnSaveID:         rec.SaveID,
		}
	}
	return a.client.Dialect().
		Insert(PrescriptionTable).
		Prepared(true).
		Rows(rows...).
		ToSQL()
}

// ListRecords returns every row ordered by save time, newest first. Rows of
// the same second are kept together by ordering on the save id as well.
func (a *PrescriptionAdapter) ListRecords(ctx context.Context) (records []entities.PrescriptionRecord, err error) {
	ctx, span := observability.StartSpan(ctx, "PrescriptionAdapter.ListRecords")
	defer span.End()
	start := time.Now()
	defer func() {
		observability.RecordDBQuery(ctx, a.metrics, "list_records", time.Since(start))
		observability.RecordError(span, err)
	}()

	if err := a.ensureReady(ctx); err != nil {
		return nil, err
	}

	query, args, err := a.client.Dialect().
		From(PrescriptionTable).
		Select(recordColumns...).
		Order(
			goqu.I(entities.ColumnSavedAt).Desc(),
			goqu.I(entities.ColumnSaveID).Desc(),
		).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build prescription select query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query prescriptions", err)
	}
	defer rows.Close()

	records = []entities.PrescriptionRecord{}
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, apperrors.NewInternalError("failed to scan prescription row", scanErr)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to read prescription rows", err)
	}

	return records, nil
}

// scanRecord reads one row, mapping NULL columns to empty text.
func scanRecord(rows *sql.Rows) (entities.PrescriptionRecord, error) {
	var cols [8]sql.NullString
	if err := rows.Scan(&cols[0], &cols[1], &cols[2], &cols[3], &cols[4], &cols[5], &cols[6], &cols[7]); err != nil {
		return entities.PrescriptionRecord{}, fmt.Errorf("scan: %w", err)
	}
	return entities.PrescriptionRecord{
		PatientName:    cols[0].String,
		MedicationName: cols[1].String,
		Dosage:         cols[2].String,
		Frequency:      cols[3].String,
		Duration:       cols[4].String,
		MapLink:        cols[5].String,
		SavedAt:        cols[6].String,
		SaveID:         cols[7].String,
	}, nil
}
