package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

// BillRecord mirrors a bill_record row joined with its category and method names.
type BillRecord struct {
	ID                  int64
	TransactionDate     string
	Year                int64
	Month               int64
	Week                int64
	IsoYear             int64
	AmountCents         int64
	TransactionType     string
	CategoryID          sql.NullInt64
	CategoryName        string
	TransactionMethodID int64
	MethodName          string
	Counterparty        string
	Description         string
	Remark              string
	SourceID            sql.NullString
}

type BillParams struct {
	TransactionDate     string
	Year                int64
	Month               int64
	Week                int64
	IsoYear             int64
	AmountCents         int64
	TransactionType     string
	CategoryID          sql.NullInt64
	TransactionMethodID int64
	Counterparty        string
	Description         string
	Remark              string
	SourceID            sql.NullString
}

const createBill = `
INSERT INTO bill_record (
    transaction_date, year, month, week, iso_year, amount_cents, transaction_type,
    category_id, transaction_method_id, counterparty, description, remark, source_id
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`

func (q *Queries) CreateBill(ctx context.Context, arg BillParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, createBill,
		arg.TransactionDate, arg.Year, arg.Month, arg.Week, arg.IsoYear,
		arg.AmountCents, arg.TransactionType, arg.CategoryID, arg.TransactionMethodID,
		arg.Counterparty, arg.Description, arg.Remark, arg.SourceID,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const updateBill = `
UPDATE bill_record SET
    transaction_date = ?, year = ?, month = ?, week = ?, iso_year = ?, amount_cents = ?,
    transaction_type = ?, category_id = ?, transaction_method_id = ?, counterparty = ?,
    description = ?, remark = ?, source_id = ?
WHERE id = ?`

func (q *Queries) UpdateBill(ctx context.Context, id int64, arg BillParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateBill,
		arg.TransactionDate, arg.Year, arg.Month, arg.Week, arg.IsoYear,
		arg.AmountCents, arg.TransactionType, arg.CategoryID, arg.TransactionMethodID,
		arg.Counterparty, arg.Description, arg.Remark, arg.SourceID, id,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteBill = `DELETE FROM bill_record WHERE id = ?`

func (q *Queries) DeleteBill(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteBill, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const selectBill = `
SELECT b.id, b.transaction_date, b.year, b.month, b.week, b.iso_year, b.amount_cents,
       b.transaction_type, b.category_id, COALESCE(c.name, ''), b.transaction_method_id,
       COALESCE(m.name, ''), b.counterparty, b.description, b.remark, b.source_id
FROM bill_record b
LEFT JOIN category c ON c.id = b.category_id
LEFT JOIN transaction_method m ON m.id = b.transaction_method_id`

func scanBill(s interface{ Scan(...interface{}) error }) (BillRecord, error) {
	var i BillRecord
	err := s.Scan(
		&i.ID, &i.TransactionDate, &i.Year, &i.Month, &i.Week, &i.IsoYear, &i.AmountCents,
		&i.TransactionType, &i.CategoryID, &i.CategoryName, &i.TransactionMethodID,
		&i.MethodName, &i.Counterparty, &i.Description, &i.Remark, &i.SourceID,
	)
	return i, err
}

func (q *Queries) GetBill(ctx context.Context, id int64) (BillRecord, error) {
	return scanBill(q.db.QueryRowContext(ctx, selectBill+` WHERE b.id = ?`, id))
}

// ListBills returns the bills matching filter in id order. filter is a
// WHERE fragment over the b alias produced by bucketFilter.
func (q *Queries) ListBills(ctx context.Context, filter string, args ...interface{}) ([]BillRecord, error) {
	rows, err := q.db.QueryContext(ctx, selectBill+` WHERE `+filter+` ORDER BY b.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BillRecord
	for rows.Next() {
		i, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getBillIDBySource = `SELECT id FROM bill_record WHERE source_id = ?`

func (q *Queries) GetBillIDBySource(ctx context.Context, sourceID string) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, getBillIDBySource, sourceID).Scan(&id)
	return id, err
}

const getLatestBillIDByDate = `
SELECT id FROM bill_record
WHERE transaction_date = ? AND transaction_type = ?
ORDER BY id DESC
LIMIT 1`

func (q *Queries) GetLatestBillIDByDate(ctx context.Context, transactionDate, transactionType string) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, getLatestBillIDByDate, transactionDate, transactionType).Scan(&id)
	return id, err
}

func (q *Queries) SumAmount(ctx context.Context, filter string, args ...interface{}) (int64, error) {
	var total int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(b.amount_cents), 0) FROM bill_record b WHERE `+filter, args...,
	).Scan(&total)
	return total, err
}

type CategorySumRow struct {
	Name        string
	Count       int64
	AmountCents int64
}

// CategorySums groups by category name; uncategorized rows fall into the
// unknown category of the catalog.
func (q *Queries) CategorySums(ctx context.Context, unknown string, filter string, args ...interface{}) ([]CategorySumRow, error) {
	query := `
SELECT COALESCE(c.name, ?) AS category_name, COUNT(*), COALESCE(SUM(b.amount_cents), 0)
FROM bill_record b
LEFT JOIN category c ON c.id = b.category_id
WHERE ` + filter + `
GROUP BY category_name
ORDER BY category_name`
	rows, err := q.db.QueryContext(ctx, query, append([]interface{}{unknown}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CategorySumRow
	for rows.Next() {
		var i CategorySumRow
		if err := rows.Scan(&i.Name, &i.Count, &i.AmountCents); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type DailySumRow struct {
	Day             string
	TransactionType string
	AmountCents     int64
}

const getDailySums = `
SELECT substr(transaction_date, 1, 10) AS day, transaction_type, SUM(amount_cents)
FROM bill_record
WHERE transaction_date >= ? AND transaction_date < ?
GROUP BY day, transaction_type
ORDER BY day, transaction_type`

func (q *Queries) GetDailySums(ctx context.Context, from, to string) ([]DailySumRow, error) {
	rows, err := q.db.QueryContext(ctx, getDailySums, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []DailySumRow
	for rows.Next() {
		var i DailySumRow
		if err := rows.Scan(&i.Day, &i.TransactionType, &i.AmountCents); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type MonthlySumRow struct {
	Month           int64
	TransactionType string
	AmountCents     int64
}

const getMonthlySums = `
SELECT month, transaction_type, SUM(amount_cents)
FROM bill_record
WHERE year = ?
GROUP BY month, transaction_type
ORDER BY month, transaction_type`

func (q *Queries) GetMonthlySums(ctx context.Context, year int64) ([]MonthlySumRow, error) {
	rows, err := q.db.QueryContext(ctx, getMonthlySums, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MonthlySumRow
	for rows.Next() {
		var i MonthlySumRow
		if err := rows.Scan(&i.Month, &i.TransactionType, &i.AmountCents); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getCategoryID = `SELECT id FROM category WHERE name = ? AND type = ?`

func (q *Queries) GetCategoryID(ctx context.Context, name, categoryType string) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, getCategoryID, name, categoryType).Scan(&id)
	return id, err
}

type Category struct {
	ID   int64
	Name string
	Type string
}

const getCategoriesByType = `SELECT id, name, type FROM category WHERE type = ? ORDER BY id`

func (q *Queries) GetCategoriesByType(ctx context.Context, categoryType string) ([]Category, error) {
	rows, err := q.db.QueryContext(ctx, getCategoriesByType, categoryType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Category
	for rows.Next() {
		var i Category
		if err := rows.Scan(&i.ID, &i.Name, &i.Type); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type TransactionMethod struct {
	ID   int64
	Name string
}

const getMethods = `SELECT id, name FROM transaction_method ORDER BY id`

func (q *Queries) GetMethods(ctx context.Context) ([]TransactionMethod, error) {
	rows, err := q.db.QueryContext(ctx, getMethods)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TransactionMethod
	for rows.Next() {
		var i TransactionMethod
		if err := rows.Scan(&i.ID, &i.Name); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getFirstComment = `
SELECT cm.text
FROM comment cm
JOIN category c ON c.id = cm.category_id
WHERE c.name = ? AND c.type = ?
ORDER BY cm.id
LIMIT 1`

func (q *Queries) GetFirstComment(ctx context.Context, name, categoryType string) (string, error) {
	var text string
	err := q.db.QueryRowContext(ctx, getFirstComment, name, categoryType).Scan(&text)
	return text, err
}

const createImportRun = `INSERT INTO import_run (id, path, started_at) VALUES (?, ?, ?)`

func (q *Queries) CreateImportRun(ctx context.Context, id, path, startedAt string) error {
	_, err := q.db.ExecContext(ctx, createImportRun, id, path, startedAt)
	return err
}

type FinishImportRunParams struct {
	ID         string
	FinishedAt string
	Accepted   int64
	Skipped    int64
	Failed     int64
	Error      string
}

const finishImportRun = `
UPDATE import_run
SET finished_at = ?, accepted = ?, skipped = ?, failed = ?, error = ?
WHERE id = ?`

func (q *Queries) FinishImportRun(ctx context.Context, arg FinishImportRunParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, finishImportRun,
		arg.FinishedAt, arg.Accepted, arg.Skipped, arg.Failed, arg.Error, arg.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type ImportRun struct {
	ID         string
	Path       string
	StartedAt  string
	FinishedAt sql.NullString
	Accepted   int64
	Skipped    int64
	Failed     int64
	Error      string
}

const getImportRun = `
SELECT id, path, started_at, finished_at, accepted, skipped, failed, error
FROM import_run WHERE id = ?`

func (q *Queries) GetImportRun(ctx context.Context, id string) (ImportRun, error) {
	var i ImportRun
	err := q.db.QueryRowContext(ctx, getImportRun, id).Scan(
		&i.ID, &i.Path, &i.StartedAt, &i.FinishedAt, &i.Accepted, &i.Skipped, &i.Failed, &i.Error)
	return i, err
}
