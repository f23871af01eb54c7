package db

const jobColumns = `id, ticket_type, priority, status, attempts, max_attempts, error_message, retry_at,
		printer_id, printer_name, printer_kind, printer_address, chunk_size, chunk_delay_ms,
		payload, copies, submitted_by, created_at, updated_at, printed_at`

const (
	UpsertJob = `
		INSERT INTO print_jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			attempts = excluded.attempts,
			max_attempts = excluded.max_attempts,
			error_message = excluded.error_message,
			retry_at = excluded.retry_at,
			updated_at = excluded.updated_at,
			printed_at = excluded.printed_at
	`

	ListJobs = `SELECT ` + jobColumns + ` FROM print_jobs ORDER BY created_at ASC`

	CountJobsByStatus = `SELECT status, COUNT(*) FROM print_jobs GROUP BY status`

	DeleteJob = `DELETE FROM print_jobs WHERE id = ?`
)

const printerColumns = `id, name, kind, address, chunk_size, chunk_delay_ms, status, last_seen_at, total_prints, created_at, updated_at`

const (
	InsertPrinter = `
		INSERT INTO printers (` + printerColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	GetPrinterByID = `SELECT ` + printerColumns + ` FROM printers WHERE id = ?`

	ListPrinters = `SELECT ` + printerColumns + ` FROM printers ORDER BY name ASC`

	UpdatePrinter = `
		UPDATE printers SET
			name = ?, kind = ?, address = ?, chunk_size = ?, chunk_delay_ms = ?, updated_at = ?
		WHERE id = ?
	`

	UpdatePrinterStatus = `
		UPDATE printers SET status = ?, last_seen_at = ?, updated_at = ? WHERE id = ?
	`

	IncrementPrinterPrints = `
		UPDATE printers SET total_prints = total_prints + ? WHERE id = ?
	`

	DeletePrinter = `DELETE FROM printers WHERE id = ?`
)

const GetAppliedMigrations = `SELECT version FROM schema_migrations`
