package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"compow-alarm/internal/models"

	"go.uber.org/zap"
)

// ContactRepository 紧急联系人仓库
type ContactRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewContactRepository 创建联系人仓库
func NewContactRepository(db *sql.DB, logger *zap.Logger) *ContactRepository {
	return &ContactRepository{
		db:     db,
		logger: logger,
	}
}

const contactColumns = `id, name, phone_number, category, is_enabled, created_at`

// GetContactsByCategory 按分类获取全部联系人（含停用的，过滤在选择层做）
func (r *ContactRepository) GetContactsByCategory(ctx context.Context, category models.ContactCategory) ([]*models.Contact, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("invalid contact category: %s", category)
	}

	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE category = ?
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, string(category))
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*models.Contact
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		contacts = append(contacts, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contacts: %w", err)
	}

	return contacts, nil
}

// ListContacts 列出全部联系人（分类序 + 插入序）
func (r *ContactRepository) ListContacts(ctx context.Context) ([]*models.Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		ORDER BY category, id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*models.Contact
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		contacts = append(contacts, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contacts: %w", err)
	}

	return contacts, nil
}

// CreateContact 新增联系人，返回生成的 ID
func (r *ContactRepository) CreateContact(ctx context.Context, contact *models.Contact) (int64, error) {
	if contact == nil {
		return 0, fmt.Errorf("contact is required")
	}
	if contact.Name == "" {
		return 0, fmt.Errorf("contact name is required")
	}
	if contact.PhoneNumber == "" {
		return 0, fmt.Errorf("contact phone_number is required")
	}
	if !contact.Category.Valid() {
		return 0, fmt.Errorf("invalid contact category: %s", contact.Category)
	}
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO contacts (name, phone_number, category, is_enabled, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		contact.Name,
		contact.PhoneNumber,
		string(contact.Category),
		contact.IsEnabled,
		contact.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create contact: %w", err)
	}

	r.logger.Info("Contact created",
		zap.Int64("contact_id", id),
		zap.String("category", string(contact.Category)),
	)

	contact.ID = id
	return id, nil
}

// SetContactEnabled 启用/停用单个联系人
func (r *ContactRepository) SetContactEnabled(ctx context.Context, id int64, enabled bool) error {
	if id <= 0 {
		return fmt.Errorf("contact id is required")
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE contacts SET is_enabled = ? WHERE id = ?`,
		enabled, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update contact: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("contact not found: id=%d", id)
	}

	return nil
}

// DeleteContact 删除联系人
func (r *ContactRepository) DeleteContact(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("contact id is required")
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}

	return nil
}

// scanContact 从行扫描联系人
func scanContact(rows *sql.Rows) (*models.Contact, error) {
	var contact models.Contact
	var category string

	err := rows.Scan(
		&contact.ID,
		&contact.Name,
		&contact.PhoneNumber,
		&category,
		&contact.IsEnabled,
		&contact.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	contact.Category = models.ContactCategory(category)
	return &contact, nil
}
