package service

import (
	"context"
	"fmt"

	"compow-alarm/internal/models"
	"compow-alarm/internal/repository"
	"compow-alarm/internal/state"

	"go.uber.org/zap"
)

// RecipientResolver 收件人选择器
// 按固定分类顺序（CIRCLE → GROUP → COMMUNITY）收集启用分类下的启用联系人，
// 并按电话号码去重（保留先遇到的）
type RecipientResolver struct {
	contactRepo  *repository.ContactRepository
	stateManager *state.StateManager
	logger       *zap.Logger
}

// NewRecipientResolver 创建收件人选择器
func NewRecipientResolver(
	contactRepo *repository.ContactRepository,
	stateManager *state.StateManager,
	logger *zap.Logger,
) *RecipientResolver {
	return &RecipientResolver{
		contactRepo:  contactRepo,
		stateManager: stateManager,
		logger:       logger,
	}
}

// SelectRecipients 选择本次报警的收件人
// 空结果是合法返回（全部分类关闭或无可用联系人），不是错误
func (r *RecipientResolver) SelectRecipients(ctx context.Context) ([]*models.Contact, error) {
	enablement, err := r.stateManager.CategoryEnablement(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read category enablement: %w", err)
	}

	seen := make(map[string]bool)
	recipients := make([]*models.Contact, 0)

	for _, category := range models.CategorySelectionOrder {
		if !enablement[category] {
			continue
		}

		contacts, err := r.contactRepo.GetContactsByCategory(ctx, category)
		if err != nil {
			return nil, fmt.Errorf("failed to load contacts for category %s: %w", category, err)
		}

		for _, contact := range contacts {
			if !contact.IsEnabled {
				continue
			}
			if seen[contact.PhoneNumber] {
				continue
			}
			seen[contact.PhoneNumber] = true
			recipients = append(recipients, contact)
		}
	}

	r.logger.Debug("Recipients selected",
		zap.Int("count", len(recipients)),
	)

	return recipients, nil
}
