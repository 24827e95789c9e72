package app

import (
	"context"

	"safe-eye-console/internal/domain/entity"
	"safe-eye-console/internal/domain/port"
)

// OperatorService ведёт диалог оператора в Telegram-консоли
type OperatorService struct {
	repo port.OperatorRepository
}

func NewOperatorService(repo port.OperatorRepository) *OperatorService {
	return &OperatorService{repo: repo}
}

func (s *OperatorService) Get(ctx context.Context, userID, chatID int64) (*entity.Operator, error) {
	return s.repo.Get(ctx, userID, chatID)
}

func (s *OperatorService) SetState(ctx context.Context, userID, chatID int64, state entity.OperatorState) (*entity.Operator, error) {
	operator, err := s.repo.Get(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	operator.SetState(state)
	if err := s.repo.Save(ctx, operator); err != nil {
		return nil, err
	}

	return operator, nil
}

// BeginDetect переводит оператора в ожидание снимка для ручной проверки
func (s *OperatorService) BeginDetect(ctx context.Context, userID, chatID int64) (*entity.Operator, error) {
	return s.SetState(ctx, userID, chatID, entity.StateAwaitingPhoto)
}

func (s *OperatorService) Cancel(ctx context.Context, userID, chatID int64) (*entity.Operator, error) {
	return s.SetState(ctx, userID, chatID, entity.StateMainMenu)
}
