// Пакет activity — журнал действий пользователей.
//
// Запись в журнал не должна ронять основную операцию: при ошибке
// записи действие уже выполнено, откатывать его поздно. Поэтому
// Recorder логирует сбой и продолжает работу.
package activity

import (
	"context"
	"log/slog"

	"github.com/bigkaa/mediaserve/internal/domain/model"
	"github.com/bigkaa/mediaserve/internal/store"
)

// Recorder — приёмник записей журнала действий.
type Recorder interface {
	// Record фиксирует действие принципала.
	Record(ctx context.Context, principal model.Principal, action model.Action, details string)
}

// StoreRecorder — Recorder поверх ConfigStore.
type StoreRecorder struct {
	store  store.Store
	logger *slog.Logger
}

// NewStoreRecorder создаёт Recorder поверх хранилища.
func NewStoreRecorder(st store.Store, logger *slog.Logger) *StoreRecorder {
	return &StoreRecorder{
		store:  st,
		logger: logger.With(slog.String("component", "activity")),
	}
}

// Record добавляет запись в журнал. Ошибка записи логируется,
// но не возвращается вызывающему.
func (r *StoreRecorder) Record(ctx context.Context, principal model.Principal, action model.Action, details string) {
	entry := model.HistoryEntry{
		Username: principal.Username,
		Action:   action,
		Details:  details,
	}
	if err := r.store.AppendHistory(ctx, entry); err != nil {
		r.logger.Error("Не удалось записать действие в журнал",
			slog.String("username", principal.Username),
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		)
	}
}

// NopRecorder — Recorder, отбрасывающий записи. Используется в тестах.
type NopRecorder struct{}

// Record ничего не делает.
func (NopRecorder) Record(context.Context, model.Principal, model.Action, string) {}
