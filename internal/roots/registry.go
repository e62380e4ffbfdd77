// Пакет roots — реестр медиа-корней и контроль доступа к ним.
//
// Реестр читает актуальную конфигурацию из ConfigStore при каждом
// обращении: изменения, внесённые администратором, действуют для
// последующих запросов без перезапуска сервера.
package roots

import (
	"context"
	"errors"
	"fmt"

	"github.com/bigkaa/mediaserve/internal/domain/model"
	"github.com/bigkaa/mediaserve/internal/store"
)

// ErrInvalidRoot — индекс корня вне границ текущей конфигурации.
var ErrInvalidRoot = errors.New("несуществующий индекс корня")

// Registry — реестр настроенных медиа-корней.
type Registry struct {
	store store.Store
}

// NewRegistry создаёт реестр над хранилищем конфигурации.
func NewRegistry(st store.Store) *Registry {
	return &Registry{store: st}
}

// All возвращает текущий список корней в порядке конфигурации.
// Индекс элемента в срезе и есть rootIndex символического пути.
func (r *Registry) All(ctx context.Context) ([]model.MediaRoot, error) {
	settings, err := r.store.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("чтение конфигурации корней: %w", err)
	}
	return settings.Roots, nil
}

// At возвращает корень по индексу.
// Возвращает ErrInvalidRoot для отрицательного индекса или индекса
// за пределами текущего списка.
func (r *Registry) At(ctx context.Context, index int) (model.MediaRoot, error) {
	all, err := r.All(ctx)
	if err != nil {
		return model.MediaRoot{}, err
	}
	if index < 0 || index >= len(all) {
		return model.MediaRoot{}, fmt.Errorf("%w: %d", ErrInvalidRoot, index)
	}
	return all[index], nil
}
