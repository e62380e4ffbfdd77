package roots

import (
	"context"
	"errors"

	"github.com/bigkaa/mediaserve/internal/domain/model"
)

// ErrForbidden — корень существует, но принципалу доступ к нему закрыт.
var ErrForbidden = errors.New("доступ к корню запрещён")

// Guard — проверка прав принципала на медиа-корни.
//
// Правило единое для всех операций: администратор видит все корни,
// обычный пользователь — только корни, где он перечислен в allowedUsers.
// Пустой allowedUsers означает «только администраторы».
type Guard struct {
	registry *Registry
}

// NewGuard создаёт Guard над реестром корней.
func NewGuard(registry *Registry) *Guard {
	return &Guard{registry: registry}
}

// CanAccess сообщает, разрешён ли принципалу доступ к корню.
func (g *Guard) CanAccess(root model.MediaRoot, principal model.Principal) bool {
	if principal.IsAdmin {
		return true
	}
	return root.Allows(principal.Username)
}

// Authorize возвращает корень по индексу с проверкой доступа.
// ErrInvalidRoot — индекс вне конфигурации, ErrForbidden — доступ закрыт.
func (g *Guard) Authorize(ctx context.Context, index int, principal model.Principal) (model.MediaRoot, error) {
	root, err := g.registry.At(ctx, index)
	if err != nil {
		return model.MediaRoot{}, err
	}
	if !g.CanAccess(root, principal) {
		return model.MediaRoot{}, ErrForbidden
	}
	return root, nil
}

// IndexedRoot — корень вместе с его индексом в конфигурации.
// Индексы сохраняются сквозными: клиент строит символические пути
// по ним, а не по позиции в отфильтрованном списке.
type IndexedRoot struct {
	Index int
	Root  model.MediaRoot
}

// Visible возвращает корни, доступные принципалу,
// с их исходными индексами конфигурации.
func (g *Guard) Visible(ctx context.Context, principal model.Principal) ([]IndexedRoot, error) {
	all, err := g.registry.All(ctx)
	if err != nil {
		return nil, err
	}

	visible := make([]IndexedRoot, 0, len(all))
	for i, root := range all {
		if g.CanAccess(root, principal) {
			visible = append(visible, IndexedRoot{Index: i, Root: root})
		}
	}
	return visible, nil
}
