package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/tiffinbox/api/internal/repositories"
)

var (
	// ErrMenuItemNotFound indicates the dish does not exist.
	ErrMenuItemNotFound = errors.New("menu: item not found")
	// ErrMenuInvalidInput indicates a malformed menu query.
	ErrMenuInvalidInput = errors.New("menu: invalid input")
)

// MenuServiceDeps bundles collaborators for the menu catalog.
type MenuServiceDeps struct {
	Menu repositories.MenuRepository
}

type menuService struct {
	menu repositories.MenuRepository
}

// NewMenuService constructs the read-only menu catalog service.
func NewMenuService(deps MenuServiceDeps) (MenuService, error) {
	if deps.Menu == nil {
		return nil, errors.New("menu service: menu repository is required")
	}
	return &menuService{menu: deps.Menu}, nil
}

func (s *menuService) List(ctx context.Context, filter MenuFilter) ([]MenuItem, error) {
	items, err := s.menu.List(ctx, repositories.MenuListFilter{
		Category:      strings.TrimSpace(filter.Category),
		AvailableOnly: filter.AvailableOnly,
	})
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return items, nil
}

func (s *menuService) Get(ctx context.Context, itemID string) (MenuItem, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return MenuItem{}, newReasonError(ErrMenuInvalidInput, "Menu item id is required")
	}
	item, err := s.menu.FindByID(ctx, itemID)
	if err != nil {
		return MenuItem{}, s.mapRepositoryError(err)
	}
	return item, nil
}

// Search returns dishes whose name contains the query, ignoring case.
func (s *menuService) Search(ctx context.Context, name string) ([]MenuItem, error) {
	folder := cases.Fold()
	query := folder.String(strings.TrimSpace(name))
	if query == "" {
		return nil, newReasonError(ErrMenuInvalidInput, "Search name is required")
	}
	items, err := s.menu.List(ctx, repositories.MenuListFilter{})
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	matches := make([]MenuItem, 0, len(items))
	for _, item := range items {
		if strings.Contains(folder.String(item.Name), query) {
			matches = append(matches, item)
		}
	}
	return matches, nil
}

func (s *menuService) mapRepositoryError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %w", newReasonError(ErrMenuItemNotFound, "Menu item not found"), err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("menu: repository unavailable: %w", err)
		}
	}
	return err
}
