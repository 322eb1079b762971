package domain

import "context"

// Catalog — минимальный контракт каталога, нужный валидатору и резервированию.
type Catalog interface {
	// GetProduct возвращает товар или ErrProductNotFound.
	GetProduct(ctx context.Context, id string) (Product, error)
	// SaveProduct сохраняет товар с проверкой версии и возвращает сохранённое состояние.
	// Отрицательный остаток отклоняется с ErrNegativeStock.
	SaveProduct(ctx context.Context, product Product) (Product, error)
}

// ProductRepository расширяет Catalog операциями наполнения каталога.
type ProductRepository interface {
	Catalog
	// CreateProduct добавляет товар; ErrProductAlreadyExists, если ID занят.
	CreateProduct(ctx context.Context, product Product) error
	// ListProducts возвращает все товары, отсортированные по ID.
	ListProducts(ctx context.Context) ([]Product, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// ListByUser возвращает заказы пользователя, новые первыми; limit <= 0 — без ограничения.
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	// Update заменяет заказ с учётом optimistic locking.
	Update(ctx context.Context, order Order) error
	// Delete физически удаляет заказ; ErrOrderNotFound, если его нет.
	Delete(ctx context.Context, id string) error
}
