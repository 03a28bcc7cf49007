package budget

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/fatali-fataliyev/expense_tracker/internal/cache"
)

// ExpenseCache memoizes list results per (user, start, end) and single
// expenses per (user, id). Any write clears every list entry.
type ExpenseCache struct {
	lists *cache.LRUCache[[]Expense]
	items *cache.LRUCache[Expense]
}

func NewExpenseCache(size int, ttl time.Duration) *ExpenseCache {
	return &ExpenseCache{
		lists: cache.NewLRUCache[[]Expense](size, ttl),
		items: cache.NewLRUCache[Expense](size, ttl),
	}
}

// Cleaners exposes the underlying caches for periodic cleanup.
func (c *ExpenseCache) Cleaners() []cache.Cleaner {
	return []cache.Cleaner{c.lists, c.items}
}

func (c *ExpenseCache) List(ctx context.Context, userId int64, filters ExpenseList, load func(ctx context.Context) ([]Expense, error)) ([]Expense, error) {
	expenses, err := c.lists.GetOrLoad(ctx, listKey(userId, filters), load)
	if err != nil {
		return nil, err
	}
	return slices.Clone(expenses), nil
}

func (c *ExpenseCache) Item(ctx context.Context, userId int64, expenseId int64, load func(ctx context.Context) (Expense, error)) (Expense, error) {
	return c.items.GetOrLoad(ctx, itemKey(userId, expenseId), load)
}

// Put refreshes the item entry after a create or update.
func (c *ExpenseCache) Put(expense Expense) {
	key := itemKey(expense.UserID, expense.ID)
	c.lists.Clear()
	// Delete first so an in-flight load of the old row cannot overwrite it.
	c.items.Delete(key)
	c.items.Set(key, expense)
}

func (c *ExpenseCache) Invalidate(userId int64, expenseId int64) {
	c.lists.Clear()
	c.items.Delete(itemKey(userId, expenseId))
}

func listKey(userId int64, filters ExpenseList) string {
	return fmt.Sprintf("%d:%s:%s", userId, dateKey(filters.StartDate), dateKey(filters.EndDate))
}

func itemKey(userId int64, expenseId int64) string {
	return fmt.Sprintf("%d:%d", userId, expenseId)
}

func dateKey(date *time.Time) string {
	if date == nil {
		return "null"
	}
	return date.Format(DateLayout)
}
